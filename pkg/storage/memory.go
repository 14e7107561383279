package storage

import (
	"context"
	"sort"
	"sync"
)

type memoryStore struct {
	sessions map[string]map[int][]byte
	mu       sync.RWMutex
}

// NewMemoryStore returns a ChunkStore kept entirely in process memory.
func NewMemoryStore() ChunkStore {
	return &memoryStore{
		sessions: make(map[string]map[int][]byte),
	}
}

func (s *memoryStore) Put(_ context.Context, sessionID string, index int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks, ok := s.sessions[sessionID]
	if !ok {
		chunks = make(map[int][]byte)
		s.sessions[sessionID] = chunks
	}
	chunks[index] = append([]byte(nil), data...)
	return nil
}

func (s *memoryStore) Get(_ context.Context, sessionID string, index int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.sessions[sessionID][index]
	if !exists {
		return nil, ErrChunkNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *memoryStore) Delete(_ context.Context, sessionID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(chunks, index)
	if len(chunks) == 0 {
		delete(s.sessions, sessionID)
	}
	return nil
}

func (s *memoryStore) DeleteNamespace(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func (s *memoryStore) List(_ context.Context, sessionID string) ([]ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]ChunkRecord, 0, len(s.sessions[sessionID]))
	for index, data := range s.sessions[sessionID] {
		records = append(records, ChunkRecord{SessionID: sessionID, Index: index, Size: len(data)})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })
	return records, nil
}

func (s *memoryStore) Close() error {
	return nil
}
