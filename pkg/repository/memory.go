package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu      sync.RWMutex
	records map[string][]byte
	order   map[string]time.Time
}

// NewMemoryRepository keeps records in process memory. Records are stored
// encoded so callers never share state with the repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		records: make(map[string][]byte),
		order:   make(map[string]time.Time),
	}
}

func (m *memoryRepository) Save(ctx context.Context, record *CallRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = data
	m.order[record.ID] = record.CreatedAt
	return record.ID, nil
}

func (m *memoryRepository) Get(ctx context.Context, id string) (*CallRecord, error) {
	m.mu.RLock()
	data, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var rec CallRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *memoryRepository) List(ctx context.Context, limit int) ([]CallRecord, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.order[ids[i]].After(m.order[ids[j]])
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	m.mu.RUnlock()

	records := make([]CallRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

func (m *memoryRepository) Close() error {
	return nil
}
