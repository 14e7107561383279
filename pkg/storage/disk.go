package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"
)

const chunkKeyPrefix = "chunk/"

type diskStore struct {
	db *badger.DB
}

// NewDiskStore opens a badger-backed ChunkStore under path.
func NewDiskStore(path string) (ChunkStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(path, "badger"))
	opts.Logger = nil // Disable badger logging

	return openDiskStore(opts)
}

// NewInMemoryDiskStore opens badger in memory-only mode.
func NewInMemoryDiskStore() (ChunkStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openDiskStore(opts)
}

func openDiskStore(opts badger.Options) (ChunkStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &diskStore{db: db}, nil
}

func namespacePrefix(sessionID string) []byte {
	return []byte(chunkKeyPrefix + sessionID + "/")
}

// chunkKey appends the index big-endian so keys sort in index order.
func chunkKey(sessionID string, index int) []byte {
	key := namespacePrefix(sessionID)
	return binary.BigEndian.AppendUint32(key, uint32(index))
}

func (s *diskStore) Put(_ context.Context, sessionID string, index int, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(sessionID, index), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store chunk %d of %s: %w", index, sessionID, err)
	}
	return nil
}

func (s *diskStore) Get(_ context.Context, sessionID string, index int) ([]byte, error) {
	var data []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(sessionID, index))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return data, nil
}

func (s *diskStore) Delete(_ context.Context, sessionID string, index int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(chunkKey(sessionID, index))
	})
}

// DeleteNamespace removes the session's keys through a write batch.
// DropPrefix would block writes to every other session while it runs.
func (s *diskStore) DeleteNamespace(_ context.Context, sessionID string) error {
	prefix := namespacePrefix(sessionID)
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan chunks of %s: %w", sessionID, err)
	}
	if len(keys) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("failed to delete chunks of %s: %w", sessionID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", sessionID, err)
	}
	return nil
}

func (s *diskStore) List(_ context.Context, sessionID string) ([]ChunkRecord, error) {
	prefix := namespacePrefix(sessionID)
	var records []ChunkRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != len(prefix)+4 {
				continue
			}
			records = append(records, ChunkRecord{
				SessionID: sessionID,
				Index:     int(binary.BigEndian.Uint32(key[len(prefix):])),
				Size:      int(item.ValueSize()),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks of %s: %w", sessionID, err)
	}
	return records, nil
}

func (s *diskStore) Close() error {
	return s.db.Close()
}
