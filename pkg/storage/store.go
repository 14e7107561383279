package storage

import (
	"context"
	"errors"
)

var ErrChunkNotFound = errors.New("chunk not found")

// ChunkRecord describes one stored fragment.
type ChunkRecord struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Size      int    `json:"size"`
}

// ChunkStore is scratch space for upload fragments, namespaced by session.
// Writes to distinct (session, index) keys may run concurrently.
type ChunkStore interface {
	Put(ctx context.Context, sessionID string, index int, data []byte) error
	Get(ctx context.Context, sessionID string, index int) ([]byte, error)
	// Delete removes one chunk. A missing chunk is not an error.
	Delete(ctx context.Context, sessionID string, index int) error
	// DeleteNamespace removes every chunk of the session. It is idempotent.
	DeleteNamespace(ctx context.Context, sessionID string) error
	// List returns the session's chunks ordered by index.
	List(ctx context.Context, sessionID string) ([]ChunkRecord, error)
	Close() error
}
