// Package session tracks chunked uploads from the first chunk to the moment
// the upload is complete and handed to the pipeline.
//
// The session table is guarded by a short-lived table lock that only
// protects map structure. Each session body has its own mutex, so work on
// one session never blocks another. Completion is claimed under the session
// mutex by moving the state from collecting to assembling, which can happen
// once per session no matter how many final chunks race.
package session

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	apperrors "notebot/pkg/errors"
	"notebot/pkg/logging"
	"notebot/pkg/metrics"
	"notebot/pkg/models"
	"notebot/pkg/storage"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Handle describes the session a BeginOrContinue call resolved to.
type Handle struct {
	SessionID        string
	TotalChunks      int
	Created          bool
	MetadataRecorded bool
}

// ChunkAcceptResult reports the effect of one AcceptChunk call.
// CompletionTransition is true for exactly one call per session; only that
// call carries the Session snapshot.
type ChunkAcceptResult struct {
	Received             int
	Total                int
	CompletionTransition bool
	Session              *models.UploadSession
}

type Options struct {
	TTL     time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Manager struct {
	store   storage.ChunkStore
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	expired  map[string]time.Time
}

type entry struct {
	mu        sync.Mutex
	id        string
	total     int
	createdAt time.Time
	received  map[int]struct{}
	metadata  *models.CallMetadata
	state     models.SessionState
	inflight  int
}

func NewManager(store storage.ChunkStore, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:    store,
		ttl:      opts.TTL,
		logger:   logging.OrNop(opts.Logger).Named("session"),
		metrics:  opts.Metrics,
		now:      opts.Now,
		sessions: make(map[string]*entry),
		expired:  make(map[string]time.Time),
	}
}

// BeginOrContinue creates the session on first sight of sessionID. Later
// calls must repeat the same totalChunks; metadata is recorded only if none
// has been recorded yet.
func (m *Manager) BeginOrContinue(sessionID string, totalChunks int, metadata *models.CallMetadata) (Handle, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return Handle{}, apperrors.Newf(apperrors.KindProtocolViolation, "invalid session id %q", sessionID)
	}
	if totalChunks <= 0 {
		return Handle{}, apperrors.Newf(apperrors.KindProtocolViolation, "total_chunks must be positive, got %d", totalChunks)
	}

	m.mu.Lock()
	if _, gone := m.expired[sessionID]; gone {
		m.mu.Unlock()
		return Handle{}, apperrors.Newf(apperrors.KindSessionExpired, "session %s expired, restart the upload under a new session id", sessionID)
	}
	e, ok := m.sessions[sessionID]
	if !ok {
		e = &entry{
			id:        sessionID,
			total:     totalChunks,
			createdAt: m.now(),
			received:  make(map[int]struct{}, totalChunks),
			metadata:  metadata.Clone(),
			state:     models.SessionCollecting,
		}
		m.sessions[sessionID] = e
		m.mu.Unlock()

		m.metrics.SessionOpened()
		m.logger.Info("upload session started",
			zap.String("session_id", sessionID),
			zap.Int("total_chunks", totalChunks),
			zap.Bool("metadata", metadata != nil))
		return Handle{SessionID: sessionID, TotalChunks: totalChunks, Created: true, MetadataRecorded: metadata != nil}, nil
	}
	m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == models.SessionExpired {
		return Handle{}, apperrors.Newf(apperrors.KindSessionExpired, "session %s expired, restart the upload under a new session id", sessionID)
	}
	if e.total != totalChunks {
		return Handle{}, apperrors.Newf(apperrors.KindProtocolViolation,
			"total_chunks mismatch for session %s: recorded %d, got %d", sessionID, e.total, totalChunks)
	}
	if metadata != nil && e.metadata == nil && e.state == models.SessionCollecting {
		e.metadata = metadata.Clone()
		m.logger.Debug("call metadata recorded", zap.String("session_id", sessionID))
	}
	return Handle{SessionID: sessionID, TotalChunks: e.total, MetadataRecorded: e.metadata != nil}, nil
}

// AcceptChunk stores one chunk and marks its index received. Re-sending an
// index overwrites the stored bytes without changing the received count.
// The chunk write itself runs outside the session lock, so different
// indices of one session are written in parallel.
func (m *Manager) AcceptChunk(ctx context.Context, sessionID string, index int, data []byte) (ChunkAcceptResult, error) {
	e := m.lookup(sessionID)
	if e == nil {
		return ChunkAcceptResult{}, apperrors.Newf(apperrors.KindSessionNotFound, "session %s not found", sessionID)
	}

	e.mu.Lock()
	switch {
	case e.state == models.SessionExpired:
		e.mu.Unlock()
		return ChunkAcceptResult{}, apperrors.Newf(apperrors.KindSessionNotFound, "session %s not found", sessionID)
	case e.state != models.SessionCollecting:
		state := e.state
		e.mu.Unlock()
		return ChunkAcceptResult{}, apperrors.Newf(apperrors.KindProtocolViolation,
			"session %s is no longer collecting chunks (state %s)", sessionID, state)
	case index < 0 || index >= e.total:
		total := e.total
		e.mu.Unlock()
		return ChunkAcceptResult{}, apperrors.Newf(apperrors.KindInvalidChunkIndex,
			"chunk index %d outside [0, %d) for session %s", index, total, sessionID)
	}
	e.inflight++
	e.mu.Unlock()

	putErr := m.store.Put(ctx, sessionID, index, data)

	e.mu.Lock()
	e.inflight--
	if putErr != nil {
		// A failed overwrite leaves the earlier copy of a received index in
		// place. If it was the last write in flight it still has to claim.
		if _, stored := e.received[index]; !stored || !e.readyLocked() {
			e.mu.Unlock()
			return ChunkAcceptResult{}, apperrors.Wrapf(putErr, apperrors.KindInternal, "store chunk %d of session %s", index, sessionID)
		}
		m.logger.Warn("re-sent chunk not stored, keeping earlier copy",
			zap.String("session_id", sessionID),
			zap.Int("chunk_index", index),
			zap.Error(putErr))
	} else {
		if e.state == models.SessionExpired {
			e.mu.Unlock()
			// The sweep dropped the namespace while this write was in flight.
			_ = m.store.Delete(ctx, sessionID, index)
			return ChunkAcceptResult{}, apperrors.Newf(apperrors.KindSessionNotFound, "session %s not found", sessionID)
		}
		e.received[index] = struct{}{}
		m.metrics.ChunkAccepted(len(data))
	}
	result := ChunkAcceptResult{Received: len(e.received), Total: e.total}

	// The last writer to finish claims completion, so no write can still be
	// touching the chunk store once assembly starts.
	if !e.readyLocked() {
		e.mu.Unlock()
		m.logger.Debug("chunk accepted",
			zap.String("session_id", sessionID),
			zap.Int("chunk_index", index),
			zap.Int("received", result.Received),
			zap.Int("total_chunks", result.Total))
		return result, nil
	}

	if e.metadata == nil {
		e.state = models.SessionFailed
		e.mu.Unlock()
		m.Teardown(ctx, sessionID)
		return ChunkAcceptResult{}, apperrors.Newf(apperrors.KindProtocolViolation,
			"session %s received every chunk but no call details were supplied", sessionID)
	}

	e.state = models.SessionAssembling
	snapshot := e.snapshot()
	e.mu.Unlock()

	result.CompletionTransition = true
	result.Session = &snapshot
	m.logger.Info("upload complete",
		zap.String("session_id", sessionID),
		zap.Int("total_chunks", result.Total))
	return result, nil
}

// Finish records the outcome of the pipeline run for a claimed session and
// tears it down.
func (m *Manager) Finish(ctx context.Context, sessionID string, runErr error) {
	if e := m.lookup(sessionID); e != nil {
		e.mu.Lock()
		if runErr != nil {
			e.state = models.SessionFailed
		} else {
			e.state = models.SessionCompleted
		}
		e.mu.Unlock()
	}
	m.Teardown(ctx, sessionID)
}

// Teardown forgets the session and deletes its chunk namespace. It is safe
// to call more than once.
func (m *Manager) Teardown(ctx context.Context, sessionID string) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if ok {
		e.mu.Lock()
		state := e.state
		e.mu.Unlock()
		m.metrics.SessionClosed(string(state))
		m.logger.Info("upload session closed",
			zap.String("session_id", sessionID),
			zap.String("state", string(state)))
	}

	if err := m.store.DeleteNamespace(ctx, sessionID); err != nil {
		m.logger.Warn("failed to delete chunk namespace",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// Sweep expires collecting sessions older than the TTL and releases their
// chunks. It returns the number of sessions expired.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	cutoff := now.Add(-m.ttl)

	m.mu.Lock()
	var candidates []*entry
	for _, e := range m.sessions {
		if e.createdAt.Before(cutoff) {
			candidates = append(candidates, e)
		}
	}
	for id, at := range m.expired {
		if at.Before(cutoff) {
			delete(m.expired, id)
		}
	}
	m.mu.Unlock()

	expired := 0
	for _, e := range candidates {
		e.mu.Lock()
		if e.state != models.SessionCollecting {
			e.mu.Unlock()
			continue
		}
		e.state = models.SessionExpired
		received, total := len(e.received), e.total
		e.mu.Unlock()

		m.mu.Lock()
		if m.sessions[e.id] == e {
			delete(m.sessions, e.id)
		}
		m.expired[e.id] = now
		m.mu.Unlock()

		if err := m.store.DeleteNamespace(ctx, e.id); err != nil {
			m.logger.Warn("failed to delete chunk namespace of expired session",
				zap.String("session_id", e.id),
				zap.Error(err))
		}
		m.metrics.SessionClosed(string(models.SessionExpired))
		m.logger.Info("upload session expired",
			zap.String("session_id", e.id),
			zap.Int("received", received),
			zap.Int("total_chunks", total))
		expired++
	}
	return expired
}

// Run sweeps on every tick until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Snapshot returns a copy of the session's current bookkeeping.
func (m *Manager) Snapshot(sessionID string) (models.UploadSession, bool) {
	e := m.lookup(sessionID)
	if e == nil {
		return models.UploadSession{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), true
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(sessionID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

// snapshot must be called with e.mu held.
// readyLocked reports whether every index is stored, no write is in flight
// and nobody has claimed completion yet. e.mu must be held.
func (e *entry) readyLocked() bool {
	return len(e.received) == e.total && e.inflight == 0 && e.state == models.SessionCollecting
}

func (e *entry) snapshot() models.UploadSession {
	indices := lo.Keys(e.received)
	sort.Ints(indices)
	return models.UploadSession{
		SessionID:       e.id,
		TotalChunks:     e.total,
		ReceivedIndices: indices,
		Metadata:        e.metadata.Clone(),
		State:           e.state,
		CreatedAt:       e.createdAt,
	}
}
