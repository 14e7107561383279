package pipeline

import (
	"sync"

	"go.uber.org/zap"

	"notebot/pkg/logging"
)

const subscriberBuffer = 16

// Hub fans run events out to per-session subscribers. The latest
// non-terminal event of each session is replayed to new subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	last   map[string]Event
	logger *zap.Logger
}

var _ Publisher = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		last:   make(map[string]Event),
		logger: logging.OrNop(logger).Named("hub"),
	}
}

// Subscribe returns a channel of events for sessionID and a function that
// cancels the subscription and closes the channel.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	if ev, ok := h.last[sessionID]; ok {
		ch <- ev
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[sessionID], ch)
			if len(h.subs[sessionID]) == 0 {
				delete(h.subs, sessionID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev without blocking. Slow subscribers miss events.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	if ev.Stage.IsTerminal() {
		delete(h.last, ev.SessionID)
	} else {
		h.last[ev.SessionID] = ev
	}
	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				zap.String("session_id", ev.SessionID),
				zap.String("stage", string(ev.Stage)))
		}
	}
	h.mu.Unlock()
}

// Subscribers returns the number of live subscriptions for sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}
