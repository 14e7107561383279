package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"notebot/pkg/pipeline"
)

const (
	wsWriteWait   = 10 * time.Second
	wsMaxMessage  = 4096
	wsMaxSessions = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketMessage is the envelope for both directions of /ws.
type WebSocketMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	RunID     string          `json:"run_id,omitempty"`
	Stage     string          `json:"stage,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type wsConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *zap.Logger
}

func (c *wsConn) send(msg WebSocketMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("websocket write failed", zap.Error(err))
	}
}

// WebSocketHandler streams run events for the sessions a client subscribes
// to.
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	c := &wsConn{
		conn:   conn,
		logger: h.logger.With(zap.String("request_id", RequestIDFrom(r.Context()))),
	}

	subs := make(map[string]func())
	var wg sync.WaitGroup
	defer func() {
		for _, cancel := range subs {
			cancel()
		}
		wg.Wait()
	}()

	for {
		var msg WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		switch msg.Type {
		case "subscribe":
			if msg.SessionID == "" {
				c.send(WebSocketMessage{Type: "error", Error: "session_id is required"})
				continue
			}
			if _, ok := subs[msg.SessionID]; ok {
				continue
			}
			if len(subs) >= wsMaxSessions {
				c.send(WebSocketMessage{Type: "error", SessionID: msg.SessionID, Error: "too many subscriptions"})
				continue
			}
			events, cancel := h.hub.Subscribe(msg.SessionID)
			subs[msg.SessionID] = cancel
			c.send(WebSocketMessage{Type: "subscribed", SessionID: msg.SessionID})

			wg.Add(1)
			go func() {
				defer wg.Done()
				h.forwardEvents(c, events)
			}()
		case "ping":
			c.send(WebSocketMessage{Type: "pong"})
		default:
			c.send(WebSocketMessage{
				Type:  "error",
				Error: "Unknown message type",
			})
		}
	}
}

func (h *Handlers) forwardEvents(c *wsConn, events <-chan pipeline.Event) {
	for ev := range events {
		msg := WebSocketMessage{
			SessionID: ev.SessionID,
			RunID:     ev.RunID,
			Stage:     string(ev.Stage),
		}
		switch ev.Stage {
		case pipeline.StageSucceeded:
			msg.Type = "run_complete"
			data, err := json.Marshal(ev.Result)
			if err != nil {
				c.logger.Error("failed to encode run result", zap.Error(err))
				continue
			}
			msg.Data = data
		case pipeline.StageFailed:
			msg.Type = "run_failed"
			msg.Stage = string(ev.FailedAt)
			msg.ErrorKind = ev.ErrorKind
			msg.Error = ev.Error
		default:
			msg.Type = "stage_update"
		}
		c.send(msg)
	}
}
