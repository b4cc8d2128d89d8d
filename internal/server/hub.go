// File: internal/server/hub.go
package server

import (
	"sync"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/MissioAI/browserpilot/api/schemas"
)

// stepEvent is the wire shape pushed to live-view subscribers.
type stepEvent struct {
	Type string       `json:"type"`
	Step schemas.Step `json:"step"`
}

// subscriber wraps one connection with a write lock: gorilla/websocket allows
// a single concurrent writer per connection, and steps from concurrent runs
// can target the same subscriber.
type subscriber struct {
	conn *websocket.Conn

	mu sync.Mutex
}

func (s *subscriber) write(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub fans persisted steps out to websocket subscribers, keyed by session id.
// Delivery is best effort: a slow or broken subscriber is dropped, never
// allowed to stall the agent loop.
type Hub struct {
	log *zap.Logger

	mu   sync.Mutex
	subs map[string]map[*websocket.Conn]*subscriber
}

// NewHub builds an empty fanout hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		log:  logger.Named("hub"),
		subs: make(map[string]map[*websocket.Conn]*subscriber),
	}
}

// Subscribe registers a connection for one session's steps.
func (h *Hub) Subscribe(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*websocket.Conn]*subscriber)
	}
	h.subs[sessionID][conn] = &subscriber{conn: conn}
}

// Unsubscribe removes a connection; closing it is the caller's job.
func (h *Hub) Unsubscribe(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sessionID], conn)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
}

// Publish pushes one step to every subscriber of its session. Failed writes
// evict the subscriber.
func (h *Hub) Publish(step schemas.Step) {
	payload, err := jsoniter.Marshal(stepEvent{Type: "step", Step: step})
	if err != nil {
		h.log.Warn("Failed to encode step event", zap.Error(err))
		return
	}

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs[step.SessionID]))
	for _, sub := range h.subs[step.SessionID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if err := sub.write(payload); err != nil {
			h.log.Debug("Dropping live-view subscriber", zap.Error(err))
			h.Unsubscribe(step.SessionID, sub.conn)
			_ = sub.conn.Close()
		}
	}
}
