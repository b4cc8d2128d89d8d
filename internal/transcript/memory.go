// File: internal/transcript/memory.go
package transcript

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/MissioAI/browserpilot/api/schemas"
)

// MemoryStore is the in-process transcript backend for tests and local runs
// without Postgres.
type MemoryStore struct {
	mu       sync.Mutex
	names    map[string]string
	sessions map[string][]schemas.Step
}

var _ schemas.TranscriptStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty in-memory transcript.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		names:    make(map[string]string),
		sessions: make(map[string][]schemas.Step),
	}
}

// CreateSession registers a session and returns its generated id.
func (m *MemoryStore) CreateSession(_ context.Context, name string) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[id] = name
	m.sessions[id] = nil
	return id, nil
}

// Append records a step. Unknown session ids are registered implicitly so a
// caller-supplied external id works the same as a generated one.
func (m *MemoryStore) Append(_ context.Context, sessionID string, step schemas.Step) error {
	if sessionID == "" {
		return fmt.Errorf("session id must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append(m.sessions[sessionID], step)
	return nil
}

// SessionName returns the name recorded for a session id.
func (m *MemoryStore) SessionName(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.names[sessionID]
}

// Steps returns a copy of the session's log in append order.
func (m *MemoryStore) Steps(sessionID string) []schemas.Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := m.sessions[sessionID]
	out := make([]schemas.Step, len(steps))
	copy(out, steps)
	return out
}
