// File: internal/browser/registry.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/MissioAI/browserpilot/api/schemas"
)

// Handle bundles the live page and its overlay channel as produced by a
// launcher.
type Handle struct {
	Page    schemas.PagePrimitives
	Overlay schemas.OverlayChannel
}

// LaunchFunc produces a fresh browser handle for a session. The registry
// injects it so tests can substitute a fake page without touching Chrome.
type LaunchFunc func(ctx context.Context, sessionID string) (*Handle, error)

// Session is one live browser keyed by session id. It owns the session's
// last-known mouse position: position state is scoped here and never shared
// across sessions, so concurrent sessions cannot corrupt each other's
// coordinate-relative actions.
type Session struct {
	id      string
	page    schemas.PagePrimitives
	overlay schemas.OverlayChannel

	mu     sync.Mutex
	mouse  schemas.Point
	placed bool
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Page returns the session's page primitives.
func (s *Session) Page() schemas.PagePrimitives { return s.page }

// Overlay returns the session's overlay channel (never nil).
func (s *Session) Overlay() schemas.OverlayChannel { return s.overlay }

// MousePosition returns the last-known cursor position in device pixels and
// whether any move or click has established it yet.
func (s *Session) MousePosition() (schemas.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mouse, s.placed
}

// SetMousePosition records the cursor position after a completed move/click.
// Only the action executor mutates this.
func (s *Session) SetMousePosition(p schemas.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mouse = p
	s.placed = true
}

// Registry maps session ids to live browser handles. Creation is lazy and
// serialized per id, teardown is explicit and idempotent.
type Registry struct {
	log    *zap.Logger
	launch LaunchFunc

	mu       sync.RWMutex
	sessions map[string]*Session
	flight   singleflight.Group
}

// NewRegistry builds a registry around the given launcher. The registry is an
// explicitly constructed, injected dependency so multiple isolated instances
// can coexist in one test process.
func NewRegistry(logger *zap.Logger, launch LaunchFunc) *Registry {
	return &Registry{
		log:      logger.Named("registry"),
		launch:   launch,
		sessions: make(map[string]*Session),
	}
}

// Peek returns the session for id without creating one.
func (r *Registry) Peek(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Ensure returns the existing handle for the id, launching and registering a
// new browser when absent. Concurrent calls for one id share a single launch;
// a failed launch registers nothing and the error propagates to every waiter.
func (r *Registry) Ensure(ctx context.Context, sessionID string) (*Session, error) {
	if s, ok := r.Peek(sessionID); ok {
		return s, nil
	}

	v, err, _ := r.flight.Do(sessionID, func() (interface{}, error) {
		// Re-check: another flight may have registered between Peek and Do.
		if s, ok := r.Peek(sessionID); ok {
			return s, nil
		}

		handle, err := r.launch(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser for session %s: %w", sessionID, err)
		}

		overlay := handle.Overlay
		if overlay == nil {
			overlay = NopOverlay{}
		}
		s := &Session{id: sessionID, page: handle.Page, overlay: overlay}

		r.mu.Lock()
		r.sessions[sessionID] = s
		r.mu.Unlock()

		r.log.Info("Browser session created", zap.String("session_id", sessionID))
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Close releases the browser for the id and removes the registry entry.
// Closing an unknown id is a no-op.
func (r *Registry) Close(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.log.Info("Browser session closed", zap.String("session_id", sessionID))
	return s.page.Close(ctx)
}

// CloseAll tears down every live session; used at process shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for id, s := range sessions {
		if err := s.page.Close(ctx); err != nil {
			r.log.Warn("Failed to close browser session",
				zap.String("session_id", id), zap.Error(err))
		}
	}
}
