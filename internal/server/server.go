// File: internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/MissioAI/browserpilot/api/schemas"
	"github.com/MissioAI/browserpilot/internal/browser"
	"github.com/MissioAI/browserpilot/internal/config"
	"github.com/MissioAI/browserpilot/internal/executor"
	"github.com/MissioAI/browserpilot/internal/pipeline"
)

// Server exposes the agent over HTTP: task submission, direct action control,
// session teardown, and a websocket live view of persisted steps.
type Server struct {
	log      *zap.Logger
	cfg      config.ServerConfig
	pipe     *pipeline.Pipeline
	exec     *executor.Executor
	registry *browser.Registry
	hub      *Hub
	upgrader websocket.Upgrader

	httpServer *http.Server
}

// NewServer wires the HTTP surface around the assembled collaborators.
func NewServer(logger *zap.Logger, cfg config.ServerConfig, pipe *pipeline.Pipeline,
	exec *executor.Executor, registry *browser.Registry, hub *Hub) *Server {
	s := &Server{
		log:      logger.Named("server"),
		cfg:      cfg,
		pipe:     pipe,
		exec:     exec,
		registry: registry,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The live view is a local operator surface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/computer-use", s.handleComputerUse)
	r.Post("/api/computer-control", s.handleComputerControl)
	r.Delete("/api/sessions/{id}", s.handleCloseSession)
	r.Get("/ws/sessions/{id}", s.handleSessionSocket)
	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.log.Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the configured grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleComputerUse runs a full agent task and responds when the loop ends.
func (s *Server) handleComputerUse(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := jsoniter.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.pipe.Run(r.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("Task run failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type controlRequest struct {
	SessionID string         `json:"session_id"`
	Action    schemas.Action `json:"action"`
}

type controlResponse struct {
	SessionID string                 `json:"session_id"`
	Outcome   *schemas.ActionOutcome `json:"outcome"`
}

// handleComputerControl executes a single action outside the agent loop, for
// manual driving and scripted setups.
func (s *Server) handleComputerControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := jsoniter.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	outcome, err := s.exec.Execute(r.Context(), req.SessionID, req.Action)
	if err != nil {
		status := http.StatusInternalServerError
		if executor.IsValidationFault(err) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, controlResponse{SessionID: req.SessionID, Outcome: outcome})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.Close(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "closed"})
}

// handleSessionSocket streams persisted steps for one session until the
// client disconnects.
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	s.hub.Subscribe(id, conn)
	defer func() {
		s.hub.Unsubscribe(id, conn)
		_ = conn.Close()
	}()

	// Reads only serve to detect disconnect; clients send nothing meaningful.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsoniter.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
