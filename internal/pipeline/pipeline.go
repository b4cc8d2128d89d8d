// File: internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MissioAI/browserpilot/api/schemas"
	"github.com/MissioAI/browserpilot/internal/orchestrator"
)

// ErrInvalidRequest tags request rejections so transports can tell a caller
// error apart from breakage.
var ErrInvalidRequest = errors.New("invalid request")

// ChatMessage is the conversational request shape: clients may send a message
// history instead of a bare task string.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one task submission. SessionID is optional: an empty id asks the
// pipeline to create a fresh transcript session. When Task is empty the last
// user message supplies it.
type Request struct {
	SessionID string        `json:"session_id,omitempty"`
	Task      string        `json:"task,omitempty"`
	Messages  []ChatMessage `json:"messages,omitempty"`
}

// Result is the completed run.
type Result struct {
	SessionID string                 `json:"session_id"`
	Response  string                 `json:"response"`
	Reason    schemas.TerminalReason `json:"reason"`
	StepCount int                    `json:"step_count"`
}

// ErrorHook observes a stage failure before it propagates; wired by callers
// that surface progress externally.
type ErrorHook func(stage string, err error)

// SessionCloser releases a session's browser handle. The registry satisfies
// it; the pipeline uses it to tear the browser down when a run aborts.
type SessionCloser interface {
	Close(ctx context.Context, sessionID string) error
}

// Pipeline strings the fixed run stages together: validate the request,
// resolve the transcript session, drive the agent loop. Each stage failure is
// tagged with the stage name so operators can tell rejection from breakage.
type Pipeline struct {
	log    *zap.Logger
	store  schemas.TranscriptStore
	orch   *orchestrator.Orchestrator
	tools  []schemas.ToolSpec
	onErr  ErrorHook
	closer SessionCloser
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithErrorHook registers a stage-failure observer.
func WithErrorHook(h ErrorHook) Option {
	return func(p *Pipeline) { p.onErr = h }
}

// WithSessionCloser wires browser teardown for aborted runs.
func WithSessionCloser(c SessionCloser) Option {
	return func(p *Pipeline) { p.closer = c }
}

// NewPipeline assembles the run pipeline.
func NewPipeline(logger *zap.Logger, store schemas.TranscriptStore,
	orch *orchestrator.Orchestrator, tools []schemas.ToolSpec, opts ...Option) *Pipeline {
	p := &Pipeline{
		log:   logger.Named("pipeline"),
		store: store,
		orch:  orch,
		tools: tools,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type runState struct {
	req    Request
	result *Result
}

type stage struct {
	name string
	run  func(ctx context.Context, st *runState) error
}

// Run takes a request through every stage and returns the completed result.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	st := &runState{req: req}
	stages := []stage{
		{name: "validate", run: p.validate},
		{name: "ensure_session", run: p.ensureSession},
		{name: "execute_loop", run: p.executeLoop},
	}

	for _, s := range stages {
		if err := s.run(ctx, st); err != nil {
			if p.onErr != nil {
				p.onErr(s.name, err)
			}
			p.log.Error("Pipeline stage failed",
				zap.String("stage", s.name), zap.Error(err))
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return st.result, nil
}

func (p *Pipeline) validate(_ context.Context, st *runState) error {
	if strings.TrimSpace(st.req.Task) == "" {
		for i := len(st.req.Messages) - 1; i >= 0; i-- {
			if st.req.Messages[i].Role == "user" && strings.TrimSpace(st.req.Messages[i].Content) != "" {
				st.req.Task = st.req.Messages[i].Content
				break
			}
		}
	}
	if strings.TrimSpace(st.req.Task) == "" {
		return fmt.Errorf("%w: task must not be empty", ErrInvalidRequest)
	}
	return nil
}

func (p *Pipeline) ensureSession(ctx context.Context, st *runState) error {
	if st.req.SessionID != "" {
		return nil
	}
	name := st.req.Task
	// Truncate on a rune boundary so a multi-byte task name stays valid UTF-8.
	if runes := []rune(name); len(runes) > 80 {
		name = string(runes[:80])
	}
	id, err := p.store.CreateSession(ctx, name)
	if err != nil {
		return err
	}
	st.req.SessionID = id
	return nil
}

func (p *Pipeline) executeLoop(ctx context.Context, st *runState) error {
	run, err := p.orch.Run(ctx, st.req.SessionID, st.req.Task, p.tools)
	if err != nil {
		p.releaseSession(st.req.SessionID)
		return err
	}
	st.result = &Result{
		SessionID: run.SessionID,
		Response:  run.Response,
		Reason:    run.Reason,
		StepCount: run.StepCount,
	}
	return nil
}

// releaseSession tears the browser down after a run aborts so a Chrome
// instance never outlives a failed run. Best effort: the run's own error is
// what propagates. Uses a fresh context because the request's may already be
// cancelled, which can be the very reason the run failed.
func (p *Pipeline) releaseSession(sessionID string) {
	if p.closer == nil || sessionID == "" {
		return
	}
	if err := p.closer.Close(context.Background(), sessionID); err != nil {
		p.log.Warn("Failed to release browser session after aborted run",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}
