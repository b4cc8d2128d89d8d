// File: internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MissioAI/browserpilot/api/schemas"
	"github.com/MissioAI/browserpilot/internal/config"
	"github.com/MissioAI/browserpilot/internal/evaluator"
	"github.com/MissioAI/browserpilot/internal/executor"
)

// State names the loop's phase. Transitions are linear within one step:
// awaiting the model, persisting the assistant step, executing its tools,
// persisting their results, then back to awaiting the model.
type State string

const (
	StateAwaitingModel  State = "awaiting_model"
	StatePersisting     State = "persisting"
	StateExecutingTools State = "executing_tools"
	StateTerminal       State = "terminal"
)

// ActionRunner is the slice of the executor the loop needs; tests substitute
// scripted runners here.
type ActionRunner interface {
	Execute(ctx context.Context, sessionID string, action schemas.Action) (*schemas.ActionOutcome, error)
}

// StepHook observes every persisted step. Hooks run after the step is durable
// and must not block for long; the live-view fanout is the intended consumer.
type StepHook func(step schemas.Step)

// Orchestrator drives the generate/persist/execute loop for one task at a
// time. It holds no per-run state: a single instance serves concurrent runs.
type Orchestrator struct {
	log    *zap.Logger
	model  schemas.ModelClient
	runner ActionRunner
	store  schemas.TranscriptStore
	eval   *evaluator.Evaluator
	cfg    config.AgentConfig
	hook   StepHook
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithStepHook registers a post-persist step observer.
func WithStepHook(h StepHook) Option {
	return func(o *Orchestrator) { o.hook = h }
}

// WithEvaluator wires the action-space evaluator so executed outcomes feed
// its reliability tracking.
func WithEvaluator(e *evaluator.Evaluator) Option {
	return func(o *Orchestrator) { o.eval = e }
}

// NewOrchestrator assembles the loop from its injected collaborators.
func NewOrchestrator(logger *zap.Logger, model schemas.ModelClient, runner ActionRunner,
	store schemas.TranscriptStore, cfg config.AgentConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:    logger.Named("orchestrator"),
		model:  model,
		runner: runner,
		store:  store,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the agent loop for one task against one session until the
// model gives a final answer or a budget runs out. Model and persistence
// failures abort the run; action failures are reported back to the model as
// error tool results and the loop continues.
func (o *Orchestrator) Run(ctx context.Context, sessionID, task string, tools []schemas.ToolSpec) (*schemas.RunResult, error) {
	log := o.log.With(zap.String("session_id", sessionID))

	var deadline time.Time
	if o.cfg.WallClockBudget > 0 {
		deadline = time.Now().Add(o.cfg.WallClockBudget)
	}

	history := []schemas.Message{
		{Role: schemas.RoleUser, Content: task},
	}

	lastText := ""
	stepCount := 0

	for iteration := 1; iteration <= o.cfg.MaxSteps; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled: %w", err)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			log.Warn("Wall clock budget exhausted", zap.Int("steps", stepCount))
			return &schemas.RunResult{
				SessionID: sessionID,
				Response:  lastText,
				Reason:    schemas.ReasonWallClockBudget,
				StepCount: stepCount,
			}, nil
		}

		o.transition(log, StateAwaitingModel)
		turn, err := o.model.Generate(ctx, history, tools)
		if err != nil {
			return nil, fmt.Errorf("model generation failed at step %d: %w", iteration, err)
		}
		stepCount++
		if turn.Text != "" {
			lastText = turn.Text
		}

		assistantStep := o.newStep(sessionID, schemas.StepAssistant, turn.Text, turn.ToolCalls, nil)

		// Zero tool calls is the loop's single termination contract: the
		// turn's text is the final answer.
		if len(turn.ToolCalls) == 0 {
			o.transition(log, StatePersisting)
			if err := o.persist(ctx, sessionID, assistantStep); err != nil {
				return nil, err
			}
			o.transition(log, StateTerminal)
			log.Info("Run finished", zap.Int("steps", stepCount))
			return &schemas.RunResult{
				SessionID: sessionID,
				Response:  turn.Text,
				Reason:    schemas.ReasonFinalAnswer,
				StepCount: stepCount,
			}, nil
		}

		// Durability before continuation: the assistant step must be on the
		// record before any of its tool calls touch the browser.
		o.transition(log, StatePersisting)
		if err := o.persist(ctx, sessionID, assistantStep); err != nil {
			return nil, err
		}

		o.transition(log, StateExecutingTools)
		results := make([]schemas.ToolResult, 0, len(turn.ToolCalls))
		for _, call := range turn.ToolCalls {
			result, err := o.runCall(ctx, log, sessionID, task, call)
			if err != nil {
				return nil, err
			}
			results = append(results, result)
		}

		o.transition(log, StatePersisting)
		toolStep := o.newStep(sessionID, schemas.StepTool, "", nil, results)
		if err := o.persist(ctx, sessionID, toolStep); err != nil {
			return nil, err
		}

		history = append(history,
			schemas.Message{Role: schemas.RoleAssistant, Content: turn.Text, ToolCalls: turn.ToolCalls},
			schemas.Message{Role: schemas.RoleTool, ToolResults: results},
		)
	}

	o.transition(log, StateTerminal)
	log.Warn("Step budget exhausted", zap.Int("steps", stepCount))
	return &schemas.RunResult{
		SessionID: sessionID,
		Response:  lastText,
		Reason:    schemas.ReasonStepBudget,
		StepCount: stepCount,
	}, nil
}

// transition logs the loop's phase change; the phases are linear within one
// step and exist so operators can see where a stuck run is spending time.
func (o *Orchestrator) transition(log *zap.Logger, next State) {
	log.Debug("State transition", zap.String("state", string(next)))
}

// runCall executes one tool call. Action faults become error results the
// model can react to on its next turn; a failure to reach the browser session
// itself is fatal and aborts the run.
func (o *Orchestrator) runCall(ctx context.Context, log *zap.Logger, sessionID, task string, call schemas.ToolCall) (schemas.ToolResult, error) {
	outcome, err := o.runner.Execute(ctx, sessionID, call.Action)
	if err != nil {
		if executor.IsSessionFault(err) {
			return schemas.ToolResult{}, fmt.Errorf("browser session unusable: %w", err)
		}
		log.Warn("Action failed",
			zap.String("action", string(call.Action.Type)),
			zap.String("code", string(executor.FaultCode(err))),
			zap.Error(err))
		o.recordOutcome(task, call.Action, false)
		return schemas.ToolResult{
			CallID:  call.ID,
			Outcome: *schemas.TextOutcome("Action failed: %v", err),
			IsError: true,
		}, nil
	}
	o.recordOutcome(task, call.Action, true)
	return schemas.ToolResult{CallID: call.ID, Outcome: *outcome}, nil
}

func (o *Orchestrator) recordOutcome(task string, action schemas.Action, success bool) {
	if o.eval == nil {
		return
	}
	o.eval.RecordOutcome(evaluator.InferPattern(task, action), success)
}

func (o *Orchestrator) newStep(sessionID string, role schemas.StepRole, text string,
	calls []schemas.ToolCall, results []schemas.ToolResult) schemas.Step {
	step := schemas.Step{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Role:        role,
		Text:        text,
		ToolCalls:   calls,
		ToolResults: results,
		CreatedAt:   time.Now().UTC(),
	}
	if role == schemas.StepAssistant {
		step.Annotations = extractMarkers(text)
	}
	return step
}

func (o *Orchestrator) persist(ctx context.Context, sessionID string, step schemas.Step) error {
	if err := o.store.Append(ctx, sessionID, step); err != nil {
		return fmt.Errorf("failed to persist %s step: %w", step.Role, err)
	}
	if o.hook != nil {
		o.hook(step)
	}
	return nil
}
