// File: internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MissioAI/browserpilot/api/schemas"
	"github.com/MissioAI/browserpilot/internal/config"
	"github.com/MissioAI/browserpilot/internal/executor"
	"github.com/MissioAI/browserpilot/internal/transcript"
)

// scriptedModel returns queued turns in order and records the history it saw.
type scriptedModel struct {
	turns     []*schemas.ModelTurn
	histories [][]schemas.Message
	err       error
}

func (m *scriptedModel) Generate(_ context.Context, history []schemas.Message, _ []schemas.ToolSpec) (*schemas.ModelTurn, error) {
	if m.err != nil {
		return nil, m.err
	}
	snapshot := make([]schemas.Message, len(history))
	copy(snapshot, history)
	m.histories = append(m.histories, snapshot)

	if len(m.turns) == 0 {
		return &schemas.ModelTurn{Text: "out of script"}, nil
	}
	turn := m.turns[0]
	m.turns = m.turns[1:]
	return turn, nil
}

// scriptedRunner succeeds by default; action types listed in fail error out
// with an execution fault.
type scriptedRunner struct {
	executed []schemas.Action
	fail     map[schemas.ActionType]bool
}

func (r *scriptedRunner) Execute(_ context.Context, _ string, action schemas.Action) (*schemas.ActionOutcome, error) {
	r.executed = append(r.executed, action)
	if r.fail[action.Type] {
		return nil, executor.NewFault(executor.CodeExecutionFailure, "scripted failure for %s", action.Type)
	}
	return schemas.TextOutcome("ok: %s", action.Type), nil
}

// failingStore rejects every append.
type failingStore struct{}

func (failingStore) CreateSession(context.Context, string) (string, error) {
	return "", errors.New("store down")
}

func (failingStore) Append(context.Context, string, schemas.Step) error {
	return errors.New("store down")
}

func agentCfg(maxSteps int) config.AgentConfig {
	return config.AgentConfig{MaxSteps: maxSteps, ScaleFactor: 1.0, MouseMoveSteps: 20}
}

func toolTurn(text string, actions ...schemas.Action) *schemas.ModelTurn {
	turn := &schemas.ModelTurn{Text: text}
	for i, a := range actions {
		turn.ToolCalls = append(turn.ToolCalls, schemas.ToolCall{
			ID:     fmt.Sprintf("call-%d", i),
			Name:   "computer",
			Action: a,
		})
	}
	return turn
}

func TestRun_ImmediateFinalAnswer(t *testing.T) {
	model := &scriptedModel{turns: []*schemas.ModelTurn{{Text: "All done."}}}
	store := transcript.NewMemoryStore()
	o := NewOrchestrator(zaptest.NewLogger(t), model, &scriptedRunner{}, store, agentCfg(40))

	result, err := o.Run(context.Background(), "sess", "do nothing", nil)
	require.NoError(t, err)

	assert.Equal(t, schemas.ReasonFinalAnswer, result.Reason)
	assert.Equal(t, "All done.", result.Response)
	assert.Equal(t, 1, result.StepCount)

	steps := store.Steps("sess")
	require.Len(t, steps, 1)
	assert.Equal(t, schemas.StepAssistant, steps[0].Role)
}

func TestRun_ToolCallsThenFinal(t *testing.T) {
	model := &scriptedModel{turns: []*schemas.ModelTurn{
		toolTurn("Taking a look.", schemas.Action{Type: schemas.ActionScreenshot}),
		{Text: "The page shows cats."},
	}}
	runner := &scriptedRunner{}
	store := transcript.NewMemoryStore()
	o := NewOrchestrator(zaptest.NewLogger(t), model, runner, store, agentCfg(40))

	result, err := o.Run(context.Background(), "sess", "search for cats", nil)
	require.NoError(t, err)

	assert.Equal(t, schemas.ReasonFinalAnswer, result.Reason)
	assert.Equal(t, "The page shows cats.", result.Response)
	assert.Equal(t, 2, result.StepCount)
	require.Len(t, runner.executed, 1)

	// Persisted order: assistant step with its calls, tool step with results,
	// final assistant step.
	steps := store.Steps("sess")
	require.Len(t, steps, 3)
	assert.Equal(t, schemas.StepAssistant, steps[0].Role)
	require.Len(t, steps[0].ToolCalls, 1)
	assert.Equal(t, schemas.StepTool, steps[1].Role)
	require.Len(t, steps[1].ToolResults, 1)
	assert.Equal(t, "call-0", steps[1].ToolResults[0].CallID)
	assert.False(t, steps[1].ToolResults[0].IsError)
	assert.Equal(t, schemas.StepAssistant, steps[2].Role)

	// The second generation saw the assistant turn and the tool results.
	require.Len(t, model.histories, 2)
	second := model.histories[1]
	require.Len(t, second, 3)
	assert.Equal(t, schemas.RoleUser, second[0].Role)
	assert.Equal(t, schemas.RoleAssistant, second[1].Role)
	assert.Equal(t, schemas.RoleTool, second[2].Role)
}

func TestRun_StepBudgetExhaustionIsSoft(t *testing.T) {
	// The model never stops asking for screenshots.
	turns := make([]*schemas.ModelTurn, 10)
	for i := range turns {
		turns[i] = toolTurn(fmt.Sprintf("step %d", i), schemas.Action{Type: schemas.ActionScreenshot})
	}
	model := &scriptedModel{turns: turns}
	store := transcript.NewMemoryStore()
	o := NewOrchestrator(zaptest.NewLogger(t), model, &scriptedRunner{}, store, agentCfg(3))

	result, err := o.Run(context.Background(), "sess", "loop forever", nil)
	require.NoError(t, err)

	assert.Equal(t, schemas.ReasonStepBudget, result.Reason)
	assert.Equal(t, 3, result.StepCount)
	// The last produced text is returned even without a final answer.
	assert.Equal(t, "step 2", result.Response)
}

func TestRun_WallClockBudgetExhaustion(t *testing.T) {
	model := &scriptedModel{turns: []*schemas.ModelTurn{{Text: "never reached"}}}
	cfg := agentCfg(40)
	cfg.WallClockBudget = time.Nanosecond
	o := NewOrchestrator(zaptest.NewLogger(t), model, &scriptedRunner{}, transcript.NewMemoryStore(), cfg)

	result, err := o.Run(context.Background(), "sess", "task", nil)
	require.NoError(t, err)
	assert.Equal(t, schemas.ReasonWallClockBudget, result.Reason)
	assert.Equal(t, 0, result.StepCount)
}

func TestRun_ActionFaultBecomesErrorResultAndLoopContinues(t *testing.T) {
	model := &scriptedModel{turns: []*schemas.ModelTurn{
		toolTurn("Clicking.", schemas.Action{Type: schemas.ActionLeftClick, Coordinates: &schemas.Point{X: 1, Y: 1}}),
		{Text: "Recovered."},
	}}
	runner := &scriptedRunner{fail: map[schemas.ActionType]bool{schemas.ActionLeftClick: true}}
	store := transcript.NewMemoryStore()
	o := NewOrchestrator(zaptest.NewLogger(t), model, runner, store, agentCfg(40))

	result, err := o.Run(context.Background(), "sess", "task", nil)
	require.NoError(t, err)
	assert.Equal(t, schemas.ReasonFinalAnswer, result.Reason)

	steps := store.Steps("sess")
	require.Len(t, steps, 3)
	require.Len(t, steps[1].ToolResults, 1)
	assert.True(t, steps[1].ToolResults[0].IsError)
	assert.Contains(t, steps[1].ToolResults[0].Outcome.Text, "Action failed")
}

// sessionFaultRunner simulates an unreachable browser.
type sessionFaultRunner struct{}

func (sessionFaultRunner) Execute(context.Context, string, schemas.Action) (*schemas.ActionOutcome, error) {
	return nil, executor.NewFault(executor.CodeSessionFailure, "launch failed")
}

func TestRun_SessionFaultIsFatal(t *testing.T) {
	model := &scriptedModel{turns: []*schemas.ModelTurn{
		toolTurn("trying", schemas.Action{Type: schemas.ActionScreenshot}),
		{Text: "never reached"},
	}}
	o := NewOrchestrator(zaptest.NewLogger(t), model, sessionFaultRunner{},
		transcript.NewMemoryStore(), agentCfg(40))

	_, err := o.Run(context.Background(), "sess", "task", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser session unusable")
}

func TestRun_ModelErrorIsFatal(t *testing.T) {
	model := &scriptedModel{err: errors.New("api down")}
	o := NewOrchestrator(zaptest.NewLogger(t), model, &scriptedRunner{}, transcript.NewMemoryStore(), agentCfg(40))

	_, err := o.Run(context.Background(), "sess", "task", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api down")
}

func TestRun_PersistenceErrorIsFatal(t *testing.T) {
	model := &scriptedModel{turns: []*schemas.ModelTurn{
		toolTurn("step", schemas.Action{Type: schemas.ActionScreenshot}),
	}}
	runner := &scriptedRunner{}
	o := NewOrchestrator(zaptest.NewLogger(t), model, runner, failingStore{}, agentCfg(40))

	_, err := o.Run(context.Background(), "sess", "task", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
	// Persistence fails before execution: nothing may have touched the browser.
	assert.Empty(t, runner.executed)
}

func TestRun_CancelledContextStopsTheLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{turns: []*schemas.ModelTurn{{Text: "unreachable"}}}
	o := NewOrchestrator(zaptest.NewLogger(t), model, &scriptedRunner{}, transcript.NewMemoryStore(), agentCfg(40))

	_, err := o.Run(ctx, "sess", "task", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, model.histories)
}

func TestRun_StepHookSeesPersistedSteps(t *testing.T) {
	model := &scriptedModel{turns: []*schemas.ModelTurn{
		toolTurn("working", schemas.Action{Type: schemas.ActionScreenshot}),
		{Text: "done"},
	}}
	var seen []schemas.StepRole
	o := NewOrchestrator(zaptest.NewLogger(t), model, &scriptedRunner{},
		transcript.NewMemoryStore(), agentCfg(40),
		WithStepHook(func(step schemas.Step) { seen = append(seen, step.Role) }))

	_, err := o.Run(context.Background(), "sess", "task", nil)
	require.NoError(t, err)
	assert.Equal(t, []schemas.StepRole{schemas.StepAssistant, schemas.StepTool, schemas.StepAssistant}, seen)
}

func TestRun_MarkerAnnotationsAreExtracted(t *testing.T) {
	model := &scriptedModel{turns: []*schemas.ModelTurn{{
		Text: "Intent Frame: open the search page\nVisual State: blank results list\nDone.",
	}}}
	store := transcript.NewMemoryStore()
	o := NewOrchestrator(zaptest.NewLogger(t), model, &scriptedRunner{}, store, agentCfg(40))

	_, err := o.Run(context.Background(), "sess", "task", nil)
	require.NoError(t, err)

	steps := store.Steps("sess")
	require.Len(t, steps, 1)
	assert.Equal(t, "open the search page", steps[0].Annotations["intent_frame"])
	assert.Equal(t, "blank results list", steps[0].Annotations["visual_state"])
}
