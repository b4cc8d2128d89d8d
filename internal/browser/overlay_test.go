// File: internal/browser/overlay_test.go
package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MissioAI/browserpilot/api/schemas"
)

type recordingRunner struct {
	scripts []string
	err     error
}

func (r *recordingRunner) Evaluate(_ context.Context, js string) error {
	r.scripts = append(r.scripts, js)
	return r.err
}

func TestOverlay_ShowStepMovesCursor(t *testing.T) {
	runner := &recordingRunner{}
	o := NewOverlay(runner, zaptest.NewLogger(t), true)

	o.ShowStep(context.Background(), "left_click", "", &schemas.Point{X: 10, Y: 20})

	require.Len(t, runner.scripts, 1)
	assert.Contains(t, runner.scripts[0], "showBanner")
	assert.Contains(t, runner.scripts[0], "moveCursor(10, 20)")
}

func TestOverlay_TextIsEscaped(t *testing.T) {
	runner := &recordingRunner{}
	o := NewOverlay(runner, zaptest.NewLogger(t), true)

	o.ShowError(context.Background(), `boom"); alert(1); ("`)

	require.Len(t, runner.scripts, 1)
	// The payload must arrive as one quoted JSON string literal.
	assert.Contains(t, runner.scripts[0], `\"); alert(1); (\"`)
}

func TestOverlay_DisabledIsSilent(t *testing.T) {
	runner := &recordingRunner{}
	o := NewOverlay(runner, zaptest.NewLogger(t), false)

	o.ShowStep(context.Background(), "type", "hi", nil)
	o.ShowSuccess(context.Background(), "done")
	o.ShowError(context.Background(), "fail")

	assert.Empty(t, runner.scripts)
}

func TestOverlay_SwallowsScriptErrors(t *testing.T) {
	runner := &recordingRunner{err: errors.New("page is gone")}
	o := NewOverlay(runner, zaptest.NewLogger(t), true)

	// Must not panic or propagate anything.
	o.ShowSuccess(context.Background(), "ok")
}
