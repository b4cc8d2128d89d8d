// File: internal/executor/executor.go
package executor

import (
	"context"
	"encoding/base64"
	"math"

	"go.uber.org/zap"

	"github.com/MissioAI/browserpilot/api/schemas"
	"github.com/MissioAI/browserpilot/internal/browser"
	"github.com/MissioAI/browserpilot/internal/config"
)

// Executor translates validated actions into page primitive calls. It owns
// the logical-to-device coordinate translation: the model reasons in logical
// pixels (device times the scale factor), the page consumes device pixels.
type Executor struct {
	log       *zap.Logger
	registry  *browser.Registry
	scale     float64
	moveSteps int
}

// NewExecutor wires the executor to a session registry. Scale factor and
// mouse interpolation granularity come from the agent configuration.
func NewExecutor(logger *zap.Logger, registry *browser.Registry, cfg config.AgentConfig) *Executor {
	return &Executor{
		log:       logger.Named("executor"),
		registry:  registry,
		scale:     cfg.ScaleFactor,
		moveSteps: cfg.MouseMoveSteps,
	}
}

// toDevice converts a logical (model-facing) coordinate to device pixels.
func (e *Executor) toDevice(p schemas.Point) schemas.Point {
	return schemas.Point{X: p.X / e.scale, Y: p.Y / e.scale}
}

// toLogical converts a device coordinate back to the model's logical space.
func (e *Executor) toLogical(p schemas.Point) schemas.Point {
	return schemas.Point{X: p.X * e.scale, Y: p.Y * e.scale}
}

// ScaledSize reports the logical dimensions for a captured device-pixel size.
func (e *Executor) ScaledSize(original schemas.Size) schemas.Size {
	return schemas.Size{
		Width:  int(math.Round(float64(original.Width) * e.scale)),
		Height: int(math.Round(float64(original.Height) * e.scale)),
	}
}

// Execute performs one action against the identified session and returns its
// outcome. Validation failures never touch the browser; execution failures
// come back as classified faults the caller can surface without aborting.
func (e *Executor) Execute(ctx context.Context, sessionID string, action schemas.Action) (*schemas.ActionOutcome, error) {
	if err := action.Validate(); err != nil {
		code := CodeInvalidParameters
		known := false
		for _, t := range schemas.AllActionTypes {
			if action.Type == t {
				known = true
				break
			}
		}
		if !known {
			code = CodeUnknownAction
		}
		return nil, WrapFault(code, err, "rejected action %q", action.Type)
	}

	// Position fallback is resolved before any session launch: a click with
	// no coordinates and no established position is a caller error, and
	// launching a browser to discover that would be wasted work.
	if action.AcceptsPositionFallback() && action.Coordinates == nil {
		sess, ok := e.registry.Peek(sessionID)
		if !ok {
			return nil, NewFault(CodeInvalidParameters,
				"action %q has no coordinates and session %q has no mouse position yet",
				action.Type, sessionID)
		}
		if _, placed := sess.MousePosition(); !placed {
			return nil, NewFault(CodeInvalidParameters,
				"action %q has no coordinates and no prior mouse position exists", action.Type)
		}
	}

	if action.Type == schemas.ActionClose {
		if err := e.registry.Close(ctx, sessionID); err != nil {
			return nil, WrapFault(CodeSessionFailure, err, "failed to close session %q", sessionID)
		}
		return schemas.TextOutcome("Browser session closed."), nil
	}

	sess, err := e.registry.Ensure(ctx, sessionID)
	if err != nil {
		return nil, WrapFault(CodeSessionFailure, err, "failed to obtain session %q", sessionID)
	}

	outcome, err := e.dispatch(ctx, sess, action)
	if err != nil {
		sess.Overlay().ShowError(ctx, err.Error())
		return nil, err
	}
	if outcome.Kind == schemas.OutcomeText {
		sess.Overlay().ShowSuccess(ctx, outcome.Text)
	}
	return outcome, nil
}

func (e *Executor) dispatch(ctx context.Context, sess *browser.Session, action schemas.Action) (*schemas.ActionOutcome, error) {
	page := sess.Page()

	var at *schemas.Point
	if action.Coordinates != nil {
		device := e.toDevice(*action.Coordinates)
		at = &device
	}
	sess.Overlay().ShowStep(ctx, string(action.Type), action.Text, at)

	switch action.Type {
	case schemas.ActionMouseMove:
		target := e.toDevice(*action.Coordinates)
		return e.moveMouse(ctx, sess, target)

	case schemas.ActionLeftClick:
		return e.click(ctx, sess, action, schemas.ButtonLeft, 1)
	case schemas.ActionRightClick:
		return e.click(ctx, sess, action, schemas.ButtonRight, 1)
	case schemas.ActionMiddleClick:
		return e.click(ctx, sess, action, schemas.ButtonMiddle, 1)
	case schemas.ActionDoubleClick:
		return e.click(ctx, sess, action, schemas.ButtonLeft, 2)

	case schemas.ActionLeftClickDrag:
		// The drag starts where the cursor last was; a fresh session's cursor
		// sits at the origin, matching the browser's own initial position.
		start, _ := sess.MousePosition()
		target := e.toDevice(*action.Coordinates)
		if err := page.Drag(ctx, start.X, start.Y, target.X, target.Y); err != nil {
			return nil, WrapFault(CodeExecutionFailure, err, "drag failed")
		}
		sess.SetMousePosition(target)
		return schemas.TextOutcome("Dragged to (%.0f, %.0f).", action.Coordinates.X, action.Coordinates.Y), nil

	case schemas.ActionTypeText:
		if err := page.Type(ctx, action.Text); err != nil {
			return nil, WrapFault(CodeExecutionFailure, err, "typing failed")
		}
		return schemas.TextOutcome("Typed %d characters.", len([]rune(action.Text))), nil

	case schemas.ActionKey:
		if err := page.KeyPress(ctx, action.Text); err != nil {
			return nil, WrapFault(CodeExecutionFailure, err, "key press %q failed", action.Text)
		}
		return schemas.TextOutcome("Pressed %q.", action.Text), nil

	case schemas.ActionScreenshot:
		return e.screenshot(ctx, page)

	case schemas.ActionCursorPosition:
		pos, placed := sess.MousePosition()
		if !placed {
			return schemas.TextOutcome("Cursor position: not yet placed."), nil
		}
		logical := e.toLogical(pos)
		return schemas.TextOutcome("Cursor position: (%.0f, %.0f).", logical.X, logical.Y), nil
	}

	// Unreachable after Validate, kept so the switch stays total.
	return nil, NewFault(CodeUnknownAction, "unhandled action type %q", action.Type)
}

// moveMouse walks the cursor from its last-known position to target in fixed
// interpolation steps, committing the position after every intermediate move
// so a mid-path failure leaves an accurate record.
func (e *Executor) moveMouse(ctx context.Context, sess *browser.Session, target schemas.Point) (*schemas.ActionOutcome, error) {
	page := sess.Page()
	start, placed := sess.MousePosition()
	if !placed {
		if err := page.Move(ctx, target.X, target.Y); err != nil {
			return nil, WrapFault(CodeExecutionFailure, err, "mouse move failed")
		}
		sess.SetMousePosition(target)
	} else {
		for i := 1; i <= e.moveSteps; i++ {
			t := float64(i) / float64(e.moveSteps)
			p := schemas.Point{
				X: start.X + (target.X-start.X)*t,
				Y: start.Y + (target.Y-start.Y)*t,
			}
			if err := page.Move(ctx, p.X, p.Y); err != nil {
				return nil, WrapFault(CodeExecutionFailure, err, "mouse move failed at step %d", i)
			}
			sess.SetMousePosition(p)
		}
	}
	logical := e.toLogical(target)
	return schemas.TextOutcome("Moved mouse to (%.0f, %.0f).", logical.X, logical.Y), nil
}

// click resolves the click point from explicit coordinates or the session's
// last-known position, then presses the requested button.
func (e *Executor) click(ctx context.Context, sess *browser.Session, action schemas.Action, button schemas.MouseButton, count int) (*schemas.ActionOutcome, error) {
	var target schemas.Point
	if action.Coordinates != nil {
		target = e.toDevice(*action.Coordinates)
	} else {
		pos, placed := sess.MousePosition()
		if !placed {
			return nil, NewFault(CodeInvalidParameters,
				"action %q has no coordinates and no prior mouse position exists", action.Type)
		}
		target = pos
	}

	if err := sess.Page().Click(ctx, target.X, target.Y, button, count); err != nil {
		return nil, WrapFault(CodeExecutionFailure, err, "%s failed", action.Type)
	}
	sess.SetMousePosition(target)
	logical := e.toLogical(target)
	return schemas.TextOutcome("Performed %s at (%.0f, %.0f).", action.Type, logical.X, logical.Y), nil
}

// screenshot captures the viewport and reports it in the model's logical
// space: when the scale factor is not 1 the PNG is resampled to the scaled
// dimensions so the image the model sees matches the coordinates it emits.
func (e *Executor) screenshot(ctx context.Context, page schemas.PagePrimitives) (*schemas.ActionOutcome, error) {
	shot, err := page.Screenshot(ctx)
	if err != nil {
		return nil, WrapFault(CodeExecutionFailure, err, "screenshot failed")
	}

	original := schemas.Size{Width: shot.Width, Height: shot.Height}
	scaled := e.ScaledSize(original)

	data := shot.PNG
	if scaled != original {
		data, err = resamplePNG(shot.PNG, scaled.Width, scaled.Height)
		if err != nil {
			return nil, WrapFault(CodeExecutionFailure, err, "screenshot resampling failed")
		}
	}

	return &schemas.ActionOutcome{
		Kind: schemas.OutcomeImage,
		Data: base64.StdEncoding.EncodeToString(data),
		Dimensions: &schemas.ScreenshotDimensions{
			Original: original,
			Scaled:   scaled,
		},
	}, nil
}
