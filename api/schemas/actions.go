// File: api/schemas/actions.go
package schemas

import "fmt"

// ActionType enumerates every browser manipulation the agent can request.
// The set is closed: the executor switches exhaustively over these values and
// rejects anything else, so adding a new kind is a compile-visible change.
type ActionType string

const (
	ActionMouseMove      ActionType = "mouse_move"
	ActionLeftClick      ActionType = "left_click"
	ActionRightClick     ActionType = "right_click"
	ActionMiddleClick    ActionType = "middle_click"
	ActionDoubleClick    ActionType = "double_click"
	ActionLeftClickDrag  ActionType = "left_click_drag"
	ActionTypeText       ActionType = "type"
	ActionKey            ActionType = "key"
	ActionScreenshot     ActionType = "screenshot"
	ActionCursorPosition ActionType = "cursor_position"
	ActionClose          ActionType = "close"
)

// AllActionTypes lists the closed action vocabulary, in tool-spec order.
var AllActionTypes = []ActionType{
	ActionMouseMove,
	ActionLeftClick,
	ActionRightClick,
	ActionMiddleClick,
	ActionDoubleClick,
	ActionLeftClickDrag,
	ActionTypeText,
	ActionKey,
	ActionScreenshot,
	ActionCursorPosition,
	ActionClose,
}

// Point is a coordinate pair in logical (model-facing) pixels unless a
// component documents otherwise. The executor owns the translation to device
// pixels via the configured scale factor.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Action is an atomic intent to manipulate the browser. Coordinates and Text
// are optional at the wire level; Validate enforces the per-type requirements.
type Action struct {
	Type        ActionType `json:"type"`
	Coordinates *Point     `json:"coordinates,omitempty"`
	Text        string     `json:"text,omitempty"`
}

// RequiresExplicitCoordinates reports whether the action must carry its own
// coordinate pair. Click variants may omit coordinates and act at the
// session's last-known mouse position instead.
func (a Action) RequiresExplicitCoordinates() bool {
	switch a.Type {
	case ActionMouseMove, ActionLeftClickDrag:
		return true
	default:
		return false
	}
}

// AcceptsPositionFallback reports whether the action may substitute the
// session's last-known mouse position when no coordinates are supplied.
func (a Action) AcceptsPositionFallback() bool {
	switch a.Type {
	case ActionLeftClick, ActionRightClick, ActionMiddleClick, ActionDoubleClick:
		return true
	default:
		return false
	}
}

// RequiresText reports whether the action must carry a non-empty text payload.
func (a Action) RequiresText() bool {
	return a.Type == ActionTypeText || a.Type == ActionKey
}

// Validate checks the per-type parameter invariants. A violation is a caller
// error, never a retryable fault; the browser must not be touched afterwards.
func (a Action) Validate() error {
	known := false
	for _, t := range AllActionTypes {
		if a.Type == t {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	if a.RequiresExplicitCoordinates() && a.Coordinates == nil {
		return fmt.Errorf("action %q requires coordinates", a.Type)
	}
	if a.RequiresText() && a.Text == "" {
		return fmt.Errorf("action %q requires a text payload", a.Type)
	}
	return nil
}

// OutcomeKind discriminates the two shapes an action result can take.
type OutcomeKind string

const (
	OutcomeText  OutcomeKind = "text"
	OutcomeImage OutcomeKind = "image"
)

// Size is a width/height pair in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ScreenshotDimensions carries both the captured device-pixel size and the
// scaled logical size reported to the model, so callers can map coordinates
// between the two spaces.
type ScreenshotDimensions struct {
	Original Size `json:"original"`
	Scaled   Size `json:"scaled"`
}

// ActionOutcome is the result of one executed action: either a text
// acknowledgement or a base64-encoded PNG payload with its dimensions.
type ActionOutcome struct {
	Kind       OutcomeKind           `json:"kind"`
	Text       string                `json:"text,omitempty"`
	Data       string                `json:"data,omitempty"`
	Dimensions *ScreenshotDimensions `json:"dimensions,omitempty"`
}

// TextOutcome builds a plain text acknowledgement.
func TextOutcome(format string, args ...interface{}) *ActionOutcome {
	return &ActionOutcome{Kind: OutcomeText, Text: fmt.Sprintf(format, args...)}
}
