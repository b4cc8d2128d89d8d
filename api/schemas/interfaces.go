// File: api/schemas/interfaces.go
package schemas

import "context"

// ModelClient is the LLM provider collaborator. The loop treats it as a black
// box with a single contract: a turn with zero tool calls is the final answer.
type ModelClient interface {
	Generate(ctx context.Context, history []Message, tools []ToolSpec) (*ModelTurn, error)
}

// TranscriptStore is the durable, ordered, append-only step log. It is an
// audit/resume mechanism, not the loop's working memory: no core invariant
// depends on reading past steps mid-loop.
type TranscriptStore interface {
	CreateSession(ctx context.Context, name string) (string, error)
	Append(ctx context.Context, sessionID string, step Step) error
}

// PagePrimitives is the capability surface the executor consumes from the
// browser automation layer. Coordinates here are device pixels; the executor
// performs all logical-to-device translation before calling in.
type PagePrimitives interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) (*Screenshot, error)
	Move(ctx context.Context, x, y float64) error
	Click(ctx context.Context, x, y float64, button MouseButton, clickCount int) error
	Drag(ctx context.Context, fromX, fromY, toX, toY float64) error
	Type(ctx context.Context, text string) error
	KeyPress(ctx context.Context, name string) error
	Close(ctx context.Context) error
}

// OverlayChannel mirrors executor activity into on-page annotations. It is a
// pure side effect: implementations log failures and never return them into
// the control flow.
type OverlayChannel interface {
	ShowStep(ctx context.Context, stepType, text string, at *Point)
	ShowSuccess(ctx context.Context, text string)
	ShowError(ctx context.Context, text string)
}
