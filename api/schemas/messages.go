// File: api/schemas/messages.go
package schemas

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation history handed to the model. Tool
// results travel on their own message (RoleTool) so the provider client can
// map them to the wire convention its API expects.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolCall is the model's request to perform one action. Input preserves the
// raw arguments for auditing; Action is the parsed, validated form.
type ToolCall struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Action Action          `json:"action"`
	Input  json.RawMessage `json:"input,omitempty"`
}

// ToolResult is the outcome of exactly one ToolCall, matched by CallID.
// Every call emitted by the model produces exactly one result before the
// loop proceeds to the next model invocation.
type ToolResult struct {
	CallID  string        `json:"call_id"`
	Outcome ActionOutcome `json:"outcome"`
	IsError bool          `json:"is_error,omitempty"`
}

// ModelTurn is one model response. Zero tool calls means the turn's text is
// the final answer; that is the single termination contract the loop relies on.
type ModelTurn struct {
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason,omitempty"`
}

// ToolSpec describes a tool made available to the model. For the computer-use
// tool the provider requires the logical display size the model reasons in.
type ToolSpec struct {
	Name            string          `json:"name"`
	Type            string          `json:"type,omitempty"`
	Description     string          `json:"description,omitempty"`
	InputSchema     json.RawMessage `json:"input_schema,omitempty"`
	DisplayWidthPx  int             `json:"display_width_px,omitempty"`
	DisplayHeightPx int             `json:"display_height_px,omitempty"`
}

// StepRole distinguishes the two persisted step shapes.
type StepRole string

const (
	StepAssistant StepRole = "assistant"
	StepTool      StepRole = "tool"
)

// Step is one persisted record of the agent loop: either assistant reasoning
// (with the tool calls it requested) or the structured results of executing
// those calls. Steps are the system of record for resuming or auditing a run.
type Step struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	Role        StepRole          `json:"role"`
	Text        string            `json:"text,omitempty"`
	ToolCalls   []ToolCall        `json:"tool_calls,omitempty"`
	ToolResults []ToolResult      `json:"tool_results,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TerminalReason records how a loop run ended. Budget exhaustion is a soft
// limit, not a fault: partial progress still has value to the caller.
type TerminalReason string

const (
	ReasonFinalAnswer     TerminalReason = "final_answer"
	ReasonStepBudget      TerminalReason = "step_budget_exhausted"
	ReasonWallClockBudget TerminalReason = "wall_clock_budget_exhausted"
)

// RunResult is what the orchestrator hands back to the pipeline.
type RunResult struct {
	SessionID string         `json:"session_id"`
	Response  string         `json:"response"`
	Reason    TerminalReason `json:"reason"`
	StepCount int            `json:"step_count"`
}
