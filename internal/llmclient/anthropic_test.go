// File: internal/llmclient/anthropic_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MissioAI/browserpilot/api/schemas"
	"github.com/MissioAI/browserpilot/internal/config"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(config.LLMConfig{
		APIKey:       "test-key",
		BaseURL:      baseURL,
		Model:        "claude-3-5-sonnet-20241022",
		MaxTokens:    1024,
		APITimeout:   5 * time.Second,
		SystemPrompt: "You drive a browser.",
	}, zaptest.NewLogger(t))
}

func respond(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	_, err := io.WriteString(w, body)
	require.NoError(t, err)
}

func TestGenerate_SendsHeadersAndSystem(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "computer-use-2024-10-22", r.Header.Get("anthropic-beta"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		respond(t, w, `{"content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn"}`)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	turn, err := client.Generate(context.Background(),
		[]schemas.Message{{Role: schemas.RoleUser, Content: "hello"}},
		[]schemas.ToolSpec{{Name: "computer", Type: "computer_20241022", DisplayWidthPx: 1280, DisplayHeightPx: 800}})
	require.NoError(t, err)

	assert.Equal(t, "hi", turn.Text)
	assert.Empty(t, turn.ToolCalls)
	assert.Equal(t, "You drive a browser.", captured["system"])

	tools := captured["tools"].([]interface{})
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]interface{})
	assert.Equal(t, "computer_20241022", tool["type"])
	assert.EqualValues(t, 1280, tool["display_width_px"])
	assert.EqualValues(t, 800, tool["display_height_px"])
}

func TestGenerate_ParsesToolUseBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, `{
			"content": [
				{"type":"text","text":"Clicking the button."},
				{"type":"tool_use","id":"toolu_1","name":"computer",
				 "input":{"action":"left_click","coordinate":[640,400]}}
			],
			"stop_reason":"tool_use"
		}`)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	turn, err := client.Generate(context.Background(),
		[]schemas.Message{{Role: schemas.RoleUser, Content: "click it"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Clicking the button.", turn.Text)
	assert.Equal(t, "tool_use", turn.StopReason)
	require.Len(t, turn.ToolCalls, 1)

	call := turn.ToolCalls[0]
	assert.Equal(t, "toolu_1", call.ID)
	assert.Equal(t, schemas.ActionLeftClick, call.Action.Type)
	require.NotNil(t, call.Action.Coordinates)
	assert.Equal(t, 640.0, call.Action.Coordinates.X)
	assert.Equal(t, 400.0, call.Action.Coordinates.Y)
}

func TestGenerate_ToolResultsTravelAsUserMessages(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		respond(t, w, `{"content":[{"type":"text","text":"ok"}]}`)
	}))
	defer srv.Close()

	history := []schemas.Message{
		{Role: schemas.RoleUser, Content: "task"},
		{Role: schemas.RoleAssistant, Content: "Looking.", ToolCalls: []schemas.ToolCall{{
			ID: "toolu_1", Name: "computer",
			Action: schemas.Action{Type: schemas.ActionScreenshot},
		}}},
		{Role: schemas.RoleTool, ToolResults: []schemas.ToolResult{{
			CallID: "toolu_1",
			Outcome: schemas.ActionOutcome{
				Kind: schemas.OutcomeImage,
				Data: "aW1hZ2U=",
			},
		}}},
	}

	client := testClient(t, srv.URL)
	_, err := client.Generate(context.Background(), history, nil)
	require.NoError(t, err)

	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 3)

	// The assistant turn carries a tool_use block alongside its text.
	assistant := messages[1].(map[string]interface{})
	assert.Equal(t, "assistant", assistant["role"])
	blocks := assistant["content"].([]interface{})
	require.Len(t, blocks, 2)
	assert.Equal(t, "tool_use", blocks[1].(map[string]interface{})["type"])

	// Tool results come back as a user message of tool_result blocks.
	toolMsg := messages[2].(map[string]interface{})
	assert.Equal(t, "user", toolMsg["role"])
	resultBlock := toolMsg["content"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "tool_result", resultBlock["type"])
	assert.Equal(t, "toolu_1", resultBlock["tool_use_id"])

	imageBlock := resultBlock["content"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "image", imageBlock["type"])
	source := imageBlock["source"].(map[string]interface{})
	assert.Equal(t, "base64", source["type"])
	assert.Equal(t, "image/png", source["media_type"])
	assert.Equal(t, "aW1hZ2U=", source["data"])
}

func TestGenerate_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		respond(t, w, `{"content":[{"type":"text","text":"finally"}]}`)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	turn, err := client.Generate(context.Background(),
		[]schemas.Message{{Role: schemas.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "finally", turn.Text)
	assert.Equal(t, 3, attempts)
}

func TestGenerate_ClientErrorsAreNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		respond(t, w, `{"error":{"type":"invalid_request_error","message":"bad tool spec"}}`)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL)
	_, err := client.Generate(context.Background(),
		[]schemas.Message{{Role: schemas.RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad tool spec")
	assert.Equal(t, 1, attempts)
}

func TestComputerToolSpec_ScalesDisplaySize(t *testing.T) {
	spec := ComputerToolSpec(config.BrowserConfig{ViewportWidth: 1280, ViewportHeight: 800}, 0.75)
	assert.Equal(t, "computer", spec.Name)
	assert.Equal(t, "computer_20241022", spec.Type)
	assert.Equal(t, 960, spec.DisplayWidthPx)
	assert.Equal(t, 600, spec.DisplayHeightPx)
}
