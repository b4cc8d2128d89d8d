// File: internal/llmclient/anthropic.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/MissioAI/browserpilot/api/schemas"
	"github.com/MissioAI/browserpilot/internal/config"
)

const (
	anthropicVersion = "2023-06-01"
	computerUseBeta  = "computer-use-2024-10-22"
	computerToolType = "computer_20241022"
	computerToolName = "computer"

	maxRetries = 4
)

// Client talks to the Anthropic Messages API with the computer-use beta
// enabled. It implements schemas.ModelClient.
type Client struct {
	log        *zap.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	system     string
}

var _ schemas.ModelClient = (*Client)(nil)

// NewClient builds a Messages API client from the LLM configuration.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		log:        logger.Named("llm"),
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		system:     cfg.SystemPrompt,
	}
}

// ComputerToolSpec describes the computer-use tool for a given viewport. The
// advertised display size is the logical space the model reasons in: the
// device viewport scaled by the coordinate scale factor.
func ComputerToolSpec(browserCfg config.BrowserConfig, scaleFactor float64) schemas.ToolSpec {
	return schemas.ToolSpec{
		Name:            computerToolName,
		Type:            computerToolType,
		DisplayWidthPx:  int(math.Round(float64(browserCfg.ViewportWidth) * scaleFactor)),
		DisplayHeightPx: int(math.Round(float64(browserCfg.ViewportHeight) * scaleFactor)),
	}
}

// Wire types for the Messages API.

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
	Tools     []apiTool    `json:"tools,omitempty"`
}

type apiMessage struct {
	Role    string     `json:"role"`
	Content []apiBlock `json:"content"`
}

type apiTool struct {
	Type            string          `json:"type,omitempty"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	InputSchema     json.RawMessage `json:"input_schema,omitempty"`
	DisplayWidthPx  int             `json:"display_width_px,omitempty"`
	DisplayHeightPx int             `json:"display_height_px,omitempty"`
}

type apiBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "tool_use"
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// type == "image"
	Source *apiImageSource `json:"source,omitempty"`
}

type apiImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type apiResponse struct {
	Content    []apiBlock `json:"content"`
	StopReason string     `json:"stop_reason"`
	Error      *apiError  `json:"error,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// computerInput is the argument shape the computer tool emits.
type computerInput struct {
	Action     string    `json:"action"`
	Coordinate []float64 `json:"coordinate,omitempty"`
	Text       string    `json:"text,omitempty"`
}

// Generate sends the conversation and returns the model's next turn. Rate
// limits and server errors are retried with exponential backoff; every other
// failure surfaces immediately.
func (c *Client) Generate(ctx context.Context, history []schemas.Message, tools []schemas.ToolSpec) (*schemas.ModelTurn, error) {
	req, err := c.buildRequest(history, tools)
	if err != nil {
		return nil, err
	}
	payload, err := jsoniter.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var resp *apiResponse
	operation := func() error {
		r, opErr := c.post(ctx, payload)
		if opErr != nil {
			return opErr
		}
		resp = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return c.parseTurn(resp)
}

func (c *Client) post(ctx context.Context, payload []byte) (*apiResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("anthropic-beta", computerUseBeta)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500 {
		c.log.Warn("Model API transient failure, will retry",
			zap.Int("status", httpResp.StatusCode))
		return nil, fmt.Errorf("model API returned status %d", httpResp.StatusCode)
	}
	if httpResp.StatusCode != http.StatusOK {
		var apiResp apiResponse
		if jsoniter.Unmarshal(body, &apiResp) == nil && apiResp.Error != nil {
			return nil, backoff.Permanent(fmt.Errorf("model API error (%s): %s",
				apiResp.Error.Type, apiResp.Error.Message))
		}
		return nil, backoff.Permanent(fmt.Errorf("model API returned status %d", httpResp.StatusCode))
	}

	var apiResp apiResponse
	if err := jsoniter.Unmarshal(body, &apiResp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return &apiResp, nil
}

func (c *Client) buildRequest(history []schemas.Message, tools []schemas.ToolSpec) (*apiRequest, error) {
	req := &apiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    c.system,
	}

	for _, t := range tools {
		req.Tools = append(req.Tools, apiTool{
			Type:            t.Type,
			Name:            t.Name,
			Description:     t.Description,
			InputSchema:     t.InputSchema,
			DisplayWidthPx:  t.DisplayWidthPx,
			DisplayHeightPx: t.DisplayHeightPx,
		})
	}

	for _, m := range history {
		switch m.Role {
		case schemas.RoleSystem:
			// The API carries the system prompt as a top-level field.
			if req.System == "" {
				req.System = m.Content
			} else {
				req.System += "\n\n" + m.Content
			}

		case schemas.RoleUser:
			req.Messages = append(req.Messages, apiMessage{
				Role:    "user",
				Content: []apiBlock{{Type: "text", Text: m.Content}},
			})

		case schemas.RoleAssistant:
			var blocks []apiBlock
			if m.Content != "" {
				blocks = append(blocks, apiBlock{Type: "text", Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				input := call.Input
				if len(input) == 0 {
					encoded, err := jsoniter.Marshal(actionToInput(call.Action))
					if err != nil {
						return nil, fmt.Errorf("failed to encode tool input: %w", err)
					}
					input = encoded
				}
				blocks = append(blocks, apiBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: input,
				})
			}
			req.Messages = append(req.Messages, apiMessage{Role: "assistant", Content: blocks})

		case schemas.RoleTool:
			// Tool results travel back as user-authored tool_result blocks.
			var blocks []apiBlock
			for _, result := range m.ToolResults {
				content, err := outcomeContent(result.Outcome)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, apiBlock{
					Type:      "tool_result",
					ToolUseID: result.CallID,
					Content:   content,
					IsError:   result.IsError,
				})
			}
			req.Messages = append(req.Messages, apiMessage{Role: "user", Content: blocks})

		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return req, nil
}

// outcomeContent renders an action outcome as tool_result content: plain text
// for acknowledgements, a base64 image block for screenshots.
func outcomeContent(outcome schemas.ActionOutcome) (json.RawMessage, error) {
	switch outcome.Kind {
	case schemas.OutcomeImage:
		blocks := []apiBlock{{
			Type: "image",
			Source: &apiImageSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      outcome.Data,
			},
		}}
		return jsoniter.Marshal(blocks)
	default:
		return jsoniter.Marshal(outcome.Text)
	}
}

func (c *Client) parseTurn(resp *apiResponse) (*schemas.ModelTurn, error) {
	if resp.Error != nil {
		return nil, fmt.Errorf("model API error (%s): %s", resp.Error.Type, resp.Error.Message)
	}

	turn := &schemas.ModelTurn{StopReason: resp.StopReason}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if turn.Text != "" {
				turn.Text += "\n"
			}
			turn.Text += block.Text

		case "tool_use":
			action, err := parseComputerInput(block.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to parse tool input for call %s: %w", block.ID, err)
			}
			turn.ToolCalls = append(turn.ToolCalls, schemas.ToolCall{
				ID:     block.ID,
				Name:   block.Name,
				Action: action,
				Input:  block.Input,
			})
		}
	}
	return turn, nil
}

// parseComputerInput converts the computer tool's argument object into a
// typed action. Validation happens downstream; this only maps shapes.
func parseComputerInput(raw json.RawMessage) (schemas.Action, error) {
	var in computerInput
	if err := jsoniter.Unmarshal(raw, &in); err != nil {
		return schemas.Action{}, err
	}

	action := schemas.Action{Type: schemas.ActionType(in.Action), Text: in.Text}
	if len(in.Coordinate) >= 2 {
		action.Coordinates = &schemas.Point{X: in.Coordinate[0], Y: in.Coordinate[1]}
	}
	return action, nil
}

// actionToInput reverses parseComputerInput for replaying history.
func actionToInput(a schemas.Action) computerInput {
	in := computerInput{Action: string(a.Type), Text: a.Text}
	if a.Coordinates != nil {
		in.Coordinate = []float64{a.Coordinates.X, a.Coordinates.Y}
	}
	return in
}
