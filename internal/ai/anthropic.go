package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// AnthropicClient adapts the Anthropic Messages API to the Completer
// interface. Tool calls map to tool_use blocks and tool results to
// tool_result blocks inside a user turn.
type AnthropicClient struct {
	apiKey string
	model  string
	cfg    clientConfig
}

// NewAnthropicClient returns a Completer that calls the Anthropic API.
//   - apiKey: your ANTHROPIC_API_KEY
//   - model:  e.g. "claude-sonnet-4-5"
func NewAnthropicClient(apiKey, model string, opts ...Option) *AnthropicClient {
	return &AnthropicClient{
		apiKey: apiKey,
		model:  model,
		cfg:    newConfig("https://api.anthropic.com", opts),
	}
}

// ─── ANTHROPIC API SHAPES ─────────────────────────────────────────────────────

type anthropicRequest struct {
	Model      string             `json:"model"`
	MaxTokens  int                `json:"max_tokens"`
	System     string             `json:"system,omitempty"`
	Messages   []anthropicMessage `json:"messages"`
	Tools      []anthropicTool    `json:"tools,omitempty"`
	ToolChoice *anthropicChoice   `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

// anthropicBlock is the union of the text, tool_use and tool_result content
// blocks.
type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

type anthropicChoice struct {
	Type string `json:"type"`
}

type anthropicResponse struct {
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ─── IMPLEMENTATION ───────────────────────────────────────────────────────────

// Ready returns ErrNotConfigured when no API key is set.
func (c *AnthropicClient) Ready() error {
	if c.apiKey == "" {
		return fmt.Errorf("anthropic: %w", ErrNotConfigured)
	}
	return nil
}

// Complete converts the transcript to Messages API form and returns the reply.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Message, error) {
	if err := c.Ready(); err != nil {
		return Message{}, err
	}

	body := toAnthropicRequest(req)
	body.Model = c.model
	if body.MaxTokens == 0 {
		body.MaxTokens = defaultMaxTokens
	}

	parsed, err := c.call(ctx, body)
	if err != nil {
		return Message{}, err
	}

	out := Message{Role: RoleAssistant}
	var text []string
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			args := block.Input
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	out.Content = strings.Join(text, "\n")
	return out, nil
}

// call sends one request to the Messages API.
func (c *AnthropicClient) call(ctx context.Context, reqBody anthropicRequest) (anthropicResponse, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return anthropicResponse{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.baseURL, "/")+"/v1/messages",
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return anthropicResponse{}, fmt.Errorf("anthropic: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.cfg.httpClient.Do(req)
	if err != nil {
		return anthropicResponse{}, transportError("anthropic", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes)) // 1 MB cap
	if err != nil {
		return anthropicResponse{}, transportError("anthropic", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return anthropicResponse{}, &APIError{Provider: "anthropic", StatusCode: resp.StatusCode, Message: fmt.Sprintf("%.200s", respBytes)}
		}
		return anthropicResponse{}, &APIError{Provider: "anthropic", Message: "unmarshal response", Err: err}
	}

	if parsed.Error != nil {
		return anthropicResponse{}, &APIError{Provider: "anthropic", StatusCode: resp.StatusCode, Type: parsed.Error.Type, Message: parsed.Error.Message}
	}

	if resp.StatusCode != http.StatusOK {
		return anthropicResponse{}, &APIError{Provider: "anthropic", StatusCode: resp.StatusCode, Message: fmt.Sprintf("%.200s", respBytes)}
	}

	if len(parsed.Content) == 0 {
		return anthropicResponse{}, &APIError{Provider: "anthropic", Message: "no content in response"}
	}

	return parsed, nil
}

// toAnthropicRequest folds system messages into the top-level system prompt
// and groups consecutive tool results into a single user turn, which is what
// the Messages API requires after an assistant tool_use turn.
func toAnthropicRequest(req Request) anthropicRequest {
	out := anthropicRequest{MaxTokens: req.MaxTokens}

	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)

		case RoleTool:
			block := anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}
			if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == "user" && isToolResultTurn(out.Messages[n-1]) {
				out.Messages[n-1].Content = append(out.Messages[n-1].Content, block)
				continue
			}
			out.Messages = append(out.Messages, anthropicMessage{Role: "user", Content: []anthropicBlock{block}})

		case RoleAssistant:
			var blocks []anthropicBlock
			if m.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: objectOrEmpty(tc.Arguments)})
			}
			out.Messages = append(out.Messages, anthropicMessage{Role: "assistant", Content: blocks})

		default:
			out.Messages = append(out.Messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicBlock{{Type: "text", Text: m.Content}},
			})
		}
	}
	out.System = strings.Join(system, "\n\n")

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = &anthropicChoice{Type: "auto"}
	}
	return out
}

func isToolResultTurn(m anthropicMessage) bool {
	return len(m.Content) > 0 && m.Content[0].Type == "tool_result"
}

// objectOrEmpty returns args when it is a JSON object and {} otherwise:
// tool_use input must be an object even when the model produced garbage.
func objectOrEmpty(args json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(args, &obj); err != nil || obj == nil {
		return json.RawMessage("{}")
	}
	return args
}
