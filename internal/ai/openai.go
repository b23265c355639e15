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

// OpenAIClient speaks the OpenAI /chat/completions protocol with function
// calling. DeepSeek exposes the same protocol, so it is served by this type
// too.
type OpenAIClient struct {
	provider string
	apiKey   string
	model    string
	cfg      clientConfig
}

// NewOpenAIClient returns a Completer for the OpenAI API.
//   - apiKey: your OPENAI_API_KEY
//   - model:  e.g. "gpt-4o-mini"
func NewOpenAIClient(apiKey, model string, opts ...Option) *OpenAIClient {
	return &OpenAIClient{
		provider: "openai",
		apiKey:   apiKey,
		model:    model,
		cfg:      newConfig("https://api.openai.com/v1", opts),
	}
}

// NewDeepSeekClient returns a Completer for the DeepSeek API.
//   - apiKey: your DEEPSEEK_API_KEY
//   - model:  e.g. "deepseek-chat"
func NewDeepSeekClient(apiKey, model string, opts ...Option) *OpenAIClient {
	return &OpenAIClient{
		provider: "deepseek",
		apiKey:   apiKey,
		model:    model,
		cfg:      newConfig("https://api.deepseek.com/v1", opts),
	}
}

// ─── OPENAI-COMPATIBLE API SHAPES ────────────────────────────────────────────

type openAIRequest struct {
	Model      string          `json:"model"`
	Messages   []openAIMessage `json:"messages"`
	Tools      []openAITool    `json:"tools,omitempty"`
	ToolChoice string          `json:"tool_choice,omitempty"`
	MaxTokens  int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"` // JSON encoded as a string
	} `json:"function"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ─── IMPLEMENTATION ───────────────────────────────────────────────────────────

// Ready returns ErrNotConfigured when no API key is set.
func (c *OpenAIClient) Ready() error {
	if c.apiKey == "" {
		return fmt.Errorf("%s: %w", c.provider, ErrNotConfigured)
	}
	return nil
}

// Complete sends the transcript and tool catalogue and returns the
// assistant's reply.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Message, error) {
	if err := c.Ready(); err != nil {
		return Message{}, err
	}

	body := openAIRequest{
		Model:     c.model,
		Messages:  make([]openAIMessage, 0, len(req.Messages)),
		MaxTokens: req.MaxTokens,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = defaultMaxTokens
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, toOpenAIMessage(m))
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, openAITool{
			Type:     "function",
			Function: openAIFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = "auto"
	}

	parsed, err := c.call(ctx, body)
	if err != nil {
		return Message{}, err
	}
	return fromOpenAIMessage(parsed.Choices[0].Message), nil
}

// call sends one request to the chat completions endpoint.
func (c *OpenAIClient) call(ctx context.Context, reqBody openAIRequest) (openAIResponse, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return openAIResponse{}, fmt.Errorf("%s: marshal request: %w", c.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.baseURL, "/")+"/chat/completions",
		bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return openAIResponse{}, fmt.Errorf("%s: build request: %w", c.provider, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.cfg.httpClient.Do(req)
	if err != nil {
		return openAIResponse{}, transportError(c.provider, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return openAIResponse{}, transportError(c.provider, err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return openAIResponse{}, &APIError{Provider: c.provider, StatusCode: resp.StatusCode, Message: fmt.Sprintf("%.200s", respBytes)}
		}
		return openAIResponse{}, &APIError{Provider: c.provider, Message: "unmarshal response", Err: err}
	}

	if parsed.Error != nil {
		return openAIResponse{}, &APIError{Provider: c.provider, StatusCode: resp.StatusCode, Type: parsed.Error.Type, Message: parsed.Error.Message}
	}

	if resp.StatusCode != http.StatusOK {
		return openAIResponse{}, &APIError{Provider: c.provider, StatusCode: resp.StatusCode, Message: fmt.Sprintf("%.200s", respBytes)}
	}

	if len(parsed.Choices) == 0 {
		return openAIResponse{}, &APIError{Provider: c.provider, Message: "no choices in response"}
	}

	return parsed, nil
}

func toOpenAIMessage(m Message) openAIMessage {
	out := openAIMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}

	// Assistant turns that only call tools carry a null content.
	if m.Content != "" || m.Role != RoleAssistant || len(m.ToolCalls) == 0 {
		content := m.Content
		out.Content = &content
	}
	for _, tc := range m.ToolCalls {
		var call openAIToolCall
		call.ID = tc.ID
		call.Type = "function"
		call.Function.Name = tc.Name
		call.Function.Arguments = string(tc.Arguments)
		if call.Function.Arguments == "" {
			call.Function.Arguments = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out
}

func fromOpenAIMessage(m openAIMessage) Message {
	out := Message{Role: RoleAssistant}
	if m.Content != nil {
		out.Content = *m.Content
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: rawArguments(tc.Function.Arguments),
		})
	}
	return out
}

// rawArguments keeps valid JSON as is. Anything else is wrapped as a JSON
// string so the transcript stays encodable and the registry can reject it
// with a useful message.
func rawArguments(s string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}
