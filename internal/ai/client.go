// Package ai talks to chat-completion endpoints that support function
// calling. The conversation package drives it through the Completer
// interface; concrete implementations exist for OpenAI-compatible APIs
// (OpenAI, DeepSeek) and the Anthropic Messages API.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ─── ERRORS ───────────────────────────────────────────────────────────────────

var (
	// ErrNotConfigured means no API key is set. It is returned before any
	// network traffic.
	ErrNotConfigured = errors.New("ai: no API key configured")

	// ErrUpstream covers transport failures, non-2xx responses, API error
	// bodies and responses with no usable choice.
	ErrUpstream = errors.New("ai: upstream error")
)

// APIError is a failed completion call. It matches ErrUpstream under
// errors.Is.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	case e.StatusCode != 0 && e.Type != "":
		return fmt.Sprintf("%s: API error %d %s: %s", e.Provider, e.StatusCode, e.Type, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}

// ─── MESSAGES ─────────────────────────────────────────────────────────────────

// Role tags a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function invocation requested by the model. Arguments is
// the raw JSON the model produced; it is validated by the tool registry, not
// here.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one transcript entry. Assistant messages carry Content and/or
// ToolCalls; tool messages carry ToolCallID and a JSON Content.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolSpec describes a callable function. Parameters must marshal to a JSON
// schema object.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// Request is one model round trip. Tool choice is always "auto".
type Request struct {
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// Completer is the interface the conversation orchestrator uses. Tests inject
// a stub that returns scripted replies.
//
// Implementations must be safe to call concurrently and must return
// ErrNotConfigured, without calling out, when they have no credentials.
type Completer interface {
	Complete(ctx context.Context, req Request) (Message, error)
}

// ReadyChecker is implemented by completers that can tell, without a round
// trip, whether Complete would fail with ErrNotConfigured.
type ReadyChecker interface {
	Ready() error
}

// Ready reports whether c has credentials. Completers that cannot tell are
// assumed ready.
func Ready(c Completer) error {
	if c == nil {
		return ErrNotConfigured
	}
	if rc, ok := c.(ReadyChecker); ok {
		return rc.Ready()
	}
	return nil
}

// ─── OPTIONS ──────────────────────────────────────────────────────────────────

const (
	defaultMaxTokens = 4096
	maxResponseBytes = 1 << 20
	requestTimeout   = 90 * time.Second
)

type clientConfig struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises a client.
type Option func(*clientConfig)

// WithBaseURL overrides the API root, e.g. for a proxy or a test server.
func WithBaseURL(u string) Option {
	return func(c *clientConfig) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient replaces the default client, which times out after 90s.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func newConfig(defaultBase string, opts []Option) clientConfig {
	cfg := clientConfig{
		baseURL:    defaultBase,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// transportError keeps caller cancellation recognisable.
func transportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", provider, err)
	}
	return &APIError{Provider: provider, Message: "http request", Err: err}
}
