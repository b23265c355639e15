// Package tools is the catalogue of functions the language model may call
// during an analysis. Each tool has a JSON-schema description that is sent to
// the model and a handler that runs it.
//
// Dispatch never fails: unknown tools, malformed arguments, handler errors and
// handler panics all become an ErrorResult, which is fed back to the model as
// the tool's output so it can correct itself.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// Definition is what the model sees for a tool.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Handler runs a tool. args have already been validated against the tool's
// schema. The returned value is marshalled to JSON for the model.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition
	Handler Handler
}

// ErrorKind classifies a failed dispatch.
type ErrorKind string

const (
	KindUnknownTool      ErrorKind = "unknown_tool"
	KindInvalidArguments ErrorKind = "invalid_arguments"
	KindToolFailed       ErrorKind = "tool_failed"
)

// ErrorResult is a failed dispatch as the model sees it.
type ErrorResult struct {
	Tool    string    `json:"tool"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"error"`
}

func (e *ErrorResult) Error() string {
	return fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Kind, e.Message)
}

// Result is the outcome of Dispatch. Exactly one of Value and Err is set.
type Result struct {
	Value any
	Err   *ErrorResult
}

// Content is the JSON text sent back to the model as the tool message.
func (r Result) Content() string {
	var v any = r.Value
	if r.Err != nil {
		v = r.Err
	}
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(&ErrorResult{Kind: KindToolFailed, Message: "result could not be encoded"})
	}
	return string(b)
}

// ─── REGISTRY ─────────────────────────────────────────────────────────────────

var toolNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ErrDuplicateTool is returned by Register for a name already in use.
var ErrDuplicateTool = errors.New("tools: duplicate tool name")

// Registry is safe for concurrent Dispatch. Registration normally happens
// once at startup.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]entry
	order  []string
	logger *slog.Logger
}

type entry struct {
	Tool
	schema *jsonschema.Schema
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]entry),
		logger: logger.With("component", "tools"),
	}
}

// Register adds t. Names must match ^[a-zA-Z0-9_-]{1,64}$, the limit every
// function-calling API in use accepts.
func (r *Registry) Register(t Tool) error {
	if !toolNameRe.MatchString(t.Name) {
		return fmt.Errorf("tools: invalid tool name %q", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: %s: nil handler", t.Name)
	}
	if t.Parameters.Type == "" {
		t.Parameters.Type = "object"
	}
	if t.Parameters.Properties == nil {
		t.Parameters.Properties = map[string]Property{}
	}
	for _, req := range t.Parameters.Required {
		if _, ok := t.Parameters.Properties[req]; !ok {
			return fmt.Errorf("tools: %s: required parameter %q is not declared", t.Name, req)
		}
	}
	sch, err := compileSchema(t.Name, t.Parameters)
	if err != nil {
		return fmt.Errorf("tools: %s: schema: %w", t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
	}
	r.tools[t.Name] = entry{Tool: t, schema: sch}
	r.order = append(r.order, t.Name)
	return nil
}

// Describe lists every tool in registration order.
func (r *Registry) Describe() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Dispatch validates args against the named tool's schema and runs it.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (res Result) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return Result{Err: &ErrorResult{Tool: name, Kind: KindUnknownTool, Message: fmt.Sprintf("no tool named %q", name)}}
	}

	if err := validate(t.schema, args); err != nil {
		r.logger.Warn("tool arguments rejected", "tool", name, "error", err)
		return Result{Err: &ErrorResult{Tool: name, Kind: KindInvalidArguments, Message: err.Error()}}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			res = Result{Err: &ErrorResult{Tool: name, Kind: KindToolFailed, Message: "internal error"}}
		}
	}()

	start := time.Now()
	v, err := t.Handler(ctx, normalizeArgs(args))
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return Result{Err: &ErrorResult{Tool: name, Kind: KindToolFailed, Message: err.Error()}}
	}
	r.logger.Debug("tool ran", "tool", name, "duration_ms", time.Since(start).Milliseconds())
	return Result{Value: v}
}

// Decode unmarshals validated args into T, rejecting unknown fields.
func Decode[T any](args json.RawMessage) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(normalizeArgs(args)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("decode arguments: %w", err)
	}
	return v, nil
}
