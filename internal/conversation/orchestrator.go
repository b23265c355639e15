// Package conversation drives the multi-turn tool-calling exchange that
// produces the narrative report for a location.
//
// Each Step is a transition from one State to the next: it sends the
// transcript and tool catalogue to the model, appends the reply, and either
// runs the requested tools or marks the conversation terminal. Run loops Step
// until the model stops asking for tools or the iteration cap is reached.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nyashahama/geoanalyzer/internal/ai"
	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/tools"
)

// DefaultMaxIterations bounds the number of model round trips per analysis.
const DefaultMaxIterations = 10

var (
	// ErrIterationLimitExceeded is returned when the model is still asking
	// for tools after the last permitted round trip.
	ErrIterationLimitExceeded = errors.New("conversation: iteration limit exceeded")

	// ErrEmptyNarrative is returned when the model finishes without text.
	ErrEmptyNarrative = errors.New("conversation: model returned an empty report")
)

// Dispatcher is the slice of tools.Registry the orchestrator needs.
type Dispatcher interface {
	Describe() []tools.Definition
	Dispatch(ctx context.Context, name string, args json.RawMessage) tools.Result
}

// State is one snapshot of the conversation. Step never modifies the State
// it is given.
type State struct {
	Messages   []ai.Message
	Iterations int
	Terminal   bool
	Narrative  string
}

// Options tunes an Orchestrator. Zero values select the defaults.
type Options struct {
	MaxIterations int
	MaxTokens     int
}

// Orchestrator is safe for concurrent use; all per-analysis data lives in
// State.
type Orchestrator struct {
	llm        ai.Completer
	dispatcher Dispatcher
	opts       Options
	logger     *slog.Logger
}

func New(llm ai.Completer, dispatcher Dispatcher, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	return &Orchestrator{
		llm:        llm,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger.With("component", "conversation"),
	}
}

// Ready reports whether the model client has credentials, so callers can
// fail before doing any other work.
func (o *Orchestrator) Ready() error { return ai.Ready(o.llm) }

// MaxIterations reports the configured cap.
func (o *Orchestrator) MaxIterations() int { return o.opts.MaxIterations }

// Step performs one model round trip.
func (o *Orchestrator) Step(ctx context.Context, s State) (State, error) {
	if s.Terminal {
		return s, nil
	}
	if s.Iterations >= o.opts.MaxIterations {
		return s, fmt.Errorf("%w (%d round trips)", ErrIterationLimitExceeded, s.Iterations)
	}

	next := State{
		Messages:   append(make([]ai.Message, 0, len(s.Messages)+4), s.Messages...),
		Iterations: s.Iterations + 1,
	}

	start := time.Now()
	reply, err := o.llm.Complete(ctx, ai.Request{
		Messages:  next.Messages,
		Tools:     toolSpecs(o.dispatcher.Describe()),
		MaxTokens: o.opts.MaxTokens,
	})
	if err != nil {
		return s, fmt.Errorf("conversation: round trip %d: %w", next.Iterations, err)
	}
	reply.Role = ai.RoleAssistant
	next.Messages = append(next.Messages, reply)

	o.logger.Debug("model replied",
		"iteration", next.Iterations,
		"tool_calls", len(reply.ToolCalls),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if len(reply.ToolCalls) == 0 {
		next.Terminal = true
		next.Narrative = reply.Content
		return next, nil
	}

	next.Messages = append(next.Messages, o.runTools(ctx, reply.ToolCalls)...)
	return next, nil
}

// runTools dispatches every call concurrently and returns the tool messages
// in the order the model requested them.
func (o *Orchestrator) runTools(ctx context.Context, calls []ai.ToolCall) []ai.Message {
	out := make([]ai.Message, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			res := o.dispatcher.Dispatch(ctx, call.Name, call.Arguments)
			out[i] = ai.Message{Role: ai.RoleTool, ToolCallID: call.ID, Content: res.Content()}
			return nil
		})
	}
	_ = g.Wait() // Dispatch reports failures as ErrorResults, never as errors
	return out
}

// Run analyses one location from a fresh State and returns the narrative.
func (o *Orchestrator) Run(ctx context.Context, at geo.Coordinates, address string) (string, error) {
	s := NewState(at, address)
	for !s.Terminal {
		var err error
		if s, err = o.Step(ctx, s); err != nil {
			return "", err
		}
	}
	if s.Narrative == "" {
		return "", ErrEmptyNarrative
	}
	o.logger.Info("narrative complete", "coords", at.String(), "iterations", s.Iterations)
	return s.Narrative, nil
}

func toolSpecs(defs []tools.Definition) []ai.ToolSpec {
	specs := make([]ai.ToolSpec, 0, len(defs))
	for _, d := range defs {
		specs = append(specs, ai.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return specs
}
