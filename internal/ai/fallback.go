package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FallbackCompleter wraps two Completer implementations. It calls the primary
// first; if that returns an error it logs the failure and tries the
// secondary. The pairing is chosen in main.go.
type FallbackCompleter struct {
	primary   Completer
	secondary Completer
	logger    *slog.Logger
}

// NewFallbackCompleter returns a Completer that calls primary and, on
// failure, falls back to secondary. Either argument may be nil: if primary is
// nil it goes straight to secondary; if secondary is nil and primary fails,
// the primary error is returned. With both nil every call fails with
// ErrNotConfigured.
func NewFallbackCompleter(primary, secondary Completer, logger *slog.Logger) *FallbackCompleter {
	return &FallbackCompleter{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Ready succeeds when either side has credentials.
func (f *FallbackCompleter) Ready() error {
	var errs []error
	for _, c := range []Completer{f.primary, f.secondary} {
		if c == nil {
			continue
		}
		err := Ready(c)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return ErrNotConfigured
	}
	return errors.Join(errs...)
}

// Complete tries the primary Completer. Cancellation is never retried.
func (f *FallbackCompleter) Complete(ctx context.Context, req Request) (Message, error) {
	if f.primary == nil && f.secondary == nil {
		return Message{}, ErrNotConfigured
	}

	if f.primary != nil {
		msg, err := f.primary.Complete(ctx, req)
		if err == nil {
			return msg, nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return Message{}, err
		}
		if f.secondary == nil {
			return Message{}, fmt.Errorf("ai: primary failed and no secondary configured: %w", err)
		}
		f.logger.Warn("ai: primary completer failed, trying secondary",
			"error", err,
			"messages", len(req.Messages),
		)
	}

	return f.secondary.Complete(ctx, req)
}
