package geodata

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// firstSuccess calls fn against each endpoint in order and returns the first
// success. Endpoints are never raced: public Overpass mirrors ask clients not
// to fan out.
//
// wait, when set, runs under ctx before each attempt; only fn is bounded by
// timeout, so queueing for a rate-limit token never eats into the attempt.
func firstSuccess[T any](
	ctx context.Context,
	endpoints []string,
	timeout time.Duration,
	wait func(ctx context.Context, endpoint string) error,
	fn func(ctx context.Context, endpoint string) (T, error),
) (T, error) {
	var zero T
	if len(endpoints) == 0 {
		return zero, fmt.Errorf("%w: no endpoints configured", ErrServiceUnavailable)
	}

	var errs []error
	for _, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		if wait != nil {
			if err := wait(ctx, ep); err != nil {
				if ctx.Err() != nil {
					return zero, ctx.Err()
				}
				errs = append(errs, fmt.Errorf("%s: %w", ep, err))
				continue
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		v, err := fn(attemptCtx, ep)
		cancel()
		if err == nil {
			return v, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return zero, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", ep, err))
	}
	return zero, fmt.Errorf("%w: all endpoints failed: %w", ErrServiceUnavailable, errors.Join(errs...))
}
