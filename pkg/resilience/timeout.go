package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout runs fn under a deadline derived from ctx. fn is expected to
// observe ctx; the iteration drivers check it between rounds. A deadline hit
// inside fn is reported as context.DeadlineExceeded naming the operation,
// while cancellation of the parent is passed through unchanged.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(timeoutCtx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded) || timeoutCtx.Err() != nil:
		return fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	default:
		return err
	}
}
