package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/eventsync/internal/core/apperr"
)

// WithTimeout runs op and stops waiting for it once budget elapses,
// returning an apperr.TimeoutError. The context passed to op is cancelled
// at that point; an op that ignores it may still finish later and its
// result is discarded. A panic inside op is returned as an error.
func WithTimeout[T any](
	ctx context.Context,
	budget time.Duration,
	op func(ctx context.Context) (T, error),
) (T, error) {
	if budget <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		val T
		err error
	}
	// Buffered so a late op can still send after we stopped listening.
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("operation panicked: %v", p)}
			}
		}()
		val, err := op(attemptCtx)
		done <- result{val: val, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, &apperr.TimeoutError{Budget: budget}
		}
		return r.val, r.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &apperr.TimeoutError{Budget: budget}
	}
}
