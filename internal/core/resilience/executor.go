package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/eventsync/internal/core/apperr"
	"github.com/vietddude/eventsync/internal/metrics"
)

// Do executes op with exponential backoff. Every attempt runs under
// WithTimeout with a fresh p.AttemptTimeout window. Validation and rate
// limit errors are returned after a single attempt; once retries are
// exhausted the last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var (
		result  T
		attempt int
	)

	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		return p.Delay(attempt - 1), false
	})

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		metrics.CallAttempts.WithLabelValues(p.Name).Inc()

		val, err := WithTimeout(ctx, p.AttemptTimeout, op)
		if err == nil {
			result = val
			return nil
		}

		kind := apperr.KindOf(err)
		if kind == apperr.KindTimeout {
			metrics.CallTimeouts.WithLabelValues(p.Name).Inc()
		}

		if !apperr.IsRetryable(err) || attempt > p.MaxRetries {
			return err
		}

		slog.Warn("Attempt failed, retrying",
			"op", p.Name,
			"attempt", attempt,
			"kind", kind.String(),
			"delay", p.Delay(attempt-1),
			"error", err,
		)
		metrics.CallRetries.WithLabelValues(p.Name, kind.String()).Inc()
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
