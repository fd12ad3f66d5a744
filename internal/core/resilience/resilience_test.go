package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/eventsync/internal/core/apperr"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		Name:         "test",
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   3,
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 3*time.Second, p.Delay(1))
	assert.Equal(t, 9*time.Second, p.Delay(2))
	assert.Equal(t, 10*time.Second, p.Delay(3))
}

func TestDo_AttemptsMaxRetriesPlusOne(t *testing.T) {
	for _, n := range []int{0, 1, 3, 5} {
		var calls int32
		permanent := &apperr.ConnectionError{Endpoint: "graph", StatusCode: 503}

		_, err := Do(context.Background(), fastPolicy(n), func(ctx context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "", permanent
		})

		assert.Same(t, permanent, err, "last error must be returned unchanged")
		assert.Equal(t, int32(n+1), atomic.LoadInt32(&calls), "maxRetries=%d", n)
	}
}

func TestDo_ValidationIsNotRetried(t *testing.T) {
	var calls, retries int
	p := Policy{
		MaxRetries:   3,
		InitialDelay: time.Hour,
		Multiplier:   3,
		OnRetry:      func(int, error) { retries++ },
	}

	start := time.Now()
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, &apperr.ValidationError{Field: "eventBasics"}
	})

	var vErr *apperr.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 1, calls)
	assert.Zero(t, retries)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDo_RateLimitIsNotRetried(t *testing.T) {
	var calls int
	_, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, &apperr.RateLimitError{ResetAt: time.Now()}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SucceedsAfterConnectionFailures(t *testing.T) {
	var calls int
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, err error) {
		retried = append(retried, attempt)
		assert.Equal(t, apperr.KindConnection, apperr.KindOf(err))
	}

	got, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", &apperr.ConnectionError{Endpoint: "llm"}
		}
		return "config", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "config", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_TimeoutPerAttempt(t *testing.T) {
	var calls int32
	p := fastPolicy(2)
	p.AttemptTimeout = 20 * time.Millisecond

	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		// The third attempt gets its own fresh window.
		time.Sleep(5 * time.Millisecond)
		return 7, nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDo_StopsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy(10)
	p.InitialDelay = time.Hour
	p.MaxDelay = time.Hour
	p.OnRetry = func(int, error) { cancel() }

	_, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		return 0, errors.New("connection refused")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeout_ReturnsWithinBudget(t *testing.T) {
	budget := 30 * time.Millisecond
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := WithTimeout(context.Background(), budget, func(ctx context.Context) (int, error) {
		// Ignores its context on purpose.
		<-release
		return 1, nil
	})
	elapsed := time.Since(start)

	var tErr *apperr.TimeoutError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, budget, tErr.Budget)
	assert.Less(t, elapsed, budget+200*time.Millisecond)
}

func TestWithTimeout_CancelsAbandonedOperation(t *testing.T) {
	cancelled := make(chan struct{})

	_, err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	})

	require.Error(t, err)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("operation context was not cancelled")
	}
}

func TestWithTimeout_PassesThroughResult(t *testing.T) {
	got, err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	got, err = WithTimeout(context.Background(), 0, func(ctx context.Context) (string, error) {
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		return "unguarded", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "unguarded", got)
}
