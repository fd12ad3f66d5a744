package apperr

import (
	"context"
	"errors"
	"net"
	"strings"
)

// As finds the first taxonomy error in err's chain.
func As(err error) (Error, bool) {
	var e Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Classify maps err onto the taxonomy. Typed errors pass through; untyped
// errors are matched against timeout and network heuristics and otherwise
// wrapped into a GenerationError that keeps the original cause.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}

	s := strings.ToLower(err.Error())
	switch {
	case containsAny(s, "timeout", "timed out", "deadline exceeded"):
		return &TimeoutError{Err: err}
	case isNetworkMessage(s):
		return &ConnectionError{Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		ce := &ConnectionError{Err: err}
		if opErr.Addr != nil {
			ce.Endpoint = opErr.Addr.String()
		}
		return ce
	}

	return &GenerationError{Cause: err}
}

func isNetworkMessage(s string) bool {
	return containsAny(s,
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"broken pipe",
		"eof",
		"502", "503", "504",
		"bad gateway",
		"service unavailable",
	)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// KindOf returns the taxonomy kind err classifies to.
func KindOf(err error) Kind {
	e, ok := As(Classify(err))
	if !ok {
		return KindGeneration
	}
	return e.Kind()
}

// IsRetryable reports whether another attempt may succeed.
// Cancellation of the caller's own context is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindValidation, KindRateLimit:
		return false
	case KindTimeout, KindConnection, KindGeneration:
		return true
	}
	return false
}
