// Package apperr defines the closed error taxonomy used across eventsync.
//
// Every failure that crosses a component boundary is one of five kinds:
//   - ValidationError: permanent input defect, never retried
//   - TimeoutError: an attempt exceeded its budget
//   - ConnectionError: transport or upstream availability failure
//   - GenerationError: the generation capability failed, or anything unclassified
//   - RateLimitError: caller quota exhausted, never retried
package apperr

import (
	"fmt"
	"time"
)

// Kind identifies an error kind.
type Kind int

const (
	KindGeneration Kind = iota
	KindValidation
	KindTimeout
	KindConnection
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "generation"
	}
}

// Error is implemented only by the kinds in this package.
type Error interface {
	error
	Kind() Kind
	sealed()
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %q", e.Field, e.Value)
}

func (e *ValidationError) Kind() Kind { return KindValidation }
func (e *ValidationError) sealed()    {}

// TimeoutError reports an attempt that did not finish within Budget.
// Budget is 0 when the timeout was detected from an underlying error, which
// is kept in Err.
type TimeoutError struct {
	Budget time.Duration
	Err    error
}

func (e *TimeoutError) Error() string {
	switch {
	case e.Budget > 0:
		return fmt.Sprintf("operation timed out after %dms", e.Budget.Milliseconds())
	case e.Err != nil:
		return fmt.Sprintf("operation timed out: %v", e.Err)
	}
	return "operation timed out"
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Kind() Kind { return KindTimeout }
func (e *TimeoutError) sealed()    {}

// ConnectionError reports a failure talking to an upstream endpoint.
// StatusCode is 0 when no response was received.
type ConnectionError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("connection to %s failed with status %d", e.Endpoint, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("connection to %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("connection to %s failed", e.Endpoint)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
func (e *ConnectionError) Kind() Kind    { return KindConnection }
func (e *ConnectionError) sealed()       {}

// GenerationError wraps a failure of the generation capability or any
// error that could not be classified more precisely.
type GenerationError struct {
	Cause   error
	Context string
}

func (e *GenerationError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("generation failed (%s): %v", e.Context, e.Cause)
	}
	return fmt.Sprintf("generation failed: %v", e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }
func (e *GenerationError) Kind() Kind    { return KindGeneration }
func (e *GenerationError) sealed()       {}

// RateLimitError reports an exhausted caller quota.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets at %s", e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Kind() Kind { return KindRateLimit }
func (e *RateLimitError) sealed()    {}

// RetryAfter returns the time left until the quota window resets.
func (e *RateLimitError) RetryAfter(now time.Time) time.Duration {
	d := e.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
