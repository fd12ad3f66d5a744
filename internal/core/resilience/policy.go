// Package resilience runs operations with per-attempt timeouts and
// retry-with-backoff.
//
// This package contains:
//   - Policy: retry and backoff settings for one resilient call
//   - WithTimeout: the per-attempt timeout guard
//   - Do: the retry executor, composing WithTimeout inside every attempt
package resilience

import (
	"math"
	"time"
)

// Policy defines retry behavior for a resilient call.
type Policy struct {
	// Name labels the operation in logs and metrics.
	Name string
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// AttemptTimeout bounds each attempt separately. Zero disables the guard.
	AttemptTimeout time.Duration
	// OnRetry is called with the failed attempt number (1-based) before each wait.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the standard generation policy: 3 retries with
// waits of 1s, 3s, 9s capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		Name:         "call",
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   3,
	}
}

// Delay returns the wait before retry number retry (0-indexed).
func (p Policy) Delay(retry int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(retry))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Config is the file form of a Policy.
type Config struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	Multiplier     float64       `yaml:"multiplier"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// Policy builds a named policy from c.
func (c Config) Policy(name string) Policy {
	return Policy{
		Name:           name,
		MaxRetries:     c.MaxRetries,
		InitialDelay:   c.InitialDelay,
		MaxDelay:       c.MaxDelay,
		Multiplier:     c.Multiplier,
		AttemptTimeout: c.AttemptTimeout,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Name == "" {
		p.Name = "call"
	}
	return p
}
