// Package retry runs operations with exponential backoff and jitter.
// Only errors marked recoverable are retried; anything else fails fast.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseWait   = 1 * time.Second
)

// RecoverableError wraps an error that is safe to retry.
type RecoverableError struct {
	err error
}

func (e *RecoverableError) Error() string { return e.err.Error() }

func (e *RecoverableError) Unwrap() error { return e.err }

// NewRecoverableError marks err as retryable.
func NewRecoverableError(err error) error {
	return &RecoverableError{err: err}
}

// IsRecoverable reports whether err (or anything it wraps) is retryable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var re *RecoverableError
	return errors.As(err, &re)
}

type config struct {
	maxRetries int
	baseWait   time.Duration
}

// Option customizes retry behavior.
type Option func(*config)

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithBaseWait sets the first backoff interval. Subsequent waits double.
func WithBaseWait(d time.Duration) Option {
	return func(c *config) { c.baseWait = d }
}

// Do executes f, retrying recoverable failures with exponential backoff and
// a small random jitter. The last error is returned unwrapped of its
// recoverable marker so callers see the original failure.
func Do(ctx context.Context, f func() error, opts ...Option) error {
	c := &config{
		maxRetries: DefaultMaxRetries,
		baseWait:   DefaultBaseWait,
	}
	for _, opt := range opts {
		opt(c)
	}

	var lastError error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(c.baseWait) * math.Pow(2, float64(attempt-1)))
			jitter := time.Duration(rand.Float64() * float64(backoff) * 0.1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}
		err := f()
		if err == nil {
			return nil
		}
		lastError = err
		if !IsRecoverable(err) {
			return err
		}
	}
	var re *RecoverableError
	if errors.As(lastError, &re) {
		return re.Unwrap()
	}
	return lastError
}
