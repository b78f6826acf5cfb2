// Package retry retries upstream operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts,omitempty"`
	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay,omitempty"`
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay,omitempty"`
	// Factor is the multiplier for exponential backoff.
	Factor float64 `yaml:"factor" json:"factor,omitempty"`
	// Jitter scales each delay by a random factor in [0.5, 1.5).
	Jitter bool `yaml:"jitter" json:"jitter,omitempty"`
}

// DefaultPolicy returns the policy used for upstream fetches.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Factor <= 0 {
		p.Factor = 2.0
	}
	return p
}

// Backoff returns the un-jittered delay after the given failed attempt
// (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt <= 0 {
		attempt = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Factor, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Notify is called before sleeping after a failed attempt.
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a permanent error, the attempts
// are exhausted or ctx is done. It returns the number of attempts made and
// the last error.
func Do(ctx context.Context, p Policy, op func(attempt int) error, notify Notify) (int, error) {
	p = p.withDefaults()

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt - 1, ctxErr
		}

		err = op(attempt)
		if err == nil {
			return attempt, nil
		}
		if IsPermanent(err) || attempt == p.MaxAttempts {
			return attempt, err
		}

		wait := p.Backoff(attempt)
		if p.Jitter {
			wait = time.Duration(float64(wait) * (0.5 + rand.Float64())) // #nosec G404 -- jitter does not require cryptographic randomness
		}
		if hint, ok := RetryAfter(err); ok && hint > wait {
			wait = min(hint, p.MaxDelay)
		}
		if notify != nil {
			notify(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return p.MaxAttempts, err
}

// DoWithValue is Do for operations that produce a value.
func DoWithValue[T any](ctx context.Context, p Policy, op func(attempt int) (T, error), notify Notify) (T, int, error) {
	var value T
	attempts, err := Do(ctx, p, func(attempt int) error {
		var opErr error
		value, opErr = op(attempt)
		return opErr
	}, notify)
	return value, attempts, err
}

// PermanentError is an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps an error to indicate it should not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is permanent.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// DelayError carries a server-requested minimum wait, such as an HTTP
// Retry-After header.
type DelayError struct {
	Err   error
	After time.Duration
}

func (e *DelayError) Error() string { return e.Err.Error() }

func (e *DelayError) Unwrap() error { return e.Err }

// After wraps err with a minimum wait before the next attempt.
func After(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &DelayError{Err: err, After: d}
}

// RetryAfter extracts the wait carried by a DelayError.
func RetryAfter(err error) (time.Duration, bool) {
	var delay *DelayError
	if errors.As(err, &delay) && delay.After > 0 {
		return delay.After, true
	}
	return 0, false
}
