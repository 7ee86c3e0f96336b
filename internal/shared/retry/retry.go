// Package retry runs a call under a per-attempt timeout with exponential
// backoff between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds a retried call.
type Policy struct {
	MaxAttempts    int
	Timeout        time.Duration // per attempt; zero means no extra deadline
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

// DefaultPolicy is used by callers that have no configuration of their own.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		Timeout:        3 * time.Second,
		InitialBackoff: 200 * time.Millisecond,
		Multiplier:     2,
		MaxBackoff:     2 * time.Second,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Backoff returns the delay before the given attempt (1-based; attempt 1 has no delay).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 1 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff)
	for i := 2; i < attempt; i++ {
		d *= mult
	}
	delay := time.Duration(d)
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts run
// out or ctx is done. onRetry, if set, is told about every failed attempt that
// will be retried.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if wait := p.Backoff(attempt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), lastErr)
			case <-timer.C:
			}
		}

		err := call(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			var perm *permanentError
			errors.As(err, &perm)
			return perm.err
		}
		lastErr = err
		if ctx.Err() != nil {
			return errors.Join(ctx.Err(), lastErr)
		}
		if attempt < attempts && onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

func call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
