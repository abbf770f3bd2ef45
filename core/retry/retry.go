// Package retry provides the bounded retry-with-backoff executor shared by
// every remote call in the orchestrator. Provider packages mark errors that
// must not be retried with Abort.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds how an operation is retried. The zero value is not usable;
// use DefaultPolicy or construct one explicitly.
type Policy struct {
	// MaxAttempts caps the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is slept after the first failed attempt.
	BaseDelay time.Duration
	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
}

// DefaultPolicy keeps total added latency under ten seconds.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 400 * time.Millisecond, Multiplier: 1.5}
}

type abortError struct {
	err error
}

func (e abortError) Error() string { return e.err.Error() }
func (e abortError) Unwrap() error { return e.err }

// Abort wraps an error so Do stops retrying and returns it immediately.
// Configuration and validation failures are aborted; transient provider
// failures are not.
func Abort(err error) error {
	if err == nil {
		return nil
	}
	return abortError{err: err}
}

// IsAborted reports whether err was marked with Abort.
func IsAborted(err error) bool {
	var aborted abortError
	return errors.As(err, &aborted)
}

// Do runs op until it succeeds, the attempt budget is exhausted, the error is
// marked non-retryable, or ctx is cancelled. The returned error is the last
// attempt's error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		var aborted abortError
		if errors.As(lastErr, &aborted) {
			return aborted.err
		}

		if attempt == attempts {
			break
		}

		if err := sleep(ctx, delay); err != nil {
			return errors.Join(lastErr, err)
		}
		delay = time.Duration(float64(delay) * multiplier)
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
