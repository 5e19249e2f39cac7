// Package retry provides exponential-backoff retry policies for transient
// provider failures. Policies are plain values so the retry behaviour of a
// call site can be tested on its own.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy controls the retry behaviour of one call site.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Zero or negative is treated as 1 (no retries).
	MaxAttempts int
	// InitialDelay is the wait before the second attempt; subsequent
	// delays double up to MaxDelay.
	InitialDelay time.Duration
	// MaxDelay caps the per-attempt wait.
	MaxDelay time.Duration
	// Retryable classifies errors; nil retries every non-nil error.
	Retryable func(err error) bool
}

// Default suits short-lived network calls.
var Default = Policy{
	MaxAttempts:  2,
	InitialDelay: 400 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// Do calls fn up to p.MaxAttempts times, backing off exponentially between
// attempts. It stops early when ctx is cancelled, fn succeeds, or the error
// is not retryable. The last attempt's error is returned.
func Do(ctx context.Context, p Policy, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = Default.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = Default.MaxDelay
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}

		if attempt < p.MaxAttempts {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}

	return lastErr
}
