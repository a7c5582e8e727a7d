// Package retry provides bounded backoff for background work, used by the
// persistence mirror queue.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Policy defines retry behavior.
type Policy struct {
	// MaxAttempts is the number of retries after the first attempt
	// (0 = run once, no retry).
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay between retries.
	Multiplier float64
	// Jitter adds up to 25% randomness to each delay.
	Jitter bool
	// Retryable classifies errors; nil retries everything.
	Retryable func(error) bool
}

// Do executes fn under the policy. The context cancels waits between
// attempts; its error is returned when it fires first.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	if p.MaxAttempts <= 0 {
		return fn()
	}

	var lastErr error
	delay := p.InitialDelay

	for attempt := 0; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.withJitter(delay)):
			}

			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts+1, lastErr)
}

func (p Policy) withJitter(d time.Duration) time.Duration {
	if !p.Jitter || d <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}
