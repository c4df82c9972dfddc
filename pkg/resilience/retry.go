package resilience

import (
	"context"
	"time"
)

// RetryOptions configures Retry. Zero values fall back to the
// defaults: 3 attempts, 1s base delay doubling up to 10s.
type RetryOptions struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the growing backoff.
	MaxDelay time.Duration

	// Factor is the backoff multiplier.
	Factor float64

	// OnRetry, if set, is invoked with the attempt number and its
	// error before each backoff wait.
	OnRetry func(attempt int, err error)
}

// Retry runs fn up to MaxAttempts times with exponential backoff
// capped at MaxDelay. The final attempt's failure propagates to the
// caller unchanged. Backoff waits are abandoned when ctx is cancelled.
func Retry(ctx context.Context, fn func() error, opts RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	if opts.Factor <= 0 {
		opts.Factor = 2
	}

	var lastErr error
	delay := opts.BaseDelay

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt >= opts.MaxAttempts {
			break
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * opts.Factor)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}

	return lastErr
}
