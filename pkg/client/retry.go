package client

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	requestRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetchcache_request_retries_total",
		Help: "Total number of retry attempts",
	})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetchcache_retry_backoff_seconds",
		Help:    "Backoff duration between retry attempts",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fetchcache_retry_exhausted_total",
		Help: "Total number of requests that exhausted their retry attempts",
	})
)

// Backoff selects how the wait between attempts grows.
type Backoff string

const (
	// BackoffLinear waits delay * attempt between attempts.
	BackoffLinear Backoff = "linear"

	// BackoffExponential waits delay * 2^(attempt-1) between attempts.
	BackoffExponential Backoff = "exponential"
)

// RetryConfig governs one request's retry loop. It is assembled fresh
// per call from the client defaults plus any per-request override and
// discarded afterwards; no retry state survives across requests.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// Delay is the base wait before the first retry.
	Delay time.Duration

	// Backoff is the growth strategy. Defaults to exponential.
	Backoff Backoff

	// RetryCondition decides whether a failure is worth another
	// attempt. Defaults to DefaultRetryCondition.
	RetryCondition func(error) bool
}

// retryConfig merges the client defaults with a per-request override.
func (c *Client) retryConfig(override *RetryConfig) RetryConfig {
	cfg := RetryConfig{
		Attempts:       c.config.RetryAttempts,
		Delay:          c.config.RetryDelay,
		Backoff:        BackoffExponential,
		RetryCondition: DefaultRetryCondition,
	}

	if override != nil {
		if override.Attempts > 0 {
			cfg.Attempts = override.Attempts
		}
		if override.Delay > 0 {
			cfg.Delay = override.Delay
		}
		if override.Backoff != "" {
			cfg.Backoff = override.Backoff
		}
		if override.RetryCondition != nil {
			cfg.RetryCondition = override.RetryCondition
		}
	}

	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return cfg
}

// executeWithRetry runs fn up to cfg.Attempts times. A failure on the
// last attempt, or one the predicate rejects, propagates to the caller
// unchanged. Waits between attempts follow the configured backoff and
// are abandoned if the caller's context is cancelled.
func (c *Client) executeWithRetry(ctx context.Context, cfg RetryConfig, fn func() (*Response, error)) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		resp, err := fn()
		if err == nil {
			if attempt > 1 {
				c.logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return resp, nil
		}
		lastErr = err

		if attempt >= cfg.Attempts {
			if cfg.RetryCondition(err) {
				retryExhaustedTotal.Inc()
				c.logger.Warn().Int("attempts", cfg.Attempts).Err(err).Msg("Retry attempts exhausted")
			}
			return nil, lastErr
		}
		if !cfg.RetryCondition(err) {
			return nil, lastErr
		}

		wait := backoffDelay(cfg, attempt)
		requestRetriesTotal.Inc()
		retryBackoffSeconds.Observe(wait.Seconds())

		c.logger.Debug().
			Int("attempt", attempt).
			Dur("backoff", wait).
			Err(err).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

// backoffDelay computes the wait before the attempt following the
// given one (1-based).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	if cfg.Backoff == BackoffLinear {
		return cfg.Delay * time.Duration(attempt)
	}
	return cfg.Delay * time.Duration(1<<(attempt-1))
}
