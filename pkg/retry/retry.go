// Package retry wraps cenkalti/backoff with the exponential-backoff policy
// shared by the collector's batch sink, the transport client's reconnect
// loop, and the analyzer's per-rule retry budget.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"logflow/pkg/config"
)

// Policy builds a backoff.BackOff from a RetryConfig, bounded to
// cfg.MaxAttempts attempts and scoped to ctx.
type Policy struct {
	cfg config.RetryConfig
}

// NewPolicy returns a Policy for cfg.
func NewPolicy(cfg config.RetryConfig) Policy {
	return Policy{cfg: cfg}
}

func (p Policy) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.MaxInterval = p.cfg.MaxBackoff
	b.Multiplier = p.cfg.BackoffMultiplier
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall clock
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries(p.cfg.MaxAttempts))), ctx)
}

func maxRetries(maxAttempts int) int {
	if maxAttempts <= 0 {
		return 0
	}
	return maxAttempts - 1
}

// Do runs fn, retrying on error per the configured policy. It returns the
// last error if every attempt fails.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	return backoff.Retry(fn, p.backoff(ctx))
}

// NextBackOff exposes a fresh, independent backoff.BackOff for callers that
// need to drive retries manually (e.g. a reconnect loop that also reacts to
// a shutdown channel).
func (p Policy) NextBackOff(ctx context.Context) backoff.BackOff {
	return p.backoff(ctx)
}

// Sleep blocks for d or until ctx is done, whichever comes first. Returns
// ctx.Err() if ctx ended the wait early.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
