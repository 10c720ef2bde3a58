package services

import (
	"context"
	"math/rand/v2"
	"time"

	cherrors "chat-sync/errors"
	"chat-sync/observability"
)

// RetryPolicy bounds how transient backend failures are retried: full
// exponential backoff with jitter, a fixed attempt budget, and immediate
// propagation of anything the taxonomy marks non-retryable.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy matches the dispatcher contract: three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Do runs op until it succeeds, fails non-retryably, exhausts the attempt
// budget, or the context ends.
func (p RetryPolicy) Do(ctx context.Context, monitor *observability.Monitor, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			monitor.IncrCommandRetries()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt)):
			}
		}
		if err = op(); err == nil {
			return nil
		}
		if !cherrors.Retryable(err) {
			return err
		}
	}
	return err
}

// delay computes the backoff for the given attempt: base doubled per
// attempt, capped, with uniform jitter so concurrent clients do not
// synchronize their retries.
func (p RetryPolicy) delay(attempt int) time.Duration {
	backoff := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	if backoff <= 0 {
		return 0
	}
	return backoff/2 + rand.N(backoff/2)
}
