package extract

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy retries browser calls a bounded number of times with a
// constant delay. It applies to script evaluation and element waits.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Delay is the pause between attempts.
	Delay time.Duration
}

// DefaultRetryPolicy returns three attempts one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultScriptAttempts,
		Delay:       DefaultScriptRetryDelay,
	}
}

// Do runs op until it succeeds, returns a permanent error, or the attempts
// are used up. A missing element is permanent, and retrying stops as soon
// as ctx is done.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(attempts-1)) //nolint:gosec // attempts >= 1
	b = backoff.WithContext(b, ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

func retryable(err error) bool {
	return !errors.Is(err, ErrElementNotFound)
}
