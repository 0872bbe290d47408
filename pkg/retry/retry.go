// Package retry runs an operation with exponential backoff until it succeeds,
// fails permanently or runs out of attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrExhausted marks a failure after every allowed attempt was used.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy configures Do.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// IsRetryable reports whether err may succeed on another attempt.
	// A nil IsRetryable retries every error.
	IsRetryable func(error) bool
	// OnRetry is called before sleeping between attempts.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = 30 * p.BaseDelay
	}
	return p
}

// Do invokes op until it returns nil, a non-retryable error, or MaxAttempts is reached.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p := policy.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.1

	attempts := 0
	var lastErr error
	operation := func() (T, error) {
		attempts++
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if p.IsRetryable != nil && !p.IsRetryable(err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, wait time.Duration) {
			p.OnRetry(attempts, err, wait)
		}))
	}

	result, err := backoff.Retry(ctx, operation, opts...)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if attempts >= p.MaxAttempts && (p.IsRetryable == nil || p.IsRetryable(lastErr)) {
		return result, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
	}
	return result, err
}
