// Package backoff provides the retry policy shared by every
// network-bound call in the pipeline: exponential backoff with jitter,
// a bounded attempt count and a caller-supplied retryable predicate.
package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrAttemptsExhausted is returned when every retry attempt has failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy defines the parameters for exponential backoff.
type Policy struct {
	// MaxAttempts is the total attempt ceiling, including the first call.
	MaxAttempts int

	// Initial is the delay before the second attempt.
	Initial time.Duration

	// Max caps the computed delay.
	Max time.Duration

	// Factor is the exponential growth factor between attempts.
	Factor float64

	// Jitter is the randomization fraction (0.0 to 1.0) added to each delay.
	Jitter float64

	// Retryable decides whether an error is worth another attempt.
	// A nil predicate retries everything.
	Retryable func(error) bool
}

// Default returns the policy used by the embedding client and the
// vector store adapters: 4 attempts, 200ms initial, 10s cap, factor 2,
// 20% jitter.
func Default() Policy {
	return Policy{
		MaxAttempts: 4,
		Initial:     200 * time.Millisecond,
		Max:         10 * time.Second,
		Factor:      2,
		Jitter:      0.2,
	}
}

// Delay computes the sleep before the given retry. Attempt numbers
// start at 1 for the first retry.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not need crypto randomness
}

// delayWithRand is split out so tests can pass a fixed random value.
func (p Policy) delayWithRand(attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	total := base + base*p.Jitter*random
	if capped := float64(p.Max); total > capped {
		total = capped
	}
	return time.Duration(total)
}

// Retry executes fn with the policy, sleeping between attempts and
// honouring context cancellation. It returns fn's value on success;
// after the attempt ceiling, or on the first non-retryable error, the
// last error is returned wrapped so callers still see the cause.
func Retry[T any](ctx context.Context, p Policy, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := fn(attempt)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt < attempts {
			if err := sleep(ctx, p.Delay(attempt)); err != nil {
				return zero, lastErr
			}
		}
	}
	return zero, errors.Join(ErrAttemptsExhausted, lastErr)
}

// sleep waits for d or until the context is done, whichever is first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
