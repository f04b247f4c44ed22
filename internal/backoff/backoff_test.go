package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Initial:     time.Microsecond,
		Max:         time.Millisecond,
		Factor:      2,
	}
}

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, p.Initial)
	assert.Equal(t, 10*time.Second, p.Max)
}

func TestDelay_GrowsExponentially(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Minute, Factor: 2}

	assert.Equal(t, 100*time.Millisecond, p.delayWithRand(1, 0))
	assert.Equal(t, 200*time.Millisecond, p.delayWithRand(2, 0))
	assert.Equal(t, 400*time.Millisecond, p.delayWithRand(3, 0))
}

func TestDelay_CappedAtMax(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 2 * time.Second, Factor: 10}

	assert.Equal(t, 2*time.Second, p.delayWithRand(5, 0))
}

func TestDelay_JitterAddsFraction(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Minute, Factor: 2, Jitter: 0.2}

	assert.Equal(t, 100*time.Millisecond, p.delayWithRand(1, 0))
	assert.Equal(t, 120*time.Millisecond, p.delayWithRand(1, 1))
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastPolicy(), func(int) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastPolicy(), func(int) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	cause := errors.New("still down")
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(), func(int) (int, error) {
		calls++
		return 0, cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, cause)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("bad request")
	p := fastPolicy()
	p.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	_, err := Retry(context.Background(), p, func(int) (int, error) {
		calls++
		return 0, fatal
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, fatal)
	assert.NotErrorIs(t, err, ErrAttemptsExhausted)
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, fastPolicy(), func(int) (int, error) {
		calls++
		return 0, nil
	})

	require.Error(t, err)
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), Policy{}, func(int) (int, error) {
		calls++
		return 0, errors.New("nope")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_AttemptNumberPassed(t *testing.T) {
	var seen []int
	_, _ = Retry(context.Background(), fastPolicy(), func(attempt int) (int, error) {
		seen = append(seen, attempt)
		return 0, errors.New("again")
	})

	assert.Equal(t, []int{1, 2, 3}, seen)
}
