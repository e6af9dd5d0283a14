package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		Backoff:     LinearBackoff(time.Millisecond),
		ShouldRetry: func(err error) bool { return errors.Is(err, errTransient) },
	}
}

func TestDo(t *testing.T) {
	t.Run("SucceedsAfterTransient", func(t *testing.T) {
		var calls int
		err := Do(t.Context(), fastConfig(3), func() error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("StopsOnNonRetryable", func(t *testing.T) {
		var calls int
		err := Do(t.Context(), fastConfig(5), func() error {
			calls++
			return errFatal
		})
		assert.ErrorIs(t, err, errFatal)
		assert.Equal(t, 1, calls)
	})

	t.Run("ExhaustsAttempts", func(t *testing.T) {
		var calls int
		err := Do(t.Context(), fastConfig(4), func() error {
			calls++
			return errTransient
		})
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 4, calls)
	})

	t.Run("ZeroAttemptsRunsOnce", func(t *testing.T) {
		var calls int
		err := Do(t.Context(), RetryConfig{}, func() error {
			calls++
			return errTransient
		})
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, calls)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		var calls int
		err := Do(ctx, fastConfig(3), func() error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, calls)
	})

	t.Run("CanceledWhileWaiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cfg := RetryConfig{
			MaxAttempts: 10,
			Backoff:     LinearBackoff(time.Hour),
		}
		err := Do(ctx, cfg, func() error {
			cancel()
			return errTransient
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, errTransient)
	})
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(10 * time.Millisecond)
	for attempt, base := range map[int]time.Duration{
		1: 10 * time.Millisecond,
		2: 20 * time.Millisecond,
		3: 40 * time.Millisecond,
	} {
		d := b(attempt)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+base/2)
	}
}
