package retrier

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestRetrier_Do(t *testing.T) {
	t.Run("success on first attempt", func(t *testing.T) {
		r := New(WithSleeper(noSleep))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("success after transient failures", func(t *testing.T) {
		r := New(WithMaxRetries(3), WithSleeper(noSleep))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("fail")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("exhaustion after max retries", func(t *testing.T) {
		r := New(WithMaxRetries(2), WithSleeper(noSleep))
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, ErrRetriesExhausted)
		assert.Equal(t, 3, attempts) // 1 initial + 2 retries

		kind, ok := KindOf(err)
		assert.True(t, ok)
		assert.Equal(t, Unavailable, kind)
	})

	t.Run("terminal kind aborts immediately", func(t *testing.T) {
		authErr := errors.New("invalid api key")
		r := New(
			WithMaxRetries(5),
			WithSleeper(noSleep),
			WithClassifier(func(err error) Kind {
				if err == authErr {
					return AuthFailed
				}
				return Unavailable
			}),
		)
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			return authErr
		})
		assert.Error(t, err)
		assert.Equal(t, 1, attempts)

		kind, ok := KindOf(err)
		assert.True(t, ok)
		assert.Equal(t, AuthFailed, kind)
	})

	t.Run("kind-specific delays", func(t *testing.T) {
		var slept []time.Duration
		r := New(
			WithMaxRetries(2),
			WithDelay(RateLimited, time.Second),
			WithDelay(Unavailable, 2*time.Second),
			WithSleeper(func(ctx context.Context, d time.Duration) error {
				slept = append(slept, d)
				return nil
			}),
			WithClassifier(func(err error) Kind {
				if err.Error() == "throttled" {
					return RateLimited
				}
				return Unavailable
			}),
		)
		attempts := 0
		err := r.Do(context.Background(), func(ctx context.Context) error {
			attempts++
			if attempts == 1 {
				return errors.New("throttled")
			}
			return errors.New("down")
		})
		assert.ErrorIs(t, err, ErrRetriesExhausted)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
	})

	t.Run("context cancellation during sleep", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r := New(WithMaxRetries(5))
		attempts := 0
		err := r.Do(ctx, func(ctx context.Context) error {
			attempts++
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}

func TestRetrier_DoWithData(t *testing.T) {
	t.Run("success returns data", func(t *testing.T) {
		r := New(WithSleeper(noSleep))
		val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
			return "tickers", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "tickers", val)
	})

	t.Run("exhaustion returns zero value", func(t *testing.T) {
		r := New(WithMaxRetries(1), WithSleeper(noSleep))
		val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
			return "", errors.New("fail")
		})
		assert.Error(t, err)
		assert.Empty(t, val)
	})
}

func TestKindTransient(t *testing.T) {
	assert.True(t, RateLimited.Transient())
	assert.True(t, Unavailable.Transient())
	assert.False(t, AuthFailed.Transient())
	assert.False(t, PermissionDenied.Transient())
	assert.False(t, Fatal.Transient())
}
