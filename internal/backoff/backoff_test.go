package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Config{MaxAttempts: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond},
		func(ctx context.Context, attempt int) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryExhausted(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), Config{MaxAttempts: 2, Base: time.Millisecond, Cap: time.Millisecond},
		func(ctx context.Context, attempt int) error {
			attempts++
			return errors.New("boom")
		})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, Config{MaxAttempts: 5, Base: time.Second, Cap: time.Second},
		func(ctx context.Context, attempt int) error { return errors.New("boom") })
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryOnRetryCallback(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), Config{
		MaxAttempts: 3, Base: time.Millisecond, Cap: time.Millisecond,
		OnRetry: func(ctx context.Context, attempt int) error { calls++; return nil },
	}, func(ctx context.Context, attempt int) error { return errors.New("boom") })
	require.Equal(t, 2, calls)
}
