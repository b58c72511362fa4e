package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireImmediateWhenDisabled(t *testing.T) {
	l := NewAdaptiveRateLimiter(Config{Enabled: false})
	defer l.Close()
	p, err := l.Acquire(context.Background(), "app.joinhandshake.com")
	require.NoError(t, err)
	p.Release()
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	l := NewAdaptiveRateLimiter(Config{Enabled: true, InitialFillRate: 100, BucketCapacity: 100})
	defer l.Close()
	domain := "app.joinhandshake.com"
	for i := 0; i < 5; i++ {
		l.Feedback(domain, Feedback{StatusCode: 500})
	}
	_, err := l.Acquire(context.Background(), domain)
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestAcquireRejectsEmptyDomain(t *testing.T) {
	l := NewAdaptiveRateLimiter(Config{Enabled: true})
	defer l.Close()
	_, err := l.Acquire(context.Background(), "")
	require.Error(t, err)
}

func TestAcquireCancellation(t *testing.T) {
	l := NewAdaptiveRateLimiter(Config{Enabled: true, InitialFillRate: 0.01, BucketCapacity: 1})
	defer l.Close()
	domain := "app.joinhandshake.com"
	_, err := l.Acquire(context.Background(), domain) // drains the single token
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, domain)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
