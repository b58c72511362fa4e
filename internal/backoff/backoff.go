// Package backoff implements the higher-order capped-exponential-backoff-
// with-jitter retry helper described in spec.md Design Note 9.
package backoff

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Config parameterizes Retry: at most MaxAttempts attempts, delay
// d = min(Base*2^k, Cap) jittered uniformly into [0.5*d, 1.0*d] between
// attempts. OnRetry, if set, runs between a failed attempt and the next one
// (e.g. to reload a stale page before retrying).
type Config struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	OnRetry     func(ctx context.Context, attempt int) error
}

var randMu sync.Mutex

func jittered(d time.Duration) time.Duration {
	randMu.Lock()
	f := rand.Float64()
	randMu.Unlock()
	return time.Duration(float64(d) * (0.5 + f*0.5))
}

func delayFor(cfg Config, attempt int) time.Duration {
	d := cfg.Base << attempt // Base * 2^attempt
	if cfg.Cap > 0 && d > cfg.Cap {
		d = cfg.Cap
	}
	return jittered(d)
}

// Retry runs op, retrying on error up to cfg.MaxAttempts times total. It
// preserves cancellation: a cancelled ctx aborts both the operation wait and
// any sleep between attempts, returning ctx.Err().
func Retry(ctx context.Context, cfg Config, op func(ctx context.Context, attempt int) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if cfg.OnRetry != nil {
			if err := cfg.OnRetry(ctx, attempt); err != nil {
				return err
			}
		}
		select {
		case <-time.After(delayFor(cfg, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
