package crawler

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jerling2/handshake-pipeline/internal/backoff"
	"github.com/jerling2/handshake-pipeline/internal/models"
	"github.com/jerling2/handshake-pipeline/internal/ratelimit"
)

// FetchResult pairs one requested URL with its outcome.
type FetchResult struct {
	URL  string
	Page models.FetchedPage
	Err  error
}

// Dispatcher fetches many URLs concurrently, bounded by MaxConcurrency and
// paced by a per-domain RateLimiter, retrying transient failures with
// backoff.Retry. It is the Go analogue of the original's
// MemoryAdaptiveDispatcher + RateLimiter pairing driving crawl4ai's
// arun_many.
type Dispatcher struct {
	Fetcher        Fetcher
	Limiter        ratelimit.RateLimiter
	MaxConcurrency int
	Retry          backoff.Config
}

// FetchAll fetches every url in urls concurrently (bounded by
// MaxConcurrency), streaming one FetchResult per URL on the returned
// channel. The channel is closed once every URL has been attempted or ctx is
// done.
func (d *Dispatcher) FetchAll(ctx context.Context, urls []string) <-chan FetchResult {
	out := make(chan FetchResult, len(urls))
	concurrency := d.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, u := range urls {
		u := u
		select {
		case <-ctx.Done():
			out <- FetchResult{URL: u, Err: ctx.Err()}
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			out <- d.fetchOne(ctx, u)
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (d *Dispatcher) fetchOne(ctx context.Context, rawURL string) FetchResult {
	domain := hostOf(rawURL)
	var page models.FetchedPage
	start := time.Now()
	err := backoff.Retry(ctx, d.Retry, func(ctx context.Context, attempt int) error {
		if d.Limiter != nil {
			permit, err := d.Limiter.Acquire(ctx, domain)
			if err != nil {
				return err
			}
			defer permit.Release()
		}
		fetched, err := d.Fetcher.Fetch(ctx, rawURL)
		if d.Limiter != nil {
			status := fetched.Status
			d.Limiter.Feedback(domain, ratelimit.Feedback{StatusCode: status, Latency: time.Since(start), Err: err})
		}
		if err != nil {
			return err
		}
		page = fetched
		return nil
	})
	if err != nil {
		return FetchResult{URL: rawURL, Err: &models.StageError{Stage: "fetch", URL: rawURL, Err: err}}
	}
	return FetchResult{URL: rawURL, Page: page}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
