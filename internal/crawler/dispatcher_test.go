package crawler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jerling2/handshake-pipeline/internal/backoff"
	"github.com/jerling2/handshake-pipeline/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	calls      int64
	failFirstN int64
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (models.FetchedPage, error) {
	n := atomic.AddInt64(&f.calls, 1)
	if n <= f.failFirstN {
		return models.FetchedPage{}, fmt.Errorf("boom")
	}
	return models.FetchedPage{URL: url, HTML: "<html></html>", Status: 200}, nil
}

func TestDispatcherFetchAllSucceeds(t *testing.T) {
	f := &fakeFetcher{}
	d := &Dispatcher{Fetcher: f, MaxConcurrency: 3, Retry: backoff.Config{MaxAttempts: 1}}
	urls := []string{"https://a.test/1", "https://a.test/2", "https://a.test/3"}
	results := map[string]FetchResult{}
	for r := range d.FetchAll(context.Background(), urls) {
		results[r.URL] = r
	}
	require.Len(t, results, 3)
	for _, u := range urls {
		require.NoError(t, results[u].Err)
	}
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	f := &fakeFetcher{failFirstN: 2}
	d := &Dispatcher{Fetcher: f, MaxConcurrency: 1, Retry: backoff.Config{MaxAttempts: 5, Base: time.Millisecond, Cap: time.Millisecond}}
	var got FetchResult
	for r := range d.FetchAll(context.Background(), []string{"https://a.test/1"}) {
		got = r
	}
	require.NoError(t, got.Err)
}
