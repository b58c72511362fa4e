package e2

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jerling2/handshake-pipeline/internal/backoff"
	"github.com/jerling2/handshake-pipeline/internal/codec"
	"github.com/jerling2/handshake-pipeline/internal/crawler"
	"github.com/jerling2/handshake-pipeline/internal/gateway"
	"github.com/jerling2/handshake-pipeline/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentRecord
}

type sentRecord struct {
	topic string
	key   []byte
	value []byte
}

func (f *fakeGateway) SetConsumers(listeners []gateway.Listener) error { return nil }
func (f *fakeGateway) Poll(ctx context.Context, timeout time.Duration) error {
	<-ctx.Done()
	return nil
}
func (f *fakeGateway) Send(ctx context.Context, topic string, key, value []byte, onDelivery func(err error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentRecord{topic: topic, key: key, value: value})
	return nil
}
func (f *fakeGateway) Close(ctx context.Context, flushTimeout time.Duration) error { return nil }

func (f *fakeGateway) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakePostings struct {
	mu       sync.Mutex
	statuses map[string]bool
}

func (f *fakePostings) SetE2Success(ctx context.Context, url string, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = map[string]bool{}
	}
	f.statuses[url] = success
	return nil
}

func (f *fakePostings) get(url string) (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.statuses[url]
	return v, ok
}

type fakeFetcher struct {
	failURLs map[string]bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (models.FetchedPage, error) {
	if f.failURLs[url] {
		return models.FetchedPage{}, fmt.Errorf("fetch failed")
	}
	return models.FetchedPage{URL: url, HTML: "<html>" + url + "</html>", Status: 200}, nil
}

func newTestWorker(fetcher crawler.Fetcher, bufSize int, bufTimeout time.Duration) (*Worker, *fakeGateway, *fakePostings) {
	fg := &fakeGateway{}
	fp := &fakePostings{}
	w := &Worker{
		Gateway:    fg,
		Postings:   fp,
		Dispatcher: &crawler.Dispatcher{Fetcher: fetcher, MaxConcurrency: 5, Retry: backoff.Config{MaxAttempts: 1}},
		BufSize:    bufSize,
		BufTimeout: bufTimeout,
	}
	return w, fg, fp
}

func TestWorkerFlushesOnBufferFull(t *testing.T) {
	w, fg, fp := newTestWorker(&fakeFetcher{}, 2, time.Hour)
	require.NoError(t, w.Setup())
	defer w.Teardown()

	w.onNotify(codec.Extract2Cmd{JobID: 1, URL: "https://a.test/1"})
	w.onNotify(codec.Extract2Cmd{JobID: 2, URL: "https://a.test/2"})

	require.Eventually(t, func() bool { return fg.sentCount() == 2 }, time.Second, time.Millisecond)
	ok, found := fp.get("https://a.test/1")
	require.True(t, found)
	require.True(t, ok)
}

func TestWorkerFlushesOnTimeout(t *testing.T) {
	w, fg, _ := newTestWorker(&fakeFetcher{}, 100, 10*time.Millisecond)
	require.NoError(t, w.Setup())
	defer w.Teardown()

	w.onNotify(codec.Extract2Cmd{JobID: 1, URL: "https://a.test/1"})

	require.Eventually(t, func() bool { return fg.sentCount() == 1 }, time.Second, time.Millisecond)
}

func TestWorkerRecordsFailureWithoutPublishing(t *testing.T) {
	w, fg, fp := newTestWorker(&fakeFetcher{failURLs: map[string]bool{"https://a.test/1": true}}, 1, time.Hour)
	require.NoError(t, w.Setup())
	defer w.Teardown()

	w.onNotify(codec.Extract2Cmd{JobID: 1, URL: "https://a.test/1"})

	require.Eventually(t, func() bool {
		_, found := fp.get("https://a.test/1")
		return found
	}, time.Second, time.Millisecond)
	ok, _ := fp.get("https://a.test/1")
	require.False(t, ok)
	require.Equal(t, 0, fg.sentCount())
}

func TestTeardownDrainsBufferedMessagesBeforeClosing(t *testing.T) {
	w, fg, fp := newTestWorker(&fakeFetcher{}, 100, time.Hour)
	require.NoError(t, w.Setup())

	w.onNotify(codec.Extract2Cmd{JobID: 1, URL: "https://a.test/1"})
	require.NoError(t, w.Teardown())

	require.Equal(t, 1, fg.sentCount())
	ok, found := fp.get("https://a.test/1")
	require.True(t, found)
	require.True(t, ok)
}

func TestOnNotifyUnderBufSizeDoesNotFlushImmediately(t *testing.T) {
	w, fg, _ := newTestWorker(&fakeFetcher{}, 10, time.Hour)
	w.wake = make(chan struct{}, 1)
	w.closedCh = make(chan struct{})

	w.onNotify(codec.Extract2Cmd{JobID: 1, URL: "https://a.test/1"})
	select {
	case <-w.wake:
		t.Fatal("expected no flush signal below BufSize")
	default:
	}
	require.Equal(t, 0, fg.sentCount())
}
