package e1

import (
	"context"
	"errors"
	"fmt"
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
	listeners []gateway.Listener
	sent      []sentRecord
}

type sentRecord struct {
	topic string
	key   []byte
	value []byte
}

func (f *fakeGateway) SetConsumers(listeners []gateway.Listener) error {
	f.listeners = listeners
	return nil
}
func (f *fakeGateway) Poll(ctx context.Context, timeout time.Duration) error { return nil }
func (f *fakeGateway) Send(ctx context.Context, topic string, key, value []byte, onDelivery func(err error)) error {
	f.sent = append(f.sent, sentRecord{topic: topic, key: key, value: value})
	return nil
}
func (f *fakeGateway) Close(ctx context.Context, flushTimeout time.Duration) error { return nil }

type fakeRepo struct {
	inserted map[string]string
	err      error
}

func (f *fakeRepo) Insert(ctx context.Context, url, html string) error {
	if f.err != nil {
		return f.err
	}
	if f.inserted == nil {
		f.inserted = map[string]string{}
	}
	f.inserted[url] = html
	return nil
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

func newTestWorker(fetcher crawler.Fetcher) (*Worker, *fakeGateway, *fakeRepo) {
	fg := &fakeGateway{}
	fr := &fakeRepo{}
	w := &Worker{
		Gateway:    fg,
		Repo:       fr,
		Dispatcher: &crawler.Dispatcher{Fetcher: fetcher, MaxConcurrency: 5, Retry: backoff.Config{MaxAttempts: 1}},
	}
	return w, fg, fr
}

func TestWorkerRejectsInvalidPageRange(t *testing.T) {
	w, fg, fr := newTestWorker(&fakeFetcher{})
	err := w.onNotify(context.Background(), codec.Extract1Cmd{StartPage: 2, EndPage: 1, PerPage: 10})
	require.NoError(t, err)
	require.Empty(t, fg.sent)
	require.Empty(t, fr.inserted)
}

func TestWorkerRejectsInvalidPerPage(t *testing.T) {
	w, fg, _ := newTestWorker(&fakeFetcher{})
	err := w.onNotify(context.Background(), codec.Extract1Cmd{StartPage: 1, EndPage: 1, PerPage: 51})
	require.NoError(t, err)
	require.Empty(t, fg.sent)
}

func TestWorkerFetchesEachPageAndPublishes(t *testing.T) {
	w, fg, fr := newTestWorker(&fakeFetcher{})
	err := w.onNotify(context.Background(), codec.Extract1Cmd{StartPage: 1, EndPage: 3, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, fr.inserted, 3)
	require.Len(t, fg.sent, 3)
	for _, rec := range fg.sent {
		require.Equal(t, codec.Transform1Topic, rec.topic)
	}
}

func TestWorkerSkipsFailedFetchesWithoutAbortingBatch(t *testing.T) {
	failing := fmt.Sprintf(BaseURL, 2, 10)
	w, fg, fr := newTestWorker(&fakeFetcher{failURLs: map[string]bool{failing: true}})
	err := w.onNotify(context.Background(), codec.Extract1Cmd{StartPage: 1, EndPage: 3, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, fr.inserted, 2)
	require.Len(t, fg.sent, 2)
}

func TestWorkerPropagatesAuthFailure(t *testing.T) {
	w, _, _ := newTestWorker(&fakeFetcher{})
	w.Auth = &crawler.Auth{SessionPath: "", LoginFunc: nil}
	err := w.onNotify(context.Background(), codec.Extract1Cmd{StartPage: 1, EndPage: 1, PerPage: 10})
	require.Error(t, err)
	var stale *crawler.AuthStaleError
	require.ErrorAs(t, err, &stale)
}

func TestBuildURLsCoversWholeRange(t *testing.T) {
	urls := buildURLs(1, 3, 20)
	require.Len(t, urls, 3)
	require.Equal(t, fmt.Sprintf(BaseURL, 1, 20), urls[0])
	require.Equal(t, fmt.Sprintf(BaseURL, 3, 20), urls[2])
}

func TestRepoInsertErrorIsLoggedNotFatal(t *testing.T) {
	w, fg, fr := newTestWorker(&fakeFetcher{})
	fr.err = errors.New("boom")
	err := w.onNotify(context.Background(), codec.Extract1Cmd{StartPage: 1, EndPage: 1, PerPage: 10})
	require.NoError(t, err)
	require.Empty(t, fg.sent)
}
