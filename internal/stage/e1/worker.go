// Package e1 implements the E1 listing-extractor stage: fetch a contiguous
// range of search-result pages, store the raw HTML, and hand it to T1.
package e1

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jerling2/handshake-pipeline/internal/codec"
	"github.com/jerling2/handshake-pipeline/internal/crawler"
	"github.com/jerling2/handshake-pipeline/internal/gateway"
	"github.com/jerling2/handshake-pipeline/internal/telemetry/logging"
	"github.com/jerling2/handshake-pipeline/internal/telemetry/metrics"
)

var noopMetrics = metrics.NewPipelineMetrics(metrics.NewNoopProvider())
var defaultLogger = logging.New(nil)

// BaseURL is the search-result page template, grounded on the original's
// HandshakeExtractor1Config.base_url.
const BaseURL = "https://app.joinhandshake.com/job-search/?page=%d&per_page=%d"

const maxPerPage = 50

// Gateway is the subset of *gateway.Gateway the worker drives.
type Gateway interface {
	SetConsumers(listeners []gateway.Listener) error
	Poll(ctx context.Context, timeout time.Duration) error
	Send(ctx context.Context, topic string, key, value []byte, onDelivery func(err error)) error
	Close(ctx context.Context, flushTimeout time.Duration) error
}

// Repo is the subset of *repository.RawStage1Repo the worker drives.
type Repo interface {
	Insert(ctx context.Context, url, html string) error
}

// Worker is the E1 stage: validate a page range, fetch every page, persist
// and republish each success.
type Worker struct {
	Gateway     Gateway
	Repo        Repo
	Auth        *crawler.Auth
	Dispatcher  *crawler.Dispatcher
	Logger      logging.Logger
	Metrics     *metrics.PipelineMetrics
	PollTimeout time.Duration
}

// Setup subscribes to the E1-cmd topic.
func (w *Worker) Setup() error {
	return w.Gateway.SetConsumers([]gateway.Listener{{
		Topics: []string{codec.Extract1Topic},
		Decode: func(data []byte) (any, error) {
			return codec.Extract1Codec{}.Deserialize(data)
		},
		Notify: func(ctx context.Context, msg any) error {
			return w.onNotify(ctx, msg.(codec.Extract1Cmd))
		},
	}})
}

// RunLoop polls until ctx is canceled.
func (w *Worker) RunLoop(ctx context.Context) error {
	timeout := w.PollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := w.Gateway.Poll(ctx, timeout); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Teardown closes the Gateway.
func (w *Worker) Teardown() error {
	return w.Gateway.Close(context.Background(), 5*time.Second)
}

// onNotify validates the command, fetches every page in range, and persists
// + republishes each successful fetch. A validation failure is logged and
// dropped (a dead letter per spec.md §7); per-URL fetch failures are logged
// and do not abort the rest of the batch.
func (w *Worker) onNotify(ctx context.Context, cmd codec.Extract1Cmd) error {
	if err := validate(cmd); err != nil {
		w.log().WarnCtx(ctx, "rejecting invalid extract command", "error", err)
		w.metrics().DeadLetters.Inc(1, "e1", "invalid_page_range")
		return nil
	}

	if w.Auth != nil {
		if err := w.Auth.EnsureLoggedIn(ctx); err != nil {
			return fmt.Errorf("e1: ensure logged in: %w", err)
		}
	}

	urls := buildURLs(cmd.StartPage, cmd.EndPage, cmd.PerPage)
	results := w.Dispatcher.FetchAll(ctx, urls)
	stopTimer := w.metrics().FetchDuration.Observe
	for result := range results {
		start := time.Now()
		if result.Err != nil {
			w.log().ErrorCtx(ctx, "fetch failed", "url", result.URL, "error", result.Err)
			w.metrics().StageMessages.Inc(1, "e1", "error")
			continue
		}
		if err := w.handleSuccess(ctx, result.URL, result.Page.HTML); err != nil {
			w.log().ErrorCtx(ctx, "handle fetched page failed", "url", result.URL, "error", err)
			w.metrics().StageMessages.Inc(1, "e1", "error")
			continue
		}
		stopTimer(time.Since(start).Seconds(), "e1")
		w.metrics().StageMessages.Inc(1, "e1", "ok")
	}
	return nil
}

func (w *Worker) handleSuccess(ctx context.Context, url, html string) error {
	if err := w.Repo.Insert(ctx, url, html); err != nil {
		return fmt.Errorf("insert raw page: %w", err)
	}
	value, err := codec.Transform1Codec{}.Serialize(codec.Transform1Cmd{HTML: html})
	if err != nil {
		return fmt.Errorf("encode transform1 command: %w", err)
	}
	return w.Gateway.Send(ctx, codec.Transform1Topic, []byte(url), value, nil)
}

func validate(cmd codec.Extract1Cmd) error {
	if cmd.StartPage < 1 || cmd.StartPage > cmd.EndPage {
		return errors.New("e1: start_page must be >= 1 and <= end_page")
	}
	if cmd.PerPage < 1 || cmd.PerPage > maxPerPage {
		return fmt.Errorf("e1: per_page must be between 1 and %d", maxPerPage)
	}
	return nil
}

func buildURLs(startPage, endPage, perPage int) []string {
	urls := make([]string, 0, endPage-startPage+1)
	for page := startPage; page <= endPage; page++ {
		urls = append(urls, fmt.Sprintf(BaseURL, page, perPage))
	}
	return urls
}

func (w *Worker) log() logging.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return defaultLogger
}

func (w *Worker) metrics() *metrics.PipelineMetrics {
	if w.Metrics != nil {
		return w.Metrics
	}
	return noopMetrics
}
