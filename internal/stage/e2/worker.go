// Package e2 implements the E2 detail-extractor stage: a buffered batch of
// job URLs is drained by a dedicated worker goroutine, fetched concurrently,
// and published to T2 — draining fully on shutdown rather than dropping
// in-flight work.
package e2

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jerling2/handshake-pipeline/internal/codec"
	"github.com/jerling2/handshake-pipeline/internal/crawler"
	"github.com/jerling2/handshake-pipeline/internal/gateway"
	"github.com/jerling2/handshake-pipeline/internal/telemetry/logging"
	"github.com/jerling2/handshake-pipeline/internal/telemetry/metrics"
)

var noopMetrics = metrics.NewPipelineMetrics(metrics.NewNoopProvider())
var defaultLogger = logging.New(nil)

// DefaultBufSize and DefaultBufTimeout mirror the original's
// HandshakeExtractor2Config.MSG_BUF_SIZE/MSG_BUF_TIMEOUT.
const (
	DefaultBufSize    = 100
	DefaultBufTimeout = 30 * time.Second
)

// Gateway is the subset of *gateway.Gateway the worker drives.
type Gateway interface {
	SetConsumers(listeners []gateway.Listener) error
	Poll(ctx context.Context, timeout time.Duration) error
	Send(ctx context.Context, topic string, key, value []byte, onDelivery func(err error)) error
	Close(ctx context.Context, flushTimeout time.Duration) error
}

// Postings is the subset of *repository.PostingsRepo the worker drives.
type Postings interface {
	SetE2Success(ctx context.Context, url string, success bool) error
}

// Worker is the E2 stage: a buffered, batch-draining detail-page fetcher.
type Worker struct {
	Gateway     Gateway
	Postings    Postings
	Auth        *crawler.Auth
	Dispatcher  *crawler.Dispatcher
	Logger      logging.Logger
	Metrics     *metrics.PipelineMetrics
	PollTimeout time.Duration
	BufSize     int
	BufTimeout  time.Duration
	Clock       func() time.Time

	mu       sync.Mutex
	buf      []codec.Extract2Cmd
	stopped  bool
	wake     chan struct{}
	closedCh chan struct{}
}

// Setup subscribes to the E2-cmd topic and starts the batch-draining worker
// goroutine, mirroring the original's __init__ spawning its daemon thread.
func (w *Worker) Setup() error {
	w.wake = make(chan struct{}, 1)
	w.closedCh = make(chan struct{})
	go w.runBatchWorker()
	return w.Gateway.SetConsumers([]gateway.Listener{{
		Topics: []string{codec.Extract2Topic},
		Decode: func(data []byte) (any, error) {
			return codec.Extract2Codec{}.Deserialize(data)
		},
		Notify: func(ctx context.Context, msg any) error {
			w.onNotify(msg.(codec.Extract2Cmd))
			return nil
		},
	}})
}

// RunLoop polls until ctx is canceled. The batch worker runs independently
// on its own goroutine, started in Setup.
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

// Teardown signals the batch worker to drain and stop, waits for it to
// finish, then closes the Gateway. This guarantees no buffered URL is
// dropped on preemption.
func (w *Worker) Teardown() error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.signalFlush()
	<-w.closedCh
	return w.Gateway.Close(context.Background(), 5*time.Second)
}

// onNotify enqueues msg, signaling a flush once the buffer reaches BufSize.
func (w *Worker) onNotify(msg codec.Extract2Cmd) {
	bufSize := w.BufSize
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}
	w.mu.Lock()
	w.buf = append(w.buf, msg)
	full := len(w.buf) >= bufSize
	w.mu.Unlock()
	if full {
		w.signalFlush()
	}
}

func (w *Worker) signalFlush() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// runBatchWorker is the Go analogue of the original's _worker thread: at
// most one batch is ever in flight, and the loop only exits after the
// buffer has been fully drained following a stop request.
func (w *Worker) runBatchWorker() {
	defer close(w.closedCh)
	timeout := w.BufTimeout
	if timeout <= 0 {
		timeout = DefaultBufTimeout
	}
	for {
		trigger := "timeout"
		select {
		case <-w.wake:
			trigger = "full"
		case <-time.After(timeout):
		}

		w.mu.Lock()
		batch := w.buf
		w.buf = nil
		stopping := w.stopped
		w.mu.Unlock()

		if stopping {
			trigger = "shutdown"
		}
		if len(batch) == 0 {
			if stopping {
				return
			}
			continue
		}
		w.metrics().BufferFlushes.Inc(1, "e2", trigger)
		w.extract(batch)
		if stopping {
			return
		}
	}
}

// extract fetches every URL in batch concurrently and, per result, either
// publishes a T2-in message and records e2_success=true, or records
// e2_success=false.
func (w *Worker) extract(batch []codec.Extract2Cmd) {
	ctx := context.Background()
	if w.Auth != nil {
		if err := w.Auth.EnsureLoggedIn(ctx); err != nil {
			w.log().ErrorCtx(ctx, "e2: ensure logged in failed", "error", err)
			return
		}
	}

	byURL := make(map[string]codec.Extract2Cmd, len(batch))
	urls := make([]string, 0, len(batch))
	for _, msg := range batch {
		byURL[msg.URL] = msg
		urls = append(urls, msg.URL)
	}

	for result := range w.Dispatcher.FetchAll(ctx, urls) {
		if result.Err != nil {
			w.log().WarnCtx(ctx, "e2: detail fetch failed", "url", result.URL, "error", result.Err)
			w.metrics().StageMessages.Inc(1, "e2", "error")
			if err := w.Postings.SetE2Success(ctx, result.URL, false); err != nil {
				w.log().ErrorCtx(ctx, "e2: record failure failed", "url", result.URL, "error", err)
			}
			continue
		}
		if err := w.publish(ctx, result.URL, result.Page.HTML); err != nil {
			w.log().ErrorCtx(ctx, "e2: publish detail page failed", "url", result.URL, "error", err)
			w.metrics().StageMessages.Inc(1, "e2", "error")
			continue
		}
		w.metrics().StageMessages.Inc(1, "e2", "ok")
		if err := w.Postings.SetE2Success(ctx, result.URL, true); err != nil {
			w.log().ErrorCtx(ctx, "e2: record success failed", "url", result.URL, "error", err)
		}
	}
}

func (w *Worker) publish(ctx context.Context, url, html string) error {
	value, err := codec.Transform2Codec{}.Serialize(codec.Transform2Cmd{
		URL:       url,
		HTML:      html,
		CreatedAt: w.now(),
	})
	if err != nil {
		return fmt.Errorf("encode transform2 command: %w", err)
	}
	return w.Gateway.Send(ctx, codec.Transform2Topic, []byte(url), value, nil)
}

func (w *Worker) now() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now()
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
