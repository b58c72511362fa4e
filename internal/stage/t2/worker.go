package t2

import (
	"context"
	"fmt"
	"time"

	"github.com/jerling2/handshake-pipeline/internal/codec"
	"github.com/jerling2/handshake-pipeline/internal/gateway"
	"github.com/jerling2/handshake-pipeline/internal/models"
	"github.com/jerling2/handshake-pipeline/internal/telemetry/logging"
	"github.com/jerling2/handshake-pipeline/internal/telemetry/metrics"
)

var noopMetrics = metrics.NewPipelineMetrics(metrics.NewNoopProvider())
var defaultLogger = logging.New(nil)

// Gateway is the subset of *gateway.Gateway's surface the worker drives,
// narrowed so tests can substitute a fake without a live broker.
type Gateway interface {
	SetConsumers(listeners []gateway.Listener) error
	Poll(ctx context.Context, timeout time.Duration) error
	Send(ctx context.Context, topic string, key, value []byte, onDelivery func(err error)) error
	Close(ctx context.Context, flushTimeout time.Duration) error
}

// Upserter is the subset of *repository.EnrichedRepo's surface the worker
// drives.
type Upserter interface {
	Upsert(ctx context.Context, job models.EnrichedJob) error
}

// Worker is the T2 detail-transformer stage: parse one job's raw detail-page
// HTML, clean it, upsert the enriched record, and publish it downstream.
// Grounded on the original's HandshakeTransformer2 worker loop.
type Worker struct {
	Gateway     Gateway
	Repo        Upserter
	Logger      logging.Logger
	Metrics     *metrics.PipelineMetrics
	PollTimeout time.Duration
}

// Setup subscribes to the T2-in topic.
func (w *Worker) Setup() error {
	return w.Gateway.SetConsumers([]gateway.Listener{{
		Topics: []string{codec.Transform2Topic},
		Decode: func(data []byte) (any, error) {
			return codec.Transform2Codec{}.Deserialize(data)
		},
		Notify: func(ctx context.Context, msg any) error {
			return w.onNotify(ctx, msg.(codec.Transform2Cmd))
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

// onNotify parses, cleans, persists and republishes one detail page.
func (w *Worker) onNotify(ctx context.Context, cmd codec.Transform2Cmd) error {
	raw, err := ParseRaw(cmd.HTML)
	if err != nil {
		w.log().ErrorCtx(ctx, "parse raw detail page failed", "url", cmd.URL, "error", err)
		w.metrics().DeadLetters.Inc(1, "t2", "unparseable_detail_page")
		return nil
	}
	cleaned, err := Clean(raw, cmd.CreatedAt)
	if err != nil {
		w.log().ErrorCtx(ctx, "clean detail page failed", "url", cmd.URL, "error", err)
		w.metrics().DeadLetters.Inc(1, "t2", "clean_failed")
		return nil
	}

	job := models.EnrichedJob{
		About:          cleaned.About,
		ApplyBy:        cleaned.ApplyBy,
		ApplyType:      cleaned.ApplyType,
		Company:        cleaned.Company,
		Documents:      cleaned.Documents,
		EmploymentType: cleaned.EmploymentType,
		Industry:       cleaned.Industry,
		JobType:        cleaned.JobType,
		Location:       cleaned.Location,
		LocationType:   cleaned.LocationType,
		Position:       cleaned.Position,
		PostedAt:       cleaned.PostedAt,
		URL:            cmd.URL,
		Wage:           cleaned.Wage,
	}

	if err := w.Repo.Upsert(ctx, job); err != nil {
		w.metrics().StageMessages.Inc(1, "t2", "error")
		return fmt.Errorf("t2: upsert enriched job %q: %w", cmd.URL, err)
	}

	record := codec.Load1Record{
		About:          job.About,
		ApplyBy:        job.ApplyBy,
		ApplyType:      job.ApplyType,
		Company:        job.Company,
		Documents:      job.Documents,
		EmploymentType: job.EmploymentType,
		Industry:       job.Industry,
		JobType:        job.JobType,
		Location:       job.Location,
		LocationType:   job.LocationType,
		Position:       job.Position,
		PostedAt:       job.PostedAt,
		URL:            job.URL,
		Wage:           job.Wage,
	}
	value, err := codec.Load1Codec{}.Serialize(record)
	if err != nil {
		w.metrics().StageMessages.Inc(1, "t2", "error")
		return fmt.Errorf("t2: encode load1 record for %q: %w", cmd.URL, err)
	}
	if err := w.Gateway.Send(ctx, codec.Load1Topic, []byte(cmd.URL), value, nil); err != nil {
		w.metrics().StageMessages.Inc(1, "t2", "error")
		return err
	}
	w.metrics().StageMessages.Inc(1, "t2", "ok")
	return nil
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
