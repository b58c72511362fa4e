// Package t1 implements the T1 listing-transformer stage: parse job-card
// anchors out of a raw search-result page and upsert (job_id, role, url)
// triples, dispatching E2-cmd only for newly-inserted postings.
package t1

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jerling2/handshake-pipeline/internal/codec"
	"github.com/jerling2/handshake-pipeline/internal/gateway"
	"github.com/jerling2/handshake-pipeline/internal/models"
	"github.com/jerling2/handshake-pipeline/internal/telemetry/logging"
	"github.com/jerling2/handshake-pipeline/internal/telemetry/metrics"
)

var noopMetrics = metrics.NewPipelineMetrics(metrics.NewNoopProvider())
var defaultLogger = logging.New(nil)

// Gateway is the subset of *gateway.Gateway the worker drives.
type Gateway interface {
	SetConsumers(listeners []gateway.Listener) error
	Poll(ctx context.Context, timeout time.Duration) error
	Send(ctx context.Context, topic string, key, value []byte, onDelivery func(err error)) error
	Close(ctx context.Context, flushTimeout time.Duration) error
}

// Postings is the subset of *repository.PostingsRepo the worker drives.
type Postings interface {
	UpsertMany(ctx context.Context, postings []models.JobPosting) ([]int, error)
}

// Worker is the T1 stage.
type Worker struct {
	Gateway     Gateway
	Postings    Postings
	Logger      logging.Logger
	Metrics     *metrics.PipelineMetrics
	PollTimeout time.Duration
}

// Setup subscribes to the T1-in topic.
func (w *Worker) Setup() error {
	return w.Gateway.SetConsumers([]gateway.Listener{{
		Topics: []string{codec.Transform1Topic},
		Decode: func(data []byte) (any, error) {
			return codec.Transform1Codec{}.Deserialize(data)
		},
		Notify: func(ctx context.Context, msg any) error {
			return w.onNotify(ctx, msg.(codec.Transform1Cmd))
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

// card is one job-card anchor's raw attributes.
type card struct {
	JobID int
	Role  string
	URL   string
}

var jobIDPattern = regexp.MustCompile(`job-search/(\d+)`)

// parseCards extracts every main a[role="button"] anchor, skipping ones
// whose href carries no job-search id (the original's get_id raising
// ValueError and the listing iteration discarding the item).
func parseCards(html string) ([]card, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("t1: parse html: %w", err)
	}
	var cards []card
	doc.Find(`main a[role="button"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := jobIDPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		jobID, err := strconv.Atoi(m[1])
		if err != nil {
			return
		}
		rawRole, _ := s.Attr("aria-label")
		role, ok := cleanRole(rawRole)
		if !ok {
			return
		}
		cards = append(cards, card{
			JobID: jobID,
			Role:  role,
			URL:   fmt.Sprintf("https://app.joinhandshake.com/jobs/%d", jobID),
		})
	})
	return cards, nil
}

// cleanRole strips the "View " prefix the original matched with a lookbehind
// (`(?<=View\s).*`); ok is false when the label doesn't carry that prefix,
// matching the original's ValueError-and-skip behavior.
func cleanRole(raw string) (string, bool) {
	const prefix = "View "
	if !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	return strings.TrimPrefix(raw, prefix), true
}

// onNotify parses html, upserts every card, and emits an E2-cmd for each
// newly-inserted posting only — re-seen job_ids are not re-dispatched.
func (w *Worker) onNotify(ctx context.Context, cmd codec.Transform1Cmd) error {
	cards, err := parseCards(cmd.HTML)
	if err != nil {
		w.log().ErrorCtx(ctx, "parse job cards failed", "error", err)
		return nil
	}
	if len(cards) == 0 {
		return nil
	}

	postings := make([]models.JobPosting, len(cards))
	for i, c := range cards {
		postings[i] = models.JobPosting{JobID: c.JobID, Role: c.Role, URL: c.URL}
	}
	newIndices, err := w.Postings.UpsertMany(ctx, postings)
	if err != nil {
		w.metrics().StageMessages.Inc(1, "t1", "error")
		return fmt.Errorf("t1: upsert postings: %w", err)
	}
	w.metrics().UpsertNewRatio.Set(float64(len(newIndices))/float64(len(postings)), "t1")

	for _, i := range newIndices {
		c := cards[i]
		value, err := codec.Extract2Codec{}.Serialize(codec.Extract2Cmd{JobID: c.JobID, Role: c.Role, URL: c.URL})
		if err != nil {
			return fmt.Errorf("t1: encode extract2 command: %w", err)
		}
		if err := w.Gateway.Send(ctx, codec.Extract2Topic, []byte(c.URL), value, nil); err != nil {
			return fmt.Errorf("t1: send extract2 command: %w", err)
		}
	}
	w.metrics().StageMessages.Inc(1, "t1", "ok")
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
