// Package gateway implements the Gateway facade (spec.md §4.1) over the
// message log: send, set_consumers, poll, emit, close, backed by a Kafka-
// compatible broker via franz-go.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/jerling2/handshake-pipeline/internal/telemetry/tracing"
)

type oteltraceSpan = oteltrace.Span

// Listener is the Go analogue of the original's IPGConsumerConfig: a
// (topics, decode, notify) triple registered via SetConsumers. Decode turns
// raw record bytes into a message value (typically a codec.Codec[T].
// Deserialize call boxed into `any`); Notify receives the decoded message
// alongside the context Poll built for the fetch, which carries the active
// span when a tracer is configured. A DeadLetterError returned by Decode is
// counted, not propagated as a protocol error, matching spec.md §3's
// "unrecognized action -> dead letter, not protocol error" invariant.
type Listener struct {
	Topics []string
	Decode func(data []byte) (any, error)
	Notify func(ctx context.Context, msg any) error
}

// deadLetterChecker lets a Decode error mark itself as a dead letter
// without gateway importing the concrete codec error type.
type deadLetterChecker interface {
	DeadLetter() bool
}

// ErrClosed is returned by Poll and Send once the Gateway has been closed.
var ErrClosed = errors.New("gateway: closed")

// ErrNoProducer is returned by Send when the Gateway was built without a
// producer client.
var ErrNoProducer = errors.New("gateway: no producer configured")

// Metrics is the narrow observability hook a Gateway reports into; nil
// fields are skipped.
type Metrics struct {
	DeadLetter func(topic string)
	Produced   func(topic string, err error)
}

// Gateway owns zero-or-one consumer and zero-or-one producer client against
// the message log, matching the original's InterProcessGateway.
type Gateway struct {
	consumer *kgo.Client
	producer *kgo.Client
	metrics  Metrics
	tracer   *tracing.Tracer

	mu      sync.RWMutex
	routing map[string][]Listener
	closed  bool
	closeMu sync.Mutex
}

// Option configures a Gateway at construction.
type Option func(*Gateway)

// WithMetrics attaches an observability hook.
func WithMetrics(m Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithTracer spans every Send and Poll call, per the teacher's practice of
// wrapping business operations with an OpenTelemetryTracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

// New builds a Gateway. Either client may be nil to build a produce-only or
// consume-only Gateway.
func New(consumer, producer *kgo.Client, opts ...Option) *Gateway {
	g := &Gateway{consumer: consumer, producer: producer, routing: make(map[string][]Listener)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsClosed reports whether Close has completed.
func (g *Gateway) IsClosed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.closed
}

// Send serializes and enqueues one record for asynchronous transmission.
// onDelivery, if non-nil, is invoked once the broker acknowledges (or
// rejects) the record.
func (g *Gateway) Send(ctx context.Context, topic string, key, value []byte, onDelivery func(err error)) error {
	if g.IsClosed() {
		return ErrClosed
	}
	if g.producer == nil {
		return ErrNoProducer
	}
	var span oteltraceSpan
	if g.tracer != nil {
		ctx, span = g.tracer.Start(ctx, "gateway.send", map[string]any{"topic": topic})
	}
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	g.producer.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if g.metrics.Produced != nil {
			g.metrics.Produced(topic, err)
		}
		if span != nil {
			if err != nil {
				tracing.RecordError(ctx, err)
			}
			tracing.End(span, err == nil)
		}
		if onDelivery != nil {
			onDelivery(err)
		}
	})
	return nil
}

// SetConsumers replaces the subscription set. The union of all listeners'
// topics is subscribed at the broker; a fixed topic -> ordered-listener-list
// routing table is rebuilt from scratch, per spec.md Design Note 9.
func (g *Gateway) SetConsumers(listeners []Listener) error {
	if g.consumer == nil {
		return errors.New("gateway: no consumer configured")
	}
	routing, topics := buildRouting(listeners)
	g.consumer.AddConsumeTopics(topics...)

	g.mu.Lock()
	g.routing = routing
	g.mu.Unlock()
	return nil
}

// buildRouting rebuilds the topic -> ordered-listener-list table from
// scratch and returns the union of subscribed topics alongside it. Pulled
// out of SetConsumers so it can be exercised without a live broker client.
func buildRouting(listeners []Listener) (map[string][]Listener, []string) {
	routing := make(map[string][]Listener)
	topicSet := make(map[string]struct{})
	for _, l := range listeners {
		for _, topic := range l.Topics {
			routing[topic] = append(routing[topic], l)
			topicSet[topic] = struct{}{}
		}
	}
	topics := make([]string, 0, len(topicSet))
	for t := range topicSet {
		topics = append(topics, t)
	}
	return routing, topics
}

// Poll waits up to timeout for a batch of records, dispatching each to the
// listeners registered for its topic, in registration order. A broker-level
// fetch error is returned; per-record dead letters are counted via Metrics
// and do not abort the batch. Listener Notify errors propagate immediately —
// the gateway never swallows them.
func (g *Gateway) Poll(ctx context.Context, timeout time.Duration) (pollErr error) {
	if g.IsClosed() {
		return ErrClosed
	}
	if g.consumer == nil {
		return errors.New("gateway: no consumer configured")
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if g.tracer != nil {
		var span oteltraceSpan
		pollCtx, span = g.tracer.Start(pollCtx, "gateway.poll", nil)
		defer func() {
			if pollErr != nil {
				tracing.RecordError(pollCtx, pollErr)
			}
			tracing.End(span, pollErr == nil)
		}()
	}

	fetches := g.consumer.PollFetches(pollCtx)
	if fetches.IsClientClosed() {
		return ErrClosed
	}
	var fetchErr error
	fetches.EachError(func(_ string, _ int32, err error) {
		if fetchErr == nil {
			fetchErr = fmt.Errorf("gateway: fetch error: %w", err)
		}
	})
	if fetchErr != nil {
		return fetchErr
	}

	var notifyErr error
	fetches.EachRecord(func(rec *kgo.Record) {
		if notifyErr != nil {
			return
		}
		g.mu.RLock()
		listeners := g.routing[rec.Topic]
		g.mu.RUnlock()
		notifyErr = dispatchRecord(pollCtx, rec.Topic, rec.Value, listeners, g.metrics)
	})
	return notifyErr
}

// dispatchRecord hands one record's bytes to every listener registered for
// its topic, in order. A dead-letter Decode error is counted via metrics and
// does not halt the remaining listeners; any other error aborts and
// propagates. Pulled out of Poll so it can be exercised without a live
// broker client.
func dispatchRecord(ctx context.Context, topic string, value []byte, listeners []Listener, metrics Metrics) error {
	for _, l := range listeners {
		msg, err := l.Decode(value)
		if err != nil {
			if dl, ok := err.(deadLetterChecker); ok && dl.DeadLetter() {
				if metrics.DeadLetter != nil {
					metrics.DeadLetter(topic)
				}
				continue
			}
			return fmt.Errorf("gateway: decode %s: %w", topic, err)
		}
		if err := l.Notify(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Emit services producer delivery callbacks without blocking. franz-go
// delivers callbacks from its own internal goroutines, so this is a no-op
// kept for symmetry with spec.md's Gateway contract.
func (g *Gateway) Emit() {}

// Close flushes the producer (bounded by the given timeout) and closes the
// consumer. Idempotent; after Close, Poll and Send return ErrClosed.
func (g *Gateway) Close(ctx context.Context, flushTimeout time.Duration) error {
	g.closeMu.Lock()
	defer g.closeMu.Unlock()
	if g.IsClosed() {
		return nil
	}
	var flushErr error
	if g.producer != nil {
		flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
		defer cancel()
		if err := g.producer.Flush(flushCtx); err != nil {
			flushErr = fmt.Errorf("gateway: flush producer (messages may be lost): %w", err)
		}
		g.producer.Close()
	}
	if g.consumer != nil {
		g.consumer.Close()
	}
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return flushErr
}
