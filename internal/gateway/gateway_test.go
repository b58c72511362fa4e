package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jerling2/handshake-pipeline/internal/telemetry/tracing"
)

var errBoom = errors.New("boom")

func TestBuildRoutingUnionsTopicsAndPreservesOrder(t *testing.T) {
	var calls []string
	first := Listener{
		Topics: []string{"a", "b"},
		Decode: func(data []byte) (any, error) { return string(data), nil },
		Notify: func(ctx context.Context, msg any) error { calls = append(calls, "first:"+msg.(string)); return nil },
	}
	second := Listener{
		Topics: []string{"a"},
		Decode: func(data []byte) (any, error) { return string(data), nil },
		Notify: func(ctx context.Context, msg any) error { calls = append(calls, "second:"+msg.(string)); return nil },
	}
	routing, topics := buildRouting([]Listener{first, second})

	require.ElementsMatch(t, []string{"a", "b"}, topics)
	require.Len(t, routing["a"], 2)
	require.Len(t, routing["b"], 1)

	require.NoError(t, dispatchRecord(context.Background(), "a", []byte("hello"), routing["a"], Metrics{}))
	require.Equal(t, []string{"first:hello", "second:hello"}, calls)
}

type staticDeadLetter struct{}

func (staticDeadLetter) Error() string    { return "dead letter" }
func (staticDeadLetter) DeadLetter() bool { return true }

func TestDispatchRecordCountsDeadLettersWithoutAborting(t *testing.T) {
	var deadLetters []string
	var notified bool
	listeners := []Listener{
		{
			Decode: func(data []byte) (any, error) { return nil, staticDeadLetter{} },
			Notify: func(ctx context.Context, msg any) error { t.Fatal("notify should not run for a dead letter"); return nil },
		},
		{
			Decode: func(data []byte) (any, error) { return string(data), nil },
			Notify: func(ctx context.Context, msg any) error { notified = true; return nil },
		},
	}
	metrics := Metrics{DeadLetter: func(topic string) { deadLetters = append(deadLetters, topic) }}

	err := dispatchRecord(context.Background(), "raw.topic", []byte("payload"), listeners, metrics)
	require.NoError(t, err)
	require.True(t, notified)
	require.Equal(t, []string{"raw.topic"}, deadLetters)
}

func TestDispatchRecordPropagatesNonDeadLetterDecodeError(t *testing.T) {
	listeners := []Listener{
		{Decode: func(data []byte) (any, error) { return nil, errBoom }},
	}
	err := dispatchRecord(context.Background(), "topic", nil, listeners, Metrics{})
	require.ErrorIs(t, err, errBoom)
}

func TestDispatchRecordPropagatesNotifyError(t *testing.T) {
	listeners := []Listener{
		{
			Decode: func(data []byte) (any, error) { return data, nil },
			Notify: func(ctx context.Context, msg any) error { return errBoom },
		},
	}
	err := dispatchRecord(context.Background(), "topic", nil, listeners, Metrics{})
	require.ErrorIs(t, err, errBoom)
}

func TestGatewaySendWithoutProducerFails(t *testing.T) {
	g := New(nil, nil)
	err := g.Send(context.Background(), "topic", nil, nil, nil)
	require.ErrorIs(t, err, ErrNoProducer)
}

func TestGatewayCloseIsIdempotent(t *testing.T) {
	g := New(nil, nil)
	require.NoError(t, g.Close(context.Background(), 0))
	require.True(t, g.IsClosed())
	require.NoError(t, g.Close(context.Background(), 0))
}

func TestGatewayWithTracerDoesNotPanicOnMissingProducer(t *testing.T) {
	tr, err := tracing.New("test-gateway", "test")
	require.NoError(t, err)
	g := New(nil, nil, WithTracer(tr))
	sendErr := g.Send(context.Background(), "topic", nil, nil, nil)
	require.ErrorIs(t, sendErr, ErrNoProducer)
}

func TestGatewayWithTracerReturnsConsumerConfigErrorOnPoll(t *testing.T) {
	tr, err := tracing.New("test-gateway", "test")
	require.NoError(t, err)
	g := New(nil, nil, WithTracer(tr))
	pollErr := g.Poll(context.Background(), 0)
	require.Error(t, pollErr)
}
