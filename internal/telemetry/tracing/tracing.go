// Package tracing sets up a real OpenTelemetry TracerProvider and exposes
// the small surface the gateway uses to span its poll and send
// operations, grounded on the teacher's
// OpenTelemetryTracer in engine/monitoring/monitoring.go.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OTel tracer for a single service/environment.
type Tracer struct {
	tracer oteltrace.Tracer
}

// New sets the process-wide TracerProvider (no exporter is attached, so
// spans stay inside the process) and returns a Tracer scoped to
// serviceName.
func New(serviceName, environment string) (*Tracer, error) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String(environment),
		)),
	)
	otel.SetTracerProvider(tp)
	return &Tracer{tracer: otel.Tracer(serviceName)}, nil
}

// Start begins a span named name, attaching attrs as string key/value pairs.
func (t *Tracer) Start(ctx context.Context, name string, attrs map[string]any) (context.Context, oteltrace.Span) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, fmt.Sprintf("%v", v)))
	}
	return t.tracer.Start(ctx, name, oteltrace.WithAttributes(kvs...))
}

// RecordError records err on the span active in ctx, if any.
func RecordError(ctx context.Context, err error) {
	span := oteltrace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
	}
}

// End finishes span, marking success as an attribute the way
// FinishBusinessOperation does.
func End(span oteltrace.Span, success bool) {
	span.SetAttributes(attribute.Bool("operation.success", success))
	span.End()
}
