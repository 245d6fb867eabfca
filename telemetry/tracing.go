package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer. The zero value (and a nil *Tracer)
// both produce a no-op span, so tracing can be threaded through optionally
// without nil checks at every call site.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer backed by the global OpenTelemetry provider
// under instrumentation name name. Callers that never configure a
// TracerProvider get the SDK's built-in no-op implementation for free.
func NewTracer(name string) *Tracer {
	if name == "" {
		name = "fluxcache"
	}
	return &Tracer{tracer: otel.Tracer(name)}
}

// StartSpan starts a span named name, returning the derived context and the
// span. A nil *Tracer returns ctx unchanged and a no-op span.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// WithSpan runs fn inside a span named name, recording fn's returned error
// (if any) on the span via RecordError before ending it. The span status is
// not set.
func WithSpan(ctx context.Context, t *Tracer, name string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, span := t.StartSpan(ctx, name, attrs...)
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return err
}
