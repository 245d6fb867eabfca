package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracerStartSpanNilSafe(t *testing.T) {
	var tr *Tracer
	ctx, span := tr.StartSpan(context.Background(), "op")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestTracerStartSpanWithNoProviderIsNoop(t *testing.T) {
	tr := NewTracer("fluxcache-test")
	ctx, span := tr.StartSpan(context.Background(), "cache.get")
	require.NotNil(t, ctx)
	require.False(t, span.IsRecording(), "no TracerProvider configured, so the span must be a no-op")
	span.End()
}

func TestWithSpanPropagatesResult(t *testing.T) {
	tr := NewTracer("fluxcache-test")
	boom := errors.New("boom")
	err := WithSpan(context.Background(), tr, "cache.getOrSet", nil, func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = WithSpan(context.Background(), tr, "cache.get", nil, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}
