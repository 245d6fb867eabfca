package telemetry

import (
	"context"
	"time"

	"github.com/lokicoule-stack/fluxcache/bus"
	"github.com/lokicoule-stack/fluxcache/cache"
	"github.com/lokicoule-stack/fluxcache/retryqueue"
)

// BusHooks builds a bus.Hooks value that records publishes and errors into
// m. OnSubscribe, OnUnsubscribe and OnHandlerExecution are left unset.
// Pass the result to bus.New; m may be nil.
func BusHooks(m *MetricSet) bus.Hooks {
	return bus.Hooks{
		OnPublish: func(channel string, d time.Duration) {
			m.RecordBusPublished(channel)
		},
		OnError: func(operation string, err error) {
			m.RecordError(operation)
		},
	}
}

// CacheEvents builds a cache.Events value that records hits, misses, errors
// and bus published/received events into m. OnSet, OnDelete and OnClear are
// left unset. Pass the result to cache.NewInternalCache; m may be nil.
func CacheEvents(m *MetricSet) cache.Events {
	return cache.Events{
		OnHit: func(ev cache.HitEvent) {
			m.RecordHit(ev.Driver, ev.Duration)
		},
		OnMiss: func(key string) {
			m.RecordMiss()
		},
		OnError: func(operation string, err error) {
			m.RecordError(operation)
		},
		OnBusPublished: func(channel string) {
			m.RecordBusPublished(channel)
		},
		OnBusReceived: func(channel string) {
			m.RecordBusReceived(channel)
		},
	}
}

// BusTracer adapts t into a bus.TracerFunc suitable for
// MessageBus.WithTracer. t may be nil, in which case spans are no-ops.
func BusTracer(t *Tracer) bus.TracerFunc {
	return func(ctx context.Context, name string) (context.Context, func()) {
		spanCtx, span := t.StartSpan(ctx, name)
		return spanCtx, func() { span.End() }
	}
}

// CacheTracer adapts t into a cache.TracerFunc suitable for
// InternalCache.WithTracer. t may be nil, in which case spans are no-ops.
func CacheTracer(t *Tracer) cache.TracerFunc {
	return func(ctx context.Context, name string) (context.Context, func()) {
		spanCtx, span := t.StartSpan(ctx, name)
		return spanCtx, func() { span.End() }
	}
}

// RetryDeadLetterCounter returns a middleware.RetryConfig.OnDeadLetter
// callback that records into m.
func RetryDeadLetterCounter(m *MetricSet) func(channel string, payload []byte, cause error, attempts int) {
	return func(channel string, payload []byte, cause error, attempts int) {
		m.RecordDeadLetter(channel)
	}
}

// QueueDeadLetterCounter returns a retryqueue.Config.OnDeadLetter callback
// that records into m.
func QueueDeadLetterCounter(m *MetricSet) func(msg retryqueue.QueuedMessage, err error) {
	return func(msg retryqueue.QueuedMessage, err error) {
		m.RecordDeadLetter(msg.Channel)
	}
}
