package bus

import "context"

// TracerFunc starts a span named name and returns a context carrying it
// plus a function to call when the operation completes. A nil TracerFunc
// (the default) makes tracing a no-op.
type TracerFunc func(ctx context.Context, name string) (context.Context, func())

func (b *MessageBus) startSpan(ctx context.Context, name string) (context.Context, func()) {
	if b.tracer == nil {
		return ctx, func() {}
	}
	return b.tracer(ctx, name)
}

// WithTracer attaches a TracerFunc to b, wrapping Publish/Subscribe in
// spans. Returns b for chaining. Passing nil disables tracing.
func (b *MessageBus) WithTracer(tracer TracerFunc) *MessageBus {
	b.tracer = tracer
	return b
}
