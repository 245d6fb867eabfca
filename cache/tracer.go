package cache

import "context"

// TracerFunc starts a span named name and returns a context carrying it
// plus a function to call when the operation completes. A nil TracerFunc
// (the default) makes tracing a no-op.
type TracerFunc func(ctx context.Context, name string) (context.Context, func())

func (c *InternalCache) startSpan(ctx context.Context, name string) (context.Context, func()) {
	if c.tracer == nil {
		return ctx, func() {}
	}
	return c.tracer(ctx, name)
}

// WithTracer attaches a TracerFunc to c, wrapping Get/Set/GetOrSet in spans.
// Returns c for chaining. Passing nil disables tracing.
func (c *InternalCache) WithTracer(tracer TracerFunc) *InternalCache {
	c.tracer = tracer
	return c
}
