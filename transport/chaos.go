package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Chaos wraps a Transport and lets callers inject deterministic failures,
// for resilience testing of middleware (retry/dead-letter) and bus reconnect
// behaviour without a live broker. It is a decorator like any middleware,
// so it composes with the rest of the chain.
type Chaos struct {
	inner Transport

	failing   atomic.Bool
	mu        sync.Mutex
	onReconn  []func()
}

// NewChaos wraps inner.
func NewChaos(inner Transport) *Chaos {
	return &Chaos{inner: inner}
}

// AlwaysFail makes every Publish/Subscribe/Unsubscribe call fail until Recover.
func (c *Chaos) AlwaysFail() { c.failing.Store(true) }

// Recover stops failing and fires the registered reconnect callbacks, as a
// real transport would after a successful reconnect.
func (c *Chaos) Recover() {
	c.failing.Store(false)
	c.mu.Lock()
	cbs := make([]func(), len(c.onReconn))
	copy(cbs, c.onReconn)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (c *Chaos) chaosErr(code ErrCode, channel string) error {
	return &Error{Code: code, Channel: channel, Retryable: true, Cause: errors.New("chaos: injected failure")}
}

func (c *Chaos) Connect(ctx context.Context) error { return c.inner.Connect(ctx) }

func (c *Chaos) Disconnect(ctx context.Context) error { return c.inner.Disconnect(ctx) }

func (c *Chaos) Publish(ctx context.Context, channel string, payload []byte) error {
	if c.failing.Load() {
		return c.chaosErr(PublishFailed, channel)
	}
	return c.inner.Publish(ctx, channel, payload)
}

func (c *Chaos) Subscribe(ctx context.Context, channel string, handler RawHandler) error {
	if c.failing.Load() {
		return c.chaosErr(SubscribeFailed, channel)
	}
	return c.inner.Subscribe(ctx, channel, handler)
}

func (c *Chaos) Unsubscribe(ctx context.Context, channel string) error {
	if c.failing.Load() {
		return c.chaosErr(UnsubscribeFailed, channel)
	}
	return c.inner.Unsubscribe(ctx, channel)
}

func (c *Chaos) OnReconnect(cb func()) {
	c.mu.Lock()
	c.onReconn = append(c.onReconn, cb)
	c.mu.Unlock()
	c.inner.OnReconnect(cb)
}

var _ Transport = (*Chaos)(nil)
