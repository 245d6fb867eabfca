// Package bus implements the distributed message bus engine: subscription
// bookkeeping, the codec layer, and Redis/memory transport wiring, per
// message dispatch.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/lokicoule-stack/fluxcache/codec"
	"github.com/lokicoule-stack/fluxcache/transport"
	uuid "github.com/satori/go.uuid"
)

// Subscription is the token returned by Subscribe, used to remove exactly
// that handler later. Go function values have no usable identity, so unlike
// the source system's set-by-reference semantics, callers hold this token.
type Subscription struct {
	Channel string
	id      handlerID
}

// MessageBus is the public façade: it owns the transport, codec,
// subscription bookkeeping and dispatcher, and enforces that the transport
// subscribes at most once per channel.
type MessageBus struct {
	id         string
	transport  transport.Transport
	codec      codec.Codec
	subs       *subscriptionManager
	dispatcher *dispatcher
	hooks      Hooks
	tracer     TracerFunc

	mu        sync.Mutex
	connected bool
}

// New constructs a MessageBus over the given transport and codec.
func New(t transport.Transport, c codec.Codec, hooks Hooks) *MessageBus {
	b := &MessageBus{
		id:        uuid.NewV4().String(),
		transport: t,
		codec:     c,
		subs:      newSubscriptionManager(),
		hooks:     hooks,
	}
	b.dispatcher = newDispatcher(c, b.onHandlerError, hooks.safeHandlerExecution)
	t.OnReconnect(b.resubscribeAll)
	return b
}

// ID is this bus instance's identifier, stable for its lifetime.
func (b *MessageBus) ID() string { return b.id }

// Connect connects the underlying transport. Idempotent.
func (b *MessageBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}
	if err := b.transport.Connect(ctx); err != nil {
		return &OperationError{Operation: "connect", Cause: err}
	}
	b.connected = true
	return nil
}

// Publish encodes value and publishes it on channel.
func (b *MessageBus) Publish(ctx context.Context, channel string, value any) error {
	ctx, end := b.startSpan(ctx, "bus.publish")
	defer end()
	started := time.Now()
	data, err := b.codec.Encode(value)
	if err != nil {
		wrapped := &OperationError{Operation: "publish", Cause: err}
		b.hooks.safeError("publish", wrapped)
		return wrapped
	}
	if err := b.transport.Publish(ctx, channel, data); err != nil {
		wrapped := &OperationError{Operation: "publish", Cause: err}
		b.hooks.safeError("publish", wrapped)
		return wrapped
	}
	b.hooks.safePublish(channel, time.Since(started))
	return nil
}

// Subscribe adds handler to channel's handler set, issuing the underlying
// transport subscribe only for the first handler on that channel.
func (b *MessageBus) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	ctx, end := b.startSpan(ctx, "bus.subscribe")
	defer end()
	id, first := b.subs.addHandler(channel, handler)
	if first {
		if err := b.transport.Subscribe(ctx, channel, b.rawHandlerFor(channel)); err != nil {
			b.subs.removeHandlerByID(channel, id)
			b.subs.deleteChannel(channel)
			wrapped := &OperationError{Operation: "subscribe", Cause: err}
			b.hooks.safeError("subscribe", wrapped)
			return Subscription{}, wrapped
		}
	}
	b.hooks.safeSubscribe(channel)
	return Subscription{Channel: channel, id: id}, nil
}

// Unsubscribe removes sub's handler. If the channel's handler set becomes
// empty, the underlying transport subscription is torn down too.
func (b *MessageBus) Unsubscribe(ctx context.Context, sub Subscription) error {
	empty, existed := b.subs.removeHandlerByID(sub.Channel, sub.id)
	if !existed {
		return nil // unknown handler is a no-op
	}
	if empty {
		b.subs.deleteChannel(sub.Channel)
		if err := b.transport.Unsubscribe(ctx, sub.Channel); err != nil {
			wrapped := &OperationError{Operation: "unsubscribe", Cause: err}
			b.hooks.safeError("unsubscribe", wrapped)
			return wrapped
		}
	}
	b.hooks.safeUnsubscribe(sub.Channel)
	return nil
}

// UnsubscribeChannel removes every handler for channel and tears down the
// transport subscription. Unknown channel is a no-op.
func (b *MessageBus) UnsubscribeChannel(ctx context.Context, channel string) error {
	if _, ok := b.subs.get(channel); !ok {
		return nil
	}
	b.subs.deleteChannel(channel)
	if err := b.transport.Unsubscribe(ctx, channel); err != nil {
		wrapped := &OperationError{Operation: "unsubscribe", Cause: err}
		b.hooks.safeError("unsubscribe", wrapped)
		return wrapped
	}
	b.hooks.safeUnsubscribe(channel)
	return nil
}

// Channels lists every channel currently subscribed through this bus.
func (b *MessageBus) Channels() []string {
	return b.subs.channels()
}

// Disconnect unsubscribes every channel (collecting, not re-raising,
// per-channel errors) then disconnects the transport.
func (b *MessageBus) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil
	}
	for _, ch := range b.subs.channels() {
		if err := b.transport.Unsubscribe(ctx, ch); err != nil {
			b.hooks.safeError("disconnect:unsubscribe", err)
		}
		b.subs.deleteChannel(ch)
	}
	if err := b.transport.Disconnect(ctx); err != nil {
		return &OperationError{Operation: "disconnect", Cause: err}
	}
	b.connected = false
	return nil
}

func (b *MessageBus) rawHandlerFor(channel string) transport.RawHandler {
	return func(ch string, payload []byte) {
		sub, ok := b.subs.get(ch)
		if !ok {
			return
		}
		b.dispatcher.dispatch(ch, payload, sub.snapshot())
	}
}

func (b *MessageBus) onHandlerError(channel string, err error) {
	herr := &HandlerError{Channel: channel, Cause: err}
	b.hooks.safeError("handler", herr)
}

// resubscribeAll re-issues transport.Subscribe for every channel currently
// tracked, after a transport reconnect. Messages in flight during the
// disconnect are lost; only new messages are delivered afterward.
func (b *MessageBus) resubscribeAll() {
	ctx := context.Background()
	for _, ch := range b.subs.channels() {
		if err := b.transport.Subscribe(ctx, ch, b.rawHandlerFor(ch)); err != nil {
			b.hooks.safeError("resubscribe", &OperationError{Operation: "resubscribe", Cause: err})
		}
	}
}
