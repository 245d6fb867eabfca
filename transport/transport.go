// Package transport abstracts pub/sub delivery so the bus and its
// middleware chain never depend on a concrete broker.
package transport

import "context"

// RawHandler receives the raw bytes published to a channel. The transport
// itself never decodes; that is the bus/codec's job.
type RawHandler func(channel string, payload []byte)

// Transport is the contract every concrete broker and every middleware
// decorator implements identically.
type Transport interface {
	// Connect establishes underlying resources. Idempotent.
	Connect(ctx context.Context) error
	// Disconnect releases underlying resources. Idempotent.
	Disconnect(ctx context.Context) error
	// Publish is fire-and-forget: no delivery acknowledgment.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe installs the single raw handler for channel. The bus calls
	// Subscribe again for an already-subscribed channel only when
	// re-subscribing after a reconnect; the new handler replaces the old.
	Subscribe(ctx context.Context, channel string, handler RawHandler) error
	// Unsubscribe tears down delivery for channel.
	Unsubscribe(ctx context.Context, channel string) error
	// OnReconnect registers a callback invoked after a successful
	// reconnect, so the bus can re-issue outstanding subscribes.
	OnReconnect(cb func())
}
