package cache

import (
	"context"

	"github.com/lokicoule-stack/fluxcache/bus"
)

const (
	channelInvalidate     = "cache:invalidate"
	channelInvalidateTags = "cache:invalidate:tags"
	channelClear          = "cache:clear"
)

type invalidatePayload struct {
	Keys  []string `msgpack:"keys" json:"keys"`
	Store string   `msgpack:"store" json:"store"`
}

type invalidateTagsPayload struct {
	Tags  []string `msgpack:"tags" json:"tags"`
	Store string   `msgpack:"store" json:"store"`
}

type clearPayload struct {
	Store string `msgpack:"store" json:"store"`
}

// DistributedSync carries local cache mutations onto the bus's
// cache:invalidate / cache:invalidate:tags / cache:clear channel schema,
// and applies remote events from other instances back to this instance's
// L1 tier only — the shared L2 already reflects the mutation, so remote
// events never touch L2.
//
// storeName scopes events to one logical store: a bus may carry traffic
// for several named caches, and an instance must ignore events whose store
// name doesn't match its own (to avoid echoing another logical store's
// invalidations into this one).
type DistributedSync struct {
	bus       *bus.MessageBus
	storeName string
	target    *TieredStore
	events    Events

	subs []bus.Subscription
}

// NewDistributedSync wires b to target's L1 tier, scoped to storeName.
func NewDistributedSync(b *bus.MessageBus, storeName string, target *TieredStore, events Events) *DistributedSync {
	return &DistributedSync{bus: b, storeName: storeName, target: target, events: events}
}

// Start subscribes to all three channels. Call once per instance.
func (s *DistributedSync) Start(ctx context.Context) error {
	sub, err := s.bus.Subscribe(ctx, channelInvalidate, s.onInvalidate)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	sub, err = s.bus.Subscribe(ctx, channelInvalidateTags, s.onInvalidateTags)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	sub, err = s.bus.Subscribe(ctx, channelClear, s.onClear)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	return nil
}

// Stop unsubscribes from every channel this sync registered.
func (s *DistributedSync) Stop(ctx context.Context) {
	for _, sub := range s.subs {
		_ = s.bus.Unsubscribe(ctx, sub)
	}
	s.subs = nil
}

func (s *DistributedSync) onInvalidate(payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	if storeField(m) != s.storeName {
		return
	}
	s.events.safeBusReceived(channelInvalidate)
	keys := stringsField(m, "keys")
	_ = s.target.InvalidateL1(context.Background(), keys...)
}

func (s *DistributedSync) onInvalidateTags(payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	if storeField(m) != s.storeName {
		return
	}
	s.events.safeBusReceived(channelInvalidateTags)
	tags := stringsField(m, "tags")
	keys := s.target.tagIndex.Invalidate(tags)
	if len(keys) > 0 {
		_, _ = s.target.l1Delete(context.Background(), keys)
	}
}

func (s *DistributedSync) onClear(payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	if storeField(m) != s.storeName {
		return
	}
	s.events.safeBusReceived(channelClear)
	_ = s.target.ClearL1(context.Background())
}

// PublishDelete implements syncPublisher.
func (s *DistributedSync) PublishDelete(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := s.bus.Publish(ctx, channelInvalidate, invalidatePayload{Keys: keys, Store: s.storeName}); err == nil {
		s.events.safeBusPublished(channelInvalidate)
	}
}

// PublishClear implements syncPublisher.
func (s *DistributedSync) PublishClear(ctx context.Context) {
	if err := s.bus.Publish(ctx, channelClear, clearPayload{Store: s.storeName}); err == nil {
		s.events.safeBusPublished(channelClear)
	}
}

// PublishInvalidateTags implements syncPublisher.
func (s *DistributedSync) PublishInvalidateTags(ctx context.Context, tags []string) {
	if len(tags) == 0 {
		return
	}
	if err := s.bus.Publish(ctx, channelInvalidateTags, invalidateTagsPayload{Tags: tags, Store: s.storeName}); err == nil {
		s.events.safeBusPublished(channelInvalidateTags)
	}
}

func storeField(m map[string]any) string {
	v, _ := m["store"].(string)
	return v
}

func stringsField(m map[string]any, field string) []string {
	raw, ok := m[field]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

var _ syncPublisher = (*DistributedSync)(nil)
