package bus

import "sync"

// Handler receives a decoded serializable payload for a channel it is
// subscribed to.
type Handler func(payload any)

// handlerID identifies a registered handler for removal, since Go function
// values are not comparable by identity the way the source language's
// function references are.
type handlerID uint64

// channelSubscription indexes the handlers registered for one channel.
// Invariant: when it holds zero handlers it is removed from the manager and
// the transport has no active subscribe for that channel.
type channelSubscription struct {
	handlers map[handlerID]Handler
}

func newChannelSubscription() *channelSubscription {
	return &channelSubscription{handlers: make(map[handlerID]Handler)}
}

func (s *channelSubscription) handlerCount() int { return len(s.handlers) }

// snapshot returns a point-in-time copy of the handler set so dispatch can
// iterate without racing concurrent subscribe/unsubscribe calls.
func (s *channelSubscription) snapshot() []Handler {
	out := make([]Handler, 0, len(s.handlers))
	for _, h := range s.handlers {
		out = append(out, h)
	}
	return out
}

// subscriptionManager indexes channel -> channelSubscription.
type subscriptionManager struct {
	mu      sync.RWMutex
	byName  map[string]*channelSubscription
	nextID  handlerID
}

func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{byName: make(map[string]*channelSubscription)}
}

// getOrCreate is idempotent: repeated calls for the same channel return the
// same entry.
func (m *subscriptionManager) getOrCreate(channel string) *channelSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.byName[channel]
	if !ok {
		sub = newChannelSubscription()
		m.byName[channel] = sub
	}
	return sub
}

func (m *subscriptionManager) get(channel string) (*channelSubscription, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.byName[channel]
	return sub, ok
}

// addHandler registers handler under channel and returns its id plus
// whether this was the first handler for the channel (the caller must then
// issue transport.Subscribe).
func (m *subscriptionManager) addHandler(channel string, h Handler) (handlerID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.byName[channel]
	if !ok {
		sub = newChannelSubscription()
		m.byName[channel] = sub
	}
	m.nextID++
	id := m.nextID
	first := len(sub.handlers) == 0
	sub.handlers[id] = h
	return id, first
}

func (m *subscriptionManager) removeHandlerByID(channel string, id handlerID) (empty bool, existed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.byName[channel]
	if !ok {
		return true, false
	}
	if _, existed = sub.handlers[id]; existed {
		delete(sub.handlers, id)
	}
	return len(sub.handlers) == 0, existed
}

// deleteChannel removes the channel's entry entirely, used by the
// unsubscribe(channel) (no-handler) path and by teardown on empty sets.
func (m *subscriptionManager) deleteChannel(channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byName, channel)
}

// channels lists every channel currently tracked, for reconnect re-subscribe
// and introspection (MessageBus.Channels()).
func (m *subscriptionManager) channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byName))
	for ch := range m.byName {
		out = append(out, ch)
	}
	return out
}
