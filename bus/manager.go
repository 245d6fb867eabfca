package bus

import (
	"context"
	"sync"

	"github.com/lokicoule-stack/fluxcache/codec"
	"github.com/lokicoule-stack/fluxcache/transport"
)

// Options is the fully-assembled wiring for one named bus. Building the
// Transport/Codec themselves (driver selection, option parsing) is the
// construction façade's job; BusManager only
// lazily turns Options into a MessageBus.
type Options struct {
	Transport transport.Transport
	Codec     codec.Codec
	Hooks     Hooks
}

// Manager lazily instantiates named buses from a registry and proxies
// default-bus operations.
type Manager struct {
	mu          sync.Mutex
	registry    map[string]Options
	defaultName string
	cache       map[string]*MessageBus
}

// NewManager constructs an empty BusManager.
func NewManager() *Manager {
	return &Manager{
		registry: make(map[string]Options),
		cache:    make(map[string]*MessageBus),
	}
}

// Register adds or replaces the named transport/codec wiring.
func (m *Manager) Register(name string, opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[name] = opts
}

// SetDefault designates which registered name Use("") resolves to.
func (m *Manager) SetDefault(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultName = name
}

// Use returns the cached bus for name, constructing it on first access.
// An empty name resolves to the configured default.
func (m *Manager) Use(name string) (*MessageBus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resolved, err := m.resolveLocked(name)
	if err != nil {
		return nil, err
	}
	if b, ok := m.cache[resolved]; ok {
		return b, nil
	}
	opts, ok := m.registry[resolved]
	if !ok {
		return nil, &UnknownTransportError{Name: resolved}
	}
	b := New(opts.Transport, opts.Codec, opts.Hooks)
	m.cache[resolved] = b
	return b, nil
}

func (m *Manager) resolveLocked(name string) (string, error) {
	if name != "" {
		if _, ok := m.registry[name]; !ok {
			return "", &UnknownTransportError{Name: name}
		}
		return name, nil
	}
	if m.defaultName == "" {
		return "", &NoDefaultError{}
	}
	return m.defaultName, nil
}

// Start connects the named bus, or every cached bus when name is empty.
func (m *Manager) Start(ctx context.Context, name string) error {
	buses, err := m.targets(name)
	if err != nil {
		return err
	}
	for _, b := range buses {
		if err := b.Connect(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop disconnects the named bus, or every cached bus when name is empty —
// in which case the cache is cleared too, so a subsequent Use rebuilds.
func (m *Manager) Stop(ctx context.Context, name string) error {
	buses, err := m.targets(name)
	if err != nil {
		return err
	}
	for _, b := range buses {
		if err := b.Disconnect(ctx); err != nil {
			return err
		}
	}
	if name == "" {
		m.mu.Lock()
		m.cache = make(map[string]*MessageBus)
		m.mu.Unlock()
	}
	return nil
}

func (m *Manager) targets(name string) ([]*MessageBus, error) {
	if name != "" {
		b, err := m.Use(name)
		if err != nil {
			return nil, err
		}
		return []*MessageBus{b}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MessageBus, 0, len(m.cache))
	for _, b := range m.cache {
		out = append(out, b)
	}
	return out, nil
}

// Publish proxies to the default bus.
func (m *Manager) Publish(ctx context.Context, channel string, value any) error {
	b, err := m.Use("")
	if err != nil {
		return err
	}
	return b.Publish(ctx, channel, value)
}

// Subscribe proxies to the default bus.
func (m *Manager) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	b, err := m.Use("")
	if err != nil {
		return Subscription{}, err
	}
	return b.Subscribe(ctx, channel, handler)
}

// Unsubscribe proxies to the default bus.
func (m *Manager) Unsubscribe(ctx context.Context, sub Subscription) error {
	b, err := m.Use("")
	if err != nil {
		return err
	}
	return b.Unsubscribe(ctx, sub)
}
