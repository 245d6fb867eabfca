package cache

import (
	"context"
	"sync"
)

// MapL1 is the default, dependency-free L1 layer: a mutex-guarded map of
// live *Entry values. Structured storage (rather than opaque bytes) is what
// lets TieredStore inspect StaleAt/GcAt/Tags directly without a decode.
type MapL1 struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMapL1 constructs an empty MapL1.
func NewMapL1() *MapL1 {
	return &MapL1{entries: make(map[string]*Entry)}
}

func (m *MapL1) Name() string { return "l1:map" }

func (m *MapL1) Get(ctx context.Context, key string) (*Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MapL1) Set(ctx context.Context, key string, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
	return nil
}

func (m *MapL1) Delete(ctx context.Context, keys ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := m.entries[k]; ok {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MapL1) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	return nil
}

var _ Layer = (*MapL1)(nil)
