package cache

import "context"

// Layer is a single cache storage tier — L1 synchronous in-process, or L2
// asynchronous and potentially remote — guarded uniformly by TieredStore,
// pluggable storage tiers.
type Layer interface {
	Name() string
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, keys ...string) (int, error)
	Clear(ctx context.Context) error
}
