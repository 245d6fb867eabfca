package cache

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// syncPublisher is the subset of DistributedSync that InternalCache calls
// after a local mutation. Kept as an interface so InternalCache can be
// built and tested without a bus.
type syncPublisher interface {
	PublishDelete(ctx context.Context, keys []string)
	PublishClear(ctx context.Context)
	PublishInvalidateTags(ctx context.Context, tags []string)
}

type noopSync struct{}

func (noopSync) PublishDelete(ctx context.Context, keys []string)     {}
func (noopSync) PublishClear(ctx context.Context)                     {}
func (noopSync) PublishInvalidateTags(ctx context.Context, tags []string) {}

// Config carries the defaults InternalCache falls back to when a call's
// options don't override them.
type Config struct {
	StaleTime    time.Duration
	GcTime       time.Duration
	Clone        bool
	Retries      int
	HasTimeout   bool
	Timeout      time.Duration
	AbortOnTimeout bool
	// EagerRefreshRatio, if > 0, triggers a deduped background reload of a
	// fresh entry once it has consumed that fraction of its fresh window.
	EagerRefreshRatio float64
}

// DefaultConfig returns conservative zero-value-friendly defaults: no
// eager refresh, no retries, synchronous loader waits.
func DefaultConfig() Config {
	return Config{StaleTime: 30 * time.Second, GcTime: 5 * time.Minute}
}

// GetOptions configures a single Get call.
type GetOptions struct {
	Clone bool
}

// SetOptions overrides Config.StaleTime/GcTime for a single Set call. A
// zero duration means "use the config default".
type SetOptions struct {
	StaleTime time.Duration
	GcTime    time.Duration
	Tags      []string
}

// GetOrSetOptions overrides Config for a single getOrSet call.
type GetOrSetOptions struct {
	StaleTime         time.Duration
	GcTime            time.Duration
	Tags              []string
	Clone             bool
	HasTimeout        bool
	Timeout           time.Duration
	AbortOnTimeout    bool
	Retries           int
	Fresh             bool
	EagerRefreshRatio float64
}

// InternalCache orchestrates TieredStore, Deduplicator, entry construction,
// event emission and distributed sync — the single entry point application
// code calls into.
type InternalCache struct {
	store  *TieredStore
	dedup  *Deduplicator
	events Events
	sync   syncPublisher
	cfg    Config
	tracer TracerFunc
}

// NewInternalCache constructs an InternalCache. sync may be nil, in which
// case local mutations are not published anywhere (single-instance
// deployments).
func NewInternalCache(store *TieredStore, dedup *Deduplicator, events Events, sync syncPublisher, cfg Config) *InternalCache {
	if sync == nil {
		sync = noopSync{}
	}
	return &InternalCache{store: store, dedup: dedup, events: events, sync: sync, cfg: cfg}
}

func cloneValue(v any) any {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := msgpack.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// Get reads key through the tiered store, emitting hit/miss.
func (c *InternalCache) Get(ctx context.Context, key string, opts GetOptions) (any, bool, error) {
	ctx, end := c.startSpan(ctx, "cache.get")
	defer end()
	started := now()
	res, err := c.store.Get(ctx, key)
	if err != nil {
		c.events.safeError("get", err)
		return nil, false, err
	}
	if !res.Found {
		c.events.safeMiss(key)
		return nil, false, nil
	}
	c.events.safeHit(HitEvent{Key: key, Driver: res.Source, Graced: res.Graced, Duration: now().Sub(started)})
	v := res.Entry.Value
	if opts.Clone {
		v = cloneValue(v)
	}
	return v, true, nil
}

// Set persists value under key and emits "set". Per the store's own
// single-writer assumption, a plain set never broadcasts over sync — only
// invalidations are, since L2 is already shared infrastructure.
func (c *InternalCache) Set(ctx context.Context, key string, value any, opts SetOptions) error {
	ctx, end := c.startSpan(ctx, "cache.set")
	defer end()
	staleTime := opts.StaleTime
	if staleTime == 0 {
		staleTime = c.cfg.StaleTime
	}
	gcTime := opts.GcTime
	if gcTime == 0 {
		gcTime = c.cfg.GcTime
	}
	entry := NewEntry(value, now(), staleTime, gcTime, opts.Tags)
	if err := c.store.Set(ctx, key, entry); err != nil {
		c.events.safeError("set", err)
		return err
	}
	c.events.safeSet(key)
	return nil
}

// loadAndStore invokes loader under ctx (optionally retried), stores the
// result and returns it. Loader failures are wrapped as LoaderError.
func (c *InternalCache) loadAndStore(ctx context.Context, key string, loader Loader, staleTime, gcTime time.Duration, tags []string, retries int) (any, error) {
	attempt := func(ctx context.Context) (any, error) {
		return loader(ctx)
	}
	run := attempt
	if retries > 0 {
		run = func(ctx context.Context) (any, error) {
			var lastErr error
			delay := 100 * time.Millisecond
			for i := 0; i <= retries; i++ {
				v, err := attempt(ctx)
				if err == nil {
					return v, nil
				}
				lastErr = err
				if i == retries {
					break
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
				delay *= 2
			}
			return nil, lastErr
		}
	}

	v, err := run(ctx)
	if err != nil {
		return nil, newLoaderError(key, err)
	}
	entry := NewEntry(v, now(), staleTime, gcTime, tags)
	_ = c.store.Set(ctx, key, entry)
	return v, nil
}

// GetOrSet implements the tiered-then-loader path with fresh/stale/miss
// branches, single-flighted against concurrent callers for the same key.
func (c *InternalCache) GetOrSet(ctx context.Context, key string, loader Loader, opts GetOrSetOptions) (any, error) {
	ctx, end := c.startSpan(ctx, "cache.getOrSet")
	defer end()
	staleTime := opts.StaleTime
	if staleTime == 0 {
		staleTime = c.cfg.StaleTime
	}
	gcTime := opts.GcTime
	if gcTime == 0 {
		gcTime = c.cfg.GcTime
	}
	clone := opts.Clone || c.cfg.Clone
	retries := opts.Retries
	if retries == 0 {
		retries = c.cfg.Retries
	}

	reload := func() (any, error) {
		return c.dedup.Do(context.Background(), key, func(ctx context.Context) (any, error) {
			return c.loadAndStore(ctx, key, loader, staleTime, gcTime, opts.Tags, retries)
		})
	}

	if opts.Fresh {
		v, err := reload()
		if err != nil {
			return nil, err
		}
		if clone {
			v = cloneValue(v)
		}
		return v, nil
	}

	started := now()
	res, err := c.store.Get(ctx, key)
	if err != nil {
		c.events.safeError("getOrSet", err)
		return nil, err
	}

	if res.Found && !res.Entry.IsStale(now()) {
		ratio := opts.EagerRefreshRatio
		if ratio == 0 {
			ratio = c.cfg.EagerRefreshRatio
		}
		if ratio > 0 && res.Entry.IsNearExpiration(now(), ratio) {
			go func() { _, _ = reload() }()
		}
		c.events.safeHit(HitEvent{Key: key, Driver: res.Source, Graced: false, Duration: now().Sub(started)})
		v := res.Entry.Value
		if clone {
			v = cloneValue(v)
		}
		return v, nil
	}

	if res.Found && !res.Entry.IsGced(now()) {
		hasTimeout := opts.HasTimeout
		timeout := opts.Timeout
		if !hasTimeout && c.cfg.HasTimeout {
			hasTimeout = true
			timeout = c.cfg.Timeout
		}
		abortOnTimeout := opts.AbortOnTimeout || c.cfg.AbortOnTimeout

		swr, err := WithSwr(ctx, func(fnCtx context.Context) (any, error) {
			return reload()
		}, SwrOptions{
			HasStale:          true,
			StaleValue:        res.Entry.Value,
			HasTimeout:        hasTimeout,
			Timeout:           timeout,
			AbortOnTimeout:    abortOnTimeout,
			BackgroundRefresh: func() { go func() { _, _ = reload() }() },
		})
		if err != nil {
			c.events.safeError("getOrSet", err)
			return nil, err
		}
		c.events.safeHit(HitEvent{Key: key, Driver: res.Source, Graced: swr.Stale, Duration: now().Sub(started)})
		v := swr.Value
		if clone {
			v = cloneValue(v)
		}
		return v, nil
	}

	c.events.safeMiss(key)
	v, err := reload()
	if err != nil {
		return nil, err
	}
	if clone {
		v = cloneValue(v)
	}
	return v, nil
}

// Delete removes keys, emits "delete" per key, then publishes the
// invalidation over sync.
func (c *InternalCache) Delete(ctx context.Context, keys ...string) (int, error) {
	n, err := c.store.Delete(ctx, keys...)
	if err != nil {
		c.events.safeError("delete", err)
		return n, err
	}
	for _, k := range keys {
		c.events.safeDelete(k)
		c.dedup.Invalidate(k)
	}
	c.sync.PublishDelete(ctx, keys)
	return n, nil
}

// Clear empties every tier, emits "clear", then publishes it over sync.
func (c *InternalCache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		c.events.safeError("clear", err)
		return err
	}
	c.events.safeClear()
	c.dedup.InvalidateAll()
	c.sync.PublishClear(ctx)
	return nil
}

// InvalidateTags deletes every key registered under any of tags, then
// publishes the invalidation over sync.
func (c *InternalCache) InvalidateTags(ctx context.Context, tags []string) (int, error) {
	n, err := c.store.InvalidateTags(ctx, tags)
	if err != nil {
		c.events.safeError("invalidateTags", err)
		return n, err
	}
	c.sync.PublishInvalidateTags(ctx, tags)
	return n, nil
}

// Expire rewrites key's entry as already-stale (StaleAt = now-1ns) via a
// plain set, returning whether the entry existed.
func (c *InternalCache) Expire(ctx context.Context, key string) (bool, error) {
	res, err := c.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !res.Found {
		return false, nil
	}
	expired := res.Entry.Expired(now())
	if err := c.store.Set(ctx, key, expired); err != nil {
		return false, err
	}
	return true, nil
}

// Pull reads key then deletes it, returning the value that was present.
func (c *InternalCache) Pull(ctx context.Context, key string) (any, bool, error) {
	v, ok, err := c.Get(ctx, key, GetOptions{})
	if err != nil || !ok {
		return v, ok, err
	}
	if _, err := c.Delete(ctx, key); err != nil {
		return v, ok, err
	}
	return v, ok, nil
}

// Namespace returns a new InternalCache sharing the store (prefixed),
// events, deduplicator and sync with this one.
func (c *InternalCache) Namespace(prefix string) *InternalCache {
	return &InternalCache{
		store:  c.store.Namespace(prefix),
		dedup:  c.dedup,
		events: c.events,
		sync:   c.sync,
		cfg:    c.cfg,
		tracer: c.tracer,
	}
}
