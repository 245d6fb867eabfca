package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultRevalidateWindow bounds how often a stale key re-triggers a
// background refresh, even under a thundering herd of readers.
const DefaultRevalidateWindow = 2 * time.Second

// Loader produces a fresh value for key. Implementations should observe
// ctx and return promptly once it is cancelled.
type Loader func(ctx context.Context) (any, error)

type swrSlot struct {
	data     any
	cachedAt time.Time
}

// Deduplicator implements both a group.Do-style single-flight
// pattern (cache.go's per-key group) and a stale-while-revalidate layer
// built on top of it: plain calls collapse concurrent loaders for the same
// key, SWR calls additionally serve a cached value while refreshing it in
// the background at most once per revalidateWindow.
type Deduplicator struct {
	inflight singleflight.Group

	mu               sync.Mutex
	cache            map[string]swrSlot
	lastRevalidation map[string]time.Time
	revalidating     map[string]bool
	revalidateWindow time.Duration

	onError func(key string, err error)
}

// DeduplicatorOption configures a Deduplicator at construction time.
type DeduplicatorOption func(*Deduplicator)

// WithRevalidateWindow overrides the default 2s minimum spacing between
// background revalidations of the same key.
func WithRevalidateWindow(d time.Duration) DeduplicatorOption {
	return func(dd *Deduplicator) { dd.revalidateWindow = d }
}

// WithOnError registers a callback invoked when a GetOrLoadSWR loader fails,
// both for background revalidations and for the blocking first load (whose
// error is also returned to the caller).
func WithOnError(f func(key string, err error)) DeduplicatorOption {
	return func(dd *Deduplicator) { dd.onError = f }
}

// NewDeduplicator constructs an empty Deduplicator.
func NewDeduplicator(opts ...DeduplicatorOption) *Deduplicator {
	d := &Deduplicator{
		cache:            make(map[string]swrSlot),
		lastRevalidation: make(map[string]time.Time),
		revalidating:     make(map[string]bool),
		revalidateWindow: DefaultRevalidateWindow,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Do runs the plain inflight-dedup strategy: concurrent callers for the
// same key share one loader invocation and its result, by value.
func (d *Deduplicator) Do(ctx context.Context, key string, load Loader) (any, error) {
	v, err, _ := d.inflight.Do(key, func() (any, error) {
		return load(ctx)
	})
	return v, err
}

// GetOrLoadSWR implements the staleTime-bearing strategy: a cached value is
// returned immediately once present, with a background refresh kicked off
// at most once per revalidateWindow once the value is stale. The first
// call for a key runs the loader single-flighted and blocks.
func (d *Deduplicator) GetOrLoadSWR(ctx context.Context, key string, staleTime time.Duration, load Loader) (any, error) {
	d.mu.Lock()
	slot, ok := d.cache[key]
	d.mu.Unlock()

	if ok {
		if now().Sub(slot.cachedAt) > staleTime {
			d.maybeRevalidate(key, load)
		}
		return slot.data, nil
	}

	v, err, _ := d.inflight.Do(key, func() (any, error) {
		val, loadErr := load(ctx)
		if loadErr != nil {
			if d.onError != nil {
				d.onError(key, loadErr)
			}
			return nil, loadErr
		}
		d.mu.Lock()
		d.cache[key] = swrSlot{data: val, cachedAt: now()}
		d.mu.Unlock()
		return val, nil
	})
	return v, err
}

// maybeRevalidate schedules a background reload for key unless one is
// already pending or the window since the last one hasn't elapsed.
func (d *Deduplicator) maybeRevalidate(key string, load Loader) {
	d.mu.Lock()
	if d.revalidating[key] {
		d.mu.Unlock()
		return
	}
	if last, ok := d.lastRevalidation[key]; ok && now().Sub(last) < d.revalidateWindow {
		d.mu.Unlock()
		return
	}
	d.revalidating[key] = true
	d.mu.Unlock()

	go func() {
		defer func() {
			d.mu.Lock()
			delete(d.revalidating, key)
			d.lastRevalidation[key] = now()
			d.mu.Unlock()
		}()
		val, err, _ := d.inflight.Do(key+"#revalidate", func() (any, error) {
			return load(context.Background())
		})
		if err != nil {
			if d.onError != nil {
				d.onError(key, err)
			}
			return
		}
		d.mu.Lock()
		d.cache[key] = swrSlot{data: val, cachedAt: now()}
		d.mu.Unlock()
	}()
}

// Invalidate clears every tracked slot for key.
func (d *Deduplicator) Invalidate(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, key)
	delete(d.lastRevalidation, key)
	delete(d.revalidating, key)
}

// InvalidateAll clears all SWR state. Inflight single-flight calls already
// running are unaffected and will still settle normally.
func (d *Deduplicator) InvalidateAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = make(map[string]swrSlot)
	d.lastRevalidation = make(map[string]time.Time)
	d.revalidating = make(map[string]bool)
}

// SwrResult is the outcome of WithSwr: the value to serve the caller and
// whether it came from the stale fallback rather than a fresh fetch.
type SwrResult struct {
	Value any
	Stale bool
}

// SwrOptions configures WithSwr's race between a fresh fetch and a cached
// fallback value.
type SwrOptions struct {
	// HasStale and StaleValue carry the existing cached value, if any.
	HasStale   bool
	StaleValue any

	// Timeout bounds how long to wait for fn before falling back to the
	// stale value. Zero or negative means return the stale value
	// immediately without even trying fn synchronously (a background
	// refresh is still kicked off). HasTimeout=false means wait for fn
	// unconditionally.
	HasTimeout bool
	Timeout    time.Duration

	// AbortOnTimeout cancels fn's context when Timeout elapses before fn
	// resolves.
	AbortOnTimeout bool

	// BackgroundRefresh is invoked (without blocking the caller) when WithSwr
	// serves the stale value because Timeout is zero or negative, or because
	// Timeout elapsed with AbortOnTimeout set. May be nil.
	BackgroundRefresh func()
}

// WithSwr implements the generic stale-while-revalidate race used by
// InternalCache.getOrSet against an already-known stale value: fn is the
// fresh fetch, options carries the stale fallback and timing behaviour.
func WithSwr(ctx context.Context, fn func(ctx context.Context) (any, error), options SwrOptions) (SwrResult, error) {
	if !options.HasStale {
		v, err := fn(ctx)
		if err != nil {
			return SwrResult{}, err
		}
		return SwrResult{Value: v, Stale: false}, nil
	}

	if !options.HasTimeout {
		v, err := fn(ctx)
		if err != nil {
			return SwrResult{}, err
		}
		return SwrResult{Value: v, Stale: false}, nil
	}

	if options.Timeout <= 0 {
		if options.BackgroundRefresh != nil {
			go options.BackgroundRefresh()
		}
		return SwrResult{Value: options.StaleValue, Stale: true}, nil
	}

	fnCtx, cancel := context.WithCancel(ctx)
	type outcome struct {
		v   any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(fnCtx)
		done <- outcome{v, err}
	}()

	timer := time.NewTimer(options.Timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		cancel()
		if o.err != nil {
			return SwrResult{}, o.err
		}
		return SwrResult{Value: o.v, Stale: false}, nil
	case <-timer.C:
		if options.AbortOnTimeout {
			cancel()
			if options.BackgroundRefresh != nil {
				go options.BackgroundRefresh()
			}
		}
		return SwrResult{Value: options.StaleValue, Stale: true}, nil
	}
}
