package cache

import (
	"context"
	"sync"

	"github.com/lokicoule-stack/fluxcache/breaker"
	"github.com/rs/zerolog"
)

// GetResult is the outcome of a TieredStore lookup.
type GetResult struct {
	Entry  *Entry
	Source string
	Graced bool // true when the hit came back stale
	Found  bool
}

// l2layer pairs an L2 Layer with the breaker guarding it.
type l2layer struct {
	layer   Layer
	breaker *breaker.Breaker
}

// TieredStore implements the L1 -> L2_1 -> L2_2 -> ... lookup with backfill,
// per-layer circuit breaking, tag-aware invalidation and key-prefix
// namespacing.
type TieredStore struct {
	l1       Layer // may be nil
	l2s      []l2layer
	tagIndex *TagIndex
	prefix   string
	logger   zerolog.Logger
}

// New constructs a TieredStore. l1 may be nil (L1-less deployments).
func New(l1 Layer, l2s []Layer, breakerCfg breaker.Config, logger zerolog.Logger) *TieredStore {
	wrapped := make([]l2layer, len(l2s))
	for i, l := range l2s {
		wrapped[i] = l2layer{layer: l, breaker: breaker.New(breakerCfg)}
	}
	return &TieredStore{l1: l1, l2s: wrapped, tagIndex: NewTagIndex(), prefix: "", logger: logger}
}

func (s *TieredStore) prefixed(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

// Namespace returns a new TieredStore sharing L1, L2s, breakers and the tag
// index, but composing the prefix — so namespace("a").namespace("b") yields
// prefix "a:b".
func (s *TieredStore) Namespace(prefix string) *TieredStore {
	ns := &TieredStore{l1: s.l1, l2s: s.l2s, tagIndex: s.tagIndex, logger: s.logger}
	if s.prefix == "" {
		ns.prefix = prefix
	} else {
		ns.prefix = s.prefix + ":" + prefix
	}
	return ns
}

// Get performs the tiered lookup with backfill.
func (s *TieredStore) Get(ctx context.Context, key string) (GetResult, error) {
	pk := s.prefixed(key)

	if s.l1 != nil {
		entry, ok, err := s.l1.Get(ctx, pk)
		if err != nil {
			return GetResult{}, err
		}
		if ok && !entry.IsGced(now()) {
			return GetResult{Entry: entry, Source: s.l1.Name(), Graced: entry.IsStale(now()), Found: true}, nil
		}
	}

	for i := range s.l2s {
		l := s.l2s[i]
		entry, ran, _ := breaker.Call(ctx, l.breaker, func(ctx context.Context) (*Entry, error) {
			e, ok, err := l.layer.Get(ctx, pk)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			return e, nil
		}, (*Entry)(nil))
		if !ran || entry == nil {
			continue
		}
		if entry.IsGced(now()) {
			continue
		}
		s.backfill(ctx, pk, entry, i)
		return GetResult{Entry: entry, Source: l.layer.Name(), Graced: entry.IsStale(now()), Found: true}, nil
	}

	return GetResult{}, nil
}

// backfill writes entry to L1 (if present) and to every L2 layer ordered
// before index i whose breaker is not open.
func (s *TieredStore) backfill(ctx context.Context, key string, entry *Entry, hitIndex int) {
	if s.l1 != nil {
		_ = s.l1.Set(ctx, key, entry)
	}
	for i := 0; i < hitIndex; i++ {
		l := s.l2s[i]
		if l.breaker.IsOpen() {
			continue
		}
		_, _, _ = breaker.Call(ctx, l.breaker, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, l.layer.Set(ctx, key, entry)
		}, struct{}{})
	}
}

// GetMany batches a lookup across keys: every L1 hit is pulled first, then
// each L2 is queried only for keys still pending.
func (s *TieredStore) GetMany(ctx context.Context, keys []string) (map[string]GetResult, error) {
	results := make(map[string]GetResult, len(keys))
	pending := make([]string, 0, len(keys))
	toOriginal := make(map[string]string, len(keys))

	for _, key := range keys {
		pk := s.prefixed(key)
		toOriginal[pk] = key
		if s.l1 != nil {
			entry, ok, err := s.l1.Get(ctx, pk)
			if err == nil && ok && !entry.IsGced(now()) {
				results[key] = GetResult{Entry: entry, Source: s.l1.Name(), Graced: entry.IsStale(now()), Found: true}
				continue
			}
		}
		pending = append(pending, pk)
	}

	for i := range s.l2s {
		if len(pending) == 0 {
			break
		}
		l := s.l2s[i]
		stillPending := make([]string, 0, len(pending))
		for _, pk := range pending {
			entry, ran, _ := breaker.Call(ctx, l.breaker, func(ctx context.Context) (*Entry, error) {
				e, ok, err := l.layer.Get(ctx, pk)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, nil
				}
				return e, nil
			}, (*Entry)(nil))
			if ran && entry != nil && !entry.IsGced(now()) {
				s.backfill(ctx, pk, entry, i)
				results[toOriginal[pk]] = GetResult{Entry: entry, Source: l.layer.Name(), Graced: entry.IsStale(now()), Found: true}
				continue
			}
			stillPending = append(stillPending, pk)
		}
		pending = stillPending
	}

	return results, nil
}

// Set registers tags, writes L1 synchronously, then writes every L2 in
// parallel; L2 failures only trip that layer's breaker.
func (s *TieredStore) Set(ctx context.Context, key string, entry *Entry) error {
	pk := s.prefixed(key)
	s.tagIndex.Register(pk, entry.Tags)

	var l1Err error
	if s.l1 != nil {
		l1Err = s.l1.Set(ctx, pk, entry)
	}

	var wg sync.WaitGroup
	wg.Add(len(s.l2s))
	for i := range s.l2s {
		l := s.l2s[i]
		go func() {
			defer wg.Done()
			_, _, _ = breaker.Call(ctx, l.breaker, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, l.layer.Set(ctx, pk, entry)
			}, struct{}{})
		}()
	}
	wg.Wait()
	return l1Err
}

// Delete removes keys from L1 and every L2 in parallel, returning the
// maximum per-layer count (the best-informed layer's view).
func (s *TieredStore) Delete(ctx context.Context, keys ...string) (int, error) {
	pks := make([]string, len(keys))
	for i, k := range keys {
		pks[i] = s.prefixed(k)
		s.tagIndex.Unregister(pks[i])
	}
	return s.deleteKeys(ctx, pks)
}

func (s *TieredStore) deleteKeys(ctx context.Context, pks []string) (int, error) {
	var mu sync.Mutex
	maxCount := 0
	record := func(n int) {
		mu.Lock()
		if n > maxCount {
			maxCount = n
		}
		mu.Unlock()
	}

	var wg sync.WaitGroup
	if s.l1 != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, _ := s.l1.Delete(ctx, pks...)
			record(n)
		}()
	}
	for i := range s.l2s {
		l := s.l2s[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, _, _ := breaker.Call(ctx, l.breaker, func(ctx context.Context) (int, error) {
				return l.layer.Delete(ctx, pks...)
			}, 0)
			record(n)
		}()
	}
	wg.Wait()
	return maxCount, nil
}

// InvalidateTags deletes every key registered under any of tags from every
// tier, returning the winning layer's count.
func (s *TieredStore) InvalidateTags(ctx context.Context, tags []string) (int, error) {
	keys := s.tagIndex.Invalidate(tags)
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.deleteKeys(ctx, keys)
	if n < 0 {
		n = 0
	}
	return n, err
}

// InvalidateL1 mutates only the local tier — used by DistributedSync to
// react to a remote invalidation without re-publishing it.
func (s *TieredStore) InvalidateL1(ctx context.Context, keys ...string) error {
	if s.l1 == nil {
		return nil
	}
	pks := make([]string, len(keys))
	for i, k := range keys {
		pks[i] = s.prefixed(k)
	}
	_, err := s.l1.Delete(ctx, pks...)
	return err
}

// l1Delete removes already-prefixed keys from L1 only, without touching
// the tag index — used by DistributedSync, which works from tagIndex
// output directly.
func (s *TieredStore) l1Delete(ctx context.Context, pks []string) (int, error) {
	if s.l1 == nil {
		return 0, nil
	}
	return s.l1.Delete(ctx, pks...)
}

// ClearL1 clears only the local tier.
func (s *TieredStore) ClearL1(ctx context.Context) error {
	if s.l1 == nil {
		return nil
	}
	return s.l1.Clear(ctx)
}

// Clear clears L1 and every L2.
func (s *TieredStore) Clear(ctx context.Context) error {
	if s.l1 != nil {
		if err := s.l1.Clear(ctx); err != nil {
			return err
		}
	}
	var wg sync.WaitGroup
	wg.Add(len(s.l2s))
	for i := range s.l2s {
		l := s.l2s[i]
		go func() {
			defer wg.Done()
			_, _, _ = breaker.Call(ctx, l.breaker, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, l.layer.Clear(ctx)
			}, struct{}{})
		}()
	}
	wg.Wait()
	return nil
}
