package cache

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	"github.com/vmihailenco/msgpack/v5"
)

// FreecacheL1 is the alternative, zero-GC L1 backing, grounded directly on
// github.com/coocood/freecache as its in-memory tier.
// Entries are msgpack-encoded since freecache only stores raw bytes.
type FreecacheL1 struct {
	cache *freecache.Cache
	now   func() time.Time
}

// NewFreecacheL1 wraps an existing *freecache.Cache (sized by the caller,
// e.g. freecache.NewCache(100*1024*1024)).
func NewFreecacheL1(c *freecache.Cache) *FreecacheL1 {
	return &FreecacheL1{cache: c, now: time.Now}
}

func (f *FreecacheL1) Name() string { return "l1:freecache" }

func (f *FreecacheL1) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := f.cache.Get([]byte(key))
	if err != nil {
		if err == freecache.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	var e Entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return nil, false, err
	}
	return &e, true, nil
}

func (f *FreecacheL1) Set(ctx context.Context, key string, entry *Entry) error {
	raw, err := msgpack.Marshal(entry)
	if err != nil {
		return err
	}
	ttl := int(entry.GcAt.Sub(f.now()).Seconds())
	if ttl < 1 {
		ttl = 1
	}
	return f.cache.Set([]byte(key), raw, ttl)
}

func (f *FreecacheL1) Delete(ctx context.Context, keys ...string) (int, error) {
	n := 0
	for _, k := range keys {
		if f.cache.Del([]byte(k)) {
			n++
		}
	}
	return n, nil
}

func (f *FreecacheL1) Clear(ctx context.Context) error {
	f.cache.Clear()
	return nil
}

var _ Layer = (*FreecacheL1)(nil)
