package cache

import "sync"

// TagIndex maintains the bidirectional tag<->key mapping used for bulk
// invalidation by label.
type TagIndex struct {
	mu         sync.Mutex
	keyToTags  map[string][]string
	tagToKeys  map[string]map[string]struct{}
}

// NewTagIndex constructs an empty TagIndex.
func NewTagIndex() *TagIndex {
	return &TagIndex{
		keyToTags: make(map[string][]string),
		tagToKeys: make(map[string]map[string]struct{}),
	}
}

// Register replaces key's tag set with tags: the current tags of a key are
// exactly its last Register call, so any previously-registered tags for
// this key are first removed.
func (idx *TagIndex) Register(key string, tags []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.unregisterLocked(key)
	if len(tags) == 0 {
		return
	}
	idx.keyToTags[key] = append([]string(nil), tags...)
	for _, tag := range tags {
		keys, ok := idx.tagToKeys[tag]
		if !ok {
			keys = make(map[string]struct{})
			idx.tagToKeys[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// Unregister removes key from every tag's key-set, pruning tags that become
// empty.
func (idx *TagIndex) Unregister(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.unregisterLocked(key)
}

func (idx *TagIndex) unregisterLocked(key string) {
	tags, ok := idx.keyToTags[key]
	if !ok {
		return
	}
	delete(idx.keyToTags, key)
	for _, tag := range tags {
		keys := idx.tagToKeys[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(idx.tagToKeys, tag)
		}
	}
}

// Invalidate returns the union of keys registered under any of tags, then
// unregisters each of them. The caller (TieredStore) is responsible for
// actually deleting those keys from storage.
func (idx *TagIndex) Invalidate(tags []string) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	union := make(map[string]struct{})
	for _, tag := range tags {
		for key := range idx.tagToKeys[tag] {
			union[key] = struct{}{}
		}
	}
	out := make([]string, 0, len(union))
	for key := range union {
		out = append(out, key)
		idx.unregisterLocked(key)
	}
	return out
}
