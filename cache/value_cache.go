package cache

import (
	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/hunddb/engine/record"
)

// valueKey identifies one (run path, key) pair.
type valueKey struct {
	Path string
	Key  string
}

// ValueCache maps (run path, key) to a decoded value record.
type ValueCache struct {
	lru       *lru.LRU[valueKey, record.Record]
	maxBytes  int64
	curBytes  int64
	hits      uint64
	misses    uint64
	evictions uint64

	// suppressEvictCount is set around Remove calls driven by
	// invalidation/rename rather than the LRU reclaiming space, so
	// onEvict still owns all curBytes accounting (the only place that
	// decrements it) without counting those removals as evictions.
	suppressEvictCount bool
}

// NewValueCache builds a cache bounded by maxEntries and maxBytes.
func NewValueCache(maxEntries int, maxBytes int64) *ValueCache {
	c := &ValueCache{maxBytes: maxBytes}
	l, _ := lru.NewLRU[valueKey, record.Record](maxEntries, c.onEvict)
	c.lru = l
	return c
}

func (c *ValueCache) onEvict(_ valueKey, rec record.Record) {
	c.curBytes -= estimateValueBytes(rec.Payload)
	if !c.suppressEvictCount {
		c.evictions++
	}
}

// Get returns the cached record for (path, key), recording a hit or miss.
func (c *ValueCache) Get(path string, key []byte) (record.Record, bool) {
	v, ok := c.lru.Get(valueKey{Path: path, Key: string(key)})
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// Put inserts or updates the record for (path, key).
func (c *ValueCache) Put(path string, key []byte, rec record.Record) {
	size := estimateValueBytes(rec.Payload)
	if size > c.maxBytes {
		return
	}
	k := valueKey{Path: path, Key: string(key)}
	if old, ok := c.lru.Peek(k); ok {
		c.curBytes -= estimateValueBytes(old.Payload)
	}
	c.lru.Add(k, rec)
	c.curBytes += size
	for c.curBytes > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// InvalidatePath removes every entry referencing path (post-merge cleanup).
func (c *ValueCache) InvalidatePath(path string) {
	c.suppressEvictCount = true
	for _, k := range c.lru.Keys() {
		if k.Path == path {
			c.lru.Remove(k)
		}
	}
	c.suppressEvictCount = false
}

// RenamePath moves every entry referencing oldPath to newPath (post-merge
// renumbering).
func (c *ValueCache) RenamePath(oldPath, newPath string) {
	for _, k := range c.lru.Keys() {
		if k.Path != oldPath {
			continue
		}
		v, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		c.suppressEvictCount = true
		c.lru.Remove(k)
		c.suppressEvictCount = false
		c.Put(newPath, []byte(k.Key), v)
	}
}

// Resize updates the cache's bounds, evicting as needed.
func (c *ValueCache) Resize(maxEntries int, maxBytes int64) {
	c.maxBytes = maxBytes
	c.lru.Resize(maxEntries)
	for c.curBytes > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// Stats reports current size/hit/miss/eviction/memory figures.
func (c *ValueCache) Stats() Stats {
	return Stats{
		Size:        c.lru.Len(),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		MemoryBytes: c.curBytes,
		MemoryLimit: c.maxBytes,
	}
}
