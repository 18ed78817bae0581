package cache

import (
	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/hunddb/engine/sstable"
)

// IndexCache maps a run's path to its full key→offset map.
type IndexCache struct {
	lru       *lru.LRU[string, sstable.Index]
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

// NewIndexCache builds a cache bounded by maxEntries and maxBytes.
func NewIndexCache(maxEntries int, maxBytes int64) *IndexCache {
	c := &IndexCache{maxBytes: maxBytes}
	l, _ := lru.NewLRU[string, sstable.Index](maxEntries, c.onEvict)
	c.lru = l
	return c
}

func (c *IndexCache) onEvict(_ string, idx sstable.Index) {
	c.curBytes -= estimateIndexBytes(idx)
	if !c.suppressEvictCount {
		c.evictions++
	}
}

// Get returns the cached index for path, recording a hit or miss.
func (c *IndexCache) Get(path string) (sstable.Index, bool) {
	v, ok := c.lru.Get(path)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// Put inserts or updates idx for path, evicting least-recently-used
// entries until both entry-count and byte bounds hold (spec §4.7). If idx
// alone exceeds the byte bound, it is silently not inserted.
func (c *IndexCache) Put(path string, idx sstable.Index) {
	size := estimateIndexBytes(idx)
	if size > c.maxBytes {
		return
	}
	if old, ok := c.lru.Peek(path); ok {
		c.curBytes -= estimateIndexBytes(old)
	}
	c.lru.Add(path, idx)
	c.curBytes += size
	for c.curBytes > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// InvalidatePath removes path's entry, if any (post-merge cleanup).
func (c *IndexCache) InvalidatePath(path string) {
	if _, ok := c.lru.Peek(path); ok {
		c.suppressEvictCount = true
		c.lru.Remove(path)
		c.suppressEvictCount = false
	}
}

// RenamePath moves the entry cached under oldPath (if any) to newPath,
// for post-merge renumbering.
func (c *IndexCache) RenamePath(oldPath, newPath string) {
	v, ok := c.lru.Peek(oldPath)
	if !ok {
		return
	}
	c.suppressEvictCount = true
	c.lru.Remove(oldPath)
	c.suppressEvictCount = false
	c.Put(newPath, v)
}

// Resize updates the cache's bounds, evicting as needed.
func (c *IndexCache) Resize(maxEntries int, maxBytes int64) {
	c.maxBytes = maxBytes
	c.lru.Resize(maxEntries)
	for c.curBytes > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// Stats reports current size/hit/miss/eviction/memory figures.
func (c *IndexCache) Stats() Stats {
	return Stats{
		Size:        c.lru.Len(),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		MemoryBytes: c.curBytes,
		MemoryLimit: c.maxBytes,
	}
}
