package cache

import (
	"fmt"
	"testing"

	"github.com/hunddb/engine/record"
	"github.com/hunddb/engine/sstable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexCacheBasic(t *testing.T) {
	c := NewIndexCache(10, 1<<20)
	idx := sstable.Index{{Key: []byte("a"), Offset: 1}}

	_, ok := c.Get("run1")
	assert.False(t, ok)

	c.Put("run1", idx)
	got, ok := c.Get("run1")
	require.True(t, ok)
	assert.Equal(t, idx, got)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestIndexCacheEntryBoundEviction(t *testing.T) {
	c := NewIndexCache(2, 1<<20)
	c.Put("run1", sstable.Index{{Key: []byte("a"), Offset: 1}})
	c.Put("run2", sstable.Index{{Key: []byte("b"), Offset: 2}})
	c.Put("run3", sstable.Index{{Key: []byte("c"), Offset: 3}})

	assert.LessOrEqual(t, c.Stats().Size, 2)
	_, ok := c.Get("run1")
	assert.False(t, ok, "least-recently-used run1 should have been evicted")
}

func TestIndexCacheByteBoundEviction(t *testing.T) {
	c := NewIndexCache(1000, 100)
	big := sstable.Index{}
	for i := 0; i < 20; i++ {
		big = append(big, sstable.IndexEntry{Key: []byte(fmt.Sprintf("key-%03d", i)), Offset: uint64(i)})
	}
	c.Put("run1", big)
	stats := c.Stats()
	assert.LessOrEqual(t, stats.MemoryBytes, stats.MemoryLimit)
}

func TestIndexCacheInvalidateAndRename(t *testing.T) {
	c := NewIndexCache(10, 1<<20)
	idx := sstable.Index{{Key: []byte("a"), Offset: 1}}
	c.Put("run1", idx)

	c.RenamePath("run1", "run0")
	_, ok := c.Get("run1")
	assert.False(t, ok)
	got, ok := c.Get("run0")
	require.True(t, ok)
	assert.Equal(t, idx, got)

	c.InvalidatePath("run0")
	_, ok = c.Get("run0")
	assert.False(t, ok)
}

func TestValueCacheBasicAndInvalidation(t *testing.T) {
	c := NewValueCache(10, 1<<20)
	rec := record.New([]byte("hello"))

	c.Put("run1", []byte("k1"), rec)
	got, ok := c.Get("run1", []byte("k1"))
	require.True(t, ok)
	assert.Equal(t, rec.Payload, got.Payload)

	c.Put("run1", []byte("k2"), record.New([]byte("world")))
	c.InvalidatePath("run1")

	_, ok = c.Get("run1", []byte("k1"))
	assert.False(t, ok)
	_, ok = c.Get("run1", []byte("k2"))
	assert.False(t, ok)
}

func TestValueCacheRename(t *testing.T) {
	c := NewValueCache(10, 1<<20)
	rec := record.New([]byte("hello"))
	c.Put("run1", []byte("k1"), rec)

	c.RenamePath("run1", "run0")
	_, ok := c.Get("run1", []byte("k1"))
	assert.False(t, ok)

	got, ok := c.Get("run0", []byte("k1"))
	require.True(t, ok)
	assert.Equal(t, rec.Payload, got.Payload)
}

func TestIndexCacheInvalidateDoesNotDriftByteAccounting(t *testing.T) {
	c := NewIndexCache(10, 1<<20)
	idx := sstable.Index{{Key: []byte("a"), Offset: 1}}

	for i := 0; i < 50; i++ {
		path := fmt.Sprintf("run%d", i)
		c.Put(path, idx)
		c.InvalidatePath(path)
	}

	stats := c.Stats()
	assert.Equal(t, int64(0), stats.MemoryBytes, "every put was invalidated, so tracked bytes must return to zero, not drift negative")
	assert.Equal(t, uint64(0), stats.Evictions, "invalidation is not an LRU eviction")
}

func TestValueCacheInvalidateAndRenameDoNotDriftByteAccounting(t *testing.T) {
	c := NewValueCache(10, 1<<20)

	c.Put("run1", []byte("k1"), record.New([]byte("hello")))
	c.Put("run1", []byte("k2"), record.New([]byte("world")))
	c.InvalidatePath("run1")

	c.Put("run2", []byte("k1"), record.New([]byte("hello")))
	c.RenamePath("run2", "run3")
	c.InvalidatePath("run3")

	stats := c.Stats()
	assert.Equal(t, int64(0), stats.MemoryBytes, "every entry was invalidated or renamed away, so tracked bytes must return to zero, not drift negative")
	assert.Equal(t, uint64(0), stats.Evictions, "invalidation and rename are not LRU evictions")
}

func TestStatsHitRateAndUtilization(t *testing.T) {
	s := Stats{Hits: 3, Misses: 1, MemoryBytes: 50, MemoryLimit: 100}
	assert.Equal(t, 0.75, s.HitRate())
	assert.Equal(t, 0.5, s.MemoryUtilization())

	empty := Stats{}
	assert.Equal(t, float64(0), empty.HitRate())
	assert.Equal(t, float64(0), empty.MemoryUtilization())
}
