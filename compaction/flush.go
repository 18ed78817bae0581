package compaction

import (
	"github.com/hunddb/engine/cache"
	"github.com/hunddb/engine/memtable"
	"github.com/hunddb/engine/record"
	"github.com/hunddb/engine/sstable"

	"github.com/bits-and-blooms/bloom/v3"
)

// FlushOne drains im into a new sorted run at path, per spec §4.9
// step 1: write the run, then hand back its table handle, index, and
// bloom filter so the caller can register the run and populate caches
// without rereading the file.
func FlushOne(path string, im *memtable.Immutable, bloomFPR float64) (*sstable.Table, sstable.Index, *bloom.BloomFilter, error) {
	entries := make([]sstable.Entry, 0, len(im.Entries))
	for _, e := range im.Entries {
		entries = append(entries, sstable.Entry{Key: []byte(e.Key), EncodedValue: record.Encode(e.Record)})
	}

	idx, filter, err := sstable.Write(path, entries, bloomFPR)
	if err != nil {
		return nil, nil, nil, err
	}
	table, err := sstable.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	return table, idx, filter, nil
}

// WarmCaches populates the index cache for a freshly written run. It does
// not touch the value cache or cache the run's bloom filter.
func WarmCaches(path string, idx sstable.Index, indexCache *cache.IndexCache) {
	if indexCache != nil {
		indexCache.Put(path, idx)
	}
}
