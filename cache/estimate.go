package cache

import "github.com/hunddb/engine/sstable"

// Memory-estimation formulas used to charge entries against a cache's
// byte budget. Go doesn't expose size_of the way the original
// implementation's formulas did, so these use fixed per-entry overhead
// constants (slice/string headers, map bucket overhead) plus the actual
// key/value payload lengths — the same shape of estimate, re-derived for
// Go's memory layout rather than copied verbatim.
const (
	indexEntryOverhead = 32 // key string header + offset + slice/map bookkeeping
	recordOverhead     = 48 // time.Time fields, pointers, bool, slice header
)

func estimateIndexBytes(idx sstable.Index) int64 {
	var total int64 = 16 // slice header
	for _, e := range idx {
		total += int64(len(e.Key)) + indexEntryOverhead
	}
	return total
}

func estimateValueBytes(payload []byte) int64 {
	return int64(len(payload)) + recordOverhead
}
