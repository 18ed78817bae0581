// Package cache implements the two bounded LRU caches described in spec
// §4.7: an index cache (run path → full key→offset map) and a value
// cache (run path + key → decoded value record). Both are bounded by
// entry count and estimated byte memory, track hit/miss/eviction stats,
// and are not internally synchronized — the engine is single-writer.
package cache

// Stats mirrors spec §4.7's tracked fields.
type Stats struct {
	Size             int
	Hits             uint64
	Misses           uint64
	Evictions        uint64
	MemoryBytes      int64
	MemoryLimit      int64
}

// HitRate is Hits / (Hits+Misses), or 0 when there have been no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// MemoryUtilization is MemoryBytes / MemoryLimit, or 0 when unbounded.
func (s Stats) MemoryUtilization() float64 {
	if s.MemoryLimit == 0 {
		return 0
	}
	return float64(s.MemoryBytes) / float64(s.MemoryLimit)
}
