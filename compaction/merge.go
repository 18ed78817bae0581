package compaction

import (
	"container/heap"
	"time"

	"github.com/hunddb/engine/record"
	"github.com/hunddb/engine/sstable"
)

// mergeItem is one cursor position within one input run's entry list.
// runIdx is the run's position in the input slice passed to Merge: higher
// runIdx means a newer run (spec §4.9 "keep the record coming from the run
// with the highest list position").
type mergeItem struct {
	entry sstable.Entry
	runIdx int
	pos    int
}

// mergeHeap orders items by key ascending, tie-broken by runIdx descending
// so the newer run's record for a shared key is popped first (spec §4.9,
// §9 "table-index breaking ties toward the newer run").
type mergeHeap []mergeItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	c := compare(h[i].entry.Key, h[j].entry.Key)
	if c != 0 {
		return c < 0
	}
	return h[i].runIdx > h[j].runIdx
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)        { *h = append(*h, x.(mergeItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func compare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// RunSource is one input run to Merge: its entries in ascending key order
// (as returned by sstable.Iterate). Its run-list position is its index in
// the slice passed to Merge (oldest first, newest last).
type RunSource struct {
	Entries []sstable.Entry
}

// Merge runs the k-way heap merge of spec §4.9 step 2 over runs, oldest
// first. For each key, the newest run's record wins; tombstones and
// expired records are dropped from the output (spec §4.9, §9 "filtered at
// the output boundary only after pulling from the heap"). The result is
// in strictly ascending key order, ready for sstable.Write.
func Merge(runs []RunSource, now time.Time) ([]sstable.Entry, error) {
	h := make(mergeHeap, 0, len(runs))
	for i, r := range runs {
		if len(r.Entries) > 0 {
			h = append(h, mergeItem{entry: r.Entries[0], runIdx: i, pos: 0})
		}
	}
	heap.Init(&h)

	var out []sstable.Entry
	for h.Len() > 0 {
		winner := heap.Pop(&h).(mergeItem)
		key := winner.entry.Key

		// Drain every other cursor currently at the same key, advancing
		// each consumed run's cursor so its next distinct key surfaces.
		advance(&h, winner.runIdx, winner.pos, runs)
		for h.Len() > 0 && compare(h[0].entry.Key, key) == 0 {
			dup := heap.Pop(&h).(mergeItem)
			advance(&h, dup.runIdx, dup.pos, runs)
		}

		rec, err := record.Decode(winner.entry.EncodedValue)
		if err != nil {
			return nil, err
		}
		if rec.Tombstone || rec.IsExpired(now) {
			continue
		}
		out = append(out, winner.entry)
	}
	return out, nil
}

// advance pushes runIdx's next entry (if any) back onto the heap.
func advance(h *mergeHeap, runIdx, pos int, runs []RunSource) {
	next := pos + 1
	if next < len(runs[runIdx].Entries) {
		heap.Push(h, mergeItem{entry: runs[runIdx].Entries[next], runIdx: runIdx, pos: next})
	}
}
