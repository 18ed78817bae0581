package compaction

import (
	"fmt"
	"time"

	"github.com/hunddb/engine/lsmerrors"
	"github.com/hunddb/engine/memtable"
	"github.com/hunddb/engine/sstable"

	"github.com/bits-and-blooms/bloom/v3"
)

// MinMergeRuns / MaxMergeRuns bound spec §4.9 step 2's "oldest three (or
// fewer if fewer exist, minimum two)".
const (
	MinMergeRuns = 2
	MaxMergeRuns = 3
)

// MergeTrigger is the run-list length spec §4.9 triggers a merge at
// ("when the run list length exceeds 2").
const MergeTrigger = 2

// Engine writes flush and merge output runs under DBPath at the target
// bloom false-positive rate. It does not own the run list, caches, or
// file deletion — the tree façade orchestrates those (spec §9 "caches
// hold paths by value; runs are identified only by path").
type Engine struct {
	DBPath   string
	BloomFPR float64
}

// New builds an Engine writing runs into dbPath.
func New(dbPath string, bloomFPR float64) *Engine {
	return &Engine{DBPath: dbPath, BloomFPR: bloomFPR}
}

// Flush drains im into a new sorted run numbered runNum (spec §4.9 step
// 1). The returned table/index/filter let the caller register the run
// and populate its caches directly, without rereading the file.
func (e *Engine) Flush(im *memtable.Immutable, runNum uint64) (path string, table *sstable.Table, idx sstable.Index, filter *bloom.BloomFilter, err error) {
	path = SSTablePath(e.DBPath, runNum)
	table, idx, filter, err = FlushOne(path, im, e.BloomFPR)
	return path, table, idx, filter, err
}

// MergePeers loads every run in inputPaths (oldest first), k-way merges
// them dropping tombstones/expired/shadowed records, and writes the
// result as a new run numbered runNum (spec §4.9 step 2). The caller is
// responsible for registering the new run, invalidating caches for
// inputPaths, deleting their files, and renumbering the remaining list.
func (e *Engine) MergePeers(inputPaths []string, runNum uint64, now time.Time) (path string, idx sstable.Index, filter *bloom.BloomFilter, err error) {
	const op = "compaction.MergePeers"
	if len(inputPaths) < MinMergeRuns {
		return "", nil, nil, lsmerrors.InternalErr(op, fmt.Errorf("need at least %d runs to merge, got %d", MinMergeRuns, len(inputPaths)))
	}

	sources := make([]RunSource, len(inputPaths))
	for i, p := range inputPaths {
		table, err := sstable.Open(p)
		if err != nil {
			return "", nil, nil, err
		}
		entries, err := sstable.Iterate(p, table.Footer)
		if err != nil {
			return "", nil, nil, err
		}
		sources[i] = RunSource{Entries: entries}
	}

	merged, err := Merge(sources, now)
	if err != nil {
		return "", nil, nil, err
	}

	path = SSTablePath(e.DBPath, runNum)
	idx, filter, err = sstable.Write(path, merged, e.BloomFPR)
	if err != nil {
		return "", nil, nil, err
	}
	return path, idx, filter, nil
}

// OldestN returns the oldest n paths from an ascending (oldest-first) run
// list, or fewer if the list is shorter, respecting MinMergeRuns/MaxMergeRuns.
func OldestN(runList []string, n int) []string {
	if n > MaxMergeRuns {
		n = MaxMergeRuns
	}
	if n > len(runList) {
		n = len(runList)
	}
	if n < MinMergeRuns {
		return nil
	}
	return append([]string(nil), runList[:n]...)
}
