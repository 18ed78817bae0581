// Package compaction implements the two compaction operations from spec
// §4.9: flush-one (drain one immutable memtable into a new sorted run)
// and merge-peers (k-way merge of the oldest runs when the run list
// exceeds threshold).
package compaction

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/hunddb/engine/lsmerrors"
)

// SSTablePath names a sorted run per spec §6: "sstable_N.sst, numbering
// monotonic".
func SSTablePath(dbPath string, n uint64) string {
	return filepath.Join(dbPath, fmt.Sprintf("sstable_%d.sst", n))
}

var runNameRE = regexp.MustCompile(`^sstable_(\d+)\.sst$`)

// ListRunNumbers returns the sorted-run numbers present in dbPath,
// ascending (oldest first).
func ListRunNumbers(dbPath string) ([]uint64, error) {
	entries, err := os.ReadDir(dbPath)
	if err != nil {
		return nil, lsmerrors.IO("compaction.ListRunNumbers", err)
	}
	var nums []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := runNameRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums, nil
}

// DeleteRun removes the run file at path.
func DeleteRun(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return lsmerrors.IO("compaction.DeleteRun", err)
	}
	return nil
}

// RenameRun renames the run numbered from to to, if a file exists at
// from's path (spec §4.9/§9 "rename files... to start from 0 in order").
func RenameRun(dbPath string, from, to uint64) (oldPath, newPath string, renamed bool, err error) {
	oldPath = SSTablePath(dbPath, from)
	newPath = SSTablePath(dbPath, to)
	if from == to {
		return oldPath, newPath, false, nil
	}
	if _, statErr := os.Stat(oldPath); os.IsNotExist(statErr) {
		return oldPath, newPath, false, nil
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return oldPath, newPath, false, lsmerrors.IO("compaction.RenameRun", err)
	}
	return oldPath, newPath, true, nil
}
