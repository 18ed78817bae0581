package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/hunddb/engine/lsmerrors"
)

var segmentNameRE = regexp.MustCompile(`^wal_(\d{4,})\.log$`)

func segmentPath(dir string, n uint64) string {
	return filepath.Join(dir, fmt.Sprintf("wal_%04d.log", n))
}

// listSegments returns the segment numbers present in dir, ascending.
func listSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, lsmerrors.IO("wal.listSegments", err)
	}
	var nums []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentNameRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		var n uint64
		fmt.Sscanf(m[1], "%d", &n)
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	return nums, nil
}

// segmentWriter appends records to one open segment file.
type segmentWriter struct {
	path string
	f    *os.File
	size int64

	// sizeCheckpointed latches once a size-triggered Checkpoint marker has
	// been written for this segment, so crossing the threshold doesn't
	// re-append a marker after every subsequent record (the segment only
	// grows, so the condition would otherwise hold forever). It resets
	// when a new segment is opened.
	sizeCheckpointed bool
}

func openSegmentForAppend(dir string, n uint64) (*segmentWriter, error) {
	path := segmentPath(dir, n)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, lsmerrors.IO("wal.openSegmentForAppend", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, lsmerrors.IO("wal.openSegmentForAppend", err)
	}
	return &segmentWriter{path: path, f: f, size: info.Size()}, nil
}

func (w *segmentWriter) append(r Record) error {
	buf := Encode(r)
	n, err := w.f.Write(buf)
	if err != nil {
		return lsmerrors.WalErr("wal.segmentWriter.append", err)
	}
	if err := w.f.Sync(); err != nil {
		return lsmerrors.WalErr("wal.segmentWriter.append", err)
	}
	w.size += int64(n)
	return nil
}

func (w *segmentWriter) close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	if err != nil {
		return lsmerrors.IO("wal.segmentWriter.close", err)
	}
	return nil
}

// readSegment reads every well-formed record from the segment numbered n
// in dir. A short read or CRC failure on the final record is tolerated
// (truncated silently, per spec §4.4's failure model); any earlier
// mismatch is fatal Corruption.
func readSegment(dir string, n uint64) ([]Record, error) {
	path := segmentPath(dir, n)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, lsmerrors.IO("wal.readSegment", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var records []Record
	for {
		rec, err := readRecord(br)
		if err == io.EOF {
			break
		}
		if err == errShortRead {
			// Partial final record: tolerated, truncate from recovery.
			break
		}
		if err != nil {
			if lsmerrors.Is(err, lsmerrors.Corruption) {
				// Only tolerated when it's the last record; peek to see
				// if more data follows. If more data follows, this is an
				// earlier mismatch and therefore fatal.
				if _, peekErr := br.Peek(1); peekErr == io.EOF {
					break
				}
				return nil, err
			}
			return nil, lsmerrors.WalErr("wal.readSegment", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// lastRecordIsCheckpoint reports whether the last well-formed record in
// segment n is a Checkpoint.
func lastRecordIsCheckpoint(dir string, n uint64) (bool, error) {
	records, err := readSegment(dir, n)
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	return records[len(records)-1].Op == OpCheckpoint, nil
}

func deleteSegment(dir string, n uint64) error {
	path := segmentPath(dir, n)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return lsmerrors.IO("wal.deleteSegment", err)
	}
	return nil
}

func renameSegment(dir string, from, to uint64) error {
	if from == to {
		return nil
	}
	oldPath := segmentPath(dir, from)
	newPath := segmentPath(dir, to)
	if _, err := os.Stat(oldPath); os.IsNotExist(err) {
		return nil
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return lsmerrors.IO("wal.renameSegment", err)
	}
	return nil
}
