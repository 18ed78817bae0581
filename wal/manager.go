package wal

import (
	"sync"

	"github.com/hunddb/engine/lsmerrors"

	"go.uber.org/zap"
)

const (
	// SegmentsToKeep is how many post-checkpoint segments are retained
	// (spec §4.4 "implementation choice: 3").
	SegmentsToKeep = 3
	// RenumberThreshold is the highest segment number tolerated before a
	// compacting renumber pass runs (spec §4.4 "implementation choice: 10").
	RenumberThreshold = 10
)

// Entry is what Open hands back to the caller for memtable replay.
type Entry struct {
	Op    Op
	Key   []byte
	Value []byte
}

// Manager owns the segment lifecycle: naming, rotation, checkpoints,
// recovery, renumbering, and retention. It is not internally
// synchronized beyond what's needed for the background cleanup worker;
// the tree façade serializes all other access (spec §5).
type Manager struct {
	dir        string
	maxSize    int64
	log        *zap.SugaredLogger
	mu         sync.Mutex
	active     *segmentWriter
	activeNum  uint64
	cleanupCh  chan uint64
	cleanupWG  sync.WaitGroup
	cleanupEnd chan struct{}
}

// Open initializes or recovers the WAL in dir (spec §4.4 Init/Recovery).
// It returns the manager plus every Put/Delete entry that must be
// replayed into the memtable before accepting new writes.
func Open(dir string, maxSize int64, log *zap.SugaredLogger) (*Manager, []Entry, error) {
	const op = "wal.Open"
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	m := &Manager{
		dir:        dir,
		maxSize:    maxSize,
		log:        log,
		cleanupCh:  make(chan uint64, 64),
		cleanupEnd: make(chan struct{}),
	}

	entries, err := m.recover()
	if err != nil {
		return nil, nil, err
	}

	if err := m.initActiveSegment(); err != nil {
		return nil, nil, err
	}

	m.cleanupWG.Add(1)
	go m.cleanupLoop()

	return m, entries, nil
}

// recover replays every segment (ascending), skipping segments whose last
// record is a Checkpoint (spec §4.4 Recovery).
func (m *Manager) recover() ([]Entry, error) {
	nums, err := listSegments(m.dir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, n := range nums {
		records, err := readSegment(m.dir, n)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 && records[len(records)-1].Op == OpCheckpoint {
			continue
		}
		for _, r := range records {
			if r.Op == OpCheckpoint {
				continue
			}
			entries = append(entries, Entry{Op: r.Op, Key: r.Key, Value: r.Value})
		}
	}
	return entries, nil
}

// initActiveSegment opens the segment that should receive new writes,
// per spec §4.4 Init: highest existing segment if its last record is not
// a Checkpoint, else a new segment one past the highest; segment 1 if
// none exist.
func (m *Manager) initActiveSegment() error {
	nums, err := listSegments(m.dir)
	if err != nil {
		return err
	}

	if len(nums) == 0 {
		return m.openNewActive(1)
	}

	highest := nums[len(nums)-1]
	isCkpt, err := lastRecordIsCheckpoint(m.dir, highest)
	if err != nil {
		return err
	}
	if isCkpt {
		return m.openNewActive(highest + 1)
	}
	return m.reopenActive(highest)
}

func (m *Manager) openNewActive(n uint64) error {
	w, err := openSegmentForAppend(m.dir, n)
	if err != nil {
		return err
	}
	m.active = w
	m.activeNum = n
	return nil
}

func (m *Manager) reopenActive(n uint64) error {
	w, err := openSegmentForAppend(m.dir, n)
	if err != nil {
		return err
	}
	m.active = w
	m.activeNum = n
	return nil
}

// Append writes one Put/Delete record before the caller mutates the
// memtable (spec §4.4 Append, §5 ordering guarantee). It checks the
// size-based checkpoint trigger before writing, per spec §4.4, then marks
// the segment with a Checkpoint record if the threshold was crossed by
// the prior write and hasn't already been marked.
//
// This marker is NOT backed by a flush: no sorted run exists yet for the
// records it follows, so unlike Checkpoint it must not rotate. Rotating
// here would make recover's "skip a segment ending in Checkpoint" rule
// (spec §4.4) discard every Put/Delete written before the marker, since
// none of them are reflected in a sorted run. The segment stays active
// and keeps being appended to, so it is still replayed in full on
// recovery (the mid-stream marker is simply skipped) unless a crash
// happens to land with the marker as the segment's last record — mirrors
// original_source's wal.rs::write_to_wal, which checks
// should_checkpoint_wal and writes the marker in place without ever
// rotating the segment. sizeCheckpointed keeps the marker from being
// rewritten after every following record, since the size condition would
// otherwise hold forever once crossed.
func (m *Manager) Append(op Op, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	shouldCheckpoint := !m.active.sizeCheckpointed && m.active.size > m.maxSize

	if err := m.active.append(Record{Op: op, Key: key, Value: value}); err != nil {
		return err
	}

	if shouldCheckpoint {
		if err := m.active.append(NewCheckpoint()); err != nil {
			return err
		}
		m.active.sizeCheckpointed = true
	}
	return nil
}

// Checkpoint writes a Checkpoint record and rotates to a new segment,
// called after a compaction finishes a new sorted run (spec §4.4
// "Checkpoint trigger").
func (m *Manager) Checkpoint() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpointAndRotateLocked()
}

func (m *Manager) checkpointAndRotateLocked() error {
	if err := m.active.append(NewCheckpoint()); err != nil {
		return err
	}
	retiring := m.activeNum
	if err := m.active.close(); err != nil {
		return err
	}
	if err := m.openNewActive(m.nextSegmentNumberLocked()); err != nil {
		return err
	}

	m.scheduleRetentionLocked(retiring)

	if m.activeNum > RenumberThreshold {
		if err := m.renumberLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) nextSegmentNumberLocked() uint64 {
	nums, err := listSegments(m.dir)
	if err != nil || len(nums) == 0 {
		return m.activeNum + 1
	}
	max := nums[len(nums)-1]
	if max < m.activeNum {
		max = m.activeNum
	}
	return max + 1
}

// scheduleRetentionLocked keeps the newest SegmentsToKeep segments on disk,
// counting the newly opened active segment, and schedules all earlier ones
// for deletion via the background cleanup worker (spec §4.4 Retention).
func (m *Manager) scheduleRetentionLocked(retiring uint64) {
	nums, err := listSegments(m.dir)
	if err != nil {
		m.log.Errorw("wal: failed to list segments for retention", "error", err)
		return
	}
	keepFrom := len(nums) - SegmentsToKeep
	if keepFrom <= 0 {
		return
	}
	for _, n := range nums[:keepFrom] {
		if n == m.activeNum {
			continue
		}
		select {
		case m.cleanupCh <- n:
		default:
			m.log.Warnw("wal: cleanup channel full, dropping retention request", "segment", n)
		}
	}
}

// renumberLocked compacts segment numbers back to start from 0 in order,
// preserving relative ordering (spec §4.4 Renumbering).
func (m *Manager) renumberLocked() error {
	nums, err := listSegments(m.dir)
	if err != nil {
		return err
	}
	for i, n := range nums {
		target := uint64(i)
		if n == target {
			continue
		}
		if n == m.activeNum {
			if err := m.active.close(); err != nil {
				return err
			}
			if err := renameSegment(m.dir, n, target); err != nil {
				return err
			}
			if err := m.reopenActive(target); err != nil {
				return err
			}
			continue
		}
		if err := renameSegment(m.dir, n, target); err != nil {
			return err
		}
	}
	return nil
}

// cleanupLoop is the single-owner background worker that consumes
// segment numbers and deletes the corresponding files (spec §4.4, §9).
func (m *Manager) cleanupLoop() {
	defer m.cleanupWG.Done()
	for {
		select {
		case n, ok := <-m.cleanupCh:
			if !ok {
				return
			}
			if err := deleteSegment(m.dir, n); err != nil {
				m.log.Errorw("wal: failed to delete retired segment", "segment", n, "error", err)
			}
		case <-m.cleanupEnd:
			return
		}
	}
}

// Close flushes and releases the active segment writer and stops the
// cleanup worker (spec §5 "on engine drop... releases the WAL writer").
func (m *Manager) Close() error {
	m.mu.Lock()
	err := m.active.close()
	m.mu.Unlock()

	close(m.cleanupEnd)
	m.cleanupWG.Wait()
	if err != nil {
		return lsmerrors.WalErr("wal.Close", err)
	}
	return nil
}
