// Package tree implements the public façade of spec §4.11: the engine
// entry point that owns the memtable, immutable queue, WAL manager,
// sorted-run list, caches, bloom filters, compaction engine, and
// transaction manager, and orchestrates them into put/get/delete/
// multi-get/flush/transactional operations.
package tree

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hunddb/engine/cache"
	"github.com/hunddb/engine/compaction"
	"github.com/hunddb/engine/compression"
	"github.com/hunddb/engine/config"
	"github.com/hunddb/engine/lsmerrors"
	"github.com/hunddb/engine/memtable"
	"github.com/hunddb/engine/record"
	"github.com/hunddb/engine/sstable"
	"github.com/hunddb/engine/txn"
	"github.com/hunddb/engine/wal"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"
)

// Result is one key's outcome from MultiGet.
type Result struct {
	Value []byte
	Found bool
}

// Tree is the engine instance: single-writer, single-reader (spec §5).
// Every public method that reads or changes the memtable, immutable
// queue, run list, caches or WAL serializes on mu. Begin, WriteTx,
// DeleteTx and RollbackTx touch only the transaction manager and do not
// take mu; IndexCacheStats and ValueCacheStats read the caches without
// taking mu.
type Tree struct {
	settings   config.Settings
	log        *zap.SugaredLogger
	compressor *compression.Compressor

	mu       sync.Mutex
	memtable *memtable.Memtable
	queue    *memtable.Queue
	walMgr   *wal.Manager

	// runs holds sorted-run numbers ascending (oldest first), mirroring
	// the on-disk run list (spec §3 "Runs are numbered monotonically;
	// larger numbers are newer").
	runs    []uint64
	nextRun uint64
	tables  map[uint64]*sstable.Table
	blooms  map[uint64]*bloom.BloomFilter

	indexCache *cache.IndexCache
	valueCache *cache.ValueCache

	compactor *compaction.Engine
	txns      *txn.Manager
}

// Open scans dbPath, recovers the WAL, loads sorted runs (skipping
// damaged ones), and rebuilds the bloom cache lazily or eagerly
// depending on settings (spec §4.11 "open").
func Open(settings config.Settings) (*Tree, error) {
	const op = "tree.Open"
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	log := settings.Logger
	if log == nil {
		prod, err := zap.NewProduction()
		if err != nil {
			return nil, lsmerrors.InternalErr(op, err)
		}
		log = prod.Sugar()
	}

	if err := os.MkdirAll(settings.DBPath, 0o755); err != nil {
		return nil, lsmerrors.IO(op, err)
	}

	t := &Tree{
		settings:   settings,
		log:        log,
		compressor: compression.New(settings.Compressor),
		memtable:   memtable.New(int(settings.MemTableMaxSize)),
		queue:      memtable.NewQueue(),
		tables:     make(map[uint64]*sstable.Table),
		blooms:     make(map[uint64]*bloom.BloomFilter),
		compactor:  compaction.New(settings.DBPath, settings.BloomFPR),
		txns:       txn.NewManager(),
	}

	if settings.IndexCacheEnabled {
		t.indexCache = cache.NewIndexCache(settings.IndexCacheEntries, settings.IndexCacheBytes)
	}
	if settings.ValueCacheEnabled {
		t.valueCache = cache.NewValueCache(settings.ValueCacheEntries, settings.ValueCacheBytes)
	}

	if err := t.loadRuns(); err != nil {
		return nil, err
	}

	if settings.WalEnabled {
		mgr, entries, err := wal.Open(settings.DBPath, settings.WalMaxSize, log)
		if err != nil {
			return nil, err
		}
		t.walMgr = mgr
		for _, e := range entries {
			if err := t.replay(e); err != nil {
				return nil, err
			}
		}
	}

	return t, nil
}

// loadRuns scans dbPath for sorted-run files, opening and validating
// each. A run that fails header/footer validation is excluded and
// logged rather than failing Open (spec §4.5 Integrity, §6 "Damaged
// sorted-run files are left in place and logged").
func (t *Tree) loadRuns() error {
	nums, err := compaction.ListRunNumbers(t.settings.DBPath)
	if err != nil {
		return err
	}
	for _, n := range nums {
		path := compaction.SSTablePath(t.settings.DBPath, n)
		table, err := sstable.Open(path)
		if err != nil {
			t.log.Warnw("sorted run failed validation, excluding from run list", "path", path, "error", err)
			continue
		}
		t.tables[n] = table
		t.runs = append(t.runs, n)
		if t.settings.BloomCacheEnabled {
			if filter, err := sstable.ReadBloomFilter(path, table.Footer); err == nil {
				t.blooms[n] = filter
			} else {
				t.log.Warnw("failed to preload bloom filter", "path", path, "error", err)
			}
		}
	}
	if len(t.runs) > 0 {
		t.nextRun = t.runs[len(t.runs)-1] + 1
	}
	return nil
}

// replay applies one recovered WAL entry to the memtable (spec §4.4
// Recovery: "replay its Put/Delete records into the memtable (tombstones
// for Delete)").
func (t *Tree) replay(e wal.Entry) error {
	switch e.Op {
	case wal.OpPut:
		rec, err := record.Decode(e.Value)
		if err != nil {
			return err
		}
		t.memtable.Put(e.Key, rec)
	case wal.OpDelete:
		t.memtable.Put(e.Key, record.Tombstone())
	}
	return nil
}

// readerFunc and applierFunc adapt Tree's lock-assuming helpers to the
// txn.EngineReader/txn.Applier interfaces without re-entering mu.
type readerFunc func(key []byte) (record.Record, bool, error)

func (f readerFunc) Get(key []byte) (record.Record, bool, error) { return f(key) }

type applierFunc func(key []byte, rec record.Record) error

func (f applierFunc) ApplyWrite(key []byte, rec record.Record) error { return f(key, rec) }

func checkLive(rec record.Record, found bool) (record.Record, bool, error) {
	if !found {
		return record.Record{}, false, nil
	}
	if rec.Tombstone || rec.IsExpired(time.Now()) {
		return record.Record{}, false, nil
	}
	return rec, true, nil
}

// getRecordLocked walks memtable -> immutable queue (newest first) ->
// sorted runs (newest first), returning the first record found for key
// without unwrapping shadowing: once any layer has *a* record for key
// (live or not), older layers are never consulted (spec §3 "the
// newest-layer record... is authoritative").
func (t *Tree) getRecordLocked(key []byte) (record.Record, bool, error) {
	if rec, ok := t.memtable.Get(key); ok {
		return checkLive(rec, true)
	}
	for _, im := range t.queue.Snapshot() {
		if e, ok := im.Get(key); ok {
			return checkLive(e.Record, true)
		}
	}
	for i := len(t.runs) - 1; i >= 0; i-- {
		n := t.runs[i]
		path := compaction.SSTablePath(t.settings.DBPath, n)
		rec, found, err := t.lookupRunLocked(n, path, key)
		if err != nil {
			return record.Record{}, false, err
		}
		if found {
			return checkLive(rec, true)
		}
	}
	return record.Record{}, false, nil
}

// lookupRunLocked consults the value cache, then the bloom filter
// (authoritative on negative), then the index, then the data block
// itself (spec §4.5 Lookup).
func (t *Tree) lookupRunLocked(n uint64, path string, key []byte) (record.Record, bool, error) {
	if t.valueCache != nil {
		if rec, ok := t.valueCache.Get(path, key); ok {
			return rec, true, nil
		}
	}

	if filter := t.bloomForLocked(n, path); filter != nil && !filter.Test(key) {
		return record.Record{}, false, nil
	}

	idx, err := t.indexForLocked(n, path)
	if err != nil {
		return record.Record{}, false, err
	}
	offset, ok := idx.Lookup(key)
	if !ok {
		return record.Record{}, false, nil
	}

	_, valueBytes, err := sstable.ReadEntryAt(path, offset)
	if err != nil {
		return record.Record{}, false, err
	}
	rec, err := record.Decode(valueBytes)
	if err != nil {
		return record.Record{}, false, err
	}
	if t.valueCache != nil {
		t.valueCache.Put(path, key, rec)
	}
	return rec, true, nil
}

func (t *Tree) bloomForLocked(n uint64, path string) *bloom.BloomFilter {
	if t.settings.BloomCacheEnabled {
		if f, ok := t.blooms[n]; ok {
			return f
		}
	}
	table, ok := t.tables[n]
	if !ok {
		return nil
	}
	filter, err := sstable.ReadBloomFilter(path, table.Footer)
	if err != nil {
		t.log.Warnw("failed to load bloom filter", "path", path, "error", err)
		return nil
	}
	if t.settings.BloomCacheEnabled {
		t.blooms[n] = filter
	}
	return filter
}

func (t *Tree) indexForLocked(n uint64, path string) (sstable.Index, error) {
	if t.indexCache != nil {
		if idx, ok := t.indexCache.Get(path); ok {
			return idx, nil
		}
	}
	table, ok := t.tables[n]
	if !ok {
		return nil, lsmerrors.InternalErr("tree.indexForLocked", fmt.Errorf("no table open for run %d", n))
	}
	idx, err := sstable.ReadIndex(path, table.Footer)
	if err != nil {
		return nil, err
	}
	if t.indexCache != nil {
		t.indexCache.Put(path, idx)
	}
	return idx, nil
}

// buildRecord compresses value and wraps it in a record.Record, with or
// without a TTL (spec §4.11 "compress payload").
func (t *Tree) buildRecord(value []byte, ttl *time.Duration) (record.Record, error) {
	compressed, err := t.compressor.Compress(value)
	if err != nil {
		return record.Record{}, err
	}
	if ttl != nil {
		return record.NewWithTTL(compressed, *ttl), nil
	}
	return record.New(compressed), nil
}

// applyWriteLocked is the WAL-backed write path shared by Put, Delete,
// and transactional commit (spec §4.11, §4.10 "apply each write via the
// normal engine path"). Callers must hold mu.
func (t *Tree) applyWriteLocked(key []byte, rec record.Record) error {
	if t.walMgr != nil {
		op := wal.OpPut
		if rec.Tombstone {
			op = wal.OpDelete
		}
		if err := t.walMgr.Append(op, key, record.Encode(rec)); err != nil {
			return err
		}
	}
	t.memtable.Put(key, rec)
	if t.memtable.IsFull() {
		return t.forceFlushLocked()
	}
	return nil
}

// Put compresses value, appends a WAL record, and inserts into the
// memtable, flushing if the memtable overflows (spec §4.11).
func (t *Tree) Put(key, value []byte, ttl *time.Duration) error {
	const op = "tree.Put"
	if len(key) == 0 {
		return lsmerrors.InvalidKeyErr(op, fmt.Errorf("key must not be empty"))
	}
	rec, err := t.buildRecord(value, ttl)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.applyWriteLocked(key, rec)
}

// Delete writes a tombstone only if key is currently visible; otherwise
// it returns false without mutating anything (spec §9 open-question
// resolution).
func (t *Tree) Delete(key []byte) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, found, err := t.getRecordLocked(key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := t.applyWriteLocked(key, record.Tombstone()); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns key's decompressed payload, or found=false if key is
// absent, tombstoned, or expired (spec §4.11).
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, found, err := t.getRecordLocked(key)
	if err != nil || !found {
		return nil, false, err
	}
	payload, err := t.compressor.Decompress(rec.Payload)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// MultiGet returns one Result per key, in the same order as keys (spec
// §4.11 "ordered per-key result vector").
func (t *Tree) MultiGet(keys [][]byte) ([]Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Result, len(keys))
	for i, k := range keys {
		rec, found, err := t.getRecordLocked(k)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		payload, err := t.compressor.Decompress(rec.Payload)
		if err != nil {
			return nil, err
		}
		out[i] = Result{Value: payload, Found: true}
	}
	return out, nil
}

// Len counts non-expired, non-tombstone entries across every layer. It
// is O(total entries) and intended for diagnostics only (spec §4.11,
// §9 "do not treat it as a hot path").
func (t *Tree) Len() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]bool)
	count := 0
	now := time.Now()
	consider := func(key string, rec record.Record) {
		if seen[key] {
			return
		}
		seen[key] = true
		if !rec.Tombstone && !rec.IsExpired(now) {
			count++
		}
	}

	for _, e := range t.memtable.Snapshot() {
		consider(e.Key, e.Record)
	}
	for _, im := range t.queue.Snapshot() {
		for _, e := range im.Entries {
			consider(e.Key, e.Record)
		}
	}
	for i := len(t.runs) - 1; i >= 0; i-- {
		n := t.runs[i]
		path := compaction.SSTablePath(t.settings.DBPath, n)
		table := t.tables[n]
		entries, err := sstable.Iterate(path, table.Footer)
		if err != nil {
			return 0, err
		}
		for _, e := range entries {
			rec, err := record.Decode(e.EncodedValue)
			if err != nil {
				return 0, err
			}
			consider(string(e.Key), rec)
		}
	}
	return count, nil
}

// TTL returns the remaining TTL for a memtable-resident key (spec
// §4.11 "for memtable-resident keys only").
func (t *Tree) TTL(key []byte) (time.Duration, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.memtable.Get(key)
	if !ok || rec.Tombstone || rec.IsExpired(time.Now()) {
		return 0, false, nil
	}
	remaining, hasTTL := rec.Remaining(time.Now())
	if !hasTTL {
		return 0, false, nil
	}
	return remaining, true, nil
}

// UpdateTTL updates the expiry of a memtable-resident key in place. It
// returns false if the key isn't currently memtable-resident (spec
// §4.11 "only for memtable-resident keys").
func (t *Tree) UpdateTTL(key []byte, ttl *time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.memtable.Get(key)
	if !ok || rec.Tombstone {
		return false, nil
	}
	if ttl == nil {
		rec.ExpiresAt = nil
	} else {
		exp := time.Now().Add(*ttl)
		rec.ExpiresAt = &exp
	}
	t.memtable.Put(key, rec)
	return true, nil
}

// Flush moves the memtable into the immutable queue (if non-empty) and
// compacts one immutable table into a new sorted run; idempotent when
// there is nothing to flush (spec §4.11, §8 "flush; flush ≡ flush").
func (t *Tree) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.forceFlushLocked()
}

func (t *Tree) forceFlushLocked() error {
	if t.memtable.Len() > 0 {
		entries := t.memtable.Take()
		t.queue.PushBack(&memtable.Immutable{Entries: entries})
	}
	return t.compactOneLocked()
}

// compactOneLocked drains the front immutable table into a new sorted
// run (spec §4.9 step 1), checkpoints the WAL, and triggers a merge if
// the run list now exceeds threshold (spec §4.9 step 3).
func (t *Tree) compactOneLocked() error {
	im, ok := t.queue.PopFront()
	if !ok {
		return nil
	}

	runNum := t.nextRun
	path, table, idx, filter, err := t.compactor.Flush(im, runNum)
	if err != nil {
		return err
	}
	t.nextRun++
	t.tables[runNum] = table
	t.runs = append(t.runs, runNum)
	if t.indexCache != nil {
		t.indexCache.Put(path, idx)
	}
	if t.settings.BloomCacheEnabled {
		t.blooms[runNum] = filter
	}

	if t.walMgr != nil {
		if err := t.walMgr.Checkpoint(); err != nil {
			return err
		}
	}

	if len(t.runs) > compaction.MergeTrigger {
		return t.mergePeersLocked()
	}
	return nil
}

// mergePeersLocked k-way merges the oldest 2-3 runs into a new run,
// invalidates caches for the consumed runs, deletes their files, and
// renumbers the remaining list if a gap opened at the front (spec §4.9
// step 2, §9 "renumbering after merge").
func (t *Tree) mergePeersLocked() error {
	allPaths := make([]string, len(t.runs))
	for i, n := range t.runs {
		allPaths[i] = compaction.SSTablePath(t.settings.DBPath, n)
	}
	paths := compaction.OldestN(allPaths, compaction.MaxMergeRuns)
	if len(paths) == 0 {
		return nil
	}
	consumed := append([]uint64(nil), t.runs[:len(paths)]...)

	runNum := t.nextRun
	newPath, idx, filter, err := t.compactor.MergePeers(paths, runNum, time.Now())
	if err != nil {
		return err
	}
	t.nextRun++

	newTable, err := sstable.Open(newPath)
	if err != nil {
		return err
	}

	for i, n := range consumed {
		p := paths[i]
		if t.indexCache != nil {
			t.indexCache.InvalidatePath(p)
		}
		if t.valueCache != nil {
			t.valueCache.InvalidatePath(p)
		}
		delete(t.blooms, n)
		delete(t.tables, n)
		if err := compaction.DeleteRun(p); err != nil {
			return err
		}
	}

	t.tables[runNum] = newTable
	remaining := append([]uint64(nil), t.runs[len(consumed):]...)
	t.runs = append(remaining, runNum)
	if t.indexCache != nil {
		t.indexCache.Put(newPath, idx)
	}
	if t.settings.BloomCacheEnabled {
		t.blooms[runNum] = filter
	}

	return t.renumberIfNeededLocked()
}

// renumberIfNeededLocked renames sstable_N.sst files to start from 0
// when deletions have opened a gap at the front of the run list (spec
// §9 "renumbering after merge").
func (t *Tree) renumberIfNeededLocked() error {
	if len(t.runs) == 0 || t.runs[0] == 0 {
		return nil
	}

	newRuns := make([]uint64, len(t.runs))
	for i, oldNum := range t.runs {
		target := uint64(i)
		newRuns[i] = target
		if oldNum == target {
			continue
		}
		oldPath, newPath, renamed, err := compaction.RenameRun(t.settings.DBPath, oldNum, target)
		if err != nil {
			return err
		}
		if !renamed {
			continue
		}
		if table, ok := t.tables[oldNum]; ok {
			delete(t.tables, oldNum)
			table.Path = newPath
			t.tables[target] = table
		}
		if f, ok := t.blooms[oldNum]; ok {
			delete(t.blooms, oldNum)
			t.blooms[target] = f
		}
		if t.indexCache != nil {
			t.indexCache.RenamePath(oldPath, newPath)
		}
		if t.valueCache != nil {
			t.valueCache.RenamePath(oldPath, newPath)
		}
	}
	t.runs = newRuns
	t.nextRun = uint64(len(t.runs))
	return nil
}

// Begin starts a new optimistic transaction (spec §4.10).
func (t *Tree) Begin() string { return t.txns.Begin() }

// ReadTx reads key within transaction id: its own pending write if
// present, otherwise the normal engine read, recording a read-set entry
// for later validation (spec §4.10).
func (t *Tree) ReadTx(id string, key []byte) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, found, err := t.txns.Read(id, key, readerFunc(t.getRecordLocked))
	if err != nil || !found {
		return nil, false, err
	}
	payload, err := t.compressor.Decompress(rec.Payload)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// WriteTx stages a put in transaction id's write set only (spec §4.10).
func (t *Tree) WriteTx(id string, key, value []byte, ttl *time.Duration) error {
	const op = "tree.WriteTx"
	if len(key) == 0 {
		return lsmerrors.InvalidKeyErr(op, fmt.Errorf("key must not be empty"))
	}
	rec, err := t.buildRecord(value, ttl)
	if err != nil {
		return err
	}
	return t.txns.Write(id, key, rec)
}

// DeleteTx stages a tombstone in transaction id's write set (spec §4.10).
func (t *Tree) DeleteTx(id string, key []byte) error {
	return t.txns.Delete(id, key)
}

// CommitTx validates id's read set and, if it still holds, applies every
// staged write through the normal engine path, holding mu for the
// duration so transactional and non-transactional writes serialize
// against each other (spec §4.10, §5).
func (t *Tree) CommitTx(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.txns.Commit(id, applierFunc(t.applyWriteLocked))
}

// RollbackTx discards id's write set.
func (t *Tree) RollbackTx(id string) error {
	return t.txns.Rollback(id)
}

// Close flushes the memtable and releases the WAL writer (spec §4.11
// "close (implicit on drop): flush, then drop WAL writer").
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.forceFlushLocked(); err != nil {
		return err
	}
	if t.walMgr != nil {
		return t.walMgr.Close()
	}
	return nil
}

// IndexCacheStats and ValueCacheStats expose cache diagnostics (spec
// §4.11 "cache stats"). They return the zero Stats if the corresponding
// cache is disabled.
func (t *Tree) IndexCacheStats() cache.Stats {
	if t.indexCache == nil {
		return cache.Stats{}
	}
	return t.indexCache.Stats()
}

func (t *Tree) ValueCacheStats() cache.Stats {
	if t.valueCache == nil {
		return cache.Stats{}
	}
	return t.valueCache.Stats()
}
