// Package memtable implements the in-memory ordered key→value-record map
// and its immutable-queue overflow (spec §4.8).
package memtable

import (
	"sync"

	"github.com/hunddb/engine/record"

	"github.com/google/btree"
)

// Entry pairs a key with its current value record.
type Entry struct {
	Key    string
	Record record.Record
}

func less(a, b Entry) bool { return a.Key < b.Key }

// Memtable is an ordered map from key to value record, guarded by an
// RWMutex in the donor's wrapper style even though the engine itself is
// single-writer (spec §5) — this keeps the type safe to expose directly
// for diagnostics (stats, len) without requiring callers to serialize
// through the tree façade.
type Memtable struct {
	mu      sync.RWMutex
	tree    *btree.BTreeG[Entry]
	maxSize int
}

// New builds an empty memtable that reports full once its entry count
// exceeds maxSize.
func New(maxSize int) *Memtable {
	return &Memtable{tree: btree.NewG(32, less), maxSize: maxSize}
}

// Put inserts or overwrites key's record.
func (m *Memtable) Put(key []byte, rec record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.ReplaceOrInsert(Entry{Key: string(key), Record: rec})
}

// Get returns key's current record, if present in this memtable.
func (m *Memtable) Get(key []byte) (record.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tree.Get(Entry{Key: string(key)})
	return e.Record, ok
}

// Delete removes key outright (used only when rebuilding state; normal
// logical deletes go through Put with a tombstone record).
func (m *Memtable) Delete(key []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Delete(Entry{Key: string(key)})
}

// Len returns the current entry count.
func (m *Memtable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

// IsFull reports whether the entry count exceeds maxSize (spec §4.8).
func (m *Memtable) IsFull() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len() > m.maxSize
}

// Snapshot returns every entry in ascending key order without mutating
// the memtable.
func (m *Memtable) Snapshot() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]Entry, 0, m.tree.Len())
	m.tree.Ascend(func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}

// Take atomically replaces the memtable's contents with an empty map and
// returns the prior contents in ascending order (spec §4.8: "the entire
// map is atomically taken... and appended to the immutable queue").
func (m *Memtable) Take() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]Entry, 0, m.tree.Len())
	m.tree.Ascend(func(e Entry) bool {
		entries = append(entries, e)
		return true
	})
	m.tree = btree.NewG(32, less)
	return entries
}
