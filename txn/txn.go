// Package txn implements the optimistic transaction manager of spec
// §4.10: begin/read/write/delete/commit/rollback over per-key version
// stamps, with read-committed isolation. Commit validates only the keys
// in the read set: a conflicting commit on a key this transaction read
// aborts it with a Transaction error, but a key it only wrote (without
// reading it through Read) is not validated, so two transactions that
// both blind-write the same key both commit.
package txn

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hunddb/engine/lsmerrors"
	"github.com/hunddb/engine/record"

	"github.com/google/uuid"
)

// VersionStamp pairs a monotonic version with a wall-clock timestamp
// (spec §3 "A version stamp pairs a monotonic version counter with a
// wall-clock timestamp").
type VersionStamp struct {
	Version   uint64
	Timestamp time.Time
}

// zeroStamp is the default observed for a key that has never committed,
// per spec §4.10 "zero/epoch stamp if none exists yet" and
// original_source's transaction_manager.rs `get_tx` lazy-insert.
var zeroStamp = VersionStamp{Version: 0, Timestamp: time.Unix(0, 0)}

// Status is a transaction context's lifecycle state.
type Status int

const (
	Active Status = iota
	Committed
	RolledBack
)

// EngineReader is the normal (non-transactional) read path a Read falls
// through to when the key isn't in the local write set.
type EngineReader interface {
	Get(key []byte) (record.Record, bool, error)
}

// Applier is the normal write path a successful commit applies each
// write through: WAL append then memtable insert, the same path a
// non-transactional Put/Delete takes.
type Applier interface {
	ApplyWrite(key []byte, rec record.Record) error
}

type txContext struct {
	id       string
	readSet  map[string]VersionStamp
	writeSet map[string]record.Record
	status   Status
}

// Manager owns every in-flight transaction's context and the global
// per-key version-stamp table. Its interior mutex exists to permit
// reentrant commit flows (spec §9); the tree façade still serializes
// transactional and non-transactional writes against each other at a
// higher level (spec §5).
type Manager struct {
	mu       sync.RWMutex
	versions map[string]VersionStamp
	global   uint64

	txMu sync.Mutex
	txns map[string]*txContext
}

// NewManager builds an empty transaction manager.
func NewManager() *Manager {
	return &Manager{
		versions: make(map[string]VersionStamp),
		txns:     make(map[string]*txContext),
	}
}

// Begin starts a new transaction and returns its id.
func (m *Manager) Begin() string {
	id := uuid.NewString()
	m.txMu.Lock()
	m.txns[id] = &txContext{
		id:       id,
		readSet:  make(map[string]VersionStamp),
		writeSet: make(map[string]record.Record),
		status:   Active,
	}
	m.txMu.Unlock()
	return id
}

func (m *Manager) getActive(op, id string) (*txContext, error) {
	m.txMu.Lock()
	ctx, ok := m.txns[id]
	m.txMu.Unlock()
	if !ok {
		return nil, lsmerrors.TransactionErr(op, fmt.Errorf("unknown transaction %s", id))
	}
	if ctx.status != Active {
		return nil, lsmerrors.TransactionErr(op, fmt.Errorf("transaction %s is no longer active", id))
	}
	return ctx, nil
}

// stampFor returns the current version stamp for key, or the zero stamp
// if the key has never been committed through a transaction.
func (m *Manager) stampFor(key string) VersionStamp {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.versions[key]; ok {
		return s
	}
	return zeroStamp
}

// Read returns the transaction's own pending write for key if present and
// not expired (spec §4.10 "returns the local write-set value if present
// (and not expired)"); otherwise it falls through to reader.Get and
// records the key's current version stamp in the read set, lazily
// defaulting to the zero stamp the first time the key is touched (spec
// §9 supplement, grounded on transaction_manager.rs `get_tx`).
func (m *Manager) Read(id string, key []byte, reader EngineReader) (record.Record, bool, error) {
	const op = "txn.Read"
	ctx, err := m.getActive(op, id)
	if err != nil {
		return record.Record{}, false, err
	}

	k := string(key)
	if rec, ok := ctx.writeSet[k]; ok {
		if rec.Tombstone || rec.IsExpired(time.Now()) {
			return record.Record{}, false, nil
		}
		return rec, true, nil
	}

	if _, seen := ctx.readSet[k]; !seen {
		ctx.readSet[k] = m.stampFor(k)
	}

	rec, found, err := reader.Get(key)
	if err != nil {
		return record.Record{}, false, err
	}
	return rec, found, nil
}

// Write stages a put in the transaction's write set only; it does not
// touch the memtable or WAL (spec §4.10).
func (m *Manager) Write(id string, key []byte, rec record.Record) error {
	const op = "txn.Write"
	ctx, err := m.getActive(op, id)
	if err != nil {
		return err
	}
	ctx.writeSet[string(key)] = rec
	return nil
}

// Delete stages a tombstone in the transaction's write set.
func (m *Manager) Delete(id string, key []byte) error {
	const op = "txn.Delete"
	ctx, err := m.getActive(op, id)
	if err != nil {
		return err
	}
	ctx.writeSet[string(key)] = record.Tombstone()
	return nil
}

// Commit validates the read set against the current global version
// stamps, aborting (rolling back) on any conflict (spec §4.10, §8
// invariant 9/10). On success, every write is applied through apply in
// key order, remaining TTL is recomputed from expires_at (spec §9 "TTL
// semantics on commit"; a write whose expiry has already passed is
// skipped silently), then each written key's version stamp is bumped to
// a new global version and now.
func (m *Manager) Commit(id string, apply Applier) error {
	const op = "txn.Commit"
	ctx, err := m.getActive(op, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, observed := range ctx.readSet {
		current, ok := m.versions[key]
		if !ok {
			current = zeroStamp
		}
		if current.Version > observed.Version || current.Timestamp.After(observed.Timestamp) {
			m.finishLocked(ctx, RolledBack)
			return lsmerrors.TransactionErr(op, fmt.Errorf("write-write conflict on key %q", key))
		}
	}

	keys := make([]string, 0, len(ctx.writeSet))
	for key := range ctx.writeSet {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	now := time.Now()
	for _, key := range keys {
		rec := ctx.writeSet[key]
		toApply := rec
		if !rec.Tombstone && rec.ExpiresAt != nil {
			remaining, _ := rec.Remaining(now)
			if remaining <= 0 {
				continue
			}
			toApply = record.NewWithTTL(rec.Payload, remaining)
			toApply.TxnID = rec.TxnID
		}
		if err := apply.ApplyWrite([]byte(key), toApply); err != nil {
			return err
		}
		m.global++
		m.versions[key] = VersionStamp{Version: m.global, Timestamp: now}
	}

	m.finishLocked(ctx, Committed)
	return nil
}

// Rollback discards the transaction's write set and removes its context.
func (m *Manager) Rollback(id string) error {
	const op = "txn.Rollback"
	ctx, err := m.getActive(op, id)
	if err != nil {
		return err
	}
	m.finishLocked(ctx, RolledBack)
	return nil
}

func (m *Manager) finishLocked(ctx *txContext, status Status) {
	ctx.status = status
	m.txMu.Lock()
	delete(m.txns, ctx.id)
	m.txMu.Unlock()
}
