package txn

import (
	"testing"
	"time"

	"github.com/hunddb/engine/lsmerrors"
	"github.com/hunddb/engine/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a minimal in-memory stand-in for the tree façade's normal
// read/write path, used to exercise the transaction manager in isolation.
type fakeEngine struct {
	data map[string]record.Record
}

func newFakeEngine() *fakeEngine { return &fakeEngine{data: make(map[string]record.Record)} }

func (f *fakeEngine) Get(key []byte) (record.Record, bool, error) {
	rec, ok := f.data[string(key)]
	if !ok || rec.Tombstone {
		return record.Record{}, false, nil
	}
	return rec, true, nil
}

func (f *fakeEngine) ApplyWrite(key []byte, rec record.Record) error {
	f.data[string(key)] = rec
	return nil
}

func TestReadOwnWrites(t *testing.T) {
	m := NewManager()
	eng := newFakeEngine()

	id := m.Begin()
	require.NoError(t, m.Write(id, []byte("a"), record.New([]byte("1"))))

	rec, found, err := m.Read(id, []byte("a"), eng)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", string(rec.Payload))
}

func TestCommitAppliesWritesAndBumpsVersion(t *testing.T) {
	m := NewManager()
	eng := newFakeEngine()

	id := m.Begin()
	require.NoError(t, m.Write(id, []byte("a"), record.New([]byte("1"))))
	require.NoError(t, m.Commit(id, eng))

	rec, found, err := eng.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", string(rec.Payload))

	assert.Equal(t, uint64(1), m.versions["a"].Version)
}

func TestConcurrentWriteWriteConflictAbortsLoser(t *testing.T) {
	m := NewManager()
	eng := newFakeEngine()
	eng.data["shared"] = record.New([]byte("orig"))

	t1 := m.Begin()
	t2 := m.Begin()

	_, _, err := m.Read(t1, []byte("shared"), eng)
	require.NoError(t, err)
	_, _, err = m.Read(t2, []byte("shared"), eng)
	require.NoError(t, err)

	require.NoError(t, m.Write(t1, []byte("shared"), record.New([]byte("t1"))))
	require.NoError(t, m.Write(t2, []byte("shared"), record.New([]byte("t2"))))

	rec, found, err := m.Read(t1, []byte("shared"), eng)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "t1", string(rec.Payload))

	rec, found, err = m.Read(t2, []byte("shared"), eng)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "t2", string(rec.Payload))

	require.NoError(t, m.Commit(t1, eng))
	got, _, _ := eng.Get([]byte("shared"))
	assert.Equal(t, "t1", string(got.Payload))

	err = m.Commit(t2, eng)
	assert.Error(t, err)
	assert.True(t, lsmerrors.Is(err, lsmerrors.Transaction))
}

func TestRollbackDiscardsWriteSet(t *testing.T) {
	m := NewManager()
	eng := newFakeEngine()

	id := m.Begin()
	require.NoError(t, m.Write(id, []byte("a"), record.New([]byte("1"))))
	require.NoError(t, m.Rollback(id))

	_, found, err := eng.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, found)

	_, err = m.getActive("txn.test", id)
	assert.Error(t, err)
}

func TestCommitUnknownTxFails(t *testing.T) {
	m := NewManager()
	eng := newFakeEngine()
	err := m.Commit("does-not-exist", eng)
	assert.Error(t, err)
}

func TestCommitSkipsExpiredWriteSilently(t *testing.T) {
	m := NewManager()
	eng := newFakeEngine()

	id := m.Begin()
	rec := record.NewWithTTL([]byte("v"), -time.Second)
	require.NoError(t, m.Write(id, []byte("a"), rec))
	require.NoError(t, m.Commit(id, eng))

	_, found, _ := eng.Get([]byte("a"))
	assert.False(t, found)
}
