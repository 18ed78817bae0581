package memtable

import (
	"testing"

	"github.com/hunddb/engine/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetOverwrite(t *testing.T) {
	mt := New(10)
	mt.Put([]byte("a"), record.New([]byte("1")))
	mt.Put([]byte("b"), record.New([]byte("2")))
	mt.Put([]byte("a"), record.New([]byte("3")))

	rec, ok := mt.Get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, "3", string(rec.Payload))

	assert.Equal(t, 2, mt.Len())
}

func TestIsFull(t *testing.T) {
	mt := New(2)
	mt.Put([]byte("a"), record.New(nil))
	mt.Put([]byte("b"), record.New(nil))
	assert.False(t, mt.IsFull())
	mt.Put([]byte("c"), record.New(nil))
	assert.True(t, mt.IsFull())
}

func TestSnapshotAscending(t *testing.T) {
	mt := New(10)
	mt.Put([]byte("c"), record.New(nil))
	mt.Put([]byte("a"), record.New(nil))
	mt.Put([]byte("b"), record.New(nil))

	entries := mt.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{entries[0].Key, entries[1].Key, entries[2].Key})
}

func TestTakeResetsToEmpty(t *testing.T) {
	mt := New(10)
	mt.Put([]byte("a"), record.New(nil))
	mt.Put([]byte("b"), record.New(nil))

	taken := mt.Take()
	assert.Len(t, taken, 2)
	assert.Equal(t, 0, mt.Len())

	_, ok := mt.Get([]byte("a"))
	assert.False(t, ok)
}

func TestImmutableQueueFIFO(t *testing.T) {
	q := NewQueue()
	first := &Immutable{Entries: []Entry{{Key: "a", Record: record.New(nil)}}}
	second := &Immutable{Entries: []Entry{{Key: "b", Record: record.New(nil)}}}

	q.PushBack(first)
	q.PushBack(second)
	assert.Equal(t, 2, q.Len())

	popped, ok := q.PopFront()
	require.True(t, ok)
	assert.Same(t, first, popped)

	popped, ok = q.PopFront()
	require.True(t, ok)
	assert.Same(t, second, popped)

	_, ok = q.PopFront()
	assert.False(t, ok)
}

func TestImmutableGet(t *testing.T) {
	im := &Immutable{Entries: []Entry{
		{Key: "a", Record: record.New([]byte("1"))},
		{Key: "b", Record: record.New([]byte("2"))},
		{Key: "c", Record: record.New([]byte("3"))},
	}}

	e, ok := im.Get([]byte("b"))
	require.True(t, ok)
	assert.Equal(t, "2", string(e.Record.Payload))

	_, ok = im.Get([]byte("missing"))
	assert.False(t, ok)
}

func TestQueueSnapshotNewestFirst(t *testing.T) {
	q := NewQueue()
	first := &Immutable{Entries: []Entry{{Key: "a"}}}
	second := &Immutable{Entries: []Entry{{Key: "b"}}}
	q.PushBack(first)
	q.PushBack(second)

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	assert.Same(t, second, snap[0])
	assert.Same(t, first, snap[1])
}
