package tree

import (
	"testing"
	"time"

	"github.com/hunddb/engine/compaction"
	"github.com/hunddb/engine/compression"
	"github.com/hunddb/engine/config"
	"github.com/hunddb/engine/lsmerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings(t *testing.T, memTableMaxSize uint64) config.Settings {
	t.Helper()
	s := config.Default()
	s.DBPath = t.TempDir()
	s.MemTableMaxSize = memTableMaxSize
	return s
}

func TestBasicPutGetDeleteLen(t *testing.T) {
	tr, err := Open(testSettings(t, 10000))
	require.NoError(t, err)

	require.NoError(t, tr.Put([]byte("a"), []byte("1"), nil))
	require.NoError(t, tr.Put([]byte("b"), []byte("2"), nil))

	v, found, err := tr.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", string(v))

	v, found, err = tr.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", string(v))

	deleted, err := tr.Delete([]byte("a"))
	require.NoError(t, err)
	assert.True(t, deleted)

	_, found, err = tr.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, found)

	n, err := tr.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDeleteAbsentKeyReturnsFalseWithoutTombstone(t *testing.T) {
	tr, err := Open(testSettings(t, 10000))
	require.NoError(t, err)

	deleted, err := tr.Delete([]byte("ghost"))
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := tr.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTTLExpiry(t *testing.T) {
	tr, err := Open(testSettings(t, 10000))
	require.NoError(t, err)

	ttl := 100 * time.Millisecond
	require.NoError(t, tr.Put([]byte("k"), []byte("v"), &ttl))

	v, found, err := tr.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", string(v))

	time.Sleep(200 * time.Millisecond)

	_, found, err = tr.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, found)
}

// TestFlushAndMergeLifecycle scales down the 2001-key/mem_table_max_size=1000
// end-to-end scenario to a memtable size where the first nine keys
// deterministically drive three flushes and exactly one automatic merge (run
// list length > MergeTrigger), and the last three keys a fourth flush that
// leaves two runs, while still exercising "every key remains readable across
// flush/merge".
func TestFlushAndMergeLifecycle(t *testing.T) {
	settings := testSettings(t, 2)
	tr, err := Open(settings)
	require.NoError(t, err)

	var keys []string
	put := func(k, v string) {
		require.NoError(t, tr.Put([]byte(k), []byte(v), nil))
		keys = append(keys, k)
	}

	for i := 0; i < 9; i++ {
		put(keyName(i), valueName(i))
	}

	nums, err := compaction.ListRunNumbers(settings.DBPath)
	require.NoError(t, err)
	assert.Len(t, nums, 1, "three flushes of three keys each should merge down to one run")

	for i := 9; i < 12; i++ {
		put(keyName(i), valueName(i))
	}

	n, err := tr.Len()
	require.NoError(t, err)
	assert.Equal(t, len(keys), n)

	for i, k := range keys {
		v, found, err := tr.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, found, "key %s should still be readable", k)
		assert.Equal(t, valueName(i), string(v))
	}
}

func keyName(i int) string   { return "k" + itoa(i) }
func valueName(i int) string { return "v" + itoa(i) }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}

func TestCrashRecovery(t *testing.T) {
	settings := testSettings(t, 5)

	tr, err := Open(settings)
	require.NoError(t, err)

	want := map[string]string{}
	for i := 0; i < 37; i++ {
		k, v := keyName(i), valueName(i)
		require.NoError(t, tr.Put([]byte(k), []byte(v), nil))
		want[k] = v
	}
	// No Close: simulates an abrupt drop with the WAL as the only durable
	// record of whatever hasn't reached a sorted run yet.

	reopened, err := Open(settings)
	require.NoError(t, err)

	for k, v := range want {
		got, found, err := reopened.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, found, "key %s lost across reopen", k)
		assert.Equal(t, v, string(got))
	}

	require.NoError(t, reopened.Put([]byte("key1"), []byte("value1"), nil))
	require.NoError(t, reopened.Put([]byte("key2"), []byte("value2"), nil))

	v, found, err := reopened.Get([]byte("key1"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "value1", string(v))
}

func TestTransactionIsolationAndConflict(t *testing.T) {
	tr, err := Open(testSettings(t, 10000))
	require.NoError(t, err)

	require.NoError(t, tr.Put([]byte("shared"), []byte("orig"), nil))

	t1 := tr.Begin()
	t2 := tr.Begin()

	_, _, err = tr.ReadTx(t1, []byte("shared"))
	require.NoError(t, err)
	_, _, err = tr.ReadTx(t2, []byte("shared"))
	require.NoError(t, err)

	require.NoError(t, tr.WriteTx(t1, []byte("shared"), []byte("t1"), nil))
	require.NoError(t, tr.WriteTx(t2, []byte("shared"), []byte("t2"), nil))

	v, found, err := tr.ReadTx(t1, []byte("shared"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "t1", string(v))

	v, found, err = tr.ReadTx(t2, []byte("shared"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "t2", string(v))

	require.NoError(t, tr.CommitTx(t1))
	got, found, err := tr.Get([]byte("shared"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "t1", string(got))

	err = tr.CommitTx(t2)
	require.Error(t, err)
	assert.True(t, lsmerrors.Is(err, lsmerrors.Transaction))
}

func TestCompressionRoundTripAllCodecs(t *testing.T) {
	payload := make([]byte, 10*1024)
	for i := range payload {
		payload[i] = byte(i % 7)
	}

	codecs := []compression.Config{
		{Kind: compression.None},
		compression.Balanced(),
		compression.Best(),
		compression.Fast(),
	}

	for _, cfg := range codecs {
		cfg := cfg
		t.Run(cfg.Kind.String(), func(t *testing.T) {
			settings := testSettings(t, 10000)
			settings.Compressor = cfg
			tr, err := Open(settings)
			require.NoError(t, err)

			for i := 0; i < 5; i++ {
				k := keyName(i)
				require.NoError(t, tr.Put([]byte(k), payload, nil))
			}
			for i := 0; i < 5; i++ {
				got, found, err := tr.Get([]byte(keyName(i)))
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, payload, got)
			}
		})
	}
}

func TestFlushIdempotentOnEmpty(t *testing.T) {
	tr, err := Open(testSettings(t, 10000))
	require.NoError(t, err)

	require.NoError(t, tr.Flush())
	require.NoError(t, tr.Flush())
}

func TestCloseFlushesPendingWrites(t *testing.T) {
	settings := testSettings(t, 10000)
	tr, err := Open(settings)
	require.NoError(t, err)

	require.NoError(t, tr.Put([]byte("a"), []byte("1"), nil))
	require.NoError(t, tr.Close())

	reopened, err := Open(settings)
	require.NoError(t, err)
	v, found, err := reopened.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", string(v))
}
