package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	txnID := uint64(42)
	exp := time.Now().Add(time.Hour).Truncate(time.Nanosecond)

	tests := []struct {
		name string
		rec  Record
	}{
		{"plain value", New([]byte("hello"))},
		{"empty payload", New(nil)},
		{"tombstone", Tombstone()},
		{"with ttl", NewWithTTL([]byte("v"), time.Minute)},
		{"with txn id", New([]byte("v")).WithTxnID(txnID)},
		{"with explicit expiry", Record{Payload: []byte("v"), CreatedAt: time.Now(), ExpiresAt: &exp}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.rec)
			decoded, err := Decode(encoded)
			require.NoError(t, err)

			assert.Equal(t, tt.rec.Tombstone, decoded.Tombstone)
			assert.Equal(t, tt.rec.Payload, decoded.Payload)
			assert.Equal(t, tt.rec.CreatedAt.UnixNano(), decoded.CreatedAt.UnixNano())
			if tt.rec.ExpiresAt == nil {
				assert.Nil(t, decoded.ExpiresAt)
			} else {
				require.NotNil(t, decoded.ExpiresAt)
				assert.Equal(t, tt.rec.ExpiresAt.UnixNano(), decoded.ExpiresAt.UnixNano())
			}
			if tt.rec.TxnID == nil {
				assert.Nil(t, decoded.TxnID)
			} else {
				require.NotNil(t, decoded.TxnID)
				assert.Equal(t, *tt.rec.TxnID, *decoded.TxnID)
			}

			reEncoded := Encode(decoded)
			assert.Equal(t, encoded, reEncoded)
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	full := Encode(New([]byte("hello world")))
	for n := 0; n < len(full); n++ {
		_, err := Decode(full[:n])
		assert.Error(t, err, "expected error decoding %d of %d bytes", n, len(full))
	}
}

func TestIsExpired(t *testing.T) {
	r := NewWithTTL([]byte("v"), time.Millisecond)
	assert.False(t, r.IsExpired(r.CreatedAt))
	assert.True(t, r.IsExpired(r.CreatedAt.Add(time.Second)))

	live := New([]byte("v"))
	assert.False(t, live.IsExpired(time.Now().Add(24*time.Hour)))
}

func TestRemaining(t *testing.T) {
	r := NewWithTTL([]byte("v"), time.Minute)
	d, ok := r.Remaining(r.CreatedAt)
	require.True(t, ok)
	assert.InDelta(t, time.Minute.Seconds(), d.Seconds(), 0.01)

	live := New([]byte("v"))
	_, ok = live.Remaining(time.Now())
	assert.False(t, ok)
}
