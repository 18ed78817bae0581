// Package record implements the value record codec (spec §3, §4.1): the
// unit stored at every layer of the engine, carrying a payload, creation
// and optional expiry timestamps, a tombstone flag, and an optional
// transaction id.
package record

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/hunddb/engine/lsmerrors"
)

const (
	flagTombstone byte = 1 << 0
	flagHasExpiry byte = 1 << 1
	flagHasTxnID  byte = 1 << 2
)

// Record is the decoded form of a stored value.
type Record struct {
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt *time.Time
	Tombstone bool
	TxnID     *uint64
}

// New builds a live (non-tombstone) record for payload, created now.
func New(payload []byte) Record {
	return Record{Payload: payload, CreatedAt: time.Now()}
}

// NewWithTTL builds a live record expiring after d from now.
func NewWithTTL(payload []byte, d time.Duration) Record {
	now := time.Now()
	exp := now.Add(d)
	return Record{Payload: payload, CreatedAt: now, ExpiresAt: &exp}
}

// Tombstone builds a deletion marker: empty payload, no expiry.
func Tombstone() Record {
	return Record{Payload: nil, CreatedAt: time.Now(), Tombstone: true}
}

// IsExpired reports whether the record has an expiry and now is past it.
func (r Record) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// WithTxnID returns a copy of r tagged with a transaction id.
func (r Record) WithTxnID(id uint64) Record {
	r.TxnID = &id
	return r
}

// Remaining returns the duration left until expiry relative to now, and
// ok=false if the record never expires.
func (r Record) Remaining(now time.Time) (time.Duration, bool) {
	if r.ExpiresAt == nil {
		return 0, false
	}
	return r.ExpiresAt.Sub(now), true
}

// Encode produces a deterministic byte form such that Decode(Encode(r))
// reproduces r exactly (round-trip law, spec §4.1).
//
// Layout, all integers little-endian:
//
//	[flags: 1][created_at_unix_nano: 8]
//	[expires_at_unix_nano: 8 (present iff flagHasExpiry)]
//	[txn_id: 8 (present iff flagHasTxnID)]
//	[payload_len: 4][payload bytes]
func Encode(r Record) []byte {
	var flags byte
	if r.Tombstone {
		flags |= flagTombstone
	}
	if r.ExpiresAt != nil {
		flags |= flagHasExpiry
	}
	if r.TxnID != nil {
		flags |= flagHasTxnID
	}

	size := 1 + 8 + 4 + len(r.Payload)
	if r.ExpiresAt != nil {
		size += 8
	}
	if r.TxnID != nil {
		size += 8
	}

	buf := make([]byte, size)
	off := 0
	buf[off] = flags
	off++
	binary.LittleEndian.PutUint64(buf[off:], uint64(r.CreatedAt.UnixNano()))
	off += 8
	if r.ExpiresAt != nil {
		binary.LittleEndian.PutUint64(buf[off:], uint64(r.ExpiresAt.UnixNano()))
		off += 8
	}
	if r.TxnID != nil {
		binary.LittleEndian.PutUint64(buf[off:], *r.TxnID)
		off += 8
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Payload)))
	off += 4
	copy(buf[off:], r.Payload)
	return buf
}

// Decode is the inverse of Encode. It fails with lsmerrors.Serialization
// when bytes are truncated or internally inconsistent.
func Decode(data []byte) (Record, error) {
	const op = "record.Decode"
	if len(data) < 1+8+4 {
		return Record{}, lsmerrors.SerializationErr(op, fmt.Errorf("truncated record: %d bytes", len(data)))
	}

	var r Record
	off := 0
	flags := data[off]
	off++
	r.Tombstone = flags&flagTombstone != 0

	r.CreatedAt = time.Unix(0, int64(binary.LittleEndian.Uint64(data[off:])))
	off += 8

	if flags&flagHasExpiry != 0 {
		if len(data) < off+8 {
			return Record{}, lsmerrors.SerializationErr(op, fmt.Errorf("truncated expires_at"))
		}
		exp := time.Unix(0, int64(binary.LittleEndian.Uint64(data[off:])))
		r.ExpiresAt = &exp
		off += 8
	}

	if flags&flagHasTxnID != 0 {
		if len(data) < off+8 {
			return Record{}, lsmerrors.SerializationErr(op, fmt.Errorf("truncated txn_id"))
		}
		id := binary.LittleEndian.Uint64(data[off:])
		r.TxnID = &id
		off += 8
	}

	if len(data) < off+4 {
		return Record{}, lsmerrors.SerializationErr(op, fmt.Errorf("truncated payload_len"))
	}
	payloadLen := binary.LittleEndian.Uint32(data[off:])
	off += 4

	if len(data) < off+int(payloadLen) {
		return Record{}, lsmerrors.SerializationErr(op, fmt.Errorf("truncated payload: want %d have %d", payloadLen, len(data)-off))
	}
	if payloadLen > 0 {
		r.Payload = append([]byte(nil), data[off:off+int(payloadLen)]...)
	}
	return r, nil
}
