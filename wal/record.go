// Package wal implements the segmented write-ahead log: per-record wire
// format (spec §4.3), and the segment lifecycle manager (spec §4.4).
package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/hunddb/engine/lsmerrors"
)

// Op tags a WAL record's operation.
type Op byte

const (
	OpCheckpoint Op = 1
	OpPut        Op = 2
	OpDelete     Op = 3
)

// checkpointKey is the sentinel key carried by Checkpoint records; they
// are markers, not data, and are never replayed as a key/value operation.
var checkpointKey = []byte("CHCKPT")

// Record is one decoded WAL entry.
type Record struct {
	Op    Op
	Key   []byte
	Value []byte
}

// Encode produces the on-disk form of r:
//
//	[crc32: 4][op: 1][key_len: u32][key][value_len: u32][value]
//
// CRC32 (IEEE) covers op, both length fields, and both byte sequences.
func Encode(r Record) []byte {
	buf := make([]byte, 4+1+4+len(r.Key)+4+len(r.Value))
	buf[4] = byte(r.Op)
	binary.LittleEndian.PutUint32(buf[5:], uint32(len(r.Key)))
	off := 9
	copy(buf[off:], r.Key)
	off += len(r.Key)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Value)))
	off += 4
	copy(buf[off:], r.Value)

	crc := crc32.ChecksumIEEE(buf[4:])
	binary.LittleEndian.PutUint32(buf[:4], crc)
	return buf
}

// NewCheckpoint builds a Checkpoint marker record.
func NewCheckpoint() Record {
	return Record{Op: OpCheckpoint, Key: checkpointKey}
}

// readRecord reads one record from r. io.EOF (clean, at a record boundary)
// propagates unchanged so callers can stop reading a segment. A CRC
// mismatch is a lsmerrors.Corruption error; a short read mid-header/body is reported
// via errShortRead so the manager can decide whether it's the tolerated
// last-partial-record case.
var errShortRead = fmt.Errorf("wal: short read")

func readRecord(r *bufio.Reader) (Record, error) {
	header := make([]byte, 9)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, errShortRead
	}

	crcWant := binary.LittleEndian.Uint32(header[0:4])
	op := Op(header[4])
	keyLen := binary.LittleEndian.Uint32(header[5:9])

	rest := make([]byte, int(keyLen)+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Record{}, errShortRead
	}
	key := append([]byte(nil), rest[:keyLen]...)
	valueLen := binary.LittleEndian.Uint32(rest[keyLen:])

	value := make([]byte, valueLen)
	if valueLen > 0 {
		if _, err := io.ReadFull(r, value); err != nil {
			return Record{}, errShortRead
		}
	}

	checked := make([]byte, 1+4+len(key)+4+len(value))
	checked[0] = byte(op)
	binary.LittleEndian.PutUint32(checked[1:], keyLen)
	copy(checked[5:], key)
	binary.LittleEndian.PutUint32(checked[5+len(key):], valueLen)
	copy(checked[5+len(key)+4:], value)

	crcGot := crc32.ChecksumIEEE(checked)
	if crcGot != crcWant {
		return Record{}, lsmerrors.CorruptionErr("wal.readRecord", fmt.Errorf("crc mismatch"))
	}

	return Record{Op: op, Key: key, Value: value}, nil
}
