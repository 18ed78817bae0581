// Package sstable implements the on-disk sorted-run file format (spec
// §4.5): a single file holding a header, CRC-checked data entries, a
// sparse-free full key→offset index, a serialized per-run bloom filter
// (spec §4.6), and a footer. Version 2 only — the legacy 12-byte,
// single-offset footer is never read or written (spec §9).
package sstable

import (
	"encoding/binary"
	"fmt"

	"github.com/hunddb/engine/lsmerrors"
)

const (
	headerMagic = "SSTB"
	footerMagic = "FTTB"
	formatVersion = uint32(2)

	headerSize = 16
	footerSize = 20
)

// Header is the fixed 16-byte file prefix.
type Header struct {
	Version uint32
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], headerMagic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	const op = "sstable.decodeHeader"
	if len(buf) < headerSize {
		return Header{}, lsmerrors.CorruptionErr(op, fmt.Errorf("truncated header"))
	}
	if string(buf[0:4]) != headerMagic {
		return Header{}, lsmerrors.CorruptionErr(op, fmt.Errorf("bad header magic %q", buf[0:4]))
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != formatVersion {
		return Header{}, lsmerrors.CorruptionErr(op, fmt.Errorf("unsupported version %d", version))
	}
	return Header{Version: version}, nil
}

// Footer is the fixed 20-byte file suffix: both offsets, per spec §9's
// mandated version-2 layout (never the legacy 12-byte single-offset form).
type Footer struct {
	IndexOffset uint64
	BloomOffset uint64
}

func encodeFooter(f Footer) []byte {
	buf := make([]byte, footerSize)
	binary.LittleEndian.PutUint64(buf[0:8], f.IndexOffset)
	binary.LittleEndian.PutUint64(buf[8:16], f.BloomOffset)
	copy(buf[16:20], footerMagic)
	return buf
}

func decodeFooter(buf []byte) (Footer, error) {
	const op = "sstable.decodeFooter"
	if len(buf) < footerSize {
		return Footer{}, lsmerrors.CorruptionErr(op, fmt.Errorf("truncated footer"))
	}
	if string(buf[16:20]) != footerMagic {
		return Footer{}, lsmerrors.CorruptionErr(op, fmt.Errorf("bad footer magic %q", buf[16:20]))
	}
	return Footer{
		IndexOffset: binary.LittleEndian.Uint64(buf[0:8]),
		BloomOffset: binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}

// IndexEntry is one (key, data-block offset) pair from the index block.
type IndexEntry struct {
	Key    []byte
	Offset uint64
}

// Index is the full key→offset map for a run, kept sorted ascending so
// lookups can binary-search it (spec §4.5: "Binary-search inside the
// key→offset map uses lexicographic ordering; ties are impossible").
type Index []IndexEntry

// Lookup returns the data-block offset for key, if present.
func (idx Index) Lookup(key []byte) (uint64, bool) {
	lo, hi := 0, len(idx)
	for lo < hi {
		mid := (lo + hi) / 2
		cmp := compareBytes(idx[mid].Key, key)
		if cmp == 0 {
			return idx[mid].Offset, true
		}
		if cmp < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return 0, false
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func encodeIndex(idx Index) []byte {
	size := 4
	for _, e := range idx {
		size += 4 + len(e.Key) + 8
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(idx)))
	off := 4
	for _, e := range idx {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(e.Key)))
		off += 4
		copy(buf[off:], e.Key)
		off += len(e.Key)
		binary.LittleEndian.PutUint64(buf[off:], e.Offset)
		off += 8
	}
	return buf
}

func decodeIndex(buf []byte) (Index, error) {
	const op = "sstable.decodeIndex"
	if len(buf) < 4 {
		return nil, lsmerrors.CorruptionErr(op, fmt.Errorf("truncated index count"))
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	idx := make(Index, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < off+4 {
			return nil, lsmerrors.CorruptionErr(op, fmt.Errorf("truncated index entry %d", i))
		}
		keyLen := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		if len(buf) < off+int(keyLen)+8 {
			return nil, lsmerrors.CorruptionErr(op, fmt.Errorf("truncated index entry %d", i))
		}
		key := append([]byte(nil), buf[off:off+int(keyLen)]...)
		off += int(keyLen)
		offset := binary.LittleEndian.Uint64(buf[off:])
		off += 8
		idx = append(idx, IndexEntry{Key: key, Offset: offset})
	}
	return idx, nil
}
