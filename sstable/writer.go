package sstable

import (
	"encoding/binary"
	"hash/crc32"
	"os"

	"github.com/hunddb/engine/lsmerrors"

	"github.com/bits-and-blooms/bloom/v3"
)

// Entry is one (key, encoded value record) pair, handed to Write in
// ascending key order.
type Entry struct {
	Key          []byte
	EncodedValue []byte
}

// Write lays out entries as a version-2 sorted run at path (spec §4.5
// Write): header, then one data block per entry recording its offset into
// an in-memory index, then the index block, then a bloom filter built
// over every key, then the footer. It returns the index and filter so the
// caller (the compaction engine / tree façade) can populate its caches
// immediately without rereading the file.
func Write(path string, entries []Entry, fpr float64) (Index, *bloom.BloomFilter, error) {
	const op = "sstable.Write"

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, lsmerrors.IO(op, err)
	}
	defer f.Close()

	var written int64
	if _, err := f.Write(encodeHeader(Header{Version: formatVersion})); err != nil {
		return nil, nil, lsmerrors.IO(op, err)
	}
	written += headerSize

	filter := newBloom(uint(len(entries)), fpr)
	index := make(Index, 0, len(entries))

	for _, e := range entries {
		index = append(index, IndexEntry{Key: e.Key, Offset: uint64(written)})
		filter.Add(e.Key)

		block := encodeDataBlock(e.Key, e.EncodedValue)
		n, err := f.Write(block)
		if err != nil {
			return nil, nil, lsmerrors.IO(op, err)
		}
		written += int64(n)
	}

	indexOffset := uint64(written)
	indexBytes := encodeIndex(index)
	if _, err := f.Write(indexBytes); err != nil {
		return nil, nil, lsmerrors.IO(op, err)
	}
	written += int64(len(indexBytes))

	bloomOffset := uint64(written)
	bloomBytes, err := encodeBloom(filter)
	if err != nil {
		return nil, nil, err
	}
	if _, err := f.Write(bloomBytes); err != nil {
		return nil, nil, lsmerrors.IO(op, err)
	}

	footer := encodeFooter(Footer{IndexOffset: indexOffset, BloomOffset: bloomOffset})
	if _, err := f.Write(footer); err != nil {
		return nil, nil, lsmerrors.IO(op, err)
	}

	if err := f.Sync(); err != nil {
		return nil, nil, lsmerrors.IO(op, err)
	}

	return index, filter, nil
}

// encodeDataBlock builds one data block:
// [key_len:4][key][value_len:4][value][crc32:4]
// The CRC covers both length prefixes as well as the key and value bytes
// (everything before it in the block), not the key and value alone.
func encodeDataBlock(key, value []byte) []byte {
	buf := make([]byte, 4+len(key)+4+len(value)+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(key)))
	off := 4
	copy(buf[off:], key)
	off += len(key)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(value)))
	off += 4
	copy(buf[off:], value)
	off += len(value)

	crc := crc32.ChecksumIEEE(buf[:off])
	binary.LittleEndian.PutUint32(buf[off:], crc)
	return buf
}
