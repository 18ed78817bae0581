package sstable

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/hunddb/engine/lsmerrors"

	"github.com/bits-and-blooms/bloom/v3"
)

// ValidateAndReadFooter opens path, checks the header magic/version, and
// returns the parsed footer. A magic/version mismatch anywhere returns a
// Corruption error so the caller can mark the run damaged and exclude it
// from the run list (spec §4.5 Integrity).
func ValidateAndReadFooter(path string) (Footer, error) {
	const op = "sstable.ValidateAndReadFooter"

	f, err := os.Open(path)
	if err != nil {
		return Footer{}, lsmerrors.IO(op, err)
	}
	defer f.Close()

	header := make([]byte, headerSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return Footer{}, lsmerrors.CorruptionErr(op, err)
	}
	if _, err := decodeHeader(header); err != nil {
		return Footer{}, err
	}

	info, err := f.Stat()
	if err != nil {
		return Footer{}, lsmerrors.IO(op, err)
	}
	if info.Size() < footerSize {
		return Footer{}, lsmerrors.CorruptionErr(op, fmt.Errorf("file too small for footer"))
	}

	footerBuf := make([]byte, footerSize)
	if _, err := f.ReadAt(footerBuf, info.Size()-footerSize); err != nil {
		return Footer{}, lsmerrors.CorruptionErr(op, err)
	}
	return decodeFooter(footerBuf)
}

// ReadIndex loads the full key→offset map (spec §4.5 Lookup "load... the
// key→offset map").
func ReadIndex(path string, footer Footer) (Index, error) {
	const op = "sstable.ReadIndex"
	f, err := os.Open(path)
	if err != nil {
		return nil, lsmerrors.IO(op, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, lsmerrors.IO(op, err)
	}
	size := info.Size() - int64(footerSize) - int64(footer.IndexOffset)
	if footer.BloomOffset > footer.IndexOffset {
		size = int64(footer.BloomOffset) - int64(footer.IndexOffset)
	}
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, int64(footer.IndexOffset)); err != nil {
		return nil, lsmerrors.CorruptionErr(op, err)
	}
	return decodeIndex(buf)
}

// ReadBloomFilter loads the serialized bloom filter (spec §4.6).
func ReadBloomFilter(path string, footer Footer) (*bloom.BloomFilter, error) {
	const op = "sstable.ReadBloomFilter"
	f, err := os.Open(path)
	if err != nil {
		return nil, lsmerrors.IO(op, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, lsmerrors.IO(op, err)
	}
	size := info.Size() - int64(footerSize) - int64(footer.BloomOffset)
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, int64(footer.BloomOffset)); err != nil {
		return nil, lsmerrors.CorruptionErr(op, err)
	}
	return decodeBloom(buf)
}

// ReadEntryAt decodes the data block at offset, validating its CRC (spec
// §4.5 Lookup, §7 per-entry CRC mismatch).
func ReadEntryAt(path string, offset uint64) (key []byte, value []byte, err error) {
	const op = "sstable.ReadEntryAt"
	f, ferr := os.Open(path)
	if ferr != nil {
		return nil, nil, lsmerrors.IO(op, ferr)
	}
	defer f.Close()

	head := make([]byte, 4)
	if _, err := f.ReadAt(head, int64(offset)); err != nil {
		return nil, nil, lsmerrors.CorruptionErr(op, err)
	}
	keyLen := binary.LittleEndian.Uint32(head)

	rest := make([]byte, int(keyLen)+4)
	if _, err := f.ReadAt(rest, int64(offset)+4); err != nil {
		return nil, nil, lsmerrors.CorruptionErr(op, err)
	}
	key = append([]byte(nil), rest[:keyLen]...)
	valueLen := binary.LittleEndian.Uint32(rest[keyLen:])

	value = make([]byte, valueLen)
	if valueLen > 0 {
		if _, err := f.ReadAt(value, int64(offset)+4+int64(keyLen)+4); err != nil {
			return nil, nil, lsmerrors.CorruptionErr(op, err)
		}
	}

	crcBuf := make([]byte, 4)
	if _, err := f.ReadAt(crcBuf, int64(offset)+4+int64(keyLen)+4+int64(valueLen)); err != nil {
		return nil, nil, lsmerrors.CorruptionErr(op, err)
	}
	wantCRC := binary.LittleEndian.Uint32(crcBuf)

	checked := make([]byte, 4+len(key)+4+len(value))
	binary.LittleEndian.PutUint32(checked[0:4], keyLen)
	copy(checked[4:], key)
	binary.LittleEndian.PutUint32(checked[4+len(key):], valueLen)
	copy(checked[4+len(key)+4:], value)
	gotCRC := crc32.ChecksumIEEE(checked)

	if gotCRC != wantCRC {
		return nil, nil, lsmerrors.CorruptionErr(op, fmt.Errorf("data entry crc mismatch at offset %d", offset))
	}
	return key, value, nil
}

// Iterate reads every data entry in the run in ascending key order (spec
// §4.9 "load each run's full map"). It is used by merge compaction, which
// loads whole runs rather than streaming them.
func Iterate(path string, footer Footer) ([]Entry, error) {
	const op = "sstable.Iterate"
	f, err := os.Open(path)
	if err != nil {
		return nil, lsmerrors.IO(op, err)
	}
	defer f.Close()

	dataSize := int64(footer.IndexOffset) - headerSize
	buf := make([]byte, dataSize)
	if _, err := f.ReadAt(buf, headerSize); err != nil {
		return nil, lsmerrors.CorruptionErr(op, err)
	}

	var entries []Entry
	off := 0
	for off < len(buf) {
		if off+4 > len(buf) {
			return nil, lsmerrors.CorruptionErr(op, fmt.Errorf("truncated data block"))
		}
		keyLen := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		if off+int(keyLen)+4 > len(buf) {
			return nil, lsmerrors.CorruptionErr(op, fmt.Errorf("truncated data block"))
		}
		key := append([]byte(nil), buf[off:off+int(keyLen)]...)
		off += int(keyLen)
		valueLen := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		if off+int(valueLen)+4 > len(buf) {
			return nil, lsmerrors.CorruptionErr(op, fmt.Errorf("truncated data block"))
		}
		value := append([]byte(nil), buf[off:off+int(valueLen)]...)
		off += int(valueLen)

		wantCRC := binary.LittleEndian.Uint32(buf[off:])
		off += 4

		checkLen := 4 + len(key) + 4 + len(value)
		checked := make([]byte, checkLen)
		binary.LittleEndian.PutUint32(checked[0:4], keyLen)
		copy(checked[4:], key)
		binary.LittleEndian.PutUint32(checked[4+len(key):], valueLen)
		copy(checked[4+len(key)+4:], value)
		if crc32.ChecksumIEEE(checked) != wantCRC {
			return nil, lsmerrors.CorruptionErr(op, fmt.Errorf("data entry crc mismatch"))
		}

		entries = append(entries, Entry{Key: key, EncodedValue: value})
	}
	return entries, nil
}

// ValidateKeysAscending checks entries are in strictly ascending,
// duplicate-free key order (spec §8 invariant 5).
func ValidateKeysAscending(entries []Entry) error {
	for i := 1; i < len(entries); i++ {
		if compareBytes(entries[i-1].Key, entries[i].Key) >= 0 {
			return lsmerrors.CorruptionErr("sstable.ValidateKeysAscending", fmt.Errorf("keys out of order at %d", i))
		}
	}
	return nil
}
