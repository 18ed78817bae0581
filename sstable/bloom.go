package sstable

import (
	"encoding/binary"
	"fmt"

	"github.com/hunddb/engine/lsmerrors"

	"github.com/bits-and-blooms/bloom/v3"
)

// newBloom builds a fixed-size filter sized for cardinality n at the target
// false-positive rate (spec §4.5 write step, §4.6). The filter does not
// grow: adding more than n keys raises its false-positive rate above fpr.
func newBloom(n uint, fpr float64) *bloom.BloomFilter {
	if n == 0 {
		n = 1
	}
	return bloom.NewWithEstimates(n, fpr)
}

func encodeBloom(f *bloom.BloomFilter) ([]byte, error) {
	data, err := f.MarshalBinary()
	if err != nil {
		return nil, lsmerrors.BloomFilterErr("sstable.encodeBloom", err)
	}
	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(data)))
	copy(buf[4:], data)
	return buf, nil
}

func decodeBloom(buf []byte) (*bloom.BloomFilter, error) {
	const op = "sstable.decodeBloom"
	if len(buf) < 4 {
		return nil, lsmerrors.CorruptionErr(op, fmt.Errorf("truncated bloom length"))
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	if len(buf) < 4+int(n) {
		return nil, lsmerrors.CorruptionErr(op, fmt.Errorf("truncated bloom bytes"))
	}
	f := &bloom.BloomFilter{}
	if err := f.UnmarshalBinary(buf[4 : 4+n]); err != nil {
		return nil, lsmerrors.BloomFilterErr(op, err)
	}
	return f, nil
}
