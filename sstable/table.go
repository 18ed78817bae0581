package sstable

import "github.com/bits-and-blooms/bloom/v3"

// Table is a thin handle on an opened, validated sorted-run file: its
// path and footer. Index and bloom contents are owned by the engine's
// caches (package cache), not by Table itself, per spec §4.7's "caches
// hold paths by value; runs are identified only by path."
type Table struct {
	Path   string
	Footer Footer
}

// Open validates path's header/footer and returns a Table handle. Callers
// that hit a Corruption error should mark the run damaged and exclude it
// from the run list (spec §4.5 Integrity), not retry.
func Open(path string) (*Table, error) {
	footer, err := ValidateAndReadFooter(path)
	if err != nil {
		return nil, err
	}
	return &Table{Path: path, Footer: footer}, nil
}

// Lookup checks bloom first (authoritative on negative, per spec §4.6),
// then the index, then reads and CRC-validates the data block.
func (t *Table) Lookup(key []byte, filter *bloom.BloomFilter, index Index) (value []byte, found bool, err error) {
	if filter != nil && !filter.Test(key) {
		return nil, false, nil
	}
	offset, ok := index.Lookup(key)
	if !ok {
		return nil, false, nil
	}
	_, value, err = ReadEntryAt(t.Path, offset)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}
