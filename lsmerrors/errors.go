// Package lsmerrors defines the error taxonomy shared by every engine
// component: a small, closed set of kinds with a single wrapper type so
// callers can discriminate failures with errors.As/errors.Is without
// parsing messages.
package lsmerrors

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	Io Kind = iota
	Serialization
	Compression
	Wal
	Corruption
	InvalidKey
	InvalidValue
	Configuration
	Transaction
	Cache
	BloomFilter
	Internal
	SystemTime
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case Serialization:
		return "serialization"
	case Compression:
		return "compression"
	case Wal:
		return "wal"
	case Corruption:
		return "corruption"
	case InvalidKey:
		return "invalid_key"
	case InvalidValue:
		return "invalid_value"
	case Configuration:
		return "configuration"
	case Transaction:
		return "transaction"
	case Cache:
		return "cache"
	case BloomFilter:
		return "bloom_filter"
	case SystemTime:
		return "system_time"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with the kind and operation that produced
// it. Op is a short dotted name, e.g. "wal.Append" or "sstable.Lookup".
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// do errors.Is(err, lsmerrors.New(lsmerrors.Corruption, "", nil)) style
// checks, but the idiomatic path is errors.As plus a Kind comparison.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func IO(op string, err error) *Error            { return New(Io, op, err) }
func SerializationErr(op string, err error) *Error { return New(Serialization, op, err) }
func CompressionErr(op string, err error) *Error   { return New(Compression, op, err) }
func WalErr(op string, err error) *Error           { return New(Wal, op, err) }
func CorruptionErr(op string, err error) *Error    { return New(Corruption, op, err) }
func InvalidKeyErr(op string, err error) *Error    { return New(InvalidKey, op, err) }
func InvalidValueErr(op string, err error) *Error  { return New(InvalidValue, op, err) }
func ConfigurationErr(op string, err error) *Error { return New(Configuration, op, err) }
func TransactionErr(op string, err error) *Error   { return New(Transaction, op, err) }
func CacheErr(op string, err error) *Error         { return New(Cache, op, err) }
func BloomFilterErr(op string, err error) *Error   { return New(BloomFilter, op, err) }
func InternalErr(op string, err error) *Error      { return New(Internal, op, err) }
func SystemTimeErr(op string, err error) *Error    { return New(SystemTime, op, err) }

// Of reports the Kind of err if it (or something it wraps) is an *Error,
// and ok=false otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Internal, false
}

// Is reports whether err's kind equals kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
