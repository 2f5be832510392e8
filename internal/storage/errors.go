package storage

import "errors"

var (
	// ErrKeyNotFound is returned when a key doesn't exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidConfig is returned for nonsensical capacity, sparsity or
	// error-rate values, rejected at construction.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyKey is returned when a set supplies a zero-length key.
	ErrEmptyKey = errors.New("key must not be empty")

	// ErrEmptyValue is returned when a set supplies a zero-length value.
	// A zero-length value is the tombstone encoding on the WAL wire, so
	// it cannot double as a stored value.
	ErrEmptyValue = errors.New("value must not be empty")

	// ErrEngineClosed is returned for operations on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrCorruptedSSTable is returned when an SSTable index or data file
	// cannot be parsed.
	ErrCorruptedSSTable = errors.New("corrupted SSTable")

	// ErrCorruptedFilter is returned when a serialized bloom filter fails
	// to decode.
	ErrCorruptedFilter = errors.New("corrupted bloom filter")
)
