// Package kv defines the ordered key-value abstraction the rest of kvbfs is
// built on (design §4.1), together with two interchangeable backends: an
// embedded engine (bbolt) and a client for the networked KV wire protocol
// (design §6).
package kv

// Store is the abstract contract every backend must provide: point
// read/write/delete over byte keys and values, plus ascending prefix
// iteration. Writes and deletes are idempotent per key. No cross-key
// atomicity is assumed by callers even when a given backend happens to
// offer more (bbolt transactions do; the networked simulator doesn't).
type Store interface {
	// Get returns the value stored at key, or found=false if absent.
	Get(key []byte) (value []byte, found bool, err error)

	// Put overwrites any prior value stored at key.
	Put(key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// NewIterator returns an iterator positioned at the first key with the
	// given byte prefix, in ascending lexicographic order. The caller must
	// Close it.
	NewIterator(prefix []byte) (Iterator, error)

	// Close releases backend resources (file handles, connections).
	Close() error
}

// Iterator is a single-pass, seek-positioned cursor over a Store's keys
// lying under one prefix. Key and Value lend references valid only until
// the next call to Next or Close; callers that need the bytes to outlive
// the step must copy them.
type Iterator interface {
	// Valid reports whether the iterator is currently positioned on an
	// entry still within its prefix.
	Valid() bool

	// Next advances the iterator. Calling Next when !Valid() is a no-op.
	Next()

	// Key returns the current entry's key.
	Key() []byte

	// Value returns the current entry's value.
	Value() []byte

	// Close releases iterator resources (an open read transaction, a
	// buffered wire response).
	Close() error
}
