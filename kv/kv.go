// Package kv defines an engine-agnostic contract for ordered key/value
// storage: named, key-ordered collections of records, point lookups, ordered
// iteration, point-in-time consistent reads, and grouped writes applied as a
// unit. Concrete storage engines live in the storage/... packages and
// implement these interfaces; higher-level code programs only against this
// package.
package kv

import (
	"errors"
)

var (
	// ErrNotFound is returned when a requested key or named collection does
	// not exist. The two absent-entity cases deliberately share one error kind.
	ErrNotFound = errors.New("kv: not found")

	// ErrExists is returned when creating a collection whose name is already bound
	ErrExists = errors.New("kv: collection already exists")

	// ErrClosed is returned when operations are attempted on a closed database
	ErrClosed = errors.New("kv: database already closed")

	// ErrBatchCommitted is returned when a write batch is used after its commit
	ErrBatchCommitted = errors.New("kv: batch already committed")

	// ErrInvalidHandle is returned when a collection handle was not minted by
	// the database it is used with
	ErrInvalidHandle = errors.New("kv: invalid collection handle")
)

// CollectionHandle identifies one named, key-ordered collection of records
// within a DB. Handles are opaque tokens minted by the backend that issued
// them; they remain valid for the lifetime of the owning DB. Using a handle
// with a DB that did not mint it is undefined (backends report
// ErrInvalidHandle where they can detect it).
type CollectionHandle any

// Iterator is an in-order cursor over the records of one collection. It is
// created already positioned (see Reader.Iterator) and yields keys in strictly
// increasing byte order. Not safe for concurrent use; exactly one logical
// owner at a time.
type Iterator interface {
	// Valid reports whether the iterator is positioned at a record.
	Valid() bool

	// Key returns the current key. Defined only while Valid(). The returned
	// buffer is borrowed: it remains available until the next call to Next
	// or Close, whichever comes first.
	Key() Data

	// Value returns the current value, under the same borrow rules as Key.
	Value() Data

	// Next advances to the next record in key order. At the end of the
	// collection it returns nil but leaves Valid() false.
	//
	// If Next returns a non-nil error the iterator is permanently unusable;
	// any further operation on it has unspecified results.
	Next() error

	// Close releases resources held by the iterator. Idempotent.
	Close() error
}

// Reader is a read-only view of the database: either a point-in-time snapshot
// (see DB.Current) or the live DB itself, which satisfies Reader directly but
// promises no consistency between separate calls. Safe for concurrent use by
// multiple goroutines.
type Reader interface {
	// Get0 returns the value stored under key in the collection, or
	// ErrNotFound if no such record exists. The returned buffer is shared:
	// it is owned by the caller's reference and stays valid independently of
	// the Reader that produced it.
	Get0(coll CollectionHandle, key []byte) (Data, error)

	// Get looks up key and copies the value into an owned byte slice. Same
	// success and error semantics as Get0. Backends derive it from Get0 via
	// GetCopy unless they have a cheaper path.
	Get(coll CollectionHandle, key []byte) ([]byte, error)

	// Iterator returns an iterator positioned at the first key equal to or
	// greater than start. An empty start positions at the beginning of the
	// collection. If no such key exists the error is nil and the iterator's
	// Valid() is false.
	Iterator(coll CollectionHandle, start []byte) (Iterator, error)
}

// Snapshot is a Reader whose visible state is fixed at creation time,
// isolated from writes that commit afterward. Snapshots pin backend resources
// and must be closed; Close is idempotent. The owning DB must outlive the
// snapshot.
type Snapshot interface {
	Reader
	Close() error
}

// WriteBatch accumulates pending puts and applies them as one unit on Commit.
// Writes staged into a batch are invisible until Commit succeeds. Not safe
// for concurrent mutation; a batch may be prepared on one goroutine and
// committed from another only with external synchronization.
type WriteBatch interface {
	// Put stages a write of value under key in the collection. Repeated puts
	// to the same key within one batch keep the last value in program order.
	Put(coll CollectionHandle, key, value []byte) error

	// Commit applies all staged writes as a single unit, atomically where the
	// backend supports it; otherwise partial application is detectable via
	// the returned error. A batch commits at most once: further Put or
	// Commit calls fail with ErrBatchCommitted.
	Commit() error

	// Close discards the batch if it was never committed. Idempotent.
	Close() error
}

// DB is the root handle: it resolves and creates named collections, hands out
// snapshot Readers and WriteBatches, and controls durability. DB is itself a
// Reader over the live state, with no consistency guarantees between separate
// calls, and provides single-operation Put with no atomicity guarantees
// relative to concurrent writes.
//
// The DB is the root owner: every Snapshot, WriteBatch and Iterator derived
// from it must be closed before the DB is closed. Safe for concurrent use by
// multiple goroutines.
type DB interface {
	Reader

	// Collection resolves a name to a handle, or returns ErrNotFound.
	Collection(name string) (CollectionHandle, error)

	// CreateCollection creates a new empty collection, or returns ErrExists.
	CreateCollection(name string) error

	// Current returns a Reader fixed to a consistent point-in-time view of
	// all collections as of the call.
	Current() (Snapshot, error)

	// BeginWrites returns a fresh, empty WriteBatch bound to this DB.
	BeginWrites() (WriteBatch, error)

	// Put writes a single record immediately. The base behavior is a
	// one-write batch committed on the spot (see BatchPut); backends may
	// override with a direct engine write.
	Put(coll CollectionHandle, key, value []byte) error

	// Flush blocks until all previously committed writes are durable, or
	// returns an error.
	Flush() error

	// Close releases all database resources. Operations on a closed DB
	// return ErrClosed.
	Close() error
}
