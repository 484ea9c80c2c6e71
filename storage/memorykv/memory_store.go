// Package memorykv implements the kv contract entirely in memory, with one
// B-tree per collection. Snapshots are copy-on-write tree clones, so Current
// is cheap and snapshot readers are fully isolated. It is the reference
// backend: the live-DB read and single-write paths delegate to the base
// behaviors in package kv rather than overriding them.
package memorykv

import (
	"bytes"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/Monia234/colkv/kv"
)

const btreeDegree = 32

type record struct {
	key   []byte
	value []byte
}

func recordLess(a, b record) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// collection is the concrete CollectionHandle minted by this backend.
type collection struct {
	name  string
	store *Store
}

// Store implements kv.DB in memory.
type Store struct {
	mu     sync.RWMutex
	trees  map[*collection]*btree.BTreeG[record]
	names  map[string]*collection
	closed bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		trees: make(map[*collection]*btree.BTreeG[record]),
		names: make(map[string]*collection),
	}
}

// handle validates that coll was minted by this store.
func (s *Store) handle(coll kv.CollectionHandle) (*collection, error) {
	c, ok := coll.(*collection)
	if !ok || c.store != s {
		return nil, kv.ErrInvalidHandle
	}
	return c, nil
}

// Collection resolves a name to its handle.
func (s *Store) Collection(name string) (kv.CollectionHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrClosed
	}
	c, ok := s.names[name]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return c, nil
}

// CreateCollection creates a new empty collection.
func (s *Store) CreateCollection(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	if _, ok := s.names[name]; ok {
		return kv.ErrExists
	}

	c := &collection{name: name, store: s}
	s.names[name] = c
	s.trees[c] = btree.NewG(btreeDegree, recordLess)
	return nil
}

// Current clones every collection tree into a snapshot. Clones are
// copy-on-write, so this is cheap regardless of collection size.
func (s *Store) Current() (kv.Snapshot, error) {
	// Clone puts the original tree into copy-on-write mode too, so it needs
	// the write lock even though it does not change visible contents.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, kv.ErrClosed
	}

	trees := make(map[*collection]*btree.BTreeG[record], len(s.trees))
	for c, tree := range s.trees {
		trees[c] = tree.Clone()
	}
	return &snapshot{store: s, trees: trees}, nil
}

// BeginWrites starts a fresh write batch.
func (s *Store) BeginWrites() (kv.WriteBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrClosed
	}
	return &writeBatch{store: s}, nil
}

// Get0 serves a live read through an ephemeral snapshot (base behavior).
func (s *Store) Get0(coll kv.CollectionHandle, key []byte) (kv.Data, error) {
	return kv.SnapshotGet0(s, coll, key)
}

// Get copies the looked-up value into an owned byte slice.
func (s *Store) Get(coll kv.CollectionHandle, key []byte) ([]byte, error) {
	return kv.GetCopy(s, coll, key)
}

// Iterator iterates a live view via an ephemeral snapshot (base behavior).
func (s *Store) Iterator(coll kv.CollectionHandle, start []byte) (kv.Iterator, error) {
	return kv.SnapshotIterator(s, coll, start)
}

// Put applies one write as an immediately committed batch (base behavior).
func (s *Store) Put(coll kv.CollectionHandle, key, value []byte) error {
	return kv.BatchPut(s, coll, key, value)
}

// Flush is a no-op: there is no storage below memory.
func (s *Store) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return kv.ErrClosed
	}
	return nil
}

// Close releases the store. Operations afterwards return kv.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	s.closed = true
	s.trees = nil
	s.names = nil
	return nil
}

// snapshot is a fixed point-in-time view over cloned trees.
type snapshot struct {
	store  *Store
	trees  map[*collection]*btree.BTreeG[record]
	closed atomic.Bool
}

func (sn *snapshot) tree(coll kv.CollectionHandle) (*btree.BTreeG[record], error) {
	if sn.closed.Load() {
		return nil, kv.ErrClosed
	}
	c, err := sn.store.handle(coll)
	if err != nil {
		return nil, err
	}
	tree, ok := sn.trees[c]
	if !ok {
		// Collection created after the snapshot was taken.
		return nil, kv.ErrNotFound
	}
	return tree, nil
}

func (sn *snapshot) Get0(coll kv.CollectionHandle, key []byte) (kv.Data, error) {
	tree, err := sn.tree(coll)
	if err != nil {
		return nil, err
	}
	r, ok := tree.Get(record{key: key})
	if !ok {
		return nil, kv.ErrNotFound
	}
	// Stored values are replaced wholesale on write, never mutated in place,
	// so the stored slice itself satisfies the shared-buffer rule.
	return kv.Data(r.value), nil
}

func (sn *snapshot) Get(coll kv.CollectionHandle, key []byte) ([]byte, error) {
	return kv.GetCopy(sn, coll, key)
}

func (sn *snapshot) Iterator(coll kv.CollectionHandle, start []byte) (kv.Iterator, error) {
	tree, err := sn.tree(coll)
	if err != nil {
		return nil, err
	}
	it := &iterator{tree: tree}
	it.seek(start)
	return it, nil
}

func (sn *snapshot) Close() error {
	sn.closed.Store(true)
	return nil
}

// iterator steps through a cloned tree one record at a time. Each advance is
// a fresh descend from the current key, O(log n) per step.
type iterator struct {
	tree   *btree.BTreeG[record]
	cur    record
	valid  bool
	closed bool
}

func (it *iterator) seek(start []byte) {
	it.valid = false
	it.tree.AscendGreaterOrEqual(record{key: start}, func(r record) bool {
		it.cur = r
		it.valid = true
		return false
	})
}

func (it *iterator) Valid() bool {
	return it.valid
}

func (it *iterator) Key() kv.Data {
	if !it.valid {
		return nil
	}
	return kv.Data(it.cur.key)
}

func (it *iterator) Value() kv.Data {
	if !it.valid {
		return nil
	}
	return kv.Data(it.cur.value)
}

func (it *iterator) Next() error {
	if it.closed {
		return kv.ErrClosed
	}
	if !it.valid {
		return nil
	}

	prev := it.cur.key
	it.valid = false
	it.tree.AscendGreaterOrEqual(record{key: prev}, func(r record) bool {
		if bytes.Equal(r.key, prev) {
			return true
		}
		it.cur = r
		it.valid = true
		return false
	})
	return nil
}

func (it *iterator) Close() error {
	it.closed = true
	it.valid = false
	return nil
}

type stagedPut struct {
	coll  *collection
	key   []byte
	value []byte
}

// writeBatch stages puts and applies them in program order under the store's
// write lock, so the whole batch becomes visible at once.
type writeBatch struct {
	store     *Store
	staged    []stagedPut
	committed bool
	closed    bool
}

func (b *writeBatch) Put(coll kv.CollectionHandle, key, value []byte) error {
	if b.committed {
		return kv.ErrBatchCommitted
	}
	if b.closed {
		return kv.ErrClosed
	}
	c, err := b.store.handle(coll)
	if err != nil {
		return err
	}

	b.staged = append(b.staged, stagedPut{
		coll:  c,
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
	return nil
}

func (b *writeBatch) Commit() error {
	if b.committed {
		return kv.ErrBatchCommitted
	}
	if b.closed {
		return kv.ErrClosed
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if b.store.closed {
		return kv.ErrClosed
	}
	for _, p := range b.staged {
		tree, ok := b.store.trees[p.coll]
		if !ok {
			return kv.ErrInvalidHandle
		}
		tree.ReplaceOrInsert(record{key: p.key, value: p.value})
	}
	b.committed = true
	b.staged = nil
	return nil
}

func (b *writeBatch) Close() error {
	b.closed = true
	b.staged = nil
	return nil
}
