package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDB is a minimal DB used to observe how the base behaviors compose the
// primitive operations. Reads serve a single fixed record; the lifecycle of
// derived snapshots and batches is recorded for assertions.
type stubDB struct {
	key   string
	value []byte

	snapshots []*stubSnapshot
	batches   []*stubBatch
}

func (s *stubDB) Get0(coll CollectionHandle, key []byte) (Data, error) {
	if string(key) != s.key {
		return nil, ErrNotFound
	}
	return Data(s.value), nil
}

func (s *stubDB) Get(coll CollectionHandle, key []byte) ([]byte, error) {
	return GetCopy(s, coll, key)
}

func (s *stubDB) Iterator(coll CollectionHandle, start []byte) (Iterator, error) {
	return SnapshotIterator(s, coll, start)
}

func (s *stubDB) Collection(name string) (CollectionHandle, error) { return name, nil }
func (s *stubDB) CreateCollection(name string) error               { return nil }

func (s *stubDB) Current() (Snapshot, error) {
	snap := &stubSnapshot{db: s}
	s.snapshots = append(s.snapshots, snap)
	return snap, nil
}

func (s *stubDB) BeginWrites() (WriteBatch, error) {
	batch := &stubBatch{db: s}
	s.batches = append(s.batches, batch)
	return batch, nil
}

func (s *stubDB) Put(coll CollectionHandle, key, value []byte) error {
	return BatchPut(s, coll, key, value)
}

func (s *stubDB) Flush() error { return nil }
func (s *stubDB) Close() error { return nil }

type stubSnapshot struct {
	db     *stubDB
	closed bool
}

func (sn *stubSnapshot) Get0(coll CollectionHandle, key []byte) (Data, error) {
	return sn.db.Get0(coll, key)
}

func (sn *stubSnapshot) Get(coll CollectionHandle, key []byte) ([]byte, error) {
	return GetCopy(sn, coll, key)
}

func (sn *stubSnapshot) Iterator(coll CollectionHandle, start []byte) (Iterator, error) {
	return &stubIterator{value: sn.db.value}, nil
}

func (sn *stubSnapshot) Close() error {
	sn.closed = true
	return nil
}

type stubIterator struct {
	value  []byte
	done   bool
	closed bool
}

func (it *stubIterator) Valid() bool { return !it.done }
func (it *stubIterator) Key() Data   { return Data("k") }
func (it *stubIterator) Value() Data { return Data(it.value) }
func (it *stubIterator) Next() error { it.done = true; return nil }
func (it *stubIterator) Close() error {
	it.closed = true
	return nil
}

type stubBatch struct {
	db        *stubDB
	puts      int
	committed bool
	closed    bool
}

func (b *stubBatch) Put(coll CollectionHandle, key, value []byte) error {
	b.puts++
	b.db.key = string(key)
	b.db.value = append([]byte(nil), value...)
	return nil
}

func (b *stubBatch) Commit() error {
	b.committed = true
	return nil
}

func (b *stubBatch) Close() error {
	b.closed = true
	return nil
}

func TestSnapshotGet0(t *testing.T) {
	db := &stubDB{key: "k", value: []byte("v")}

	got, err := SnapshotGet0(db, nil, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", got.String())

	// The ephemeral snapshot is released before returning, and the returned
	// buffer is a copy independent of the backend's storage.
	require.Len(t, db.snapshots, 1)
	assert.True(t, db.snapshots[0].closed)
	db.value[0] = 'x'
	assert.Equal(t, "v", got.String())

	_, err = SnapshotGet0(db, nil, []byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, db.snapshots, 2)
	assert.True(t, db.snapshots[1].closed)
}

func TestSnapshotIterator(t *testing.T) {
	db := &stubDB{key: "k", value: []byte("v")}

	it, err := SnapshotIterator(db, nil, nil)
	require.NoError(t, err)
	require.Len(t, db.snapshots, 1)

	// The snapshot stays pinned while the iterator is in use...
	assert.False(t, db.snapshots[0].closed)
	require.True(t, it.Valid())
	require.NoError(t, it.Next())

	// ...and is released together with it.
	require.NoError(t, it.Close())
	assert.True(t, db.snapshots[0].closed)
}

func TestBatchPut(t *testing.T) {
	db := &stubDB{}

	require.NoError(t, BatchPut(db, nil, []byte("k"), []byte("v")))

	require.Len(t, db.batches, 1)
	assert.Equal(t, 1, db.batches[0].puts)
	assert.True(t, db.batches[0].committed)
	assert.True(t, db.batches[0].closed)
}

func TestGetCopy(t *testing.T) {
	db := &stubDB{key: "k", value: []byte("v")}

	got, err := GetCopy(db, nil, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	// The copy does not alias the backend's buffer.
	db.value[0] = 'x'
	assert.Equal(t, []byte("v"), got)

	_, err = GetCopy(db, nil, []byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}
