// Package kvtest is a contract-conformance suite shared by every backend's
// test package. Run drives a backend factory through the behaviors all kv.DB
// implementations must provide: ordered iteration, snapshot isolation,
// collection namespacing, batch semantics and the error kinds.
package kvtest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Monia234/colkv/kv"
)

// Factory opens a fresh, empty database for one subtest. Cleanup (including
// Close) is the factory's responsibility, typically via t.Cleanup.
type Factory func(t *testing.T) kv.DB

// Run exercises the full kv contract against the given backend.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, db kv.DB)
	}{
		{"put_get", testPutGet},
		{"get_missing", testGetMissing},
		{"get0_shared_buffer", testGet0SharedBuffer},
		{"create_collection_twice", testCreateCollectionTwice},
		{"collection_lookup", testCollectionLookup},
		{"collection_namespaces", testCollectionNamespaces},
		{"iterator_empty_collection", testIteratorEmptyCollection},
		{"iterator_seek", testIteratorSeek},
		{"iterator_order", testIteratorOrder},
		{"snapshot_isolation", testSnapshotIsolation},
		{"batch_staged_invisible", testBatchStagedInvisible},
		{"batch_last_write_wins", testBatchLastWriteWins},
		{"batch_distinct_keys", testBatchDistinctKeys},
		{"batch_commit_twice", testBatchCommitTwice},
		{"flush", testFlush},
		{"concurrent_access", testConcurrentAccess},
		{"end_to_end", testEndToEnd},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, factory(t))
		})
	}
}

// mustColl creates the collection and resolves its handle.
func mustColl(t *testing.T, db kv.DB, name string) kv.CollectionHandle {
	t.Helper()
	require.NoError(t, db.CreateCollection(name))
	coll, err := db.Collection(name)
	require.NoError(t, err)
	require.NotNil(t, coll)
	return coll
}

func testPutGet(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")

	require.NoError(t, db.Put(coll, []byte("alpha"), []byte("1")))

	got, err := db.Get(coll, []byte("alpha"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	// Overwrite keeps exactly one value per key.
	require.NoError(t, db.Put(coll, []byte("alpha"), []byte("2")))
	got, err = db.Get(coll, []byte("alpha"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
}

func testGetMissing(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")

	_, err := db.Get(coll, []byte("never-written"))
	assert.ErrorIs(t, err, kv.ErrNotFound)

	_, err = db.Get0(coll, []byte("never-written"))
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func testGet0SharedBuffer(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")
	require.NoError(t, db.Put(coll, []byte("k"), []byte("before")))

	v, err := db.Get0(coll, []byte("k"))
	require.NoError(t, err)

	// The buffer stays valid and unchanged across a later write to the key.
	require.NoError(t, db.Put(coll, []byte("k"), []byte("after!")))
	assert.Equal(t, "before", v.String())
}

func testCreateCollectionTwice(t *testing.T, db kv.DB) {
	require.NoError(t, db.CreateCollection("dup"))
	assert.ErrorIs(t, db.CreateCollection("dup"), kv.ErrExists)
}

func testCollectionLookup(t *testing.T, db kv.DB) {
	_, err := db.Collection("missing")
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, db.CreateCollection("present"))
	coll, err := db.Collection("present")
	require.NoError(t, err)
	assert.NotNil(t, coll)
}

func testCollectionNamespaces(t *testing.T, db kv.DB) {
	left := mustColl(t, db, "left")
	right := mustColl(t, db, "right")

	require.NoError(t, db.Put(left, []byte("shared-key"), []byte("left-value")))

	// The same key is absent in an independent namespace.
	_, err := db.Get(right, []byte("shared-key"))
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, db.Put(right, []byte("shared-key"), []byte("right-value")))
	got, err := db.Get(left, []byte("shared-key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("left-value"), got)
}

func testIteratorEmptyCollection(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "empty")

	it, err := db.Iterator(coll, nil)
	require.NoError(t, err)
	defer it.Close()

	assert.False(t, it.Valid())
	require.NoError(t, it.Next())
	assert.False(t, it.Valid())
}

func testIteratorSeek(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")
	for _, k := range []string{"b", "d", "f"} {
		require.NoError(t, db.Put(coll, []byte(k), []byte("v-"+k)))
	}

	// Exact match.
	it, err := db.Iterator(coll, []byte("d"))
	require.NoError(t, err)
	require.True(t, it.Valid())
	assert.Equal(t, "d", it.Key().String())
	require.NoError(t, it.Close())

	// Between keys: first key greater than start.
	it, err = db.Iterator(coll, []byte("c"))
	require.NoError(t, err)
	require.True(t, it.Valid())
	assert.Equal(t, "d", it.Key().String())
	require.NoError(t, it.Close())

	// Past the last key: no error, just invalid.
	it, err = db.Iterator(coll, []byte("z"))
	require.NoError(t, err)
	assert.False(t, it.Valid())
	require.NoError(t, it.Close())
}

func testIteratorOrder(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")

	// Insert out of order; iteration must come back strictly increasing.
	keys := []string{"kiwi", "apple", "plum", "banana", "cherry", "apricot"}
	for _, k := range keys {
		require.NoError(t, db.Put(coll, []byte(k), []byte("v")))
	}

	it, err := db.Iterator(coll, nil)
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for it.Valid() {
		got = append(got, it.Key().String())
		require.NoError(t, it.Next())
	}
	assert.Equal(t, []string{"apple", "apricot", "banana", "cherry", "kiwi", "plum"}, got)
}

func testSnapshotIsolation(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")
	require.NoError(t, db.Put(coll, []byte("k1"), []byte("old")))

	snap, err := db.Current()
	require.NoError(t, err)
	defer snap.Close()

	require.NoError(t, db.Put(coll, []byte("k1"), []byte("new")))
	require.NoError(t, db.Put(coll, []byte("k2"), []byte("added")))

	// The snapshot still sees the pre-write state, however late it is read.
	got, err := snap.Get(coll, []byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), got)

	_, err = snap.Get(coll, []byte("k2"))
	assert.ErrorIs(t, err, kv.ErrNotFound)

	it, err := snap.Iterator(coll, nil)
	require.NoError(t, err)
	defer it.Close()
	require.True(t, it.Valid())
	assert.Equal(t, "k1", it.Key().String())
	require.NoError(t, it.Next())
	assert.False(t, it.Valid())

	// The live DB sees both writes.
	got, err = db.Get(coll, []byte("k2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("added"), got)
}

func testBatchStagedInvisible(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")

	batch, err := db.BeginWrites()
	require.NoError(t, err)
	defer batch.Close()

	require.NoError(t, batch.Put(coll, []byte("staged"), []byte("v")))

	_, err = db.Get(coll, []byte("staged"))
	assert.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, batch.Commit())

	got, err := db.Get(coll, []byte("staged"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func testBatchLastWriteWins(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")

	batch, err := db.BeginWrites()
	require.NoError(t, err)
	defer batch.Close()

	require.NoError(t, batch.Put(coll, []byte("a"), []byte("10")))
	require.NoError(t, batch.Put(coll, []byte("a"), []byte("20")))
	require.NoError(t, batch.Commit())

	got, err := db.Get(coll, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("20"), got)
}

// testBatchDistinctKeys stages several short keys in one batch. Every staged
// record must survive commit intact: a backend that lets staged keys share a
// buffer loses all but the last one.
func testBatchDistinctKeys(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")

	batch, err := db.BeginWrites()
	require.NoError(t, err)
	defer batch.Close()

	keys := []string{"a", "b", "c"}
	for _, k := range keys {
		require.NoError(t, batch.Put(coll, []byte(k), []byte("v-"+k)))
	}
	require.NoError(t, batch.Commit())

	for _, k := range keys {
		got, err := db.Get(coll, []byte(k))
		require.NoError(t, err, "key %q lost from batch", k)
		assert.Equal(t, []byte("v-"+k), got)
	}
}

func testBatchCommitTwice(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")

	batch, err := db.BeginWrites()
	require.NoError(t, err)
	defer batch.Close()

	require.NoError(t, batch.Put(coll, []byte("k"), []byte("v")))
	require.NoError(t, batch.Commit())

	assert.ErrorIs(t, batch.Commit(), kv.ErrBatchCommitted)
	assert.ErrorIs(t, batch.Put(coll, []byte("k"), []byte("v2")), kv.ErrBatchCommitted)
}

func testFlush(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")
	require.NoError(t, db.Put(coll, []byte("k"), []byte("v")))
	require.NoError(t, db.Flush())

	got, err := db.Get(coll, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

// testConcurrentAccess hammers one collection with parallel writers and
// readers through the same handle. DB and Reader must be safe for concurrent
// use; run with the race detector enabled this also catches backends whose
// key construction shares mutable state across goroutines.
func testConcurrentAccess(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "records")
	require.NoError(t, db.Put(coll, []byte("seed"), []byte("v")))

	const (
		writers       = 4
		readers       = 4
		keysPerWriter = 50
	)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < keysPerWriter; i++ {
				key := []byte(fmt.Sprintf("w%d-%03d", w, i))
				assert.NoError(t, db.Put(coll, key, []byte("v")))
			}
		}(w)
	}
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < keysPerWriter; i++ {
				v, err := db.Get0(coll, []byte("seed"))
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, "v", v.String())
			}
		}()
	}
	wg.Wait()

	// Every concurrently written record must be present afterwards.
	for w := 0; w < writers; w++ {
		for i := 0; i < keysPerWriter; i++ {
			key := []byte(fmt.Sprintf("w%d-%03d", w, i))
			got, err := db.Get(coll, key)
			require.NoError(t, err, "key %q missing after concurrent writes", key)
			assert.Equal(t, []byte("v"), got)
		}
	}
}

// testEndToEnd walks the combined scenario: ordered iteration over a fresh
// collection, then snapshot-versus-live visibility of a later write.
func testEndToEnd(t *testing.T, db kv.DB) {
	coll := mustColl(t, db, "X")
	require.NoError(t, db.Put(coll, []byte("a"), []byte("1")))
	require.NoError(t, db.Put(coll, []byte("b"), []byte("2")))

	it, err := db.Iterator(coll, nil)
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Valid())
	assert.Equal(t, "a", it.Key().String())
	assert.Equal(t, "1", it.Value().String())
	require.NoError(t, it.Next())
	require.True(t, it.Valid())
	assert.Equal(t, "b", it.Key().String())
	assert.Equal(t, "2", it.Value().String())
	require.NoError(t, it.Next())
	assert.False(t, it.Valid())

	got, err := db.Get(coll, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	snap, err := db.Current()
	require.NoError(t, err)
	defer snap.Close()

	require.NoError(t, db.Put(coll, []byte("c"), []byte("3")))

	_, err = snap.Get(coll, []byte("c"))
	assert.ErrorIs(t, err, kv.ErrNotFound)

	got, err = db.Get(coll, []byte("c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), got)
}

// Keys returns n distinct zero-padded keys in increasing order, for
// backend-specific tests that need bulk data.
func Keys(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf("key-%06d", i))
	}
	return out
}
