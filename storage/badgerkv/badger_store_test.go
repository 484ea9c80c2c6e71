package badgerkv

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Monia234/colkv/kv"
	"github.com/Monia234/colkv/kv/kvtest"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := New(path, Options{Logger: testLogger()})
	require.NoError(t, err)
	return store
}

func TestContract(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.DB {
		store := openTestStore(t, t.TempDir())
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestReopenPersistence(t *testing.T) {
	path := t.TempDir()

	store := openTestStore(t, path)
	require.NoError(t, store.CreateCollection("c"))
	coll, err := store.Collection("c")
	require.NoError(t, err)
	require.NoError(t, store.Put(coll, []byte("k"), []byte("v")))
	require.NoError(t, store.Flush())
	require.NoError(t, store.Close())

	store = openTestStore(t, path)
	defer store.Close()

	coll, err = store.Collection("c")
	require.NoError(t, err)
	got, err := store.Get(coll, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	assert.ErrorIs(t, store.CreateCollection("c"), kv.ErrExists)
}

func TestInvalidCollectionName(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()

	assert.Error(t, store.CreateCollection(""))
	assert.Error(t, store.CreateCollection("bad\x00name"))
}

func TestPrefixIsolation(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()

	require.NoError(t, store.CreateCollection("app"))
	require.NoError(t, store.CreateCollection("apple"))

	app, err := store.Collection("app")
	require.NoError(t, err)
	apple, err := store.Collection("apple")
	require.NoError(t, err)

	require.NoError(t, store.Put(app, []byte("k1"), []byte("from-app")))
	require.NoError(t, store.Put(apple, []byte("k2"), []byte("from-apple")))

	it, err := store.Iterator(app, nil)
	require.NoError(t, err)
	defer it.Close()

	require.True(t, it.Valid())
	assert.Equal(t, "k1", it.Key().String())
	require.NoError(t, it.Next())
	assert.False(t, it.Valid())
}

// Multiple iterators over one snapshot see the same fixed state.
func TestSnapshotIterators(t *testing.T) {
	store := openTestStore(t, t.TempDir())
	defer store.Close()

	require.NoError(t, store.CreateCollection("c"))
	coll, err := store.Collection("c")
	require.NoError(t, err)
	require.NoError(t, store.Put(coll, []byte("k1"), []byte("v1")))

	snap, err := store.Current()
	require.NoError(t, err)
	defer snap.Close()

	require.NoError(t, store.Put(coll, []byte("k2"), []byte("v2")))

	for i := 0; i < 2; i++ {
		it, err := snap.Iterator(coll, nil)
		require.NoError(t, err)

		require.True(t, it.Valid())
		assert.Equal(t, "k1", it.Key().String())
		require.NoError(t, it.Next())
		assert.False(t, it.Valid())
		require.NoError(t, it.Close())
	}
}
