package storage

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Monia234/colkv/config"
)

func testConfig(t *testing.T, engine string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.General.DataDir = t.TempDir()
	cfg.Storage.Engine = engine
	return cfg
}

func TestOpenEngines(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	for _, engine := range []string{EngineMemory, EngineLevelDB, EnginePebble, EngineBadger} {
		t.Run(engine, func(t *testing.T) {
			db, err := Open(testConfig(t, engine), logger)
			require.NoError(t, err)
			defer db.Close()

			// Smoke-check the handle actually works.
			require.NoError(t, db.CreateCollection("c"))
			coll, err := db.Collection("c")
			require.NoError(t, err)
			require.NoError(t, db.Put(coll, []byte("k"), []byte("v")))
			got, err := db.Get(coll, []byte("k"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v"), got)
		})
	}
}

func TestOpenUnknownEngine(t *testing.T) {
	_, err := Open(testConfig(t, "rocksdb"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown engine")
}
