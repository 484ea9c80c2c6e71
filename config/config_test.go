package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "./data", cfg.General.DataDir)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, "leveldb", cfg.Storage.Engine)
	assert.False(t, cfg.Storage.SyncWrites)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	cfgFile := filepath.Join(dir, "config.yaml")
	content := "general:\n" +
		"  dataDir: " + dataDir + "\n" +
		"  logLevel: debug\n" +
		"storage:\n" +
		"  engine: pebble\n" +
		"  syncWrites: true\n" +
		"  cacheSize: 1048576\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0644))

	cfg, err := LoadConfig(cfgFile)
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.General.DataDir)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, "pebble", cfg.Storage.Engine)
	assert.True(t, cfg.Storage.SyncWrites)
	assert.Equal(t, 1048576, cfg.Storage.CacheSize)

	// The data directory is created as a side effect.
	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.General.DataDir = filepath.Join(dir, "data")
	cfg.Storage.Engine = "badger"
	cfg.Storage.SyncWrites = true
	cfg.Storage.WriteBuffer = 4096

	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, SaveConfig(cfg, cfgFile))

	loaded, err := LoadConfig(cfgFile)
	require.NoError(t, err)
	assert.Equal(t, cfg.General.DataDir, loaded.General.DataDir)
	assert.Equal(t, "badger", loaded.Storage.Engine)
	assert.True(t, loaded.Storage.SyncWrites)
	assert.Equal(t, 4096, loaded.Storage.WriteBuffer)
}
