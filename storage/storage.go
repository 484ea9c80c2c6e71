// Package storage selects and opens a concrete kv backend from configuration.
package storage

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/Monia234/colkv/config"
	"github.com/Monia234/colkv/kv"
	"github.com/Monia234/colkv/storage/badgerkv"
	"github.com/Monia234/colkv/storage/leveldbkv"
	"github.com/Monia234/colkv/storage/memorykv"
	"github.com/Monia234/colkv/storage/pebblekv"
)

// Engine names accepted by Open.
const (
	EngineMemory  = "memory"
	EngineLevelDB = "leveldb"
	EnginePebble  = "pebble"
	EngineBadger  = "badger"
)

// Open opens the backend named by cfg.Storage.Engine, rooted in an
// engine-specific subdirectory of the data dir.
func Open(cfg *config.Config, logger *logrus.Logger) (kv.DB, error) {
	if logger == nil {
		logger = logrus.New()
	}

	switch cfg.Storage.Engine {
	case EngineMemory:
		return memorykv.New(), nil

	case EngineLevelDB:
		return leveldbkv.New(filepath.Join(cfg.General.DataDir, "leveldb"), leveldbkv.Options{
			SyncWrites:  cfg.Storage.SyncWrites,
			CacheSize:   cfg.Storage.CacheSize,
			WriteBuffer: cfg.Storage.WriteBuffer,
			Logger:      logger,
		})

	case EnginePebble:
		return pebblekv.New(filepath.Join(cfg.General.DataDir, "pebble"), pebblekv.Options{
			SyncWrites: cfg.Storage.SyncWrites,
			CacheSize:  int64(cfg.Storage.CacheSize),
			Logger:     logger,
		})

	case EngineBadger:
		return badgerkv.New(filepath.Join(cfg.General.DataDir, "badger"), badgerkv.Options{
			SyncWrites: cfg.Storage.SyncWrites,
			Logger:     logger,
		})

	default:
		return nil, fmt.Errorf("storage: unknown engine %q", cfg.Storage.Engine)
	}
}
