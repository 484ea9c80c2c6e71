package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// General configuration
	General struct {
		// DataDir is the directory for storing database files
		DataDir string
		// LogLevel defines the logging verbosity
		LogLevel string
	}

	// Storage engine configuration
	Storage struct {
		// Engine selects the backend: memory, leveldb, pebble or badger
		Engine string
		// SyncWrites forces an fsync on every commit and single put
		SyncWrites bool
		// CacheSize is the engine block cache capacity in bytes (0 = engine default)
		CacheSize int
		// WriteBuffer is the engine memtable size in bytes (0 = engine default)
		WriteBuffer int
	}
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.General.DataDir = "./data"
	cfg.General.LogLevel = "info"

	cfg.Storage.Engine = "leveldb"
	cfg.Storage.SyncWrites = false
	cfg.Storage.CacheSize = 0
	cfg.Storage.WriteBuffer = 0

	return cfg
}

// LoadConfig loads configuration from the specified file and environment variables
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	// Set default config
	config := DefaultConfig()

	// If config file is specified, read it
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// Look for config in default locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.colkv")
		v.AddConfigPath("/etc/colkv")

		// Try to read config
		if err := v.ReadInConfig(); err != nil {
			// It's okay if config doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Set environment variable prefix
	v.SetEnvPrefix("COLKV")
	v.AutomaticEnv()

	// Map config values
	if v.IsSet("general.dataDir") {
		config.General.DataDir = v.GetString("general.dataDir")
	}
	if v.IsSet("general.logLevel") {
		config.General.LogLevel = v.GetString("general.logLevel")
	}

	// Map storage config
	if v.IsSet("storage.engine") {
		config.Storage.Engine = v.GetString("storage.engine")
	}
	if v.IsSet("storage.syncWrites") {
		config.Storage.SyncWrites = v.GetBool("storage.syncWrites")
	}
	if v.IsSet("storage.cacheSize") {
		config.Storage.CacheSize = v.GetInt("storage.cacheSize")
	}
	if v.IsSet("storage.writeBuffer") {
		config.Storage.WriteBuffer = v.GetInt("storage.writeBuffer")
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(config.General.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return config, nil
}

func SaveConfig(config *Config, configFile string) error {
	v := viper.New()

	// Map config to viper
	v.Set("general.dataDir", config.General.DataDir)
	v.Set("general.logLevel", config.General.LogLevel)

	v.Set("storage.engine", config.Storage.Engine)
	v.Set("storage.syncWrites", config.Storage.SyncWrites)
	v.Set("storage.cacheSize", config.Storage.CacheSize)
	v.Set("storage.writeBuffer", config.Storage.WriteBuffer)

	// Ensure directory exists
	dir := filepath.Dir(configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for config file: %w", err)
	}

	// Write config to file
	v.SetConfigFile(configFile)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func DefaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".colkv", "config.yaml")
}
