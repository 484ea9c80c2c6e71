package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Monia234/colkv/config"
	"github.com/Monia234/colkv/kv"
	"github.com/Monia234/colkv/storage"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "colkv",
		Short:   "colkv - ordered key/value collections over pluggable storage engines",
		Version: version,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory path")
	rootCmd.PersistentFlags().StringP("engine", "e", "", "Storage engine (memory, leveldb, pebble, badger)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("sync", false, "Force fsync on every write")

	rootCmd.AddCommand(createCmd(), putCmd(), getCmd(), scanCmd(), benchCmd())

	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

// loadConfig merges the config file with command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if cmd.Flags().Changed("data-dir") {
		cfg.General.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("engine") {
		cfg.Storage.Engine, _ = cmd.Flags().GetString("engine")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.General.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("sync") {
		cfg.Storage.SyncWrites, _ = cmd.Flags().GetBool("sync")
	}

	logger := logrus.New()
	switch cfg.General.LogLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return cfg, logger, nil
}

func openDB(cmd *cobra.Command) (kv.DB, *logrus.Logger, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return db, logger, nil
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <collection>",
		Short: "Create a new collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.CreateCollection(args[0]); err != nil {
				return err
			}
			return db.Flush()
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <collection> <key> <value>",
		Short: "Write one record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			coll, err := db.Collection(args[0])
			if err != nil {
				return fmt.Errorf("collection %q: %w", args[0], err)
			}
			if err := db.Put(coll, []byte(args[1]), []byte(args[2])); err != nil {
				return err
			}
			return db.Flush()
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <key>",
		Short: "Read one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			coll, err := db.Collection(args[0])
			if err != nil {
				return fmt.Errorf("collection %q: %w", args[0], err)
			}
			value, err := db.Get(coll, []byte(args[1]))
			if err != nil {
				return err
			}
			os.Stdout.Write(value)
			fmt.Println()
			return nil
		},
	}
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <collection> [start-key]",
		Short: "List records in key order",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			db, _, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			coll, err := db.Collection(args[0])
			if err != nil {
				return fmt.Errorf("collection %q: %w", args[0], err)
			}

			var start []byte
			if len(args) == 2 {
				start = []byte(args[1])
			}

			it, err := db.Iterator(coll, start)
			if err != nil {
				return err
			}
			defer it.Close()

			for n := 0; it.Valid() && (limit == 0 || n < limit); n++ {
				fmt.Printf("%s\t%s\n", it.Key().String(), it.Value().String())
				if err := it.Next(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "Maximum number of records to print (0 = all)")
	return cmd
}

func benchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Write and read back a batch-loaded workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			batchSize, _ := cmd.Flags().GetInt("batch")
			valueSize, _ := cmd.Flags().GetInt("value-size")

			db, logger, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			const collName = "bench"
			if err := db.CreateCollection(collName); err != nil && !errors.Is(err, kv.ErrExists) {
				return err
			}
			coll, err := db.Collection(collName)
			if err != nil {
				return err
			}

			value := make([]byte, valueSize)

			writeStart := time.Now()
			for i := 0; i < count; {
				batch, err := db.BeginWrites()
				if err != nil {
					return err
				}
				for j := 0; j < batchSize && i < count; j++ {
					key := []byte(fmt.Sprintf("bench-%012d", i))
					if err := batch.Put(coll, key, value); err != nil {
						batch.Close()
						return err
					}
					i++
				}
				if err := batch.Commit(); err != nil {
					batch.Close()
					return err
				}
				batch.Close()
			}
			if err := db.Flush(); err != nil {
				return err
			}
			writeDur := time.Since(writeStart)

			readStart := time.Now()
			it, err := db.Iterator(coll, nil)
			if err != nil {
				return err
			}
			defer it.Close()

			read := 0
			for it.Valid() {
				read++
				if err := it.Next(); err != nil {
					return err
				}
			}
			readDur := time.Since(readStart)

			logger.WithFields(logrus.Fields{
				"written":    count,
				"write_time": writeDur.String(),
				"write_ops":  int(float64(count) / writeDur.Seconds()),
				"read":       read,
				"read_time":  readDur.String(),
				"read_ops":   int(float64(read) / readDur.Seconds()),
			}).Info("benchmark complete")
			return nil
		},
	}
	cmd.Flags().Int("count", 100000, "Number of records to write")
	cmd.Flags().Int("batch", 1000, "Records per write batch")
	cmd.Flags().Int("value-size", 128, "Value size in bytes")
	return cmd
}
