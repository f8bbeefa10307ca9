package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/depthcrawl/internal/config"
	"github.com/nao1215/depthcrawl/internal/database"
	"github.com/nao1215/depthcrawl/internal/log"
	"github.com/nao1215/depthcrawl/internal/model"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// loadConfig reads the file named by --config, or the first one found in
// the default locations, over the built-in defaults.
// It returns the path that was read, or an empty string.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	explicit, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", err
	}
	return config.Load(explicit)
}

// newLogger builds the command logger. --verbose wins over the configured
// level; quiet commands use Warn unless the level was configured.
func newLogger(cmd *cobra.Command, cfg *config.Config, quiet bool) (*slog.Logger, error) {
	level, err := log.ParseLevel(cfg.Logging.Level, slog.LevelInfo)
	if err != nil {
		return nil, err
	}
	if quiet && cfg.Logging.Level == config.DefaultLogLevel {
		level = slog.LevelWarn
	}
	if getVerboseFlag(cmd) {
		level = slog.LevelDebug
	}
	return log.NewLogger(cmd.ErrOrStderr(), cfg.Logging.Format, level)
}

// addDatabaseFlags registers the flags that select the frontier store.
func addDatabaseFlags(cmd *cobra.Command) {
	cmd.Flags().String("db", "", "SQLite database file (default: $XDG_DATA_HOME/depthcrawl/depthcrawl.db)")
	cmd.Flags().String("dsn", "", "PostgreSQL connection string; selects the postgres driver")
}

// applyDatabaseFlags overrides the database section with --db and --dsn.
func applyDatabaseFlags(cmd *cobra.Command, cfg *config.Config) error {
	dbPath, err := cmd.Flags().GetString("db")
	if err != nil {
		return err
	}
	dsn, err := cmd.Flags().GetString("dsn")
	if err != nil {
		return err
	}

	if dbPath != "" && dsn != "" {
		return fmt.Errorf("--db and --dsn cannot be used together")
	}
	if dbPath != "" {
		cfg.Database.Driver = database.DriverSQLite
		cfg.Database.Path = dbPath
	}
	if dsn != "" {
		cfg.Database.Driver = database.DriverPostgres
		cfg.Database.DSN = dsn
	}
	return nil
}

// openStore opens the configured frontier store. readOnly refuses to create
// a missing SQLite file.
func openStore(ctx context.Context, cfg *config.Config, readOnly bool) (database.Store, error) {
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = !readOnly
	opts.ClaimLease = cfg.Crawler.ClaimLease.Std()

	store, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.Source(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open frontier store: %w", err)
	}
	return store, nil
}

// addSeedFlags registers the flags that add seed domains.
func addSeedFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("seeds", "s", "", "Seeds file with one \"domain [max_depth]\" per line")
	cmd.Flags().IntP("max-depth", "d", 0, "Max depth for seeds without one (default: crawler.max_depth)")
}

// collectSeeds merges seeds from the config file, --seeds and args.
func collectSeeds(cmd *cobra.Command, cfg *config.Config, args []string) ([]model.Seed, error) {
	depth, err := cmd.Flags().GetInt("max-depth")
	if err != nil {
		return nil, err
	}
	if depth < 0 {
		return nil, config.ErrInvalidMaxDepth
	}
	if depth > 0 {
		cfg.Crawler.MaxDepth = depth
	}

	var fromFile []model.Seed
	seedsPath, err := cmd.Flags().GetString("seeds")
	if err != nil {
		return nil, err
	}
	if seedsPath != "" {
		fromFile, err = config.LoadSeedsFile(seedsPath)
		if err != nil {
			return nil, err
		}
	}

	fromArgs, err := config.SeedsFromArgs(args)
	if err != nil {
		return nil, err
	}

	return config.MergeSeeds(cfg.Crawler.MaxDepth, cfg.Seeds, fromFile, fromArgs), nil
}

// openOutput returns stdout, or a file at path with parent directories created.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}

	f, err := createFile(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// createFile creates path, and its parent directories when missing.
func createFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // user-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
