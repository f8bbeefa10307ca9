package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nao1215/depthcrawl/internal/config"
)

// NewSeedCmd creates the seed command.
func NewSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [domain...]",
		Short: "Add seed domains to the frontier without crawling",
		Long: `Seed adds domains to the frontier. Existing domains are left untouched,
so seeding the same list twice is harmless.

Seeds are read from the config file's seeds list, the --seeds file and the
arguments, in that order. A later max depth for the same domain wins.

Examples:
  depthcrawl seed example.com blog.example.org
  depthcrawl seed --seeds seeds.txt --max-depth 3
  depthcrawl seed --dsn postgres://crawler@db/crawl example.com`,
		Args: cobra.ArbitraryArgs,
		RunE: runSeedCmd,
	}

	addSeedFlags(cmd)
	addDatabaseFlags(cmd)

	return cmd
}

func runSeedCmd(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyDatabaseFlags(cmd, cfg); err != nil {
		return err
	}

	seeds, err := collectSeeds(cmd, cfg, args)
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		return config.ErrNoSeeds
	}
	cfg.Seeds = seeds

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger(cmd, cfg, true)
	if err != nil {
		return err
	}
	if path != "" {
		logger.Debug("configuration loaded", slog.String("path", path))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	inserted, err := store.UpsertSeeds(ctx, seeds)
	if err != nil {
		return fmt.Errorf("failed to seed domains: %w", err)
	}
	logger.Info("seeds stored", slog.Int("given", len(seeds)), slog.Int("inserted", inserted))

	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d new domain(s), %d already present\n", inserted, len(seeds)-inserted)
	return nil
}
