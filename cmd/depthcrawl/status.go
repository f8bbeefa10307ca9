package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/depthcrawl/internal/report"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show crawl progress per seed domain",
		Long: `Status reports every seed domain with its lifecycle state, depth progress,
unique link count and URL status breakdown.

Examples:
  depthcrawl status
  depthcrawl status --format markdown -o reports/status.md
  depthcrawl status --format json`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}

	cmd.Flags().StringP("format", "f", report.FormatText, "Output format: text, json or markdown")
	cmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	addDatabaseFlags(cmd)

	return cmd
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyDatabaseFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := report.Build(ctx, store, time.Now())
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	w, err := report.NewWriter(format, &buf)
	if err != nil {
		return err
	}
	if _, err := w.Write(status); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	out, closeOut, err := openOutput(cmd, outputPath)
	if err != nil {
		return err
	}
	if _, err := buf.WriteTo(out); err != nil {
		_ = closeOut()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := closeOut(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}

	if outputPath != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", outputPath)
	}
	return nil
}
