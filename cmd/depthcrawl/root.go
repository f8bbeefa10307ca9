package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for depthcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "depthcrawl",
		Short: "Depth-bounded, resumable browser crawler",
		Long: `depthcrawl discovers the pages of seed domains with a headless browser.

Each domain is crawled level by level up to its max depth. Pages are fully
expanded before links are collected: "load more" buttons are clicked,
infinite scroll is followed, and pagination is walked. Same-site links are
stored with the page they were found on.

The frontier is persisted, so a stopped crawl continues where it left off.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file (default: ./.depthcrawl.yaml or $XDG_CONFIG_HOME/depthcrawl/config.yaml)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
