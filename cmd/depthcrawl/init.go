package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

//go:embed templates/depthcrawl.yaml
var configTemplate embed.FS

// configFileName is the configuration file created by default. It is one of
// the names the other commands look for in the working directory.
const configFileName = ".depthcrawl.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a depthcrawl configuration file",
		Long: `Init writes a commented configuration file with every setting and its
default value. Edit it to tune the browser, the extraction waits and the
site conventions used to find "load more" buttons and pagination.

Examples:
  # Create .depthcrawl.yaml in the current directory
  depthcrawl init

  # Write to the XDG location used when no local file exists
  depthcrawl init -o ~/.config/depthcrawl/config.yaml

  # Overwrite an existing file
  depthcrawl init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName, "Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false, "Overwrite an existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/depthcrawl.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  depthcrawl seed example.com    # add seed domains")
	fmt.Fprintln(out, "  depthcrawl crawl               # crawl them")
	fmt.Fprintln(out, "  depthcrawl status              # watch progress")
	return nil
}
