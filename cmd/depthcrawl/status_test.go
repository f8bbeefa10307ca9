package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/depthcrawl/internal/model"
	"github.com/nao1215/depthcrawl/internal/report"
)

// seededDB returns a database holding example.com and the config to use with it.
func seededDB(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	cfgPath = testConfig(t)
	dbPath = filepath.Join(t.TempDir(), "frontier.db")
	if _, _, err := execute(t, "seed", "-c", cfgPath, "--db", dbPath, "-d", "3", "example.com"); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}
	return cfgPath, dbPath
}

func TestNewStatusCmd(t *testing.T) {
	t.Parallel()

	cmd := NewStatusCmd()
	format := cmd.Flags().Lookup("format")
	if format == nil || format.Shorthand != "f" || format.DefValue != report.FormatText {
		t.Fatalf("unexpected format flag: %+v", format)
	}
	if cmd.Flags().Lookup("output") == nil {
		t.Error("expected output flag")
	}
	for _, name := range []string{"db", "dsn"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

func TestStatusCmd(t *testing.T) {
	t.Parallel()

	t.Run("text", func(t *testing.T) {
		t.Parallel()
		cfgPath, dbPath := seededDB(t)

		out, _, err := execute(t, "status", "-c", cfgPath, "--db", dbPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"CRAWL STATUS", "example.com", "0/3", "1 pending"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		cfgPath, dbPath := seededDB(t)

		out, _, err := execute(t, "status", "-c", cfgPath, "--db", dbPath, "-f", "json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var status report.Status
		if err := json.Unmarshal([]byte(out), &status); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out)
		}
		if len(status.Domains) != 1 {
			t.Fatalf("expected 1 domain, got %d", len(status.Domains))
		}
		row := status.Domains[0]
		if row.Name != "example.com" || row.Status != model.DomainPending || row.MaxDepth != 3 {
			t.Errorf("unexpected row %+v", row)
		}
		if _, ok := row.URLs[model.URLError]; !ok {
			t.Error("expected explicit zero for the error status")
		}
	})

	t.Run("markdown to file", func(t *testing.T) {
		t.Parallel()
		cfgPath, dbPath := seededDB(t)
		outPath := filepath.Join(t.TempDir(), "reports", "status.md")

		out, errOut, err := execute(t, "status", "-c", cfgPath, "--db", dbPath, "-f", "markdown", "-o", outPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "" {
			t.Errorf("expected nothing on stdout, got %q", out)
		}
		if !strings.Contains(errOut, outPath) {
			t.Errorf("expected the report path on stderr, got %q", errOut)
		}

		data, err := os.ReadFile(outPath) //nolint:gosec // test file
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		if !strings.Contains(string(data), "# Crawl Status") {
			t.Errorf("unexpected markdown:\n%s", data)
		}
	})

	t.Run("unknown format writes nothing", func(t *testing.T) {
		t.Parallel()
		cfgPath, dbPath := seededDB(t)
		outPath := filepath.Join(t.TempDir(), "status.xml")

		_, _, err := execute(t, "status", "-c", cfgPath, "--db", dbPath, "-f", "xml", "-o", outPath)
		if !errors.Is(err, report.ErrUnknownFormat) {
			t.Fatalf("expected ErrUnknownFormat, got %v", err)
		}
		if _, err := os.Stat(outPath); !os.IsNotExist(err) {
			t.Error("expected no output file")
		}
	})

	t.Run("missing database", func(t *testing.T) {
		t.Parallel()

		_, _, err := execute(t, "status", "-c", testConfig(t), "--db", filepath.Join(t.TempDir(), "none.db"))
		if err == nil {
			t.Fatal("expected error for a missing database")
		}
	})
}
