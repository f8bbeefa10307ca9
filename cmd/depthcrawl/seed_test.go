package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/depthcrawl/internal/config"
	"github.com/nao1215/depthcrawl/internal/database"
)

func listDomains(t *testing.T, dbPath string) []database.DomainSummary {
	t.Helper()
	store, err := database.OpenSQLite(dbPath, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	domains, err := store.ListDomains(context.Background())
	if err != nil {
		t.Fatalf("failed to list domains: %v", err)
	}
	return domains
}

func TestSeedCmd(t *testing.T) {
	t.Parallel()

	t.Run("adds domains once", func(t *testing.T) {
		t.Parallel()

		cfgPath := testConfig(t)
		dbPath := filepath.Join(t.TempDir(), "frontier.db")

		out, _, err := execute(t, "seed", "-c", cfgPath, "--db", dbPath, "-d", "2", "Example.com", "https://blog.example.org/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Seeded 2 new domain(s), 0 already present") {
			t.Errorf("unexpected output %q", out)
		}

		out, _, err = execute(t, "seed", "-c", cfgPath, "--db", dbPath, "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Seeded 0 new domain(s), 1 already present") {
			t.Errorf("unexpected output %q", out)
		}

		domains := listDomains(t, dbPath)
		if len(domains) != 2 {
			t.Fatalf("expected 2 domains, got %d", len(domains))
		}
		for _, d := range domains {
			if d.Domain.MaxDepth != 2 {
				t.Errorf("%s: max depth %d, want 2", d.Domain.Name, d.Domain.MaxDepth)
			}
		}
	})

	t.Run("reads a seeds file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		seedsPath := filepath.Join(dir, "seeds.txt")
		content := "# news sites\nexample.com 3\nexample.net\n"
		if err := os.WriteFile(seedsPath, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		dbPath := filepath.Join(dir, "frontier.db")

		if _, _, err := execute(t, "seed", "-c", testConfig(t), "--db", dbPath, "-s", seedsPath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		depths := map[string]int{}
		for _, d := range listDomains(t, dbPath) {
			depths[d.Domain.Name] = d.Domain.MaxDepth
		}
		if depths["example.com"] != 3 {
			t.Errorf("example.com depth = %d, want 3", depths["example.com"])
		}
		if depths["example.net"] != config.NewConfig().Crawler.MaxDepth {
			t.Errorf("example.net depth = %d, want the default", depths["example.net"])
		}
	})

	t.Run("requires seeds", func(t *testing.T) {
		t.Parallel()

		dbPath := filepath.Join(t.TempDir(), "frontier.db")
		_, _, err := execute(t, "seed", "-c", testConfig(t), "--db", dbPath)
		if !errors.Is(err, config.ErrNoSeeds) {
			t.Fatalf("expected ErrNoSeeds, got %v", err)
		}
	})

	t.Run("rejects db and dsn together", func(t *testing.T) {
		t.Parallel()

		_, _, err := execute(t, "seed", "-c", testConfig(t),
			"--db", filepath.Join(t.TempDir(), "x.db"), "--dsn", "postgres://localhost/crawl", "example.com")
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("rejects negative max depth", func(t *testing.T) {
		t.Parallel()

		_, _, err := execute(t, "seed", "-c", testConfig(t),
			"--db", filepath.Join(t.TempDir(), "x.db"), "-d", "-1", "example.com")
		if !errors.Is(err, config.ErrInvalidMaxDepth) {
			t.Fatalf("expected ErrInvalidMaxDepth, got %v", err)
		}
	})
}
