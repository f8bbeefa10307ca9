package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/depthcrawl/internal/extract"
	"github.com/nao1215/depthcrawl/internal/model"
)

// TestNewConfig verifies the defaults so that changing one is a deliberate act.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("database defaults to sqlite in the data directory", func(t *testing.T) {
		t.Parallel()
		if cfg.Database.Driver != "sqlite" {
			t.Errorf("expected driver sqlite, got %q", cfg.Database.Driver)
		}
		if !strings.HasPrefix(cfg.Database.Path, XDGDataDir()) || filepath.Base(cfg.Database.Path) != "depthcrawl.db" {
			t.Errorf("unexpected database path %q", cfg.Database.Path)
		}
		if cfg.Database.Source() != cfg.Database.Path {
			t.Errorf("expected sqlite source to be the path, got %q", cfg.Database.Source())
		}
	})

	t.Run("crawler defaults", func(t *testing.T) {
		t.Parallel()
		if cfg.Crawler.Workers != 1 {
			t.Errorf("expected 1 worker, got %d", cfg.Crawler.Workers)
		}
		if cfg.Crawler.MaxDepth != 5 {
			t.Errorf("expected max depth 5, got %d", cfg.Crawler.MaxDepth)
		}
		if cfg.Crawler.RespectRobots {
			t.Error("expected robots.txt to be ignored by default")
		}
		if len(cfg.Crawler.PaginationMarkers) != 1 || cfg.Crawler.PaginationMarkers[0] != "/page/" {
			t.Errorf("unexpected pagination markers %v", cfg.Crawler.PaginationMarkers)
		}
		if cfg.Crawler.ClaimLease.Std() != time.Minute {
			t.Errorf("expected a 1m claim lease, got %v", cfg.Crawler.ClaimLease)
		}
		if cfg.Crawler.MaxTextLength != 100 {
			t.Errorf("expected max text length 100, got %d", cfg.Crawler.MaxTextLength)
		}
	})

	t.Run("browser is headless with 300s timeouts", func(t *testing.T) {
		t.Parallel()
		if !cfg.Browser.Headless {
			t.Error("expected headless browser")
		}
		if cfg.Browser.PageLoadTimeout.Std() != 300*time.Second || cfg.Browser.ScriptTimeout.Std() != 300*time.Second {
			t.Errorf("unexpected timeouts %v %v", cfg.Browser.PageLoadTimeout, cfg.Browser.ScriptTimeout)
		}
	})

	t.Run("extraction matches engine defaults", func(t *testing.T) {
		t.Parallel()
		if cfg.Extraction.Options() != extract.DefaultOptions() {
			t.Errorf("Options() = %+v, want %+v", cfg.Extraction.Options(), extract.DefaultOptions())
		}
		if cfg.Extraction.RetryPolicy() != extract.DefaultRetryPolicy() {
			t.Errorf("RetryPolicy() = %+v, want %+v", cfg.Extraction.RetryPolicy(), extract.DefaultRetryPolicy())
		}
	})

	t.Run("logging and metrics", func(t *testing.T) {
		t.Parallel()
		if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
			t.Errorf("unexpected logging %+v", cfg.Logging)
		}
		if cfg.Metrics.Addr != "" || cfg.Metrics.Path != "/metrics" {
			t.Errorf("unexpected metrics %+v", cfg.Metrics)
		}
	})

	t.Run("defaults are valid", func(t *testing.T) {
		t.Parallel()
		if err := NewConfig().Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

// TestConfigValidate tests one validation rule per case.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, ErrInvalidDriver},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, ErrMissingDSN},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, ErrMissingDBPath},
		{"zero workers", func(c *Config) { c.Crawler.Workers = 0 }, ErrInvalidWorkers},
		{"zero max depth", func(c *Config) { c.Crawler.MaxDepth = 0 }, ErrInvalidMaxDepth},
		{"zero claim attempts", func(c *Config) { c.Crawler.ClaimAttempts = 0 }, ErrInvalidClaimRetry},
		{"zero claim backoff", func(c *Config) { c.Crawler.ClaimBackoff = 0 }, ErrInvalidClaimRetry},
		{"zero claim lease", func(c *Config) { c.Crawler.ClaimLease = 0 }, ErrInvalidClaimLease},
		{"negative claim lease", func(c *Config) { c.Crawler.ClaimLease = Duration(-time.Minute) }, ErrInvalidClaimLease},
		{"negative max text length", func(c *Config) { c.Crawler.MaxTextLength = -1 }, ErrInvalidMaxTextLength},
		{"robots without timeout", func(c *Config) {
			c.Crawler.RespectRobots = true
			c.Crawler.RobotsTimeout = 0
		}, ErrInvalidTimeout},
		{"zero page load timeout", func(c *Config) { c.Browser.PageLoadTimeout = 0 }, ErrInvalidTimeout},
		{"negative scroll pause", func(c *Config) { c.Extraction.ScrollPause = Duration(-time.Second) }, ErrInvalidExtraction},
		{"negative max scrolls", func(c *Config) { c.Extraction.MaxScrolls = -1 }, ErrInvalidExtraction},
		{"bad token pattern", func(c *Config) { c.Extraction.PageTokenPattern = "(" }, ErrInvalidPattern},
		{"token pattern without groups", func(c *Config) { c.Extraction.PageTokenPattern = `page=\d+` }, ErrInvalidPattern},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, ErrInvalidLogLevel},
		{"empty seed", func(c *Config) { c.Seeds = []model.Seed{{Domain: " "}} }, ErrInvalidSeed},
		{"negative seed depth", func(c *Config) { c.Seeds = []model.Seed{{Domain: "example.com", MaxDepth: -1}} }, ErrInvalidSeed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tt.modify(cfg)

			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("any max text length from 0 up is valid on postgres", func(t *testing.T) {
		t.Parallel()

		// Anchor text columns are unbounded TEXT, so neither 0 (no limit)
		// nor a limit above 100 can overflow a column.
		for _, n := range []int{0, 100, 500} {
			cfg := NewConfig()
			cfg.Database.Driver = "postgres"
			cfg.Database.DSN = "postgres://crawler@localhost/crawl"
			cfg.Crawler.MaxTextLength = n
			if err := cfg.Validate(); err != nil {
				t.Errorf("max_text_length %d: expected no error, got %v", n, err)
			}
		}
	})

	t.Run("postgres with dsn is valid", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.Database.Driver = "postgres"
		cfg.Database.DSN = "postgres://crawler@localhost/crawl"
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if cfg.Database.Source() != cfg.Database.DSN {
			t.Errorf("expected postgres source to be the dsn, got %q", cfg.Database.Source())
		}
	})
}

func TestExtractionRules(t *testing.T) {
	t.Parallel()

	t.Run("empty lists keep built-in conventions", func(t *testing.T) {
		t.Parallel()

		got := NewConfig().Extraction.Rules()
		want := extract.DefaultRules()
		if len(got.LoadMoreSelectors) != len(want.LoadMoreSelectors) || got.PageTokenPattern != want.PageTokenPattern {
			t.Errorf("Rules() = %+v, want defaults", got)
		}
	})

	t.Run("configured lists replace built-ins", func(t *testing.T) {
		t.Parallel()

		e := NewConfig().Extraction
		e.LoadMoreSelectors = []string{"button.more"}
		e.NotFoundMarkers = []string{"Nothing Here"}
		e.PaginationParams = []extract.ParamRule{{Name: "offset", Contains: []string{"offset="}}}

		got := e.Rules()
		if len(got.LoadMoreSelectors) != 1 || got.LoadMoreSelectors[0] != "button.more" {
			t.Errorf("unexpected load more selectors %v", got.LoadMoreSelectors)
		}
		if got.NotFoundMarkers[0] != "nothing here" {
			t.Errorf("expected lowercase marker, got %q", got.NotFoundMarkers[0])
		}
		if len(got.PaginationParams) != 1 || got.PaginationParams[0].Name != "offset" {
			t.Errorf("unexpected params %v", got.PaginationParams)
		}
		if len(got.PageControlSelectors) != len(extract.DefaultRules().PageControlSelectors) {
			t.Error("expected built-in page control selectors to be kept")
		}
	})
}

func TestBrowserLaunch(t *testing.T) {
	t.Parallel()

	b := BrowserConfig{
		Headless:        false,
		Bin:             "/usr/bin/chromium",
		PageLoadTimeout: Duration(time.Minute),
		ScriptTimeout:   Duration(30 * time.Second),
	}
	got := b.Launch()
	if got.Headless || got.Bin != "/usr/bin/chromium" || got.PageLoadTimeout != time.Minute || got.ScriptTimeout != 30*time.Second {
		t.Errorf("Launch() = %+v", got)
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("expected 90s, got %v", d)
	}

	text, err := d.MarshalText()
	if err != nil || string(text) != "1m30s" {
		t.Errorf("MarshalText() = %q, %v", text, err)
	}

	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	writeFile := func(t *testing.T, name, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), name)
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		return path
	}

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.depthcrawl.yaml")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads YAML over defaults", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "crawl.yaml", `database:
  driver: postgres
  dsn: postgres://crawler:secret@db/crawl
crawler:
  workers: 4
  claim_backoff: 250ms
  claim_lease: 90s
extraction:
  scroll_pause: 3s
  not_found_markers: ["gone fishing"]
  pagination_params:
    - name: offset
      contains: ["offset="]
seeds:
  - domain: example.com
    max_depth: 2
  - domain: example.org
`)

		cfg, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://crawler:secret@db/crawl" {
			t.Errorf("unexpected database %+v", cfg.Database)
		}
		if cfg.Crawler.Workers != 4 || cfg.Crawler.ClaimBackoff.Std() != 250*time.Millisecond ||
			cfg.Crawler.ClaimLease.Std() != 90*time.Second {
			t.Errorf("unexpected crawler %+v", cfg.Crawler)
		}
		if cfg.Crawler.MaxDepth != model.DefaultMaxDepth {
			t.Errorf("expected unset max depth to keep the default, got %d", cfg.Crawler.MaxDepth)
		}
		if cfg.Extraction.ScrollPause.Std() != 3*time.Second || cfg.Extraction.MaxScrolls != extract.DefaultMaxScrolls {
			t.Errorf("unexpected extraction %+v", cfg.Extraction)
		}
		if len(cfg.Extraction.PaginationParams) != 1 || cfg.Extraction.PaginationParams[0].Contains[0] != "offset=" {
			t.Errorf("unexpected pagination params %+v", cfg.Extraction.PaginationParams)
		}
		if len(cfg.Seeds) != 2 || cfg.Seeds[0].MaxDepth != 2 || cfg.Seeds[1].MaxDepth != 0 {
			t.Errorf("unexpected seeds %+v", cfg.Seeds)
		}
	})

	t.Run("loads TOML", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "crawl.toml", `[crawler]
workers = 2
respect_robots = true

[browser]
headless = false
page_load_timeout = "1m"

[[seeds]]
domain = "example.com"
max_depth = 3
`)

		cfg, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Crawler.Workers != 2 || !cfg.Crawler.RespectRobots {
			t.Errorf("unexpected crawler %+v", cfg.Crawler)
		}
		if cfg.Browser.Headless || cfg.Browser.PageLoadTimeout.Std() != time.Minute {
			t.Errorf("unexpected browser %+v", cfg.Browser)
		}
		if cfg.Browser.ScriptTimeout.Std() != 300*time.Second {
			t.Errorf("expected default script timeout, got %v", cfg.Browser.ScriptTimeout)
		}
		if len(cfg.Seeds) != 1 || cfg.Seeds[0].Domain != "example.com" || cfg.Seeds[0].MaxDepth != 3 {
			t.Errorf("unexpected seeds %+v", cfg.Seeds)
		}
	})

	t.Run("empty YAML keeps defaults", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile(writeFile(t, "empty.yaml", "# nothing yet\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Crawler.Workers != 1 {
			t.Errorf("expected default workers, got %d", cfg.Crawler.Workers)
		}
	})

	t.Run("rejects unknown YAML keys", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(writeFile(t, "typo.yaml", "crawler:\n  wokers: 3\n"))
		if err == nil {
			t.Error("expected error for unknown key")
		}
	})

	t.Run("rejects unknown TOML keys", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(writeFile(t, "typo.toml", "[crawler]\nwokers = 3\n"))
		if err == nil {
			t.Error("expected error for unknown key")
		}
	})

	t.Run("rejects invalid duration", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(writeFile(t, "bad.yaml", "crawler:\n  claim_backoff: soon\n"))
		if err == nil {
			t.Error("expected error for invalid duration")
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(writeFile(t, "bad.yaml", `invalid: yaml: content: [}`))
		if err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("rejects unsupported extension", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(writeFile(t, "crawl.json", "{}"))
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("crawler: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if got := FindConfigFile(configPath); got != configPath {
			t.Errorf("expected %q, got %q", configPath, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("missing explicit file is an error", func(t *testing.T) {
		t.Parallel()

		_, _, err := Load("/nonexistent/path/config.yaml")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("explicit file is read", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("crawler:\n  workers: 6\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, path, err := Load(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != configPath || cfg.Crawler.Workers != 6 {
			t.Errorf("Load() = %+v, %q", cfg.Crawler, path)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{"data": XDGDataDir(), "config": XDGConfigDir()} {
		if filepath.Base(dir) != AppName {
			t.Errorf("expected %s dir to end in %q, got %q", name, AppName, dir)
		}
	}
}
