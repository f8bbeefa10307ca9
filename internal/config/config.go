package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/depthcrawl/internal/browser"
	"github.com/nao1215/depthcrawl/internal/crawler"
	"github.com/nao1215/depthcrawl/internal/database"
	"github.com/nao1215/depthcrawl/internal/extract"
	"github.com/nao1215/depthcrawl/internal/linkproc"
	"github.com/nao1215/depthcrawl/internal/log"
	"github.com/nao1215/depthcrawl/internal/model"
)

// Default configuration values not owned by another package.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "depthcrawl"

	// DefaultUserAgent identifies the crawler when robots.txt is fetched.
	DefaultUserAgent = "depthcrawl/1.0 (+https://github.com/nao1215/depthcrawl)"

	// DefaultRobotsTimeout bounds one robots.txt request.
	DefaultRobotsTimeout = 10 * time.Second

	// DefaultLogLevel is used by the crawl command. Read-only commands log
	// warnings only unless --verbose is given.
	DefaultLogLevel = "info"

	// DefaultMetricsPath is where the Prometheus handler is mounted.
	DefaultMetricsPath = "/metrics"
)

// Config holds every setting of a depthcrawl invocation. Its zero value is
// not usable; start from NewConfig.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Crawler    CrawlerConfig    `yaml:"crawler" toml:"crawler"`
	Browser    BrowserConfig    `yaml:"browser" toml:"browser"`
	Extraction ExtractionConfig `yaml:"extraction" toml:"extraction"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`

	// Seeds are domains to add to the frontier before crawling.
	Seeds []model.Seed `yaml:"seeds" toml:"seeds"`
}

// DatabaseConfig selects the frontier store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" toml:"driver"`

	// Path is the SQLite file. Defaults to the XDG data directory.
	Path string `yaml:"path" toml:"path"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn" toml:"dsn"`
}

// Source returns the path or connection string for the selected driver.
func (d DatabaseConfig) Source() string {
	if strings.EqualFold(d.Driver, database.DriverPostgres) || strings.EqualFold(d.Driver, "postgresql") {
		return d.DSN
	}
	return d.Path
}

// CrawlerConfig tunes the orchestrator and link processor.
type CrawlerConfig struct {
	// Workers is the number of domains crawled concurrently, each with its
	// own browser.
	Workers int `yaml:"workers" toml:"workers"`

	// MaxDepth is applied to seeds that do not set max_depth.
	MaxDepth int `yaml:"max_depth" toml:"max_depth"`

	ClaimAttempts int      `yaml:"claim_attempts" toml:"claim_attempts"`
	ClaimBackoff  Duration `yaml:"claim_backoff" toml:"claim_backoff"`

	// ClaimLease is how long a claim survives without a heartbeat. Another
	// process resumes a domain only after its owner stayed silent this long.
	ClaimLease Duration `yaml:"claim_lease" toml:"claim_lease"`

	// RespectRobots drops child links disallowed by robots.txt.
	RespectRobots bool     `yaml:"respect_robots" toml:"respect_robots"`
	UserAgent     string   `yaml:"user_agent" toml:"user_agent"`
	RobotsTimeout Duration `yaml:"robots_timeout" toml:"robots_timeout"`

	// PaginationMarkers are path fragments of links that are never followed.
	PaginationMarkers []string `yaml:"pagination_markers" toml:"pagination_markers"`

	// MaxTextLength truncates stored anchor text, in characters. 0 keeps
	// the full text.
	MaxTextLength int `yaml:"max_text_length" toml:"max_text_length"`
}

// BrowserConfig describes the Chromium instance of each worker.
type BrowserConfig struct {
	Headless        bool     `yaml:"headless" toml:"headless"`
	NoSandbox       bool     `yaml:"no_sandbox" toml:"no_sandbox"`
	Bin             string   `yaml:"bin" toml:"bin"`
	ControlURL      string   `yaml:"control_url" toml:"control_url"`
	PageLoadTimeout Duration `yaml:"page_load_timeout" toml:"page_load_timeout"`
	ScriptTimeout   Duration `yaml:"script_timeout" toml:"script_timeout"`
}

// Launch returns the browser package configuration.
func (b BrowserConfig) Launch() browser.Config {
	return browser.Config{
		Headless:        b.Headless,
		NoSandbox:       b.NoSandbox,
		Bin:             b.Bin,
		ControlURL:      b.ControlURL,
		PageLoadTimeout: b.PageLoadTimeout.Std(),
		ScriptTimeout:   b.ScriptTimeout.Std(),
	}
}

// ExtractionConfig tunes the extraction protocol and its site conventions.
// Empty rule lists keep the built-in conventions.
type ExtractionConfig struct {
	ScrollPause           Duration `yaml:"scroll_pause" toml:"scroll_pause"`
	MaxScrolls            int      `yaml:"max_scrolls" toml:"max_scrolls"`
	LoadMoreWait          Duration `yaml:"load_more_wait" toml:"load_more_wait"`
	MaxLoadMoreFailures   int      `yaml:"max_load_more_failures" toml:"max_load_more_failures"`
	MaxLoadMoreClicks     int      `yaml:"max_load_more_clicks" toml:"max_load_more_clicks"`
	PaginationWait        Duration `yaml:"pagination_wait" toml:"pagination_wait"`
	NavigateSettle        Duration `yaml:"navigate_settle" toml:"navigate_settle"`
	InteractionDelay      Duration `yaml:"interaction_delay" toml:"interaction_delay"`
	ClickSettle           Duration `yaml:"click_settle" toml:"click_settle"`
	ClickNewLinkThreshold int      `yaml:"click_new_link_threshold" toml:"click_new_link_threshold"`
	URLNewLinkThreshold   int      `yaml:"url_new_link_threshold" toml:"url_new_link_threshold"`
	URLPageThreshold      int      `yaml:"url_page_threshold" toml:"url_page_threshold"`
	MaxPaginationPages    int      `yaml:"max_pagination_pages" toml:"max_pagination_pages"`
	PruneBuffer           int      `yaml:"prune_buffer" toml:"prune_buffer"`
	TemplateSearchWindow  int      `yaml:"template_search_window" toml:"template_search_window"`

	ScriptAttempts   int      `yaml:"script_attempts" toml:"script_attempts"`
	ScriptRetryDelay Duration `yaml:"script_retry_delay" toml:"script_retry_delay"`

	LoadMoreSelectors    []string            `yaml:"load_more_selectors" toml:"load_more_selectors"`
	PageControlSelectors []string            `yaml:"page_control_selectors" toml:"page_control_selectors"`
	PaginationParams     []extract.ParamRule `yaml:"pagination_params" toml:"pagination_params"`
	PageTokenPattern     string              `yaml:"page_token_pattern" toml:"page_token_pattern"`
	NotFoundMarkers      []string            `yaml:"not_found_markers" toml:"not_found_markers"`
}

// Options returns the engine tuning.
func (e ExtractionConfig) Options() extract.Options {
	return extract.Options{
		ScrollPause:           e.ScrollPause.Std(),
		MaxScrolls:            e.MaxScrolls,
		LoadMoreWait:          e.LoadMoreWait.Std(),
		MaxLoadMoreFailures:   e.MaxLoadMoreFailures,
		MaxLoadMoreClicks:     e.MaxLoadMoreClicks,
		PaginationWait:        e.PaginationWait.Std(),
		NavigateSettle:        e.NavigateSettle.Std(),
		InteractionDelay:      e.InteractionDelay.Std(),
		ClickSettle:           e.ClickSettle.Std(),
		ClickNewLinkThreshold: e.ClickNewLinkThreshold,
		URLNewLinkThreshold:   e.URLNewLinkThreshold,
		URLPageThreshold:      e.URLPageThreshold,
		MaxPaginationPages:    e.MaxPaginationPages,
		PruneBuffer:           e.PruneBuffer,
		TemplateSearchWindow:  e.TemplateSearchWindow,
	}
}

// RetryPolicy returns the policy for script evaluation and element waits.
func (e ExtractionConfig) RetryPolicy() extract.RetryPolicy {
	return extract.RetryPolicy{
		MaxAttempts: e.ScriptAttempts,
		Delay:       e.ScriptRetryDelay.Std(),
	}
}

// Rules returns the site conventions, with built-in lists filling the
// ones left empty.
func (e ExtractionConfig) Rules() extract.Rules {
	rules := extract.DefaultRules()
	if len(e.LoadMoreSelectors) > 0 {
		rules.LoadMoreSelectors = e.LoadMoreSelectors
	}
	if len(e.PageControlSelectors) > 0 {
		rules.PageControlSelectors = e.PageControlSelectors
	}
	if len(e.PaginationParams) > 0 {
		rules.PaginationParams = e.PaginationParams
	}
	if e.PageTokenPattern != "" {
		rules.PageTokenPattern = e.PageTokenPattern
	}
	if len(e.NotFoundMarkers) > 0 {
		markers := make([]string, len(e.NotFoundMarkers))
		for i, m := range e.NotFoundMarkers {
			markers[i] = strings.ToLower(m)
		}
		rules.NotFoundMarkers = markers
	}
	return rules
}

// LoggingConfig selects the log output.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" toml:"level"`

	// Format is text or json.
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig enables the Prometheus endpoint during a crawl.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9090". Empty disables the endpoint.
	Addr string `yaml:"addr" toml:"addr"`
	Path string `yaml:"path" toml:"path"`
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	opts := extract.DefaultOptions()
	retry := extract.DefaultRetryPolicy()
	bc := browser.DefaultConfig()

	return &Config{
		Database: DatabaseConfig{
			Driver: database.DriverSQLite,
			Path:   filepath.Join(XDGDataDir(), database.DefaultSQLiteFile),
		},
		Crawler: CrawlerConfig{
			Workers:           crawler.DefaultWorkers,
			MaxDepth:          model.DefaultMaxDepth,
			ClaimAttempts:     crawler.DefaultClaimAttempts,
			ClaimBackoff:      Duration(crawler.DefaultClaimBackoff),
			ClaimLease:        Duration(crawler.DefaultClaimLease),
			UserAgent:         DefaultUserAgent,
			RobotsTimeout:     Duration(DefaultRobotsTimeout),
			PaginationMarkers: append([]string(nil), linkproc.DefaultPaginationMarkers...),
			MaxTextLength:     linkproc.DefaultMaxTextLength,
		},
		Browser: BrowserConfig{
			Headless:        bc.Headless,
			NoSandbox:       bc.NoSandbox,
			PageLoadTimeout: Duration(bc.PageLoadTimeout),
			ScriptTimeout:   Duration(bc.ScriptTimeout),
		},
		Extraction: ExtractionConfig{
			ScrollPause:           Duration(opts.ScrollPause),
			MaxScrolls:            opts.MaxScrolls,
			LoadMoreWait:          Duration(opts.LoadMoreWait),
			MaxLoadMoreFailures:   opts.MaxLoadMoreFailures,
			MaxLoadMoreClicks:     opts.MaxLoadMoreClicks,
			PaginationWait:        Duration(opts.PaginationWait),
			NavigateSettle:        Duration(opts.NavigateSettle),
			InteractionDelay:      Duration(opts.InteractionDelay),
			ClickSettle:           Duration(opts.ClickSettle),
			ClickNewLinkThreshold: opts.ClickNewLinkThreshold,
			URLNewLinkThreshold:   opts.URLNewLinkThreshold,
			URLPageThreshold:      opts.URLPageThreshold,
			MaxPaginationPages:    opts.MaxPaginationPages,
			PruneBuffer:           opts.PruneBuffer,
			TemplateSearchWindow:  opts.TemplateSearchWindow,
			ScriptAttempts:        retry.MaxAttempts,
			ScriptRetryDelay:      Duration(retry.Delay),
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: log.FormatText,
		},
		Metrics: MetricsConfig{
			Path: DefaultMetricsPath,
		},
	}
}

// XDGDataDir returns the XDG data directory for depthcrawl.
// On Linux: ~/.local/share/depthcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for depthcrawl.
// On Linux: ~/.config/depthcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case database.DriverSQLite, "sqlite3":
		if c.Database.Path == "" {
			return ErrMissingDBPath
		}
	case database.DriverPostgres, "postgresql":
		if c.Database.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, c.Database.Driver)
	}

	if c.Crawler.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Crawler.MaxDepth <= 0 {
		return ErrInvalidMaxDepth
	}
	if c.Crawler.ClaimAttempts <= 0 || c.Crawler.ClaimBackoff <= 0 {
		return ErrInvalidClaimRetry
	}
	if c.Crawler.ClaimLease <= 0 {
		return ErrInvalidClaimLease
	}
	if c.Crawler.MaxTextLength < 0 {
		return ErrInvalidMaxTextLength
	}
	if c.Crawler.RespectRobots && c.Crawler.RobotsTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if err := c.Browser.Launch().Validate(); err != nil {
		return ErrInvalidTimeout
	}

	if err := c.Extraction.validate(); err != nil {
		return err
	}

	if err := validateLogging(c.Logging); err != nil {
		return err
	}

	for _, s := range c.Seeds {
		if err := validateSeed(s); err != nil {
			return err
		}
	}
	return nil
}

func (e ExtractionConfig) validate() error {
	durations := []Duration{
		e.ScrollPause, e.LoadMoreWait, e.PaginationWait,
		e.NavigateSettle, e.InteractionDelay, e.ClickSettle, e.ScriptRetryDelay,
	}
	for _, d := range durations {
		if d < 0 {
			return ErrInvalidExtraction
		}
	}

	counts := []int{
		e.MaxScrolls, e.MaxLoadMoreFailures, e.MaxLoadMoreClicks,
		e.ClickNewLinkThreshold, e.URLNewLinkThreshold, e.URLPageThreshold,
		e.MaxPaginationPages, e.PruneBuffer, e.TemplateSearchWindow, e.ScriptAttempts,
	}
	for _, n := range counts {
		if n < 0 {
			return ErrInvalidExtraction
		}
	}

	if e.PageTokenPattern != "" {
		re, err := regexp.Compile(e.PageTokenPattern)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
		}
		if re.NumSubexp() < 2 {
			return fmt.Errorf("%w: need a prefix group and a number group", ErrInvalidPattern)
		}
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	switch strings.ToLower(l.Format) {
	case "", log.FormatText, log.FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, l.Format)
	}
	if _, err := log.ParseLevel(l.Level, 0); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}
	return nil
}

func validateSeed(s model.Seed) error {
	if model.NormalizeDomain(s.Domain) == "" {
		return fmt.Errorf("%w: empty domain", ErrInvalidSeed)
	}
	if s.MaxDepth < 0 {
		return fmt.Errorf("%w: %s: max_depth must be positive", ErrInvalidSeed, s.Domain)
	}
	return nil
}
