package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/depthcrawl/internal/browser"
	"github.com/nao1215/depthcrawl/internal/config"
	"github.com/nao1215/depthcrawl/internal/crawler"
	"github.com/nao1215/depthcrawl/internal/extract"
	"github.com/nao1215/depthcrawl/internal/linkproc"
	"github.com/nao1215/depthcrawl/internal/metrics"
	"github.com/nao1215/depthcrawl/internal/report"
)

// metricsShutdownTimeout bounds the graceful stop of the metrics server.
const metricsShutdownTimeout = 5 * time.Second

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [domain...]",
		Short: "Crawl seed domains up to their max depth",
		Long: `Crawl claims seed domains one at a time per worker and visits their URLs
level by level. Each page is expanded in a headless browser before its
same-site links are stored as the next level.

Seeds given here are added first, exactly like the seed command. Without
seeds, the domains already in the frontier are crawled.

Stopping with Ctrl-C is safe: the interrupted URL and domain stay
in_progress and the next run resumes them once crawler.claim_lease has
passed. While a crawl runs it renews its claims, so other processes sharing
the frontier leave its domains alone.

Examples:
  # Crawl one domain three levels deep
  depthcrawl crawl --max-depth 3 example.com

  # Crawl everything seeded so far with four browsers
  depthcrawl crawl -w 4

  # Share a PostgreSQL frontier and expose Prometheus metrics
  depthcrawl crawl --dsn postgres://crawler@db/crawl --metrics-addr :9090`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	addSeedFlags(cmd)
	addDatabaseFlags(cmd)

	cmd.Flags().IntP("workers", "w", crawler.DefaultWorkers,
		"Number of domains crawled concurrently, each with its own browser")
	cmd.Flags().Bool("headless", true, "Run the browser without a window")
	cmd.Flags().String("browser-bin", "", "Chromium executable (default: found or downloaded by go-rod)")
	cmd.Flags().String("browser-url", "", "DevTools URL of a running browser to attach to")
	cmd.Flags().Bool("respect-robots", false, "Skip child links disallowed by robots.txt")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	cmd.Flags().String("run-id", "", "Claim owner for this run, unique per process (default: random UUID)")
	cmd.Flags().String("log-format", "", "Log format: text or json (default: logging.format)")
	cmd.Flags().String("report", "", "After the crawl, print the status and also write it to this file (.md, .json or text)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyDatabaseFlags(cmd, cfg); err != nil {
		return err
	}
	if err := applyCrawlFlags(cmd, cfg); err != nil {
		return err
	}

	seeds, err := collectSeeds(cmd, cfg, args)
	if err != nil {
		return err
	}
	cfg.Seeds = seeds

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger(cmd, cfg, false)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	if path != "" {
		logger.Debug("configuration loaded", slog.String("path", path))
	}

	runID, err := cmd.Flags().GetString("run-id")
	if err != nil {
		return err
	}
	reportPath, err := cmd.Flags().GetString("report")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, finishing current page...")
			cancel()
		case <-ctx.Done():
		}
	}()

	stats, err := runCrawl(ctx, cfg, crawlDeps{
		logger:       logger,
		runID:        runID,
		newExtractor: browserExtractors(cfg, logger),
	})
	printStats(cmd.OutOrStdout(), stats)
	if err != nil {
		return err
	}

	if reportPath != "" {
		// ctx may already be canceled by a signal.
		if err := writeCrawlReport(context.Background(), cfg, cmd.OutOrStdout(), reportPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", reportPath)
	}
	return nil
}

// reportFormat picks the report format from the file extension.
func reportFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return report.FormatJSON
	case ".md", ".markdown":
		return report.FormatMarkdown
	default:
		return report.FormatText
	}
}

// writeCrawlReport prints the frontier status to out and writes it to path
// in the format its extension names.
func writeCrawlReport(ctx context.Context, cfg *config.Config, out io.Writer, path string) error {
	store, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := report.Build(ctx, store, time.Now())
	if err != nil {
		return err
	}

	f, err := createFile(path)
	if err != nil {
		return err
	}

	fileWriter, err := report.NewWriter(reportFormat(path), f)
	if err != nil {
		_ = f.Close()
		return err
	}
	w := report.NewMultiWriter(report.NewSimpleWriter(out), fileWriter)
	if _, err := w.Write(status); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

// applyCrawlFlags overrides config values with the flags the user set.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("workers") {
		n, err := flags.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Crawler.Workers = n
	}
	if flags.Changed("headless") {
		headless, err := flags.GetBool("headless")
		if err != nil {
			return err
		}
		cfg.Browser.Headless = headless
	}
	if flags.Changed("respect-robots") {
		respect, err := flags.GetBool("respect-robots")
		if err != nil {
			return err
		}
		cfg.Crawler.RespectRobots = respect
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"browser-bin", &cfg.Browser.Bin},
		{"browser-url", &cfg.Browser.ControlURL},
		{"metrics-addr", &cfg.Metrics.Addr},
		{"log-format", &cfg.Logging.Format},
	}
	for _, s := range strs {
		v, err := flags.GetString(s.name)
		if err != nil {
			return err
		}
		if v != "" {
			*s.dst = v
		}
	}
	return nil
}

// crawlDeps are the parts of a crawl that tests replace.
type crawlDeps struct {
	logger       *slog.Logger
	runID        string
	newExtractor crawler.ExtractorFactory
}

// runCrawl seeds the frontier, serves metrics when configured and runs the
// orchestrator until the frontier is exhausted or ctx is done.
func runCrawl(ctx context.Context, cfg *config.Config, deps crawlDeps) (crawler.Stats, error) {
	logger := deps.logger

	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return crawler.Stats{}, err
	}
	defer store.Close()

	if len(cfg.Seeds) > 0 {
		inserted, err := store.UpsertSeeds(ctx, cfg.Seeds)
		if err != nil {
			return crawler.Stats{}, fmt.Errorf("failed to seed domains: %w", err)
		}
		logger.Info("seeds stored", slog.Int("given", len(cfg.Seeds)), slog.Int("inserted", inserted))
	}

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		stop, err := serveMetrics(cfg.Metrics, m, logger)
		if err != nil {
			return crawler.Stats{}, err
		}
		defer stop()
	}

	linkOpts := []linkproc.Option{
		linkproc.WithPaginationMarkers(cfg.Crawler.PaginationMarkers),
		linkproc.WithMaxTextLength(cfg.Crawler.MaxTextLength),
		linkproc.WithLogger(logger),
	}
	if cfg.Crawler.RespectRobots {
		client := &http.Client{Timeout: cfg.Crawler.RobotsTimeout.Std()}
		linkOpts = append(linkOpts, linkproc.WithGate(linkproc.NewRobotsGate(client, cfg.Crawler.UserAgent, logger)))
	}
	links := linkproc.New(store, linkOpts...)

	orch := crawler.New(store, links, deps.newExtractor,
		crawler.WithWorkers(cfg.Crawler.Workers),
		crawler.WithRunID(deps.runID),
		crawler.WithClaimRetry(cfg.Crawler.ClaimAttempts, cfg.Crawler.ClaimBackoff.Std()),
		crawler.WithClaimLease(cfg.Crawler.ClaimLease.Std()),
		crawler.WithLogger(logger),
		crawler.WithMetrics(m),
	)
	return orch.Run(ctx)
}

// browserExtractors launches one browser per worker and wraps it in an
// extraction engine. The browser is the closer.
func browserExtractors(cfg *config.Config, logger *slog.Logger) crawler.ExtractorFactory {
	return func(ctx context.Context) (crawler.Extractor, io.Closer, error) {
		b, err := browser.Launch(ctx, cfg.Browser.Launch(), logger)
		if err != nil {
			return nil, nil, err
		}

		engine, err := extract.NewEngine(b,
			extract.WithRules(cfg.Extraction.Rules()),
			extract.WithOptions(cfg.Extraction.Options()),
			extract.WithRetryPolicy(cfg.Extraction.RetryPolicy()),
			extract.WithLogger(logger),
		)
		if err != nil {
			_ = b.Close()
			return nil, nil, fmt.Errorf("failed to create extraction engine: %w", err)
		}
		return engine, b, nil
	}
}

// serveMetrics starts the Prometheus endpoint and returns its shutdown func.
func serveMetrics(mc config.MetricsConfig, m *metrics.Metrics, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", mc.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", mc.Addr, err)
	}

	path := mc.Path
	if path == "" {
		path = config.DefaultMetricsPath
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()), slog.String("path", path))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("failed to stop metrics server", slog.String("error", err.Error()))
		}
	}, nil
}

func printStats(w io.Writer, s crawler.Stats) {
	fmt.Fprintf(w, "Run %s finished in %s\n", s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  domains completed: %d\n", s.DomainsCompleted)
	fmt.Fprintf(w, "  urls visited:      %d\n", s.URLsVisited)
	fmt.Fprintf(w, "  urls failed:       %d\n", s.URLsFailed)
	fmt.Fprintf(w, "  urls skipped:      %d\n", s.URLsSkipped)
	fmt.Fprintf(w, "  links inserted:    %d\n", s.LinksInserted)
	fmt.Fprintf(w, "  edges recorded:    %d\n", s.Edges)
}
