package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/depthcrawl/internal/database"
	"github.com/nao1215/depthcrawl/internal/extract"
	"github.com/nao1215/depthcrawl/internal/linkproc"
	"github.com/nao1215/depthcrawl/internal/metrics"
	"github.com/nao1215/depthcrawl/internal/model"
)

// Default orchestrator settings.
const (
	DefaultWorkers       = 1
	DefaultClaimAttempts = 5
	DefaultClaimBackoff  = 500 * time.Millisecond
	DefaultClaimLease    = database.DefaultClaimLease
)

// Extractor collects the anchors of one URL.
type Extractor interface {
	Extract(ctx context.Context, target string) extract.Result
}

// ExtractorFactory opens the extractor a worker uses for its lifetime. The
// returned closer releases it.
type ExtractorFactory func(ctx context.Context) (Extractor, io.Closer, error)

// LinkProcessor records the anchors found on a page.
type LinkProcessor interface {
	Process(ctx context.Context, parent *model.CrawledURL, anchors []model.Anchor) (linkproc.Result, error)
}

// Stats summarizes a run.
type Stats struct {
	RunID            string
	DomainsCompleted int
	URLsVisited      int
	URLsFailed       int
	URLsSkipped      int
	LinksInserted    int
	Edges            int
	Duration         time.Duration
}

type counters struct {
	domainsCompleted atomic.Int64
	urlsVisited      atomic.Int64
	urlsFailed       atomic.Int64
	urlsSkipped      atomic.Int64
	linksInserted    atomic.Int64
	edges            atomic.Int64
}

// Orchestrator drives workers over the frontier.
type Orchestrator struct {
	store        database.Store
	links        LinkProcessor
	newExtractor ExtractorFactory

	runID         string
	workers       int
	claimAttempts int
	claimBackoff  time.Duration
	claimLease    time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	count   counters
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets the number of concurrent workers. Each owns one extractor.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithRunID sets the claim owner. A random id is used otherwise.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.runID = id
		}
	}
}

// WithClaimRetry sets how often a failing claim is tried before the run
// stops, and the initial delay between tries.
func WithClaimRetry(attempts int, initial time.Duration) Option {
	return func(o *Orchestrator) {
		o.claimAttempts = attempts
		o.claimBackoff = initial
	}
}

// WithClaimLease sets the lease the store grants each claim. Run renews the
// claims it holds three times per lease. It must match the store's lease.
func WithClaimLease(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.claimLease = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithMetrics records progress in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New returns an Orchestrator.
func New(store database.Store, links LinkProcessor, newExtractor ExtractorFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:         store,
		links:         links,
		newExtractor:  newExtractor,
		runID:         uuid.NewString(),
		workers:       DefaultWorkers,
		claimAttempts: DefaultClaimAttempts,
		claimBackoff:  DefaultClaimBackoff,
		claimLease:    DefaultClaimLease,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(slog.String("run_id", o.runID))
	return o
}

// RunID returns the claim owner of this orchestrator.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run crawls until no domain is left, ctx is done, or a worker fails fatally.
// Cancellation is not an error: Run returns nil and the interrupted claims
// stay in_progress until their lease expires.
func (o *Orchestrator) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	o.logger.Info("crawl started", slog.Int("workers", o.workers))

	stopRenewing := o.renewClaims(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := range o.workers {
		g.Go(func() error {
			return o.worker(gctx, i)
		})
	}
	err := g.Wait()
	stopRenewing()

	stats := o.stats(time.Since(start))
	attrs := []any{
		slog.Int("domains_completed", stats.DomainsCompleted),
		slog.Int("urls_visited", stats.URLsVisited),
		slog.Int("urls_failed", stats.URLsFailed),
		slog.Int("links_inserted", stats.LinksInserted),
		slog.Duration("duration", stats.Duration),
	}
	switch {
	case err != nil:
		o.logger.Error("crawl stopped", append(attrs, slog.String("error", err.Error()))...)
	case ctx.Err() != nil:
		o.logger.Warn("crawl interrupted", attrs...)
	default:
		o.logger.Info("crawl finished", attrs...)
	}
	return stats, err
}

// renewClaims keeps the leases of this run's claims fresh until the returned
// func is called. A failed renewal is logged; the next tick tries again.
func (o *Orchestrator) renewClaims(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(max(o.claimLease/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := o.store.RenewClaims(ctx, o.runID); err != nil && ctx.Err() == nil {
					o.storageFailure(o.logger, "renew_claims", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (o *Orchestrator) stats(d time.Duration) Stats {
	return Stats{
		RunID:            o.runID,
		DomainsCompleted: int(o.count.domainsCompleted.Load()),
		URLsVisited:      int(o.count.urlsVisited.Load()),
		URLsFailed:       int(o.count.urlsFailed.Load()),
		URLsSkipped:      int(o.count.urlsSkipped.Load()),
		LinksInserted:    int(o.count.linksInserted.Load()),
		Edges:            int(o.count.edges.Load()),
		Duration:         d,
	}
}

// worker claims domains until none is left. Its extractor is opened on the
// first claim so idle workers never start a browser.
func (o *Orchestrator) worker(ctx context.Context, id int) error {
	logger := o.logger.With(slog.Int("worker", id))

	var (
		ex     Extractor
		closer io.Closer
	)
	defer func() {
		if closer == nil {
			return
		}
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close extractor", slog.String("error", err.Error()))
		}
	}()

	for ctx.Err() == nil {
		domain, err := o.claimDomain(ctx)
		if errors.Is(err, database.ErrNoDomain) {
			logger.Debug("no domain left")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if ex == nil {
			ex, closer, err = o.newExtractor(ctx)
			if err != nil {
				return &FatalError{Op: "open_extractor", Err: err}
			}
		}

		o.metrics.WorkerBusy(1)
		err = o.crawlDomain(ctx, ex, domain, logger)
		o.metrics.WorkerBusy(-1)
		if err != nil {
			return err
		}
	}
	return nil
}

// crawlDomain walks one domain's frontier.
func (o *Orchestrator) crawlDomain(ctx context.Context, ex Extractor, domain *model.SeedDomain, logger *slog.Logger) error {
	logger = logger.With(slog.String("domain", domain.Name), slog.Int("max_depth", domain.MaxDepth))
	logger.Info("crawling domain", slog.Int("current_depth", domain.CurrentDepth))
	o.metrics.DomainClaimed()

	if err := o.ensureRoot(ctx, domain); err != nil {
		// The domain stays in_progress and is picked up again by the next run.
		o.storageFailure(logger, "insert_root", err)
		return nil
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		u, err := o.claimURL(ctx, domain.ID)
		if errors.Is(err, database.ErrNoURL) {
			logger.Debug("frontier exhausted")
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if done := o.crawlURL(ctx, ex, domain, u, logger); done {
			break
		}
	}
	if ctx.Err() != nil {
		return nil
	}

	if err := o.store.FinalizeDomain(ctx, domain.ID); err != nil {
		o.storageFailure(logger, "finalize_domain", err)
		return nil
	}
	o.count.domainsCompleted.Add(1)
	o.metrics.DomainCompleted()
	logger.Info("domain completed")
	return nil
}

// ensureRoot inserts the domain's root URL unless a previous run already did.
func (o *Orchestrator) ensureRoot(ctx context.Context, domain *model.SeedDomain) error {
	exists, err := o.store.SeedRootExists(ctx, domain.ID, model.Fingerprint(domain.RootURL()))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = o.store.InsertRoot(ctx, domain)
	return err
}

// crawlURL processes one claimed URL. It reports whether the domain is done.
func (o *Orchestrator) crawlURL(ctx context.Context, ex Extractor, domain *model.SeedDomain, u *model.CrawledURL, logger *slog.Logger) bool {
	logger = logger.With(slog.String("url", u.URL), slog.Int("depth", u.Depth))

	visited, err := o.store.IsVisited(ctx, domain.ID, u.Fingerprint, u.ID)
	if err != nil {
		o.storageFailure(logger, "is_visited", err)
	} else if visited {
		logger.Debug("already visited through another row")
		o.finish(ctx, u, model.URLVisited, logger)
		o.count.urlsSkipped.Add(1)
		o.metrics.URLProcessed(metrics.OutcomeSkipped)
		return false
	}

	if err := o.store.UpdateDomainDepth(ctx, domain.ID, u.Depth); err != nil {
		o.storageFailure(logger, "update_domain_depth", err)
	}
	if u.Depth >= domain.MaxDepth {
		logger.Info("depth limit reached")
		return true
	}

	start := time.Now()
	res := ex.Extract(ctx, u.URL)
	o.metrics.Extraction(time.Since(start), len(res.Anchors))
	if ctx.Err() != nil {
		return true
	}

	if !res.Success {
		logger.Warn("extraction failed", slog.String("error", errString(res.Err)))
		o.finish(ctx, u, model.URLError, logger)
		o.count.urlsFailed.Add(1)
		o.metrics.URLProcessed(metrics.OutcomeError)
		return false
	}

	lr, err := o.links.Process(ctx, u, res.Anchors)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		logger.Warn("failed to process links", slog.String("error", err.Error()))
		o.finish(ctx, u, model.URLError, logger)
		o.count.urlsFailed.Add(1)
		o.metrics.URLProcessed(metrics.OutcomeError)
		return false
	}
	o.recordLinks(lr)

	logger.Info("page crawled",
		slog.Int("anchors", len(res.Anchors)),
		slog.Int("links", lr.Inserted),
		slog.Int("edges", lr.Edges),
		slog.Int("scrolls", res.Stats.Scrolls),
		slog.Int("pages", res.Stats.ClickPages+res.Stats.URLPages))

	o.finish(ctx, u, model.URLVisited, logger)
	o.count.urlsVisited.Add(1)
	o.metrics.URLProcessed(metrics.OutcomeVisited)
	return false
}

func (o *Orchestrator) recordLinks(lr linkproc.Result) {
	o.count.linksInserted.Add(int64(lr.Inserted))
	o.count.edges.Add(int64(lr.Edges))

	skipped := make(map[string]int, len(lr.Skipped))
	for reason, n := range lr.Skipped {
		skipped[string(reason)] = n
	}
	o.metrics.Links(lr.Inserted, lr.Edges, skipped)
}

// finish moves u to a terminal status. A failure is logged; the URL then
// stays in_progress and is retried by the next run.
func (o *Orchestrator) finish(ctx context.Context, u *model.CrawledURL, status model.URLStatus, logger *slog.Logger) {
	var err error
	switch status {
	case model.URLVisited:
		err = o.store.MarkVisited(ctx, u.ID)
	case model.URLError:
		err = o.store.MarkError(ctx, u.ID)
	default:
		err = fmt.Errorf("not a terminal status: %s", status)
	}
	if err != nil {
		o.storageFailure(logger, "mark_"+status.String(), err)
	}
}

func (o *Orchestrator) storageFailure(logger *slog.Logger, op string, err error) {
	o.metrics.StorageError(op)
	logger.Error("storage operation failed", slog.String("op", op), slog.String("error", err.Error()))
}

func (o *Orchestrator) claimDomain(ctx context.Context) (*model.SeedDomain, error) {
	var d *model.SeedDomain
	err := o.retryClaim(ctx, "claim_next_domain", database.ErrNoDomain, func() error {
		var err error
		d, err = o.store.ClaimNextDomain(ctx, o.runID)
		return err
	})
	return d, err
}

func (o *Orchestrator) claimURL(ctx context.Context, domainID int64) (*model.CrawledURL, error) {
	var u *model.CrawledURL
	err := o.retryClaim(ctx, "claim_next_url", database.ErrNoURL, func() error {
		var err error
		u, err = o.store.ClaimNextURL(ctx, domainID, o.runID)
		return err
	})
	return u, err
}

// retryClaim runs claim with exponential backoff. empty is returned as is;
// any other error that survives every attempt becomes a FatalError.
func (o *Orchestrator) retryClaim(ctx context.Context, op string, empty error, claim func() error) error {
	attempts := max(o.claimAttempts, 1)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.claimBackoff
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(attempts-1)) //nolint:gosec // attempts >= 1
	b = backoff.WithContext(b, ctx)

	err := backoff.RetryNotify(func() error {
		err := claim()
		if errors.Is(err, empty) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		o.metrics.StorageError(op)
		o.logger.Warn("claim failed, retrying",
			slog.String("op", op),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	})
	if err == nil || errors.Is(err, empty) {
		return err
	}
	return &FatalError{Op: op, Err: err}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
