package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/depthcrawl/internal/database"
	"github.com/nao1215/depthcrawl/internal/extract"
	"github.com/nao1215/depthcrawl/internal/linkproc"
	"github.com/nao1215/depthcrawl/internal/metrics"
	"github.com/nao1215/depthcrawl/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func anchor(href, text string) model.Anchor {
	return model.Anchor{Href: href, Text: text, HTML: fmt.Sprintf(`<a href="%s">%s</a>`, href, text)}
}

// fakeSite serves anchors per URL. URLs listed in failing fail extraction.
type fakeSite struct {
	mu      sync.Mutex
	pages   map[string][]model.Anchor
	failing map[string]bool
	calls   []string
	hook    func(target string)
}

func (f *fakeSite) Extract(_ context.Context, target string) extract.Result {
	f.mu.Lock()
	f.calls = append(f.calls, target)
	hook := f.hook
	anchors := f.pages[target]
	failing := f.failing[target]
	f.mu.Unlock()

	if hook != nil {
		hook(target)
	}
	if failing {
		return extract.Result{Err: &extract.ExtractionError{URL: target, Phase: "navigate", Err: errors.New("timeout")}}
	}
	return extract.Result{Success: true, Anchors: anchors}
}

func (f *fakeSite) extracted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type countingCloser struct{ closed atomic.Int32 }

func (c *countingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

// factory hands out site and counts how many extractors were opened.
func factory(site *fakeSite, opened *atomic.Int32, closer *countingCloser) ExtractorFactory {
	return func(context.Context) (Extractor, io.Closer, error) {
		opened.Add(1)
		return site, closer, nil
	}
}

func openStore(t *testing.T) *database.SQLiteStore {
	t.Helper()
	return openStoreWithLease(t, database.DefaultClaimLease)
}

func openStoreWithLease(t *testing.T, lease time.Duration) *database.SQLiteStore {
	t.Helper()
	opts := database.DefaultOptions()
	opts.ClaimLease = lease
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), database.DefaultSQLiteFile), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, store database.Store, seeds ...model.Seed) {
	t.Helper()
	_, err := store.UpsertSeeds(context.Background(), seeds)
	require.NoError(t, err)
}

func summary(t *testing.T, store database.Store, name string) database.DomainSummary {
	t.Helper()
	all, err := store.ListDomains(context.Background())
	require.NoError(t, err)
	for _, s := range all {
		if s.Domain.Name == name {
			return s
		}
	}
	t.Fatalf("domain %s not found", name)
	return database.DomainSummary{}
}

func newOrchestrator(store database.Store, site *fakeSite, opts ...Option) (*Orchestrator, *atomic.Int32, *countingCloser) {
	var opened atomic.Int32
	closer := &countingCloser{}
	all := append([]Option{
		WithLogger(discard()),
		WithClaimRetry(3, time.Millisecond),
	}, opts...)
	links := linkproc.New(store, linkproc.WithLogger(discard()))
	return New(store, links, factory(site, &opened, closer), all...), &opened, closer
}

func TestRunSeedScenario(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	seed(t, store, model.Seed{Domain: "example.com", MaxDepth: 1})

	site := &fakeSite{pages: map[string][]model.Anchor{
		"https://example.com/": {
			anchor("/x", "X"),
			anchor("/x", "X"),
			anchor("http://other.com", "C"),
		},
	}}
	o, opened, closer := newOrchestrator(store, site)

	stats, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/"}, site.extracted())
	assert.Equal(t, 1, stats.DomainsCompleted)
	assert.Equal(t, 1, stats.URLsVisited)
	assert.Equal(t, 1, stats.LinksInserted)
	assert.Equal(t, 1, stats.Edges)
	assert.Equal(t, o.RunID(), stats.RunID)

	s := summary(t, store, "example.com")
	assert.Equal(t, model.DomainCompleted, s.Domain.Status)
	assert.NotNil(t, s.Domain.CompletedAt)
	assert.Equal(t, 1, s.Domain.CurrentDepth)
	assert.Equal(t, 2, s.Domain.UniqueLinks, "root and /x")
	assert.Equal(t, 1, s.Counts[model.URLVisited])
	// The /x row was claimed at the depth limit and never extracted.
	assert.Equal(t, 1, s.Counts[model.URLInProgress])

	edges, err := store.CountRelationships(context.Background(), s.Domain.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, edges)

	assert.Equal(t, int32(1), opened.Load())
	assert.Equal(t, int32(1), closer.closed.Load())
}

func TestRunRootWithoutChildren(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	seed(t, store, model.Seed{Domain: "example.com"})
	site := &fakeSite{}
	o, _, _ := newOrchestrator(store, site)

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, site.extracted(), 1)
	s := summary(t, store, "example.com")
	assert.Equal(t, model.DomainCompleted, s.Domain.Status)
	assert.NotNil(t, s.Domain.CompletedAt)
	assert.Equal(t, 1, s.Counts[model.URLVisited])
}

func TestRunExtractionFailure(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	seed(t, store, model.Seed{Domain: "example.com"})
	site := &fakeSite{
		pages: map[string][]model.Anchor{
			"https://example.com/": {anchor("/a", "A"), anchor("/b", "B")},
		},
		failing: map[string]bool{"https://example.com/a": true},
	}
	o, _, _ := newOrchestrator(store, site)

	stats, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.URLsFailed)
	assert.Equal(t, 2, stats.URLsVisited)
	s := summary(t, store, "example.com")
	assert.Equal(t, model.DomainCompleted, s.Domain.Status)
	assert.Equal(t, 1, s.Counts[model.URLError])
	assert.Equal(t, 2, s.Counts[model.URLVisited])
}

func TestRunDepthOrder(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	seed(t, store, model.Seed{Domain: "example.com", MaxDepth: 2})
	site := &fakeSite{pages: map[string][]model.Anchor{
		"https://example.com/":  {anchor("/a", "A"), anchor("/b", "B")},
		"https://example.com/a": {anchor("/a/1", "A1"), anchor("/b", "B again")},
		"https://example.com/b": {anchor("/b/1", "B1")},
	}}
	o, _, _ := newOrchestrator(store, site)

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	// Depth 2 rows are claimed at the limit and never extracted.
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/a",
		"https://example.com/b",
	}, site.extracted())

	s := summary(t, store, "example.com")
	assert.Equal(t, model.DomainCompleted, s.Domain.Status)
	assert.Equal(t, 2, s.Domain.CurrentDepth)
}

func TestRunSkipsRowsVisitedElsewhere(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	seed(t, store, model.Seed{Domain: "example.com", MaxDepth: 3})
	site := &fakeSite{pages: map[string][]model.Anchor{
		"https://example.com/":  {anchor("/a", "A"), anchor("/b", "B")},
		"https://example.com/a": {anchor("/b", "B from A")},
	}}
	o, _, _ := newOrchestrator(store, site)

	stats, err := o.Run(context.Background())
	require.NoError(t, err)

	calls := site.extracted()
	sort.Strings(calls)
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/a",
		"https://example.com/b",
	}, calls)
	assert.Equal(t, 1, stats.URLsSkipped)

	s := summary(t, store, "example.com")
	assert.Equal(t, 4, s.Counts[model.URLVisited])
}

func TestRunResumesInterruptedCrawl(t *testing.T) {
	t.Parallel()

	const lease = 200 * time.Millisecond
	store := openStoreWithLease(t, lease)
	seed(t, store, model.Seed{Domain: "example.com"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	site := &fakeSite{hook: func(string) { cancel() }}
	first, _, _ := newOrchestrator(store, site)
	_, err := first.Run(ctx)
	require.NoError(t, err)

	s := summary(t, store, "example.com")
	require.Equal(t, model.DomainInProgress, s.Domain.Status)
	require.Equal(t, 1, s.Counts[model.URLInProgress])

	site.hook = nil
	second, _, _ := newOrchestrator(store, site, WithClaimLease(lease))
	require.NotEqual(t, first.RunID(), second.RunID())

	stats, err := second.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.URLsVisited, "claims of the first run are still leased")

	time.Sleep(3 * lease)
	stats, err = second.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.URLsVisited)
	s = summary(t, store, "example.com")
	assert.Equal(t, model.DomainCompleted, s.Domain.Status)
	assert.Equal(t, 1, s.Counts[model.URLVisited])
	assert.Zero(t, s.Counts[model.URLInProgress])
	assert.Equal(t, 1, s.Domain.UniqueLinks, "root must not be seeded twice")
}

func TestRunKeepsClaimsOfLiveRun(t *testing.T) {
	t.Parallel()

	const lease = 150 * time.Millisecond
	store := openStoreWithLease(t, lease)
	seed(t, store, model.Seed{Domain: "example.com"})

	// The first run sits on its root page for several leases.
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := &fakeSite{hook: func(string) {
		close(entered)
		<-release
	}}
	first, _, _ := newOrchestrator(store, slow, WithRunID("run-A"), WithClaimLease(lease))
	firstDone := make(chan error, 1)
	go func() {
		_, err := first.Run(context.Background())
		firstDone <- err
	}()
	<-entered
	time.Sleep(3 * lease)

	other := &fakeSite{}
	second, opened, _ := newOrchestrator(store, other, WithRunID("run-B"), WithClaimLease(lease))
	stats, err := second.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.DomainsCompleted)
	assert.Zero(t, opened.Load(), "run-B took over a renewed claim")
	assert.Empty(t, other.extracted())

	close(release)
	require.NoError(t, <-firstDone)
	s := summary(t, store, "example.com")
	assert.Equal(t, model.DomainCompleted, s.Domain.Status)
	assert.Equal(t, "run-A", s.Domain.ClaimedBy)
}

func TestRunWorkers(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	seed(t, store,
		model.Seed{Domain: "a.example"},
		model.Seed{Domain: "b.example"},
		model.Seed{Domain: "c.example"},
	)
	site := &fakeSite{}
	m := metrics.New()
	o, opened, closer := newOrchestrator(store, site, WithWorkers(3), WithMetrics(m))

	stats, err := o.Run(context.Background())
	require.NoError(t, err)

	calls := site.extracted()
	sort.Strings(calls)
	assert.Equal(t, []string{"https://a.example/", "https://b.example/", "https://c.example/"}, calls)
	assert.Equal(t, 3, stats.DomainsCompleted)
	assert.LessOrEqual(t, opened.Load(), int32(3))
	assert.Equal(t, opened.Load(), closer.closed.Load())
}

func TestRunNothingToDo(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	site := &fakeSite{}
	o, opened, _ := newOrchestrator(store, site, WithWorkers(2))

	stats, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.DomainsCompleted)
	assert.Zero(t, opened.Load(), "no browser for an empty frontier")
}

// flakyStore injects failures into a real store.
type flakyStore struct {
	database.Store

	mu              sync.Mutex
	domainFailures  int
	domainCalls     int
	markVisitedFail bool
	renewFail       bool
	renewCalls      int
}

var errLocked = errors.New("database is locked")

func (s *flakyStore) ClaimNextDomain(ctx context.Context, runID string) (*model.SeedDomain, error) {
	s.mu.Lock()
	s.domainCalls++
	fail := s.domainFailures != 0
	if s.domainFailures > 0 {
		s.domainFailures--
	}
	s.mu.Unlock()
	if fail {
		return nil, &database.StorageError{Op: "claim_next_domain", Err: errLocked}
	}
	return s.Store.ClaimNextDomain(ctx, runID)
}

func (s *flakyStore) RenewClaims(ctx context.Context, runID string) error {
	s.mu.Lock()
	s.renewCalls++
	fail := s.renewFail
	s.mu.Unlock()
	if fail {
		return &database.StorageError{Op: "renew_claims", Err: errLocked}
	}
	return s.Store.RenewClaims(ctx, runID)
}

func (s *flakyStore) MarkVisited(ctx context.Context, urlID int64) error {
	if s.markVisitedFail {
		return &database.StorageError{Op: "mark_visited", Err: errLocked}
	}
	return s.Store.MarkVisited(ctx, urlID)
}

func TestRunClaimFailures(t *testing.T) {
	t.Parallel()

	t.Run("persistent failure is fatal", func(t *testing.T) {
		t.Parallel()

		store := &flakyStore{Store: openStore(t), domainFailures: -1}
		o, _, _ := newOrchestrator(store, &fakeSite{})

		_, err := o.Run(context.Background())
		var fatal *FatalError
		require.ErrorAs(t, err, &fatal)
		assert.Equal(t, "claim_next_domain", fatal.Op)
		assert.ErrorIs(t, err, errLocked)
		assert.Equal(t, 3, store.domainCalls)
	})

	t.Run("transient failure is retried", func(t *testing.T) {
		t.Parallel()

		store := &flakyStore{Store: openStore(t), domainFailures: 2}
		seed(t, store, model.Seed{Domain: "example.com"})
		site := &fakeSite{}
		o, _, _ := newOrchestrator(store, site)

		stats, err := o.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.DomainsCompleted)
	})
}

func TestRunStorageFailureDuringURL(t *testing.T) {
	t.Parallel()

	store := &flakyStore{Store: openStore(t), markVisitedFail: true}
	seed(t, store, model.Seed{Domain: "example.com"})
	o, _, _ := newOrchestrator(store, &fakeSite{})

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	s := summary(t, store, "example.com")
	assert.Equal(t, model.DomainCompleted, s.Domain.Status)
	assert.Equal(t, 1, s.Counts[model.URLInProgress])
}

func TestRunRenewalFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store := &flakyStore{Store: openStore(t), renewFail: true}
	seed(t, store, model.Seed{Domain: "example.com"})
	site := &fakeSite{hook: func(string) { time.Sleep(50 * time.Millisecond) }}
	o, _, _ := newOrchestrator(store, site, WithClaimLease(15*time.Millisecond))

	stats, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DomainsCompleted)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Positive(t, store.renewCalls)
}

func TestRunExtractorUnavailable(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	seed(t, store, model.Seed{Domain: "example.com"})
	launchErr := errors.New("chromium not found")
	o := New(store, linkproc.New(store), func(context.Context) (Extractor, io.Closer, error) {
		return nil, nil, launchErr
	}, WithLogger(discard()))

	_, err := o.Run(context.Background())
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "open_extractor", fatal.Op)
	assert.ErrorIs(t, err, launchErr)
}

func TestWithRunID(t *testing.T) {
	t.Parallel()

	o := New(nil, nil, nil, WithRunID("nightly"), WithLogger(discard()))
	assert.Equal(t, "nightly", o.RunID())
	assert.NotEmpty(t, New(nil, nil, nil).RunID())
}
