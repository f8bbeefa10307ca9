package linkproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/depthcrawl/internal/database"
	"github.com/nao1215/depthcrawl/internal/model"
)

// DefaultPaginationMarkers are path segments of listing pages that the
// extraction engine already walks itself.
var DefaultPaginationMarkers = []string{"/page/"}

// SkipReason says why an anchor did not become a frontier row.
type SkipReason string

// Skip reasons.
const (
	SkipEmptyText   SkipReason = "empty_text"
	SkipScheme      SkipReason = "unsupported_scheme"
	SkipOffSite     SkipReason = "off_site"
	SkipPagination  SkipReason = "pagination"
	SkipSelf        SkipReason = "self_link"
	SkipDuplicate   SkipReason = "duplicate"
	SkipDisallowed  SkipReason = "robots_disallowed"
	SkipParseFailed SkipReason = "parse_failed"
)

// Store is the part of the frontier the processor writes to.
type Store interface {
	InsertURL(ctx context.Context, p database.InsertURLParams) (int64, error)
	ResolveURLID(ctx context.Context, domainID int64, fingerprint string) (int64, error)
	RecordRelationship(ctx context.Context, rel *model.Relationship) (bool, error)
}

// Child is an accepted link.
type Child struct {
	URL         string
	Fingerprint string
	Text        string

	// RowID is the row inserted for this discovery.
	RowID int64

	// CanonicalID is the earliest row recorded for the fingerprint. Edges
	// point at it. Zero when it could not be resolved.
	CanonicalID int64
}

// Result summarizes one Process call. It is not shared with the processor
// after Process returns.
type Result struct {
	Children []Child

	// Inserted counts rows written; Edges counts new relationship rows.
	Inserted int
	Edges    int

	// Skipped counts rejected anchors by reason.
	Skipped map[SkipReason]int

	// Failed counts accepted links that hit a storage error.
	Failed int
}

// Accepted returns the number of links that passed every filter.
func (r Result) Accepted() int {
	return len(r.Children)
}

// Processor validates anchors and records them in the frontier.
type Processor struct {
	store         Store
	gate          Gate
	markers       []string
	maxTextLength int
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithGate admits only links the gate allows.
func WithGate(g Gate) Option {
	return func(p *Processor) {
		p.gate = g
	}
}

// WithPaginationMarkers replaces the path segments that reject a link.
func WithPaginationMarkers(markers []string) Option {
	return func(p *Processor) {
		p.markers = markers
	}
}

// WithMaxTextLength sets the rune limit for stored anchor text.
func WithMaxTextLength(n int) Option {
	return func(p *Processor) {
		p.maxTextLength = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// New returns a Processor writing to store.
func New(store Store, opts ...Option) *Processor {
	p := &Processor{
		store:         store,
		markers:       DefaultPaginationMarkers,
		maxTextLength: DefaultMaxTextLength,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process records the links found on parent. Children are inserted at
// parent.Depth+1. Storage failures for one link do not stop the others.
func (p *Processor) Process(ctx context.Context, parent *model.CrawledURL, anchors []model.Anchor) (Result, error) {
	res := Result{Skipped: make(map[SkipReason]int)}

	base, err := url.Parse(parent.URL)
	if err != nil {
		return res, fmt.Errorf("failed to parse parent URL %q: %w", parent.URL, err)
	}
	parentHost := siteHost(base)
	parentFP := parent.Fingerprint
	if parentFP == "" {
		parentFP = model.Fingerprint(canonicalize(base))
	}

	logger := p.logger.With(slog.String("parent", parent.URL), slog.Int("depth", parent.Depth+1))
	seen := make(map[string]struct{}, len(anchors))

	for _, a := range anchors {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		link, reason, err := p.accept(ctx, base, parentHost, a)
		if err != nil {
			logger.Debug("skipping anchor", slog.String("error", err.Error()))
			res.Skipped[SkipParseFailed]++
			continue
		}
		if reason != "" {
			res.Skipped[reason]++
			continue
		}

		if link.Fingerprint == parentFP {
			res.Skipped[SkipSelf]++
			continue
		}
		if _, dup := seen[link.Fingerprint]; dup {
			res.Skipped[SkipDuplicate]++
			continue
		}
		seen[link.Fingerprint] = struct{}{}

		if err := p.record(ctx, parent, &link, &res); err != nil {
			res.Failed++
			logger.Warn("failed to record link",
				slog.String("link", link.URL),
				slog.String("error", err.Error()))
		}
		res.Children = append(res.Children, link)
	}
	return res, nil
}

// accept parses and filters one anchor. A non-empty reason rejects it.
func (p *Processor) accept(ctx context.Context, base *url.URL, parentHost string, a model.Anchor) (Child, SkipReason, error) {
	href, text, err := parseAnchor(a.HTML)
	if err != nil {
		return Child{}, "", err
	}

	text = cleanText(text, p.maxTextLength)
	if text == "" {
		return Child{}, SkipEmptyText, nil
	}

	u, ok, err := resolve(base, href)
	if err != nil {
		return Child{}, "", &ParseError{Markup: a.HTML, Err: err}
	}
	if !ok {
		return Child{}, SkipScheme, nil
	}
	if siteHost(u) != parentHost {
		return Child{}, SkipOffSite, nil
	}
	for _, m := range p.markers {
		if m != "" && strings.Contains(u.Path, m) {
			return Child{}, SkipPagination, nil
		}
	}
	if p.gate != nil && !p.gate.Allowed(ctx, u) {
		return Child{}, SkipDisallowed, nil
	}

	canonical := canonicalize(u)
	return Child{
		URL:         canonical,
		Fingerprint: model.Fingerprint(canonical),
		Text:        text,
	}, "", nil
}

// record inserts the link row and the edge from parent to its canonical row.
func (p *Processor) record(ctx context.Context, parent *model.CrawledURL, link *Child, res *Result) error {
	id, err := p.store.InsertURL(ctx, database.InsertURLParams{
		DomainID:    parent.DomainID,
		URL:         link.URL,
		Fingerprint: link.Fingerprint,
		Depth:       parent.Depth + 1,
		AnchorText:  link.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to insert URL: %w", err)
	}
	link.RowID = id
	res.Inserted++

	canonicalID, err := p.store.ResolveURLID(ctx, parent.DomainID, link.Fingerprint)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to resolve URL id: %w", err)
	}
	link.CanonicalID = canonicalID
	if parent.ID == 0 {
		return nil
	}

	created, err := p.store.RecordRelationship(ctx, &model.Relationship{
		DomainID:     parent.DomainID,
		ParentID:     parent.ID,
		ChildID:      canonicalID,
		ParentDepth:  parent.Depth,
		ChildDepth:   parent.Depth + 1,
		ParentText:   parent.AnchorText,
		DiscoveredAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to record relationship: %w", err)
	}
	if created {
		res.Edges++
	}
	return nil
}
