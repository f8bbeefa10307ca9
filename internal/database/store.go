package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/depthcrawl/internal/model"
)

var (
	// ErrNoDomain is returned by ClaimNextDomain when no domain is eligible.
	ErrNoDomain = errors.New("no domain available")

	// ErrNoURL is returned by ClaimNextURL when the domain's frontier is empty.
	ErrNoURL = errors.New("no URL available in frontier")

	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
)

// StorageError reports a failed store operation.
type StorageError struct {
	// Op is the store operation that failed, e.g. "claim_next_url".
	Op  string
	Err error
}

// Error implements error.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// InsertURLParams describes a newly discovered URL.
type InsertURLParams struct {
	DomainID    int64
	URL         string
	Fingerprint string
	Depth       int
	AnchorText  string
}

// DomainSummary is one domain together with its URL status breakdown.
type DomainSummary struct {
	Domain model.SeedDomain
	Counts map[model.URLStatus]int
}

// Store is the crawl frontier.
type Store interface {
	// UpsertSeeds inserts seed domains, leaving existing names untouched.
	// It returns how many rows were created.
	UpsertSeeds(ctx context.Context, seeds []model.Seed) (int, error)

	// ClaimNextDomain claims one pending domain, or an in_progress domain
	// whose claim lease another run let expire, and marks it in_progress.
	ClaimNextDomain(ctx context.Context, runID string) (*model.SeedDomain, error)

	// SeedRootExists reports whether a URL with the fingerprint exists for the domain.
	SeedRootExists(ctx context.Context, domainID int64, fingerprint string) (bool, error)

	// InsertRoot records the domain's root URL at depth 0.
	InsertRoot(ctx context.Context, domain *model.SeedDomain) (int64, error)

	// ClaimNextURL claims the lowest-depth claimable URL of a domain.
	ClaimNextURL(ctx context.Context, domainID int64, runID string) (*model.CrawledURL, error)

	// RenewClaims extends the lease of every in_progress row runID holds.
	RenewClaims(ctx context.Context, runID string) error

	// IsVisited reports whether a row other than excludeID with the same
	// fingerprint has already been visited.
	IsVisited(ctx context.Context, domainID int64, fingerprint string, excludeID int64) (bool, error)

	// InsertURL inserts a URL row and refreshes the domain's distinct link count.
	InsertURL(ctx context.Context, p InsertURLParams) (int64, error)

	// ResolveURLID returns the earliest row id recorded for a fingerprint.
	ResolveURLID(ctx context.Context, domainID int64, fingerprint string) (int64, error)

	// MarkVisited and MarkError finish an in_progress URL.
	MarkVisited(ctx context.Context, urlID int64) error
	MarkError(ctx context.Context, urlID int64) error

	// UpdateDomainDepth raises the domain's current depth; it never lowers it.
	UpdateDomainDepth(ctx context.Context, domainID int64, depth int) error

	// RecordRelationship inserts an edge unless the (parent, child) pair exists.
	RecordRelationship(ctx context.Context, rel *model.Relationship) (bool, error)

	// FinalizeDomain marks the domain completed.
	FinalizeDomain(ctx context.Context, domainID int64) error

	// ListDomains returns every domain with its URL status counts.
	ListDomains(ctx context.Context) ([]DomainSummary, error)

	// CountRelationships returns the number of edges recorded for a domain.
	CountRelationships(ctx context.Context, domainID int64) (int, error)

	Close() error
}
