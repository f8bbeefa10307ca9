package model

import (
	"net/url"
	"strings"
	"time"
)

// DefaultMaxDepth is the crawl depth applied to seeds that do not override it.
const DefaultMaxDepth = 5

// DomainStatus is the lifecycle state of a SeedDomain.
// Transitions only move forward: pending, in_progress, completed.
type DomainStatus string

const (
	// DomainPending means the domain has never been claimed.
	DomainPending DomainStatus = "pending"
	// DomainInProgress means a run has claimed the domain.
	DomainInProgress DomainStatus = "in_progress"
	// DomainCompleted is terminal.
	DomainCompleted DomainStatus = "completed"
)

// String returns the stored representation of the status.
func (s DomainStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are allowed.
func (s DomainStatus) IsTerminal() bool {
	return s == DomainCompleted
}

// SeedDomain is a configured crawl target.
type SeedDomain struct {
	// ID is the generated row identifier.
	ID int64

	// Name is the bare host name, e.g. "example.com". It is unique.
	Name string

	// Status is the lifecycle state.
	Status DomainStatus

	// MaxDepth is the depth at which the inner crawl loop stops claiming URLs.
	MaxDepth int

	// CurrentDepth is the highest depth processed so far. It never decreases.
	CurrentDepth int

	// UniqueLinks is the number of distinct fingerprints discovered for the domain.
	UniqueLinks int

	// ClaimedBy is the run identifier that currently owns the domain.
	ClaimedBy string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// RootURL returns the URL a domain's crawl starts from.
func (d *SeedDomain) RootURL() string {
	return "https://" + d.Name + "/"
}

// Seed is one entry of the seed configuration.
type Seed struct {
	// Domain is the host name to crawl.
	Domain string `yaml:"domain" toml:"domain"`

	// MaxDepth overrides DefaultMaxDepth when positive.
	MaxDepth int `yaml:"max_depth" toml:"max_depth"`
}

// Depth returns the effective max depth of the seed.
func (s Seed) Depth() int {
	if s.MaxDepth > 0 {
		return s.MaxDepth
	}
	return DefaultMaxDepth
}

// NormalizeDomain reduces user input such as "https://Example.com/path" to
// the bare lowercase host "example.com". It returns an empty string when no
// host can be found.
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}
