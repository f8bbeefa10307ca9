package report

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/depthcrawl/internal/database"
	"github.com/nao1215/depthcrawl/internal/model"
)

// Source is the read side of the frontier store.
type Source interface {
	ListDomains(ctx context.Context) ([]database.DomainSummary, error)
	CountRelationships(ctx context.Context, domainID int64) (int, error)
}

// Status is a point-in-time view of the whole crawl.
type Status struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Domains     []DomainRow `json:"domains"`
}

// DomainRow is the progress of one seed domain.
type DomainRow struct {
	Name         string                  `json:"name"`
	Status       model.DomainStatus      `json:"status"`
	MaxDepth     int                     `json:"max_depth"`
	CurrentDepth int                     `json:"current_depth"`
	UniqueLinks  int                     `json:"unique_links"`
	Edges        int                     `json:"edges"`
	URLs         map[model.URLStatus]int `json:"urls"`
	StartedAt    *time.Time              `json:"started_at,omitempty"`
	CompletedAt  *time.Time              `json:"completed_at,omitempty"`
}

// TotalURLs returns the number of URL rows of the domain.
func (r DomainRow) TotalURLs() int {
	var n int
	for _, c := range r.URLs {
		n += c
	}
	return n
}

// Build collects the status of every domain known to src.
func Build(ctx context.Context, src Source, now time.Time) (*Status, error) {
	summaries, err := src.ListDomains(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	st := &Status{
		GeneratedAt: now,
		Domains:     make([]DomainRow, 0, len(summaries)),
	}
	for _, s := range summaries {
		edges, err := src.CountRelationships(ctx, s.Domain.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count relationships of %s: %w", s.Domain.Name, err)
		}

		urls := make(map[model.URLStatus]int, len(model.AllURLStatuses()))
		for _, status := range model.AllURLStatuses() {
			urls[status] = s.Counts[status]
		}

		st.Domains = append(st.Domains, DomainRow{
			Name:         s.Domain.Name,
			Status:       s.Domain.Status,
			MaxDepth:     s.Domain.MaxDepth,
			CurrentDepth: s.Domain.CurrentDepth,
			UniqueLinks:  s.Domain.UniqueLinks,
			Edges:        edges,
			URLs:         urls,
			StartedAt:    s.Domain.StartedAt,
			CompletedAt:  s.Domain.CompletedAt,
		})
	}
	return st, nil
}

// URLTotals sums URL status counts over all domains.
func (s *Status) URLTotals() map[model.URLStatus]int {
	totals := make(map[model.URLStatus]int, len(model.AllURLStatuses()))
	for _, d := range s.Domains {
		for status, n := range d.URLs {
			totals[status] += n
		}
	}
	return totals
}

// DomainTotals counts domains per lifecycle state.
func (s *Status) DomainTotals() map[model.DomainStatus]int {
	totals := make(map[model.DomainStatus]int, 3)
	for _, d := range s.Domains {
		totals[d.Status]++
	}
	return totals
}
