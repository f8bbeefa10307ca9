package model

import (
	"crypto/sha1" //nolint:gosec // fingerprints must stay compatible with existing crawl databases
	"encoding/hex"
	"time"
)

// URLStatus is the processing state of a CrawledURL.
// Transitions: not_visited, in_progress, then visited or error.
type URLStatus string

const (
	// URLNotVisited means the URL is waiting in the frontier.
	URLNotVisited URLStatus = "not_visited"
	// URLInProgress means a worker has claimed the URL.
	URLInProgress URLStatus = "in_progress"
	// URLVisited is terminal: extraction finished.
	URLVisited URLStatus = "visited"
	// URLError is terminal: extraction failed.
	URLError URLStatus = "error"
)

// String returns the stored representation of the status.
func (s URLStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the URL will never be claimed again.
func (s URLStatus) IsTerminal() bool {
	return s == URLVisited || s == URLError
}

// AllURLStatuses lists every URL status in lifecycle order.
func AllURLStatuses() []URLStatus {
	return []URLStatus{URLNotVisited, URLInProgress, URLVisited, URLError}
}

// CrawledURL is one discovered URL row. The same URL may appear in several
// rows when it is reached from different parents.
type CrawledURL struct {
	ID          int64
	DomainID    int64
	URL         string
	Fingerprint string
	Depth       int
	Status      URLStatus

	// AnchorText is the visible text of the anchor the URL was discovered with.
	// It is empty for domain roots.
	AnchorText string

	// ClaimedBy is the run identifier of the last claim.
	ClaimedBy string

	DiscoveredAt time.Time
	ClaimedAt    *time.Time
}

// Fingerprint returns the stable identity hash of an absolute URL.
func Fingerprint(absoluteURL string) string {
	sum := sha1.Sum([]byte(absoluteURL)) //nolint:gosec // not used for security
	return hex.EncodeToString(sum[:])
}
