package extract

import "time"

// Default tuning values for the extraction protocol.
const (
	DefaultScrollPause           = 7 * time.Second
	DefaultMaxScrolls            = 200
	DefaultLoadMoreWait          = 10 * time.Second
	DefaultMaxLoadMoreFailures   = 1
	DefaultMaxLoadMoreClicks     = 500
	DefaultPaginationWait        = 2 * time.Second
	DefaultNavigateSettle        = 2500 * time.Millisecond
	DefaultInteractionDelay      = 1 * time.Second
	DefaultClickSettle           = 1500 * time.Millisecond
	DefaultClickNewLinkThreshold = 3
	DefaultURLNewLinkThreshold   = 5
	DefaultURLPageThreshold      = 31
	DefaultMaxPaginationPages    = 1000
	DefaultPruneBuffer           = 5000
	DefaultTemplateSearchWindow  = 10
	DefaultScriptAttempts        = 3
	DefaultScriptRetryDelay      = 1 * time.Second
)

// Options tunes the extraction protocol.
type Options struct {
	// ScrollPause is the wait after each scroll for lazy content to load.
	ScrollPause time.Duration

	// MaxScrolls bounds the infinite-scroll phase. Zero means unbounded.
	MaxScrolls int

	// LoadMoreWait is how long each load-more selector is waited for.
	LoadMoreWait time.Duration

	// MaxLoadMoreFailures ends the load-more phase after that many
	// consecutive unsuccessful attempts.
	MaxLoadMoreFailures int

	// MaxLoadMoreClicks bounds successful load-more clicks.
	MaxLoadMoreClicks int

	// PaginationWait is how long each page control selector is waited for.
	PaginationWait time.Duration

	// NavigateSettle is the wait after the initial navigation.
	NavigateSettle time.Duration

	// InteractionDelay is the wait after scrolling a control into view.
	InteractionDelay time.Duration

	// ClickSettle is the wait after a click or a pagination navigation.
	ClickSettle time.Duration

	// ClickNewLinkThreshold stops click pagination when a page adds at most
	// this many new anchors.
	ClickNewLinkThreshold int

	// URLNewLinkThreshold stops sequential URL pagination when a page adds
	// fewer than this many new anchors.
	URLNewLinkThreshold int

	// URLPageThreshold is the estimated page count from which URL pagination
	// visits the whole range without early stopping.
	URLPageThreshold int

	// MaxPaginationPages bounds every pagination loop.
	MaxPaginationPages int

	// PruneBuffer is the height in pixels above the viewport kept intact
	// while pruning.
	PruneBuffer int

	// TemplateSearchWindow is how many pagination links are inspected for a
	// page number token.
	TemplateSearchWindow int
}

// DefaultOptions returns the tuned defaults.
func DefaultOptions() Options {
	return Options{
		ScrollPause:           DefaultScrollPause,
		MaxScrolls:            DefaultMaxScrolls,
		LoadMoreWait:          DefaultLoadMoreWait,
		MaxLoadMoreFailures:   DefaultMaxLoadMoreFailures,
		MaxLoadMoreClicks:     DefaultMaxLoadMoreClicks,
		PaginationWait:        DefaultPaginationWait,
		NavigateSettle:        DefaultNavigateSettle,
		InteractionDelay:      DefaultInteractionDelay,
		ClickSettle:           DefaultClickSettle,
		ClickNewLinkThreshold: DefaultClickNewLinkThreshold,
		URLNewLinkThreshold:   DefaultURLNewLinkThreshold,
		URLPageThreshold:      DefaultURLPageThreshold,
		MaxPaginationPages:    DefaultMaxPaginationPages,
		PruneBuffer:           DefaultPruneBuffer,
		TemplateSearchWindow:  DefaultTemplateSearchWindow,
	}
}
