package extract

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nao1215/depthcrawl/internal/model"
)

// loadMorePhase clicks load-more controls until MaxLoadMoreFailures
// consecutive attempts fail to grow the page.
func (x *extraction) loadMorePhase(ctx context.Context) {
	failures := 0
	for failures < x.opts.MaxLoadMoreFailures {
		if ctx.Err() != nil {
			return
		}
		if x.opts.MaxLoadMoreClicks > 0 && x.stats.LoadMoreClicks >= x.opts.MaxLoadMoreClicks {
			x.logger.Debug("load-more click budget reached")
			return
		}

		if x.clickLoadMore(ctx) {
			x.stats.LoadMoreClicks++
			failures = 0
			if sleep(ctx, x.opts.InteractionDelay) != nil {
				return
			}
			continue
		}

		failures++
		x.logger.Debug("load-more attempt failed",
			slog.Int("failures", failures),
			slog.Int("max_failures", x.opts.MaxLoadMoreFailures))
		if failures < x.opts.MaxLoadMoreFailures {
			if sleep(ctx, x.opts.ClickSettle) != nil {
				return
			}
		}
	}
}

// clickLoadMore reports whether a load-more click made the page taller.
func (x *extraction) clickLoadMore(ctx context.Context) bool {
	el, sel, err := x.findFirst(ctx, x.rules.LoadMoreSelectors, x.opts.LoadMoreWait)
	if err != nil {
		return false
	}

	before, err := x.height(ctx)
	if err != nil {
		before = 0
	}

	if err := x.click(ctx, el); err != nil {
		x.absorb("load-more", err)
		return false
	}
	if sleep(ctx, x.opts.ClickSettle) != nil {
		return false
	}

	after, err := x.height(ctx)
	if err != nil {
		// Unmeasurable: count the click as productive.
		x.absorb("load-more", err)
		return true
	}
	if after <= before {
		x.logger.Debug("load-more click did not grow the page", slog.String("selector", sel))
		return false
	}
	return true
}

// scrollPhase scrolls to the bottom until the height stops changing or the
// scroll budget is spent, collecting anchors after every scroll.
func (x *extraction) scrollPhase(ctx context.Context, last int64) {
	for x.opts.MaxScrolls <= 0 || x.stats.Scrolls < x.opts.MaxScrolls {
		if ctx.Err() != nil {
			return
		}

		if err := x.eval(ctx, nil, scrollToBottomJS); err != nil {
			x.absorb("scroll", err)
		} else {
			if sleep(ctx, x.opts.ScrollPause) != nil {
				return
			}
			anchors, err := x.extractAndPrune(ctx)
			if err != nil {
				x.absorb("scroll", err)
			} else {
				x.anchors.Add(anchors...)
			}
		}

		current, err := x.height(ctx)
		if err != nil {
			x.absorb("scroll", err)
			return
		}
		x.stats.Scrolls++

		if current == last {
			x.logger.Debug("reached the bottom of the page", slog.Int("scrolls", x.stats.Scrolls))
			return
		}
		last = current
	}
	x.logger.Debug("scroll budget reached", slog.Int("scrolls", x.stats.Scrolls))
}

// paginationPhase tries click pagination and falls back to URL pagination
// when clicking never reached page two.
//
// New-link counts are taken against the anchors seen during pagination
// only. The first control usually addresses the current page, whose anchors
// the scroll phase already holds.
func (x *extraction) paginationPhase(ctx context.Context) {
	if sleep(ctx, x.opts.ClickSettle) != nil {
		return
	}

	seen := model.NewAnchorSet()
	if x.clickPagination(ctx, seen) {
		return
	}
	if ctx.Err() != nil {
		return
	}
	x.urlPagination(ctx, seen)
}

// clickPagination reports whether it advanced past page one.
func (x *extraction) clickPagination(ctx context.Context, seen *model.AnchorSet) bool {
	advanced := false
	for page := 1; page <= x.opts.MaxPaginationPages; page++ {
		if ctx.Err() != nil {
			return advanced
		}
		if !x.clickPage(ctx, page) {
			x.logger.Debug("no control for page", slog.Int("page", page))
			return advanced
		}
		if page > 1 {
			advanced = true
		}
		x.stats.ClickPages++

		anchors, err := x.extractAndPrune(ctx)
		if err != nil {
			x.absorb("click-pagination", err)
			return advanced
		}
		added := seen.Add(anchors...)
		x.anchors.Add(anchors...)

		x.logger.Debug("paginated by click",
			slog.Int("page", page),
			slog.Int("anchors", len(anchors)),
			slog.Int("new", added))

		if added <= x.opts.ClickNewLinkThreshold {
			return advanced
		}
	}
	return advanced
}

// clickPage clicks the control addressing page n.
func (x *extraction) clickPage(ctx context.Context, n int) bool {
	el, _, err := x.findFirst(ctx, x.rules.pageSelectors(n), x.opts.PaginationWait)
	if err != nil {
		return false
	}
	if err := x.click(ctx, el); err != nil {
		x.absorb("click-pagination", err)
		return false
	}
	return sleep(ctx, x.opts.ClickSettle) == nil
}

// pageLink is an anchor read without pruning, used to find pagination links.
type pageLink struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// urlPagination synthesizes page URLs from a pagination link on the current
// page and visits them.
func (x *extraction) urlPagination(ctx context.Context, seen *model.AnchorSet) {
	var links []pageLink
	if err := x.eval(ctx, &links, collectAnchorsJS); err != nil {
		x.absorb("url-pagination", err)
		return
	}

	candidates := make([]pageLink, 0, len(links))
	for _, l := range links {
		if x.rules.isPaginationLink(l.Href) {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		x.logger.Debug("no pagination links found")
		return
	}

	total := estimatePageCount(candidates)
	template, ok := x.pickTemplate(candidates)
	if !ok {
		x.logger.Debug("no page number token in pagination links")
		return
	}

	x.logger.Debug("paginating by URL",
		slog.String("template", template),
		slog.Int("estimated_pages", total))

	if total < x.opts.URLPageThreshold {
		x.sequentialPages(ctx, template, seen)
		return
	}
	x.fullRange(ctx, template, total)
}

// estimatePageCount returns the highest page number shown as link text, or 1.
func estimatePageCount(links []pageLink) int {
	total := 1
	for _, l := range links {
		text := strings.ReplaceAll(strings.TrimSpace(l.Text), ",", "")
		if text == "" || strings.TrimLeft(text, "0123456789") != "" {
			continue
		}
		if n, err := strconv.Atoi(text); err == nil && n > total {
			total = n
		}
	}
	return total
}

// pickTemplate returns the first link, or the first within the search window
// that carries a page number token.
func (x *extraction) pickTemplate(links []pageLink) (string, bool) {
	if x.rules.pageToken.MatchString(links[0].Href) {
		return links[0].Href, true
	}
	window := min(x.opts.TemplateSearchWindow, len(links))
	for _, l := range links[:window] {
		if x.rules.pageToken.MatchString(l.Href) {
			return l.Href, true
		}
	}
	return "", false
}

// sequentialPages visits page 2, 3, ... until a not-found page, a redirect,
// or a page with too few new anchors.
func (x *extraction) sequentialPages(ctx context.Context, template string, seen *model.AnchorSet) {
	for page := 2; page-1 <= x.opts.MaxPaginationPages; page++ {
		if ctx.Err() != nil {
			return
		}
		pageURL := x.rules.pageURL(template, page)
		if !x.openPage(ctx, pageURL) {
			return
		}
		if x.isMissingPage(ctx, pageURL) {
			x.logger.Debug("page not found", slog.Int("page", page), slog.String("page_url", pageURL))
			return
		}

		anchors, err := x.extractAndPrune(ctx)
		if err != nil {
			x.absorb("url-pagination", err)
			return
		}
		x.stats.URLPages++
		added := seen.Add(anchors...)
		x.anchors.Add(anchors...)

		x.logger.Debug("paginated by URL",
			slog.Int("page", page),
			slog.Int("anchors", len(anchors)),
			slog.Int("new", added))

		if added < x.opts.URLNewLinkThreshold {
			return
		}
	}
}

// fullRange visits every page from 2 to total without early stopping.
func (x *extraction) fullRange(ctx context.Context, template string, total int) {
	last := min(total, x.opts.MaxPaginationPages+1)
	for page := 2; page <= last; page++ {
		if ctx.Err() != nil {
			return
		}
		pageURL := x.rules.pageURL(template, page)
		if !x.openPage(ctx, pageURL) {
			continue
		}
		anchors, err := x.extractAndPrune(ctx)
		if err != nil {
			x.absorb("url-pagination", err)
			continue
		}
		x.stats.URLPages++
		x.anchors.Add(anchors...)
	}
}

func (x *extraction) openPage(ctx context.Context, pageURL string) bool {
	if err := x.session.Navigate(ctx, pageURL); err != nil {
		x.absorb("url-pagination", err)
		return false
	}
	return sleep(ctx, x.opts.ClickSettle) == nil
}

// isMissingPage reports a not-found marker or a redirect away from pageURL.
// A page that cannot be inspected counts as missing.
func (x *extraction) isMissingPage(ctx context.Context, pageURL string) bool {
	markup, err := x.session.HTML(ctx)
	if err != nil {
		x.absorb("url-pagination", err)
		return true
	}
	if x.rules.isNotFound(markup) {
		return true
	}
	current, err := x.session.URL(ctx)
	if err != nil {
		x.absorb("url-pagination", err)
		return true
	}
	return current != pageURL
}
