package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PagePlaceholder is replaced by the page number in PageControlSelectors.
const PagePlaceholder = "{page}"

// DefaultPageTokenPattern matches the page number token of a pagination URL.
// The first group is kept, the second is replaced by the page number.
const DefaultPageTokenPattern = `(paged=|page[/=]|p=)(\d+)`

// ParamRule recognizes a pagination link by substrings of its href.
// All Contains entries must be present.
type ParamRule struct {
	Name     string   `yaml:"name" toml:"name"`
	Contains []string `yaml:"contains" toml:"contains"`
}

// Match reports whether href satisfies the rule.
func (r ParamRule) Match(href string) bool {
	if len(r.Contains) == 0 {
		return false
	}
	for _, s := range r.Contains {
		if !strings.Contains(href, s) {
			return false
		}
	}
	return true
}

// Rules are the ordered matcher lists the engine applies. Earlier entries win.
type Rules struct {
	// LoadMoreSelectors locate "load more" controls.
	LoadMoreSelectors []string

	// PageControlSelectors locate the control for a page number. PagePlaceholder
	// is substituted before matching.
	PageControlSelectors []string

	// PaginationParams recognize links that address another page of a listing.
	PaginationParams []ParamRule

	// PageTokenPattern locates the page number inside a pagination link.
	PageTokenPattern string

	// NotFoundMarkers are lowercase phrases that identify an error page.
	NotFoundMarkers []string
}

// DefaultRules returns the built-in site conventions.
func DefaultRules() Rules {
	return Rules{
		LoadMoreSelectors: []string{
			"[onclick*='loadMore']",
			"button.ant-btn.ant-btn-primary.w-fit",
			"button.load__moreGrid",
			"a.td_ajax_load_more",
			"button#btnLoadMore",
		},
		PageControlSelectors: []string{
			"a[id='" + PagePlaceholder + "']",
			"li.next a[href]",
		},
		PaginationParams: []ParamRule{
			{Name: "wordpress-category", Contains: []string{"cat=", "paged="}},
			{Name: "category-page", Contains: []string{"category_id=", "page="}},
			{Name: "page-path", Contains: []string{"/page/"}},
			{Name: "page-query", Contains: []string{"page="}},
			{Name: "per-page", Contains: []string{"per=", "p="}},
		},
		PageTokenPattern: DefaultPageTokenPattern,
		NotFoundMarkers: []string{
			"page not found",
			"oops! something went wrong here.",
		},
	}
}

// compiledRules is Rules with the token pattern compiled.
type compiledRules struct {
	Rules
	pageToken *regexp.Regexp
}

func (r Rules) compile() (compiledRules, error) {
	pattern := r.PageTokenPattern
	if pattern == "" {
		pattern = DefaultPageTokenPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return compiledRules{}, fmt.Errorf("invalid page token pattern %q: %w", pattern, err)
	}
	if re.NumSubexp() < 2 {
		return compiledRules{}, fmt.Errorf("page token pattern %q needs two groups (prefix and number)", pattern)
	}
	markers := make([]string, len(r.NotFoundMarkers))
	for i, m := range r.NotFoundMarkers {
		markers[i] = strings.ToLower(m)
	}
	r.NotFoundMarkers = markers
	return compiledRules{Rules: r, pageToken: re}, nil
}

// pageSelectors returns the page control selectors for page n.
func (r compiledRules) pageSelectors(n int) []string {
	page := strconv.Itoa(n)
	out := make([]string, len(r.PageControlSelectors))
	for i, sel := range r.PageControlSelectors {
		out[i] = strings.ReplaceAll(sel, PagePlaceholder, page)
	}
	return out
}

// isPaginationLink reports whether href matches any pagination rule.
func (r compiledRules) isPaginationLink(href string) bool {
	for _, rule := range r.PaginationParams {
		if rule.Match(href) {
			return true
		}
	}
	return false
}

// pageURL substitutes every page number token in template with n.
func (r compiledRules) pageURL(template string, n int) string {
	return r.pageToken.ReplaceAllString(template, "${1}"+strconv.Itoa(n))
}

// isNotFound reports whether lowercase page markup contains a not-found marker.
func (r compiledRules) isNotFound(markup string) bool {
	lower := strings.ToLower(markup)
	for _, m := range r.NotFoundMarkers {
		if m != "" && strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
