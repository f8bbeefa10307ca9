package linkproc

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/PuerkitoBio/purell"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxTextLength is the longest anchor text kept, in runes.
const DefaultMaxTextLength = 100

// normalizeFlags canonicalize a URL without changing what it addresses.
const normalizeFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagRemoveDefaultPort |
	purell.FlagRemoveFragment |
	purell.FlagDecodeUnnecessaryEscapes |
	purell.FlagRemoveDuplicateSlashes |
	purell.FlagRemoveDotSegments

var (
	errNoAnchor = errors.New("no anchor element with href")
	errNoHost   = errors.New("URL has no host")
)

// ParseError reports an anchor fragment that could not be understood.
type ParseError struct {
	Markup string
	Err    error
}

// Error implements error.
func (e *ParseError) Error() string {
	markup := e.Markup
	if len(markup) > 80 {
		markup = markup[:80] + "..."
	}
	return fmt.Sprintf("parse anchor %q: %v", markup, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// parseAnchor returns the href attribute and text content of the first
// anchor in markup.
func parseAnchor(markup string) (href, text string, err error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), bodyContext)
	if err != nil {
		return "", "", &ParseError{Markup: markup, Err: err}
	}

	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	a := goquery.NewDocumentFromNode(root).Find("a[href]").First()
	if a.Length() == 0 {
		return "", "", &ParseError{Markup: markup, Err: errNoAnchor}
	}
	href, _ = a.Attr("href")
	return strings.TrimSpace(href), a.Text(), nil
}

// cleanText collapses whitespace, applies NFC and truncates to limit runes.
func cleanText(s string, limit int) string {
	s = norm.NFC.String(strings.Join(strings.Fields(s), " "))
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimSpace(string(r[:limit]))
}

// resolve makes href absolute against base. ok is false for links that are
// not http(s), such as javascript: and mailto: links.
func resolve(base *url.URL, href string) (u *url.URL, ok bool, err error) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false, fmt.Errorf("invalid href %q: %w", href, err)
	}
	u = base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false, nil
	}
	if u.Host == "" {
		return nil, false, errNoHost
	}
	return u, true, nil
}

// canonicalize returns the normalized form of u used for storage and
// fingerprinting.
func canonicalize(u *url.URL) string {
	c := *u
	if c.Path == "" {
		c.Path = "/"
	}
	return purell.NormalizeURL(&c, normalizeFlags)
}

// siteHost returns the lowercase host name without a leading "www.".
func siteHost(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
