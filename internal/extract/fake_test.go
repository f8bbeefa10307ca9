package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/depthcrawl/internal/model"
)

// fakeSession is a scriptable Session. Nil hooks fall back to a static page
// with no controls and a fixed height.
type fakeSession struct {
	mu sync.Mutex

	navigateHook func(url string) error
	evalHook     func(js string, args []any) (any, error)
	elementHook  func(selector string) (Element, error)
	urlHook      func() string
	htmlHook     func() string

	current   string
	navigated []string
	lookups   []string
	evals     map[string]int
	closed    int
}

func newFakeSession() *fakeSession {
	return &fakeSession{evals: make(map[string]int)}
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	s.navigated = append(s.navigated, url)
	s.current = url
	hook := s.navigateHook
	s.mu.Unlock()
	if hook != nil {
		return hook(url)
	}
	return nil
}

func (s *fakeSession) Eval(_ context.Context, js string, args ...any) (json.RawMessage, error) {
	s.mu.Lock()
	s.evals[js]++
	hook := s.evalHook
	s.mu.Unlock()

	var (
		v   any
		err error
	)
	if hook != nil {
		v, err = hook(js, args)
	} else {
		v, err = defaultEval(js)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func defaultEval(js string) (any, error) {
	switch js {
	case scrollHeightJS:
		return 1000, nil
	case extractAndPruneJS, collectAnchorsJS:
		return []model.Anchor{}, nil
	default:
		return nil, nil
	}
}

func (s *fakeSession) Element(_ context.Context, selector string, _ time.Duration) (Element, error) {
	s.mu.Lock()
	s.lookups = append(s.lookups, selector)
	hook := s.elementHook
	s.mu.Unlock()
	if hook != nil {
		return hook(selector)
	}
	return nil, ErrElementNotFound
}

func (s *fakeSession) URL(context.Context) (string, error) {
	if s.urlHook != nil {
		return s.urlHook(), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	if s.htmlHook != nil {
		return s.htmlHook(), nil
	}
	return "<html><body>ok</body></html>", nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) evalCount(js string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evals[js]
}

func (s *fakeSession) lookedUp(selector string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lookups {
		if l == selector {
			return true
		}
	}
	return false
}

type fakeElement struct {
	clicks       int
	scriptClicks int
	onClick      func() error
	onScript     func() error
}

func (e *fakeElement) ScrollIntoView(context.Context) error { return nil }

func (e *fakeElement) Click(context.Context) error {
	e.clicks++
	if e.onClick != nil {
		return e.onClick()
	}
	return nil
}

func (e *fakeElement) ClickByScript(context.Context) error {
	e.scriptClicks++
	if e.onScript != nil {
		return e.onScript()
	}
	return nil
}

type fakeLauncher struct {
	session *fakeSession
	err     error
}

func (l *fakeLauncher) NewSession(context.Context) (Session, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

// fastOptions removes every delay from the protocol.
func fastOptions() Options {
	o := DefaultOptions()
	o.ScrollPause = 0
	o.LoadMoreWait = 0
	o.PaginationWait = 0
	o.NavigateSettle = 0
	o.InteractionDelay = 0
	o.ClickSettle = 0
	return o
}

func newTestEngine(s *fakeSession, opts ...Option) *Engine {
	all := append([]Option{
		WithOptions(fastOptions()),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	e, err := NewEngine(&fakeLauncher{session: s}, all...)
	if err != nil {
		panic(err)
	}
	return e
}

// anchors builds n distinct anchors whose markup starts with prefix.
func anchors(prefix string, n int) []model.Anchor {
	out := make([]model.Anchor, n)
	for i := range out {
		href := fmt.Sprintf("/%s/%d", prefix, i)
		out[i] = model.Anchor{
			Href: href,
			Text: fmt.Sprintf("%s %d", prefix, i),
			HTML: fmt.Sprintf(`<a href="%s">%s %d</a>`, href, prefix, i),
		}
	}
	return out
}
