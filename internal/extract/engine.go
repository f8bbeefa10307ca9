package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/depthcrawl/internal/model"
)

// ExtractionError reports a failure that prevented extraction of a URL.
type ExtractionError struct {
	URL   string
	Phase string
	Err   error
}

// Error implements error.
func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.URL, e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Stats counts what each phase did.
type Stats struct {
	LoadMoreClicks int
	Scrolls        int
	ClickPages     int
	URLPages       int

	// PhaseErrors counts errors that were absorbed by a phase.
	PhaseErrors int
}

// Result is the outcome of one Extract call.
type Result struct {
	// Success is false only when the page could not be opened or measured.
	Success bool

	// Anchors holds every distinct anchor collected, in discovery order.
	Anchors []model.Anchor

	Stats Stats

	// Err is set when Success is false.
	Err error
}

// Engine runs the extraction protocol.
type Engine struct {
	launcher Launcher
	rules    compiledRules
	opts     Options
	retry    RetryPolicy
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	rules  Rules
	opts   Options
	retry  RetryPolicy
	logger *slog.Logger
}

// WithRules replaces the built-in site conventions.
func WithRules(r Rules) Option {
	return func(c *engineConfig) {
		c.rules = r
	}
}

// WithOptions replaces the default tuning.
func WithOptions(o Options) Option {
	return func(c *engineConfig) {
		c.opts = o
	}
}

// WithRetryPolicy sets the retry policy for script evaluation and element waits.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *engineConfig) {
		c.retry = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = l
	}
}

// NewEngine creates an Engine that opens sessions with launcher.
func NewEngine(launcher Launcher, opts ...Option) (*Engine, error) {
	cfg := engineConfig{
		rules:  DefaultRules(),
		opts:   DefaultOptions(),
		retry:  DefaultRetryPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	rules, err := cfg.rules.compile()
	if err != nil {
		return nil, err
	}

	return &Engine{
		launcher: launcher,
		rules:    rules,
		opts:     cfg.opts,
		retry:    cfg.retry,
		logger:   cfg.logger,
	}, nil
}

// Extract opens a session on target and collects anchors from it.
// The session is closed before Extract returns.
func (e *Engine) Extract(ctx context.Context, target string) Result {
	logger := e.logger.With(slog.String("url", target))

	session, err := e.launcher.NewSession(ctx)
	if err != nil {
		return Result{Err: &ExtractionError{URL: target, Phase: "session", Err: err}}
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close browser session", slog.String("error", err.Error()))
		}
	}()

	run := &extraction{
		Engine:  e,
		session: session,
		target:  target,
		anchors: model.NewAnchorSet(),
		logger:  logger,
	}
	return run.execute(ctx)
}

// extraction is the state of one Extract call.
type extraction struct {
	*Engine
	session Session
	target  string
	anchors *model.AnchorSet
	stats   Stats
	logger  *slog.Logger
}

func (x *extraction) execute(ctx context.Context) Result {
	if err := x.session.Navigate(ctx, x.target); err != nil {
		return x.fail("navigate", err)
	}
	if err := sleep(ctx, x.opts.NavigateSettle); err != nil {
		return x.fail("navigate", err)
	}

	x.loadMorePhase(ctx)

	last, err := x.height(ctx)
	if err != nil {
		return x.fail("measure", err)
	}

	x.scrollPhase(ctx, last)
	x.paginationPhase(ctx)

	x.logger.Debug("extraction finished",
		slog.Int("anchors", x.anchors.Len()),
		slog.Int("load_more_clicks", x.stats.LoadMoreClicks),
		slog.Int("scrolls", x.stats.Scrolls),
		slog.Int("click_pages", x.stats.ClickPages),
		slog.Int("url_pages", x.stats.URLPages),
	)

	return Result{
		Success: true,
		Anchors: x.anchors.Slice(),
		Stats:   x.stats,
	}
}

func (x *extraction) fail(phase string, err error) Result {
	return Result{
		Anchors: x.anchors.Slice(),
		Stats:   x.stats,
		Err:     &ExtractionError{URL: x.target, Phase: phase, Err: err},
	}
}

// absorb logs an error a phase recovers from.
func (x *extraction) absorb(phase string, err error) {
	x.stats.PhaseErrors++
	x.logger.Debug("extraction step failed",
		slog.String("phase", phase),
		slog.String("error", err.Error()))
}

// eval runs js under the retry policy and decodes the result into out.
func (x *extraction) eval(ctx context.Context, out any, js string, args ...any) error {
	var raw json.RawMessage
	err := x.retry.Do(ctx, func() error {
		var err error
		raw, err = x.session.Eval(ctx, js, args...)
		return err
	})
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

func (x *extraction) height(ctx context.Context) (int64, error) {
	var h float64
	if err := x.eval(ctx, &h, scrollHeightJS); err != nil {
		return 0, err
	}
	return int64(h), nil
}

// extractAndPrune collects the anchors present now and prunes the DOM.
func (x *extraction) extractAndPrune(ctx context.Context) ([]model.Anchor, error) {
	var anchors []model.Anchor
	if err := x.eval(ctx, &anchors, extractAndPruneJS, x.opts.PruneBuffer); err != nil {
		return nil, err
	}
	return anchors, nil
}

// findFirst waits for each selector in order and returns the first match.
func (x *extraction) findFirst(ctx context.Context, selectors []string, wait time.Duration) (Element, string, error) {
	for _, sel := range selectors {
		var el Element
		err := x.retry.Do(ctx, func() error {
			var err error
			el, err = x.session.Element(ctx, sel, wait)
			return err
		})
		if err == nil {
			return el, sel, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		if !errors.Is(err, ErrElementNotFound) {
			x.absorb("find "+sel, err)
		}
	}
	return nil, "", ErrElementNotFound
}

// click scrolls el into view and clicks it, falling back to a script click
// when the trusted click is intercepted.
func (x *extraction) click(ctx context.Context, el Element) error {
	if err := el.ScrollIntoView(ctx); err != nil {
		return fmt.Errorf("failed to scroll into view: %w", err)
	}
	if err := sleep(ctx, x.opts.InteractionDelay); err != nil {
		return err
	}

	err := el.Click(ctx)
	if errors.Is(err, ErrClickIntercepted) {
		x.logger.Debug("click intercepted, clicking by script")
		err = el.ClickByScript(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to click: %w", err)
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
