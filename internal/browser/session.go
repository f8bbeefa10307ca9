package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nao1215/depthcrawl/internal/extract"
)

// session is one browser tab.
type session struct {
	page *rod.Page
	cfg  Config
}

func (s *session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx).Timeout(s.cfg.PageLoadTimeout)
	defer p.CancelTimeout()

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for load of %s: %w", url, err)
	}
	return nil
}

func (s *session) Eval(ctx context.Context, js string, args ...any) (json.RawMessage, error) {
	p := s.page.Context(ctx).Timeout(s.cfg.ScriptTimeout)
	defer p.CancelTimeout()

	res, err := p.Eval(js, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode script result: %w", err)
	}
	return raw, nil
}

func (s *session) Element(ctx context.Context, selector string, timeout time.Duration) (extract.Element, error) {
	p := s.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	// Interactable means visible, laid out and not covered by another element.
	el, err := p.Element(selector)
	if err == nil {
		_, err = el.WaitInteractable()
	}
	if err != nil {
		return nil, elementError(ctx, selector, err)
	}
	return &element{el: el}, nil
}

// elementError maps a wait that ran out of time to ErrElementNotFound.
func elementError(ctx context.Context, selector string, err error) error {
	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) ||
		(errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		return fmt.Errorf("%w: %s", extract.ErrElementNotFound, selector)
	}
	return fmt.Errorf("failed to find %s: %w", selector, err)
}

func (s *session) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

func (s *session) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page markup: %w", err)
	}
	return html, nil
}

func (s *session) Close() error {
	if err := s.page.Close(); err != nil {
		return fmt.Errorf("failed to close tab: %w", err)
	}
	return nil
}

// element is a DOM element found in a session. It is rebound to the caller's
// context on every call.
type element struct {
	el *rod.Element
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	return e.el.Context(ctx).ScrollIntoView()
}

func (e *element) Click(ctx context.Context) error {
	err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
	if err != nil {
		return clickError(err)
	}
	return nil
}

// clickError maps a click that landed on another element to ErrClickIntercepted.
func clickError(err error) error {
	var (
		covered        *rod.CoveredError
		notInteractive *rod.NotInteractableError
	)
	if errors.As(err, &covered) || errors.As(err, &notInteractive) {
		return fmt.Errorf("%w: %v", extract.ErrClickIntercepted, err)
	}
	return err
}

func (e *element) ClickByScript(ctx context.Context) error {
	if _, err := e.el.Context(ctx).Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("failed to click by script: %w", err)
	}
	return nil
}
