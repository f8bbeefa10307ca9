package extract

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrElementNotFound is returned by Session.Element when no interactable
	// element matches before the timeout.
	ErrElementNotFound = errors.New("element not found")

	// ErrClickIntercepted is returned by Element.Click when another element
	// covers the target.
	ErrClickIntercepted = errors.New("click intercepted")
)

// Launcher opens browser sessions.
type Launcher interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is one browser tab.
type Session interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// Eval runs a JavaScript function expression with args and returns its
	// JSON encoded result.
	Eval(ctx context.Context, js string, args ...any) (json.RawMessage, error)

	// Element waits up to timeout for an interactable element matching selector.
	Element(ctx context.Context, selector string, timeout time.Duration) (Element, error)

	// URL returns the current document URL.
	URL(ctx context.Context) (string, error)

	// HTML returns the current document markup.
	HTML(ctx context.Context) (string, error)

	// Close releases the tab.
	Close() error
}

// Element is an interactable DOM element.
type Element interface {
	ScrollIntoView(ctx context.Context) error

	// Click performs a trusted mouse click.
	Click(ctx context.Context) error

	// ClickByScript dispatches a click from JavaScript. It works on covered elements.
	ClickByScript(ctx context.Context) error
}
