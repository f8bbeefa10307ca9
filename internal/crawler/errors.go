package crawler

import "fmt"

// FatalError stops the crawl: the store stayed unreachable after retries,
// or a worker could not get a browser.
type FatalError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error {
	return e.Err
}
