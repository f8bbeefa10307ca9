package browser

import "errors"

var (
	// ErrInvalidTimeout is returned when a configured timeout is not positive.
	ErrInvalidTimeout = errors.New("browser timeouts must be positive")

	// ErrClosed is returned when a session is requested from a closed Browser.
	ErrClosed = errors.New("browser is closed")
)
