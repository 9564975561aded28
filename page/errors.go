package page

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported is returned by clients that cannot perform an operation,
// e.g. script execution against a static document.
var ErrUnsupported = errors.New("page: operation not supported")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("page: client closed")

// TimeoutError indicates an explicit wait that was not satisfied in time.
type TimeoutError struct {
	Op       string
	Selector string
	Timeout  time.Duration
	Err      error
}

func (e TimeoutError) Error() string {
	target := e.Op
	if e.Selector != "" {
		target = fmt.Sprintf("%s %q", e.Op, e.Selector)
	}
	if e.Err == nil {
		return fmt.Sprintf("timeout: %s after %s", target, e.Timeout)
	}
	return fmt.Sprintf("timeout: %s after %s: %v", target, e.Timeout, e.Err)
}

func (e TimeoutError) Unwrap() error {
	return e.Err
}

// NotFoundError indicates a single-element query that matched nothing.
type NotFoundError struct {
	Selector string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("not_found: no element matches %q", e.Selector)
}

// NavigationError indicates the session failed to load a URL.
type NavigationError struct {
	URL string
	Err error
}

func (e NavigationError) Error() string {
	return fmt.Errorf("navigation to %s: %w", e.URL, e.Err).Error()
}

func (e NavigationError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	var timeout TimeoutError
	return errors.As(err, &timeout)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var notFound NotFoundError
	return errors.As(err, &notFound)
}
