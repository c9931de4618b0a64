package domain

import (
	"errors"
	"fmt"
)

// Request-level failures. Callers match them with errors.Is.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrArticleUnavailable = errors.New("article unavailable")
	ErrDiscoveryFailed    = errors.New("article discovery failed")
	ErrValidationFailed   = errors.New("hypothesis validation failed")
	ErrNotFound           = errors.New("not found")
)

// FetchError is a per-URL fetch or extraction failure.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Invalid builds an ErrInvalidRequest with a reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
