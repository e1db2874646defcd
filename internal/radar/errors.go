package radar

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by store implementations.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateSlug     = errors.New("a business with this slug already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptySlug         = errors.New("business name produces an empty slug")
)

// StatusError reports a non-success HTTP status from an upstream.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// StatusCodeOf extracts the upstream status code from err, or 0.
func StatusCodeOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
