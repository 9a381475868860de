package backend

import (
	"errors"
	"fmt"
)

// Sentinels for upstream failures, matched with errors.Is.
var (
	// ErrUpstream indicates the platform API answered with a non-2xx status.
	ErrUpstream = errors.New("upstream error")

	// ErrUnauthorized indicates the forwarded token was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates the challenge or conversation does not exist.
	ErrNotFound = errors.New("not found")
)

// StatusError carries the HTTP status and error text of a failed API call.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("platform api: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status onto the package sentinels.
func (e *StatusError) Unwrap() []error {
	switch e.StatusCode {
	case 401, 403:
		return []error{ErrUpstream, ErrUnauthorized}
	case 404:
		return []error{ErrUpstream, ErrNotFound}
	default:
		return []error{ErrUpstream}
	}
}
