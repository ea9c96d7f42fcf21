package config

import (
	"errors"
	"fmt"
)

// Sentinel validation errors. Validate wraps them in *Error so callers can
// match either the field (errors.As) or the cause (errors.Is).
var (
	// ErrInvalidWorkers is returned when the worker count is below one.
	ErrInvalidWorkers = errors.New("worker count must be at least 1")

	// ErrTooManyWorkers is returned when the worker count exceeds the
	// configured maximum (the CPU count by default).
	ErrTooManyWorkers = errors.New("worker count exceeds maximum")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("timeout must be positive")

	// ErrInvalidMaxBody is returned when fetch.max_body_bytes is negative.
	ErrInvalidMaxBody = errors.New("max body bytes must be non-negative")

	// ErrUnknownBackend is returned for an unsupported capture backend.
	ErrUnknownBackend = errors.New("unknown capture backend")

	// ErrUnknownSignatureSource is returned for an unsupported signature source.
	ErrUnknownSignatureSource = errors.New("unknown signature source")

	// ErrMissingValue is returned when a setting required by another one is empty.
	ErrMissingValue = errors.New("value is required")

	// ErrNoURLs is returned when a scan has nothing to fetch.
	ErrNoURLs = errors.New("no urls to scan: provide --urls or positional arguments")
)

// Error is a fatal configuration problem tied to one setting.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fieldError(field string, err error) *Error {
	return &Error{Field: field, Err: err}
}
