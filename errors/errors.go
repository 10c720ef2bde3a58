// Package errors defines the failure taxonomy shared by every component.
//
// Commands and stream handling never return ad-hoc error values; everything
// is wrapped around one of these sentinels so callers can classify failures
// with errors.Is and decide whether a retry makes sense.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad input. It never reaches the backend and is
	// never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing room, message, or membership. Often a
	// benign race between a local action and a stale snapshot.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated marks the absence of a current user. Not retryable
	// until the auth stream resolves.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrBackendUnavailable marks a transient transport failure. Retryable
	// with backoff.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrSync marks a stream-level delivery or decoding failure. Surfaced to
	// observers; the subscription stays alive.
	ErrSync = errors.New("sync failure")
)

// Retryable reports whether the dispatcher may retry the failed operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// Validation wraps a formatted message with ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps a formatted message with ErrNotFound.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Unavailable wraps an underlying transport error with ErrBackendUnavailable,
// keeping the cause in the chain.
func Unavailable(cause error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, cause)
}
