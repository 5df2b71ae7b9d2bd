package demo

import (
	"errors"
	"fmt"
)

// The error taxonomy exposed by the persistence layer. Adapters return raw
// backend errors; the facade normalizes them into one of these classes
// before anything reaches a caller.
var (
	// ErrNotFound means the document is absent at its backend (server 404,
	// remote file trashed or missing). Defensive loads may recover by
	// seeding an empty body; saves to an id that should exist treat it as
	// a hard error.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidState means the operation targets a document whose
	// registry entry no longer exists. There is nothing meaningful to
	// save to; callers log and abandon.
	ErrInvalidState = errors.New("document registry entry missing")
)

// TransientError wraps a network, timeout or 5xx failure. Never fatal: the
// pending edit stays queued and is retried on the next debounce or poll
// cycle.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient backend error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// AuthError means the bearer credential was rejected (remote-file only).
// The pending save is retried after the credential provider supplies a
// fresh token; it is not dropped.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("credential rejected: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retry-eligible.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsAuth reports whether err means the credential must be refreshed.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
