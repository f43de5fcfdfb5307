// Package errors defines the sentinel errors shared across the gateway.
// Handlers translate them into HTTP status codes; everything below the
// handler layer works with these values and errors.Is.
package errors

import "errors"

// Authentication errors
var (
	// ErrInvalidCredentials is returned when a username or password is wrong,
	// or the user does not exist. Callers must not distinguish the cases.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidOtp is returned when the supplied one-time code does not match
	// the current TOTP window.
	ErrInvalidOtp = errors.New("invalid one-time code")
)

// Session errors
var (
	// ErrSessionUnknown is returned when no session exists for an id
	ErrSessionUnknown = errors.New("session unknown")

	// ErrSessionLoggedOut is returned when a session was explicitly logged out
	ErrSessionLoggedOut = errors.New("session logged out")

	// ErrCsrfMismatch is returned when the presented CSRF token is wrong
	ErrCsrfMismatch = errors.New("incorrect CSRF token")
)

// Filesystem errors
var (
	// ErrForbidden is returned when a requested path escapes the root directory
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when a file or directory already exists
	ErrConflict = errors.New("already exists")

	// ErrNotFound is returned when a file or directory does not exist
	ErrNotFound = errors.New("not found")

	// ErrWriteFailure is returned when a filesystem write fails
	ErrWriteFailure = errors.New("write failure")
)

// Storage errors
var (
	// ErrUserNotFound is returned when a credential record is absent
	ErrUserNotFound = errors.New("user not found")

	// ErrSettingNotFound is returned when a settings key is absent
	ErrSettingNotFound = errors.New("setting not found")
)
