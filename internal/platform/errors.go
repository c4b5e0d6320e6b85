package platform

import "errors"

// Domain-specific errors for platform API operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAuthFailure is returned when the platform rejects the request
	// credentials or token (HTTP 401/403). Callers must obtain fresh
	// credentials or a fresh token before retrying.
	ErrAuthFailure = errors.New("platform: authentication failed")

	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("platform: not found")

	// ErrConflict is returned when the platform reports a state conflict,
	// e.g. a subscription identity that already exists (HTTP 409).
	ErrConflict = errors.New("platform: conflict")

	// ErrUnavailable is returned when the platform cannot be reached or
	// answers with a server error. Callers treat this as a skip for the
	// current unit of work, never as process-fatal.
	ErrUnavailable = errors.New("platform: unavailable")

	// ErrBadResponse is returned when the platform answers with a payload
	// that cannot be decoded.
	ErrBadResponse = errors.New("platform: malformed response")
)
