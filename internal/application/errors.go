package application

import "errors"

// Sentinel errors surfaced at the API boundary. Handlers map them to status
// codes with errors.Is.
var (
	// ErrInvalidID indicates a malformed item ID.
	ErrInvalidID = errors.New("invalid id")

	// ErrInvalidFilter indicates a malformed filter value.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrNotFound indicates the requested item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidToken indicates a prefetch token that is malformed or was not
	// issued by this server.
	ErrInvalidToken = errors.New("invalid prefetch token")

	// ErrFingerprintMismatch indicates a summary call whose filters or page
	// differ from the list call that issued the token.
	ErrFingerprintMismatch = errors.New("filter fingerprint mismatch")

	// ErrTokenExpired indicates a prefetch token older than its TTL.
	ErrTokenExpired = errors.New("prefetch token expired")

	// ErrClassifierDisabled indicates mention classification was requested
	// without a configured classifier.
	ErrClassifierDisabled = errors.New("mention classifier not configured")
)
