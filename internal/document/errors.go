package document

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document (or anything addressed through it) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTokenNotFound means no document holds the share token. It matches ErrNotFound.
	ErrTokenNotFound = fmt.Errorf("share token %w", ErrNotFound)

	// ErrTokenExpired means the token exists but its validity window has closed.
	ErrTokenExpired = errors.New("share link expired")

	ErrNotOwner     = errors.New("not the document owner")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
)

// Invalid wraps ErrValidation with a human readable reason.
func Invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}
