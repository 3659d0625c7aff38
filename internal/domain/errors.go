package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy for the collection flow. Handlers map these onto HTTP
// status codes and response error codes; everything else is treated as a
// retryable collaborator failure that never destroys local state.
var (
	// ErrInvalidToken covers malformed tokens, rejected before any lookup.
	ErrInvalidToken = errors.New("invalid collection token")

	// ErrTokenNotFound covers well-formed tokens with no matching campaign.
	ErrTokenNotFound = errors.New("collection token not found")

	// ErrDuplicateSubmission is the client-side double-activation guard:
	// a submission is already in flight or has already succeeded.
	ErrDuplicateSubmission = errors.New("submission already in flight or completed")

	// ErrPersistenceUnavailable means the draft snapshot store is not
	// writable. The journey continues without autosave.
	ErrPersistenceUnavailable = errors.New("draft persistence unavailable")

	// ErrIdentityLocked: the contributor identity is decided once and is
	// immutable for the remainder of the journey.
	ErrIdentityLocked = errors.New("contributor identity already resolved")

	// ErrNoIdentity: a journey operation was attempted before guest
	// selection resolved an identity.
	ErrNoIdentity = errors.New("no contributor identity resolved")

	// ErrSessionNotFound: unknown or expired visitor session.
	ErrSessionNotFound = errors.New("session not found")
)

// ValidationError blocks a guarded transition when required fields are
// empty. Local and synchronous; no network round-trip.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("required fields missing: %s", strings.Join(e.Fields, ", "))
}

// IsValidation reports whether err is a field validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
