// Package errors defines the error taxonomy shared by the cache layer and
// its callers. Lookup failures, permission failures, and authentication
// failures are distinct types so the boundary layer can map them to the
// correct response semantics.
package errors

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the acting user lacks permission for an
// operation.
var ErrUnauthorized = errors.New("unauthorized")

// ErrUnauthenticated is returned when a session is missing, expired, or tied
// to a deleted user.
var ErrUnauthenticated = errors.New("unauthenticated")

// NotFoundError reports a lookup that resolved to nothing, including
// tombstoned and negative-cached entries.
type NotFoundError struct {
	Entity string // The type of entity (e.g., "post", "comment")
	ID     string // The identifier that was not found
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID '%s' not found", e.Entity, e.ID)
}

// NotFound creates a new NotFoundError.
func NotFound(entity string, id fmt.Stringer) NotFoundError {
	return NotFoundError{Entity: entity, ID: id.String()}
}

// IsNotFound checks if an error is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsUnauthorized checks if an error is a permission failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsUnauthenticated checks if an error is an authentication failure.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
