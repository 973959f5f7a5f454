package interfaces

import "errors"

// Taxonomy errors shared across components. Validation and authorization
// errors never reach the store; store failures are converted to a generic
// user-facing error at the call site.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrFilmNotFound     = errors.New("film not found")
	ErrFilmAlreadyAdded = errors.New("film already added to this session")
	ErrUnauthorized     = errors.New("not authorized for this action")
)
