package types

import "errors"

// Input validation errors, detected before any mutation.
var (
	ErrInvalidCode    = errors.New("session code must be 5 alphanumeric characters")
	ErrInvalidName    = errors.New("participant name cannot be empty")
	ErrInvalidPayload = errors.New("malformed event payload")
)
