package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout after 5 seconds")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Handler-related errors
var (
	ErrNotJoined        = errors.New("connection has not joined a session")
	ErrSessionMismatch  = errors.New("event session code does not match joined session")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrRateLimited      = errors.New("too many events, slow down")
)
