package websocket

import "errors"

// WebSocket layer error types.
var (
	ErrConnectionClosed           = errors.New("connection is closed")
	ErrWriteTimeout               = errors.New("write timeout exceeded")
	ErrInvalidJSON                = errors.New("invalid JSON data")
	ErrNilConnection              = errors.New("connection is nil")
	ErrConnectionNotAuthenticated = errors.New("connection is not authenticated")
)
