package types

import "errors"

// Validation error types shared by all components that accept external input.
var (
	ErrInvalidSessionKey    = errors.New("session key must be 1-100 characters of [a-zA-Z0-9_-]")
	ErrInvalidParticipantID = errors.New("participant id must be 1-50 characters of [a-zA-Z0-9_-]")
	ErrInvalidLanguage      = errors.New("language must be one of: javascript, python, java, cpp")
	ErrInvalidRole          = errors.New("role must be 'candidate' or 'interviewer'")
	ErrInvalidCursor        = errors.New("cursor line and column must be >= 1")
	ErrEmptyPatch           = errors.New("patch must name at least one field")
	ErrCodeTooLarge         = errors.New("code exceeds maximum size of 256KB")
)
