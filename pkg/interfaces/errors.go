package interfaces

import "errors"

// Shared error types used across interface implementations.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrReviewNotFound   = errors.New("review not found")
)
