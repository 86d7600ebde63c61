package interfaces

import (
	"context"

	"codepair/pkg/types"
)

// SessionStore persists one shared document per collaboration session and
// applies field-scoped last-writer-wins patches. Every mutation stamps
// LastUpdatedBy and LastUpdatedAt together in the same transaction, and every
// committed write is published to the configured broker.
type SessionStore interface {
	// Initialize returns the existing session for sessionKey, ignoring the
	// supplied initial values, or creates one with them. Safe under concurrent
	// first-joiners: exactly one row results, racing creators receive the
	// winner's row rather than an error.
	Initialize(ctx context.Context, sessionKey, initialCode, language, writerID string) (*types.Session, error)

	// Get retrieves the session by key. Returns ErrSessionNotFound when absent.
	Get(ctx context.Context, sessionKey string) (*types.Session, error)

	// Patch merges only the fields named by the patch into the existing
	// session and returns the full updated document. Fails with
	// ErrSessionNotFound when no session exists; never creates one.
	Patch(ctx context.Context, sessionKey string, patch *types.SessionPatch, writerID string) (*types.Session, error)

	// Field-specific entry points, thin wrappers over Patch.

	// UpdateCode updates the code buffer, optionally switching language and
	// moving the cursor in the same atomic write.
	UpdateCode(ctx context.Context, sessionKey, code string, language *string, cursor *types.CursorPosition, writerID string) (*types.Session, error)

	// UpdateExecutionResult replaces the shared execution result as one unit.
	UpdateExecutionResult(ctx context.Context, sessionKey string, result *types.ExecutionResult, writerID string) (*types.Session, error)

	// UpdateQuestion changes the selected question.
	UpdateQuestion(ctx context.Context, sessionKey, questionID, writerID string) (*types.Session, error)

	// UpdateStdin changes the shared custom input.
	UpdateStdin(ctx context.Context, sessionKey, stdin, writerID string) (*types.Session, error)

	// UpdateCursor moves the cursor alone.
	UpdateCursor(ctx context.Context, sessionKey string, cursor types.CursorPosition, writerID string) (*types.Session, error)

	// Review persistence, keyed by session + requesting participant.

	// SaveReview stores an accepted AI review, replacing any previous review
	// by the same participant for the same session.
	SaveReview(ctx context.Context, review *types.Review) error

	// GetReview retrieves the stored review for a participant in a session.
	// Returns ErrReviewNotFound when absent.
	GetReview(ctx context.Context, sessionKey, participantID string) (*types.Review, error)

	// HealthCheck verifies store connectivity and basic operations.
	HealthCheck(ctx context.Context) error

	// Close releases the store and waits for pending writes.
	Close() error
}
