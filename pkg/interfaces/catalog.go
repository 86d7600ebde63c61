package interfaces

import (
	"context"

	"codepair/pkg/types"
)

// QuestionCatalog is a read-only source of interview questions. The sync core
// only needs starter-code lookups; the listing calls serve the HTTP API.
type QuestionCatalog interface {
	// ListQuestions returns all catalog questions.
	ListQuestions(ctx context.Context) ([]*types.Question, error)

	// GetQuestion retrieves one question by id. Returns ErrQuestionNotFound
	// when absent.
	GetQuestion(ctx context.Context, id string) (*types.Question, error)

	// StarterCode returns the starter buffer for a question/language pair.
	// An empty string with nil error means the question defines no starter
	// for that language.
	StarterCode(ctx context.Context, id, language string) (string, error)

	// Close releases catalog resources.
	Close(ctx context.Context) error
}
