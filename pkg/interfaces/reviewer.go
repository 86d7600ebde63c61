package interfaces

import (
	"context"

	"codepair/pkg/types"
)

// CodeReviewer generates a structured review for a code/language pair using
// an external text-generation backend. The returned review carries only the
// analysis fields; the caller fills in session and participant identity
// before persisting it.
type CodeReviewer interface {
	Review(ctx context.Context, code, language string) (*types.Review, error)
}
