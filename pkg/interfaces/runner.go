package interfaces

import (
	"context"

	"codepair/pkg/types"
)

// CodeRunner submits code to the remote execution sandbox and returns its
// verdict verbatim. The core performs no retries and no interpretation of
// exit codes beyond pass-through.
type CodeRunner interface {
	Run(ctx context.Context, req *types.RunRequest) (*types.RunResult, error)
}
