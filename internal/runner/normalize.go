package runner

import "codepair/pkg/types"

// NormalizeOutcome folds a run outcome into the shared execution result.
// Both transport failures and rejected verdicts land in the Error field so
// every participant sees why a run produced no output. An "Accepted"
// verdict leaves Error empty.
func NormalizeOutcome(result *types.RunResult, runErr error, stdin string) *types.ExecutionResult {
	execution := &types.ExecutionResult{Stdin: stdin}

	if runErr != nil {
		execution.Error = runErr.Error()
		return execution
	}

	output := map[string]interface{}{
		"status_id":          result.StatusID,
		"status_description": result.StatusDescription,
	}
	if result.Stdout != nil {
		output["stdout"] = *result.Stdout
	}
	if result.Stderr != nil {
		output["stderr"] = *result.Stderr
	}
	if result.CompileOutput != nil {
		output["compile_output"] = *result.CompileOutput
	}
	execution.Output = output

	if result.StatusDescription != "Accepted" {
		execution.Error = result.StatusDescription
	}

	return execution
}
