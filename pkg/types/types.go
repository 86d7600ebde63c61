package types

import (
	"time"
)

// Supported editor languages. The set is fixed; patches carrying any other
// language tag are rejected before they reach the store.
const (
	LanguageJavaScript = "javascript"
	LanguagePython     = "python"
	LanguageJava       = "java"
	LanguageCPP        = "cpp"
)

// Judge0 language identifiers for the remote execution service.
var ExecutionLanguageIDs = map[string]int{
	LanguageJavaScript: 63,
	LanguagePython:     71,
	LanguageJava:       62,
	LanguageCPP:        54,
}

// Participant roles. Any participant may write any session field; roles exist
// for connection accounting and the outer application, not for field gating.
const (
	RoleCandidate   = "candidate"
	RoleInterviewer = "interviewer"
)

// CursorPosition is the last known editing cursor. Best-effort only: it is
// overwritten freely and never authoritative.
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// ExecutionResult is the shared outcome of the most recent code run. It is
// written as one unit; no partial execution-result state is ever observable.
// Output is an opaque payload controlled by the execution service. Error is
// absent (empty) when the run succeeded.
type ExecutionResult struct {
	Output map[string]interface{} `json:"output,omitempty"`
	Stdin  string                 `json:"stdin"`
	Error  string                 `json:"error,omitempty"`
}

// Session is the shared mutable document for one collaboration room.
// SessionKey is the stable external identifier (the interview id) and is
// immutable after creation. LastUpdatedBy and LastUpdatedAt are stamped
// together on every mutation; LastUpdatedAt never decreases.
type Session struct {
	SessionKey      string           `json:"session_key"`
	Code            string           `json:"code"`
	Language        string           `json:"language"`
	QuestionID      string           `json:"question_id,omitempty"`
	Stdin           string           `json:"stdin,omitempty"`
	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
	CursorPosition  *CursorPosition  `json:"cursor_position,omitempty"`
	LastUpdatedBy   string           `json:"last_updated_by"`
	LastUpdatedAt   time.Time        `json:"last_updated_at"`
}

// SessionPatch names the fields a mutation wants to merge into a session.
// Nil fields are left untouched. The store stamps the writer and timestamp in
// the same transaction regardless of which fields are set.
type SessionPatch struct {
	Code            *string          `json:"code,omitempty"`
	Language        *string          `json:"language,omitempty"`
	QuestionID      *string          `json:"question_id,omitempty"`
	Stdin           *string          `json:"stdin,omitempty"`
	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
	CursorPosition  *CursorPosition  `json:"cursor_position,omitempty"`
}

// IsEmpty reports whether the patch names no fields at all.
func (p *SessionPatch) IsEmpty() bool {
	return p.Code == nil && p.Language == nil && p.QuestionID == nil &&
		p.Stdin == nil && p.ExecutionResult == nil && p.CursorPosition == nil
}

// RunRequest is the request to the remote execution service.
type RunRequest struct {
	LanguageID int    `json:"language_id"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin"`
}

// RunResult is the execution service response, passed through without
// interpretation beyond surfacing the status description.
type RunResult struct {
	Token             string  `json:"token,omitempty"`
	Stdout            *string `json:"stdout"`
	Stderr            *string `json:"stderr"`
	CompileOutput     *string `json:"compile_output"`
	StatusID          int     `json:"status_id,omitempty"`
	StatusDescription string  `json:"status_description"`
}

// Review is an AI code review accepted into the session record, keyed by
// session and the participant who requested it.
type Review struct {
	ID                string    `json:"id"`
	SessionKey        string    `json:"session_key"`
	ParticipantID     string    `json:"participant_id"`
	Code              string    `json:"code"`
	Language          string    `json:"language"`
	Quality           string    `json:"quality"`
	CodeQualityScore  int       `json:"code_quality_score"`
	BestPractices     []string  `json:"best_practices"`
	PotentialBugs     []string  `json:"potential_bugs"`
	PerformanceIssues []string  `json:"performance_issues"`
	Suggestions       []string  `json:"suggestions"`
	Summary           string    `json:"summary"`
	CreatedAt         time.Time `json:"created_at"`
}

// QuestionExample is one worked example attached to a catalog question.
type QuestionExample struct {
	Input       string `json:"input" bson:"input"`
	Output      string `json:"output" bson:"output"`
	Explanation string `json:"explanation,omitempty" bson:"explanation,omitempty"`
}

// Question is a read-only catalog record. StarterCode maps a language tag to
// the buffer a fresh session for that question starts from.
type Question struct {
	ID          string            `json:"id" bson:"id"`
	Title       string            `json:"title" bson:"title"`
	Description string            `json:"description" bson:"description"`
	Examples    []QuestionExample `json:"examples" bson:"examples"`
	StarterCode map[string]string `json:"starter_code" bson:"starterCode"`
	Constraints []string          `json:"constraints,omitempty" bson:"constraints,omitempty"`
}
