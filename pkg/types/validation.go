package types

import (
	"regexp"
)

// Compiled once at package initialization; session keys and participant ids
// are validated on every inbound patch.
var identRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxCodeSize bounds the shared buffer so a single keystroke batch cannot
// bloat the session row past what SQLite and the fan-out channels handle well.
const maxCodeSize = 256 * 1024

// IsValidSessionKey checks if a session key meets format requirements.
// Session keys come from the scheduling system (interview ids), so the rules
// match participant ids apart from a longer length allowance.
func IsValidSessionKey(key string) bool {
	if len(key) < 1 || len(key) > 100 {
		return false
	}
	return identRegex.MatchString(key)
}

// IsValidParticipantID checks if a participant id meets format requirements.
// The id is an opaque token from the identity provider used only as the
// writer tag for self-echo suppression.
func IsValidParticipantID(id string) bool {
	if len(id) < 1 || len(id) > 50 {
		return false
	}
	return identRegex.MatchString(id)
}

// IsValidLanguage checks if the language tag is one of the supported set.
func IsValidLanguage(language string) bool {
	switch language {
	case LanguageJavaScript, LanguagePython, LanguageJava, LanguageCPP:
		return true
	default:
		return false
	}
}

// IsValidRole checks if the role is one of the two participant roles.
func IsValidRole(role string) bool {
	return role == RoleCandidate || role == RoleInterviewer
}

// Validate ensures the cursor position is usable (1-based coordinates).
func (c *CursorPosition) Validate() error {
	if c.Line < 1 || c.Column < 1 {
		return ErrInvalidCursor
	}
	return nil
}

// Validate ensures the patch is well formed before it reaches the store:
// at least one field named, valid language tag, sane cursor, bounded code.
func (p *SessionPatch) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	if p.Code != nil && len(*p.Code) > maxCodeSize {
		return ErrCodeTooLarge
	}
	if p.Language != nil && !IsValidLanguage(*p.Language) {
		return ErrInvalidLanguage
	}
	if p.CursorPosition != nil {
		if err := p.CursorPosition.Validate(); err != nil {
			return err
		}
	}
	return nil
}
