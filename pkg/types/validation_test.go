package types

import (
	"strings"
	"testing"
)

func TestIsValidSessionKey(t *testing.T) {
	valid := []string{"interview-123", "a", "session_key", "ABC-def_9", strings.Repeat("x", 100)}
	for _, key := range valid {
		if !IsValidSessionKey(key) {
			t.Errorf("Expected session key %q to be valid", key)
		}
	}

	invalid := []string{"", "has space", "key!", "key/path", strings.Repeat("x", 101)}
	for _, key := range invalid {
		if IsValidSessionKey(key) {
			t.Errorf("Expected session key %q to be invalid", key)
		}
	}
}

func TestIsValidParticipantID(t *testing.T) {
	valid := []string{"user_2abc", "p1", strings.Repeat("u", 50)}
	for _, id := range valid {
		if !IsValidParticipantID(id) {
			t.Errorf("Expected participant id %q to be valid", id)
		}
	}

	invalid := []string{"", "user id", "user@domain", strings.Repeat("u", 51)}
	for _, id := range invalid {
		if IsValidParticipantID(id) {
			t.Errorf("Expected participant id %q to be invalid", id)
		}
	}
}

func TestIsValidLanguage(t *testing.T) {
	for _, language := range []string{LanguageJavaScript, LanguagePython, LanguageJava, LanguageCPP} {
		if !IsValidLanguage(language) {
			t.Errorf("Expected language %q to be valid", language)
		}
	}
	for _, language := range []string{"", "go", "JavaScript", "c++"} {
		if IsValidLanguage(language) {
			t.Errorf("Expected language %q to be invalid", language)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	if !IsValidRole(RoleCandidate) || !IsValidRole(RoleInterviewer) {
		t.Error("Expected candidate and interviewer roles to be valid")
	}
	if IsValidRole("instructor") || IsValidRole("") {
		t.Error("Expected unknown roles to be invalid")
	}
}

func TestCursorPositionValidate(t *testing.T) {
	if err := (&CursorPosition{Line: 1, Column: 1}).Validate(); err != nil {
		t.Errorf("Expected 1,1 cursor to be valid, got %v", err)
	}
	if err := (&CursorPosition{Line: 0, Column: 1}).Validate(); err != ErrInvalidCursor {
		t.Errorf("Expected ErrInvalidCursor for line 0, got %v", err)
	}
	if err := (&CursorPosition{Line: 3, Column: 0}).Validate(); err != ErrInvalidCursor {
		t.Errorf("Expected ErrInvalidCursor for column 0, got %v", err)
	}
}

func TestSessionPatchIsEmpty(t *testing.T) {
	if !(&SessionPatch{}).IsEmpty() {
		t.Error("Expected empty patch to report IsEmpty")
	}

	code := "x"
	if (&SessionPatch{Code: &code}).IsEmpty() {
		t.Error("Expected patch with code to not report IsEmpty")
	}
}

func TestSessionPatchValidate(t *testing.T) {
	if err := (&SessionPatch{}).Validate(); err != ErrEmptyPatch {
		t.Errorf("Expected ErrEmptyPatch, got %v", err)
	}

	big := strings.Repeat("a", maxCodeSize+1)
	if err := (&SessionPatch{Code: &big}).Validate(); err != ErrCodeTooLarge {
		t.Errorf("Expected ErrCodeTooLarge, got %v", err)
	}

	badLang := "go"
	if err := (&SessionPatch{Language: &badLang}).Validate(); err != ErrInvalidLanguage {
		t.Errorf("Expected ErrInvalidLanguage, got %v", err)
	}

	if err := (&SessionPatch{CursorPosition: &CursorPosition{Line: 0, Column: 1}}).Validate(); err != ErrInvalidCursor {
		t.Errorf("Expected ErrInvalidCursor, got %v", err)
	}

	code := "console.log(1)"
	language := LanguageJavaScript
	patch := &SessionPatch{Code: &code, Language: &language, CursorPosition: &CursorPosition{Line: 1, Column: 15}}
	if err := patch.Validate(); err != nil {
		t.Errorf("Expected valid patch, got %v", err)
	}
}
