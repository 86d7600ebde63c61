package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator verifies the session store schema after migrations.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"code_sessions":     "Shared session documents",
		"reviews":           "AI code reviews",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches the Go types.
func (v *SchemaValidator) ValidateTableStructure() error {
	sessionColumns := map[string]string{
		"session_key":      "TEXT",
		"code":             "TEXT",
		"language":         "TEXT",
		"question_id":      "TEXT",
		"stdin":            "TEXT",
		"execution_result": "TEXT",
		"cursor_line":      "INTEGER",
		"cursor_column":    "INTEGER",
		"last_updated_by":  "TEXT",
		"last_updated_at":  "DATETIME",
	}

	if err := v.validateColumns("code_sessions", sessionColumns); err != nil {
		return fmt.Errorf("code_sessions table structure invalid: %w", err)
	}

	reviewColumns := map[string]string{
		"id":                 "TEXT",
		"session_key":        "TEXT",
		"participant_id":     "TEXT",
		"code":               "TEXT",
		"language":           "TEXT",
		"quality":            "TEXT",
		"code_quality_score": "INTEGER",
		"best_practices":     "TEXT",
		"potential_bugs":     "TEXT",
		"performance_issues": "TEXT",
		"suggestions":        "TEXT",
		"summary":            "TEXT",
		"created_at":         "DATETIME",
	}

	if err := v.validateColumns("reviews", reviewColumns); err != nil {
		return fmt.Errorf("reviews table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that all performance indexes exist.
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_reviews_session_participant": "Review lookups by session + requester",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

func (v *SchemaValidator) tableExists(name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) indexExists(name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(table string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to query table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	actual := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		actual[name] = colType
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating column info: %w", err)
	}

	for name, colType := range expected {
		actualType, exists := actual[name]
		if !exists {
			return fmt.Errorf("column %s missing", name)
		}
		if actualType != colType {
			return fmt.Errorf("column %s has type %s, expected %s", name, actualType, colType)
		}
	}

	return nil
}
