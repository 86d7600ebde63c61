package database

import (
	"database/sql"
	"fmt"
)

// Migration represents one schema migration step.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are embedded in the binary and applied in slice order. Versions
// are recorded in schema_migrations so reapplication is a no-op.
var migrations = []Migration{
	{
		Version:     "001_create_code_sessions",
		Description: "Shared session documents, one row per collaboration room",
		SQL: `
			CREATE TABLE IF NOT EXISTS code_sessions (
				session_key      TEXT PRIMARY KEY,
				code             TEXT NOT NULL DEFAULT '',
				language         TEXT NOT NULL DEFAULT 'javascript',
				question_id      TEXT,
				stdin            TEXT,
				execution_result TEXT,
				cursor_line      INTEGER,
				cursor_column    INTEGER,
				last_updated_by  TEXT NOT NULL,
				last_updated_at  DATETIME NOT NULL
			)
		`,
	},
	{
		Version:     "002_create_reviews",
		Description: "AI code reviews keyed by session + requesting participant",
		SQL: `
			CREATE TABLE IF NOT EXISTS reviews (
				id                 TEXT PRIMARY KEY,
				session_key        TEXT NOT NULL REFERENCES code_sessions(session_key),
				participant_id     TEXT NOT NULL,
				code               TEXT NOT NULL,
				language           TEXT NOT NULL,
				quality            TEXT NOT NULL DEFAULT '',
				code_quality_score INTEGER NOT NULL DEFAULT 0,
				best_practices     TEXT NOT NULL DEFAULT '[]',
				potential_bugs     TEXT NOT NULL DEFAULT '[]',
				performance_issues TEXT NOT NULL DEFAULT '[]',
				suggestions        TEXT NOT NULL DEFAULT '[]',
				summary            TEXT NOT NULL DEFAULT '',
				created_at         DATETIME NOT NULL,
				UNIQUE (session_key, participant_id)
			)
		`,
	},
	{
		Version:     "003_create_review_index",
		Description: "Review lookups by session + requester",
		SQL: `
			CREATE INDEX IF NOT EXISTS idx_reviews_session_participant
			ON reviews (session_key, participant_id)
		`,
	},
}

// MigrationManager applies embedded migrations against a database handle.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in order. Each migration
// runs in its own transaction together with its version record.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

// ValidateSchema ensures the database matches the expected structure.
func (m *MigrationManager) ValidateSchema() error {
	validator := NewSchemaValidator(m.db)
	if err := validator.ValidateTablesExist(); err != nil {
		return err
	}
	return validator.ValidateIndexes()
}

func (m *MigrationManager) createMigrationTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := m.db.Exec(query)
	return err
}

func (m *MigrationManager) getAppliedMigrations() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("migration SQL failed: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version) VALUES (?)", migration.Version,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
