package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "codepair/pkg/database"
	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

// ErrStoreClosed is returned for writes issued after Close.
var ErrStoreClosed = errors.New("session store is closed")

// Manager implements the SessionStore interface on SQLite. All writes funnel
// through a single goroutine: SQLite allows one writer at a time, and the
// serialization also gives each session a total write order, which keeps the
// last-updated-at stamp non-decreasing without row locking. Reads run
// concurrently against the WAL.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	broker       interfaces.SessionBroker
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeResult struct {
	session *types.Session
	err     error
}

type writeOperation struct {
	// operation returns the committed document and whether the commit
	// changed anything worth publishing.
	operation func(db *sql.DB) (*types.Session, bool, error)
	result    chan writeResult
}

// NewManager opens the database, applies migrations and starts the writer
// goroutine. The broker may be nil (no fan-out, e.g. in narrow tests); every
// committed mutation is otherwise published as a full session snapshot.
func NewManager(config *dbconfig.Config, broker interfaces.SessionBroker) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		broker:       broker,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine and
// publishes committed documents after the transaction commits, so
// subscribers never observe a snapshot that did not durably happen.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			session, publish, err := op.operation(m.db)
			if err == nil && publish && m.broker != nil {
				if pubErr := m.broker.Publish(session); pubErr != nil {
					log.Printf("Failed to publish session %s: %v", session.SessionKey, pubErr)
				}
			}
			op.result <- writeResult{session: session, err: err}

		case <-m.shutdown:
			log.Println("Session store write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (m *Manager) executeWrite(operation func(db *sql.DB) (*types.Session, bool, error)) (*types.Session, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	m.mu.RUnlock()

	result := make(chan writeResult, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		res := <-result
		return res.session, res.err
	case <-time.After(30 * time.Second):
		return nil, errors.New("write operation timeout")
	case <-m.shutdown:
		return nil, ErrStoreClosed
	}
}

// Initialize returns the existing session for sessionKey or creates one with
// the supplied initial fields. Concurrent first-joiners are resolved by the
// session_key primary key: the insert is a no-op for losers and every caller
// reads back the winner's row.
func (m *Manager) Initialize(ctx context.Context, sessionKey, initialCode, language, writerID string) (*types.Session, error) {
	if !types.IsValidSessionKey(sessionKey) {
		return nil, types.ErrInvalidSessionKey
	}
	if !types.IsValidParticipantID(writerID) {
		return nil, types.ErrInvalidParticipantID
	}
	if !types.IsValidLanguage(language) {
		return nil, types.ErrInvalidLanguage
	}

	return m.executeWrite(func(db *sql.DB) (*types.Session, bool, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO code_sessions (session_key, code, language, last_updated_by, last_updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (session_key) DO NOTHING
		`, sessionKey, initialCode, language, writerID, time.Now().UTC())
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert session: %w", err)
		}

		created, err := res.RowsAffected()
		if err != nil {
			return nil, false, fmt.Errorf("failed to read rows affected: %w", err)
		}

		session, err := scanSession(tx.QueryRowContext(ctx, selectSessionQuery, sessionKey))
		if err != nil {
			return nil, false, err
		}

		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("failed to commit session creation: %w", err)
		}

		if created == 1 {
			log.Printf("Created code session: key=%s language=%s by=%s", sessionKey, language, writerID)
		}
		return session, created == 1, nil
	})
}

// Get retrieves the session by key. Read path, runs concurrently.
func (m *Manager) Get(ctx context.Context, sessionKey string) (*types.Session, error) {
	return scanSession(m.db.QueryRowContext(ctx, selectSessionQuery, sessionKey))
}

// Patch merges only the fields named by the patch into the existing session,
// stamping last_updated_by and last_updated_at in the same transaction.
// No session, no write: missing rows surface ErrSessionNotFound and the
// transaction rolls back before touching anything.
func (m *Manager) Patch(ctx context.Context, sessionKey string, patch *types.SessionPatch, writerID string) (*types.Session, error) {
	if !types.IsValidParticipantID(writerID) {
		return nil, types.ErrInvalidParticipantID
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	return m.executeWrite(func(db *sql.DB) (*types.Session, bool, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		session, err := scanSession(tx.QueryRowContext(ctx, selectSessionQuery, sessionKey))
		if err != nil {
			return nil, false, err
		}

		mergePatch(session, patch)
		session.LastUpdatedBy = writerID
		session.LastUpdatedAt = stampAfter(session.LastUpdatedAt)

		if err := updateSession(ctx, tx, session); err != nil {
			return nil, false, err
		}

		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("failed to commit session patch: %w", err)
		}

		return session, true, nil
	})
}

// UpdateCode updates the code buffer, optionally switching language and
// moving the cursor in the same atomic write.
func (m *Manager) UpdateCode(ctx context.Context, sessionKey, code string, language *string, cursor *types.CursorPosition, writerID string) (*types.Session, error) {
	return m.Patch(ctx, sessionKey, &types.SessionPatch{
		Code:           &code,
		Language:       language,
		CursorPosition: cursor,
	}, writerID)
}

// UpdateExecutionResult replaces the shared execution result as one unit.
func (m *Manager) UpdateExecutionResult(ctx context.Context, sessionKey string, result *types.ExecutionResult, writerID string) (*types.Session, error) {
	return m.Patch(ctx, sessionKey, &types.SessionPatch{
		ExecutionResult: result,
	}, writerID)
}

// UpdateQuestion changes the selected question.
func (m *Manager) UpdateQuestion(ctx context.Context, sessionKey, questionID, writerID string) (*types.Session, error) {
	return m.Patch(ctx, sessionKey, &types.SessionPatch{
		QuestionID: &questionID,
	}, writerID)
}

// UpdateStdin changes the shared custom input.
func (m *Manager) UpdateStdin(ctx context.Context, sessionKey, stdin, writerID string) (*types.Session, error) {
	return m.Patch(ctx, sessionKey, &types.SessionPatch{
		Stdin: &stdin,
	}, writerID)
}

// UpdateCursor moves the cursor alone.
func (m *Manager) UpdateCursor(ctx context.Context, sessionKey string, cursor types.CursorPosition, writerID string) (*types.Session, error) {
	return m.Patch(ctx, sessionKey, &types.SessionPatch{
		CursorPosition: &cursor,
	}, writerID)
}

// SaveReview stores an accepted AI review, replacing any previous review by
// the same participant for the same session.
func (m *Manager) SaveReview(ctx context.Context, review *types.Review) error {
	_, err := m.executeWrite(func(db *sql.DB) (*types.Session, bool, error) {
		bestPractices, err := json.Marshal(review.BestPractices)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal best practices: %w", err)
		}
		potentialBugs, err := json.Marshal(review.PotentialBugs)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal potential bugs: %w", err)
		}
		performanceIssues, err := json.Marshal(review.PerformanceIssues)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal performance issues: %w", err)
		}
		suggestions, err := json.Marshal(review.Suggestions)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal suggestions: %w", err)
		}

		_, err = db.ExecContext(ctx, `
			INSERT INTO reviews (id, session_key, participant_id, code, language,
				quality, code_quality_score, best_practices, potential_bugs,
				performance_issues, suggestions, summary, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (session_key, participant_id) DO UPDATE SET
				id = excluded.id,
				code = excluded.code,
				language = excluded.language,
				quality = excluded.quality,
				code_quality_score = excluded.code_quality_score,
				best_practices = excluded.best_practices,
				potential_bugs = excluded.potential_bugs,
				performance_issues = excluded.performance_issues,
				suggestions = excluded.suggestions,
				summary = excluded.summary,
				created_at = excluded.created_at
		`,
			review.ID,
			review.SessionKey,
			review.ParticipantID,
			review.Code,
			review.Language,
			review.Quality,
			review.CodeQualityScore,
			string(bestPractices),
			string(potentialBugs),
			string(performanceIssues),
			string(suggestions),
			review.Summary,
			review.CreatedAt,
		)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert review: %w", err)
		}

		return nil, false, nil
	})
	return err
}

// GetReview retrieves the stored review for a participant in a session.
func (m *Manager) GetReview(ctx context.Context, sessionKey, participantID string) (*types.Review, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, session_key, participant_id, code, language, quality,
			code_quality_score, best_practices, potential_bugs,
			performance_issues, suggestions, summary, created_at
		FROM reviews
		WHERE session_key = ? AND participant_id = ?
	`, sessionKey, participantID)

	var review types.Review
	var bestPractices, potentialBugs, performanceIssues, suggestions string

	err := row.Scan(
		&review.ID,
		&review.SessionKey,
		&review.ParticipantID,
		&review.Code,
		&review.Language,
		&review.Quality,
		&review.CodeQualityScore,
		&bestPractices,
		&potentialBugs,
		&performanceIssues,
		&suggestions,
		&review.Summary,
		&review.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to query review: %w", err)
	}

	lists := []struct {
		raw string
		dst *[]string
	}{
		{bestPractices, &review.BestPractices},
		{potentialBugs, &review.PotentialBugs},
		{performanceIssues, &review.PerformanceIssues},
		{suggestions, &review.Suggestions},
	}
	for _, l := range lists {
		if err := json.Unmarshal([]byte(l.raw), l.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal review lists: %w", err)
		}
	}

	return &review, nil
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM code_sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for schema validation.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the store, waiting for the writer goroutine to finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

const selectSessionQuery = `
	SELECT session_key, code, language, question_id, stdin, execution_result,
		cursor_line, cursor_column, last_updated_by, last_updated_at
	FROM code_sessions
	WHERE session_key = ?
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var session types.Session
	var questionID, stdin, executionResult sql.NullString
	var cursorLine, cursorColumn sql.NullInt64

	err := row.Scan(
		&session.SessionKey,
		&session.Code,
		&session.Language,
		&questionID,
		&stdin,
		&executionResult,
		&cursorLine,
		&cursorColumn,
		&session.LastUpdatedBy,
		&session.LastUpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if questionID.Valid {
		session.QuestionID = questionID.String
	}
	if stdin.Valid {
		session.Stdin = stdin.String
	}
	if executionResult.Valid {
		var result types.ExecutionResult
		if err := json.Unmarshal([]byte(executionResult.String), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution result: %w", err)
		}
		session.ExecutionResult = &result
	}
	if cursorLine.Valid && cursorColumn.Valid {
		session.CursorPosition = &types.CursorPosition{
			Line:   int(cursorLine.Int64),
			Column: int(cursorColumn.Int64),
		}
	}

	return &session, nil
}

func mergePatch(session *types.Session, patch *types.SessionPatch) {
	if patch.Code != nil {
		session.Code = *patch.Code
	}
	if patch.Language != nil {
		session.Language = *patch.Language
	}
	if patch.QuestionID != nil {
		session.QuestionID = *patch.QuestionID
	}
	if patch.Stdin != nil {
		session.Stdin = *patch.Stdin
	}
	if patch.ExecutionResult != nil {
		session.ExecutionResult = patch.ExecutionResult
	}
	if patch.CursorPosition != nil {
		session.CursorPosition = patch.CursorPosition
	}
}

// stampAfter returns now, clamped so the stored timestamp never decreases
// even if the wall clock steps backwards between writes.
func stampAfter(prev time.Time) time.Time {
	now := time.Now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

func updateSession(ctx context.Context, tx *sql.Tx, session *types.Session) error {
	var executionResult interface{}
	if session.ExecutionResult != nil {
		data, err := json.Marshal(session.ExecutionResult)
		if err != nil {
			return fmt.Errorf("failed to marshal execution result: %w", err)
		}
		executionResult = string(data)
	}

	var questionID, stdin interface{}
	if session.QuestionID != "" {
		questionID = session.QuestionID
	}
	if session.Stdin != "" {
		stdin = session.Stdin
	}

	var cursorLine, cursorColumn interface{}
	if session.CursorPosition != nil {
		cursorLine = session.CursorPosition.Line
		cursorColumn = session.CursorPosition.Column
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE code_sessions
		SET code = ?, language = ?, question_id = ?, stdin = ?,
			execution_result = ?, cursor_line = ?, cursor_column = ?,
			last_updated_by = ?, last_updated_at = ?
		WHERE session_key = ?
	`,
		session.Code,
		session.Language,
		questionID,
		stdin,
		executionResult,
		cursorLine,
		cursorColumn,
		session.LastUpdatedBy,
		session.LastUpdatedAt,
		session.SessionKey,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	return nil
}

func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
