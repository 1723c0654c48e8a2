// Package store provides storage backends for IntakeFlow sessions.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/IntakeFlow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	slog.Debug("SQLite database opened")

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveSession stores or replaces a full session snapshot.
func (s *SQLiteStore) SaveSession(session models.Session) error {
	topicsJSON, historyJSON, toneJSON, err := marshalSessionColumns(session)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "session_id", session.ID)
		return err
	}

	query := `
		INSERT OR REPLACE INTO sessions (id, workflow_policy, mode, crisis_flag, topics, turn_history, assessment_summary, tone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query, session.ID, string(session.WorkflowPolicy), string(session.Mode),
		session.CrisisFlag, topicsJSON, historyJSON, session.AssessmentSummary, toneJSON,
		session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "session_id", session.ID)
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "session_id", session.ID, "mode", session.Mode)
	return nil
}

// GetSession retrieves a session by ID. Returns nil when not found.
func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	query := `SELECT id, workflow_policy, mode, crisis_flag, topics, turn_history, assessment_summary, tone, created_at, updated_at
			  FROM sessions WHERE id = ?`

	var session models.Session
	var policy, mode string
	var topicsJSON, historyJSON, assessment, toneJSON sql.NullString

	err := s.db.QueryRow(query, id).Scan(
		&session.ID, &policy, &mode, &session.CrisisFlag,
		&topicsJSON, &historyJSON, &assessment, &toneJSON,
		&session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "session_id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "session_id", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	session.WorkflowPolicy = models.WorkflowPolicy(policy)
	session.Mode = models.Mode(mode)
	session.AssessmentSummary = assessment.String
	if err := unmarshalSessionColumns(&session, topicsJSON.String, historyJSON.String, toneJSON.String); err != nil {
		slog.Error("SQLiteStore GetSession unmarshal failed", "error", err, "session_id", id)
		return nil, err
	}

	slog.Debug("SQLiteStore GetSession found", "session_id", id, "mode", session.Mode)
	return &session, nil
}

// DeleteSession removes a session and its turn records.
func (s *SQLiteStore) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM turn_dedup WHERE session_id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteSession turn cleanup failed", "error", err, "session_id", id)
		return fmt.Errorf("failed to delete turn records for %s: %w", id, err)
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "session_id", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "session_id", id)
	return nil
}

// ListSessions returns compact summaries of all stored sessions.
func (s *SQLiteStore) ListSessions() ([]models.SessionSummary, error) {
	query := `SELECT id, workflow_policy, mode, topics, created_at FROM sessions ORDER BY created_at DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		slog.Error("SQLiteStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var summaries []models.SessionSummary
	for rows.Next() {
		var summary models.SessionSummary
		var policy, mode string
		var topicsJSON sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&summary.ID, &policy, &mode, &topicsJSON, &createdAt); err != nil {
			slog.Error("SQLiteStore ListSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		summary.WorkflowPolicy = models.WorkflowPolicy(policy)
		summary.Mode = models.Mode(mode)
		summary.CreatedAt = createdAt
		if topicsJSON.String != "" {
			var sess models.Session
			if err := unmarshalSessionColumns(&sess, topicsJSON.String, "", ""); err == nil {
				summary.TopicCount = len(sess.Topics)
			}
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("SQLiteStore ListSessions succeeded", "count", len(summaries))
	return summaries, nil
}

// RecordTurn inserts a processed-turn record. Returns false on duplicates.
func (s *SQLiteStore) RecordTurn(turnID, sessionID string) (bool, error) {
	exists, err := s.IsDuplicateTurn(turnID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO turn_dedup (turn_id, session_id, received_at) VALUES (?, ?, ?)`,
		turnID, sessionID, time.Now(),
	)
	if err != nil {
		slog.Error("SQLiteStore RecordTurn failed", "error", err, "turn_id", turnID)
		return false, fmt.Errorf("record turn failed: %w", err)
	}
	return true, nil
}

// IsDuplicateTurn checks whether a turn ID has already been recorded.
func (s *SQLiteStore) IsDuplicateTurn(turnID string) (bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT turn_id FROM turn_dedup WHERE turn_id = ?`, turnID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("turn dedup check failed: %w", err)
	}
	return true, nil
}

// MarkTurnProcessed sets the processed timestamp for a turn record.
func (s *SQLiteStore) MarkTurnProcessed(turnID string) error {
	_, err := s.db.Exec(`UPDATE turn_dedup SET processed_at = ? WHERE turn_id = ?`, time.Now(), turnID)
	if err != nil {
		slog.Error("SQLiteStore MarkTurnProcessed failed", "error", err, "turn_id", turnID)
		return fmt.Errorf("mark turn processed failed: %w", err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	} else {
		slog.Debug("SQLite database connection closed successfully")
	}
	return err
}
