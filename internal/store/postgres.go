// Package store provides storage backends for IntakeFlow sessions.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/IntakeFlow/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	slog.Debug("Postgres database opened")

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Postgres ping successful")

	// Run migrations to ensure tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// SaveSession stores or replaces a full session snapshot.
func (s *PostgresStore) SaveSession(session models.Session) error {
	topicsJSON, historyJSON, toneJSON, err := marshalSessionColumns(session)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "session_id", session.ID)
		return err
	}

	query := `
		INSERT INTO sessions (id, workflow_policy, mode, crisis_flag, topics, turn_history, assessment_summary, tone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id)
		DO UPDATE SET
			workflow_policy = EXCLUDED.workflow_policy,
			mode = EXCLUDED.mode,
			crisis_flag = EXCLUDED.crisis_flag,
			topics = EXCLUDED.topics,
			turn_history = EXCLUDED.turn_history,
			assessment_summary = EXCLUDED.assessment_summary,
			tone = EXCLUDED.tone,
			updated_at = EXCLUDED.updated_at`

	_, err = s.db.Exec(query, session.ID, string(session.WorkflowPolicy), string(session.Mode),
		session.CrisisFlag, nilIfEmpty(topicsJSON), nilIfEmpty(historyJSON), session.AssessmentSummary,
		nilIfEmpty(toneJSON), session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "session_id", session.ID)
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "session_id", session.ID, "mode", session.Mode)
	return nil
}

// GetSession retrieves a session by ID. Returns nil when not found.
func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	query := `SELECT id, workflow_policy, mode, crisis_flag, topics, turn_history, assessment_summary, tone, created_at, updated_at
			  FROM sessions WHERE id = $1`

	var session models.Session
	var policy, mode string
	var topicsJSON, historyJSON, assessment, toneJSON sql.NullString

	err := s.db.QueryRow(query, id).Scan(
		&session.ID, &policy, &mode, &session.CrisisFlag,
		&topicsJSON, &historyJSON, &assessment, &toneJSON,
		&session.CreatedAt, &session.UpdatedAt)

	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "session_id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "session_id", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	session.WorkflowPolicy = models.WorkflowPolicy(policy)
	session.Mode = models.Mode(mode)
	session.AssessmentSummary = assessment.String
	if err := unmarshalSessionColumns(&session, topicsJSON.String, historyJSON.String, toneJSON.String); err != nil {
		slog.Error("PostgresStore GetSession unmarshal failed", "error", err, "session_id", id)
		return nil, err
	}

	slog.Debug("PostgresStore GetSession found", "session_id", id, "mode", session.Mode)
	return &session, nil
}

// DeleteSession removes a session and its turn records.
func (s *PostgresStore) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM turn_dedup WHERE session_id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteSession turn cleanup failed", "error", err, "session_id", id)
		return fmt.Errorf("failed to delete turn records for %s: %w", id, err)
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "session_id", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "session_id", id)
	return nil
}

// ListSessions returns compact summaries of all stored sessions.
func (s *PostgresStore) ListSessions() ([]models.SessionSummary, error) {
	query := `SELECT id, workflow_policy, mode, topics, created_at FROM sessions ORDER BY created_at DESC`

	rows, err := s.db.Query(query)
	if err != nil {
		slog.Error("PostgresStore ListSessions query failed", "error", err)
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
			slog.Error("PostgresStore ListSessions scan failed", "error", err)
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
		slog.Error("PostgresStore ListSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("PostgresStore ListSessions succeeded", "count", len(summaries))
	return summaries, nil
}

// RecordTurn inserts a processed-turn record. Returns false on duplicates.
func (s *PostgresStore) RecordTurn(turnID, sessionID string) (bool, error) {
	var inserted string
	err := s.db.QueryRow(
		`INSERT INTO turn_dedup (turn_id, session_id, received_at) VALUES ($1, $2, $3)
		 ON CONFLICT (turn_id) DO NOTHING RETURNING turn_id`,
		turnID, sessionID, time.Now(),
	).Scan(&inserted)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("PostgresStore RecordTurn failed", "error", err, "turn_id", turnID)
		return false, fmt.Errorf("record turn failed: %w", err)
	}
	return true, nil
}

// IsDuplicateTurn checks whether a turn ID has already been recorded.
func (s *PostgresStore) IsDuplicateTurn(turnID string) (bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT turn_id FROM turn_dedup WHERE turn_id = $1`, turnID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("turn dedup check failed: %w", err)
	}
	return true, nil
}

// MarkTurnProcessed sets the processed timestamp for a turn record.
func (s *PostgresStore) MarkTurnProcessed(turnID string) error {
	_, err := s.db.Exec(`UPDATE turn_dedup SET processed_at = $1 WHERE turn_id = $2`, time.Now(), turnID)
	if err != nil {
		slog.Error("PostgresStore MarkTurnProcessed failed", "error", err, "turn_id", turnID)
		return fmt.Errorf("mark turn processed failed: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	} else {
		slog.Debug("PostgreSQL database connection closed successfully")
	}
	return err
}
