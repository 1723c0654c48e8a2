// Package store provides storage backends for IntakeFlow sessions.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backends selected by DSN. All backends persist full session
// snapshots and the processed-turn records used for idempotent turn
// submission.
package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType determines the database type from a DSN string.
// Returns "postgres" for PostgreSQL connection strings, "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store defines the persistence operations required by the workflow engine.
type Store interface {
	// SaveSession stores or replaces a full session snapshot.
	SaveSession(session models.Session) error
	// GetSession retrieves a session by ID. Returns nil when not found.
	GetSession(id string) (*models.Session, error)
	// DeleteSession removes a session and its turn records.
	DeleteSession(id string) error
	// ListSessions returns compact summaries of all stored sessions.
	ListSessions() ([]models.SessionSummary, error)

	// RecordTurn inserts a processed-turn record. Returns false when the turn
	// ID was already recorded (duplicate submission).
	RecordTurn(turnID, sessionID string) (bool, error)
	// IsDuplicateTurn checks whether a turn ID has already been recorded.
	IsDuplicateTurn(turnID string) (bool, error)
	// MarkTurnProcessed sets the processed timestamp for a turn record.
	MarkTurnProcessed(turnID string) error

	// Close releases backend resources.
	Close() error
}

// turnRecord is the in-memory representation of a processed-turn entry.
type turnRecord struct {
	sessionID   string
	receivedAt  time.Time
	processedAt *time.Time
}

// InMemoryStore is a mutex-guarded map-backed store used by tests and as the
// default backend when no DSN is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	turns    map[string]turnRecord
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.Session),
		turns:    make(map[string]turnRecord),
	}
}

// cloneSession deep-copies the slice and map fields so callers cannot alias
// stored state.
func cloneSession(s models.Session) models.Session {
	out := s
	if s.Topics != nil {
		out.Topics = make([]models.Topic, len(s.Topics))
		copy(out.Topics, s.Topics)
	}
	if s.TurnHistory != nil {
		out.TurnHistory = make([]models.TurnRecord, len(s.TurnHistory))
		copy(out.TurnHistory, s.TurnHistory)
	}
	if s.ToneScores != nil {
		out.ToneScores = make(map[string]float32, len(s.ToneScores))
		for k, v := range s.ToneScores {
			out.ToneScores[k] = v
		}
	}
	if s.ToneTags != nil {
		out.ToneTags = make([]string, len(s.ToneTags))
		copy(out.ToneTags, s.ToneTags)
	}
	return out
}

// SaveSession stores or replaces a session snapshot.
func (s *InMemoryStore) SaveSession(session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneSession(session)
	slog.Debug("InMemoryStore.SaveSession succeeded", "session_id", session.ID, "mode", session.Mode)
	return nil
}

// GetSession retrieves a session by ID. Returns nil when not found.
func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		slog.Debug("InMemoryStore.GetSession not found", "session_id", id)
		return nil, nil
	}
	out := cloneSession(session)
	return &out, nil
}

// DeleteSession removes a session and its turn records.
func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	for turnID, rec := range s.turns {
		if rec.sessionID == id {
			delete(s.turns, turnID)
		}
	}
	slog.Debug("InMemoryStore.DeleteSession succeeded", "session_id", id)
	return nil
}

// ListSessions returns compact summaries of all stored sessions.
func (s *InMemoryStore) ListSessions() ([]models.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summaries := make([]models.SessionSummary, 0, len(s.sessions))
	for _, session := range s.sessions {
		summaries = append(summaries, session.Summarize())
	}
	return summaries, nil
}

// RecordTurn inserts a processed-turn record. Returns false on duplicates.
func (s *InMemoryStore) RecordTurn(turnID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.turns[turnID]; exists {
		return false, nil
	}
	s.turns[turnID] = turnRecord{sessionID: sessionID, receivedAt: time.Now()}
	return true, nil
}

// IsDuplicateTurn checks whether a turn ID has already been recorded.
func (s *InMemoryStore) IsDuplicateTurn(turnID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.turns[turnID]
	return exists, nil
}

// MarkTurnProcessed sets the processed timestamp for a turn record.
func (s *InMemoryStore) MarkTurnProcessed(turnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.turns[turnID]
	if !exists {
		return nil
	}
	now := time.Now()
	rec.processedAt = &now
	s.turns[turnID] = rec
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
