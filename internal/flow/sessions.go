package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/IntakeFlow/internal/models"
	"github.com/BTreeMap/IntakeFlow/internal/store"
)

// SessionManager is the persistence seam between the engine and a storage
// backend. Implementations map a missing session to models.ErrSessionNotFound
// so callers never handle backend-specific not-found values.
type SessionManager interface {
	// CreateSession persists a fresh session with the given policy and topics.
	CreateSession(ctx context.Context, policy models.WorkflowPolicy, topics []models.Topic) (*models.Session, error)
	// GetSession loads a session snapshot by ID.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	// SaveSession persists the session, stamping UpdatedAt.
	SaveSession(ctx context.Context, session *models.Session) error
	// DeleteSession removes a session and its turn records.
	DeleteSession(ctx context.Context, sessionID string) error
	// ListSessions returns summaries of all sessions.
	ListSessions(ctx context.Context) ([]models.SessionSummary, error)
	// RecordTurn registers a turn ID for dedup. Returns false on duplicates.
	RecordTurn(ctx context.Context, turnID, sessionID string) (bool, error)
	// MarkTurnProcessed stamps a recorded turn as fully processed.
	MarkTurnProcessed(ctx context.Context, turnID string) error
}

// StoreSessionManager implements SessionManager over a store.Store backend.
type StoreSessionManager struct {
	store store.Store
}

// Compile-time check that StoreSessionManager implements SessionManager.
var _ SessionManager = (*StoreSessionManager)(nil)

// NewStoreSessionManager creates a session manager over the given store.
func NewStoreSessionManager(s store.Store) *StoreSessionManager {
	return &StoreSessionManager{store: s}
}

// CreateSession builds and persists a fresh session. New sessions start in
// INTERVIEWING mode with every topic pending; the first turn recomputes the
// mode, so an empty catalog lands in supportive chat immediately.
func (m *StoreSessionManager) CreateSession(ctx context.Context, policy models.WorkflowPolicy, topics []models.Topic) (*models.Session, error) {
	if !models.IsValidWorkflowPolicy(policy) {
		return nil, fmt.Errorf("create session with policy %q: %w", policy, models.ErrInvalidWorkflowPolicy)
	}
	now := time.Now()
	session := models.Session{
		ID:             uuid.NewString(),
		WorkflowPolicy: policy,
		Mode:           models.ModeInterviewing,
		Topics:         topics,
		TurnHistory:    []models.TurnRecord{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.SaveSession(session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.Info("StoreSessionManager.CreateSession: session created",
		"sessionID", session.ID, "policy", policy, "topics", len(topics))
	return &session, nil
}

// GetSession loads a session snapshot by ID.
func (m *StoreSessionManager) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := m.store.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, models.ErrSessionNotFound)
	}
	return session, nil
}

// SaveSession persists the session snapshot, stamping UpdatedAt.
func (m *StoreSessionManager) SaveSession(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now()
	if err := m.store.SaveSession(*session); err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

// DeleteSession removes a session and its turn records.
func (m *StoreSessionManager) DeleteSession(ctx context.Context, sessionID string) error {
	session, err := m.store.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	if session == nil {
		return fmt.Errorf("delete session %s: %w", sessionID, models.ErrSessionNotFound)
	}
	if err := m.store.DeleteSession(sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	slog.Info("StoreSessionManager.DeleteSession: session deleted", "sessionID", sessionID)
	return nil
}

// ListSessions returns summaries of all sessions.
func (m *StoreSessionManager) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	summaries, err := m.store.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return summaries, nil
}

// RecordTurn registers a turn ID for dedup. Returns false on duplicates.
func (m *StoreSessionManager) RecordTurn(ctx context.Context, turnID, sessionID string) (bool, error) {
	fresh, err := m.store.RecordTurn(turnID, sessionID)
	if err != nil {
		return false, fmt.Errorf("record turn %s: %w", turnID, err)
	}
	return fresh, nil
}

// MarkTurnProcessed stamps a recorded turn as fully processed.
func (m *StoreSessionManager) MarkTurnProcessed(ctx context.Context, turnID string) error {
	if err := m.store.MarkTurnProcessed(turnID); err != nil {
		return fmt.Errorf("mark turn %s processed: %w", turnID, err)
	}
	return nil
}
