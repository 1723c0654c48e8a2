package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/IntakeFlow/internal/genai"
	"github.com/BTreeMap/IntakeFlow/internal/models"
	"github.com/BTreeMap/IntakeFlow/internal/tone"
	"github.com/BTreeMap/IntakeFlow/internal/util"
)

// fallbackReply is returned when the generation backend cannot produce a
// reply. The turn leaves the mode and interview state untouched so the user
// can simply try again.
const fallbackReply = "I'm sorry, I'm having trouble responding right now. Could you try saying that again in a moment?"

// completionReply closes out the interview on the turn that resolves the
// final topic.
const completionReply = "Thank you for working through all of these questions with me. That completes the structured part of our conversation. I'm still here, so feel free to keep talking about whatever is on your mind."

// Engine drives the conversation workflow: crisis screening, intent
// classification, the mode policy, interview progress, and response
// generation, with per-session serialization and idempotent turn submission.
type Engine struct {
	sessions    SessionManager
	catalog     *Catalog
	classifier  *Classifier
	interviewer *Interviewer
	supportive  *SupportiveResponder
	assessor    *Assessor

	crisisContact string
	defaultPolicy models.WorkflowPolicy

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// EngineOpts holds configuration options for the engine.
type EngineOpts struct {
	CrisisContact string
	DefaultPolicy models.WorkflowPolicy
}

// EngineOption configures the engine.
type EngineOption func(*EngineOpts)

// WithCrisisContact overrides the contact line inserted into crisis replies.
func WithCrisisContact(contact string) EngineOption {
	return func(o *EngineOpts) { o.CrisisContact = contact }
}

// WithDefaultPolicy sets the policy applied when session creation does not
// name one.
func WithDefaultPolicy(policy models.WorkflowPolicy) EngineOption {
	return func(o *EngineOpts) { o.DefaultPolicy = policy }
}

// NewEngine wires the workflow engine from its collaborators. A nil catalog
// falls back to the built-in topic catalog.
func NewEngine(sessions SessionManager, client genai.ClientInterface, catalog *Catalog, opts ...EngineOption) *Engine {
	cfg := EngineOpts{
		CrisisContact: DefaultCrisisContact,
		DefaultPolicy: models.PolicyAdaptive,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Engine{
		sessions:      sessions,
		catalog:       catalog,
		classifier:    NewClassifier(client),
		interviewer:   NewInterviewer(client),
		supportive:    NewSupportiveResponder(client),
		assessor:      NewAssessor(client),
		crisisContact: cfg.CrisisContact,
		defaultPolicy: cfg.DefaultPolicy,
		locks:         make(map[string]*sync.Mutex),
	}
}

// CreateSession starts a new conversation seeded with the engine's catalog.
// An empty policy falls back to the engine default.
func (e *Engine) CreateSession(ctx context.Context, policy models.WorkflowPolicy) (*models.Session, error) {
	if policy == "" {
		policy = e.defaultPolicy
	}
	return e.sessions.CreateSession(ctx, policy, e.catalog.InitTopics())
}

// Snapshot returns the current state of a session.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (*models.Session, error) {
	return e.sessions.GetSession(ctx, sessionID)
}

// DeleteSession removes a session and its turn records.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.sessions.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	e.releaseSessionLock(sessionID)
	return nil
}

// ListSessions returns summaries of all sessions.
func (e *Engine) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	return e.sessions.ListSessions(ctx)
}

// SubmitTurn processes one user message and returns the assistant reply with
// the mode it was produced in. Turns for the same session are serialized, and
// resubmitting a turn ID replays the recorded result instead of reprocessing.
func (e *Engine) SubmitTurn(ctx context.Context, sessionID string, req models.TurnRequest) (*models.TurnResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	turnID := req.TurnID
	if turnID == "" {
		turnID = util.GenerateTurnID()
	}
	fresh, err := e.sessions.RecordTurn(ctx, turnID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("submit turn %s: %w", turnID, err)
	}
	if !fresh {
		if result := replayedResult(session, turnID); result != nil {
			slog.Info("Engine.SubmitTurn: duplicate turn replayed", "sessionID", sessionID, "turnID", turnID)
			e.markProcessed(ctx, turnID)
			return result, nil
		}
		// Recorded but never finished: the original submission died before
		// persisting a reply, and nothing else was persisted either. Safe to
		// process as a fresh turn.
		slog.Warn("Engine.SubmitTurn: recorded turn has no reply, reprocessing", "sessionID", sessionID, "turnID", turnID)
	}

	now := time.Now()
	preMode := session.Mode
	preTopics := copyTopics(session.Topics)

	session.TurnHistory = append(session.TurnHistory, models.TurnRecord{
		TurnID:    turnID,
		Speaker:   models.SpeakerUser,
		Text:      req.Message,
		Mode:      preMode,
		Timestamp: now,
	})
	userIdx := len(session.TurnHistory) - 1

	toneState := tone.State{Tags: session.ToneTags, Scores: session.ToneScores}
	tone.UpdateState(&toneState, tone.Observe(req.Message))
	session.ToneTags = toneState.Tags
	session.ToneScores = toneState.Scores

	if risk, indicators := DetectRisk(req.Message); session.CrisisFlag || risk == models.RiskElevated {
		if !session.CrisisFlag {
			slog.Warn("Engine.SubmitTurn: crisis indicators detected",
				"sessionID", sessionID, "turnID", turnID, "indicators", indicators)
		}
		session.CrisisFlag = true
		session.Mode = models.ModeCrisis
		reply := crisisReply(e.crisisContact)
		e.appendAssistantRecord(session, turnID, reply, "")
		if err := e.sessions.SaveSession(ctx, session); err != nil {
			return nil, fmt.Errorf("submit turn %s: %w", turnID, err)
		}
		e.markProcessed(ctx, turnID)
		return &models.TurnResult{
			ReplyText: reply,
			Mode:      models.ModeCrisis,
			Complete:  session.IsComplete(),
		}, nil
	}

	cls := e.classifier.Classify(ctx, req.Message, session.TurnHistory[:userIdx])
	session.TurnHistory[userIdx].DetectedIntent = cls.Intent

	tracker := NewTracker(session.Topics)
	mode, reason := DecideMode(PolicyInput{
		Policy:      session.WorkflowPolicy,
		CurrentMode: session.Mode,
		CrisisFlag:  false,
		Complete:    tracker.IsComplete(),
		Intent:      cls.Intent,
	})
	slog.Debug("Engine.SubmitTurn: mode decided", "sessionID", sessionID, "turnID", turnID,
		"mode", mode, "reason", reason, "intent", cls.Intent, "confidence", cls.Confidence, "source", cls.Source)

	var reply, topicID string
	var genErr error
	switch mode {
	case models.ModeInterviewing:
		if asked := e.lastAskedPendingTopic(session); asked != nil {
			e.resolveAnswer(ctx, tracker, asked, req.Message)
		}
		if tracker.IsComplete() {
			e.finishAssessment(ctx, session)
			reply = completionReply
		} else {
			next := tracker.NextPending()
			topicID = next.ID
			reply, genErr = e.interviewer.AskTopic(ctx, *next, session.TurnHistory)
		}
	default:
		reply, genErr = e.supportive.Reply(ctx, session.TurnHistory, session.ToneTags)
	}

	if genErr != nil {
		// One attempt only. The canned apology goes out and the turn leaves
		// no trace on mode or interview progress, so a retry starts clean.
		slog.Warn("Engine.SubmitTurn: generation failed, sending fallback reply",
			"sessionID", sessionID, "turnID", turnID, "mode", mode, "error", genErr)
		session.Mode = preMode
		session.Topics = preTopics
		reply = fallbackReply
		topicID = ""
	} else {
		session.Mode = mode
	}

	e.appendAssistantRecord(session, turnID, reply, topicID)
	if err := e.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("submit turn %s: %w", turnID, err)
	}
	e.markProcessed(ctx, turnID)

	return &models.TurnResult{
		ReplyText: reply,
		Mode:      session.Mode,
		TopicID:   topicID,
		Complete:  session.IsComplete(),
	}, nil
}

// ResolveCrisis clears the crisis flag after human review and recomputes the
// conversation mode from policy and interview progress. Returns
// models.ErrSessionNotInCrisis when the flag is not set.
func (e *Engine) ResolveCrisis(ctx context.Context, sessionID string) (*models.Session, error) {
	lock := e.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := e.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.CrisisFlag {
		return nil, fmt.Errorf("resolve crisis for session %s: %w", sessionID, models.ErrSessionNotInCrisis)
	}

	session.CrisisFlag = false
	mode, reason := DecideMode(PolicyInput{
		Policy:      session.WorkflowPolicy,
		CurrentMode: session.Mode,
		CrisisFlag:  false,
		Complete:    session.IsComplete(),
		Intent:      models.IntentAmbiguous,
	})
	session.Mode = mode
	if err := e.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("resolve crisis for session %s: %w", sessionID, err)
	}
	slog.Info("Engine.ResolveCrisis: crisis flag cleared", "sessionID", sessionID, "mode", mode, "reason", reason)
	return session, nil
}

// resolveAnswer extracts the user's answer to the topic asked on the previous
// assistant turn, resolves it, and cascades gated skips on a clear denial.
// Extraction failure leaves the topic pending for a re-ask.
func (e *Engine) resolveAnswer(ctx context.Context, tracker *Tracker, topic *models.Topic, message string) {
	extraction, err := e.interviewer.ExtractAnswer(ctx, *topic, message)
	if err != nil {
		slog.Warn("Engine.resolveAnswer: extraction failed, topic stays pending", "topicID", topic.ID, "error", err)
		return
	}
	if !extraction.Addressed {
		slog.Debug("Engine.resolveAnswer: reply did not address topic", "topicID", topic.ID)
		return
	}
	if err := tracker.RecordResponse(topic.ID, extraction.Summary, false); err != nil {
		slog.Warn("Engine.resolveAnswer: could not record response", "topicID", topic.ID, "error", err)
		return
	}
	if extraction.Polarity == PolarityNegative {
		e.skipDependents(tracker, topic.ID)
	}
}

// skipDependents skips every still-pending topic gated on a denied screening
// topic.
func (e *Engine) skipDependents(tracker *Tracker, gateID string) {
	for _, depID := range e.catalog.Dependents(gateID) {
		if tracker.Status(depID) != models.TopicStatusPending {
			continue
		}
		if err := tracker.RecordResponse(depID, "", true); err != nil {
			slog.Warn("Engine.skipDependents: could not skip topic", "topicID", depID, "error", err)
			continue
		}
		slog.Info("Engine.skipDependents: topic skipped by gate", "topicID", depID, "gate", gateID)
	}
}

// finishAssessment generates the assessment summary once every topic is
// resolved. Failure leaves the summary empty; the completion reply does not
// depend on it.
func (e *Engine) finishAssessment(ctx context.Context, session *models.Session) {
	summary, err := e.assessor.Summarize(ctx, session.Topics)
	if err != nil {
		slog.Warn("Engine.finishAssessment: summary generation failed", "sessionID", session.ID, "error", err)
	} else {
		session.AssessmentSummary = summary
	}
	slog.Info("Engine.finishAssessment: interview complete", "sessionID", session.ID)
}

// lastAskedPendingTopic returns the topic referenced by the most recent
// assistant message, when that message asked a question and its topic is
// still pending.
func (e *Engine) lastAskedPendingTopic(session *models.Session) *models.Topic {
	for i := len(session.TurnHistory) - 1; i >= 0; i-- {
		rec := session.TurnHistory[i]
		if rec.Speaker != models.SpeakerAssistant {
			continue
		}
		if rec.TopicID == "" {
			return nil
		}
		for j := range session.Topics {
			if session.Topics[j].ID == rec.TopicID {
				if session.Topics[j].Status == models.TopicStatusPending {
					return &session.Topics[j]
				}
				return nil
			}
		}
		return nil
	}
	return nil
}

// replayedResult reconstructs the outcome of a previously completed turn
// from the history record it left, or nil when the turn never completed.
func replayedResult(session *models.Session, turnID string) *models.TurnResult {
	for i := len(session.TurnHistory) - 1; i >= 0; i-- {
		rec := session.TurnHistory[i]
		if rec.TurnID == turnID && rec.Speaker == models.SpeakerAssistant {
			return &models.TurnResult{
				ReplyText: rec.Text,
				Mode:      rec.Mode,
				TopicID:   rec.TopicID,
				Complete:  session.IsComplete(),
			}
		}
	}
	return nil
}

// appendAssistantRecord appends the assistant reply to the turn history under
// the same turn ID as the user message it answers.
func (e *Engine) appendAssistantRecord(session *models.Session, turnID, reply, topicID string) {
	session.TurnHistory = append(session.TurnHistory, models.TurnRecord{
		TurnID:    turnID,
		Speaker:   models.SpeakerAssistant,
		Text:      reply,
		Mode:      session.Mode,
		TopicID:   topicID,
		Timestamp: time.Now(),
	})
}

// markProcessed stamps the turn after its result is durably recorded. A
// failed stamp is recoverable, so it only logs.
func (e *Engine) markProcessed(ctx context.Context, turnID string) {
	if err := e.sessions.MarkTurnProcessed(ctx, turnID); err != nil {
		slog.Warn("Engine.markProcessed: could not mark turn processed", "turnID", turnID, "error", err)
	}
}

// copyTopics snapshots the topic slice so a failed turn can restore it.
func copyTopics(topics []models.Topic) []models.Topic {
	out := make([]models.Topic, len(topics))
	copy(out, topics)
	return out
}

// sessionLock returns the mutex serializing turns for one session.
func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.locks[sessionID]; ok {
		return l
	}
	l := &sync.Mutex{}
	e.locks[sessionID] = l
	return l
}

// releaseSessionLock drops the lock entry for a deleted session.
func (e *Engine) releaseSessionLock(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.locks, sessionID)
}
