// Package models defines the core data structures for IntakeFlow.
//
// It includes the session state, interview topics, turn history records, and
// the API request/response types shared across modules.
package models

import (
	"errors"
	"time"
)

// Validation constants for input validation
const (
	// MaxMessageLength defines the maximum allowed length for a user message
	MaxMessageLength = 4096
	// MaxTurnIDLength defines the maximum allowed length for a client-supplied turn ID
	MaxTurnIDLength = 128
	// MaxTopicIDLength defines the maximum allowed length for a catalog topic ID
	MaxTopicIDLength = 100
	// MaxSummaryLength defines the maximum stored length for a topic response summary
	MaxSummaryLength = 2000
)

// Error variables for better error handling and testability
var (
	ErrInvalidTopic              = errors.New("invalid topic: unknown or already resolved")
	ErrSessionNotFound           = errors.New("session not found")
	ErrSessionNotInCrisis        = errors.New("session is not in crisis")
	ErrEmptyMessage              = errors.New("message cannot be empty")
	ErrMessageTooLong            = errors.New("message exceeds maximum length")
	ErrTurnIDTooLong             = errors.New("turn ID exceeds maximum length")
	ErrInvalidWorkflowPolicy     = errors.New("invalid workflow policy")
	ErrClassificationUnavailable = errors.New("intent classification backend unavailable")
	ErrGenerationUnavailable     = errors.New("reply generation backend unavailable")
)

// Topic represents one clinical interview item and its resolution state.
type Topic struct {
	ID              string      `json:"id"`
	PromptTemplate  string      `json:"prompt_template"`
	Status          TopicStatus `json:"status"`
	ResponseSummary string      `json:"response_summary,omitempty"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
}

// TurnRecord is one entry of the append-only session turn history.
// Records are never rewritten or trimmed; they are the audit trail.
// TopicID is set on assistant records that asked an interview question,
// so duplicate turn submissions can replay the full original result.
type TurnRecord struct {
	TurnID         string    `json:"turn_id"`
	Speaker        Speaker   `json:"speaker"`
	Text           string    `json:"text"`
	DetectedIntent Intent    `json:"detected_intent,omitempty"`
	Mode           Mode      `json:"mode"`
	TopicID        string    `json:"topic_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Session is the full state of one conversation. The workflow engine owns
// mutation; everything here serializes as the snapshot exposed to callers.
type Session struct {
	ID                string             `json:"id"`
	WorkflowPolicy    WorkflowPolicy     `json:"workflow_policy"`
	Mode              Mode               `json:"mode"`
	CrisisFlag        bool               `json:"crisis_flag"`
	Topics            []Topic            `json:"topics"`
	TurnHistory       []TurnRecord       `json:"turn_history"`
	AssessmentSummary string             `json:"assessment_summary,omitempty"`
	ToneScores        map[string]float32 `json:"tone_scores,omitempty"`
	ToneTags          []string           `json:"tone_tags,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// IsComplete reports whether no pending topics remain. Completeness is
// derived, never stored.
func (s *Session) IsComplete() bool {
	for i := range s.Topics {
		if s.Topics[i].Status == TopicStatusPending {
			return false
		}
	}
	return true
}

// TurnResult is the engine's per-turn output for the presentation layer.
type TurnResult struct {
	ReplyText string `json:"reply_text"`
	Mode      Mode   `json:"mode"`
	TopicID   string `json:"topic_id,omitempty"`
	Complete  bool   `json:"complete"`
}

// SessionCreateRequest is the payload for creating a session.
type SessionCreateRequest struct {
	WorkflowPolicy WorkflowPolicy `json:"workflow_policy,omitempty"`
}

// Validate checks the session creation payload. An empty policy is allowed
// and filled from the server default.
func (r *SessionCreateRequest) Validate() error {
	if r.WorkflowPolicy != "" && !IsValidWorkflowPolicy(r.WorkflowPolicy) {
		return ErrInvalidWorkflowPolicy
	}
	return nil
}

// TurnRequest is the payload for submitting one user turn.
type TurnRequest struct {
	Message string `json:"message"`
	TurnID  string `json:"turn_id,omitempty"`
}

// Validate performs validation on a TurnRequest.
func (r *TurnRequest) Validate() error {
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if len(r.TurnID) > MaxTurnIDLength {
		return ErrTurnIDTooLong
	}
	return nil
}

// SessionSummary is the compact session representation returned on creation.
type SessionSummary struct {
	ID             string         `json:"id"`
	WorkflowPolicy WorkflowPolicy `json:"workflow_policy"`
	Mode           Mode           `json:"mode"`
	TopicCount     int            `json:"topic_count"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Summarize returns the compact representation of the session.
func (s *Session) Summarize() SessionSummary {
	return SessionSummary{
		ID:             s.ID,
		WorkflowPolicy: s.WorkflowPolicy,
		Mode:           s.Mode,
		TopicCount:     len(s.Topics),
		CreatedAt:      s.CreatedAt,
	}
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
