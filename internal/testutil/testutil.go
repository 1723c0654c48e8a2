// Package testutil provides common test utilities and helpers for IntakeFlow tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/IntakeFlow/internal/genai"
	"github.com/BTreeMap/IntakeFlow/internal/models"
	"github.com/BTreeMap/IntakeFlow/internal/store"
)

// TestingT is the subset of testing.T the helpers need. Tests for the
// helpers themselves substitute a recording implementation.
type TestingT interface {
	Helper()
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// StubModelClient implements the GenAI client interface with canned output so
// tests can run a real workflow engine without a live model backend. The
// fields may be reassigned between calls to steer the engine.
type StubModelClient struct {
	IntentJSON  string
	ExtractJSON string
	Assessment  string
	Reply       string
}

var _ genai.ClientInterface = (*StubModelClient)(nil)

// NewStubModelClient returns a stub whose canned responses drive an interview
// forward: every message classifies as interview intent and no reply is
// treated as answering the open question.
func NewStubModelClient() *StubModelClient {
	return &StubModelClient{
		IntentJSON:  `{"mode": "interview", "confidence": 0.9, "reason": "stub"}`,
		ExtractJSON: `{"addressed": false, "summary": "", "polarity": "unclear"}`,
		Assessment:  "Summary of the screening.",
		Reply:       "How have you been sleeping?",
	}
}

// GeneratePrompt implements genai.ClientInterface.
func (c *StubModelClient) GeneratePrompt(system, user string) (string, error) {
	return c.GeneratePromptWithContext(context.Background(), system, user)
}

// GeneratePromptWithContext routes on the system prompt so the one stub can
// serve the classifier, the answer extractor, and the assessor.
func (c *StubModelClient) GeneratePromptWithContext(ctx context.Context, system, user string) (string, error) {
	switch {
	case strings.Contains(system, "You classify"):
		return c.IntentJSON, nil
	case strings.Contains(system, "answers a mental-health screening question"):
		return c.ExtractJSON, nil
	default:
		return c.Assessment, nil
	}
}

// GenerateWithMessages implements genai.ClientInterface.
func (c *StubModelClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return c.Reply, nil
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TestingT, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TestingT, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TestingT, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// CreateJSONRequest creates an HTTP request with a raw JSON string body.
func CreateJSONRequest(t TestingT, method, url, jsonBody string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(jsonBody))
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if jsonBody != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// AssertSessionCount validates the number of sessions in the store.
func AssertSessionCount(t TestingT, st store.Store, expected int, context string) {
	t.Helper()
	summaries, err := st.ListSessions()
	if err != nil {
		t.Fatalf("%s: failed to list sessions: %v", context, err)
	}
	if len(summaries) != expected {
		t.Errorf("%s: expected %d sessions, got %d", context, expected, len(summaries))
	}
}

// SeedTestSessions adds sample sessions to the store and returns their IDs:
// an adaptive session mid-interview and a completed structured session.
func SeedTestSessions(t TestingT, st store.Store) []string {
	t.Helper()

	now := time.Now()
	resolved := now.Add(-time.Minute)
	sessions := []models.Session{
		{
			ID:             "seed-adaptive-001",
			WorkflowPolicy: models.PolicyAdaptive,
			Mode:           models.ModeInterviewing,
			Topics: []models.Topic{
				{ID: "sleep_screening", PromptTemplate: "How has your sleep been lately?", Status: models.TopicStatusPending},
				{ID: "stress_check", PromptTemplate: "How stressed have you felt recently?", Status: models.TopicStatusPending},
			},
			TurnHistory: []models.TurnRecord{},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:             "seed-structured-002",
			WorkflowPolicy: models.PolicyStructured,
			Mode:           models.ModeSupportiveChat,
			Topics: []models.Topic{
				{ID: "mood_check", PromptTemplate: "How has your mood been?", Status: models.TopicStatusAnswered, ResponseSummary: "reports stable mood", ResolvedAt: &resolved},
			},
			TurnHistory:       []models.TurnRecord{},
			AssessmentSummary: "No concerns reported.",
			CreatedAt:         now,
			UpdatedAt:         now,
		},
	}

	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		if err := st.SaveSession(session); err != nil {
			t.Fatalf("failed to seed session %s: %v", session.ID, err)
		}
		ids = append(ids, session.ID)
	}
	return ids
}

// AssertSessionEquals compares the fields of two sessions that tests care
// about and reports mismatches.
func AssertSessionEquals(t TestingT, expected, actual models.Session, context string) {
	t.Helper()
	if actual.ID != expected.ID ||
		actual.WorkflowPolicy != expected.WorkflowPolicy ||
		actual.Mode != expected.Mode ||
		actual.CrisisFlag != expected.CrisisFlag ||
		actual.AssessmentSummary != expected.AssessmentSummary {
		t.Errorf("%s: sessions don't match\nexpected: %+v\nactual: %+v", context, expected, actual)
	}

	if len(actual.Topics) != len(expected.Topics) {
		t.Errorf("%s: topic count mismatch: expected %d, got %d",
			context, len(expected.Topics), len(actual.Topics))
		return
	}

	for i, expectedTopic := range expected.Topics {
		actualTopic := actual.Topics[i]
		if actualTopic.ID != expectedTopic.ID ||
			actualTopic.Status != expectedTopic.Status ||
			actualTopic.ResponseSummary != expectedTopic.ResponseSummary {
			t.Errorf("%s: topic %d mismatch\nexpected: %+v\nactual: %+v",
				context, i, expectedTopic, actualTopic)
		}
	}

	if len(actual.TurnHistory) != len(expected.TurnHistory) {
		t.Errorf("%s: turn history length mismatch: expected %d, got %d",
			context, len(expected.TurnHistory), len(actual.TurnHistory))
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TestingT, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TestingT, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
