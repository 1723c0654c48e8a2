package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

func TestSubmitTurnHandler(t *testing.T) {
	server := newTestServer(t)

	session, err := server.engine.CreateSession(context.Background(), models.PolicyStructured)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	rec := doRequest(t, server, http.MethodPost, "/sessions/"+session.ID+"/turns", `{"message": "I'd like to start"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	response := decodeAPIResponse(t, rec)
	if response.Status != string(models.APIStatusOK) {
		t.Errorf("response status = %s, want %s", response.Status, models.APIStatusOK)
	}

	result, ok := response.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected result to be a map, got %T", response.Result)
	}
	if result["reply_text"] != "How have you been sleeping?" {
		t.Errorf("reply_text = %v", result["reply_text"])
	}
	if result["mode"] != "INTERVIEWING" {
		t.Errorf("mode = %v, want INTERVIEWING", result["mode"])
	}
	if result["topic_id"] != "sleep_screening" {
		t.Errorf("topic_id = %v, want sleep_screening", result["topic_id"])
	}
	if result["complete"] != false {
		t.Errorf("complete = %v, want false", result["complete"])
	}

	// The turn is persisted on the session snapshot.
	snapshot, err := server.engine.Snapshot(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snapshot.TurnHistory) != 2 {
		t.Errorf("turn history = %d records, want 2", len(snapshot.TurnHistory))
	}
}

func TestSubmitTurnHandlerValidation(t *testing.T) {
	server := newTestServer(t)

	session, err := server.engine.CreateSession(context.Background(), models.PolicyAdaptive)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	tests := []struct {
		name string
		body string
	}{
		{"empty message", `{"message": ""}`},
		{"invalid JSON", `{not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, server, http.MethodPost, "/sessions/"+session.ID+"/turns", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestSubmitTurnHandlerSessionNotFound(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(t, server, http.MethodPost, "/sessions/missing/turns", `{"message": "hello"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestResolveCrisisHandler(t *testing.T) {
	server := newTestServer(t)

	session, err := server.engine.CreateSession(context.Background(), models.PolicyAdaptive)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	rec := doRequest(t, server, http.MethodPost, "/sessions/"+session.ID+"/turns", `{"message": "I want to kill myself"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("crisis turn status = %d, body %s", rec.Code, rec.Body.String())
	}
	result, ok := decodeAPIResponse(t, rec).Result.(map[string]interface{})
	if !ok {
		t.Fatal("Expected result to be a map")
	}
	if result["mode"] != "CRISIS" {
		t.Fatalf("mode = %v, want CRISIS", result["mode"])
	}

	rec = doRequest(t, server, http.MethodPost, "/sessions/"+session.ID+"/crisis/resolve", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, want %d, body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	cleared, ok := decodeAPIResponse(t, rec).Result.(map[string]interface{})
	if !ok {
		t.Fatal("Expected result to be a map")
	}
	if cleared["crisis_flag"] != false {
		t.Errorf("crisis_flag = %v, want false", cleared["crisis_flag"])
	}
	if cleared["mode"] != "INTERVIEWING" {
		t.Errorf("mode after resolve = %v, want INTERVIEWING", cleared["mode"])
	}

	// A second resolve conflicts: the session is no longer in crisis.
	rec = doRequest(t, server, http.MethodPost, "/sessions/"+session.ID+"/crisis/resolve", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second resolve status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestResolveCrisisHandlerSessionNotFound(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(t, server, http.MethodPost, "/sessions/missing/crisis/resolve", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
