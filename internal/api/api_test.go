package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BTreeMap/IntakeFlow/internal/flow"
	"github.com/BTreeMap/IntakeFlow/internal/models"
	"github.com/BTreeMap/IntakeFlow/internal/store"
	"github.com/BTreeMap/IntakeFlow/internal/testutil"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := store.NewInMemoryStore()
	t.Cleanup(func() { st.Close() })

	catalog, err := flow.NewCatalog([]flow.TopicDefinition{
		{ID: "sleep_screening", PromptTemplate: "How has your sleep been lately?"},
		{ID: "stress_check", PromptTemplate: "How stressed have you felt recently?"},
	})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}

	engine := flow.NewEngine(flow.NewStoreSessionManager(st), testutil.NewStubModelClient(), catalog)
	return NewServer(engine)
}

// doRequest routes a request through the full handler table and returns the
// recorded response.
func doRequest(t *testing.T, server *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeAPIResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", rec.Body.String(), err)
	}
	return response
}

func TestNewServerDefaults(t *testing.T) {
	server := newTestServer(t)
	if server.addr != DefaultAddr {
		t.Errorf("addr = %q, want %q", server.addr, DefaultAddr)
	}

	custom := NewServer(nil, WithAddr(":9999"))
	if custom.addr != ":9999" {
		t.Errorf("addr = %q, want :9999", custom.addr)
	}
}

func TestSessionsRouterMethodNotAllowed(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		method string
		path   string
		allow  string
	}{
		{http.MethodPut, "/sessions", "GET, POST"},
		{http.MethodPatch, "/sessions/abc", "GET, DELETE"},
		{http.MethodGet, "/sessions/abc/turns", http.MethodPost},
		{http.MethodDelete, "/sessions/abc/crisis/resolve", http.MethodPost},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := doRequest(t, server, tt.method, tt.path, "")
			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
			}
			if got := rec.Header().Get("Allow"); got != tt.allow {
				t.Errorf("Allow header = %q, want %q", got, tt.allow)
			}
		})
	}
}

func TestSessionsRouterUnknownEndpoint(t *testing.T) {
	server := newTestServer(t)

	for _, path := range []string{
		"/sessions/abc/unknown",
		"/sessions/abc/crisis/escalate",
		"/sessions/abc/turns/extra",
	} {
		rec := doRequest(t, server, http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusNotFound)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	server := newTestServer(t)

	if _, err := server.engine.CreateSession(context.Background(), models.PolicyAdaptive); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	rec := doRequest(t, server, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to unmarshal health response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", health["status"])
	}
	if got := health["active_sessions"]; got != float64(1) {
		t.Errorf("active_sessions = %v, want 1", got)
	}
	if _, ok := health["timestamp"]; !ok {
		t.Error("health response missing timestamp")
	}
}

func TestHealthHandlerMethodNotAllowed(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(t, server, http.MethodPost, "/health", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
