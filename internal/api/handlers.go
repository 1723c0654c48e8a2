// Package api provides HTTP handlers for IntakeFlow endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

// createSessionHandler handles POST /sessions. The body is optional; an empty
// body creates a session with the server's default workflow policy.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.createSessionHandler: processing create request", "method", r.Method, "path", r.URL.Path)

	var req models.SessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Server.createSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := req.Validate(); err != nil {
		slog.Warn("Server.createSessionHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	session, err := s.engine.CreateSession(r.Context(), req.WorkflowPolicy)
	if err != nil {
		if errors.Is(err, models.ErrInvalidWorkflowPolicy) {
			slog.Warn("Server.createSessionHandler: invalid workflow policy", "policy", req.WorkflowPolicy)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.createSessionHandler: failed to create session", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create session"))
		return
	}

	slog.Info("Server.createSessionHandler: session created", "sessionID", session.ID, "policy", session.WorkflowPolicy)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Session created successfully", session.Summarize()))
}

// listSessionsHandler handles GET /sessions.
func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.listSessionsHandler invoked", "method", r.Method, "path", r.URL.Path)

	summaries, err := s.engine.ListSessions(r.Context())
	if err != nil {
		slog.Error("Server.listSessionsHandler: failed to list sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}

	slog.Debug("Server.listSessionsHandler succeeded", "count", len(summaries))
	writeJSONResponse(w, http.StatusOK, models.Success(summaries))
}

// getSessionHandler handles GET /sessions/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Context().Value(ContextKeySessionID).(string)
	slog.Debug("Server.getSessionHandler invoked", "sessionID", sessionID)

	session, err := s.engine.Snapshot(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			slog.Debug("Server.getSessionHandler: session not found", "sessionID", sessionID)
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.getSessionHandler: failed to load session", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(session))
}

// deleteSessionHandler handles DELETE /sessions/{id}.
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Context().Value(ContextKeySessionID).(string)
	slog.Debug("Server.deleteSessionHandler invoked", "sessionID", sessionID)

	if err := s.engine.DeleteSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			slog.Debug("Server.deleteSessionHandler: session not found", "sessionID", sessionID)
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
			return
		}
		slog.Error("Server.deleteSessionHandler: failed to delete session", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete session"))
		return
	}

	slog.Info("Server.deleteSessionHandler: session deleted", "sessionID", sessionID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session deleted successfully", nil))
}

// healthHandler provides a health check endpoint for monitoring and load balancing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// Count active sessions as a health indicator.
	if summaries, err := s.engine.ListSessions(ctx); err != nil {
		slog.Warn("Health check: failed to count active sessions", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to fetch session metrics"
	} else {
		healthData["active_sessions"] = len(summaries)
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
