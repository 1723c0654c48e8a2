// Package api provides conversation turn handlers for IntakeFlow endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/IntakeFlow/internal/models"
)

// submitTurnHandler handles POST /sessions/{id}/turns. It runs one full
// engine turn and returns the assistant reply with the resulting mode.
func (s *Server) submitTurnHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Context().Value(ContextKeySessionID).(string)
	slog.Debug("Server.submitTurnHandler invoked", "sessionID", sessionID)

	var req models.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.submitTurnHandler: failed to decode JSON", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.engine.SubmitTurn(r.Context(), sessionID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			slog.Debug("Server.submitTurnHandler: session not found", "sessionID", sessionID)
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		case errors.Is(err, models.ErrEmptyMessage),
			errors.Is(err, models.ErrMessageTooLong),
			errors.Is(err, models.ErrTurnIDTooLong):
			slog.Warn("Server.submitTurnHandler: validation failed", "error", err, "sessionID", sessionID)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.submitTurnHandler: failed to process turn", "error", err, "sessionID", sessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process turn"))
		}
		return
	}

	slog.Info("Server.submitTurnHandler: turn processed", "sessionID", sessionID, "mode", result.Mode, "complete", result.Complete)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// resolveCrisisHandler handles POST /sessions/{id}/crisis/resolve. Clearing
// the crisis flag is reserved for human reviewers; the engine never does it
// on its own.
func (s *Server) resolveCrisisHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Context().Value(ContextKeySessionID).(string)
	slog.Debug("Server.resolveCrisisHandler invoked", "sessionID", sessionID)

	session, err := s.engine.ResolveCrisis(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			slog.Debug("Server.resolveCrisisHandler: session not found", "sessionID", sessionID)
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		case errors.Is(err, models.ErrSessionNotInCrisis):
			slog.Warn("Server.resolveCrisisHandler: session not in crisis", "sessionID", sessionID)
			writeJSONResponse(w, http.StatusConflict, models.Error("Session is not in crisis"))
		default:
			slog.Error("Server.resolveCrisisHandler: failed to resolve crisis", "error", err, "sessionID", sessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve crisis"))
		}
		return
	}

	slog.Info("Server.resolveCrisisHandler: crisis flag cleared", "sessionID", sessionID, "mode", session.Mode)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Crisis flag cleared", session))
}
