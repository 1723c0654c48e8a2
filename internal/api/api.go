// Package api provides HTTP handlers and the main API server logic for IntakeFlow.
//
// It exposes RESTful endpoints for creating interview sessions, submitting
// conversation turns, and resolving crisis escalations. The API integrates
// with the workflow engine and the store modules.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/IntakeFlow/internal/flow"
	"github.com/BTreeMap/IntakeFlow/internal/models"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds how long Run waits for in-flight
	// requests to drain after the context is canceled.
	DefaultShutdownTimeout = 10 * time.Second
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

// ContextKeySessionID is the context key under which the session routers
// store the session ID extracted from the request path.
const ContextKeySessionID ContextKey = "sessionID"

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address (e.g. ":8080").
	Addr string
}

// Option defines a functional option for API server configuration.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// Server carries the dependencies shared by all HTTP handlers.
type Server struct {
	addr   string
	engine *flow.Engine
	srv    *http.Server
}

// NewServer creates an API server around the given workflow engine.
func NewServer(engine *flow.Engine, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	slog.Debug("api.NewServer: server configured", "addr", cfg.Addr)
	return &Server{addr: cfg.Addr, engine: engine}
}

// Handler returns the routing table for the API endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.sessionsRouter)
	mux.HandleFunc("/sessions/", s.sessionsRouter)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is canceled or the
// listener fails. On cancellation, in-flight requests are drained before Run
// returns.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("Server.Run: shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: graceful shutdown failed", "error", err)
			return fmt.Errorf("shutdown API server: %w", err)
		}
		slog.Info("Server.Run: server stopped")
		return <-errCh
	case err := <-errCh:
		if err != nil {
			slog.Error("Server.Run: listener failed", "error", err)
			return fmt.Errorf("run API server: %w", err)
		}
		return nil
	}
}

// sessionsRouter dispatches /sessions and its sub-paths. The session ID, when
// present, is stashed in the request context under ContextKeySessionID.
func (s *Server) sessionsRouter(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.sessionsRouter invoked", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/sessions")
	path = strings.TrimPrefix(path, "/")
	segments := strings.Split(path, "/")

	if len(segments) == 1 && segments[0] == "" {
		// /sessions
		switch r.Method {
		case http.MethodPost:
			s.createSessionHandler(w, r)
		case http.MethodGet:
			s.listSessionsHandler(w, r)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	sessionID := segments[0]
	r = r.WithContext(context.WithValue(r.Context(), ContextKeySessionID, sessionID))

	if len(segments) == 1 {
		// /sessions/{id}
		switch r.Method {
		case http.MethodGet:
			s.getSessionHandler(w, r)
		case http.MethodDelete:
			s.deleteSessionHandler(w, r)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 && segments[1] == "turns" {
		// /sessions/{id}/turns
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.submitTurnHandler(w, r)
		return
	}

	if len(segments) == 3 && segments[1] == "crisis" && segments[2] == "resolve" {
		// /sessions/{id}/crisis/resolve
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.resolveCrisisHandler(w, r)
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown session endpoint"))
}
