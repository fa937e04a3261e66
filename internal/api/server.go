// Package api exposes the tutor over HTTP: JSON session endpoints, curriculum
// queries, the chat WebSocket and health probes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/scai/internal/chat"
	"github.com/p-n-ai/scai/internal/curriculum"
	"github.com/p-n-ai/scai/internal/scai"
	"github.com/p-n-ai/scai/internal/tutor"
)

const readinessTimeout = 2 * time.Second

// Curricula lists and resolves curriculum tables. *curriculum.Loader
// satisfies it.
type Curricula interface {
	Table(subject string) (*curriculum.Table, bool)
	Subjects() []string
}

// HealthChecker is a dependency probed by /readyz.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server routes HTTP requests to the coordinator.
type Server struct {
	coord     *tutor.Coordinator
	curricula Curricula
	ws        *chat.WebSocketChannel
	wsOpts    []chat.WebSocketOption
	checks    map[string]HealthChecker
}

// Option configures a Server.
type Option func(*Server)

// WithWebSocketOptions configures the chat WebSocket channel.
func WithWebSocketOptions(opts ...chat.WebSocketOption) Option {
	return func(s *Server) {
		s.wsOpts = append(s.wsOpts, opts...)
	}
}

// WithReadinessCheck adds a named dependency to /readyz.
func WithReadinessCheck(name string, check HealthChecker) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// New creates a Server.
func New(coord *tutor.Coordinator, curricula Curricula, opts ...Option) *Server {
	s := &Server{
		coord:     coord,
		curricula: curricula,
		checks:    map[string]HealthChecker{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ws = chat.NewWebSocketChannel(coord.Handle, s.wsOpts...)
	return s
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /v1/sessions", s.handleStartSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleEndSession)
	mux.HandleFunc("POST /v1/sessions/{id}/actions", s.handleAction)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", s.handleWebSocket)

	mux.HandleFunc("GET /v1/curriculum", s.handleSubjects)
	mux.HandleFunc("GET /v1/curriculum/{subject}/chapters", s.handleChapters)
	mux.HandleFunc("GET /v1/curriculum/{subject}/chapters/{chapter}/lessons/{lesson}/goals", s.handleGoals)
	mux.HandleFunc("GET /v1/curriculum/{subject}/export.xlsx", s.handleExport)

	mux.HandleFunc("GET /v1/selections/{user}", s.handleSelection)
	mux.HandleFunc("DELETE /v1/selections/{user}", s.handleClearSelection)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "dependency", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tutor.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tutor.ErrSessionEnded), errors.Is(err, tutor.ErrUnexpectedAction):
		status = http.StatusConflict
	case errors.Is(err, tutor.ErrInvalidLevel), errors.Is(err, tutor.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, scai.ErrInvalidResponse):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
