package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joescharf/rangelog/internal/auth"
	"github.com/joescharf/rangelog/internal/llm"
	"github.com/joescharf/rangelog/internal/sessions"
	"github.com/joescharf/rangelog/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	sessions *sessions.Manager
	closer   sessions.AutoCloser
	verifier *auth.Verifier
	llm      *llm.Client
}

// NewServer creates a new API server.
// The llmClient may be nil if no API key is configured.
func NewServer(s store.Store, m *sessions.Manager, closer sessions.AutoCloser, v *auth.Verifier, llmClient *llm.Client) *Server {
	return &Server{
		store:    s,
		sessions: m,
		closer:   closer,
		verifier: v,
		llm:      llmClient,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("POST /api/v1/sessions", s.createSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/end", s.endSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", s.cancelSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/targets", s.listTargets)
	mux.HandleFunc("POST /api/v1/sessions/{id}/targets", s.appendTarget)
	mux.HandleFunc("GET /api/v1/sessions/{id}/stats", s.sessionStats)
	mux.HandleFunc("GET /api/v1/sessions/{id}/score", s.sessionScore)
	mux.HandleFunc("GET /api/v1/sessions/{id}/evaluation", s.sessionEvaluation)
	mux.HandleFunc("POST /api/v1/sessions/{id}/debrief", s.sessionDebrief)

	mux.HandleFunc("POST /api/v1/targets/{id}/result", s.attachResult)

	mux.HandleFunc("GET /api/v1/drills", s.listDrills)
	mux.HandleFunc("POST /api/v1/drills", s.createDrill)
	mux.HandleFunc("GET /api/v1/drills/{id}", s.getDrill)

	mux.HandleFunc("GET /api/v1/trainings", s.listTrainings)
	mux.HandleFunc("POST /api/v1/trainings", s.createTraining)
	mux.HandleFunc("GET /api/v1/trainings/{id}", s.getTraining)
	mux.HandleFunc("GET /api/v1/trainings/{id}/drills", s.listTrainingDrills)
	mux.HandleFunc("POST /api/v1/trainings/{id}/drills", s.createTrainingDrill)
	mux.HandleFunc("POST /api/v1/trainings/{id}/recheck", s.recheckTraining)

	return corsMiddleware(s.verifier.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps session engine errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var conflict *sessions.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":              err.Error(),
			"training_id":        conflict.TrainingID,
			"session_id":         conflict.SessionID,
			"active_drill_id":    conflict.ActiveDrillID,
			"requested_drill_id": conflict.RequestedDrill,
		})
		return
	}
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sessions.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, sessions.ErrActiveSessionConflict),
		errors.Is(err, sessions.ErrSessionEnded),
		errors.Is(err, sessions.ErrResultExists):
		return http.StatusConflict
	case errors.Is(err, sessions.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sessions.ErrMissingDrillConfiguration),
		errors.Is(err, sessions.ErrDrillTrainingMismatch),
		errors.Is(err, sessions.ErrDrillSelectionRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sessions.ErrInvalidResult),
		errors.Is(err, sessions.ErrInvalidTarget),
		errors.Is(err, sessions.ErrTargetMismatch):
		return http.StatusBadRequest
	}
	slog.Warn("request failed", "error", err)
	return http.StatusInternalServerError
}

// requireOwner writes 401 and returns false when the request carries no
// valid token.
func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := auth.OwnerID(r.Context())
	if owner == "" {
		writeError(w, http.StatusUnauthorized, sessions.ErrNotAuthenticated.Error())
		return "", false
	}
	return owner, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}
