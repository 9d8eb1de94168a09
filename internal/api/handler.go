// Package api exposes the Adaptive Learning Engine over HTTP: session
// lifecycle, scheduling reads, advisor queries, and prerequisite graph
// operations (spec.md §6.4).
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corelearn/ale/internal/advisor"
	"github.com/corelearn/ale/internal/domain/prerequisite"
	"github.com/corelearn/ale/internal/engineerr"
	"github.com/corelearn/ale/internal/session"
	"github.com/corelearn/ale/internal/store"
)

// Handler holds every dependency an HTTP handler method needs. No
// package-level globals: every handler receives the engine's state
// through this struct, constructed once at startup.
type Handler struct {
	store   store.MasteryStore
	manager *session.Manager
	advisor *advisor.Advisor
	graph   *prerequisite.Graph
	logger  *slog.Logger
}

// NewHandler builds a Handler with the given dependencies.
func NewHandler(s store.MasteryStore, mgr *session.Manager, adv *advisor.Advisor, g *prerequisite.Graph, logger *slog.Logger) *Handler {
	return &Handler{
		store:   s,
		manager: mgr,
		advisor: adv,
		graph:   g,
		logger:  logger,
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// handleEngineError maps the engineerr taxonomy and store.ErrNotFound to
// HTTP status codes in one switch, mirroring the teacher's
// handleStoreError. Returns true if an error was handled (caller should
// return without writing anything else).
func (h *Handler) handleEngineError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}

	var blocked *engineerr.PrerequisiteBlocked
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, engineerr.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engineerr.ErrNoCandidates), errors.Is(err, engineerr.ErrInvalidFilter):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engineerr.ErrOutOfOrderSubmission), errors.Is(err, engineerr.ErrAlreadyAnswered),
		errors.Is(err, engineerr.ErrSessionComplete), errors.Is(err, engineerr.ErrWouldCreateCycle):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engineerr.ErrSessionBusy):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.As(err, &blocked):
		respondJSON(w, http.StatusLocked, map[string]any{
			"error":        "prerequisite_blocked",
			"weak_prereqs": blocked.WeakPrereqs,
		})
	case errors.Is(err, engineerr.ErrEvaluatorUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.logger.Error("unhandled engine error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	return true
}
