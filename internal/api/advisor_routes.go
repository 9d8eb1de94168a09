package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/corelearn/ale/internal/advisor"
	"github.com/corelearn/ale/internal/engineerr"
)

// GET /students/{studentID}/advisor/depth?core_loop_id=...
func (h *Handler) recommendedDepth(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	coreLoopID := r.URL.Query().Get("core_loop_id")
	if coreLoopID == "" {
		http.Error(w, "core_loop_id is required", http.StatusBadRequest)
		return
	}

	rs, err := h.store.GetReviewState(r.Context(), studentID, coreLoopID)
	if h.handleEngineError(w, err) {
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"core_loop_id": coreLoopID,
		"depth":        advisor.RecommendedDepth(rs.MasteryScore),
	})
}

// GET /students/{studentID}/advisor/prerequisites?core_loop_id=...&recent_failure_rate=...&force=bool
//
// Combines both prerequisite-facing advisor operations: should_show
// (a pure threshold over mastery and recent failure rate) and the
// `learn` action's gating check (weak transitive prerequisites, subject
// to the force override).
func (h *Handler) checkPrerequisites(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	coreLoopID := r.URL.Query().Get("core_loop_id")
	if coreLoopID == "" {
		http.Error(w, "core_loop_id is required", http.StatusBadRequest)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	recentFailureRate := 0.0
	if raw := r.URL.Query().Get("recent_failure_rate"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "recent_failure_rate must be a float", http.StatusBadRequest)
			return
		}
		recentFailureRate = parsed
	}

	rs, err := h.store.GetReviewState(r.Context(), studentID, coreLoopID)
	if h.handleEngineError(w, err) {
		return
	}
	shouldShow := advisor.ShouldShowPrerequisites(rs.MasteryScore, recentFailureRate)

	blockErr := h.advisor.CheckPrerequisites(r.Context(), studentID, coreLoopID, force)
	var blocked *engineerr.PrerequisiteBlocked
	if blockErr != nil && !errors.As(blockErr, &blocked) {
		h.handleEngineError(w, blockErr)
		return
	}

	resp := map[string]any{
		"should_show": shouldShow,
		"blocked":     blocked != nil,
	}
	if blocked != nil {
		resp["weak_prereqs"] = blocked.WeakPrereqs
	}
	respondJSON(w, http.StatusOK, resp)
}

// GET /students/{studentID}/advisor/learning-path?course_id=...&k=...
func (h *Handler) learningPath(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	courseID := r.URL.Query().Get("course_id")
	if courseID == "" {
		http.Error(w, "course_id is required", http.StatusBadRequest)
		return
	}

	k := 10
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "k must be a non-negative integer", http.StatusBadRequest)
			return
		}
		k = parsed
	}

	path, err := h.advisor.LearningPath(r.Context(), studentID, courseID, time.Now().UTC(), k)
	if h.handleEngineError(w, err) {
		return
	}

	respondJSON(w, http.StatusOK, path)
}

// GET /students/{studentID}/advisor/gaps?course_id=...
func (h *Handler) knowledgeGaps(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	courseID := r.URL.Query().Get("course_id")
	if courseID == "" {
		http.Error(w, "course_id is required", http.StatusBadRequest)
		return
	}

	gaps, err := h.advisor.KnowledgeGaps(r.Context(), studentID, courseID)
	if h.handleEngineError(w, err) {
		return
	}

	respondJSON(w, http.StatusOK, gaps)
}
