package api

import (
	"net/http"
	"time"

	"github.com/corelearn/ale/internal/domain/reviewstate"
)

type dueItemResponse struct {
	CoreLoopID    string     `json:"core_loop_id"`
	MasteryScore  float64    `json:"mastery_score"`
	NextReview    *time.Time `json:"next_review,omitempty"`
	TotalAttempts int        `json:"total_attempts"`
}

// GET /students/{studentID}/courses/{courseID}/due?as_of=RFC3339
func (h *Handler) dueItems(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	courseID := r.PathValue("courseID")

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid as_of: must be RFC3339", http.StatusBadRequest)
			return
		}
		asOf = parsed
	}

	states, err := h.store.ListReviewStatesByCourse(r.Context(), studentID, courseID)
	if h.handleEngineError(w, err) {
		return
	}

	var due []dueItemResponse
	for _, rs := range states {
		if !isDueAsOf(rs, asOf) {
			continue
		}
		due = append(due, dueItemResponse{
			CoreLoopID:    rs.CoreLoopID,
			MasteryScore:  rs.MasteryScore,
			NextReview:    rs.NextReview,
			TotalAttempts: rs.TotalAttempts,
		})
	}

	respondJSON(w, http.StatusOK, due)
}

func isDueAsOf(rs *reviewstate.ReviewState, asOf time.Time) bool {
	if rs.NextReview == nil {
		return true
	}
	return !rs.NextReview.After(asOf)
}

type masteryResponse struct {
	Scope string  `json:"scope"`
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// GET /students/{studentID}/mastery?scope=topic|course&id=...
func (h *Handler) mastery(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	scope := r.URL.Query().Get("scope")
	id := r.URL.Query().Get("id")

	switch scope {
	case "topic":
		tm, err := h.store.GetTopicMastery(r.Context(), studentID, id)
		if h.handleEngineError(w, err) {
			return
		}
		respondJSON(w, http.StatusOK, masteryResponse{Scope: scope, ID: id, Score: tm.Score})
	case "course":
		cm, err := h.store.GetCourseMastery(r.Context(), studentID, id)
		if h.handleEngineError(w, err) {
			return
		}
		respondJSON(w, http.StatusOK, masteryResponse{Scope: scope, ID: id, Score: cm.Score})
	default:
		http.Error(w, "scope must be topic or course", http.StatusBadRequest)
	}
}
