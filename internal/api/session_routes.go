package api

import (
	"net/http"

	"github.com/corelearn/ale/internal/domain/quizsession"
	"github.com/corelearn/ale/internal/session"
)

type createSessionRequest struct {
	StudentID     string             `json:"student_id"`
	CourseID      string             `json:"course_id"`
	QuizType      string             `json:"quiz_type"`
	Count         int                `json:"count"`
	TopicID       *string            `json:"topic_id,omitempty"`
	CoreLoopID    *string            `json:"core_loop_id,omitempty"`
	Difficulty    *string            `json:"difficulty,omitempty"`
	Type          *string            `json:"type,omitempty"`
	PrioritizeDue bool               `json:"prioritize_due"`
}

type sessionResponse struct {
	ID          string   `json:"id"`
	StudentID   string   `json:"student_id"`
	CourseID    string   `json:"course_id"`
	QuizType    string   `json:"quiz_type"`
	State       string   `json:"state"`
	QuestionIDs []string `json:"question_ids"`
}

func toSessionResponse(sess *quizsession.Session) sessionResponse {
	return sessionResponse{
		ID:          sess.ID,
		StudentID:   sess.StudentID,
		CourseID:    sess.CourseID,
		QuizType:    string(sess.QuizType),
		State:       string(sess.State),
		QuestionIDs: sess.QuestionIDs,
	}
}

// POST /sessions
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sess, err := h.manager.Create(r.Context(), session.CreateParams{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		QuizType:  quizsession.Type(req.QuizType),
		Count:     req.Count,
		Filters: quizsession.Filters{
			TopicID:    req.TopicID,
			CoreLoopID: req.CoreLoopID,
			Difficulty: req.Difficulty,
			Type:       req.Type,
		},
		PrioritizeDue: req.PrioritizeDue,
	})
	if h.handleEngineError(w, err) {
		return
	}

	respondJSON(w, http.StatusCreated, toSessionResponse(sess))
}

// GET /sessions/{sessionID}
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	sess, err := h.store.GetSession(r.Context(), sessionID)
	if h.handleEngineError(w, err) {
		return
	}

	respondJSON(w, http.StatusOK, toSessionResponse(sess))
}

// GET /sessions/{sessionID}/status
type sessionStatusResponse struct {
	SessionID     string `json:"session_id"`
	State         string `json:"state"`
	NextIndex     int    `json:"next_index"` // -1 if every question is answered
	Answered      int    `json:"answered"`
	TotalQuestions int   `json:"total_questions"`
}

func (h *Handler) getSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	sess, err := h.store.GetSession(r.Context(), sessionID)
	if h.handleEngineError(w, err) {
		return
	}

	nextIndex, err := h.manager.NextQuestion(r.Context(), sessionID)
	if h.handleEngineError(w, err) {
		return
	}

	answers, err := h.store.ListAnswers(r.Context(), sessionID)
	if h.handleEngineError(w, err) {
		return
	}

	respondJSON(w, http.StatusOK, sessionStatusResponse{
		SessionID:      sessionID,
		State:          string(sess.State),
		NextIndex:      nextIndex,
		Answered:       len(answers),
		TotalQuestions: len(sess.QuestionIDs),
	})
}

// POST /sessions/{sessionID}/answers
type submitAnswerRequest struct {
	ExerciseID string `json:"exercise_id"`
	Answer     string `json:"answer"`
	TimeTakenS int    `json:"time_taken_s"`
	HintUsed   bool   `json:"hint_used"`
	DryRun     bool   `json:"dry_run"`
}

type submitAnswerResponse struct {
	Correct   bool    `json:"correct"`
	Score     float64 `json:"score"`
	Feedback  string  `json:"feedback"`
	Remaining int     `json:"remaining"`
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	var req submitAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.manager.SubmitAnswer(r.Context(), sessionID, req.ExerciseID, req.Answer, req.TimeTakenS, req.HintUsed, req.DryRun)
	if h.handleEngineError(w, err) {
		return
	}

	respondJSON(w, http.StatusOK, submitAnswerResponse{
		Correct:   result.Correct,
		Score:     result.Score,
		Feedback:  result.Feedback,
		Remaining: result.Remaining,
	})
}

// POST /sessions/{sessionID}/complete
func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	summary, err := h.manager.Complete(r.Context(), sessionID)
	if h.handleEngineError(w, err) {
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// POST /sessions/{sessionID}/abandon
func (h *Handler) abandonSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	if err := h.manager.Abandon(r.Context(), sessionID); h.handleEngineError(w, err) {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
