// Package session implements the Session Manager: the QuizSession
// lifecycle state machine (open -> complete / open -> abandoned) and its
// four operations, with per-session serialization and idempotence.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corelearn/ale/internal/aggregator"
	"github.com/corelearn/ale/internal/domain/exercise"
	"github.com/corelearn/ale/internal/domain/quizsession"
	"github.com/corelearn/ale/internal/engineerr"
	"github.com/corelearn/ale/internal/evaluator"
	"github.com/corelearn/ale/internal/selector"
	"github.com/corelearn/ale/internal/store"
)

// Manager owns the QuizSession lifecycle. It serializes mutating
// operations per session id (one mutex per session, generalizing the
// teacher's one-WaitGroup-per-session pattern from fire-and-forget
// grading to a synchronous critical section) and keeps the Mastery
// Store as the single source of truth.
type Manager struct {
	store      store.MasteryStore
	evaluator  evaluator.Evaluator
	aggregator *aggregator.Aggregator
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]*sync.Mutex // sessionID -> per-session lock
}

func New(s store.MasteryStore, e evaluator.Evaluator, agg *aggregator.Aggregator, logger *slog.Logger) *Manager {
	return &Manager{
		store:      s,
		evaluator:  e,
		aggregator: agg,
		logger:     logger,
		pending:    make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockFor(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.pending[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.pending[sessionID] = l
	}
	return l
}

// tryLock acquires the session's lock without blocking, reporting
// engineerr.ErrSessionBusy if another operation already holds it.
func (m *Manager) tryLock(sessionID string) (func(), error) {
	l := m.lockFor(sessionID)
	if !l.TryLock() {
		return nil, engineerr.ErrSessionBusy
	}
	return l.Unlock, nil
}

// CreateParams describes a create() call.
type CreateParams struct {
	StudentID     string
	CourseID      string
	QuizType      quizsession.Type
	Count         int
	Filters       quizsession.Filters
	PrioritizeDue bool
}

// Create selects question ids via the Quiz Selector, freezes them in
// order, persists the session, and returns it.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*quizsession.Session, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	ids, err := selector.Select(ctx, m.store, selector.Params{
		StudentID:     params.StudentID,
		CourseID:      params.CourseID,
		QuizType:      string(params.QuizType),
		Count:         params.Count,
		Filters:       filtersToStoreFilter(params.Filters),
		PrioritizeDue: params.PrioritizeDue,
		SessionID:     id,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	sess := quizsession.New(id, params.StudentID, params.CourseID, params.QuizType, params.Filters, ids, now)
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}

	return sess, nil
}

func filtersToStoreFilter(f quizsession.Filters) store.ExerciseFilter {
	filter := store.ExerciseFilter{
		TopicID:    f.TopicID,
		CoreLoopID: f.CoreLoopID,
	}
	if f.Difficulty != nil {
		d := exercise.Difficulty(*f.Difficulty)
		filter.Difficulty = &d
	}
	if f.Type != nil {
		typ := exercise.Type(*f.Type)
		filter.Type = &typ
	}
	return filter
}

// NextQuestion returns the question_index of the first unanswered
// question in the session, or -1 if every question has been answered.
func (m *Manager) NextQuestion(ctx context.Context, sessionID string) (int, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return -1, err
	}

	answers, err := m.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return -1, err
	}

	answered := make(map[int]struct{}, len(answers))
	for _, a := range answers {
		answered[a.QuestionIndex] = struct{}{}
	}

	for i := range sess.QuestionIDs {
		if _, ok := answered[i]; !ok {
			return i, nil
		}
	}
	return -1, nil
}

// SubmitResult is what submit_answer returns to the caller.
type SubmitResult struct {
	Correct         bool
	Score           float64
	Feedback        string
	NewReviewState  store.CascadeResult
	Remaining       int
}

// SubmitAnswer verifies exerciseID matches the expected next question,
// calls the Evaluator, runs Quality Mapper -> SM-2 -> Mastery Aggregator,
// persists the answer, and returns the outcome.
//
// On Evaluator failure the default (dryRun=false) is spec.md §5's
// default: downgrade to a score=0.0, correct=false outcome and still
// update SM-2 — the student effectively failed the attempt. Passing
// dryRun=true takes the non-mutating path instead: nothing is
// persisted and ErrEvaluatorUnavailable is returned to the caller.
func (m *Manager) SubmitAnswer(ctx context.Context, sessionID, exerciseID, userAnswer string, timeTakenS int, hintUsed, dryRun bool) (SubmitResult, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if sess.State != quizsession.StateOpen {
		return SubmitResult{}, engineerr.ErrSessionComplete
	}

	nextIndex, err := m.NextQuestion(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if nextIndex == -1 {
		return SubmitResult{}, engineerr.ErrAlreadyAnswered
	}
	if sess.QuestionIDs[nextIndex] != exerciseID {
		for i := 0; i < nextIndex; i++ {
			if sess.QuestionIDs[i] == exerciseID {
				return SubmitResult{}, engineerr.ErrAlreadyAnswered
			}
		}
		return SubmitResult{}, engineerr.ErrOutOfOrderSubmission
	}

	ex, err := m.store.GetExercise(ctx, exerciseID)
	if err != nil {
		return SubmitResult{}, err
	}

	// The Evaluator call happens before the per-session lock is taken,
	// so network latency never holds the lock (spec.md §4.6/§5).
	evalResult, evalErr := m.evaluator.Evaluate(ctx, exerciseID, userAnswer, "")

	unlock, err := m.tryLock(sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	defer unlock()

	// Re-check idempotence under the lock: another goroutine may have
	// answered this index between the unlocked check above and here.
	nextIndex, err = m.NextQuestion(ctx, sessionID)
	if err != nil {
		return SubmitResult{}, err
	}
	if nextIndex == -1 || sess.QuestionIDs[nextIndex] != exerciseID {
		return SubmitResult{}, engineerr.ErrAlreadyAnswered
	}

	if evalErr != nil && dryRun {
		return SubmitResult{}, engineerr.ErrEvaluatorUnavailable
	}

	score := 0.0
	feedback := "evaluator unavailable: answer recorded as incorrect"
	correct := false
	if evalErr == nil {
		score = evalResult.Score
		feedback = evalResult.Feedback
		correct = evalResult.Correct
	}

	now := time.Now().UTC()
	cascadeResult, err := m.aggregator.Cascade(ctx, sess.StudentID, ex, now, aggregator.Outcome{
		Score:    score,
		HintUsed: hintUsed,
	})
	if err != nil {
		return SubmitResult{}, err
	}

	answer := &quizsession.Answer{
		SessionID:     sessionID,
		QuestionIndex: nextIndex,
		ExerciseID:    exerciseID,
		UserAnswer:    userAnswer,
		Score:         score,
		Correct:       correct,
		HintUsed:      hintUsed,
		TimeTakenS:    timeTakenS,
		SubmittedAt:   now,
	}
	if err := m.store.SaveAnswer(ctx, answer); err != nil {
		return SubmitResult{}, err
	}

	remaining := len(sess.QuestionIDs) - (nextIndex + 1)

	return SubmitResult{
		Correct:        correct,
		Score:          score,
		Feedback:       feedback,
		NewReviewState: cascadeResult,
		Remaining:      remaining,
	}, nil
}

// Complete transitions the session to complete and computes its
// summary. It is idempotent: a session already complete returns the
// same summary recomputed from persisted answers.
func (m *Manager) Complete(ctx context.Context, sessionID string) (*quizsession.Summary, error) {
	unlock, err := m.tryLock(sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	answers, err := m.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.State == quizsession.StateOpen {
		now := time.Now().UTC()
		if err := m.store.SetSessionState(ctx, sessionID, quizsession.StateComplete, &now); err != nil {
			return nil, err
		}
	}

	return m.summarize(ctx, sessionID, sess, answers)
}

// Abandon transitions an open session to abandoned.
func (m *Manager) Abandon(ctx context.Context, sessionID string) error {
	unlock, err := m.tryLock(sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State != quizsession.StateOpen {
		return engineerr.ErrSessionComplete
	}

	now := time.Now().UTC()
	return m.store.SetSessionState(ctx, sessionID, quizsession.StateAbandoned, &now)
}

func (m *Manager) summarize(ctx context.Context, sessionID string, sess *quizsession.Session, answers []*quizsession.Answer) (*quizsession.Summary, error) {
	total := len(sess.QuestionIDs)
	correct := 0
	breakdown := make(map[string]quizsession.DifficultyBreakdown)

	for _, a := range answers {
		if a.Correct {
			correct++
		}

		ex, err := m.store.GetExercise(ctx, a.ExerciseID)
		if err != nil {
			return nil, err
		}

		b := breakdown[string(ex.Difficulty)]
		b.Total++
		if a.Correct {
			b.Correct++
		}
		breakdown[string(ex.Difficulty)] = b
	}

	percent := 0.0
	if total > 0 {
		percent = float64(correct) / float64(total) * 100
	}

	return &quizsession.Summary{
		SessionID:         sessionID,
		PercentCorrect:    percent,
		Passed:            percent >= 60,
		PerDifficulty:     breakdown,
		TotalQuestions:    total,
		AnsweredQuestions: len(answers),
	}, nil
}
