package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/corelearn/ale/internal/aggregator"
	"github.com/corelearn/ale/internal/domain/coreloop"
	"github.com/corelearn/ale/internal/domain/exercise"
	"github.com/corelearn/ale/internal/domain/mastery"
	"github.com/corelearn/ale/internal/domain/quizsession"
	"github.com/corelearn/ale/internal/domain/reviewstate"
	"github.com/corelearn/ale/internal/domain/topic"
	"github.com/corelearn/ale/internal/engineerr"
	"github.com/corelearn/ale/internal/evaluator"
	"github.com/corelearn/ale/internal/session"
	"github.com/corelearn/ale/internal/store"
)

// memStore is a minimal in-memory store.MasteryStore for exercising the
// Session Manager end to end without a real database.
type memStore struct {
	mu        sync.Mutex
	exercises []*exercise.Exercise
	byID      map[string]*exercise.Exercise
	sessions  map[string]*quizsession.Session
	answers   map[string][]*quizsession.Answer
	states    map[string]*reviewstate.ReviewState
}

var _ store.MasteryStore = (*memStore)(nil)

func newMemStore(exercises []*exercise.Exercise) *memStore {
	byID := make(map[string]*exercise.Exercise, len(exercises))
	for _, ex := range exercises {
		byID[ex.ID] = ex
	}
	return &memStore{
		exercises: exercises,
		byID:      byID,
		sessions:  make(map[string]*quizsession.Session),
		answers:   make(map[string][]*quizsession.Answer),
		states:    make(map[string]*reviewstate.ReviewState),
	}
}

func (s *memStore) ListExercises(context.Context, string, store.ExerciseFilter) ([]*exercise.Exercise, error) {
	return s.exercises, nil
}
func (s *memStore) GetExercise(ctx context.Context, id string) (*exercise.Exercise, error) {
	ex, ok := s.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return ex, nil
}
func (s *memStore) GetReviewState(ctx context.Context, studentID, coreLoopID string) (*reviewstate.ReviewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs, ok := s.states[coreLoopID]; ok {
		return rs, nil
	}
	return reviewstate.New(studentID, coreLoopID), nil
}
func (s *memStore) Cascade(ctx context.Context, params store.CascadeParams) (store.CascadeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loopIDs := append([]string{params.PrimaryCoreLoopID}, params.SecondaryCoreLoopIDs...)
	current := make(map[string]*reviewstate.ReviewState, len(loopIDs))
	for _, id := range loopIDs {
		rs, ok := s.states[id]
		if !ok {
			rs = reviewstate.New(params.StudentID, id)
		}
		current[id] = rs
	}

	updated := params.Compute(current)
	for id, rs := range updated {
		s.states[id] = rs
	}
	return store.CascadeResult{UpdatedStates: updated}, nil
}
func (s *memStore) SaveSession(ctx context.Context, sess *quizsession.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}
func (s *memStore) GetSession(ctx context.Context, id string) (*quizsession.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *sess
	return &copied, nil
}
func (s *memStore) SetSessionState(ctx context.Context, id string, state quizsession.State, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	sess.State = state
	if completedAt != nil {
		sess.CompletedAt = completedAt
	}
	return nil
}
func (s *memStore) SaveAnswer(ctx context.Context, a *quizsession.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.answers[a.SessionID] {
		if existing.QuestionIndex == a.QuestionIndex {
			return engineerr.ErrAlreadyAnswered
		}
	}
	s.answers[a.SessionID] = append(s.answers[a.SessionID], a)
	return nil
}
func (s *memStore) ListAnswers(ctx context.Context, sessionID string) ([]*quizsession.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*quizsession.Answer(nil), s.answers[sessionID]...), nil
}
func (s *memStore) GetAnswer(ctx context.Context, sessionID string, questionIndex int) (*quizsession.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.answers[sessionID] {
		if a.QuestionIndex == questionIndex {
			return a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memStore) InsertExercise(context.Context, *exercise.Exercise) error { return nil }
func (s *memStore) InsertCoreLoop(context.Context, *coreloop.CoreLoop) error { return nil }
func (s *memStore) GetCoreLoop(context.Context, string) (*coreloop.CoreLoop, error) {
	return nil, store.ErrNotFound
}
func (s *memStore) ListCoreLoopsByTopic(context.Context, string) ([]*coreloop.CoreLoop, error) {
	return nil, nil
}
func (s *memStore) InsertTopic(context.Context, *topic.Topic) error { return nil }
func (s *memStore) ListTopicsByCourse(context.Context, string) ([]*topic.Topic, error) {
	return nil, nil
}
func (s *memStore) ListReviewStatesByCourse(context.Context, string, string) ([]*reviewstate.ReviewState, error) {
	return nil, nil
}
func (s *memStore) GetTopicMastery(context.Context, string, string) (*mastery.TopicMastery, error) {
	return &mastery.TopicMastery{}, nil
}
func (s *memStore) GetCourseMastery(context.Context, string, string) (*mastery.CourseMastery, error) {
	return &mastery.CourseMastery{}, nil
}
func (s *memStore) SaveEdge(context.Context, string, string) error { return nil }
func (s *memStore) ListEdges(context.Context) ([]store.Edge, error) {
	return nil, nil
}
func (s *memStore) Close() error { return nil }

// fakeEvaluator returns a fixed score for every answer.
type fakeEvaluator struct {
	score   float64
	correct bool
	err     error
}

func (f fakeEvaluator) Evaluate(ctx context.Context, exerciseID, userAnswer, language string) (evaluator.Result, error) {
	if f.err != nil {
		return evaluator.Result{}, f.err
	}
	return evaluator.Result{Score: f.score, Correct: f.correct, Feedback: "ok"}, nil
}

func newTestManager(t *testing.T, exercises []*exercise.Exercise, eval evaluator.Evaluator) (*session.Manager, *memStore) {
	t.Helper()
	ms := newMemStore(exercises)
	agg := aggregator.New(ms)
	mgr := session.New(ms, eval, agg, nil)
	return mgr, ms
}

func makeExercises(t *testing.T, n int) []*exercise.Exercise {
	t.Helper()
	var out []*exercise.Exercise
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		ex, err := exercise.New("ex-"+id, "course-1", "topic-1", []string{"loop-" + id}, exercise.DifficultyMedium, exercise.TypeProcedural, nil)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, ex)
	}
	return out
}

func TestCreate_FreezesQuestionOrder(t *testing.T) {
	mgr, ms := newTestManager(t, makeExercises(t, 3), fakeEvaluator{score: 1.0, correct: true})

	sess, err := mgr.Create(context.Background(), session.CreateParams{
		StudentID: "s1",
		CourseID:  "course-1",
		QuizType:  quizsession.TypeRandom,
		Count:     3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.QuestionIDs) != 3 {
		t.Fatalf("expected 3 question ids, got %d", len(sess.QuestionIDs))
	}
	want := append([]string(nil), sess.QuestionIDs...)

	// A later ingest must not change the persisted question list.
	ms.exercises = append(ms.exercises, makeExercises(t, 4)[3])
	stored, err := ms.GetSession(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.QuestionIDs) != len(want) {
		t.Fatalf("expected %d stored question ids, got %d", len(want), len(stored.QuestionIDs))
	}
	for i := range want {
		if stored.QuestionIDs[i] != want[i] {
			t.Errorf("question %d: expected %q, got %q", i, want[i], stored.QuestionIDs[i])
		}
	}
}

func TestSubmitAnswer_RejectsOutOfOrder(t *testing.T) {
	mgr, _ := newTestManager(t, makeExercises(t, 2), fakeEvaluator{score: 1.0, correct: true})

	sess, err := mgr.Create(context.Background(), session.CreateParams{
		StudentID: "s1", CourseID: "course-1", QuizType: quizsession.TypeRandom, Count: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	wrongID := sess.QuestionIDs[0] + "-wrong"
	_, err = mgr.SubmitAnswer(context.Background(), sess.ID, wrongID, "answer", 10, false, false)
	if err != engineerr.ErrOutOfOrderSubmission {
		t.Fatalf("expected ErrOutOfOrderSubmission, got %v", err)
	}
}

func TestSubmitAnswer_RejectsAlreadyAnswered(t *testing.T) {
	mgr, _ := newTestManager(t, makeExercises(t, 2), fakeEvaluator{score: 1.0, correct: true})

	sess, err := mgr.Create(context.Background(), session.CreateParams{
		StudentID: "s1", CourseID: "course-1", QuizType: quizsession.TypeRandom, Count: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	first := sess.QuestionIDs[0]
	if _, err := mgr.SubmitAnswer(context.Background(), sess.ID, first, "answer", 10, false, false); err != nil {
		t.Fatal(err)
	}

	_, err = mgr.SubmitAnswer(context.Background(), sess.ID, first, "answer again", 10, false, false)
	if err != engineerr.ErrAlreadyAnswered {
		t.Fatalf("expected ErrAlreadyAnswered on repeat, got %v", err)
	}
}

func TestSubmitAnswer_EvaluatorFailureStillAdvancesSM2(t *testing.T) {
	mgr, ms := newTestManager(t, makeExercises(t, 1), fakeEvaluator{err: engineerr.ErrEvaluatorUnavailable})

	sess, err := mgr.Create(context.Background(), session.CreateParams{
		StudentID: "s1", CourseID: "course-1", QuizType: quizsession.TypeRandom, Count: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := mgr.SubmitAnswer(context.Background(), sess.ID, sess.QuestionIDs[0], "answer", 10, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Correct {
		t.Error("expected correct=false on evaluator failure")
	}
	if result.Score != 0.0 {
		t.Errorf("expected score 0.0 on evaluator failure, got %v", result.Score)
	}

	rs := ms.states["loop-a"]
	if rs == nil || rs.TotalAttempts != 1 {
		t.Errorf("expected SM-2 state to advance even on evaluator failure, got %+v", rs)
	}
}

func TestSubmitAnswer_DryRunSurfacesEvaluatorErrorWithoutMutating(t *testing.T) {
	mgr, ms := newTestManager(t, makeExercises(t, 1), fakeEvaluator{err: engineerr.ErrEvaluatorUnavailable})

	sess, err := mgr.Create(context.Background(), session.CreateParams{
		StudentID: "s1", CourseID: "course-1", QuizType: quizsession.TypeRandom, Count: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = mgr.SubmitAnswer(context.Background(), sess.ID, sess.QuestionIDs[0], "answer", 10, false, true)
	if err != engineerr.ErrEvaluatorUnavailable {
		t.Fatalf("expected ErrEvaluatorUnavailable, got %v", err)
	}

	if rs := ms.states["loop-a"]; rs != nil {
		t.Errorf("expected dry_run to leave SM-2 state untouched, got %+v", rs)
	}
	answers, err := ms.ListAnswers(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(answers) != 0 {
		t.Errorf("expected dry_run to persist no answer, got %d", len(answers))
	}

	// The non-dry_run default still downgrades and advances SM-2.
	result, err := mgr.SubmitAnswer(context.Background(), sess.ID, sess.QuestionIDs[0], "answer", 10, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Correct {
		t.Error("expected correct=false on evaluator failure")
	}
	if ms.states["loop-a"] == nil {
		t.Error("expected the default (dry_run=false) path to advance SM-2")
	}
}

func TestComplete_IsIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t, makeExercises(t, 1), fakeEvaluator{score: 1.0, correct: true})

	sess, err := mgr.Create(context.Background(), session.CreateParams{
		StudentID: "s1", CourseID: "course-1", QuizType: quizsession.TypeRandom, Count: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.SubmitAnswer(context.Background(), sess.ID, sess.QuestionIDs[0], "a", 5, false, false); err != nil {
		t.Fatal(err)
	}

	first, err := mgr.Complete(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := mgr.Complete(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}

	if first.PercentCorrect != second.PercentCorrect || first.Passed != second.Passed {
		t.Errorf("expected idempotent summary, got %+v then %+v", first, second)
	}
	if !first.Passed {
		t.Errorf("expected passed=true for 100%% correct, got %+v", first)
	}
}
