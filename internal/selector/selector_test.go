package selector_test

import (
	"context"
	"testing"
	"time"

	"github.com/corelearn/ale/internal/domain/coreloop"
	"github.com/corelearn/ale/internal/domain/exercise"
	"github.com/corelearn/ale/internal/domain/mastery"
	"github.com/corelearn/ale/internal/domain/quizsession"
	"github.com/corelearn/ale/internal/domain/reviewstate"
	"github.com/corelearn/ale/internal/domain/topic"
	"github.com/corelearn/ale/internal/engineerr"
	"github.com/corelearn/ale/internal/selector"
	"github.com/corelearn/ale/internal/store"
)

type fakeStore struct {
	exercises []*exercise.Exercise
	states    map[string]*reviewstate.ReviewState
}

var _ store.MasteryStore = (*fakeStore)(nil)

func (f *fakeStore) ListExercises(context.Context, string, store.ExerciseFilter) ([]*exercise.Exercise, error) {
	return f.exercises, nil
}
func (f *fakeStore) GetReviewState(ctx context.Context, studentID, coreLoopID string) (*reviewstate.ReviewState, error) {
	if rs, ok := f.states[coreLoopID]; ok {
		return rs, nil
	}
	return reviewstate.New(studentID, coreLoopID), nil
}

func (f *fakeStore) InsertExercise(context.Context, *exercise.Exercise) error { return nil }
func (f *fakeStore) GetExercise(context.Context, string) (*exercise.Exercise, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) InsertCoreLoop(context.Context, *coreloop.CoreLoop) error { return nil }
func (f *fakeStore) GetCoreLoop(context.Context, string) (*coreloop.CoreLoop, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListCoreLoopsByTopic(context.Context, string) ([]*coreloop.CoreLoop, error) {
	return nil, nil
}
func (f *fakeStore) InsertTopic(context.Context, *topic.Topic) error { return nil }
func (f *fakeStore) ListTopicsByCourse(context.Context, string) ([]*topic.Topic, error) {
	return nil, nil
}
func (f *fakeStore) ListReviewStatesByCourse(context.Context, string, string) ([]*reviewstate.ReviewState, error) {
	return nil, nil
}
func (f *fakeStore) GetTopicMastery(context.Context, string, string) (*mastery.TopicMastery, error) {
	return &mastery.TopicMastery{}, nil
}
func (f *fakeStore) GetCourseMastery(context.Context, string, string) (*mastery.CourseMastery, error) {
	return &mastery.CourseMastery{}, nil
}
func (f *fakeStore) Cascade(context.Context, store.CascadeParams) (store.CascadeResult, error) {
	return store.CascadeResult{}, nil
}
func (f *fakeStore) SaveSession(context.Context, *quizsession.Session) error { return nil }
func (f *fakeStore) GetSession(context.Context, string) (*quizsession.Session, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) SetSessionState(context.Context, string, quizsession.State, *time.Time) error {
	return nil
}
func (f *fakeStore) SaveAnswer(context.Context, *quizsession.Answer) error { return nil }
func (f *fakeStore) GetAnswer(context.Context, string, int) (*quizsession.Answer, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListAnswers(context.Context, string) ([]*quizsession.Answer, error) {
	return nil, nil
}
func (f *fakeStore) SaveEdge(context.Context, string, string) error { return nil }
func (f *fakeStore) ListEdges(context.Context) ([]store.Edge, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

func mustExercise(t *testing.T, id, loopID string) *exercise.Exercise {
	t.Helper()
	ex, err := exercise.New(id, "course-1", "topic-1", []string{loopID}, exercise.DifficultyMedium, exercise.TypeProcedural, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ex
}

func TestSelect_NoCandidates(t *testing.T) {
	fs := &fakeStore{}
	_, err := selector.Select(context.Background(), fs, selector.Params{
		CourseID: "course-1",
		QuizType: "random",
		Count:    5,
		Now:      time.Now(),
	})
	if err != engineerr.ErrNoCandidates {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
}

func TestSelect_RandomReturnsUpToCount(t *testing.T) {
	fs := &fakeStore{
		exercises: []*exercise.Exercise{
			mustExercise(t, "ex-1", "loop-1"),
			mustExercise(t, "ex-2", "loop-2"),
			mustExercise(t, "ex-3", "loop-3"),
		},
	}

	ids, err := selector.Select(context.Background(), fs, selector.Params{
		CourseID: "course-1",
		QuizType: "random",
		Count:    2,
		Now:      time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d: %v", len(ids), ids)
	}
}

func TestSelect_ReviewMode_ExcludesNotYetDue(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	future := now.Add(48 * time.Hour)

	fs := &fakeStore{
		exercises: []*exercise.Exercise{
			mustExercise(t, "ex-due", "loop-due"),
			mustExercise(t, "ex-future", "loop-future"),
		},
		states: map[string]*reviewstate.ReviewState{
			"loop-due":    {StudentID: "s1", CoreLoopID: "loop-due", NextReview: nil},
			"loop-future": {StudentID: "s1", CoreLoopID: "loop-future", NextReview: &future},
		},
	}

	ids, err := selector.Select(context.Background(), fs, selector.Params{
		StudentID: "s1",
		CourseID:  "course-1",
		QuizType:  "review",
		Count:     10,
		SessionID: "sess-1",
		Now:       now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "ex-due" {
		t.Fatalf("expected only ex-due, got %v", ids)
	}
}

func TestSelect_RejectsUnknownCoreLoopFilter(t *testing.T) {
	fs := &fakeStore{
		exercises: []*exercise.Exercise{mustExercise(t, "ex-1", "loop-1")},
	}
	unknown := "no-such-loop"

	_, err := selector.Select(context.Background(), fs, selector.Params{
		CourseID: "course-1",
		QuizType: "random",
		Count:    5,
		Filters:  store.ExerciseFilter{CoreLoopID: &unknown},
		Now:      time.Now(),
	})
	if err != engineerr.ErrInvalidFilter {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestSelect_RejectsUnknownTopicFilter(t *testing.T) {
	fs := &fakeStore{
		exercises: []*exercise.Exercise{mustExercise(t, "ex-1", "loop-1")},
	}
	unknown := "no-such-topic"

	_, err := selector.Select(context.Background(), fs, selector.Params{
		CourseID: "course-1",
		QuizType: "random",
		Count:    5,
		Filters:  store.ExerciseFilter{TopicID: &unknown},
		Now:      time.Now(),
	})
	if err != engineerr.ErrInvalidFilter {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestSelect_AdaptiveRedistributesShortfall(t *testing.T) {
	now := time.Now()
	var exercises []*exercise.Exercise
	states := map[string]*reviewstate.ReviewState{}

	// Only strong-mastery candidates available; weak/learning buckets
	// should redistribute their share to strong.
	for i := 0; i < 5; i++ {
		id := "ex-strong-" + string(rune('a'+i))
		loop := "loop-strong-" + string(rune('a'+i))
		exercises = append(exercises, mustExercise(t, id, loop))
		states[loop] = &reviewstate.ReviewState{StudentID: "s1", CoreLoopID: loop, MasteryScore: 0.9}
	}

	fs := &fakeStore{exercises: exercises, states: states}

	ids, err := selector.Select(context.Background(), fs, selector.Params{
		StudentID: "s1",
		CourseID:  "course-1",
		QuizType:  "adaptive",
		Count:     5,
		SessionID: "sess-adaptive",
		Now:       now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 5 {
		t.Fatalf("expected all 5 candidates selected via redistribution, got %d: %v", len(ids), ids)
	}
}
