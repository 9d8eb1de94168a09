package advisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/corelearn/ale/internal/advisor"
	"github.com/corelearn/ale/internal/domain/coreloop"
	"github.com/corelearn/ale/internal/domain/exercise"
	"github.com/corelearn/ale/internal/domain/mastery"
	"github.com/corelearn/ale/internal/domain/prerequisite"
	"github.com/corelearn/ale/internal/domain/quizsession"
	"github.com/corelearn/ale/internal/domain/reviewstate"
	"github.com/corelearn/ale/internal/domain/topic"
	"github.com/corelearn/ale/internal/engineerr"
	"github.com/corelearn/ale/internal/store"
)

type fakeStore struct {
	reviewStates map[string]*reviewstate.ReviewState // keyed by core_loop_id
	byCourse     []*reviewstate.ReviewState
	topics       []*topic.Topic
	coreLoops    map[string][]*coreloop.CoreLoop // keyed by topic id
	exercises    map[string][]*exercise.Exercise // keyed by core_loop_id
}

var _ store.MasteryStore = (*fakeStore)(nil)

func (f *fakeStore) GetReviewState(ctx context.Context, studentID, coreLoopID string) (*reviewstate.ReviewState, error) {
	if rs, ok := f.reviewStates[coreLoopID]; ok {
		return rs, nil
	}
	return reviewstate.New(studentID, coreLoopID), nil
}
func (f *fakeStore) ListReviewStatesByCourse(context.Context, string, string) ([]*reviewstate.ReviewState, error) {
	return f.byCourse, nil
}
func (f *fakeStore) ListTopicsByCourse(context.Context, string) ([]*topic.Topic, error) {
	return f.topics, nil
}
func (f *fakeStore) ListCoreLoopsByTopic(ctx context.Context, topicID string) ([]*coreloop.CoreLoop, error) {
	return f.coreLoops[topicID], nil
}
func (f *fakeStore) ListExercises(ctx context.Context, courseID string, filter store.ExerciseFilter) ([]*exercise.Exercise, error) {
	if filter.CoreLoopID == nil {
		return nil, nil
	}
	return f.exercises[*filter.CoreLoopID], nil
}

func (f *fakeStore) InsertExercise(context.Context, *exercise.Exercise) error { return nil }
func (f *fakeStore) GetExercise(context.Context, string) (*exercise.Exercise, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) InsertCoreLoop(context.Context, *coreloop.CoreLoop) error { return nil }
func (f *fakeStore) GetCoreLoop(context.Context, string) (*coreloop.CoreLoop, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) InsertTopic(context.Context, *topic.Topic) error { return nil }
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

func TestRecommendedDepth(t *testing.T) {
	cases := []struct {
		mastery float64
		want    advisor.Depth
	}{
		{0.0, advisor.DepthBasic},
		{0.29, advisor.DepthBasic},
		{0.30, advisor.DepthMedium},
		{0.69, advisor.DepthMedium},
		{0.70, advisor.DepthAdvanced},
		{1.0, advisor.DepthAdvanced},
	}
	for _, c := range cases {
		if got := advisor.RecommendedDepth(c.mastery); got != c.want {
			t.Errorf("RecommendedDepth(%v) = %v, want %v", c.mastery, got, c.want)
		}
	}
}

func TestShouldShowPrerequisites(t *testing.T) {
	if !advisor.ShouldShowPrerequisites(0.1, 0.0) {
		t.Error("expected true for weak mastery regardless of failure rate")
	}
	if advisor.ShouldShowPrerequisites(0.5, 0.2) {
		t.Error("expected false: medium mastery with low recent failure rate")
	}
	if !advisor.ShouldShowPrerequisites(0.5, 0.5) {
		t.Error("expected true: medium mastery with high recent failure rate")
	}
	if advisor.ShouldShowPrerequisites(0.8, 1.0) {
		t.Error("expected false: advanced mastery never shows prerequisites")
	}
}

func TestCheckPrerequisites_BlocksOnWeakTransitivePrereq(t *testing.T) {
	g := prerequisite.New()
	if err := g.AddEdge("loop-basics", "loop-advanced"); err != nil {
		t.Fatal(err)
	}

	fs := &fakeStore{
		reviewStates: map[string]*reviewstate.ReviewState{
			"loop-basics": {StudentID: "s1", CoreLoopID: "loop-basics", MasteryScore: 0.1},
		},
	}
	a := advisor.New(fs, g)

	err := a.CheckPrerequisites(context.Background(), "s1", "loop-advanced", false)
	var blocked *engineerr.PrerequisiteBlocked
	if err == nil {
		t.Fatal("expected PrerequisiteBlocked error")
	}
	if be, ok := err.(*engineerr.PrerequisiteBlocked); ok {
		blocked = be
	} else {
		t.Fatalf("expected *engineerr.PrerequisiteBlocked, got %T", err)
	}
	if len(blocked.WeakPrereqs) != 1 || blocked.WeakPrereqs[0] != "loop-basics" {
		t.Errorf("expected weak prereqs [loop-basics], got %v", blocked.WeakPrereqs)
	}
}

func TestCheckPrerequisites_ForceOverridesBlock(t *testing.T) {
	g := prerequisite.New()
	if err := g.AddEdge("loop-basics", "loop-advanced"); err != nil {
		t.Fatal(err)
	}
	fs := &fakeStore{
		reviewStates: map[string]*reviewstate.ReviewState{
			"loop-basics": {StudentID: "s1", CoreLoopID: "loop-basics", MasteryScore: 0.1},
		},
	}
	a := advisor.New(fs, g)

	if err := a.CheckPrerequisites(context.Background(), "s1", "loop-advanced", true); err != nil {
		t.Errorf("expected nil error with force=true, got %v", err)
	}
}

func TestKnowledgeGaps_ClassifiesSeverity(t *testing.T) {
	fs := &fakeStore{
		byCourse: []*reviewstate.ReviewState{
			{CoreLoopID: "loop-high", MasteryScore: 0.1},
			{CoreLoopID: "loop-medium", MasteryScore: 0.25},
			{CoreLoopID: "loop-low", MasteryScore: 0.45},
			{CoreLoopID: "loop-ok", MasteryScore: 0.9},
		},
	}
	a := advisor.New(fs, prerequisite.New())

	gaps, err := a.KnowledgeGaps(context.Background(), "s1", "course-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(gaps) != 3 {
		t.Fatalf("expected 3 gaps (mastery < 0.5), got %d: %v", len(gaps), gaps)
	}

	bySeverity := map[string]advisor.Severity{}
	for _, g := range gaps {
		bySeverity[g.CoreLoopID] = g.Severity
	}
	if bySeverity["loop-high"] != advisor.SeverityHigh {
		t.Errorf("expected loop-high severity high, got %v", bySeverity["loop-high"])
	}
	if bySeverity["loop-medium"] != advisor.SeverityMedium {
		t.Errorf("expected loop-medium severity medium, got %v", bySeverity["loop-medium"])
	}
	if bySeverity["loop-low"] != advisor.SeverityLow {
		t.Errorf("expected loop-low severity low, got %v", bySeverity["loop-low"])
	}
}

func TestLearningPath_OrdersOverdueBeforeWeakBeforeNew(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	overdueDate := now.Add(-72 * time.Hour)

	fs := &fakeStore{
		byCourse: []*reviewstate.ReviewState{
			{CoreLoopID: "loop-overdue", MasteryScore: 0.9, NextReview: &overdueDate},
			{CoreLoopID: "loop-weak", MasteryScore: 0.2},
		},
		topics: []*topic.Topic{{ID: "topic-1", CourseID: "course-1"}},
		coreLoops: map[string][]*coreloop.CoreLoop{
			"topic-1": {{ID: "loop-new", TopicID: "topic-1"}},
		},
		exercises: map[string][]*exercise.Exercise{
			"loop-new": {{ID: "ex-new", Difficulty: exercise.DifficultyEasy}},
		},
	}
	a := advisor.New(fs, prerequisite.New())

	path, err := a.LearningPath(context.Background(), "s1", "course-1", now, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 3 {
		t.Fatalf("expected 3 path items, got %d: %v", len(path), path)
	}
	if path[0].CoreLoopID != "loop-overdue" || path[0].Urgency != "high" {
		t.Errorf("expected loop-overdue first with high urgency, got %v", path[0])
	}
	if path[1].CoreLoopID != "loop-weak" {
		t.Errorf("expected loop-weak second, got %v", path[1])
	}
	if path[2].CoreLoopID != "loop-new" {
		t.Errorf("expected loop-new third, got %v", path[2])
	}
}
