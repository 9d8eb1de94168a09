// Package store defines the Mastery Store contract: the single source
// of truth for exercises, core loops, topics, review state, mastery
// aggregates, quiz sessions/answers, and prerequisite edges.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/corelearn/ale/internal/domain/coreloop"
	"github.com/corelearn/ale/internal/domain/exercise"
	"github.com/corelearn/ale/internal/domain/mastery"
	"github.com/corelearn/ale/internal/domain/quizsession"
	"github.com/corelearn/ale/internal/domain/reviewstate"
	"github.com/corelearn/ale/internal/domain/topic"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("store: not found")

// ExerciseFilter narrows a ListExercises query. Nil fields are
// unconstrained.
type ExerciseFilter struct {
	TopicID    *string
	CoreLoopID *string
	Difficulty *exercise.Difficulty
	Type       *exercise.Type
}

// Edge is a persisted PrerequisiteEdge row.
type Edge struct {
	PrereqCoreLoopID    string
	DependentCoreLoopID string
}

// ComputeCascade is supplied by the Mastery Aggregator: given the current
// ReviewState of every core loop linked to the answered exercise (keyed
// by core loop id, lazily defaulted if never attempted), it returns the
// new state for each. It must be pure and side-effect free — the store
// calls it once, inside the write transaction.
type ComputeCascade func(current map[string]*reviewstate.ReviewState) map[string]*reviewstate.ReviewState

// CascadeParams describes one answered-question cascade.
type CascadeParams struct {
	StudentID            string
	ExerciseID           string
	TopicID              string
	CourseID             string
	PrimaryCoreLoopID    string
	SecondaryCoreLoopIDs []string
	Compute              ComputeCascade
}

// CascadeResult is the post-cascade snapshot: every updated ReviewState
// plus the recomputed topic/course aggregates. Readers of these values
// never observe a partial cascade (spec.md §4.4/§5).
type CascadeResult struct {
	UpdatedStates map[string]*reviewstate.ReviewState
	TopicMastery  *mastery.TopicMastery
	CourseMastery *mastery.CourseMastery
}

// MasteryStore is the single source of truth for the engine's state. All
// implementations must enforce exactly one writer per (student, core
// loop) at any moment (spec.md §5).
type MasteryStore interface {
	// Ingest (consumed from outside the engine; never mutated afterward).
	InsertExercise(ctx context.Context, ex *exercise.Exercise) error
	GetExercise(ctx context.Context, id string) (*exercise.Exercise, error)
	ListExercises(ctx context.Context, courseID string, filter ExerciseFilter) ([]*exercise.Exercise, error)

	InsertCoreLoop(ctx context.Context, cl *coreloop.CoreLoop) error
	GetCoreLoop(ctx context.Context, id string) (*coreloop.CoreLoop, error)
	ListCoreLoopsByTopic(ctx context.Context, topicID string) ([]*coreloop.CoreLoop, error)

	InsertTopic(ctx context.Context, t *topic.Topic) error
	ListTopicsByCourse(ctx context.Context, courseID string) ([]*topic.Topic, error)

	// ReviewState / mastery reads.
	GetReviewState(ctx context.Context, studentID, coreLoopID string) (*reviewstate.ReviewState, error)
	ListReviewStatesByCourse(ctx context.Context, studentID, courseID string) ([]*reviewstate.ReviewState, error)
	GetTopicMastery(ctx context.Context, studentID, topicID string) (*mastery.TopicMastery, error)
	GetCourseMastery(ctx context.Context, studentID, courseID string) (*mastery.CourseMastery, error)

	// Cascade is the only write path for ReviewState/TopicMastery/CourseMastery.
	Cascade(ctx context.Context, params CascadeParams) (CascadeResult, error)

	// Quiz sessions.
	SaveSession(ctx context.Context, s *quizsession.Session) error
	GetSession(ctx context.Context, id string) (*quizsession.Session, error)
	SetSessionState(ctx context.Context, id string, state quizsession.State, completedAt *time.Time) error
	SaveAnswer(ctx context.Context, a *quizsession.Answer) error
	GetAnswer(ctx context.Context, sessionID string, questionIndex int) (*quizsession.Answer, error)
	ListAnswers(ctx context.Context, sessionID string) ([]*quizsession.Answer, error)

	// Prerequisite edges.
	SaveEdge(ctx context.Context, prereq, dependent string) error
	ListEdges(ctx context.Context) ([]Edge, error)

	Close() error
}
