// Package aggregator implements the Mastery Aggregator: the component
// that turns one answered question into an atomic cascade of
// ReviewState, TopicMastery, and CourseMastery updates.
package aggregator

import (
	"context"
	"time"

	"github.com/corelearn/ale/internal/domain/exercise"
	"github.com/corelearn/ale/internal/domain/reviewstate"
	"github.com/corelearn/ale/internal/quality"
	"github.com/corelearn/ale/internal/scheduler"
	"github.com/corelearn/ale/internal/store"
	"github.com/corelearn/ale/internal/worker"
)

const (
	alphaPrimary   = 0.3
	alphaSecondary = 0.15

	correctThreshold = 0.7

	prefetchWorkers = 4
	prefetchBuffer  = 16
)

// Aggregator cascades an answered exercise's outcome up through every
// core loop it touches, then the owning topic and course.
type Aggregator struct {
	store    store.MasteryStore
	prefetch *worker.Pool[error]
}

func New(s store.MasteryStore) *Aggregator {
	return &Aggregator{
		store:    s,
		prefetch: worker.NewPool[error](prefetchWorkers, prefetchBuffer),
	}
}

// prefetchReviewStates warms the store's read path for every core loop
// linked to the answered exercise before Cascade opens its write
// transaction. It is a read-only fan-out: the transaction still does its
// own authoritative read, so a slow or failed prefetch never affects
// correctness, only latency.
func (a *Aggregator) prefetchReviewStates(ctx context.Context, studentID string, coreLoopIDs []string) {
	for _, loopID := range coreLoopIDs {
		loopID := loopID
		a.prefetch.Submit(loopID, func() error {
			_, err := a.store.GetReviewState(ctx, studentID, loopID)
			return err
		})
	}
	for range coreLoopIDs {
		<-a.prefetch.Results()
	}
}

// Outcome is the evaluated result of one answer, already carrying the
// raw score the Quality Mapper and EWMA both consume.
type Outcome struct {
	Score     float64
	HintUsed  bool
	TimeRatio *float64
}

// Cascade applies outcome to every core loop linked to ex, in a single
// store transaction, and returns the post-cascade snapshot.
func (a *Aggregator) Cascade(ctx context.Context, studentID string, ex *exercise.Exercise, now time.Time, outcome Outcome) (store.CascadeResult, error) {
	q := quality.Map(outcome.Score, outcome.HintUsed, outcome.TimeRatio)
	primaryID := ex.PrimaryCoreLoopID()

	a.prefetchReviewStates(ctx, studentID, ex.CoreLoopIDs)

	compute := func(current map[string]*reviewstate.ReviewState) map[string]*reviewstate.ReviewState {
		updated := make(map[string]*reviewstate.ReviewState, len(current))

		for loopID, rs := range current {
			alpha := alphaSecondary
			if loopID == primaryID {
				alpha = alphaPrimary
			}
			updated[loopID] = applyOutcome(rs, q, outcome.Score, alpha, now)
		}

		return updated
	}

	return a.store.Cascade(ctx, store.CascadeParams{
		StudentID:            studentID,
		ExerciseID:           ex.ID,
		TopicID:              ex.TopicID,
		CourseID:             ex.CourseID,
		PrimaryCoreLoopID:    primaryID,
		SecondaryCoreLoopIDs: ex.SecondaryCoreLoopIDs(),
		Compute:              compute,
	})
}

// applyOutcome runs the SM-2 schedule and the mastery_score EWMA update
// for one core loop's prior ReviewState. alpha is 0.3 for the primary
// loop and 0.15 for secondary loops (spec §4.4).
func applyOutcome(rs *reviewstate.ReviewState, q int, score, alpha float64, now time.Time) *reviewstate.ReviewState {
	result := scheduler.Schedule(q, rs.EasinessFactor, rs.Repetition, rs.IntervalDays, now)

	next := *rs
	next.EasinessFactor = result.EasinessFactor
	next.Repetition = result.Repetition
	next.IntervalDays = result.IntervalDays
	next.NextReview = &result.Due
	next.LastReviewed = &now

	next.MasteryScore = (1-alpha)*rs.MasteryScore + alpha*score
	next.TotalAttempts = rs.TotalAttempts + 1
	if score >= correctThreshold {
		next.CorrectAttempts = rs.CorrectAttempts + 1
	}

	return &next
}
