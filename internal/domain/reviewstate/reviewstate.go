// Package reviewstate defines the ReviewState entity: the per
// (student, core_loop) SM-2 record, the hot entity of the engine.
package reviewstate

import "time"

const (
	// MinEasinessFactor and MaxEasinessFactor bound the EF invariant.
	MinEasinessFactor = 1.3
	MaxEasinessFactor = 2.5

	// DefaultEasinessFactor is the EF a freshly created ReviewState starts at.
	DefaultEasinessFactor = 2.5
)

// ReviewState is the hot entity: one row per (student, core_loop). It is
// created lazily on first attempt with defaults, mutated only by the
// Mastery Aggregator inside a transaction, and never deleted — only reset
// on explicit user request.
type ReviewState struct {
	StudentID     string
	CoreLoopID    string
	EasinessFactor float64
	Repetition    int
	IntervalDays  int
	NextReview    *time.Time
	LastReviewed  *time.Time
	TotalAttempts int
	CorrectAttempts int
	MasteryScore  float64
}

// New returns the lazily-created default ReviewState for a
// (student, core_loop) pair that has never been attempted.
func New(studentID, coreLoopID string) *ReviewState {
	return &ReviewState{
		StudentID:      studentID,
		CoreLoopID:     coreLoopID,
		EasinessFactor: DefaultEasinessFactor,
		Repetition:     0,
		IntervalDays:   0,
		NextReview:     nil,
		LastReviewed:   nil,
		TotalAttempts:  0,
		CorrectAttempts: 0,
		MasteryScore:   0,
	}
}

// IsDue reports whether the review is due as of now: next_review <= now,
// or next_review is null (never reviewed).
func (rs *ReviewState) IsDue(now time.Time) bool {
	if rs.NextReview == nil {
		return true
	}
	return !rs.NextReview.After(now)
}

// Clamp enforces the EF invariant. Callers that compute a new EF should
// route it through Clamp before storing it.
func Clamp(ef float64) float64 {
	if ef < MinEasinessFactor {
		return MinEasinessFactor
	}
	if ef > MaxEasinessFactor {
		return MaxEasinessFactor
	}
	return ef
}
