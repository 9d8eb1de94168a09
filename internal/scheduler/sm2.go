// Package scheduler implements the SM-2 spaced-repetition algorithm as a
// pure function: no I/O, no clock reads except the supplied now. This
// purity is what makes the algebra in the package's tests exact.
package scheduler

import (
	"math"
	"time"

	"github.com/corelearn/ale/internal/domain/reviewstate"
)

// Result is the (ef', n', interval', due') tuple schedule produces.
type Result struct {
	EasinessFactor float64
	Repetition     int
	IntervalDays   int
	Due            time.Time
}

// Schedule maps (quality, ef, n, interval, now) to the next SM-2 state.
//
// quality is clamped to [0, 5]. A quality below 3 is a failure: repetition
// resets to 0 and the interval resets to 1 day, but EF still receives the
// same update as a success — the canonical SM-2 formulation applies the EF
// update on every answer, not only on success.
func Schedule(quality int, ef float64, n, intervalDays int, now time.Time) Result {
	q := clampQuality(quality)

	var nextRepetition, nextInterval int
	if q < 3 {
		nextRepetition = 0
		nextInterval = 1
	} else {
		switch n {
		case 0:
			nextInterval = 1
		case 1:
			nextInterval = 6
		default:
			nextInterval = int(math.Round(float64(intervalDays) * ef))
		}
		nextRepetition = n + 1
	}

	nextEF := reviewstate.Clamp(updateEasinessFactor(ef, q))

	return Result{
		EasinessFactor: nextEF,
		Repetition:     nextRepetition,
		IntervalDays:   nextInterval,
		Due:            now.AddDate(0, 0, nextInterval),
	}
}

// updateEasinessFactor applies the SM-2 EF formula:
// EF' = EF + (0.1 - (5-q)*(0.08 + (5-q)*0.02))
func updateEasinessFactor(ef float64, quality int) float64 {
	q := float64(quality)
	delta := 0.1 - (5-q)*(0.08+(5-q)*0.02)
	return ef + delta
}

func clampQuality(q int) int {
	if q < 0 {
		return 0
	}
	if q > 5 {
		return 5
	}
	return q
}
