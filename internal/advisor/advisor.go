// Package advisor implements the Adaptive Advisor: read-only queries
// over aggregated mastery state that drive tutoring depth, prerequisite
// gating, a ranked learning path, and knowledge-gap detection.
package advisor

import (
	"context"
	"sort"
	"time"

	"github.com/corelearn/ale/internal/domain/exercise"
	"github.com/corelearn/ale/internal/domain/prerequisite"
	"github.com/corelearn/ale/internal/domain/reviewstate"
	"github.com/corelearn/ale/internal/engineerr"
	"github.com/corelearn/ale/internal/store"
)

const (
	depthBasicMax    = 0.30
	depthMediumMax   = 0.70
	weakPrereqMax    = 0.30
	recentFailureMax = 0.40
	gapHighMax       = 0.20
	gapMediumMax     = 0.35
	gapLowMax        = 0.50
	weakAreaMax      = 0.50
)

// Depth is a tutoring-content depth level.
type Depth string

const (
	DepthBasic    Depth = "basic"
	DepthMedium   Depth = "medium"
	DepthAdvanced Depth = "advanced"
)

// Severity classifies a knowledge gap.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Advisor answers read-only tutoring queries over a MasteryStore and a
// prerequisite Graph.
type Advisor struct {
	store store.MasteryStore
	graph *prerequisite.Graph
}

func New(s store.MasteryStore, g *prerequisite.Graph) *Advisor {
	return &Advisor{store: s, graph: g}
}

// RecommendedDepth maps a core loop's mastery to a tutoring depth.
func RecommendedDepth(masteryScore float64) Depth {
	switch {
	case masteryScore < depthBasicMax:
		return DepthBasic
	case masteryScore < depthMediumMax:
		return DepthMedium
	default:
		return DepthAdvanced
	}
}

// ShouldShowPrerequisites decides whether prerequisites should surface
// for a core loop given its mastery and recent failure rate over the
// last 5 attempts.
func ShouldShowPrerequisites(masteryScore, recentFailureRate float64) bool {
	if masteryScore < weakPrereqMax {
		return true
	}
	return masteryScore < depthMediumMax && recentFailureRate > recentFailureMax
}

// CheckPrerequisites enforces the `learn` action's gating: if any
// transitive prerequisite of coreLoopID has mastery_score < 0.30 and
// force is false, it returns an *engineerr.PrerequisiteBlocked.
func (a *Advisor) CheckPrerequisites(ctx context.Context, studentID, coreLoopID string, force bool) error {
	if force {
		return nil
	}

	prereqIDs := a.graph.PrereqsOf(coreLoopID)
	if len(prereqIDs) == 0 {
		return nil
	}

	var weak []string
	for _, prereqID := range prereqIDs {
		rs, err := a.store.GetReviewState(ctx, studentID, prereqID)
		if err != nil {
			return err
		}
		if rs.MasteryScore < weakPrereqMax {
			weak = append(weak, prereqID)
		}
	}

	if len(weak) == 0 {
		return nil
	}

	sort.Strings(weak)
	return &engineerr.PrerequisiteBlocked{WeakPrereqs: weak}
}

// PathItem is one entry of a learning path, ranked by urgency.
type PathItem struct {
	CoreLoopID string
	Urgency    string // high, medium, low
	Reason     string
}

const (
	urgencyHigh   = "high"
	urgencyMedium = "medium"
	urgencyLow    = "low"
)

// LearningPath builds the top-K ranked learning path for a student in a
// course: overdue reviews, then weak areas, then due-today items, then
// new content, deduplicated by core loop and truncated to k.
func (a *Advisor) LearningPath(ctx context.Context, studentID, courseID string, now time.Time, k int) ([]PathItem, error) {
	states, err := a.store.ListReviewStatesByCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(states))
	var path []PathItem

	addAll := func(items []PathItem) {
		for _, item := range items {
			if _, ok := seen[item.CoreLoopID]; ok {
				continue
			}
			seen[item.CoreLoopID] = struct{}{}
			path = append(path, item)
		}
	}

	addAll(overdueReviews(states, now))
	addAll(weakAreas(states))
	addAll(dueToday(states, now))

	if k <= 0 || len(path) < k {
		attempted := make(map[string]struct{}, len(states))
		for _, rs := range states {
			attempted[rs.CoreLoopID] = struct{}{}
		}
		newContent, err := a.newContentItems(ctx, courseID, attempted)
		if err != nil {
			return nil, err
		}
		addAll(newContent)
	}

	if k > 0 && len(path) > k {
		path = path[:k]
	}
	return path, nil
}

// overdueReviews sorts core loops whose next_review has passed by days
// overdue, descending.
func overdueReviews(states []*reviewstate.ReviewState, now time.Time) []PathItem {
	type entry struct {
		rs   *reviewstate.ReviewState
		days float64
	}
	var overdue []entry
	for _, rs := range states {
		if rs.NextReview == nil || !rs.NextReview.Before(now) {
			continue
		}
		overdue = append(overdue, entry{rs: rs, days: now.Sub(*rs.NextReview).Hours() / 24})
	}
	sort.SliceStable(overdue, func(i, j int) bool { return overdue[i].days > overdue[j].days })

	out := make([]PathItem, len(overdue))
	for i, e := range overdue {
		out[i] = PathItem{CoreLoopID: e.rs.CoreLoopID, Urgency: urgencyHigh, Reason: "overdue_review"}
	}
	return out
}

// weakAreas sorts core loops with mastery_score < 0.5 ascending by mastery.
func weakAreas(states []*reviewstate.ReviewState) []PathItem {
	var weak []*reviewstate.ReviewState
	for _, rs := range states {
		if rs.MasteryScore < weakAreaMax {
			weak = append(weak, rs)
		}
	}
	sort.SliceStable(weak, func(i, j int) bool { return weak[i].MasteryScore < weak[j].MasteryScore })

	out := make([]PathItem, len(weak))
	for i, rs := range weak {
		out[i] = PathItem{CoreLoopID: rs.CoreLoopID, Urgency: urgencyMedium, Reason: "weak_area"}
	}
	return out
}

// dueToday sorts core loops due exactly as of now (not already overdue)
// ascending by mastery.
func dueToday(states []*reviewstate.ReviewState, now time.Time) []PathItem {
	var due []*reviewstate.ReviewState
	for _, rs := range states {
		if rs.NextReview == nil {
			continue
		}
		if rs.NextReview.Before(now) {
			continue // already counted as overdue
		}
		if rs.NextReview.After(now) {
			continue
		}
		due = append(due, rs)
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].MasteryScore < due[j].MasteryScore })

	out := make([]PathItem, len(due))
	for i, rs := range due {
		out[i] = PathItem{CoreLoopID: rs.CoreLoopID, Urgency: urgencyMedium, Reason: "due_today"}
	}
	return out
}

// newContentItems finds core loops of courseID that have never been
// attempted (absent from seen, the set of loops with a ReviewState row
// for the student), sorted by declared difficulty
// (easy -> hard, taken as the minimum difficulty among the loop's
// exercises) then by exercise count descending.
func (a *Advisor) newContentItems(ctx context.Context, courseID string, seen map[string]struct{}) ([]PathItem, error) {
	topics, err := a.store.ListTopicsByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		loopID       string
		minDifficulty int
		exerciseCount int
	}
	var candidates []candidate

	for _, t := range topics {
		loops, err := a.store.ListCoreLoopsByTopic(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		for _, loop := range loops {
			if _, ok := seen[loop.ID]; ok {
				continue
			}

			loopID := loop.ID
			exercises, err := a.store.ListExercises(ctx, courseID, store.ExerciseFilter{CoreLoopID: &loopID})
			if err != nil {
				return nil, err
			}
			if len(exercises) == 0 {
				continue
			}

			minDiff := difficultyRank(exercises[0].Difficulty)
			for _, ex := range exercises[1:] {
				if r := difficultyRank(ex.Difficulty); r < minDiff {
					minDiff = r
				}
			}

			candidates = append(candidates, candidate{
				loopID:        loopID,
				minDifficulty: minDiff,
				exerciseCount: len(exercises),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].minDifficulty != candidates[j].minDifficulty {
			return candidates[i].minDifficulty < candidates[j].minDifficulty
		}
		return candidates[i].exerciseCount > candidates[j].exerciseCount
	})

	out := make([]PathItem, len(candidates))
	for i, c := range candidates {
		out[i] = PathItem{CoreLoopID: c.loopID, Urgency: urgencyLow, Reason: "new_content"}
	}
	return out, nil
}

func difficultyRank(d exercise.Difficulty) int {
	switch d {
	case exercise.DifficultyEasy:
		return 0
	case exercise.DifficultyMedium:
		return 1
	case exercise.DifficultyHard:
		return 2
	default:
		return 1
	}
}

// Gap is a detected knowledge gap: a core loop with mastery below 0.5.
type Gap struct {
	CoreLoopID string
	Mastery    float64
	Severity   Severity
}

// KnowledgeGaps classifies every core loop with mastery_score < 0.5 by
// severity.
func (a *Advisor) KnowledgeGaps(ctx context.Context, studentID, courseID string) ([]Gap, error) {
	states, err := a.store.ListReviewStatesByCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}

	var gaps []Gap
	for _, rs := range states {
		if rs.MasteryScore >= gapLowMax {
			continue
		}
		gaps = append(gaps, Gap{
			CoreLoopID: rs.CoreLoopID,
			Mastery:    rs.MasteryScore,
			Severity:   severityFor(rs.MasteryScore),
		})
	}

	sort.SliceStable(gaps, func(i, j int) bool { return gaps[i].Mastery < gaps[j].Mastery })
	return gaps, nil
}

func severityFor(masteryScore float64) Severity {
	switch {
	case masteryScore < gapHighMax:
		return SeverityHigh
	case masteryScore < gapMediumMax:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
