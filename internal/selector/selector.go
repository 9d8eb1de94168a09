// Package selector implements the Quiz Selector: filtering, priority
// scoring, adaptive bucket weighting, review-mode ordering, and top-N
// selection over the exercise pool.
package selector

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/corelearn/ale/internal/domain/exercise"
	"github.com/corelearn/ale/internal/engineerr"
	"github.com/corelearn/ale/internal/store"
)

// maxConcurrentDueLookups bounds the fan-out of per-candidate
// ReviewState lookups during priority scoring.
const maxConcurrentDueLookups = 8

// Params describes one selection request.
type Params struct {
	StudentID     string
	CourseID      string
	QuizType      string // one of quizsession.Type's string values
	Count         int
	Filters       store.ExerciseFilter
	PrioritizeDue bool
	SessionID     string // seeds the tie-break noise deterministically
	Now           time.Time
}

const (
	quizTypeRandom   = "random"
	quizTypeTopic    = "topic"
	quizTypeCoreLoop = "core_loop"
	quizTypeReview   = "review"
	quizTypeAdaptive = "adaptive"
)

type candidate struct {
	exercise *exercise.Exercise
	priority float64
	mastery  float64
	nextDue  *time.Time
}

// Select runs Stages 1-5 of the quiz selector and returns the chosen
// exercise ids, in presentation order.
func Select(ctx context.Context, s store.MasteryStore, params Params) ([]string, error) {
	if err := validateFilter(ctx, s, params); err != nil {
		return nil, err
	}

	exercises, err := s.ListExercises(ctx, params.CourseID, params.Filters)
	if err != nil {
		return nil, err
	}
	if len(exercises) == 0 {
		return nil, engineerr.ErrNoCandidates
	}

	needsPriority := params.PrioritizeDue || params.QuizType == quizTypeReview || params.QuizType == quizTypeAdaptive

	candidates, err := buildCandidates(ctx, s, params, exercises, needsPriority)
	if err != nil {
		return nil, err
	}

	if params.QuizType == quizTypeReview {
		candidates = filterDue(candidates, params.Now)
		sort.SliceStable(candidates, func(i, j int) bool {
			return dueBefore(candidates[i].nextDue, candidates[j].nextDue)
		})
	}

	if len(candidates) == 0 {
		return nil, engineerr.ErrNoCandidates
	}

	if params.QuizType == quizTypeAdaptive {
		candidates = adaptiveReweight(candidates, params.Count)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return lessByTieBreak(candidates[i], candidates[j])
	})

	n := params.Count
	if n > len(candidates) {
		n = len(candidates)
	}
	selected := candidates[:n]

	ids := make([]string, len(selected))
	for i, c := range selected {
		ids[i] = c.exercise.ID
	}
	return ids, nil
}

// validateFilter rejects a filter that refers to a topic or core loop
// that does not exist (spec.md §4.6's InvalidFilter create() failure
// mode), rather than letting a typo silently resolve to zero candidates
// and surface as the wrong error, NoCandidates.
func validateFilter(ctx context.Context, s store.MasteryStore, params Params) error {
	if params.Filters.CoreLoopID != nil {
		if _, err := s.GetCoreLoop(ctx, *params.Filters.CoreLoopID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return engineerr.ErrInvalidFilter
			}
			return err
		}
	}

	if params.Filters.TopicID != nil {
		topics, err := s.ListTopicsByCourse(ctx, params.CourseID)
		if err != nil {
			return err
		}
		found := false
		for _, t := range topics {
			if t.ID == *params.Filters.TopicID {
				found = true
				break
			}
		}
		if !found {
			return engineerr.ErrInvalidFilter
		}
	}

	return nil
}

// buildCandidates wraps each exercise with its priority score and the
// mastery of its primary core loop, fanning the required ReviewState
// lookups out across a bounded worker set.
func buildCandidates(ctx context.Context, s store.MasteryStore, params Params, exercises []*exercise.Exercise, needsPriority bool) ([]candidate, error) {
	out := make([]candidate, len(exercises))
	for i, ex := range exercises {
		out[i] = candidate{exercise: ex}
	}

	if !needsPriority {
		return out, nil
	}

	// Draw every candidate's noise up front, in exercise order, so the
	// result depends only on the session id and not on goroutine scheduling.
	rng := rand.New(rand.NewSource(seedFromSessionID(params.SessionID)))
	noise := make([]float64, len(exercises))
	for i := range noise {
		noise[i] = noiseFor(rng)
	}

	sem := semaphore.NewWeighted(maxConcurrentDueLookups)
	g, gctx := errgroup.WithContext(ctx)

	for i, ex := range exercises {
		i, ex := i, ex
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)

			rs, err := s.GetReviewState(gctx, params.StudentID, ex.PrimaryCoreLoopID())
			if err != nil {
				return err
			}

			out[i].mastery = rs.MasteryScore
			out[i].nextDue = rs.NextReview
			out[i].priority = priorityFor(rs.NextReview, params.Now) + noise[i]
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// priorityFor implements spec.md §4.3 Stage 2's score bands.
func priorityFor(nextReview *time.Time, now time.Time) float64 {
	if nextReview == nil {
		return 1000
	}

	days := now.Sub(*nextReview).Hours() / 24

	if days >= 0 {
		return 100 + days
	}

	daysUntilDue := -days
	return 50 - daysUntilDue
}

func noiseFor(rng *rand.Rand) float64 {
	return -10 + rng.Float64()*20
}

func seedFromSessionID(sessionID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	return int64(h.Sum64())
}

func filterDue(candidates []candidate, now time.Time) []candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.nextDue == nil || !c.nextDue.After(now) {
			out = append(out, c)
		}
	}
	return out
}

func dueBefore(a, b *time.Time) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil {
		return true // nulls first
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}

const (
	masteryWeakMax     = 0.5
	masteryLearningMax = 0.7
)

const (
	bucketWeakShare     = 0.4
	bucketLearningShare = 0.4
	bucketStrongShare   = 0.2
)

// adaptiveReweight implements Stage 3: bucket by mastery band with a
// target 40/40/20 mix, redistributing shortfall to preserve the total.
func adaptiveReweight(candidates []candidate, count int) []candidate {
	var weak, learning, strong []candidate
	for _, c := range candidates {
		switch {
		case c.mastery < masteryWeakMax:
			weak = append(weak, c)
		case c.mastery < masteryLearningMax:
			learning = append(learning, c)
		default:
			strong = append(strong, c)
		}
	}

	targets := map[string]int{
		"weak":     int(float64(count) * bucketWeakShare),
		"learning": int(float64(count) * bucketLearningShare),
		"strong":   int(float64(count) * bucketStrongShare),
	}

	sort.SliceStable(weak, func(i, j int) bool { return lessByTieBreak(weak[i], weak[j]) })
	sort.SliceStable(learning, func(i, j int) bool { return lessByTieBreak(learning[i], learning[j]) })
	sort.SliceStable(strong, func(i, j int) bool { return lessByTieBreak(strong[i], strong[j]) })

	takenWeak := takeN(targets["weak"], len(weak))
	takenLearning := takeN(targets["learning"], len(learning))
	takenStrong := takeN(targets["strong"], len(strong))

	var result []candidate
	result = append(result, weak[:takenWeak]...)
	result = append(result, learning[:takenLearning]...)
	result = append(result, strong[:takenStrong]...)

	shortfall := count - len(result)
	if shortfall <= 0 {
		return result
	}

	var leftovers []candidate
	leftovers = append(leftovers, weak[takenWeak:]...)
	leftovers = append(leftovers, learning[takenLearning:]...)
	leftovers = append(leftovers, strong[takenStrong:]...)

	sort.SliceStable(leftovers, func(i, j int) bool { return lessByTieBreak(leftovers[i], leftovers[j]) })

	if shortfall > len(leftovers) {
		shortfall = len(leftovers)
	}
	result = append(result, leftovers[:shortfall]...)

	return result
}

// takeN clamps a target bucket size to the number actually available.
func takeN(target, available int) int {
	if target > available {
		return available
	}
	if target < 0 {
		return 0
	}
	return target
}

// lessByTieBreak implements spec.md §4.3 Stage 5's tie-break chain:
// priority desc, then mastery asc, then exercise id asc.
func lessByTieBreak(a, b candidate) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	if a.mastery != b.mastery {
		return a.mastery < b.mastery
	}
	return a.exercise.ID < b.exercise.ID
}
