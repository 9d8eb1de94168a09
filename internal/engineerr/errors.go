// Package engineerr defines the distinct error variants the Adaptive
// Learning Engine surfaces to callers, per the taxonomy the API
// contract specifies. Sentinel errors are checked with errors.Is;
// PrerequisiteBlocked carries data and is checked with errors.As.
package engineerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCandidates means no exercises matched the selector's filters.
	ErrNoCandidates = errors.New("ale: no candidates match the given filters")

	// ErrInvalidFilter means a filter referenced a topic or core loop that
	// does not exist.
	ErrInvalidFilter = errors.New("ale: filter references an unknown topic or core loop")

	// ErrSessionNotFound means the session id does not exist.
	ErrSessionNotFound = errors.New("ale: session not found")

	// ErrSessionBusy means a concurrent mutation is already in flight for
	// this session.
	ErrSessionBusy = errors.New("ale: session is busy")

	// ErrSessionComplete means an operation that requires an open session
	// was attempted on a completed or abandoned one.
	ErrSessionComplete = errors.New("ale: session is already complete")

	// ErrAlreadyAnswered means the question index already has a recorded
	// answer in this session.
	ErrAlreadyAnswered = errors.New("ale: question already answered")

	// ErrOutOfOrderSubmission means the submitted exercise id does not
	// match the session's next expected question index.
	ErrOutOfOrderSubmission = errors.New("ale: submission is out of order")

	// ErrEvaluatorUnavailable means the Answer Evaluator call failed or
	// was canceled.
	ErrEvaluatorUnavailable = errors.New("ale: answer evaluator unavailable")

	// ErrWouldCreateCycle means adding a prerequisite edge would create a
	// cycle in the prerequisite graph.
	ErrWouldCreateCycle = errors.New("ale: edge would create a cycle")

	// ErrInternalInvariantViolated indicates a bug: an invariant the
	// engine relies on was found false at runtime.
	ErrInternalInvariantViolated = errors.New("ale: internal invariant violated")
)

// PrerequisiteBlocked is an advisory (not fatal) error: the caller asked
// to learn a core loop that has weak prerequisites and did not pass the
// force override.
type PrerequisiteBlocked struct {
	WeakPrereqs []string
}

func (e *PrerequisiteBlocked) Error() string {
	return fmt.Sprintf("ale: blocked by weak prerequisites: %v", e.WeakPrereqs)
}
