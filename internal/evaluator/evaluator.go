// Package evaluator defines the Answer Evaluator contract: the external
// collaborator that scores a free-form answer into a [0,1] score plus
// feedback. The engine treats it as a black box that may fail or time out.
package evaluator

import "context"

// Result is the evaluated outcome of one answer.
type Result struct {
	Score    float64
	Feedback string
	Correct  bool
}

// Evaluator scores a user's free-form answer to an exercise. Implementations
// may be network-bound; callers must pass a cancelable context.
type Evaluator interface {
	Evaluate(ctx context.Context, exerciseID, userAnswer, language string) (Result, error)
}
