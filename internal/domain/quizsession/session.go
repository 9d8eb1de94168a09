// Package quizsession defines the QuizSession and QuizAnswer entities:
// an ordered, frozen list of exercises presented to a student, with
// per-question answers appended.
package quizsession

import "time"

// Type is the selection strategy a session was created with.
type Type string

const (
	TypeRandom   Type = "random"
	TypeTopic    Type = "topic"
	TypeCoreLoop Type = "core_loop"
	TypeReview   Type = "review"
	TypeAdaptive Type = "adaptive"
)

// State is the lifecycle state of a session.
type State string

const (
	StateOpen      State = "open"
	StateComplete  State = "complete"
	StateAbandoned State = "abandoned"
)

// Filters narrows the candidate pool a session draws from.
type Filters struct {
	TopicID    *string
	CoreLoopID *string
	Difficulty *string
	Type       *string
}

// Session is a QuizSession: its question_ids list is frozen at creation
// and never changes afterward, even if new exercises are later ingested.
type Session struct {
	ID          string
	StudentID   string
	CourseID    string
	QuizType    Type
	Filters     Filters
	CreatedAt   time.Time
	CompletedAt *time.Time
	QuestionIDs []string // frozen order
	State       State
}

// New freezes a QuizSession in the open state with the given question
// order. id is expected to be a UUID string minted by the caller.
func New(id, studentID, courseID string, quizType Type, filters Filters, questionIDs []string, now time.Time) *Session {
	frozen := make([]string, len(questionIDs))
	copy(frozen, questionIDs)

	return &Session{
		ID:          id,
		StudentID:   studentID,
		CourseID:    courseID,
		QuizType:    quizType,
		Filters:     filters,
		CreatedAt:   now,
		QuestionIDs: frozen,
		State:       StateOpen,
	}
}

// Answer is a QuizAnswer: one per answered question, append-only within
// a session, exactly one per question_index.
type Answer struct {
	SessionID    string
	QuestionIndex int
	ExerciseID   string
	UserAnswer   string
	Score        float64
	Correct      bool
	HintUsed     bool
	TimeTakenS   int
	SubmittedAt  time.Time
}

// Summary is the result of completing a session.
type Summary struct {
	SessionID        string
	PercentCorrect   float64
	Passed           bool // percent >= 60
	PerDifficulty    map[string]DifficultyBreakdown
	TotalQuestions   int
	AnsweredQuestions int
}

// DifficultyBreakdown aggregates correctness for one difficulty band.
type DifficultyBreakdown struct {
	Total   int
	Correct int
}
