// internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/corelearn/ale/internal/domain/coreloop"
	"github.com/corelearn/ale/internal/domain/exercise"
	"github.com/corelearn/ale/internal/domain/mastery"
	"github.com/corelearn/ale/internal/domain/quizsession"
	"github.com/corelearn/ale/internal/domain/reviewstate"
	"github.com/corelearn/ale/internal/domain/topic"
	"github.com/corelearn/ale/internal/engineerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS topics (
    id TEXT PRIMARY KEY,
    course_id TEXT NOT NULL,
    name TEXT NOT NULL,
    language TEXT
);

CREATE TABLE IF NOT EXISTS core_loops (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    topic_id TEXT NOT NULL,
    language TEXT,
    FOREIGN KEY (topic_id) REFERENCES topics(id)
);

CREATE TABLE IF NOT EXISTS exercises (
    id TEXT PRIMARY KEY,
    course_id TEXT NOT NULL,
    topic_id TEXT NOT NULL,
    primary_core_loop_id TEXT NOT NULL,
    difficulty TEXT NOT NULL,
    type TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    analyzed BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_exercises_course_primary_loop
    ON exercises(course_id, primary_core_loop_id);

CREATE TABLE IF NOT EXISTS exercise_core_loops (
    exercise_id TEXT NOT NULL,
    core_loop_id TEXT NOT NULL,
    step_number INTEGER NOT NULL,
    PRIMARY KEY (exercise_id, core_loop_id),
    FOREIGN KEY (exercise_id) REFERENCES exercises(id)
);

CREATE TABLE IF NOT EXISTS review_state (
    student_id TEXT NOT NULL,
    core_loop_id TEXT NOT NULL,
    ef REAL NOT NULL,
    n INTEGER NOT NULL,
    interval_days INTEGER NOT NULL,
    next_review TEXT,
    last_reviewed TEXT,
    total_attempts INTEGER NOT NULL DEFAULT 0,
    correct_attempts INTEGER NOT NULL DEFAULT 0,
    mastery_score REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (student_id, core_loop_id)
);

CREATE INDEX IF NOT EXISTS idx_review_state_student_next_review
    ON review_state(student_id, next_review);

CREATE TABLE IF NOT EXISTS topic_mastery (
    student_id TEXT NOT NULL,
    topic_id TEXT NOT NULL,
    mastery_score REAL NOT NULL DEFAULT 0,
    last_updated TEXT,
    PRIMARY KEY (student_id, topic_id)
);

CREATE TABLE IF NOT EXISTS course_mastery (
    student_id TEXT NOT NULL,
    course_id TEXT NOT NULL,
    mastery_score REAL NOT NULL DEFAULT 0,
    last_updated TEXT,
    PRIMARY KEY (student_id, course_id)
);

CREATE TABLE IF NOT EXISTS quiz_sessions (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    course_id TEXT NOT NULL,
    quiz_type TEXT NOT NULL,
    filters_json TEXT NOT NULL DEFAULT '{}',
    question_ids_json TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    completed_at TEXT,
    state TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quiz_answers (
    session_id TEXT NOT NULL,
    question_index INTEGER NOT NULL,
    exercise_id TEXT NOT NULL,
    user_answer TEXT NOT NULL,
    score REAL NOT NULL,
    correct BOOLEAN NOT NULL,
    hint_used BOOLEAN NOT NULL,
    time_taken_s INTEGER NOT NULL,
    submitted_at TEXT NOT NULL,
    PRIMARY KEY (session_id, question_index)
);

CREATE TABLE IF NOT EXISTS prerequisite_edges (
    prereq_core_loop_id TEXT NOT NULL,
    dependent_core_loop_id TEXT NOT NULL,
    PRIMARY KEY (prereq_core_loop_id, dependent_core_loop_id)
);
`

// SQLiteStore is the concrete MasteryStore, backed by modernc.org/sqlite
// (a CGo-free driver). It enforces exactly one writer per
// (student, core_loop) with a map of per-key mutexes, the same "one
// lock object per key" idea the teacher's grading service uses for
// per-session WaitGroups.
type SQLiteStore struct {
	db *sql.DB

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ MasteryStore = (*SQLiteStore)(nil)

// NewSQLite opens (creating if needed) a SQLite-backed MasteryStore at
// dbPath and applies the schema.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &SQLiteStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func reviewKey(studentID, coreLoopID string) string {
	return studentID + "|" + coreLoopID
}

// lockFor returns the mutex for (studentID, coreLoopID), creating it on
// first use. The returned mutex is not held yet.
func (s *SQLiteStore) lockFor(studentID, coreLoopID string) *sync.Mutex {
	key := reviewKey(studentID, coreLoopID)

	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

// ============================================================================
// Topics
// ============================================================================

func (s *SQLiteStore) InsertTopic(ctx context.Context, t *topic.Topic) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO topics (id, course_id, name, language) VALUES (?, ?, ?, ?)",
		t.ID, t.CourseID, t.Name, t.Language,
	)
	return err
}

func (s *SQLiteStore) ListTopicsByCourse(ctx context.Context, courseID string) ([]*topic.Topic, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, course_id, name, language FROM topics WHERE course_id = ?", courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*topic.Topic
	for rows.Next() {
		var t topic.Topic
		if err := rows.Scan(&t.ID, &t.CourseID, &t.Name, &t.Language); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ============================================================================
// Core loops
// ============================================================================

func (s *SQLiteStore) InsertCoreLoop(ctx context.Context, cl *coreloop.CoreLoop) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO core_loops (id, name, type, topic_id, language) VALUES (?, ?, ?, ?, ?)",
		cl.ID, cl.Name, string(cl.Type), cl.TopicID, cl.Language,
	)
	return err
}

func (s *SQLiteStore) GetCoreLoop(ctx context.Context, id string) (*coreloop.CoreLoop, error) {
	var cl coreloop.CoreLoop
	var typ string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, type, topic_id, language FROM core_loops WHERE id = ?", id,
	).Scan(&cl.ID, &cl.Name, &typ, &cl.TopicID, &cl.Language)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cl.Type = coreloop.Type(typ)
	return &cl, nil
}

func (s *SQLiteStore) ListCoreLoopsByTopic(ctx context.Context, topicID string) ([]*coreloop.CoreLoop, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, type, topic_id, language FROM core_loops WHERE topic_id = ?", topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*coreloop.CoreLoop
	for rows.Next() {
		var cl coreloop.CoreLoop
		var typ string
		if err := rows.Scan(&cl.ID, &cl.Name, &typ, &cl.TopicID, &cl.Language); err != nil {
			return nil, err
		}
		cl.Type = coreloop.Type(typ)
		out = append(out, &cl)
	}
	return out, rows.Err()
}

// ============================================================================
// Exercises
// ============================================================================

func (s *SQLiteStore) InsertExercise(ctx context.Context, ex *exercise.Exercise) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tags := make([]string, 0, len(ex.Tags))
	for t := range ex.Tags {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO exercises (id, course_id, topic_id, primary_core_loop_id, difficulty, type, tags, analyzed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.CourseID, ex.TopicID, ex.PrimaryCoreLoopID(), string(ex.Difficulty), string(ex.Type),
		strings.Join(tags, ","), ex.Analyzed,
	)
	if err != nil {
		return err
	}

	for i, loopID := range ex.CoreLoopIDs {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO exercise_core_loops (exercise_id, core_loop_id, step_number) VALUES (?, ?, ?)",
			ex.ID, loopID, i,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetExercise(ctx context.Context, id string) (*exercise.Exercise, error) {
	ex, err := s.scanExercise(ctx, s.db.QueryRowContext(ctx,
		"SELECT id, course_id, topic_id, difficulty, type, tags, analyzed FROM exercises WHERE id = ?", id))
	if err != nil {
		return nil, err
	}

	loopIDs, err := s.coreLoopIDsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	ex.CoreLoopIDs = loopIDs
	return ex, nil
}

func (s *SQLiteStore) scanExercise(ctx context.Context, row *sql.Row) (*exercise.Exercise, error) {
	var ex exercise.Exercise
	var difficulty, typ, tagsCSV string
	err := row.Scan(&ex.ID, &ex.CourseID, &ex.TopicID, &difficulty, &typ, &tagsCSV, &ex.Analyzed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ex.Difficulty = exercise.Difficulty(difficulty)
	ex.Type = exercise.Type(typ)
	ex.Tags = make(map[string]struct{})
	if tagsCSV != "" {
		for _, t := range strings.Split(tagsCSV, ",") {
			ex.Tags[t] = struct{}{}
		}
	}
	return &ex, nil
}

func (s *SQLiteStore) coreLoopIDsFor(ctx context.Context, exerciseID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT core_loop_id FROM exercise_core_loops WHERE exercise_id = ? ORDER BY step_number", exerciseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) ListExercises(ctx context.Context, courseID string, filter ExerciseFilter) ([]*exercise.Exercise, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT e.id, e.course_id, e.topic_id, e.difficulty, e.type, e.tags, e.analyzed
		FROM exercises e WHERE e.course_id = ? AND e.analyzed = TRUE`)
	args := []any{courseID}

	if filter.TopicID != nil {
		query.WriteString(" AND e.topic_id = ?")
		args = append(args, *filter.TopicID)
	}
	if filter.Difficulty != nil {
		query.WriteString(" AND e.difficulty = ?")
		args = append(args, string(*filter.Difficulty))
	}
	if filter.Type != nil {
		query.WriteString(" AND e.type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.CoreLoopID != nil {
		query.WriteString(` AND e.id IN (SELECT exercise_id FROM exercise_core_loops WHERE core_loop_id = ?)`)
		args = append(args, *filter.CoreLoopID)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*exercise.Exercise
	var ids []string
	for rows.Next() {
		var ex exercise.Exercise
		var difficulty, typ, tagsCSV string
		if err := rows.Scan(&ex.ID, &ex.CourseID, &ex.TopicID, &difficulty, &typ, &tagsCSV, &ex.Analyzed); err != nil {
			return nil, err
		}
		ex.Difficulty = exercise.Difficulty(difficulty)
		ex.Type = exercise.Type(typ)
		ex.Tags = make(map[string]struct{})
		if tagsCSV != "" {
			for _, t := range strings.Split(tagsCSV, ",") {
				ex.Tags[t] = struct{}{}
			}
		}
		out = append(out, &ex)
		ids = append(ids, ex.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		loopIDs, err := s.coreLoopIDsFor(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i].CoreLoopIDs = loopIDs
	}

	return out, nil
}

// ============================================================================
// ReviewState / mastery reads
// ============================================================================

func (s *SQLiteStore) GetReviewState(ctx context.Context, studentID, coreLoopID string) (*reviewstate.ReviewState, error) {
	rs, err := s.queryReviewState(ctx, s.db, studentID, coreLoopID)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		return reviewstate.New(studentID, coreLoopID), nil
	}
	return rs, nil
}

// queryReviewState returns nil (not ErrNotFound) when the row is absent,
// since the caller decides whether absence means "lazily default".
func (s *SQLiteStore) queryReviewState(ctx context.Context, q querier, studentID, coreLoopID string) (*reviewstate.ReviewState, error) {
	var rs reviewstate.ReviewState
	var nextReview, lastReviewed sql.NullString

	err := q.QueryRowContext(ctx,
		`SELECT student_id, core_loop_id, ef, n, interval_days, next_review, last_reviewed,
		        total_attempts, correct_attempts, mastery_score
		 FROM review_state WHERE student_id = ? AND core_loop_id = ?`,
		studentID, coreLoopID,
	).Scan(&rs.StudentID, &rs.CoreLoopID, &rs.EasinessFactor, &rs.Repetition, &rs.IntervalDays,
		&nextReview, &lastReviewed, &rs.TotalAttempts, &rs.CorrectAttempts, &rs.MasteryScore)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if nextReview.Valid {
		t, err := time.Parse(time.RFC3339, nextReview.String)
		if err != nil {
			return nil, err
		}
		rs.NextReview = &t
	}
	if lastReviewed.Valid {
		t, err := time.Parse(time.RFC3339, lastReviewed.String)
		if err != nil {
			return nil, err
		}
		rs.LastReviewed = &t
	}

	return &rs, nil
}

func (s *SQLiteStore) ListReviewStatesByCourse(ctx context.Context, studentID, courseID string) ([]*reviewstate.ReviewState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rs.student_id, rs.core_loop_id, rs.ef, rs.n, rs.interval_days, rs.next_review, rs.last_reviewed,
		        rs.total_attempts, rs.correct_attempts, rs.mastery_score
		 FROM review_state rs
		 JOIN core_loops cl ON cl.id = rs.core_loop_id
		 JOIN topics t ON t.id = cl.topic_id
		 WHERE rs.student_id = ? AND t.course_id = ?`,
		studentID, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*reviewstate.ReviewState
	for rows.Next() {
		var rs reviewstate.ReviewState
		var nextReview, lastReviewed sql.NullString
		if err := rows.Scan(&rs.StudentID, &rs.CoreLoopID, &rs.EasinessFactor, &rs.Repetition, &rs.IntervalDays,
			&nextReview, &lastReviewed, &rs.TotalAttempts, &rs.CorrectAttempts, &rs.MasteryScore); err != nil {
			return nil, err
		}
		if nextReview.Valid {
			t, err := time.Parse(time.RFC3339, nextReview.String)
			if err != nil {
				return nil, err
			}
			rs.NextReview = &t
		}
		if lastReviewed.Valid {
			t, err := time.Parse(time.RFC3339, lastReviewed.String)
			if err != nil {
				return nil, err
			}
			rs.LastReviewed = &t
		}
		out = append(out, &rs)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetTopicMastery(ctx context.Context, studentID, topicID string) (*mastery.TopicMastery, error) {
	var tm mastery.TopicMastery
	var lastUpdated sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT student_id, topic_id, mastery_score, last_updated FROM topic_mastery WHERE student_id = ? AND topic_id = ?",
		studentID, topicID,
	).Scan(&tm.StudentID, &tm.TopicID, &tm.Score, &lastUpdated)
	if err == sql.ErrNoRows {
		return &mastery.TopicMastery{StudentID: studentID, TopicID: topicID}, nil
	}
	if err != nil {
		return nil, err
	}
	if lastUpdated.Valid {
		t, err := time.Parse(time.RFC3339, lastUpdated.String)
		if err != nil {
			return nil, err
		}
		tm.LastUpdated = t
	}
	return &tm, nil
}

func (s *SQLiteStore) GetCourseMastery(ctx context.Context, studentID, courseID string) (*mastery.CourseMastery, error) {
	var cm mastery.CourseMastery
	var lastUpdated sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT student_id, course_id, mastery_score, last_updated FROM course_mastery WHERE student_id = ? AND course_id = ?",
		studentID, courseID,
	).Scan(&cm.StudentID, &cm.CourseID, &cm.Score, &lastUpdated)
	if err == sql.ErrNoRows {
		return &mastery.CourseMastery{StudentID: studentID, CourseID: courseID}, nil
	}
	if err != nil {
		return nil, err
	}
	if lastUpdated.Valid {
		t, err := time.Parse(time.RFC3339, lastUpdated.String)
		if err != nil {
			return nil, err
		}
		cm.LastUpdated = t
	}
	return &cm, nil
}

// ============================================================================
// Cascade — the single transactional write path for ReviewState and its
// topic/course aggregates.
// ============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) Cascade(ctx context.Context, params CascadeParams) (CascadeResult, error) {
	loopIDs := append([]string{params.PrimaryCoreLoopID}, params.SecondaryCoreLoopIDs...)

	// Lock every affected (student, core_loop) row, in a fixed sorted
	// order, so two concurrent cascades touching an overlapping set of
	// loops never deadlock against each other.
	sortedIDs := append([]string(nil), loopIDs...)
	sort.Strings(sortedIDs)

	locks := make([]*sync.Mutex, len(sortedIDs))
	for i, id := range sortedIDs {
		locks[i] = s.lockFor(params.StudentID, id)
	}
	for _, l := range locks {
		l.Lock()
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CascadeResult{}, err
	}
	defer tx.Rollback()

	current := make(map[string]*reviewstate.ReviewState, len(loopIDs))
	for _, loopID := range loopIDs {
		rs, err := s.queryReviewState(ctx, tx, params.StudentID, loopID)
		if err != nil {
			return CascadeResult{}, err
		}
		if rs == nil {
			rs = reviewstate.New(params.StudentID, loopID)
		}
		current[loopID] = rs
	}

	updated := params.Compute(current)
	if updated == nil {
		return CascadeResult{}, engineerr.ErrInternalInvariantViolated
	}

	for loopID, next := range updated {
		if err := s.upsertReviewState(ctx, tx, next); err != nil {
			return CascadeResult{}, err
		}
		_ = loopID
	}

	topicMastery, err := s.recomputeTopicMastery(ctx, tx, params.StudentID, params.TopicID)
	if err != nil {
		return CascadeResult{}, err
	}

	courseMastery, err := s.recomputeCourseMastery(ctx, tx, params.StudentID, params.CourseID)
	if err != nil {
		return CascadeResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return CascadeResult{}, err
	}

	return CascadeResult{
		UpdatedStates: updated,
		TopicMastery:  topicMastery,
		CourseMastery: courseMastery,
	}, nil
}

func (s *SQLiteStore) upsertReviewState(ctx context.Context, tx *sql.Tx, rs *reviewstate.ReviewState) error {
	var nextReview, lastReviewed any
	if rs.NextReview != nil {
		nextReview = rs.NextReview.UTC().Format(time.RFC3339)
	}
	if rs.LastReviewed != nil {
		lastReviewed = rs.LastReviewed.UTC().Format(time.RFC3339)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO review_state (student_id, core_loop_id, ef, n, interval_days, next_review, last_reviewed,
		                           total_attempts, correct_attempts, mastery_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (student_id, core_loop_id) DO UPDATE SET
		   ef = excluded.ef,
		   n = excluded.n,
		   interval_days = excluded.interval_days,
		   next_review = excluded.next_review,
		   last_reviewed = excluded.last_reviewed,
		   total_attempts = excluded.total_attempts,
		   correct_attempts = excluded.correct_attempts,
		   mastery_score = excluded.mastery_score`,
		rs.StudentID, rs.CoreLoopID, rs.EasinessFactor, rs.Repetition, rs.IntervalDays,
		nextReview, lastReviewed, rs.TotalAttempts, rs.CorrectAttempts, rs.MasteryScore,
	)
	return err
}

func (s *SQLiteStore) recomputeTopicMastery(ctx context.Context, tx *sql.Tx, studentID, topicID string) (*mastery.TopicMastery, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT rs.mastery_score, rs.total_attempts
		 FROM core_loops cl
		 LEFT JOIN review_state rs ON rs.core_loop_id = cl.id AND rs.student_id = ?
		 WHERE cl.topic_id = ?`,
		studentID, topicID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var children []mastery.ChildScore
	for rows.Next() {
		var score sql.NullFloat64
		var attempts sql.NullInt64
		if err := rows.Scan(&score, &attempts); err != nil {
			return nil, err
		}
		children = append(children, mastery.ChildScore{Score: score.Float64, Weight: float64(attempts.Int64)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tm := &mastery.TopicMastery{
		StudentID:   studentID,
		TopicID:     topicID,
		Score:       mastery.WeightedMean(children),
		LastUpdated: now,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO topic_mastery (student_id, topic_id, mastery_score, last_updated)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (student_id, topic_id) DO UPDATE SET
		   mastery_score = excluded.mastery_score, last_updated = excluded.last_updated`,
		tm.StudentID, tm.TopicID, tm.Score, now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	return tm, nil
}

func (s *SQLiteStore) recomputeCourseMastery(ctx context.Context, tx *sql.Tx, studentID, courseID string) (*mastery.CourseMastery, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT tm.mastery_score,
		        (SELECT COALESCE(SUM(rs.total_attempts), 0)
		         FROM core_loops cl JOIN review_state rs ON rs.core_loop_id = cl.id AND rs.student_id = tm.student_id
		         WHERE cl.topic_id = tm.topic_id) AS weight
		 FROM topic_mastery tm
		 JOIN topics t ON t.id = tm.topic_id
		 WHERE tm.student_id = ? AND t.course_id = ?`,
		studentID, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var children []mastery.ChildScore
	for rows.Next() {
		var score, weight float64
		if err := rows.Scan(&score, &weight); err != nil {
			return nil, err
		}
		children = append(children, mastery.ChildScore{Score: score, Weight: weight})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cm := &mastery.CourseMastery{
		StudentID:   studentID,
		CourseID:    courseID,
		Score:       mastery.WeightedMean(children),
		LastUpdated: now,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO course_mastery (student_id, course_id, mastery_score, last_updated)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (student_id, course_id) DO UPDATE SET
		   mastery_score = excluded.mastery_score, last_updated = excluded.last_updated`,
		cm.StudentID, cm.CourseID, cm.Score, now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	return cm, nil
}

// ============================================================================
// Quiz sessions / answers
// ============================================================================

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *quizsession.Session) error {
	questionIDsJSON := jsonStrings(sess.QuestionIDs)
	filtersJSON := jsonFilters(sess.Filters)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quiz_sessions (id, student_id, course_id, quiz_type, filters_json, question_ids_json, created_at, completed_at, state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StudentID, sess.CourseID, string(sess.QuizType), filtersJSON, questionIDsJSON,
		sess.CreatedAt.UTC().Format(time.RFC3339), nil, string(sess.State),
	)
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*quizsession.Session, error) {
	var sess quizsession.Session
	var quizType, filtersJSON, questionIDsJSON, state, createdAt string
	var completedAt sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, course_id, quiz_type, filters_json, question_ids_json, created_at, completed_at, state
		 FROM quiz_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.StudentID, &sess.CourseID, &quizType, &filtersJSON, &questionIDsJSON, &createdAt, &completedAt, &state)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	sess.QuizType = quizsession.Type(quizType)
	sess.State = quizsession.State(state)
	sess.QuestionIDs = parseJSONStrings(questionIDsJSON)
	sess.Filters = parseJSONFilters(filtersJSON)

	createdT, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = createdT

	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, err
		}
		sess.CompletedAt = &t
	}

	return &sess, nil
}

func (s *SQLiteStore) SetSessionState(ctx context.Context, id string, state quizsession.State, completedAt *time.Time) error {
	var completedAtVal any
	if completedAt != nil {
		completedAtVal = completedAt.UTC().Format(time.RFC3339)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE quiz_sessions SET state = ?, completed_at = COALESCE(?, completed_at) WHERE id = ?",
		string(state), completedAtVal, id,
	)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SaveAnswer(ctx context.Context, a *quizsession.Answer) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quiz_answers (session_id, question_index, exercise_id, user_answer, score, correct, hint_used, time_taken_s, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.QuestionIndex, a.ExerciseID, a.UserAnswer, a.Score, a.Correct, a.HintUsed, a.TimeTakenS,
		a.SubmittedAt.UTC().Format(time.RFC3339),
	)
	if err != nil && isUniqueConstraintErr(err) {
		return engineerr.ErrAlreadyAnswered
	}
	return err
}

func (s *SQLiteStore) GetAnswer(ctx context.Context, sessionID string, questionIndex int) (*quizsession.Answer, error) {
	var a quizsession.Answer
	var submittedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, question_index, exercise_id, user_answer, score, correct, hint_used, time_taken_s, submitted_at
		 FROM quiz_answers WHERE session_id = ? AND question_index = ?`, sessionID, questionIndex,
	).Scan(&a.SessionID, &a.QuestionIndex, &a.ExerciseID, &a.UserAnswer, &a.Score, &a.Correct, &a.HintUsed, &a.TimeTakenS, &submittedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, submittedAt)
	if err != nil {
		return nil, err
	}
	a.SubmittedAt = t
	return &a, nil
}

func (s *SQLiteStore) ListAnswers(ctx context.Context, sessionID string) ([]*quizsession.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, question_index, exercise_id, user_answer, score, correct, hint_used, time_taken_s, submitted_at
		 FROM quiz_answers WHERE session_id = ? ORDER BY question_index`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*quizsession.Answer
	for rows.Next() {
		var a quizsession.Answer
		var submittedAt string
		if err := rows.Scan(&a.SessionID, &a.QuestionIndex, &a.ExerciseID, &a.UserAnswer, &a.Score, &a.Correct, &a.HintUsed, &a.TimeTakenS, &submittedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, submittedAt)
		if err != nil {
			return nil, err
		}
		a.SubmittedAt = t
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ============================================================================
// Prerequisite edges
// ============================================================================

func (s *SQLiteStore) SaveEdge(ctx context.Context, prereq, dependent string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO prerequisite_edges (prereq_core_loop_id, dependent_core_loop_id) VALUES (?, ?)",
		prereq, dependent,
	)
	return err
}

func (s *SQLiteStore) ListEdges(ctx context.Context) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT prereq_core_loop_id, dependent_core_loop_id FROM prerequisite_edges")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.PrereqCoreLoopID, &e.DependentCoreLoopID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ============================================================================
// JSON helpers — small enough not to warrant encoding/json for the
// common case, but we use it anyway for correctness with arbitrary ids.
// ============================================================================

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}

func jsonStrings(xs []string) string {
	b, _ := json.Marshal(xs)
	return string(b)
}

func jsonFilters(f quizsession.Filters) string {
	b, _ := json.Marshal(filtersDTO{
		TopicID:    f.TopicID,
		CoreLoopID: f.CoreLoopID,
		Difficulty: f.Difficulty,
		Type:       f.Type,
	})
	return string(b)
}

type filtersDTO struct {
	TopicID    *string `json:"topic_id,omitempty"`
	CoreLoopID *string `json:"core_loop_id,omitempty"`
	Difficulty *string `json:"difficulty,omitempty"`
	Type       *string `json:"type,omitempty"`
}

func parseJSONStrings(s string) []string {
	var out []string
	if s == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func parseJSONFilters(s string) quizsession.Filters {
	var dto filtersDTO
	if s != "" {
		_ = json.Unmarshal([]byte(s), &dto)
	}
	return quizsession.Filters{
		TopicID:    dto.TopicID,
		CoreLoopID: dto.CoreLoopID,
		Difficulty: dto.Difficulty,
		Type:       dto.Type,
	}
}
