package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edulink-app/assignment-api/internal/models"
)

// SubmissionRecord is one graded answer ready to be persisted.
type SubmissionRecord struct {
	QuestionID      string
	Correct         bool
	Score           float64
	Response        string
	AnalysisPayload json.RawMessage
}

// SubmissionResult reports the outcome of a recorded submission.
type SubmissionResult struct {
	Status models.StudentAssignmentStatus
	Delta  models.StatsDelta
}

// ProgressRepository persists per-question progress rows and keeps every
// rollup level consistent with them inside a single transaction.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs a progress repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

type dedupedCounts struct {
	Answered int     `db:"answered"`
	Correct  int     `db:"correct"`
	Score    float64 `db:"score"`
}

// RecordSubmission upserts the graded answers and cascades the counter updates
// to the assignment row, the student rollup, the class rollups and the school
// rollup. Everything commits or rolls back as a unit so aggregates always match
// the deduped progress rows.
func (r *ProgressRepository) RecordSubmission(ctx context.Context, assignmentID, studentID string, records []SubmissionRecord, classIDs []string) (*SubmissionResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submission tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var totalQuestions int
	if err := tx.GetContext(ctx, &totalQuestions, `SELECT COUNT(*) FROM questions WHERE assignment_id = $1`, assignmentID); err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}

	before, err := dedupedFor(ctx, tx, assignmentID, studentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	const upsert = `INSERT INTO student_assignment_progress
        (id, student_id, assignment_id, question_id, completed, correct, score, response, analysis_payload, attempt_count, created_at, updated_at)
        VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8, 1, $9, $9)
        ON CONFLICT (student_id, assignment_id, question_id)
        DO UPDATE SET correct = EXCLUDED.correct,
            score = EXCLUDED.score,
            response = EXCLUDED.response,
            analysis_payload = EXCLUDED.analysis_payload,
            attempt_count = student_assignment_progress.attempt_count + 1,
            updated_at = EXCLUDED.updated_at`
	for _, record := range records {
		if _, err := tx.ExecContext(ctx, upsert,
			uuid.NewString(), studentID, assignmentID, record.QuestionID,
			record.Correct, record.Score, record.Response, record.AnalysisPayload, now,
		); err != nil {
			return nil, fmt.Errorf("upsert progress for question %s: %w", record.QuestionID, err)
		}
	}

	after, err := dedupedFor(ctx, tx, assignmentID, studentID)
	if err != nil {
		return nil, err
	}

	completedBefore := totalQuestions > 0 && before.Answered == totalQuestions
	completedAfter := totalQuestions > 0 && after.Answered == totalQuestions
	completedDelta := 0
	if completedAfter && !completedBefore {
		completedDelta = 1
	}

	if err := refreshAssignmentCounters(ctx, tx, assignmentID, totalQuestions, now); err != nil {
		return nil, err
	}

	delta := models.StatsDelta{
		StudentID:         studentID,
		ClassIDs:          classIDs,
		QuestionsAnswered: after.Answered - before.Answered,
		CorrectAnswers:    after.Correct - before.Correct,
		ScoreDelta:        after.Score - before.Score,
		CompletedDelta:    completedDelta,
	}

	if err := applyStudentDelta(ctx, tx, delta, now); err != nil {
		return nil, err
	}
	for _, classID := range classIDs {
		if err := applyClassDelta(ctx, tx, classID, delta, now); err != nil {
			return nil, err
		}
	}
	if err := applySchoolDelta(ctx, tx, delta, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submission tx: %w", err)
	}

	status := buildStatus(assignmentID, studentID, totalQuestions, after)
	return &SubmissionResult{Status: status, Delta: delta}, nil
}

// StatusFor returns a student's deduped standing on an assignment.
func (r *ProgressRepository) StatusFor(ctx context.Context, assignmentID, studentID string) (*models.StudentAssignmentStatus, error) {
	var totalQuestions int
	if err := r.db.GetContext(ctx, &totalQuestions, `SELECT COUNT(*) FROM questions WHERE assignment_id = $1`, assignmentID); err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	counts, err := dedupedFor(ctx, r.db, assignmentID, studentID)
	if err != nil {
		return nil, err
	}
	status := buildStatus(assignmentID, studentID, totalQuestions, counts)
	return &status, nil
}

// ListByAssignment returns progress rows for teacher review, newest first.
func (r *ProgressRepository) ListByAssignment(ctx context.Context, filter models.ProgressFilter) ([]models.StudentProgress, int, error) {
	base := "FROM student_assignment_progress WHERE assignment_id = $1"
	args := []interface{}{filter.AssignmentID}
	if filter.StudentID != "" {
		base += fmt.Sprintf(" AND student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.QuestionID != "" {
		base += fmt.Sprintf(" AND question_id = $%d", len(args)+1)
		args = append(args, filter.QuestionID)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, student_id, assignment_id, question_id, completed, correct, score, response, analysis_payload, attempt_count, created_at, updated_at %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`, base, size, offset)
	var rows []models.StudentProgress
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list progress: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count progress: %w", err)
	}
	return rows, total, nil
}

// StatusesFor returns the deduped standing of every student in scope.
func (r *ProgressRepository) StatusesFor(ctx context.Context, assignmentID string) ([]models.StudentAssignmentStatus, error) {
	const query = `SELECT p.student_id,
            p.assignment_id,
            COUNT(DISTINCT p.question_id) AS questions_answered,
            COUNT(DISTINCT p.question_id) FILTER (WHERE p.correct) AS correct_answers,
            q.total AS total_questions,
            COALESCE(AVG(p.score), 0) AS average_score
        FROM student_assignment_progress p
        CROSS JOIN (SELECT COUNT(*) AS total FROM questions WHERE assignment_id = $1) q
        WHERE p.assignment_id = $1
        GROUP BY p.student_id, p.assignment_id, q.total
        ORDER BY p.student_id`
	var rows []models.StudentAssignmentStatus
	if err := r.db.SelectContext(ctx, &rows, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	for i := range rows {
		finishStatus(&rows[i])
	}
	return rows, nil
}

// sqlx.ExtContext is satisfied by both *sqlx.DB and *sqlx.Tx.
func dedupedFor(ctx context.Context, q sqlx.ExtContext, assignmentID, studentID string) (dedupedCounts, error) {
	const query = `SELECT COUNT(DISTINCT question_id) AS answered,
            COUNT(DISTINCT question_id) FILTER (WHERE correct) AS correct,
            COALESCE(SUM(score), 0) AS score
        FROM student_assignment_progress
        WHERE assignment_id = $1 AND student_id = $2 AND completed`
	var counts dedupedCounts
	if err := sqlx.GetContext(ctx, q, &counts, query, assignmentID, studentID); err != nil {
		return dedupedCounts{}, fmt.Errorf("deduped counts: %w", err)
	}
	return counts, nil
}

func refreshAssignmentCounters(ctx context.Context, tx *sqlx.Tx, assignmentID string, totalQuestions int, now time.Time) error {
	const query = `UPDATE assignments a SET
            completed_students_count = s.completed,
            completion_rate = CASE WHEN a.total_students_in_scope > 0
                THEN s.completed::float / a.total_students_in_scope ELSE 0 END,
            average_score_of_completed = s.avg_score,
            updated_at = $3
        FROM (
            SELECT COUNT(*) AS completed, COALESCE(AVG(student_avg), 0) AS avg_score
            FROM (
                SELECT p.student_id, AVG(p.score) AS student_avg
                FROM student_assignment_progress p
                WHERE p.assignment_id = $1 AND p.completed
                GROUP BY p.student_id
                HAVING COUNT(DISTINCT p.question_id) = $2 AND $2 > 0
            ) per_student
        ) s
        WHERE a.id = $1`
	if _, err := tx.ExecContext(ctx, query, assignmentID, totalQuestions, now); err != nil {
		return fmt.Errorf("refresh assignment counters: %w", err)
	}
	return nil
}

func applyStudentDelta(ctx context.Context, tx *sqlx.Tx, delta models.StatsDelta, now time.Time) error {
	const query = `INSERT INTO student_stats (student_id, completed_assignments, questions_answered, correct_answers, total_score, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (student_id) DO UPDATE SET
            completed_assignments = student_stats.completed_assignments + EXCLUDED.completed_assignments,
            questions_answered = student_stats.questions_answered + EXCLUDED.questions_answered,
            correct_answers = student_stats.correct_answers + EXCLUDED.correct_answers,
            total_score = student_stats.total_score + EXCLUDED.total_score,
            updated_at = EXCLUDED.updated_at`
	if _, err := tx.ExecContext(ctx, query, delta.StudentID, delta.CompletedDelta, delta.QuestionsAnswered, delta.CorrectAnswers, delta.ScoreDelta, now); err != nil {
		return fmt.Errorf("apply student stats delta: %w", err)
	}
	return nil
}

func applyClassDelta(ctx context.Context, tx *sqlx.Tx, classID string, delta models.StatsDelta, now time.Time) error {
	const query = `INSERT INTO class_stats (class_id, completed_assignments, questions_answered, correct_answers, total_score, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (class_id) DO UPDATE SET
            completed_assignments = class_stats.completed_assignments + EXCLUDED.completed_assignments,
            questions_answered = class_stats.questions_answered + EXCLUDED.questions_answered,
            correct_answers = class_stats.correct_answers + EXCLUDED.correct_answers,
            total_score = class_stats.total_score + EXCLUDED.total_score,
            updated_at = EXCLUDED.updated_at`
	if _, err := tx.ExecContext(ctx, query, classID, delta.CompletedDelta, delta.QuestionsAnswered, delta.CorrectAnswers, delta.ScoreDelta, now); err != nil {
		return fmt.Errorf("apply class stats delta: %w", err)
	}
	return nil
}

func applySchoolDelta(ctx context.Context, tx *sqlx.Tx, delta models.StatsDelta, now time.Time) error {
	const query = `INSERT INTO school_stats (id, submissions, completed_assignments, questions_answered, correct_answers, updated_at)
        VALUES (1, 1, $1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET
            submissions = school_stats.submissions + 1,
            completed_assignments = school_stats.completed_assignments + EXCLUDED.completed_assignments,
            questions_answered = school_stats.questions_answered + EXCLUDED.questions_answered,
            correct_answers = school_stats.correct_answers + EXCLUDED.correct_answers,
            updated_at = EXCLUDED.updated_at`
	if _, err := tx.ExecContext(ctx, query, delta.CompletedDelta, delta.QuestionsAnswered, delta.CorrectAnswers, now); err != nil {
		return fmt.Errorf("apply school stats delta: %w", err)
	}
	return nil
}

func buildStatus(assignmentID, studentID string, totalQuestions int, counts dedupedCounts) models.StudentAssignmentStatus {
	status := models.StudentAssignmentStatus{
		StudentID:         studentID,
		AssignmentID:      assignmentID,
		QuestionsAnswered: counts.Answered,
		CorrectAnswers:    counts.Correct,
		TotalQuestions:    totalQuestions,
	}
	if counts.Answered > 0 {
		status.AverageScore = counts.Score / float64(counts.Answered)
	}
	finishStatus(&status)
	return status
}

func finishStatus(status *models.StudentAssignmentStatus) {
	if status.TotalQuestions > 0 {
		status.CompletionPercent = float64(status.QuestionsAnswered) / float64(status.TotalQuestions)
		status.Completed = status.QuestionsAnswered == status.TotalQuestions
	}
	if status.QuestionsAnswered > 0 {
		status.Accuracy = float64(status.CorrectAnswers) / float64(status.QuestionsAnswered)
	}
}
