package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/edulink-app/assignment-api/internal/models"
)

// StatsRepository reads the rollup tables maintained by the submission
// transaction. A missing rollup row means nothing has been recorded yet, so
// reads fall back to zero-valued stats instead of an error.
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository constructs a stats repository.
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// GetStudentStats returns the per-student rollup.
func (r *StatsRepository) GetStudentStats(ctx context.Context, studentID string) (*models.StudentStats, error) {
	const query = `SELECT student_id, completed_assignments, questions_answered, correct_answers, total_score, updated_at
        FROM student_stats WHERE student_id = $1`
	var stats models.StudentStats
	if err := r.db.GetContext(ctx, &stats, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return &models.StudentStats{StudentID: studentID}, nil
		}
		return nil, fmt.Errorf("get student stats: %w", err)
	}
	return &stats, nil
}

// GetClassStats returns the per-class rollup.
func (r *StatsRepository) GetClassStats(ctx context.Context, classID string) (*models.ClassStats, error) {
	const query = `SELECT class_id, completed_assignments, questions_answered, correct_answers, total_score, updated_at
        FROM class_stats WHERE class_id = $1`
	var stats models.ClassStats
	if err := r.db.GetContext(ctx, &stats, query, classID); err != nil {
		if err == sql.ErrNoRows {
			return &models.ClassStats{ClassID: classID}, nil
		}
		return nil, fmt.Errorf("get class stats: %w", err)
	}
	return &stats, nil
}

// GetSchoolStats returns the single school-wide rollup row.
func (r *StatsRepository) GetSchoolStats(ctx context.Context) (*models.SchoolStats, error) {
	const query = `SELECT id, submissions, completed_assignments, questions_answered, correct_answers, updated_at
        FROM school_stats WHERE id = 1`
	var stats models.SchoolStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		if err == sql.ErrNoRows {
			return &models.SchoolStats{ID: 1}, nil
		}
		return nil, fmt.Errorf("get school stats: %w", err)
	}
	return &stats, nil
}

// ListClassAssignmentStats returns per-assignment completion figures for the
// assignments scoped to a class, ordered by due date.
func (r *StatsRepository) ListClassAssignmentStats(ctx context.Context, classID string) ([]models.ClassAssignmentStats, error) {
	const query = `SELECT a.id AS assignment_id, a.topic, a.completed_students_count, a.total_students_in_scope, a.completion_rate
        FROM assignments a
        JOIN class_assignments ca ON ca.assignment_id = a.id
        WHERE ca.class_id = $1
        ORDER BY a.due_at NULLS LAST, a.created_at DESC`
	var rows []models.ClassAssignmentStats
	if err := r.db.SelectContext(ctx, &rows, query, classID); err != nil {
		return nil, fmt.Errorf("list class assignment stats: %w", err)
	}
	return rows, nil
}
