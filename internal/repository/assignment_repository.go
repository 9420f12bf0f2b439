package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edulink-app/assignment-api/internal/models"
)

// AssignmentRepository manages persistence for assignments, their questions,
// evaluation settings and scope links.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs a new assignment repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `a.id, a.topic, a.description, a.type, a.created_by,
        a.evaluation_type, a.evaluation_rules, a.acceptable_responses, a.allow_late, a.pass_threshold,
        a.scheduled_publish_at, a.due_at, a.is_active,
        a.total_students_in_scope, a.completed_students_count, a.completion_rate, a.average_score_of_completed,
        a.created_at, a.updated_at`

type assignmentRow struct {
	models.Assignment
	models.EvaluationSettings
}

func (row assignmentRow) toModel() models.Assignment {
	assignment := row.Assignment
	assignment.Evaluation = row.EvaluationSettings
	return assignment
}

// List returns assignments matching filter criteria.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	base := "FROM assignments a WHERE 1=1"
	var args []interface{}

	if filter.Type != "" {
		base += fmt.Sprintf(" AND a.type = $%d", len(args)+1)
		args = append(args, filter.Type)
	}
	if filter.EvaluationType != "" {
		base += fmt.Sprintf(" AND a.evaluation_type = $%d", len(args)+1)
		args = append(args, filter.EvaluationType)
	}
	if filter.Active != nil {
		base += fmt.Sprintf(" AND a.is_active = $%d", len(args)+1)
		args = append(args, *filter.Active)
	}
	if filter.CreatedBy != "" {
		base += fmt.Sprintf(" AND a.created_by = $%d", len(args)+1)
		args = append(args, filter.CreatedBy)
	}
	if filter.ClassID != "" {
		base += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM class_assignments ca WHERE ca.assignment_id = a.id AND ca.class_id = $%d)", len(args)+1)
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		base += fmt.Sprintf(` AND (EXISTS (SELECT 1 FROM student_assignments sa WHERE sa.assignment_id = a.id AND sa.student_id = $%d)
            OR EXISTS (SELECT 1 FROM class_assignments ca JOIN class_students cs ON cs.class_id = ca.class_id WHERE ca.assignment_id = a.id AND cs.student_id = $%d))`, len(args)+1, len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.Search != "" {
		base += fmt.Sprintf(" AND LOWER(a.topic) LIKE $%d", len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"topic":           true,
		"due_at":          true,
		"completion_rate": true,
		"created_at":      true,
		"updated_at":      true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY a.%s %s LIMIT %d OFFSET %d", assignmentColumns, base, sortBy, order, size, offset)
	var rows []assignmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	assignments := make([]models.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, row.toModel())
	}
	return assignments, total, nil
}

// FindByID returns an assignment by ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM assignments a WHERE a.id = $1", assignmentColumns)
	var row assignmentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	assignment := row.toModel()
	return &assignment, nil
}

// FindDetailByID returns the assignment with its questions and scope links.
func (r *AssignmentRepository) FindDetailByID(ctx context.Context, id string) (*models.AssignmentDetail, error) {
	assignment, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &models.AssignmentDetail{Assignment: *assignment}

	const questionQuery = `SELECT id, assignment_id, position, prompt, answer, created_at FROM questions WHERE assignment_id = $1 ORDER BY position`
	if err := r.db.SelectContext(ctx, &detail.Questions, questionQuery, id); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	if err := r.db.SelectContext(ctx, &detail.ClassIDs, `SELECT class_id FROM class_assignments WHERE assignment_id = $1 ORDER BY class_id`, id); err != nil {
		return nil, fmt.Errorf("load class scope: %w", err)
	}
	if err := r.db.SelectContext(ctx, &detail.StudentIDs, `SELECT student_id FROM student_assignments WHERE assignment_id = $1 ORDER BY student_id`, id); err != nil {
		return nil, fmt.Errorf("load student scope: %w", err)
	}
	return detail, nil
}

// Create persists the assignment, its questions and scope links in one transaction.
func (r *AssignmentRepository) Create(ctx context.Context, detail *models.AssignmentDetail) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if detail.ID == "" {
		detail.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	detail.CreatedAt = now
	detail.UpdatedAt = now

	const insert = `INSERT INTO assignments
        (id, topic, description, type, created_by,
         evaluation_type, evaluation_rules, acceptable_responses, allow_late, pass_threshold,
         scheduled_publish_at, due_at, is_active,
         total_students_in_scope, completed_students_count, completion_rate, average_score_of_completed,
         created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 0, 0, 0, $15, $15)`
	if _, err := tx.ExecContext(ctx, insert,
		detail.ID, detail.Topic, detail.Description, detail.Type, detail.CreatedBy,
		detail.Evaluation.Type, detail.Evaluation.Rules, detail.Evaluation.AcceptableResponses,
		detail.Evaluation.AllowLate, detail.Evaluation.PassThreshold,
		detail.ScheduledPublishAt, detail.DueAt, detail.IsActive,
		detail.TotalStudentsInScope, now,
	); err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}

	for i := range detail.Questions {
		question := &detail.Questions[i]
		if question.ID == "" {
			question.ID = uuid.NewString()
		}
		question.AssignmentID = detail.ID
		question.Position = i + 1
		question.CreatedAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id, assignment_id, position, prompt, answer, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			question.ID, question.AssignmentID, question.Position, question.Prompt, question.Answer, now,
		); err != nil {
			return fmt.Errorf("insert question %d: %w", i+1, err)
		}
	}

	if err := replaceScopeTx(ctx, tx, detail.ID, detail.ClassIDs, detail.StudentIDs, now); err != nil {
		return err
	}
	if err := refreshScopeCountTx(ctx, tx, detail.ID, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}
	return nil
}

// Update modifies the assignment row and, when provided, its scope links.
func (r *AssignmentRepository) Update(ctx context.Context, detail *models.AssignmentDetail) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	detail.UpdatedAt = now

	const update = `UPDATE assignments SET
            topic = $2, description = $3, type = $4,
            evaluation_type = $5, evaluation_rules = $6, acceptable_responses = $7,
            allow_late = $8, pass_threshold = $9,
            scheduled_publish_at = $10, due_at = $11, is_active = $12,
            updated_at = $13
        WHERE id = $1`
	result, err := tx.ExecContext(ctx, update,
		detail.ID, detail.Topic, detail.Description, detail.Type,
		detail.Evaluation.Type, detail.Evaluation.Rules, detail.Evaluation.AcceptableResponses,
		detail.Evaluation.AllowLate, detail.Evaluation.PassThreshold,
		detail.ScheduledPublishAt, detail.DueAt, detail.IsActive, now,
	)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	if err := replaceScopeTx(ctx, tx, detail.ID, detail.ClassIDs, detail.StudentIDs, now); err != nil {
		return err
	}
	if err := refreshScopeCountTx(ctx, tx, detail.ID, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update tx: %w", err)
	}
	return nil
}

// Delete removes an assignment; progress and scope rows cascade.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasSubmissions reports whether any progress rows exist for the assignment.
func (r *AssignmentRepository) HasSubmissions(ctx context.Context, id string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM student_assignment_progress WHERE assignment_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, fmt.Errorf("check submissions: %w", err)
	}
	return exists, nil
}

// ListDueForPublish returns inactive assignments whose publish time has arrived.
func (r *AssignmentRepository) ListDueForPublish(ctx context.Context, now time.Time) ([]models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments a
        WHERE a.is_active = FALSE AND a.scheduled_publish_at IS NOT NULL AND a.scheduled_publish_at <= $1
        ORDER BY a.scheduled_publish_at`, assignmentColumns)
	var rows []assignmentRow
	if err := r.db.SelectContext(ctx, &rows, query, now); err != nil {
		return nil, fmt.Errorf("list due for publish: %w", err)
	}
	assignments := make([]models.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, row.toModel())
	}
	return assignments, nil
}

// Activate marks an assignment active once its publish time has passed.
func (r *AssignmentRepository) Activate(ctx context.Context, id string, now time.Time) error {
	const query = `UPDATE assignments SET is_active = TRUE, updated_at = $2
        WHERE id = $1 AND (scheduled_publish_at IS NULL OR scheduled_publish_at <= $2)`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("activate assignment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ScopeForStudent reports whether the student is in the assignment's scope and
// through which classes.
func (r *AssignmentRepository) ScopeForStudent(ctx context.Context, assignmentID, studentID string) (bool, []string, error) {
	var classIDs []string
	const classQuery = `SELECT ca.class_id FROM class_assignments ca
        JOIN class_students cs ON cs.class_id = ca.class_id
        WHERE ca.assignment_id = $1 AND cs.student_id = $2
        ORDER BY ca.class_id`
	if err := r.db.SelectContext(ctx, &classIDs, classQuery, assignmentID, studentID); err != nil {
		return false, nil, fmt.Errorf("check class scope: %w", err)
	}
	if len(classIDs) > 0 {
		return true, classIDs, nil
	}

	var direct bool
	const directQuery = `SELECT EXISTS (SELECT 1 FROM student_assignments WHERE assignment_id = $1 AND student_id = $2)`
	if err := r.db.GetContext(ctx, &direct, directQuery, assignmentID, studentID); err != nil {
		return false, nil, fmt.Errorf("check student scope: %w", err)
	}
	return direct, nil, nil
}

func replaceScopeTx(ctx context.Context, tx *sqlx.Tx, assignmentID string, classIDs, studentIDs []string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM class_assignments WHERE assignment_id = $1`, assignmentID); err != nil {
		return fmt.Errorf("clear class scope: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM student_assignments WHERE assignment_id = $1`, assignmentID); err != nil {
		return fmt.Errorf("clear student scope: %w", err)
	}
	for _, classID := range classIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO class_assignments (id, class_id, assignment_id, created_at) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), classID, assignmentID, now,
		); err != nil {
			return fmt.Errorf("link class %s: %w", classID, err)
		}
	}
	for _, studentID := range studentIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO student_assignments (id, student_id, assignment_id, created_at) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), studentID, assignmentID, now,
		); err != nil {
			return fmt.Errorf("link student %s: %w", studentID, err)
		}
	}
	return nil
}

// refreshScopeCountTx recounts the distinct students reachable through scope
// links and stores the result on the assignment row.
func refreshScopeCountTx(ctx context.Context, tx *sqlx.Tx, assignmentID string, now time.Time) error {
	const query = `UPDATE assignments a SET
            total_students_in_scope = s.total,
            completion_rate = CASE WHEN s.total > 0 THEN a.completed_students_count::float / s.total ELSE 0 END,
            updated_at = $2
        FROM (
            SELECT COUNT(DISTINCT student_id) AS total FROM (
                SELECT cs.student_id FROM class_assignments ca
                    JOIN class_students cs ON cs.class_id = ca.class_id
                    WHERE ca.assignment_id = $1
                UNION
                SELECT sa.student_id FROM student_assignments sa WHERE sa.assignment_id = $1
            ) scoped
        ) s
        WHERE a.id = $1`
	if _, err := tx.ExecContext(ctx, query, assignmentID, now); err != nil {
		return fmt.Errorf("refresh scope count: %w", err)
	}
	return nil
}
