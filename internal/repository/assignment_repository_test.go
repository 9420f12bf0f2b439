package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulink-app/assignment-api/internal/models"
)

var assignmentTestColumns = []string{
	"id", "topic", "description", "type", "created_by",
	"evaluation_type", "evaluation_rules", "acceptable_responses", "allow_late", "pass_threshold",
	"scheduled_publish_at", "due_at", "is_active",
	"total_students_in_scope", "completed_students_count", "completion_rate", "average_score_of_completed",
	"created_at", "updated_at",
}

func assignmentTestRow(id, topic string, active bool) []driver.Value {
	now := time.Now()
	return []driver.Value{
		id, topic, "desc", string(models.AssignmentTypeClass), "t1",
		string(models.EvaluationReading), []byte(`{}`), []byte(`[]`), false, 0.7,
		nil, nil, active,
		24, 6, 0.25, 0.8,
		now, now,
	}
}

func TestFindAssignmentByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows(assignmentTestColumns).AddRow(assignmentTestRow("a1", "Reading week 1", true)...)
	mock.ExpectQuery("SELECT a.id, a.topic").
		WithArgs("a1").
		WillReturnRows(rows)

	assignment, err := repo.FindByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "Reading week 1", assignment.Topic)
	assert.Equal(t, models.EvaluationReading, assignment.Evaluation.Type)
	assert.InDelta(t, 0.25, assignment.CompletionRate, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAssignmentsActiveFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows(assignmentTestColumns).AddRow(assignmentTestRow("a1", "Reading week 1", true)...)
	mock.ExpectQuery(`SELECT a.id, a.topic(?s:.*)AND a.is_active = \$1`).
		WithArgs(true).
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM assignments a`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	active := true
	assignments, total, err := repo.List(context.Background(), models.AssignmentFilter{Active: &active})
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAssignmentTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assignments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO questions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM class_assignments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM student_assignments").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO class_assignments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE assignments a SET(?s:.*)total_students_in_scope`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	detail := &models.AssignmentDetail{
		Assignment: models.Assignment{
			Topic:     "Reading week 1",
			Type:      models.AssignmentTypeClass,
			CreatedBy: "t1",
			Evaluation: models.EvaluationSettings{
				Type: models.EvaluationReading,
			},
		},
		Questions: []models.Question{{Prompt: "Read aloud", Answer: "The cat sat"}},
		ClassIDs:  []string{"c1"},
	}
	err := repo.Create(context.Background(), detail)
	require.NoError(t, err)
	assert.NotEmpty(t, detail.ID)
	assert.Equal(t, 1, detail.Questions[0].Position)
	assert.Equal(t, detail.ID, detail.Questions[0].AssignmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAssignmentMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE assignments SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Update(context.Background(), &models.AssignmentDetail{Assignment: models.Assignment{ID: "missing"}})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateRespectsSchedule(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	// Publish time still in the future: the guard matches no row.
	mock.ExpectExec("UPDATE assignments SET is_active = TRUE").
		WithArgs("a1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Activate(context.Background(), "a1", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeForStudentViaClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows([]string{"class_id"}).AddRow("c1").AddRow("c2")
	mock.ExpectQuery("SELECT ca.class_id FROM class_assignments").
		WithArgs("a1", "s1").
		WillReturnRows(rows)

	inScope, classIDs, err := repo.ScopeForStudent(context.Background(), "a1", "s1")
	require.NoError(t, err)
	assert.True(t, inScope)
	assert.Equal(t, []string{"c1", "c2"}, classIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeForStudentDirectLink(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery("SELECT ca.class_id FROM class_assignments").
		WithArgs("a1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"class_id"}))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("a1", "s1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	inScope, classIDs, err := repo.ScopeForStudent(context.Background(), "a1", "s1")
	require.NoError(t, err)
	assert.True(t, inScope)
	assert.Empty(t, classIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueForPublish(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows(assignmentTestColumns).AddRow(assignmentTestRow("a1", "Scheduled", false)...)
	mock.ExpectQuery("SELECT a.id, a.topic(?s:.*)scheduled_publish_at").
		WillReturnRows(rows)

	assignments, err := repo.ListDueForPublish(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.False(t, assignments[0].IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}
