package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulink-app/assignment-api/internal/models"
)

func TestFindClassDetail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "grade", "teacher_id", "created_at", "updated_at", "teacher_name", "student_count"}).
		AddRow("c1", "7A", "7", "t1", now, now, "Ms. Teacher", 24)
	mock.ExpectQuery("SELECT c.id, c.name, c.grade").
		WithArgs("c1").
		WillReturnRows(rows)

	detail, err := repo.FindDetailByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "7A", detail.Name)
	assert.Equal(t, 24, detail.StudentCount)
	require.NotNil(t, detail.TeacherName)
	assert.Equal(t, "Ms. Teacher", *detail.TeacherName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListClassesWithGradeFilter(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	listRows := sqlmock.NewRows([]string{"id", "name", "grade", "teacher_id", "created_at", "updated_at"}).
		AddRow("c1", "7A", "7", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, grade, teacher_id, created_at, updated_at FROM classes WHERE 1=1 AND grade = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("7").
		WillReturnRows(listRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM classes WHERE 1=1 AND grade = $1")).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	classes, total, err := repo.List(context.Background(), models.ClassFilter{Grade: "7"})
	require.NoError(t, err)
	assert.Len(t, classes, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddStudentIgnoresDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec("INSERT INTO class_students").
		WithArgs(sqlmock.AnyArg(), "c1", "s1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AddStudent(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveStudentMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec("DELETE FROM class_students").
		WithArgs("c1", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RemoveStudent(context.Background(), "c1", "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMembers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "class_id", "student_id", "joined_at", "full_name", "email"}).
		AddRow("m1", "c1", "s1", now, "Student One", "s1@school.test").
		AddRow("m2", "c1", "s2", now, "Student Two", "s2@school.test")
	mock.ExpectQuery("SELECT cs.id, cs.class_id, cs.student_id").
		WithArgs("c1").
		WillReturnRows(rows)

	members, err := repo.ListMembers(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Student One", members[0].FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByStudent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	rows := sqlmock.NewRows([]string{"class_id"}).AddRow("c1").AddRow("c2")
	mock.ExpectQuery("SELECT class_id FROM class_students").
		WithArgs("s1").
		WillReturnRows(rows)

	classIDs, err := repo.ListByStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, classIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
