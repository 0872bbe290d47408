package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pathCols = []string{"id", "title", "description", "target_role", "is_published", "created_at", "updated_at"}

func TestListPublishedPathsAttachesCourses(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLearningPathRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM learning_paths WHERE is_published = TRUE ORDER BY created_at`)).
		WillReturnRows(sqlmock.NewRows(pathCols).
			AddRow("p1", "Analyst", "", "analyst", true, now, now).
			AddRow("p2", "Empty", "", "", true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM learning_path_courses lpc`)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"path_id", "course_id", "position", "title"}).
			AddRow("p1", "c2", 1, "Basics").
			AddRow("p1", "c1", 2, "Joins"))

	paths, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, []string{"c2", "c1"}, paths[0].CourseIDs())
	assert.NotNil(t, paths[1].Courses)
	assert.Empty(t, paths[1].Courses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceCoursesDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLearningPathRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM learning_paths WHERE id = $1 FOR UPDATE`)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM learning_path_courses WHERE path_id = $1`)).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO learning_path_courses`)).
		WithArgs("p1", "c1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO learning_path_courses`)).
		WithArgs("p1", "c1", 2).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.ReplaceCourses(context.Background(), "p1", []string{"c1", "c1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceCoursesInOrder(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLearningPathRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM learning_path_courses`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for i, id := range []string{"c3", "c1"} {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO learning_path_courses`)).
			WithArgs("p1", id, i+1).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE learning_paths SET updated_at = $2 WHERE id = $1`)).
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceCourses(context.Background(), "p1", []string{"c3", "c1"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
