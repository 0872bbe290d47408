package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sql-academy-api/internal/models"
)

var (
	courseCols = []string{"id", "title", "description", "industry", "target_role", "skill_level", "status", "created_at", "updated_at"}
	moduleCols = []string{"id", "course_id", "position", "title", "content_type", "challenge", "created_at", "updated_at"}
)

func TestListPublishedAttachesModules(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE status = $1 ORDER BY created_at")).
		WithArgs(models.CourseStatusPublished).
		WillReturnRows(sqlmock.NewRows(courseCols).
			AddRow("c1", "Retail SQL", "", "retail", "analyst", "beginner", "published", now, now).
			AddRow("c2", "Finance SQL", "", "finance", "analyst", "beginner", "published", now, now))

	challenge := `{"type":"mcq","title":"t","task":"q","options":["a","b"],"correct_answer":0}`
	mock.ExpectQuery(regexp.QuoteMeta("FROM modules WHERE course_id = ANY($1) ORDER BY course_id, position")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(moduleCols).
			AddRow("m1", "c1", 1, "Select", "mcq", []byte(challenge), now, now).
			AddRow("m2", "c1", 2, "Where", "sql", nil, now, now))

	courses, err := repo.ListPublished(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, []string{"m1", "m2"}, courses[0].ModuleIDs())
	assert.Empty(t, courses[1].Modules)
	require.NotNil(t, courses[0].Modules[0].Challenge)
	assert.Equal(t, models.ContentTypeMCQ, courses[0].Modules[0].Challenge.Type)
	assert.Nil(t, courses[0].Modules[1].Challenge)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListCoursesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + courseColumns + " FROM courses WHERE 1=1 AND status = $1 AND (LOWER(title) LIKE $2 OR LOWER(description) LIKE $2) ORDER BY created_at DESC LIMIT 10 OFFSET 10")).
		WithArgs(models.CourseStatusPublished, "%join%").
		WillReturnRows(sqlmock.NewRows(courseCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{Status: models.CourseStatusPublished, Search: "JOIN", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, courses)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteModuleResequences(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewModuleRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM modules WHERE id = $1 RETURNING course_id")).
		WithArgs("m2").
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow("c1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE modules m SET position = s.rn")).
		WithArgs("c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "m2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveModuleRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewModuleRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT course_id FROM modules WHERE id = $1")).
		WithArgs("m3").
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow("c1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE modules SET position = position + 1")).
		WithArgs("c1", 1, "m3").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.Move(context.Background(), "m3", 0)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateModuleAppends(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewModuleRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(position), 0) + 1 FROM modules")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(4))
	mock.ExpectExec("INSERT INTO modules").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	module := &models.Module{CourseID: "c1", Title: "Joins", ContentType: models.ContentTypeSQL}
	require.NoError(t, repo.Create(context.Background(), module))
	assert.Equal(t, 4, module.Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}
