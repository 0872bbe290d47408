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

func TestTouchEnrollmentUpserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (user_id, course_id) DO UPDATE SET last_accessed = EXCLUDED.last_accessed")).
		WithArgs(sqlmock.AnyArg(), "u1", "c1", models.EnrollmentStatusInProgress, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "course_id", "status", "enrolled_at", "last_accessed"}).
			AddRow("e1", "u1", "c1", "completed", now, now))

	enrollment, err := repo.Touch(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.NotNil(t, enrollment.LastAccessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsurePathEnrollmentIsIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO path_enrollments")).
			WithArgs(sqlmock.AnyArg(), "u1", "p1", models.EnrollmentStatusInProgress, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "path_id", "status", "enrolled_at"}).
				AddRow("pe1", "u1", "p1", "in_progress", now))
	}

	first, err := repo.EnsurePathEnrollment(context.Background(), "u1", "p1")
	require.NoError(t, err)
	second, err := repo.EnsurePathEnrollment(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatuses(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $3 WHERE user_id = $1 AND course_id = $2")).
		WithArgs("u1", "c1", models.EnrollmentStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE path_enrollments SET status = $3 WHERE user_id = $1 AND path_id = $2")).
		WithArgs("u1", "p1", models.EnrollmentStatusCompleted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "u1", "c1", models.EnrollmentStatusCompleted))
	require.NoError(t, repo.UpdatePathStatus(context.Background(), "u1", "p1", models.EnrollmentStatusCompleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompletedNeverRewritesCompletedRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgressRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE module_progress.status <> EXCLUDED.status")).
		WithArgs(sqlmock.AnyArg(), "u1", "c1", "m1", models.ProgressStatusCompleted, 100, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE module_progress.status <> EXCLUDED.status")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	awarded, err := repo.MarkCompleted(context.Background(), "u1", "c1", "m1", 100)
	require.NoError(t, err)
	assert.True(t, awarded)

	awarded, err = repo.MarkCompleted(context.Background(), "u1", "c1", "m1", 100)
	require.NoError(t, err)
	assert.False(t, awarded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkStartedReportsCreation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgressRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, module_id) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "u1", "c1", "m1", models.ProgressStatusStarted, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.MarkStarted(context.Background(), "u1", "c1", "m1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTotalXP(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProgressRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(xp_earned), 0) FROM module_progress WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(350))

	total, err := repo.TotalXP(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 350, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
