package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sql-academy-api/internal/models"
	appErrors "github.com/noah-isme/sql-academy-api/pkg/errors"
)

type progressFixture struct {
	courses     *fakeCourses
	paths       *fakePaths
	enrollments *fakeEnrollments
	rows        *fakeProgress
	cacheRepo   *memoryCacheRepo
	svc         *ProgressService
}

func newProgressFixture() *progressFixture {
	f := &progressFixture{
		courses: &fakeCourses{courses: map[string]*models.Course{
			"c1": publishedCourse("c1", "m1", "m2"),
			"c2": publishedCourse("c2", "m3"),
		}},
		paths:       &fakePaths{paths: map[string]*models.LearningPath{}},
		enrollments: newFakeEnrollments(),
		rows:        newFakeProgress(),
		cacheRepo:   newMemoryCache(),
	}
	f.svc = NewProgressService(f.courses, f.paths, f.enrollments, f.rows, newTestCache(f.cacheRepo), NewMetricsService(), nil, 0)
	return f
}

func TestProgressRefreshAppliesCompletion(t *testing.T) {
	f := newProgressFixture()
	ctx := context.Background()
	_, _ = f.enrollments.Touch(ctx, "u1", "c1")
	f.rows.put("u1", "c1", "m1", models.ProgressStatusCompleted)
	f.rows.put("u1", "c1", "m2", models.ProgressStatusCompleted)

	snap, err := f.svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snap.Progress.Completed, 1)
	assert.Equal(t, "c1", snap.Progress.Completed[0].EntityID)
	assert.True(t, snap.Progress.CompletedCourseIDs.Has("c1"))
	assert.Equal(t, models.EnrollmentStatusCompleted, f.enrollments.courses["u1/c1"].Status)
	assert.Equal(t, 2, snap.Stats.CompletedModules)

	calls := f.enrollments.statusCalls
	_, err = f.svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, calls, f.enrollments.statusCalls)
}

func TestProgressSnapshotServedFromCache(t *testing.T) {
	f := newProgressFixture()
	ctx := context.Background()
	_, _ = f.enrollments.Touch(ctx, "u1", "c2")

	first, err := f.svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, first.Progress.InProgress, 1)
	assert.True(t, f.cacheRepo.has(progressCacheKey("u1")))

	f.courses.err = errors.New("db down")
	second, err := f.svc.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "c2", second.Progress.InProgress[0].EntityID)

	f.svc.Invalidate(ctx, "u1")
	assert.False(t, f.cacheRepo.has(progressCacheKey("u1")))
	_, err = f.svc.Snapshot(ctx, "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestProgressWriteFailureDoesNotFailRequest(t *testing.T) {
	f := newProgressFixture()
	ctx := context.Background()
	_, _ = f.enrollments.Touch(ctx, "u1", "c2")
	f.rows.put("u1", "c2", "m3", models.ProgressStatusCompleted)
	f.enrollments.failWrites = errors.New("write failed")

	snap, err := f.svc.Refresh(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, snap.Progress.CompletedCourseIDs.Has("c2"))
	assert.Equal(t, 1, f.enrollments.statusCalls)
}

func TestCompletedCourses(t *testing.T) {
	f := newProgressFixture()
	ctx := context.Background()
	_, _ = f.enrollments.Touch(ctx, "u1", "c2")
	f.rows.put("u1", "c2", "m3", models.ProgressStatusCompleted)

	set, err := f.svc.CompletedCourses(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, set.Sorted())
}
