package progress

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sql-academy-api/internal/models"
)

func course(id string, moduleIDs ...string) models.Course {
	c := models.Course{ID: id, Title: "Course " + id, Industry: "retail"}
	for i, mid := range moduleIDs {
		c.Modules = append(c.Modules, models.Module{ID: mid, CourseID: id, Position: i + 1})
	}
	return c
}

func path(id string, courseIDs ...string) models.LearningPath {
	p := models.LearningPath{ID: id, Title: "Path " + id, IsPublished: true}
	for i, cid := range courseIDs {
		p.Courses = append(p.Courses, models.PathCourse{PathID: id, CourseID: cid, Position: i + 1})
	}
	return p
}

func done(courseID string, moduleIDs ...string) []models.ModuleProgress {
	rows := make([]models.ModuleProgress, 0, len(moduleIDs))
	for _, mid := range moduleIDs {
		rows = append(rows, models.ModuleProgress{UserID: "u1", CourseID: courseID, ModuleID: mid, Status: models.ProgressStatusCompleted, XPEarned: 100})
	}
	return rows
}

func ts(minutes int) *time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
	return &t
}

func bundleInput() Input {
	return Input{
		UserID:  "u1",
		Courses: []models.Course{course("c1", "m1", "m2"), course("c2", "m3", "m4")},
		Paths:   []models.LearningPath{path("p1", "c1", "c2")},
		Enrollments: []models.Enrollment{
			{UserID: "u1", CourseID: "c1", Status: models.EnrollmentStatusInProgress, LastAccessed: ts(5)},
			{UserID: "u1", CourseID: "c2", Status: models.EnrollmentStatusInProgress, LastAccessed: ts(10)},
		},
		PathEnrollments: []models.PathEnrollment{
			{UserID: "u1", PathID: "p1", Status: models.EnrollmentStatusInProgress, EnrolledAt: *ts(0)},
		},
	}
}

func TestReconcileRequiresUser(t *testing.T) {
	_, err := Reconcile(Input{UserID: "  "})
	assert.ErrorIs(t, err, ErrMissingUser)
}

func TestReconcileBundlePartial(t *testing.T) {
	in := bundleInput()
	in.Progress = append(done("c1", "m1", "m2"), done("c2", "m3")...)

	res, err := Reconcile(in)
	require.NoError(t, err)

	require.Len(t, res.InProgress, 1)
	assert.Empty(t, res.Completed)
	item := res.InProgress[0]
	assert.Equal(t, "path-p1", item.ID)
	assert.Equal(t, 75, item.Percent)
	assert.False(t, item.IsDone)
	assert.True(t, item.LastActive)
	assert.Equal(t, "c2", item.NextCourseID)
	assert.Equal(t, "m4", item.NextModuleID)
	assert.Equal(t, Action{Kind: ActionResumeCourse, PathID: "p1", CourseID: "c2", ModuleID: "m4"}, item.Action)
	assert.Equal(t, ts(10), item.ActivityAt)
	assert.True(t, res.CompletedCourseIDs.Has("c1"))
	require.Len(t, res.Writes, 1)
	assert.Equal(t, StatusWrite{Kind: WriteCourseEnrollment, UserID: "u1", EntityID: "c1", From: models.EnrollmentStatusInProgress, To: models.EnrollmentStatusCompleted}, res.Writes[0])
}

func TestReconcileBundleCompletionWriteBack(t *testing.T) {
	in := bundleInput()
	in.Progress = append(done("c1", "m1", "m2"), done("c2", "m3", "m4")...)

	res, err := Reconcile(in)
	require.NoError(t, err)

	require.Len(t, res.Completed, 1)
	assert.Equal(t, "path-p1", res.Completed[0].ID)
	assert.Equal(t, 100, res.Completed[0].Percent)
	assert.Equal(t, ActionOpenPath, res.Completed[0].Action.Kind)
	assert.Empty(t, res.InProgress)

	var pathWrites []StatusWrite
	for _, w := range res.Writes {
		if w.Kind == WritePathEnrollment {
			pathWrites = append(pathWrites, w)
		}
	}
	require.Len(t, pathWrites, 1)
	assert.Equal(t, StatusWrite{Kind: WritePathEnrollment, UserID: "u1", EntityID: "p1", From: models.EnrollmentStatusInProgress, To: models.EnrollmentStatusCompleted}, pathWrites[0])
}

func TestReconcileWriteBackIdempotent(t *testing.T) {
	in := bundleInput()
	in.Progress = append(done("c1", "m1", "m2"), done("c2", "m3", "m4")...)

	first, err := Reconcile(in)
	require.NoError(t, err)
	second, err := Reconcile(in)
	require.NoError(t, err)
	assert.Equal(t, first.Writes, second.Writes)

	apply(&in, first.Writes)
	third, err := Reconcile(in)
	require.NoError(t, err)
	assert.Empty(t, third.Writes)
	assert.Equal(t, first.Completed, third.Completed)
}

func apply(in *Input, writes []StatusWrite) {
	for _, w := range writes {
		switch w.Kind {
		case WritePathEnrollment:
			for i := range in.PathEnrollments {
				if in.PathEnrollments[i].PathID == w.EntityID {
					in.PathEnrollments[i].Status = w.To
				}
			}
		case WriteCourseEnrollment:
			for i := range in.Enrollments {
				if in.Enrollments[i].CourseID == w.EntityID {
					in.Enrollments[i].Status = w.To
				}
			}
		}
	}
}

func TestReconcileSuppressesCoursesOfActiveBundle(t *testing.T) {
	in := bundleInput()
	in.Courses = append(in.Courses, course("c3", "m5"))
	in.Enrollments = append(in.Enrollments, models.Enrollment{UserID: "u1", CourseID: "c3", Status: models.EnrollmentStatusInProgress})

	res, err := Reconcile(in)
	require.NoError(t, err)

	ids := itemIDs(append(res.InProgress, res.Completed...))
	assert.ElementsMatch(t, []string{"path-p1", "course-c3"}, ids)
}

func TestReconcileUnenrolledBundleCourseStandalone(t *testing.T) {
	in := Input{
		UserID:      "u1",
		Courses:     []models.Course{course("c1", "m1", "m2"), course("c2", "m3")},
		Paths:       []models.LearningPath{path("p1", "c1", "c2")},
		Enrollments: []models.Enrollment{{UserID: "u1", CourseID: "c1", Status: models.EnrollmentStatusInProgress}},
		Progress:    done("c1", "m1", "m2"),
	}

	res, err := Reconcile(in)
	require.NoError(t, err)

	assert.Empty(t, res.InProgress)
	require.Len(t, res.Completed, 1)
	assert.Equal(t, "course-c1", res.Completed[0].ID)
	assert.Equal(t, ActionOpenCourse, res.Completed[0].Action.Kind)
	assert.True(t, res.CompletedCourseIDs.Has("c1"))
	require.Len(t, res.Writes, 1)
	assert.Equal(t, WriteCourseEnrollment, res.Writes[0].Kind)
	assert.Equal(t, models.EnrollmentStatusCompleted, res.Writes[0].To)
}

func TestReconcileSkipsEmptyPathsAndUnknownCourses(t *testing.T) {
	in := Input{
		UserID:          "u1",
		Courses:         []models.Course{course("c1", "m1")},
		Paths:           []models.LearningPath{path("empty"), path("ghost", "missing")},
		Enrollments:     []models.Enrollment{{UserID: "u1", CourseID: "unpublished"}},
		PathEnrollments: []models.PathEnrollment{{PathID: "empty"}, {PathID: "ghost"}},
	}

	res, err := Reconcile(in)
	require.NoError(t, err)
	assert.Empty(t, res.InProgress)
	assert.Empty(t, res.Completed)
	assert.Empty(t, res.Writes)
}

func TestReconcilePercentBounds(t *testing.T) {
	in := Input{
		UserID:  "u1",
		Courses: []models.Course{course("c1", "m1", "m2"), course("empty")},
		Enrollments: []models.Enrollment{
			{UserID: "u1", CourseID: "c1", Status: models.EnrollmentStatusInProgress},
			{UserID: "u1", CourseID: "empty", Status: models.EnrollmentStatusInProgress},
		},
		// stale rows for modules no longer in the course
		Progress: append(done("c1", "m1", "gone-1", "gone-2"), done("empty", "gone-3")...),
	}

	res, err := Reconcile(in)
	require.NoError(t, err)
	for _, item := range append(res.InProgress, res.Completed...) {
		assert.GreaterOrEqual(t, item.Percent, 0)
		assert.LessOrEqual(t, item.Percent, 100)
		if item.TotalModules == 0 {
			assert.Equal(t, 0, item.Percent)
		}
	}
	byID := indexItems(res)
	assert.Equal(t, 50, byID["course-c1"].Percent)
	assert.False(t, byID["course-empty"].IsDone)
}

func TestReconcileCompletionMonotonic(t *testing.T) {
	in := Input{
		UserID:      "u1",
		Courses:     []models.Course{course("c1", "m1", "m2", "m3")},
		Enrollments: []models.Enrollment{{UserID: "u1", CourseID: "c1", Status: models.EnrollmentStatusInProgress}},
		Progress: append(done("c1", "m1", "m2"), models.ModuleProgress{
			UserID: "u1", CourseID: "c1", ModuleID: "m3", Status: models.ProgressStatusStarted,
		}),
	}

	res, err := Reconcile(in)
	require.NoError(t, err)
	item := indexItems(res)["course-c1"]
	assert.Equal(t, 2, item.CompletedModules)
	assert.Equal(t, "m3", item.NextModuleID)
}

func TestReconcileExplicitCompletionWins(t *testing.T) {
	in := Input{
		UserID:      "u1",
		Courses:     []models.Course{course("c1", "m1", "m2")},
		Enrollments: []models.Enrollment{{UserID: "u1", CourseID: "c1", Status: models.EnrollmentStatusCompleted}},
		Progress:    done("c1", "m1"),
	}

	res, err := Reconcile(in)
	require.NoError(t, err)
	require.Len(t, res.Completed, 1)
	assert.Equal(t, 50, res.Completed[0].Percent)
	assert.True(t, res.CompletedCourseIDs.Has("c1"))
	assert.Empty(t, res.Writes)
}

func TestReconcileRecencyOrdering(t *testing.T) {
	in := Input{
		UserID:  "u1",
		Courses: []models.Course{course("c1", "m1"), course("c2", "m2"), course("c3", "m3"), course("c4", "m4")},
		Enrollments: []models.Enrollment{
			{UserID: "u1", CourseID: "c4", Status: models.EnrollmentStatusInProgress},
			{UserID: "u1", CourseID: "c3", Status: models.EnrollmentStatusInProgress, LastAccessed: ts(1)},
			{UserID: "u1", CourseID: "c1", Status: models.EnrollmentStatusInProgress, LastAccessed: ts(3)},
			{UserID: "u1", CourseID: "c2", Status: models.EnrollmentStatusInProgress, LastAccessed: ts(2)},
		},
	}

	res, err := Reconcile(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"course-c1", "course-c2", "course-c3", "course-c4"}, itemIDs(res.InProgress))
	for i, item := range res.InProgress {
		assert.Equal(t, i == 0, item.LastActive, item.ID)
	}
}

func TestReconcileHealsUnknownPathStatus(t *testing.T) {
	in := bundleInput()
	in.PathEnrollments[0].Status = ""

	res, err := Reconcile(in)
	require.NoError(t, err)
	require.Len(t, res.Writes, 1)
	assert.Equal(t, models.EnrollmentStatusInProgress, res.Writes[0].To)
}

func TestCourseSetJSON(t *testing.T) {
	set := CourseSet{"b": {}, "a": {}}
	raw, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(raw))

	var decoded CourseSet
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.Has("a"))
	assert.Len(t, decoded, 2)
}

func TestAchievements(t *testing.T) {
	in := bundleInput()
	in.Progress = append(done("c1", "m1", "m2"), done("c2", "m3", "m4")...)
	res, err := Reconcile(in)
	require.NoError(t, err)

	stats := StatsFrom(in.Progress, res)
	assert.Equal(t, Stats{TotalXP: 400, CompletedModules: 4, CompletedCourses: 2, CompletedPaths: 1}, stats)

	unlocked := map[string]bool{}
	for _, a := range Achievements(stats) {
		unlocked[a.Code] = a.Unlocked
	}
	assert.True(t, unlocked["first_module"])
	assert.False(t, unlocked["five_modules"])
	assert.True(t, unlocked["first_course"])
	assert.False(t, unlocked["xp_500"])
	assert.True(t, unlocked["first_path"])
}

func itemIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func indexItems(res *Result) map[string]Item {
	out := map[string]Item{}
	for _, item := range append(append([]Item{}, res.InProgress...), res.Completed...) {
		out[item.ID] = item
	}
	return out
}
