package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sql-academy-api/internal/ai"
	"github.com/noah-isme/sql-academy-api/internal/dto"
	"github.com/noah-isme/sql-academy-api/internal/models"
	appErrors "github.com/noah-isme/sql-academy-api/pkg/errors"
	"github.com/noah-isme/sql-academy-api/pkg/retry"
)

type stubGenerator struct {
	challenge *models.Challenge
	err       error
}

func (s *stubGenerator) GenerateChallenge(ctx context.Context, req ai.GenerateRequest) (*models.Challenge, error) {
	return s.challenge, s.err
}

func newCatalogFixture() (*CatalogService, *fakeCourses, *fakePaths, *stubGenerator) {
	draft := publishedCourse("c1", "m1", "m2")
	draft.Status = models.CourseStatusDraft
	draft.Modules[0].Challenge = mcqChallenge()
	live := publishedCourse("c2", "m3")
	live.Modules[0].Challenge = mcqChallenge()

	courses := &fakeCourses{courses: map[string]*models.Course{"c1": draft, "c2": live}}
	paths := &fakePaths{paths: map[string]*models.LearningPath{"p1": {ID: "p1", Title: "Analyst"}}}
	gen := &stubGenerator{}
	svc := NewCatalogService(courses, &fakeModules{courses: courses}, paths, gen, NewMetricsService(), nil, nil)
	return svc, courses, paths, gen
}

func TestPublishCourseRequiresChallenges(t *testing.T) {
	svc, courses, _, _ := newCatalogFixture()
	ctx := context.Background()

	_, err := svc.SetCourseStatus(ctx, "c1", dto.CourseStatusRequest{Status: models.CourseStatusPublished})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Equal(t, []string{"m2"}, appErr.Details["modules"])

	raw, _ := json.Marshal(sqlChallenge())
	_, err = svc.SetChallenge(ctx, "m2", dto.ChallengeRequest{Challenge: raw})
	require.NoError(t, err)

	course, err := svc.SetCourseStatus(ctx, "c1", dto.CourseStatusRequest{Status: models.CourseStatusPublished})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusPublished, course.Status)
	assert.Equal(t, models.CourseStatusPublished, courses.courses["c1"].Status)
}

func TestSetChallengeRejectsInvalidDocument(t *testing.T) {
	svc, courses, _, _ := newCatalogFixture()
	ctx := context.Background()

	cases := []string{
		`{"type":"mcq","title":"x","task":"y","options":["a"],"correct_answer":4}`,
		`{"type":"essay","title":"x","task":"y"}`,
		`not json`,
	}
	for _, raw := range cases {
		_, err := svc.SetChallenge(ctx, "m2", dto.ChallengeRequest{Challenge: json.RawMessage(raw)})
		assert.True(t, errors.Is(err, appErrors.ErrValidation), raw)
	}
	assert.Nil(t, courses.courses["c1"].Modules[1].Challenge)
}

func TestGenerateChallengeAttachesOrReportsUnavailable(t *testing.T) {
	svc, courses, _, gen := newCatalogFixture()
	ctx := context.Background()
	req := dto.GenerateChallengeRequest{GenerateRequest: ai.GenerateRequest{Topic: "joins", ContentType: models.ContentTypeSQL}}

	gen.err = retry.ErrExhausted
	_, err := svc.GenerateChallenge(ctx, "m2", req)
	assert.True(t, errors.Is(err, appErrors.ErrAIUnavailable))
	assert.Nil(t, courses.courses["c1"].Modules[1].Challenge)

	gen.err = nil
	gen.challenge = sqlChallenge()
	module, err := svc.GenerateChallenge(ctx, "m2", req)
	require.NoError(t, err)
	assert.Equal(t, models.ContentTypeSQL, module.ContentType)
	assert.NotNil(t, module.Challenge)
}

func TestModuleAuthoringKeepsPositionsDense(t *testing.T) {
	svc, courses, _, _ := newCatalogFixture()
	ctx := context.Background()

	added, err := svc.AddModule(ctx, "c1", dto.ModuleRequest{Title: "Grouping", ContentType: models.ContentTypeSQL})
	require.NoError(t, err)
	assert.Equal(t, 3, added.Position)

	require.NoError(t, svc.MoveModule(ctx, added.ID, dto.MoveModuleRequest{Position: 1}))
	require.NoError(t, svc.DeleteModule(ctx, "m1"))

	mods := courses.courses["c1"].Modules
	require.Len(t, mods, 2)
	assert.Equal(t, added.ID, mods[0].ID)
	assert.Equal(t, 1, mods[0].Position)
	assert.Equal(t, 2, mods[1].Position)

	assert.True(t, errors.Is(svc.DeleteModule(ctx, "missing"), appErrors.ErrNotFound))
}

func TestUpdateModuleRejectsTypeMismatch(t *testing.T) {
	svc, _, _, _ := newCatalogFixture()
	_, err := svc.UpdateModule(context.Background(), "m1", dto.ModuleRequest{Title: "Joins", ContentType: models.ContentTypeSQL})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestPublishedCatalogHidesDrafts(t *testing.T) {
	svc, _, _, _ := newCatalogFixture()
	ctx := context.Background()

	list, err := svc.ListPublishedCourses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Modules[0].Challenge)

	_, _, err = svc.GetPublishedCourse(ctx, "c1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	course, views, err := svc.GetPublishedCourse(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, "c2", course.ID)
	require.Len(t, views, 1)
	assert.NotContains(t, string(views[0].Challenge), "correct_answer")
}

func TestPathAuthoring(t *testing.T) {
	svc, _, _, _ := newCatalogFixture()
	ctx := context.Background()
	yes := true

	_, err := svc.PublishPath(ctx, "p1", dto.PublishRequest{Published: &yes})
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = svc.SetPathCourses(ctx, "p1", dto.PathCoursesRequest{CourseIDs: []string{"c2", "nope"}})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.SetPathCourses(ctx, "p1", dto.PathCoursesRequest{CourseIDs: []string{"c2", "c2"}})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	path, err := svc.SetPathCourses(ctx, "p1", dto.PathCoursesRequest{CourseIDs: []string{"c2", "c1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c1"}, path.CourseIDs())

	path, err = svc.PublishPath(ctx, "p1", dto.PublishRequest{Published: &yes})
	require.NoError(t, err)
	assert.True(t, path.IsPublished)

	_, err = svc.GetPath(ctx, "p1", true)
	require.NoError(t, err)
}
