package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sql-academy-api/internal/access"
	"github.com/noah-isme/sql-academy-api/internal/dto"
	"github.com/noah-isme/sql-academy-api/internal/middleware"
	"github.com/noah-isme/sql-academy-api/internal/models"
	"github.com/noah-isme/sql-academy-api/internal/progress"
	"github.com/noah-isme/sql-academy-api/internal/service"
	appErrors "github.com/noah-isme/sql-academy-api/pkg/errors"
	"github.com/noah-isme/sql-academy-api/pkg/storage"
)

type testEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func newContext(method, target string, body string, userID string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	if body != "" {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID})
	}
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

type fakeAuth struct {
	lastRegister models.RegisterRequest
}

func (f *fakeAuth) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	f.lastRegister = req
	return &models.LoginResponse{AccessToken: "tok"}, nil
}

func (f *fakeAuth) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	return nil, appErrors.ErrInvalidCredentials
}

func TestAuthHandler(t *testing.T) {
	svc := &fakeAuth{}
	h := NewAuthHandler(svc)

	c, rec := newContext(http.MethodPost, "/auth/register", `{"email":`, "")
	h.Register(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newContext(http.MethodPost, "/auth/register", `{"email":"a@b.co","password":"longenough","display_name":"A"}`, "")
	h.Register(c)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "a@b.co", svc.lastRegister.Email)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	c, rec = newContext(http.MethodPost, "/auth/login", `{"email":"a@b.co","password":"x"}`, "")
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, rec).Error.Code)
}

type fakeLearning struct {
	deny    bool
	lastReq dto.SubmitAnswerRequest
}

func (f *fakeLearning) EnterCourse(ctx context.Context, userID, courseID string) (*dto.ModuleAccessResponse, error) {
	return &dto.ModuleAccessResponse{CourseID: courseID, Module: dto.ModuleView{ID: "m1"}}, nil
}

func (f *fakeLearning) StartModule(ctx context.Context, userID, courseID, moduleID string) (*dto.ModuleAccessResponse, error) {
	if f.deny {
		return nil, appErrors.WithDetails(appErrors.ErrUpgradeRequired, map[string]interface{}{"limit": 3})
	}
	return &dto.ModuleAccessResponse{CourseID: courseID, Module: dto.ModuleView{ID: moduleID}, Decision: access.Decision{Allowed: true}}, nil
}

func (f *fakeLearning) NextModule(ctx context.Context, userID, courseID, currentModuleID string) (*dto.ModuleAccessResponse, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no module after the last one")
}

func (f *fakeLearning) Submit(ctx context.Context, userID, courseID, moduleID string, req dto.SubmitAnswerRequest) (*dto.SubmitAnswerResponse, error) {
	f.lastReq = req
	return &dto.SubmitAnswerResponse{Completed: true, XPAwarded: 50}, nil
}

func (f *fakeLearning) EnrollPath(ctx context.Context, userID, pathID string) (*models.PathEnrollment, error) {
	return &models.PathEnrollment{PathID: pathID, UserID: userID, Status: models.EnrollmentStatusInProgress}, nil
}

type fakeProgressSrv struct {
	hit bool
}

func (f *fakeProgressSrv) Cached(ctx context.Context, userID string) (*service.ProgressSnapshot, bool, error) {
	return &service.ProgressSnapshot{Progress: &progress.Result{CompletedCourseIDs: progress.CourseSet{}}}, f.hit, nil
}

func TestLearningHandlerRequiresUser(t *testing.T) {
	h := NewLearningHandler(&fakeLearning{}, &fakeProgressSrv{})
	c, rec := newContext(http.MethodPost, "/courses/c1/enter", "", "")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.EnterCourse(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLearningHandlerGateDenial(t *testing.T) {
	h := NewLearningHandler(&fakeLearning{deny: true}, &fakeProgressSrv{})
	c, rec := newContext(http.MethodPost, "/courses/c1/modules/m4/start", "", "u1")
	c.Params = gin.Params{{Key: "id", Value: "c1"}, {Key: "moduleId", Value: "m4"}}
	h.StartModule(c)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "UPGRADE_REQUIRED", env.Error.Code)
	assert.Equal(t, float64(3), env.Error.Details["limit"])
}

func TestLearningHandlerNextAtEnd(t *testing.T) {
	h := NewLearningHandler(&fakeLearning{}, &fakeProgressSrv{})
	c, rec := newContext(http.MethodPost, "/courses/c1/modules/m3/next", "", "u1")
	c.Params = gin.Params{{Key: "id", Value: "c1"}, {Key: "moduleId", Value: "m3"}}
	h.NextModule(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLearningHandlerSubmit(t *testing.T) {
	svc := &fakeLearning{}
	h := NewLearningHandler(svc, &fakeProgressSrv{})
	c, rec := newContext(http.MethodPost, "/courses/c1/modules/m1/submit", `{"choice":2}`, "u1")
	c.Params = gin.Params{{Key: "id", Value: "c1"}, {Key: "moduleId", Value: "m1"}}
	h.Submit(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastReq.Choice)
	assert.Equal(t, 2, *svc.lastReq.Choice)
	var data dto.SubmitAnswerResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.Equal(t, 50, data.XPAwarded)
}

func TestProgressHandlerReportsCacheHit(t *testing.T) {
	h := NewLearningHandler(&fakeLearning{}, &fakeProgressSrv{hit: true})
	c, rec := newContext(http.MethodGet, "/me/progress", "", "u1")
	middleware.WithResponseMeta()(c)
	h.Progress(c)

	require.Equal(t, http.StatusOK, rec.Code)
	meta := decode(t, rec).Meta
	assert.Equal(t, true, meta[middleware.MetaCacheHit])
	assert.Contains(t, meta, middleware.MetaProcessingTime)
}

type fakePlans struct {
	signature string
	body      []byte
}

func (f *fakePlans) List(ctx context.Context) ([]models.PlanPermission, error) {
	return []models.PlanPermission{{Tier: models.TierFree, CourseLessonLimit: 3}}, nil
}

func (f *fakePlans) Get(ctx context.Context, tier models.Tier) (*models.PlanPermission, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
}

func (f *fakePlans) PermissionsFor(ctx context.Context, userID string) (*models.ResolvedPermissions, error) {
	return &models.ResolvedPermissions{UserID: userID}, nil
}

func (f *fakePlans) Update(ctx context.Context, tier models.Tier, req models.UpdatePlanRequest) (*models.PlanPermission, error) {
	return &models.PlanPermission{Tier: tier, CourseLessonLimit: *req.CourseLessonLimit}, nil
}

func (f *fakePlans) HandleBillingWebhook(ctx context.Context, body []byte, signature string) (*models.BillingEvent, error) {
	f.body, f.signature = body, signature
	return &models.BillingEvent{EventID: "evt-1"}, nil
}

func TestPlanHandlerWebhookPassesSignature(t *testing.T) {
	svc := &fakePlans{}
	h := NewPlanHandler(svc)
	c, rec := newContext(http.MethodPost, "/billing/webhook", `{"event_id":"evt-1"}`, "")
	c.Request.Header.Set(SignatureHeader, "sha256=abc")
	h.BillingWebhook(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sha256=abc", svc.signature)
	assert.JSONEq(t, `{"event_id":"evt-1"}`, string(svc.body))
}

func TestPlanHandlerWebhookRejectsOversizedBody(t *testing.T) {
	h := NewPlanHandler(&fakePlans{})
	c, rec := newContext(http.MethodPost, "/billing/webhook", "", "")
	c.Request = httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(make([]byte, maxWebhookBody+10)))
	h.BillingWebhook(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlanHandlerUpdate(t *testing.T) {
	h := NewPlanHandler(&fakePlans{})
	c, rec := newContext(http.MethodPatch, "/admin/plans/free", `{"course_lesson_limit":5}`, "admin")
	c.Params = gin.Params{{Key: "tier", Value: "free"}}
	h.Update(c)
	require.Equal(t, http.StatusOK, rec.Code)

	var plan models.PlanPermission
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &plan))
	assert.Equal(t, 5, plan.CourseLessonLimit)
}

type fakeCertificates struct {
	asset string
}

func (f *fakeCertificates) Issue(ctx context.Context, userID, courseID string) (*dto.CertificateResponse, error) {
	return &dto.CertificateResponse{Certificate: models.Certificate{ID: "cert-1", CourseID: courseID, Status: models.CertificateStatusPending}}, nil
}

func (f *fakeCertificates) List(ctx context.Context, userID string) ([]dto.CertificateResponse, error) {
	return nil, nil
}

func (f *fakeCertificates) Get(ctx context.Context, userID, id string) (*dto.CertificateResponse, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
}

func (f *fakeCertificates) PDF(ctx context.Context, userID, id string) ([]byte, string, error) {
	return []byte("%PDF-1.3"), "certificate-" + id + ".pdf", nil
}

func (f *fakeCertificates) OpenAsset(ctx context.Context, key string) (io.ReadCloser, error) {
	f.asset = key
	return io.NopCloser(strings.NewReader("png")), nil
}

func TestCertificateHandlerIssueAccepted(t *testing.T) {
	h := NewCertificateHandler(&fakeCertificates{}, nil)
	c, rec := newContext(http.MethodPost, "/courses/c1/certificate", "", "u1")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.Issue(c)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCertificateHandlerPDF(t *testing.T) {
	h := NewCertificateHandler(&fakeCertificates{}, nil)
	c, rec := newContext(http.MethodGet, "/certificates/cert-1/pdf", "", "u1")
	c.Params = gin.Params{{Key: "id", Value: "cert-1"}}
	h.PDF(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "certificate-cert-1.pdf")
}

func TestCertificateHandlerAssetToken(t *testing.T) {
	signer := storage.NewSignedURLSigner("secret", 0)
	svc := &fakeCertificates{}
	h := NewCertificateHandler(svc, signer)

	c, rec := newContext(http.MethodGet, "/assets?token=garbage", "", "")
	h.Asset(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := signer.Generate("certificates/u1/cert-1.png")
	require.NoError(t, err)
	c, rec = newContext(http.MethodGet, "/assets?token="+token, "", "")
	h.Asset(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())
	assert.Equal(t, "certificates/u1/cert-1.png", svc.asset)
}

func TestCertificateHandlerAssetDisabledWithoutSigner(t *testing.T) {
	h := NewCertificateHandler(&fakeCertificates{}, nil)
	c, rec := newContext(http.MethodGet, "/assets?token=x", "", "")
	h.Asset(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeCatalog struct {
	catalogService
}

func (f fakeCatalog) GetPublishedCourse(ctx context.Context, id string) (*models.Course, []dto.ModuleView, error) {
	if id != "c1" {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return &models.Course{ID: "c1"}, []dto.ModuleView{{ID: "m1"}}, nil
}

func (f fakeCatalog) SetChallenge(ctx context.Context, moduleID string, req dto.ChallengeRequest) (*models.Module, error) {
	if _, err := models.ParseChallenge(req.Challenge); err != nil {
		return nil, appErrors.Validation(err, err.Error())
	}
	return &models.Module{ID: moduleID}, nil
}

func TestCatalogHandlerGetCourse(t *testing.T) {
	h := NewCatalogHandler(fakeCatalog{})

	c, rec := newContext(http.MethodGet, "/courses/zz", "", "")
	c.Params = gin.Params{{Key: "id", Value: "zz"}}
	h.GetCourse(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = newContext(http.MethodGet, "/courses/c1", "", "")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	h.GetCourse(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), `"modules"`)
}

func TestCatalogHandlerSetChallengeInvalid(t *testing.T) {
	h := NewCatalogHandler(fakeCatalog{})
	c, rec := newContext(http.MethodPut, "/admin/modules/m1/challenge", `{"challenge":{"type":"mcq","title":"t","task":"x","options":["a","b"],"correct_answer":9}}`, "admin")
	c.Params = gin.Params{{Key: "moduleId", Value: "m1"}}
	h.SetChallenge(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, errors.Is(decode(t, rec).Error, appErrors.ErrValidation))
}

type fakeUsers struct{}

func (fakeUsers) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	return []models.User{{ID: "u1"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (fakeUsers) Get(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (fakeUsers) Profile(ctx context.Context, userID string) (*dto.ProfileResponse, error) {
	return &dto.ProfileResponse{User: models.UserInfo{ID: userID}, TotalXP: 70}, nil
}

func TestUserHandlerMe(t *testing.T) {
	h := NewUserHandler(fakeUsers{}, nil)

	c, rec := newContext(http.MethodGet, "/me", "", "")
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newContext(http.MethodGet, "/me", "", "u1")
	h.Me(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile dto.ProfileResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &profile))
	assert.Equal(t, 70, profile.TotalXP)
}

func TestUserHandlerListPagination(t *testing.T) {
	h := NewUserHandler(fakeUsers{}, nil)
	c, rec := newContext(http.MethodGet, "/admin/users?page=2&page_size=5", "", "admin")
	h.List(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"page":2`)
}
