package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sql-academy-api/internal/dto"
	"github.com/noah-isme/sql-academy-api/internal/models"
	"github.com/noah-isme/sql-academy-api/pkg/response"
)

type catalogService interface {
	ListPublishedCourses(ctx context.Context) ([]models.Course, error)
	GetPublishedCourse(ctx context.Context, id string) (*models.Course, []dto.ModuleView, error)
	ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error)
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	CreateCourse(ctx context.Context, req dto.CourseRequest) (*models.Course, error)
	UpdateCourse(ctx context.Context, id string, req dto.CourseRequest) (*models.Course, error)
	SetCourseStatus(ctx context.Context, id string, req dto.CourseStatusRequest) (*models.Course, error)
	AddModule(ctx context.Context, courseID string, req dto.ModuleRequest) (*models.Module, error)
	UpdateModule(ctx context.Context, id string, req dto.ModuleRequest) (*models.Module, error)
	MoveModule(ctx context.Context, id string, req dto.MoveModuleRequest) error
	DeleteModule(ctx context.Context, id string) error
	SetChallenge(ctx context.Context, moduleID string, req dto.ChallengeRequest) (*models.Module, error)
	GenerateChallenge(ctx context.Context, moduleID string, req dto.GenerateChallengeRequest) (*models.Module, error)
	ListPaths(ctx context.Context, publishedOnly bool) ([]models.LearningPath, error)
	GetPath(ctx context.Context, id string, publishedOnly bool) (*models.LearningPath, error)
	CreatePath(ctx context.Context, req dto.PathRequest) (*models.LearningPath, error)
	UpdatePath(ctx context.Context, id string, req dto.PathRequest) (*models.LearningPath, error)
	SetPathCourses(ctx context.Context, id string, req dto.PathCoursesRequest) (*models.LearningPath, error)
	PublishPath(ctx context.Context, id string, req dto.PublishRequest) (*models.LearningPath, error)
}

// CatalogHandler serves courses, modules and learning paths.
type CatalogHandler struct {
	service catalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(svc catalogService) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

// ListCourses godoc
// @Summary Published course catalog
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	courses, err := h.service.ListPublishedCourses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, courses)
}

// GetCourse godoc
// @Summary Published course with modules
// @Tags Catalog
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CatalogHandler) GetCourse(c *gin.Context) {
	course, modules, err := h.service.GetPublishedCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"course": course, "modules": modules})
}

// ListPaths godoc
// @Summary Published learning paths
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /paths [get]
func (h *CatalogHandler) ListPaths(c *gin.Context) {
	paths, err := h.service.ListPaths(c.Request.Context(), true)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, paths)
}

// GetPath godoc
// @Summary Published learning path
// @Tags Catalog
// @Produce json
// @Param id path string true "Path ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /paths/{id} [get]
func (h *CatalogHandler) GetPath(c *gin.Context) {
	path, err := h.service.GetPath(c.Request.Context(), c.Param("id"), true)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, path)
}

// AdminListCourses godoc
// @Summary All courses
// @Tags Admin
// @Produce json
// @Param status query string false "Status"
// @Param industry query string false "Industry"
// @Param search query string false "Title search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/courses [get]
func (h *CatalogHandler) AdminListCourses(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	filter := models.CourseFilter{
		Status:   models.CourseStatus(strings.TrimSpace(c.Query("status"))),
		Industry: strings.TrimSpace(c.Query("industry")),
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     page,
		PageSize: size,
	}
	courses, pagination, err := h.service.ListCourses(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondWithMeta(c, http.StatusOK, courses, pagination)
}

// AdminGetCourse godoc
// @Summary Course with full module content
// @Tags Admin
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /admin/courses/{id} [get]
func (h *CatalogHandler) AdminGetCourse(c *gin.Context) {
	course, err := h.service.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// CreateCourse godoc
// @Summary Create a draft course
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.CourseRequest true "Course"
// @Success 201 {object} response.Envelope
// @Router /admin/courses [post]
func (h *CatalogHandler) CreateCourse(c *gin.Context) {
	var req dto.CourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.CreateCourse(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// UpdateCourse godoc
// @Summary Update course details
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.CourseRequest true "Course"
// @Success 200 {object} response.Envelope
// @Router /admin/courses/{id} [put]
func (h *CatalogHandler) UpdateCourse(c *gin.Context) {
	var req dto.CourseRequest
	if !bindJSON(c, &req, "invalid course payload") {
		return
	}
	course, err := h.service.UpdateCourse(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// SetCourseStatus godoc
// @Summary Move a course through its lifecycle
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.CourseStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /admin/courses/{id}/status [put]
func (h *CatalogHandler) SetCourseStatus(c *gin.Context) {
	var req dto.CourseStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	course, err := h.service.SetCourseStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// AddModule godoc
// @Summary Append a module
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.ModuleRequest true "Module"
// @Success 201 {object} response.Envelope
// @Router /admin/courses/{id}/modules [post]
func (h *CatalogHandler) AddModule(c *gin.Context) {
	var req dto.ModuleRequest
	if !bindJSON(c, &req, "invalid module payload") {
		return
	}
	module, err := h.service.AddModule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, module)
}

// UpdateModule godoc
// @Summary Update a module
// @Tags Admin
// @Accept json
// @Produce json
// @Param moduleId path string true "Module ID"
// @Param payload body dto.ModuleRequest true "Module"
// @Success 200 {object} response.Envelope
// @Router /admin/modules/{moduleId} [put]
func (h *CatalogHandler) UpdateModule(c *gin.Context) {
	var req dto.ModuleRequest
	if !bindJSON(c, &req, "invalid module payload") {
		return
	}
	module, err := h.service.UpdateModule(c.Request.Context(), c.Param("moduleId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, module)
}

// MoveModule godoc
// @Summary Reposition a module
// @Tags Admin
// @Accept json
// @Param moduleId path string true "Module ID"
// @Param payload body dto.MoveModuleRequest true "Position"
// @Success 204
// @Router /admin/modules/{moduleId}/position [put]
func (h *CatalogHandler) MoveModule(c *gin.Context) {
	var req dto.MoveModuleRequest
	if !bindJSON(c, &req, "invalid position payload") {
		return
	}
	if err := h.service.MoveModule(c.Request.Context(), c.Param("moduleId"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteModule godoc
// @Summary Delete a module
// @Tags Admin
// @Param moduleId path string true "Module ID"
// @Success 204
// @Router /admin/modules/{moduleId} [delete]
func (h *CatalogHandler) DeleteModule(c *gin.Context) {
	if err := h.service.DeleteModule(c.Request.Context(), c.Param("moduleId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetChallenge godoc
// @Summary Attach a challenge document
// @Tags Admin
// @Accept json
// @Produce json
// @Param moduleId path string true "Module ID"
// @Param payload body dto.ChallengeRequest true "Challenge"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/modules/{moduleId}/challenge [put]
func (h *CatalogHandler) SetChallenge(c *gin.Context) {
	var req dto.ChallengeRequest
	if !bindJSON(c, &req, "invalid challenge payload") {
		return
	}
	module, err := h.service.SetChallenge(c.Request.Context(), c.Param("moduleId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, module)
}

// GenerateChallenge godoc
// @Summary Generate and attach a challenge
// @Tags Admin
// @Accept json
// @Produce json
// @Param moduleId path string true "Module ID"
// @Param payload body dto.GenerateChallengeRequest true "Generation request"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /admin/modules/{moduleId}/challenge/generate [post]
func (h *CatalogHandler) GenerateChallenge(c *gin.Context) {
	var req dto.GenerateChallengeRequest
	if !bindJSON(c, &req, "invalid generation payload") {
		return
	}
	module, err := h.service.GenerateChallenge(c.Request.Context(), c.Param("moduleId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, module)
}

// AdminListPaths godoc
// @Summary All learning paths
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/paths [get]
func (h *CatalogHandler) AdminListPaths(c *gin.Context) {
	paths, err := h.service.ListPaths(c.Request.Context(), false)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, paths)
}

// CreatePath godoc
// @Summary Create a learning path
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.PathRequest true "Path"
// @Success 201 {object} response.Envelope
// @Router /admin/paths [post]
func (h *CatalogHandler) CreatePath(c *gin.Context) {
	var req dto.PathRequest
	if !bindJSON(c, &req, "invalid learning path payload") {
		return
	}
	path, err := h.service.CreatePath(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, path)
}

// UpdatePath godoc
// @Summary Update a learning path
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Path ID"
// @Param payload body dto.PathRequest true "Path"
// @Success 200 {object} response.Envelope
// @Router /admin/paths/{id} [put]
func (h *CatalogHandler) UpdatePath(c *gin.Context) {
	var req dto.PathRequest
	if !bindJSON(c, &req, "invalid learning path payload") {
		return
	}
	path, err := h.service.UpdatePath(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, path)
}

// SetPathCourses godoc
// @Summary Replace a path's ordered courses
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Path ID"
// @Param payload body dto.PathCoursesRequest true "Course ids in order"
// @Success 200 {object} response.Envelope
// @Router /admin/paths/{id}/courses [put]
func (h *CatalogHandler) SetPathCourses(c *gin.Context) {
	var req dto.PathCoursesRequest
	if !bindJSON(c, &req, "invalid course list") {
		return
	}
	path, err := h.service.SetPathCourses(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, path)
}

// PublishPath godoc
// @Summary Publish or unpublish a path
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Path ID"
// @Param payload body dto.PublishRequest true "Published flag"
// @Success 200 {object} response.Envelope
// @Router /admin/paths/{id}/publish [put]
func (h *CatalogHandler) PublishPath(c *gin.Context) {
	var req dto.PublishRequest
	if !bindJSON(c, &req, "invalid publish payload") {
		return
	}
	path, err := h.service.PublishPath(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, path)
}
