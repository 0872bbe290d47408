package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sql-academy-api/internal/dto"
	"github.com/noah-isme/sql-academy-api/internal/middleware"
	"github.com/noah-isme/sql-academy-api/internal/models"
	"github.com/noah-isme/sql-academy-api/internal/service"
	"github.com/noah-isme/sql-academy-api/pkg/response"
)

type learningService interface {
	EnterCourse(ctx context.Context, userID, courseID string) (*dto.ModuleAccessResponse, error)
	StartModule(ctx context.Context, userID, courseID, moduleID string) (*dto.ModuleAccessResponse, error)
	NextModule(ctx context.Context, userID, courseID, currentModuleID string) (*dto.ModuleAccessResponse, error)
	Submit(ctx context.Context, userID, courseID, moduleID string, req dto.SubmitAnswerRequest) (*dto.SubmitAnswerResponse, error)
	EnrollPath(ctx context.Context, userID, pathID string) (*models.PathEnrollment, error)
}

type progressService interface {
	Cached(ctx context.Context, userID string) (*service.ProgressSnapshot, bool, error)
}

// LearningHandler serves module navigation, submissions and the progress dashboard.
type LearningHandler struct {
	learning learningService
	progress progressService
}

// NewLearningHandler constructs the handler.
func NewLearningHandler(learning learningService, progress progressService) *LearningHandler {
	return &LearningHandler{learning: learning, progress: progress}
}

// Progress godoc
// @Summary Reconciled learning progress
// @Description In-progress and completed paths and courses, with stats and achievements
// @Tags Learning
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/progress [get]
func (h *LearningHandler) Progress(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	snapshot, hit, err := h.progress.Cached(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respondWithMeta(c, http.StatusOK, snapshot, nil)
}

// EnterCourse godoc
// @Summary Open a course at its resume module
// @Tags Learning
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Router /courses/{id}/enter [post]
func (h *LearningHandler) EnterCourse(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	res, err := h.learning.EnterCourse(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// StartModule godoc
// @Summary Jump to a module
// @Tags Learning
// @Produce json
// @Param id path string true "Course ID"
// @Param moduleId path string true "Module ID"
// @Success 200 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Router /courses/{id}/modules/{moduleId}/start [post]
func (h *LearningHandler) StartModule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	res, err := h.learning.StartModule(c.Request.Context(), userID, c.Param("id"), c.Param("moduleId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// NextModule godoc
// @Summary Advance to the following module
// @Tags Learning
// @Produce json
// @Param id path string true "Course ID"
// @Param moduleId path string true "Current module ID"
// @Success 200 {object} response.Envelope
// @Failure 402 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/modules/{moduleId}/next [post]
func (h *LearningHandler) NextModule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	res, err := h.learning.NextModule(c.Request.Context(), userID, c.Param("id"), c.Param("moduleId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Submit godoc
// @Summary Submit an answer
// @Tags Learning
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param moduleId path string true "Module ID"
// @Param payload body dto.SubmitAnswerRequest true "Answer"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /courses/{id}/modules/{moduleId}/submit [post]
func (h *LearningHandler) Submit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req dto.SubmitAnswerRequest
	if !bindJSON(c, &req, "invalid submission payload") {
		return
	}
	res, err := h.learning.Submit(c.Request.Context(), userID, c.Param("id"), c.Param("moduleId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// EnrollPath godoc
// @Summary Enroll in a learning path
// @Tags Learning
// @Produce json
// @Param id path string true "Path ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /paths/{id}/enroll [post]
func (h *LearningHandler) EnrollPath(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	enrollment, err := h.learning.EnrollPath(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}
