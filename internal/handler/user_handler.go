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

type userService interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.User, error)
	Profile(ctx context.Context, userID string) (*dto.ProfileResponse, error)
}

type tierSetter interface {
	SetUserTier(ctx context.Context, userID string, req models.SetTierRequest) error
}

// UserHandler serves the profile and admin user endpoints.
type UserHandler struct {
	service userService
	tiers   tierSetter
}

// NewUserHandler creates a new handler.
func NewUserHandler(svc userService, tiers tierSetter) *UserHandler {
	return &UserHandler{service: svc, tiers: tiers}
}

// Me godoc
// @Summary Current learner profile
// @Description Account, effective plan, XP and achievements of the caller
// @Tags Users
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /me [get]
func (h *UserHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	profile, err := h.service.Profile(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

// List godoc
// @Summary List users
// @Tags Admin
// @Produce json
// @Param tier query string false "Tier filter"
// @Param search query string false "Email or name search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/users [get]
func (h *UserHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	filter := models.UserFilter{
		Tier:     models.Tier(strings.TrimSpace(c.Query("tier"))),
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     page,
		PageSize: size,
	}
	users, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondWithMeta(c, http.StatusOK, users, pagination)
}

// Get godoc
// @Summary Get a user
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, user)
}

// SetTier godoc
// @Summary Change a user's tier
// @Tags Admin
// @Accept json
// @Param id path string true "User ID"
// @Param payload body models.SetTierRequest true "Tier"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/users/{id}/tier [put]
func (h *UserHandler) SetTier(c *gin.Context) {
	var req models.SetTierRequest
	if !bindJSON(c, &req, "invalid tier payload") {
		return
	}
	if err := h.tiers.SetUserTier(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
