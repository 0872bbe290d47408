package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sql-academy-api/internal/models"
	appErrors "github.com/noah-isme/sql-academy-api/pkg/errors"
	"github.com/noah-isme/sql-academy-api/pkg/response"
)

// SignatureHeader carries the hex HMAC-SHA256 of a billing webhook body.
const SignatureHeader = "X-Billing-Signature"

// maxWebhookBody bounds webhook payloads.
const maxWebhookBody = 64 << 10

type planService interface {
	List(ctx context.Context) ([]models.PlanPermission, error)
	Get(ctx context.Context, tier models.Tier) (*models.PlanPermission, error)
	PermissionsFor(ctx context.Context, userID string) (*models.ResolvedPermissions, error)
	Update(ctx context.Context, tier models.Tier, req models.UpdatePlanRequest) (*models.PlanPermission, error)
	HandleBillingWebhook(ctx context.Context, body []byte, signature string) (*models.BillingEvent, error)
}

// PlanHandler exposes tier permissions and the billing webhook.
type PlanHandler struct {
	service planService
}

// NewPlanHandler creates a new handler.
func NewPlanHandler(svc planService) *PlanHandler {
	return &PlanHandler{service: svc}
}

// List godoc
// @Summary List plans
// @Tags Plans
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /plans [get]
func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, plans)
}

// Get godoc
// @Summary Get one plan
// @Tags Plans
// @Produce json
// @Param tier path string true "Tier"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /plans/{tier} [get]
func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.service.Get(c.Request.Context(), models.Tier(c.Param("tier")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, plan)
}

// Mine godoc
// @Summary Effective permissions of the caller
// @Tags Plans
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/permissions [get]
func (h *PlanHandler) Mine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	perms, err := h.service.PermissionsFor(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, perms)
}

// Update godoc
// @Summary Update a plan's permissions
// @Tags Admin
// @Accept json
// @Produce json
// @Param tier path string true "Tier"
// @Param payload body models.UpdatePlanRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/plans/{tier} [patch]
func (h *PlanHandler) Update(c *gin.Context) {
	var req models.UpdatePlanRequest
	if !bindJSON(c, &req, "invalid plan payload") {
		return
	}
	plan, err := h.service.Update(c.Request.Context(), models.Tier(c.Param("tier")), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, plan)
}

// BillingWebhook godoc
// @Summary Billing tier change notification
// @Description Body must be signed with HMAC-SHA256 using the shared billing secret
// @Tags Billing
// @Accept json
// @Produce json
// @Param X-Billing-Signature header string true "hex HMAC-SHA256 of the body"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /billing/webhook [post]
func (h *PlanHandler) BillingWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable body"))
		return
	}
	if len(body) > maxWebhookBody {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payload too large"))
		return
	}
	event, err := h.service.HandleBillingWebhook(c.Request.Context(), body, c.GetHeader(SignatureHeader))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, event)
}
