package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sql-academy-api/internal/models"
	appErrors "github.com/noah-isme/sql-academy-api/pkg/errors"
)

type planRepository interface {
	List(ctx context.Context) ([]models.PlanPermission, error)
	FindByTier(ctx context.Context, tier models.Tier) (*models.PlanPermission, error)
	Update(ctx context.Context, plan *models.PlanPermission) error
}

type planUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateTier(ctx context.Context, id string, tier models.Tier) error
}

// PlanService resolves and manages per-tier permissions.
type PlanService struct {
	plans         planRepository
	users         planUserRepository
	cache         *CacheService
	validator     *validator.Validate
	logger        *zap.Logger
	ttl           time.Duration
	webhookSecret []byte
}

// PlanServiceConfig tunes caching and webhook verification.
type PlanServiceConfig struct {
	PermissionsTTL time.Duration
	WebhookSecret  string
}

// NewPlanService constructs a PlanService.
func NewPlanService(plans planRepository, users planUserRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg PlanServiceConfig) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PlanService{
		plans:         plans,
		users:         users,
		cache:         cache,
		validator:     validate,
		logger:        logger,
		ttl:           cfg.PermissionsTTL,
		webhookSecret: []byte(cfg.WebhookSecret),
	}
}

// List returns every tier's permissions.
func (s *PlanService) List(ctx context.Context) ([]models.PlanPermission, error) {
	plans, err := s.plans.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list plans")
	}
	return plans, nil
}

// Get returns one tier's permissions.
func (s *PlanService) Get(ctx context.Context, tier models.Tier) (*models.PlanPermission, error) {
	if !tier.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown tier")
	}
	plan, err := s.plans.FindByTier(ctx, tier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Internal(err, "failed to load plan")
	}
	return plan, nil
}

// PermissionsFor resolves the effective permissions of a user, cached per user.
func (s *PlanService) PermissionsFor(ctx context.Context, userID string) (*models.ResolvedPermissions, error) {
	key := permissionsCacheKey(userID)
	var cached models.ResolvedPermissions
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	plan, err := s.Get(ctx, user.Tier)
	if err != nil {
		return nil, err
	}

	resolved := &models.ResolvedPermissions{UserID: userID, PlanPermission: *plan}
	_ = s.cache.Set(ctx, key, resolved, s.ttl)
	return resolved, nil
}

// Update edits a tier's permissions and drops every cached resolution.
func (s *PlanService) Update(ctx context.Context, tier models.Tier, req models.UpdatePlanRequest) (*models.PlanPermission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid plan payload")
	}
	plan, err := s.Get(ctx, tier)
	if err != nil {
		return nil, err
	}

	if req.CourseLessonLimit != nil {
		plan.CourseLessonLimit = *req.CourseLessonLimit
	}
	if req.AllowAITutor != nil {
		plan.AllowAITutor = *req.AllowAITutor
	}
	if req.AllowLiveInstructor != nil {
		plan.AllowLiveInstructor = *req.AllowLiveInstructor
	}

	if err := s.plans.Update(ctx, plan); err != nil {
		return nil, appErrors.Internal(err, "failed to update plan")
	}
	if err := s.cache.Invalidate(ctx, permissionsKeyPrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate permissions cache", zap.Error(err))
	}
	s.logger.Info("plan updated", zap.String("tier", string(tier)), zap.Int("course_lesson_limit", plan.CourseLessonLimit))
	return plan, nil
}

// SetUserTier changes a user's tier and drops their cached permissions.
func (s *PlanService) SetUserTier(ctx context.Context, userID string, req models.SetTierRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid tier payload")
	}
	if err := s.users.UpdateTier(ctx, userID, req.Tier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to update tier")
	}
	if err := s.cache.Delete(ctx, permissionsCacheKey(userID)); err != nil {
		s.logger.Warn("failed to drop cached permissions", zap.String("user_id", userID), zap.Error(err))
	}
	s.logger.Info("user tier changed", zap.String("user_id", userID), zap.String("tier", string(req.Tier)))
	return nil
}

// HandleBillingWebhook verifies an HMAC-SHA256 signed body and applies the tier change.
func (s *PlanService) HandleBillingWebhook(ctx context.Context, body []byte, signature string) (*models.BillingEvent, error) {
	if len(s.webhookSecret) == 0 {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "billing webhook disabled")
	}
	if !s.validSignature(body, signature) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid webhook signature")
	}

	var event models.BillingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, appErrors.Validation(err, "invalid webhook payload")
	}
	if err := s.validator.Struct(event); err != nil {
		return nil, appErrors.Validation(err, "invalid webhook payload")
	}

	if err := s.SetUserTier(ctx, event.UserID, models.SetTierRequest{Tier: event.Tier}); err != nil {
		return nil, err
	}
	s.logger.Info("billing event applied", zap.String("event_id", event.EventID))
	return &event, nil
}

// SignBillingPayload returns the hex signature expected for body.
func SignBillingPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *PlanService) validSignature(body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.webhookSecret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
