package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sql-academy-api/internal/models"
)

const planColumns = `tier, course_lesson_limit, allow_ai_tutor, allow_live_instructor, updated_at`

// PlanRepository reads and updates per-tier permissions.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository creates a PlanRepository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// List returns every tier's permissions.
func (r *PlanRepository) List(ctx context.Context) ([]models.PlanPermission, error) {
	query := `SELECT ` + planColumns + ` FROM plan_permissions ORDER BY CASE tier WHEN 'free' THEN 1 WHEN 'basic' THEN 2 WHEN 'pro' THEN 3 ELSE 4 END`
	var plans []models.PlanPermission
	if err := r.db.SelectContext(ctx, &plans, query); err != nil {
		return nil, fmt.Errorf("list plan permissions: %w", err)
	}
	return plans, nil
}

// FindByTier returns the permissions of one tier.
func (r *PlanRepository) FindByTier(ctx context.Context, tier models.Tier) (*models.PlanPermission, error) {
	query := `SELECT ` + planColumns + ` FROM plan_permissions WHERE tier = $1`
	var plan models.PlanPermission
	if err := r.db.GetContext(ctx, &plan, query, tier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find plan permission: %w", err)
	}
	return &plan, nil
}

// Update writes a tier's permissions.
func (r *PlanRepository) Update(ctx context.Context, plan *models.PlanPermission) error {
	plan.UpdatedAt = time.Now().UTC()
	const query = `UPDATE plan_permissions SET course_lesson_limit = :course_lesson_limit, allow_ai_tutor = :allow_ai_tutor, allow_live_instructor = :allow_live_instructor, updated_at = :updated_at WHERE tier = :tier`
	res, err := r.db.NamedExecContext(ctx, query, plan)
	if err != nil {
		return fmt.Errorf("update plan permission: %w", err)
	}
	return requireAffected(res)
}
