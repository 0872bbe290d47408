package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sql-academy-api/internal/models"
)

const progressColumns = `id, user_id, course_id, module_id, status, xp_earned, created_at, updated_at`

// ProgressRepository stores per-module progress rows.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository creates a ProgressRepository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// ListByUser returns every progress row of a user across all courses.
func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]models.ModuleProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM module_progress WHERE user_id = $1`
	var rows []models.ModuleProgress
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list module progress: %w", err)
	}
	return rows, nil
}

// Find returns the progress row of a user on a module.
func (r *ProgressRepository) Find(ctx context.Context, userID, moduleID string) (*models.ModuleProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM module_progress WHERE user_id = $1 AND module_id = $2`
	var row models.ModuleProgress
	if err := r.db.GetContext(ctx, &row, query, userID, moduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find module progress: %w", err)
	}
	return &row, nil
}

// MarkStarted records a start. It reports whether a new row was created.
func (r *ProgressRepository) MarkStarted(ctx context.Context, userID, courseID, moduleID string) (bool, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO module_progress (id, user_id, course_id, module_id, status, xp_earned, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
ON CONFLICT (user_id, module_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, uuid.NewString(), userID, courseID, moduleID, models.ProgressStatusStarted, now)
	if err != nil {
		return false, fmt.Errorf("mark module started: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// MarkCompleted upgrades a row to completed with xp. A completed row is never
// rewritten, so the result reports whether xp was actually awarded.
func (r *ProgressRepository) MarkCompleted(ctx context.Context, userID, courseID, moduleID string, xp int) (bool, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO module_progress (id, user_id, course_id, module_id, status, xp_earned, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (user_id, module_id) DO UPDATE SET status = EXCLUDED.status, xp_earned = EXCLUDED.xp_earned, updated_at = EXCLUDED.updated_at
WHERE module_progress.status <> EXCLUDED.status`
	res, err := r.db.ExecContext(ctx, query, uuid.NewString(), userID, courseID, moduleID, models.ProgressStatusCompleted, xp, now)
	if err != nil {
		return false, fmt.Errorf("mark module completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// TotalXP sums the xp a user has earned.
func (r *ProgressRepository) TotalXP(ctx context.Context, userID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(xp_earned), 0) FROM module_progress WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("sum xp: %w", err)
	}
	return total, nil
}
