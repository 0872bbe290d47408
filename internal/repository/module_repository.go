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
	"github.com/noah-isme/sql-academy-api/pkg/database"
)

// resequenceQuery renumbers a course's modules 1..n keeping their relative order.
const resequenceQuery = `UPDATE modules m SET position = s.rn, updated_at = $2
FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY position, id) AS rn FROM modules WHERE course_id = $1) s
WHERE m.id = s.id AND m.position <> s.rn`

// ModuleRepository manages modules and keeps their positions gapless.
type ModuleRepository struct {
	db *sqlx.DB
}

// NewModuleRepository creates a ModuleRepository.
func NewModuleRepository(db *sqlx.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// FindByID returns a module.
func (r *ModuleRepository) FindByID(ctx context.Context, id string) (*models.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE id = $1`
	var module models.Module
	if err := r.db.GetContext(ctx, &module, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find module: %w", err)
	}
	return &module, nil
}

// Create appends a module to the end of its course.
func (r *ModuleRepository) Create(ctx context.Context, module *models.Module) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	module.CreatedAt, module.UpdatedAt = now, now

	return database.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := lockCourse(ctx, tx, module.CourseID); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &module.Position, `SELECT COALESCE(MAX(position), 0) + 1 FROM modules WHERE course_id = $1`, module.CourseID); err != nil {
			return fmt.Errorf("next module position: %w", err)
		}
		const query = `INSERT INTO modules (id, course_id, position, title, content_type, challenge, created_at, updated_at) VALUES (:id, :course_id, :position, :title, :content_type, :challenge, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, module); err != nil {
			return fmt.Errorf("create module: %w", err)
		}
		return nil
	})
}

// Update writes a module's title and content type.
func (r *ModuleRepository) Update(ctx context.Context, module *models.Module) error {
	module.UpdatedAt = time.Now().UTC()
	const query = `UPDATE modules SET title = :title, content_type = :content_type, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, module)
	if err != nil {
		return fmt.Errorf("update module: %w", err)
	}
	return requireAffected(res)
}

// UpdateChallenge stores a validated challenge and aligns the module's content type with it.
func (r *ModuleRepository) UpdateChallenge(ctx context.Context, id string, challenge *models.Challenge) error {
	const query = `UPDATE modules SET challenge = $2, content_type = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, challenge, challenge.Type, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update module challenge: %w", err)
	}
	return requireAffected(res)
}

// Move places a module at position, shifting the siblings between its old and new slot.
// Positions outside 1..n are clamped.
func (r *ModuleRepository) Move(ctx context.Context, id string, position int) error {
	return database.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var current struct {
			CourseID string `db:"course_id"`
			Position int    `db:"position"`
		}
		if err := tx.GetContext(ctx, &current, `SELECT course_id, position FROM modules WHERE id = $1`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("find module course: %w", err)
		}
		if err := lockCourse(ctx, tx, current.CourseID); err != nil {
			return err
		}

		var count int
		if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM modules WHERE course_id = $1`, current.CourseID); err != nil {
			return fmt.Errorf("count modules: %w", err)
		}
		if position > count {
			position = count
		}
		if position < 1 {
			position = 1
		}
		if position == current.Position {
			return nil
		}

		now := time.Now().UTC()
		var shift string
		if position > current.Position {
			shift = `UPDATE modules SET position = position - 1, updated_at = $4 WHERE course_id = $1 AND position > $2 AND position <= $3`
		} else {
			shift = `UPDATE modules SET position = position + 1, updated_at = $4 WHERE course_id = $1 AND position >= $3 AND position < $2`
		}
		if _, err := tx.ExecContext(ctx, shift, current.CourseID, current.Position, position, now); err != nil {
			return fmt.Errorf("shift modules: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE modules SET position = $2, updated_at = $3 WHERE id = $1`, id, position, now); err != nil {
			return fmt.Errorf("move module: %w", err)
		}
		return resequence(ctx, tx, current.CourseID, now)
	})
}

// Delete removes a module and closes the gap it leaves.
func (r *ModuleRepository) Delete(ctx context.Context, id string) error {
	return database.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var courseID string
		if err := tx.GetContext(ctx, &courseID, `DELETE FROM modules WHERE id = $1 RETURNING course_id`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("delete module: %w", err)
		}
		return resequence(ctx, tx, courseID, time.Now().UTC())
	})
}

func lockCourse(ctx context.Context, tx *sqlx.Tx, courseID string) error {
	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("lock course: %w", err)
	}
	return nil
}

func resequence(ctx context.Context, tx *sqlx.Tx, courseID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, resequenceQuery, courseID, now); err != nil {
		return fmt.Errorf("resequence modules: %w", err)
	}
	return nil
}
