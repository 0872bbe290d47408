package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sql-academy-api/internal/models"
	"github.com/noah-isme/sql-academy-api/pkg/database"
)

const pathColumns = `id, title, description, target_role, is_published, created_at, updated_at`

// LearningPathRepository manages learning paths and their ordered member courses.
type LearningPathRepository struct {
	db *sqlx.DB
}

// NewLearningPathRepository creates a LearningPathRepository.
func NewLearningPathRepository(db *sqlx.DB) *LearningPathRepository {
	return &LearningPathRepository{db: db}
}

// List returns paths with their member courses. publishedOnly hides drafts.
func (r *LearningPathRepository) List(ctx context.Context, publishedOnly bool) ([]models.LearningPath, error) {
	query := `SELECT ` + pathColumns + ` FROM learning_paths`
	if publishedOnly {
		query += ` WHERE is_published = TRUE`
	}
	query += ` ORDER BY created_at`

	var paths []models.LearningPath
	if err := r.db.SelectContext(ctx, &paths, query); err != nil {
		return nil, fmt.Errorf("list learning paths: %w", err)
	}
	if err := r.attachCourses(ctx, paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// FindByID returns a path with its member courses.
func (r *LearningPathRepository) FindByID(ctx context.Context, id string) (*models.LearningPath, error) {
	query := `SELECT ` + pathColumns + ` FROM learning_paths WHERE id = $1`
	var path models.LearningPath
	if err := r.db.GetContext(ctx, &path, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find learning path: %w", err)
	}
	paths := []models.LearningPath{path}
	if err := r.attachCourses(ctx, paths); err != nil {
		return nil, err
	}
	return &paths[0], nil
}

func (r *LearningPathRepository) attachCourses(ctx context.Context, paths []models.LearningPath) error {
	if len(paths) == 0 {
		return nil
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		ids = append(ids, p.ID)
	}

	const query = `SELECT lpc.path_id, lpc.course_id, lpc.position, c.title
FROM learning_path_courses lpc
JOIN courses c ON c.id = lpc.course_id
WHERE lpc.path_id = ANY($1)
ORDER BY lpc.path_id, lpc.position`
	var members []models.PathCourse
	if err := r.db.SelectContext(ctx, &members, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list learning path courses: %w", err)
	}

	byPath := make(map[string][]models.PathCourse, len(paths))
	for _, m := range members {
		byPath[m.PathID] = append(byPath[m.PathID], m)
	}
	for i := range paths {
		paths[i].Courses = byPath[paths[i].ID]
		if paths[i].Courses == nil {
			paths[i].Courses = []models.PathCourse{}
		}
	}
	return nil
}

// Create inserts an unpublished path.
func (r *LearningPathRepository) Create(ctx context.Context, path *models.LearningPath) error {
	if path.ID == "" {
		path.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	path.CreatedAt, path.UpdatedAt = now, now

	const query = `INSERT INTO learning_paths (id, title, description, target_role, is_published, created_at, updated_at) VALUES (:id, :title, :description, :target_role, :is_published, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, path); err != nil {
		return fmt.Errorf("create learning path: %w", err)
	}
	return nil
}

// Update writes the descriptive fields of a path.
func (r *LearningPathRepository) Update(ctx context.Context, path *models.LearningPath) error {
	path.UpdatedAt = time.Now().UTC()
	const query = `UPDATE learning_paths SET title = :title, description = :description, target_role = :target_role, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, path)
	if err != nil {
		return fmt.Errorf("update learning path: %w", err)
	}
	return requireAffected(res)
}

// SetPublished publishes or unpublishes a path.
func (r *LearningPathRepository) SetPublished(ctx context.Context, id string, published bool) error {
	const query = `UPDATE learning_paths SET is_published = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, published, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set learning path published: %w", err)
	}
	return requireAffected(res)
}

// ReplaceCourses swaps the member list of a path for courseIDs, in order.
func (r *LearningPathRepository) ReplaceCourses(ctx context.Context, pathID string, courseIDs []string) error {
	return database.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var id string
		if err := tx.GetContext(ctx, &id, `SELECT id FROM learning_paths WHERE id = $1 FOR UPDATE`, pathID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock learning path: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM learning_path_courses WHERE path_id = $1`, pathID); err != nil {
			return fmt.Errorf("clear learning path courses: %w", err)
		}
		for i, courseID := range courseIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO learning_path_courses (path_id, course_id, position) VALUES ($1, $2, $3)`, pathID, courseID, i+1); err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicate
				}
				return fmt.Errorf("insert learning path course: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE learning_paths SET updated_at = $2 WHERE id = $1`, pathID, time.Now().UTC()); err != nil {
			return fmt.Errorf("touch learning path: %w", err)
		}
		return nil
	})
}
