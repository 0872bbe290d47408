package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sql-academy-api/internal/models"
)

const (
	courseColumns = `id, title, description, industry, target_role, skill_level, status, created_at, updated_at`
	moduleColumns = `id, course_id, position, title, content_type, challenge, created_at, updated_at`
)

// CourseRepository manages courses and reads their modules.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a CourseRepository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses matching filter with the total count. Modules are not loaded.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	baseQuery := `FROM courses WHERE 1=1`
	var args []interface{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		baseQuery += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Industry != "" {
		args = append(args, strings.ToLower(filter.Industry))
		baseQuery += fmt.Sprintf(" AND LOWER(industry) = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		baseQuery += fmt.Sprintf(" AND (LOWER(title) LIKE $%d OR LOWER(description) LIKE $%d)", len(args), len(args))
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", courseColumns, baseQuery, pageSize, (page-1)*pageSize)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course with its modules in position order.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}

	modules, err := r.ListModules(ctx, id)
	if err != nil {
		return nil, err
	}
	course.Modules = modules
	return &course, nil
}

// ListModules returns a course's modules ordered by position.
func (r *CourseRepository) ListModules(ctx context.Context, courseID string) ([]models.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE course_id = $1 ORDER BY position`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return modules, nil
}

// ListPublished returns every published course with its modules.
func (r *CourseRepository) ListPublished(ctx context.Context) ([]models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE status = $1 ORDER BY created_at`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, models.CourseStatusPublished); err != nil {
		return nil, fmt.Errorf("list published courses: %w", err)
	}
	if len(courses) == 0 {
		return courses, nil
	}

	ids := make([]string, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	moduleQuery := `SELECT ` + moduleColumns + ` FROM modules WHERE course_id = ANY($1) ORDER BY course_id, position`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, moduleQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list published modules: %w", err)
	}

	byCourse := make(map[string][]models.Module, len(courses))
	for _, m := range modules {
		byCourse[m.CourseID] = append(byCourse[m.CourseID], m)
	}
	for i := range courses {
		courses[i].Modules = byCourse[courses[i].ID]
	}
	return courses, nil
}

// Create inserts a new course in draft state unless a status is set.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.Status == "" {
		course.Status = models.CourseStatusDraft
	}
	now := time.Now().UTC()
	course.CreatedAt, course.UpdatedAt = now, now

	const query = `INSERT INTO courses (id, title, description, industry, target_role, skill_level, status, created_at, updated_at) VALUES (:id, :title, :description, :industry, :target_role, :skill_level, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update writes the descriptive fields of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, description = :description, industry = :industry, target_role = :target_role, skill_level = :skill_level, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return requireAffected(res)
}

// UpdateStatus moves a course through its authoring lifecycle.
func (r *CourseRepository) UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error {
	const query = `UPDATE courses SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update course status: %w", err)
	}
	return requireAffected(res)
}
