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

const (
	enrollmentColumns     = `id, user_id, course_id, status, enrolled_at, last_accessed`
	pathEnrollmentColumns = `id, user_id, path_id, status, enrolled_at`
)

// EnrollmentRepository stores course and path enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates an EnrollmentRepository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ListByUser returns every course enrollment of a user.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 ORDER BY enrolled_at`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}

// Find returns the enrollment of a user in a course.
func (r *EnrollmentRepository) Find(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND course_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, userID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// Touch creates an in_progress enrollment when missing and stamps last_accessed.
func (r *EnrollmentRepository) Touch(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	now := time.Now().UTC()
	query := `INSERT INTO enrollments (id, user_id, course_id, status, enrolled_at, last_accessed)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (user_id, course_id) DO UPDATE SET last_accessed = EXCLUDED.last_accessed
RETURNING ` + enrollmentColumns
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, uuid.NewString(), userID, courseID, models.EnrollmentStatusInProgress, now); err != nil {
		return nil, fmt.Errorf("touch enrollment: %w", err)
	}
	return &enrollment, nil
}

// UpdateStatus sets a course enrollment's status. Last write wins.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, userID, courseID string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $3 WHERE user_id = $1 AND course_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, courseID, status); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// ListPathEnrollments returns every path enrollment of a user.
func (r *EnrollmentRepository) ListPathEnrollments(ctx context.Context, userID string) ([]models.PathEnrollment, error) {
	query := `SELECT ` + pathEnrollmentColumns + ` FROM path_enrollments WHERE user_id = $1 ORDER BY enrolled_at`
	var enrollments []models.PathEnrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, userID); err != nil {
		return nil, fmt.Errorf("list path enrollments: %w", err)
	}
	return enrollments, nil
}

// EnsurePathEnrollment enrolls a user in a path. Repeated calls return the existing row.
func (r *EnrollmentRepository) EnsurePathEnrollment(ctx context.Context, userID, pathID string) (*models.PathEnrollment, error) {
	query := `INSERT INTO path_enrollments (id, user_id, path_id, status, enrolled_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, path_id) DO UPDATE SET path_id = EXCLUDED.path_id
RETURNING ` + pathEnrollmentColumns
	var enrollment models.PathEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, uuid.NewString(), userID, pathID, models.EnrollmentStatusInProgress, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("ensure path enrollment: %w", err)
	}
	return &enrollment, nil
}

// UpdatePathStatus sets a path enrollment's status. Last write wins.
func (r *EnrollmentRepository) UpdatePathStatus(ctx context.Context, userID, pathID string, status models.EnrollmentStatus) error {
	const query = `UPDATE path_enrollments SET status = $3 WHERE user_id = $1 AND path_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, pathID, status); err != nil {
		return fmt.Errorf("update path enrollment status: %w", err)
	}
	return nil
}
