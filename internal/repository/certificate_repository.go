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

const certificateColumns = `id, user_id, course_id, title, status, image_url, storage_key, last_error, issued_at, created_at, updated_at`

// CertificateRepository persists course certificates and their render state.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository creates a CertificateRepository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create inserts a pending certificate. A second certificate for the same
// user and course yields ErrDuplicate.
func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) error {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cert.Status = models.CertificateStatusPending
	cert.CreatedAt, cert.UpdatedAt = now, now

	const query = `INSERT INTO certificates (id, user_id, course_id, title, status, created_at, updated_at) VALUES (:id, :user_id, :course_id, :title, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cert); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// FindByID returns a certificate.
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	return r.get(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id)
}

// FindByUserCourse returns the certificate a user holds for a course.
func (r *CertificateRepository) FindByUserCourse(ctx context.Context, userID, courseID string) (*models.Certificate, error) {
	return r.get(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE user_id = $1 AND course_id = $2`, userID, courseID)
}

func (r *CertificateRepository) get(ctx context.Context, query string, args ...interface{}) (*models.Certificate, error) {
	var cert models.Certificate
	if err := r.db.GetContext(ctx, &cert, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return &cert, nil
}

// ListByUser returns a user's certificates, newest first.
func (r *CertificateRepository) ListByUser(ctx context.Context, userID string) ([]models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE user_id = $1 ORDER BY created_at DESC`
	var certs []models.Certificate
	if err := r.db.SelectContext(ctx, &certs, query, userID); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}

// MarkIssued records the stored image of a rendered certificate.
func (r *CertificateRepository) MarkIssued(ctx context.Context, id, imageURL, storageKey string, issuedAt time.Time) error {
	const query = `UPDATE certificates SET status = $2, image_url = $3, storage_key = $4, issued_at = $5, last_error = NULL, updated_at = $5 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, models.CertificateStatusIssued, imageURL, storageKey, issuedAt)
	if err != nil {
		return fmt.Errorf("mark certificate issued: %w", err)
	}
	return requireAffected(res)
}

// MarkFailed records a render that exhausted its retries.
func (r *CertificateRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE certificates SET status = $2, last_error = $3, updated_at = $4 WHERE id = $1 AND status <> $5`
	if _, err := r.db.ExecContext(ctx, query, id, models.CertificateStatusFailed, reason, time.Now().UTC(), models.CertificateStatusIssued); err != nil {
		return fmt.Errorf("mark certificate failed: %w", err)
	}
	return nil
}

// Requeue moves a failed or stale pending certificate back to pending.
func (r *CertificateRepository) Requeue(ctx context.Context, id string) error {
	const query = `UPDATE certificates SET status = $2, updated_at = $3 WHERE id = $1 AND status <> $4`
	if _, err := r.db.ExecContext(ctx, query, id, models.CertificateStatusPending, time.Now().UTC(), models.CertificateStatusIssued); err != nil {
		return fmt.Errorf("requeue certificate: %w", err)
	}
	return nil
}

// ListStalePending returns pending certificates untouched since before cutoff.
func (r *CertificateRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Certificate, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE status = $1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`
	var certs []models.Certificate
	if err := r.db.SelectContext(ctx, &certs, query, models.CertificateStatusPending, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list stale certificates: %w", err)
	}
	return certs, nil
}
