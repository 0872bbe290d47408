package models

import "time"

// CertificateStatus tracks asynchronous certificate rendering.
type CertificateStatus string

// Certificate states.
const (
	CertificateStatusPending CertificateStatus = "pending"
	CertificateStatusIssued  CertificateStatus = "issued"
	CertificateStatusFailed  CertificateStatus = "failed"
)

// Certificate is a course completion award.
type Certificate struct {
	ID         string            `db:"id" json:"id"`
	UserID     string            `db:"user_id" json:"user_id"`
	CourseID   string            `db:"course_id" json:"course_id"`
	Title      string            `db:"title" json:"title"`
	Status     CertificateStatus `db:"status" json:"status"`
	ImageURL   *string           `db:"image_url" json:"image_url,omitempty"`
	StorageKey *string           `db:"storage_key" json:"-"`
	LastError  *string           `db:"last_error" json:"-"`
	IssuedAt   *time.Time        `db:"issued_at" json:"issued_at,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at" json:"updated_at"`
}
