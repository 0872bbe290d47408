package models

import "time"

// EnrollmentStatus is shared by course and path enrollments.
type EnrollmentStatus string

// Enrollment statuses.
const (
	EnrollmentStatusInProgress EnrollmentStatus = "in_progress"
	EnrollmentStatusCompleted  EnrollmentStatus = "completed"
)

// Enrollment links a user to a course they have started.
type Enrollment struct {
	ID           string           `db:"id" json:"id"`
	UserID       string           `db:"user_id" json:"user_id"`
	CourseID     string           `db:"course_id" json:"course_id"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt   time.Time        `db:"enrolled_at" json:"enrolled_at"`
	LastAccessed *time.Time       `db:"last_accessed" json:"last_accessed,omitempty"`
}

// PathEnrollment is a user's explicit opt-in to a learning path.
type PathEnrollment struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"user_id"`
	PathID     string           `db:"path_id" json:"path_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
}

// ProgressStatus is the state of one module for one user.
type ProgressStatus string

// Module progress statuses. Completed is terminal.
const (
	ProgressStatusStarted   ProgressStatus = "started"
	ProgressStatusCompleted ProgressStatus = "completed"
)

// ModuleProgress records that a user started or completed a module.
type ModuleProgress struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	CourseID  string         `db:"course_id" json:"course_id"`
	ModuleID  string         `db:"module_id" json:"module_id"`
	Status    ProgressStatus `db:"status" json:"status"`
	XPEarned  int            `db:"xp_earned" json:"xp_earned"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}
