package models

import "time"

// UnlimitedLessons is the course_lesson_limit sentinel for no quota.
const UnlimitedLessons = -1

// PlanPermission is the feature and quota record of one tier.
type PlanPermission struct {
	Tier                Tier      `db:"tier" json:"tier"`
	CourseLessonLimit   int       `db:"course_lesson_limit" json:"course_lesson_limit"`
	AllowAITutor        bool      `db:"allow_ai_tutor" json:"allow_ai_tutor"`
	AllowLiveInstructor bool      `db:"allow_live_instructor" json:"allow_live_instructor"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Unlimited reports whether the tier has no lesson quota.
func (p PlanPermission) Unlimited() bool {
	return p.CourseLessonLimit == UnlimitedLessons
}

// UpdatePlanRequest edits one tier's permissions. Nil fields are left unchanged.
type UpdatePlanRequest struct {
	CourseLessonLimit   *int  `json:"course_lesson_limit" validate:"omitempty,min=-1"`
	AllowAITutor        *bool `json:"allow_ai_tutor"`
	AllowLiveInstructor *bool `json:"allow_live_instructor"`
}

// SetTierRequest changes a user's tier.
type SetTierRequest struct {
	Tier Tier `json:"tier" validate:"required,oneof=free basic pro"`
}

// BillingEvent is the payload of a signed billing webhook.
type BillingEvent struct {
	EventID string `json:"event_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
	Tier    Tier   `json:"tier" validate:"required,oneof=free basic pro"`
}

// ResolvedPermissions is the effective plan of one user.
type ResolvedPermissions struct {
	UserID string `json:"user_id"`
	PlanPermission
}
