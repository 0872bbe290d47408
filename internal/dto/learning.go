package dto

import (
	"encoding/json"

	"github.com/noah-isme/sql-academy-api/internal/access"
	"github.com/noah-isme/sql-academy-api/internal/models"
)

// ModuleView is a module as a learner sees it; answer keys are removed from the challenge.
type ModuleView struct {
	ID          string             `json:"id"`
	CourseID    string             `json:"course_id"`
	Position    int                `json:"position"`
	Title       string             `json:"title"`
	ContentType models.ContentType `json:"content_type"`
	Challenge   json.RawMessage    `json:"challenge,omitempty"`
}

// ModuleAccessResponse is returned by every navigation call that passed the gate.
type ModuleAccessResponse struct {
	CourseID     string          `json:"course_id"`
	CourseTitle  string          `json:"course_title"`
	Module       ModuleView      `json:"module"`
	TotalModules int             `json:"total_modules"`
	Status       string          `json:"status"`
	Decision     access.Decision `json:"decision"`
	Started      bool            `json:"newly_started"`
}

// SubmitAnswerRequest carries a learner's answer. MCQ challenges use Choice, others Answer.
type SubmitAnswerRequest struct {
	Answer string `json:"answer" validate:"max=20000"`
	Choice *int   `json:"choice" validate:"omitempty,min=0"`
}

// SubmitAnswerResponse reports the verdict and any XP awarded.
type SubmitAnswerResponse struct {
	Result           models.GradeResult `json:"result"`
	Completed        bool               `json:"completed"`
	AlreadyCompleted bool               `json:"already_completed"`
	XPAwarded        int                `json:"xp_awarded"`
}
