package dto

import (
	"encoding/json"

	"github.com/noah-isme/sql-academy-api/internal/ai"
	"github.com/noah-isme/sql-academy-api/internal/models"
)

// CourseRequest creates or updates a course.
type CourseRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	Industry    string `json:"industry" validate:"max=80"`
	TargetRole  string `json:"target_role" validate:"max=80"`
	SkillLevel  string `json:"skill_level" validate:"omitempty,oneof=beginner intermediate advanced"`
}

// CourseStatusRequest moves a course through its lifecycle.
type CourseStatusRequest struct {
	Status models.CourseStatus `json:"status" validate:"required,oneof=draft outline_ready generating published"`
}

// ModuleRequest creates or updates a module.
type ModuleRequest struct {
	Title       string             `json:"title" validate:"required,max=200"`
	ContentType models.ContentType `json:"content_type" validate:"required,oneof=sql mcq debug completion"`
}

// MoveModuleRequest places a module at a 1-based position.
type MoveModuleRequest struct {
	Position int `json:"position" validate:"required,min=1"`
}

// ChallengeRequest attaches a raw challenge document to a module.
type ChallengeRequest struct {
	Challenge json.RawMessage `json:"challenge" validate:"required"`
}

// GenerateChallengeRequest asks the content service to author a module's challenge.
type GenerateChallengeRequest struct {
	ai.GenerateRequest
}

// PathRequest creates or updates a learning path.
type PathRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	TargetRole  string `json:"target_role" validate:"max=80"`
}

// PathCoursesRequest replaces a path's ordered course list.
type PathCoursesRequest struct {
	CourseIDs []string `json:"course_ids" validate:"required,unique,dive,required"`
}

// PublishRequest toggles publication.
type PublishRequest struct {
	Published *bool `json:"published" validate:"required"`
}
