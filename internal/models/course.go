package models

import "time"

// CourseStatus tracks authoring progress of a course.
type CourseStatus string

// Course lifecycle states. Only published courses are visible to learners.
const (
	CourseStatusDraft        CourseStatus = "draft"
	CourseStatusOutlineReady CourseStatus = "outline_ready"
	CourseStatusGenerating   CourseStatus = "generating"
	CourseStatusPublished    CourseStatus = "published"
)

// Valid reports whether s is a known course status.
func (s CourseStatus) Valid() bool {
	switch s {
	case CourseStatusDraft, CourseStatusOutlineReady, CourseStatusGenerating, CourseStatusPublished:
		return true
	}
	return false
}

// Course is an ordered sequence of modules.
type Course struct {
	ID          string       `db:"id" json:"id"`
	Title       string       `db:"title" json:"title"`
	Description string       `db:"description" json:"description"`
	Industry    string       `db:"industry" json:"industry"`
	TargetRole  string       `db:"target_role" json:"target_role"`
	SkillLevel  string       `db:"skill_level" json:"skill_level"`
	Status      CourseStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
	Modules     []Module     `db:"-" json:"modules,omitempty"`
}

// ModuleIDs returns the ids of the course's modules in position order.
func (c Course) ModuleIDs() []string {
	ids := make([]string, 0, len(c.Modules))
	for _, m := range c.Modules {
		ids = append(ids, m.ID)
	}
	return ids
}

// Module is one unit of learning content within a course.
type Module struct {
	ID          string      `db:"id" json:"id"`
	CourseID    string      `db:"course_id" json:"course_id"`
	Position    int         `db:"position" json:"position"`
	Title       string      `db:"title" json:"title"`
	ContentType ContentType `db:"content_type" json:"content_type"`
	Challenge   *Challenge  `db:"challenge" json:"challenge,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	Status   CourseStatus
	Industry string
	Search   string
	Page     int
	PageSize int
}
