package models

import "time"

// LearningPath bundles courses under one target role.
type LearningPath struct {
	ID          string       `db:"id" json:"id"`
	Title       string       `db:"title" json:"title"`
	Description string       `db:"description" json:"description"`
	TargetRole  string       `db:"target_role" json:"target_role"`
	IsPublished bool         `db:"is_published" json:"is_published"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
	Courses     []PathCourse `db:"-" json:"courses"`
}

// PathCourse is one ordered member of a learning path.
type PathCourse struct {
	PathID   string `db:"path_id" json:"-"`
	CourseID string `db:"course_id" json:"course_id"`
	Position int    `db:"position" json:"position"`
	Title    string `db:"title" json:"title,omitempty"`
}

// CourseIDs returns member course ids in path order.
func (p LearningPath) CourseIDs() []string {
	ids := make([]string, 0, len(p.Courses))
	for _, c := range p.Courses {
		ids = append(ids, c.CourseID)
	}
	return ids
}
