// Package access decides whether a learner may open a module under their
// tier's lesson quota.
package access

import "github.com/noah-isme/sql-academy-api/internal/models"

// Reason explains a Decision.
type Reason string

const (
	ReasonUnlimited      Reason = "unlimited"
	ReasonAlreadyStarted Reason = "already_started"
	ReasonWithinLimit    Reason = "within_limit"
	ReasonLimitReached   Reason = "limit_reached"
)

// Request describes a navigation attempt.
type Request struct {
	ModuleID        string
	CourseModuleIDs []string
	// Started holds every module the user has started, across all courses.
	Started map[string]struct{}
	Limit   int
}

// Decision is the gate's verdict.
type Decision struct {
	Allowed         bool   `json:"allowed"`
	Reason          Reason `json:"reason"`
	StartedInCourse int    `json:"started_in_course"`
	Limit           int    `json:"limit"`
}

// Evaluate is a pure predicate; callers record the start themselves on permit.
func Evaluate(req Request) Decision {
	d := Decision{Limit: req.Limit, StartedInCourse: startedIn(req.Started, req.CourseModuleIDs)}

	if req.Limit == models.UnlimitedLessons {
		d.Allowed, d.Reason = true, ReasonUnlimited
		return d
	}
	if _, ok := req.Started[req.ModuleID]; ok {
		d.Allowed, d.Reason = true, ReasonAlreadyStarted
		return d
	}
	if d.StartedInCourse < req.Limit {
		d.Allowed, d.Reason = true, ReasonWithinLimit
		return d
	}
	d.Reason = ReasonLimitReached
	return d
}

// StartedSet builds the global started-module set from progress rows.
// Completed rows count as started.
func StartedSet(rows []models.ModuleProgress) map[string]struct{} {
	set := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		set[row.ModuleID] = struct{}{}
	}
	return set
}

func startedIn(started map[string]struct{}, courseModules []string) int {
	n := 0
	seen := make(map[string]struct{}, len(courseModules))
	for _, id := range courseModules {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := started[id]; ok {
			n++
		}
	}
	return n
}
