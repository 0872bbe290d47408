package progress

import "github.com/noah-isme/sql-academy-api/internal/models"

// Achievement is a badge shown on the learner profile.
type Achievement struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Unlocked    bool   `json:"unlocked"`
}

// Stats are the counters achievement rules look at.
type Stats struct {
	TotalXP          int `json:"total_xp"`
	CompletedModules int `json:"completed_modules"`
	CompletedCourses int `json:"completed_courses"`
	CompletedPaths   int `json:"completed_paths"`
}

type achievementRule struct {
	code, title, description string
	unlocked                 func(Stats) bool
}

var achievementRules = []achievementRule{
	{"first_module", "First Query", "Complete your first module", func(s Stats) bool { return s.CompletedModules >= 1 }},
	{"five_modules", "Warming Up", "Complete five modules", func(s Stats) bool { return s.CompletedModules >= 5 }},
	{"first_course", "Course Graduate", "Finish a whole course", func(s Stats) bool { return s.CompletedCourses >= 1 }},
	{"xp_500", "Rising Analyst", "Earn 500 XP", func(s Stats) bool { return s.TotalXP >= 500 }},
	{"xp_2000", "Query Master", "Earn 2000 XP", func(s Stats) bool { return s.TotalXP >= 2000 }},
	{"first_path", "Pathfinder", "Complete a learning path", func(s Stats) bool { return s.CompletedPaths >= 1 }},
}

// Achievements evaluates every badge rule against s, in a fixed order.
func Achievements(s Stats) []Achievement {
	out := make([]Achievement, 0, len(achievementRules))
	for _, rule := range achievementRules {
		out = append(out, Achievement{
			Code:        rule.code,
			Title:       rule.title,
			Description: rule.description,
			Unlocked:    rule.unlocked(s),
		})
	}
	return out
}

// StatsFrom derives achievement counters from progress rows and a reconciled result.
func StatsFrom(rows []models.ModuleProgress, res *Result) Stats {
	var s Stats
	for _, row := range rows {
		s.TotalXP += row.XPEarned
		if row.Status == models.ProgressStatusCompleted {
			s.CompletedModules++
		}
	}
	if res == nil {
		return s
	}
	s.CompletedCourses = len(res.CompletedCourseIDs)
	for _, item := range res.Completed {
		if item.Type == ItemTypePath {
			s.CompletedPaths++
		}
	}
	return s
}
