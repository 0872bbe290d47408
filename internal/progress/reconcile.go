// Package progress merges enrollment, module progress and path enrollment
// records into display-ready progress items.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/sql-academy-api/internal/models"
)

// ErrMissingUser is returned when Reconcile is called without a user id.
var ErrMissingUser = errors.New("user id is required")

// ItemType distinguishes bundle items from standalone course items.
type ItemType string

const (
	ItemTypePath   ItemType = "path"
	ItemTypeCourse ItemType = "course"
)

// ActionKind tells the client where "continue" leads.
type ActionKind string

const (
	ActionResumeCourse ActionKind = "resume_course"
	ActionOpenPath     ActionKind = "open_path"
	ActionOpenCourse   ActionKind = "open_course"
)

// Action is the continuation target of an item.
type Action struct {
	Kind     ActionKind `json:"kind"`
	PathID   string     `json:"path_id,omitempty"`
	CourseID string     `json:"course_id,omitempty"`
	ModuleID string     `json:"module_id,omitempty"`
}

// Item is one row of the learner's progress dashboard.
type Item struct {
	ID               string     `json:"id"`
	Type             ItemType   `json:"type"`
	EntityID         string     `json:"entity_id"`
	Title            string     `json:"title"`
	Subtitle         string     `json:"subtitle"`
	Percent          int        `json:"percent"`
	CompletedModules int        `json:"completed_modules"`
	TotalModules     int        `json:"total_modules"`
	IsDone           bool       `json:"is_done"`
	LastActive       bool       `json:"last_active"`
	ActivityAt       *time.Time `json:"activity_at,omitempty"`
	NextCourseID     string     `json:"next_course_id,omitempty"`
	NextModuleID     string     `json:"next_module_id,omitempty"`
	Action           Action     `json:"action"`
}

// WriteKind names the table a StatusWrite targets.
type WriteKind string

const (
	WritePathEnrollment   WriteKind = "path_enrollment"
	WriteCourseEnrollment WriteKind = "course_enrollment"
)

// StatusWrite is a status correction the caller should persist.
type StatusWrite struct {
	Kind     WriteKind               `json:"kind"`
	UserID   string                  `json:"user_id"`
	EntityID string                  `json:"entity_id"`
	From     models.EnrollmentStatus `json:"from"`
	To       models.EnrollmentStatus `json:"to"`
}

// CourseSet is a set of course ids. It encodes as a sorted JSON array.
type CourseSet map[string]struct{}

// Has reports membership.
func (s CourseSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s CourseSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s CourseSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *CourseSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	set := make(CourseSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	*s = set
	return nil
}

// Input is everything Reconcile needs. Courses and Paths must already be
// limited to published entities.
type Input struct {
	UserID          string
	Courses         []models.Course
	Paths           []models.LearningPath
	Enrollments     []models.Enrollment
	Progress        []models.ModuleProgress
	PathEnrollments []models.PathEnrollment
}

// Result is the reconciled dashboard plus the writes needed to heal stored statuses.
type Result struct {
	InProgress         []Item        `json:"in_progress"`
	Completed          []Item        `json:"completed"`
	CompletedCourseIDs CourseSet     `json:"completed_course_ids"`
	Writes             []StatusWrite `json:"-"`
}

type courseInfo struct {
	course    *models.Course
	moduleIDs []string
}

type reconciler struct {
	in            Input
	courses       map[string]*courseInfo
	completed     map[string]map[string]struct{}
	enrollments   map[string]models.Enrollment
	pathEnrolls   map[string]models.PathEnrollment
	activePaths   map[string]struct{}
	pathsByCourse map[string][]string
	res           *Result
}

// Reconcile derives progress items from raw records. It performs no I/O;
// status corrections are returned in Result.Writes.
func Reconcile(in Input) (*Result, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, ErrMissingUser
	}
	r := newReconciler(in)
	r.reconcilePaths()
	r.reconcileCourses()
	r.finish()
	return r.res, nil
}

func newReconciler(in Input) *reconciler {
	r := &reconciler{
		in:            in,
		courses:       make(map[string]*courseInfo, len(in.Courses)),
		completed:     make(map[string]map[string]struct{}),
		enrollments:   make(map[string]models.Enrollment, len(in.Enrollments)),
		pathEnrolls:   make(map[string]models.PathEnrollment, len(in.PathEnrollments)),
		activePaths:   make(map[string]struct{}),
		pathsByCourse: make(map[string][]string),
		res: &Result{
			InProgress:         []Item{},
			Completed:          []Item{},
			CompletedCourseIDs: CourseSet{},
		},
	}

	for i := range in.Courses {
		c := &in.Courses[i]
		modules := make([]models.Module, len(c.Modules))
		copy(modules, c.Modules)
		sort.SliceStable(modules, func(a, b int) bool { return modules[a].Position < modules[b].Position })
		ids := make([]string, 0, len(modules))
		for _, m := range modules {
			ids = append(ids, m.ID)
		}
		r.courses[c.ID] = &courseInfo{course: c, moduleIDs: ids}
	}

	for _, p := range in.Progress {
		if p.Status != models.ProgressStatusCompleted {
			continue
		}
		set, ok := r.completed[p.CourseID]
		if !ok {
			set = make(map[string]struct{})
			r.completed[p.CourseID] = set
		}
		set[p.ModuleID] = struct{}{}
	}

	for _, e := range in.Enrollments {
		if _, dup := r.enrollments[e.CourseID]; !dup {
			r.enrollments[e.CourseID] = e
		}
	}
	for _, pe := range in.PathEnrollments {
		if _, dup := r.pathEnrolls[pe.PathID]; !dup {
			r.pathEnrolls[pe.PathID] = pe
		}
	}
	for _, p := range in.Paths {
		for _, pc := range p.Courses {
			r.pathsByCourse[pc.CourseID] = append(r.pathsByCourse[pc.CourseID], p.ID)
		}
	}
	return r
}

func (r *reconciler) completedCount(ci *courseInfo) int {
	set := r.completed[ci.course.ID]
	n := 0
	for _, id := range ci.moduleIDs {
		if _, ok := set[id]; ok {
			n++
		}
	}
	return n
}

func (r *reconciler) firstIncomplete(ci *courseInfo) string {
	set := r.completed[ci.course.ID]
	for _, id := range ci.moduleIDs {
		if _, ok := set[id]; !ok {
			return id
		}
	}
	return ""
}

// courseDone combines the derived module ratio with an explicit completed status.
// An explicit completed status wins even when modules are missing.
func (r *reconciler) courseDone(ci *courseInfo) (done, derived bool) {
	total := len(ci.moduleIDs)
	derived = total > 0 && r.completedCount(ci) >= total
	if derived {
		return true, true
	}
	e, ok := r.enrollments[ci.course.ID]
	return ok && e.Status == models.EnrollmentStatusCompleted, false
}

func (r *reconciler) memberCourses(p models.LearningPath) []*courseInfo {
	members := make([]models.PathCourse, len(p.Courses))
	copy(members, p.Courses)
	sort.SliceStable(members, func(a, b int) bool { return members[a].Position < members[b].Position })

	out := make([]*courseInfo, 0, len(members))
	for _, pc := range members {
		if ci, ok := r.courses[pc.CourseID]; ok {
			out = append(out, ci)
		}
	}
	return out
}

func (r *reconciler) reconcilePaths() {
	for _, path := range r.in.Paths {
		members := r.memberCourses(path)
		if len(members) == 0 {
			continue
		}

		var total, done int
		var next *courseInfo
		var lastAccess *time.Time
		for _, ci := range members {
			total += len(ci.moduleIDs)
			done += r.completedCount(ci)
			isDone, _ := r.courseDone(ci)
			if isDone {
				r.res.CompletedCourseIDs[ci.course.ID] = struct{}{}
			} else if next == nil {
				next = ci
			}
			if e, ok := r.enrollments[ci.course.ID]; ok {
				lastAccess = latest(lastAccess, e.LastAccessed)
			}
		}
		if next == nil {
			next = members[0]
		}

		pe, enrolled := r.pathEnrolls[path.ID]
		if !enrolled {
			continue
		}
		r.activePaths[path.ID] = struct{}{}

		isDone := (total > 0 && done >= total) || pe.Status == models.EnrollmentStatusCompleted
		r.healPathStatus(pe, isDone)

		nextModule := r.firstIncomplete(next)
		action := Action{Kind: ActionOpenPath, PathID: path.ID}
		if !isDone && nextModule != "" {
			action = Action{Kind: ActionResumeCourse, PathID: path.ID, CourseID: next.course.ID, ModuleID: nextModule}
		}

		enrolledAt := pe.EnrolledAt
		item := Item{
			ID:               "path-" + path.ID,
			Type:             ItemTypePath,
			EntityID:         path.ID,
			Title:            path.Title,
			Subtitle:         courseCountLabel(len(members)),
			Percent:          percent(done, total),
			CompletedModules: done,
			TotalModules:     total,
			IsDone:           isDone,
			ActivityAt:       latest(&enrolledAt, lastAccess),
			NextCourseID:     next.course.ID,
			NextModuleID:     nextModule,
			Action:           action,
		}
		r.file(item)
	}
}

func (r *reconciler) healPathStatus(pe models.PathEnrollment, isDone bool) {
	switch {
	case isDone && pe.Status != models.EnrollmentStatusCompleted:
		r.write(WritePathEnrollment, pe.PathID, pe.Status, models.EnrollmentStatusCompleted)
	case !isDone && pe.Status != models.EnrollmentStatusInProgress && pe.Status != models.EnrollmentStatusCompleted:
		r.write(WritePathEnrollment, pe.PathID, pe.Status, models.EnrollmentStatusInProgress)
	}
}

func (r *reconciler) reconcileCourses() {
	seen := make(map[string]struct{}, len(r.in.Enrollments))
	for _, e := range r.in.Enrollments {
		if _, dup := seen[e.CourseID]; dup {
			continue
		}
		seen[e.CourseID] = struct{}{}

		ci, ok := r.courses[e.CourseID]
		if !ok {
			continue
		}

		isDone, derived := r.courseDone(ci)
		if isDone {
			r.res.CompletedCourseIDs[ci.course.ID] = struct{}{}
		}
		switch {
		case derived && e.Status != models.EnrollmentStatusCompleted:
			r.write(WriteCourseEnrollment, ci.course.ID, e.Status, models.EnrollmentStatusCompleted)
		case !isDone && e.Status != models.EnrollmentStatusInProgress:
			r.write(WriteCourseEnrollment, ci.course.ID, e.Status, models.EnrollmentStatusInProgress)
		}

		if r.inActivePath(ci.course.ID) {
			continue
		}

		done := r.completedCount(ci)
		total := len(ci.moduleIDs)
		nextModule := r.firstIncomplete(ci)
		item := Item{
			ID:               "course-" + ci.course.ID,
			Type:             ItemTypeCourse,
			EntityID:         ci.course.ID,
			Title:            ci.course.Title,
			Subtitle:         ci.course.Industry,
			Percent:          percent(done, total),
			CompletedModules: done,
			TotalModules:     total,
			IsDone:           isDone,
			ActivityAt:       e.LastAccessed,
			NextModuleID:     nextModule,
			Action:           Action{Kind: ActionOpenCourse, CourseID: ci.course.ID, ModuleID: nextModule},
		}
		r.file(item)
	}
}

func (r *reconciler) inActivePath(courseID string) bool {
	for _, pathID := range r.pathsByCourse[courseID] {
		if _, ok := r.activePaths[pathID]; ok {
			return true
		}
	}
	return false
}

func (r *reconciler) file(item Item) {
	if item.IsDone {
		r.res.Completed = append(r.res.Completed, item)
		return
	}
	r.res.InProgress = append(r.res.InProgress, item)
}

func (r *reconciler) write(kind WriteKind, entityID string, from, to models.EnrollmentStatus) {
	r.res.Writes = append(r.res.Writes, StatusWrite{Kind: kind, UserID: r.in.UserID, EntityID: entityID, From: from, To: to})
}

func (r *reconciler) finish() {
	items := r.res.InProgress
	sort.SliceStable(items, func(a, b int) bool {
		ta, tb := items[a].ActivityAt, items[b].ActivityAt
		switch {
		case ta == nil:
			return false
		case tb == nil:
			return true
		default:
			return ta.After(*tb)
		}
	})
	for i := range items {
		items[i].LastActive = i == 0
	}
	for i := range r.res.Completed {
		r.res.Completed[i].LastActive = false
	}
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(done) / float64(total)))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

func courseCountLabel(n int) string {
	if n == 1 {
		return "1 course"
	}
	return fmt.Sprintf("%d courses", n)
}
