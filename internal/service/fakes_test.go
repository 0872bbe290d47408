package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/sql-academy-api/internal/models"
)

type fakeCourses struct {
	courses map[string]*models.Course
	err     error
}

func (f *fakeCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCourses) ListPublished(ctx context.Context) ([]models.Course, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Course{}
	for _, c := range f.courses {
		if c.Status == models.CourseStatusPublished {
			cp := *c
			cp.Modules = append([]models.Module(nil), c.Modules...)
			out = append(out, cp)
		}
	}
	return out, nil
}

type fakePaths struct {
	paths map[string]*models.LearningPath
}

func (f *fakePaths) FindByID(ctx context.Context, id string) (*models.LearningPath, error) {
	p, ok := f.paths[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaths) List(ctx context.Context, publishedOnly bool) ([]models.LearningPath, error) {
	out := []models.LearningPath{}
	for _, p := range f.paths {
		if publishedOnly && !p.IsPublished {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

type fakeEnrollments struct {
	mu          sync.Mutex
	courses     map[string]*models.Enrollment
	paths       map[string]*models.PathEnrollment
	statusCalls int
	failWrites  error
}

func newFakeEnrollments() *fakeEnrollments {
	return &fakeEnrollments{courses: map[string]*models.Enrollment{}, paths: map[string]*models.PathEnrollment{}}
}

func (f *fakeEnrollments) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Enrollment{}
	for _, e := range f.courses {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEnrollments) ListPathEnrollments(ctx context.Context, userID string) ([]models.PathEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.PathEnrollment{}
	for _, e := range f.paths {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeEnrollments) UpdateStatus(ctx context.Context, userID, courseID string, status models.EnrollmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.failWrites != nil {
		return f.failWrites
	}
	e, ok := f.courses[userID+"/"+courseID]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	return nil
}

func (f *fakeEnrollments) UpdatePathStatus(ctx context.Context, userID, pathID string, status models.EnrollmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.failWrites != nil {
		return f.failWrites
	}
	e, ok := f.paths[userID+"/"+pathID]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	return nil
}

func (f *fakeEnrollments) Touch(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	key := userID + "/" + courseID
	e, ok := f.courses[key]
	if !ok {
		e = &models.Enrollment{ID: key, UserID: userID, CourseID: courseID, Status: models.EnrollmentStatusInProgress, EnrolledAt: now}
		f.courses[key] = e
	}
	e.LastAccessed = &now
	cp := *e
	return &cp, nil
}

func (f *fakeEnrollments) EnsurePathEnrollment(ctx context.Context, userID, pathID string) (*models.PathEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := userID + "/" + pathID
	e, ok := f.paths[key]
	if !ok {
		e = &models.PathEnrollment{ID: key, UserID: userID, PathID: pathID, Status: models.EnrollmentStatusInProgress, EnrolledAt: time.Now()}
		f.paths[key] = e
	}
	cp := *e
	return &cp, nil
}

type fakeProgress struct {
	mu   sync.Mutex
	rows map[string]*models.ModuleProgress
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{rows: map[string]*models.ModuleProgress{}}
}

func (f *fakeProgress) put(userID, courseID, moduleID string, status models.ProgressStatus) {
	f.rows[userID+"/"+moduleID] = &models.ModuleProgress{ID: moduleID, UserID: userID, CourseID: courseID, ModuleID: moduleID, Status: status}
}

func (f *fakeProgress) ListByUser(ctx context.Context, userID string) ([]models.ModuleProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.ModuleProgress{}
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeProgress) Find(ctx context.Context, userID, moduleID string) (*models.ModuleProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[userID+"/"+moduleID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (f *fakeProgress) MarkStarted(ctx context.Context, userID, courseID, moduleID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[userID+"/"+moduleID]; ok {
		return false, nil
	}
	f.put(userID, courseID, moduleID, models.ProgressStatusStarted)
	return true, nil
}

func (f *fakeProgress) MarkCompleted(ctx context.Context, userID, courseID, moduleID string, xp int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[userID+"/"+moduleID]
	if ok && r.Status == models.ProgressStatusCompleted {
		return false, nil
	}
	f.put(userID, courseID, moduleID, models.ProgressStatusCompleted)
	f.rows[userID+"/"+moduleID].XPEarned = xp
	return true, nil
}

func (f *fakeProgress) TotalXP(ctx context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, r := range f.rows {
		if r.UserID == userID {
			total += r.XPEarned
		}
	}
	return total, nil
}

func publishedCourse(id string, moduleIDs ...string) *models.Course {
	c := &models.Course{ID: id, Title: "Course " + id, Industry: "retail", Status: models.CourseStatusPublished}
	for i, m := range moduleIDs {
		c.Modules = append(c.Modules, models.Module{ID: m, CourseID: id, Position: i + 1, Title: "Module " + m})
	}
	return c
}

func (f *fakeCourses) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	out := []models.Course{}
	for _, c := range f.courses {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (f *fakeCourses) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "course-" + course.Title
	}
	cp := *course
	f.courses[course.ID] = &cp
	return nil
}

func (f *fakeCourses) Update(ctx context.Context, course *models.Course) error {
	c, ok := f.courses[course.ID]
	if !ok {
		return sql.ErrNoRows
	}
	c.Title = course.Title
	c.Description = course.Description
	return nil
}

func (f *fakeCourses) UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error {
	c, ok := f.courses[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Status = status
	return nil
}

// fakeModules stores modules inside the fakeCourses they belong to.
type fakeModules struct {
	courses *fakeCourses
	seq     int
}

func (f *fakeModules) locate(id string) (*models.Course, int) {
	for _, c := range f.courses.courses {
		for i := range c.Modules {
			if c.Modules[i].ID == id {
				return c, i
			}
		}
	}
	return nil, -1
}

func (f *fakeModules) FindByID(ctx context.Context, id string) (*models.Module, error) {
	c, i := f.locate(id)
	if c == nil {
		return nil, sql.ErrNoRows
	}
	cp := c.Modules[i]
	return &cp, nil
}

func (f *fakeModules) Create(ctx context.Context, module *models.Module) error {
	c, ok := f.courses.courses[module.CourseID]
	if !ok {
		return sql.ErrNoRows
	}
	f.seq++
	module.ID = "new-" + string(rune('a'+f.seq-1))
	module.Position = len(c.Modules) + 1
	c.Modules = append(c.Modules, *module)
	return nil
}

func (f *fakeModules) Update(ctx context.Context, module *models.Module) error {
	c, i := f.locate(module.ID)
	if c == nil {
		return sql.ErrNoRows
	}
	c.Modules[i].Title = module.Title
	c.Modules[i].ContentType = module.ContentType
	return nil
}

func (f *fakeModules) UpdateChallenge(ctx context.Context, id string, challenge *models.Challenge) error {
	c, i := f.locate(id)
	if c == nil {
		return sql.ErrNoRows
	}
	c.Modules[i].Challenge = challenge
	c.Modules[i].ContentType = challenge.Type
	return nil
}

func (f *fakeModules) Move(ctx context.Context, id string, position int) error {
	c, i := f.locate(id)
	if c == nil {
		return sql.ErrNoRows
	}
	m := c.Modules[i]
	rest := append(append([]models.Module{}, c.Modules[:i]...), c.Modules[i+1:]...)
	if position > len(rest)+1 {
		position = len(rest) + 1
	}
	out := append(append(append([]models.Module{}, rest[:position-1]...), m), rest[position-1:]...)
	for j := range out {
		out[j].Position = j + 1
	}
	c.Modules = out
	return nil
}

func (f *fakeModules) Delete(ctx context.Context, id string) error {
	c, i := f.locate(id)
	if c == nil {
		return sql.ErrNoRows
	}
	c.Modules = append(c.Modules[:i], c.Modules[i+1:]...)
	for j := range c.Modules {
		c.Modules[j].Position = j + 1
	}
	return nil
}

func (f *fakePaths) Create(ctx context.Context, path *models.LearningPath) error {
	if path.ID == "" {
		path.ID = "path-" + path.Title
	}
	cp := *path
	f.paths[path.ID] = &cp
	return nil
}

func (f *fakePaths) Update(ctx context.Context, path *models.LearningPath) error {
	p, ok := f.paths[path.ID]
	if !ok {
		return sql.ErrNoRows
	}
	p.Title = path.Title
	p.Description = path.Description
	p.TargetRole = path.TargetRole
	return nil
}

func (f *fakePaths) SetPublished(ctx context.Context, id string, published bool) error {
	p, ok := f.paths[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.IsPublished = published
	return nil
}

func (f *fakePaths) ReplaceCourses(ctx context.Context, pathID string, courseIDs []string) error {
	p, ok := f.paths[pathID]
	if !ok {
		return sql.ErrNoRows
	}
	p.Courses = nil
	for i, id := range courseIDs {
		p.Courses = append(p.Courses, models.PathCourse{PathID: pathID, CourseID: id, Position: i + 1})
	}
	return nil
}
