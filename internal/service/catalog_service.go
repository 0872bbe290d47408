package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sql-academy-api/internal/ai"
	"github.com/noah-isme/sql-academy-api/internal/dto"
	"github.com/noah-isme/sql-academy-api/internal/models"
	"github.com/noah-isme/sql-academy-api/internal/repository"
	appErrors "github.com/noah-isme/sql-academy-api/pkg/errors"
)

type catalogCourseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListPublished(ctx context.Context) ([]models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	UpdateStatus(ctx context.Context, id string, status models.CourseStatus) error
}

type catalogModuleRepository interface {
	FindByID(ctx context.Context, id string) (*models.Module, error)
	Create(ctx context.Context, module *models.Module) error
	Update(ctx context.Context, module *models.Module) error
	UpdateChallenge(ctx context.Context, id string, challenge *models.Challenge) error
	Move(ctx context.Context, id string, position int) error
	Delete(ctx context.Context, id string) error
}

type catalogPathRepository interface {
	List(ctx context.Context, publishedOnly bool) ([]models.LearningPath, error)
	FindByID(ctx context.Context, id string) (*models.LearningPath, error)
	Create(ctx context.Context, path *models.LearningPath) error
	Update(ctx context.Context, path *models.LearningPath) error
	SetPublished(ctx context.Context, id string, published bool) error
	ReplaceCourses(ctx context.Context, pathID string, courseIDs []string) error
}

// ChallengeGenerator authors challenges from a topic.
type ChallengeGenerator interface {
	GenerateChallenge(ctx context.Context, req ai.GenerateRequest) (*models.Challenge, error)
}

// CatalogService serves the published catalog and admin authoring.
type CatalogService struct {
	courses   catalogCourseRepository
	modules   catalogModuleRepository
	paths     catalogPathRepository
	generator ChallengeGenerator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(courses catalogCourseRepository, modules catalogModuleRepository, paths catalogPathRepository, generator ChallengeGenerator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &CatalogService{
		courses:   courses,
		modules:   modules,
		paths:     paths,
		generator: generator,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// ListPublishedCourses returns the learner-visible catalog without answer keys.
func (s *CatalogService) ListPublishedCourses(ctx context.Context) ([]models.Course, error) {
	courses, err := s.courses.ListPublished(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list courses")
	}
	for i := range courses {
		for j := range courses[i].Modules {
			courses[i].Modules[j].Challenge = nil
		}
	}
	return courses, nil
}

// GetPublishedCourse returns one published course with learner-safe module views.
func (s *CatalogService) GetPublishedCourse(ctx context.Context, id string) (*models.Course, []dto.ModuleView, error) {
	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if course.Status != models.CourseStatusPublished {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	views := make([]dto.ModuleView, 0, len(course.Modules))
	for i := range course.Modules {
		view, err := learnerView(&course.Modules[i])
		if err != nil {
			return nil, nil, appErrors.Internal(err, "failed to render module")
		}
		views = append(views, view)
	}
	course.Modules = nil
	return course, views, nil
}

// ListCourses is the admin listing with filters.
func (s *CatalogService) ListCourses(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list courses")
	}
	return courses, newPagination(filter.Page, filter.PageSize, total), nil
}

// GetCourse returns a course with full module content for admins.
func (s *CatalogService) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	return s.findCourse(ctx, id)
}

// CreateCourse adds a draft course.
func (s *CatalogService) CreateCourse(ctx context.Context, req dto.CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid course payload")
	}
	course := &models.Course{
		Title:       req.Title,
		Description: req.Description,
		Industry:    req.Industry,
		TargetRole:  req.TargetRole,
		SkillLevel:  req.SkillLevel,
		Status:      models.CourseStatusDraft,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Internal(err, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID))
	return course, nil
}

// UpdateCourse rewrites a course's descriptive fields.
func (s *CatalogService) UpdateCourse(ctx context.Context, id string, req dto.CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid course payload")
	}
	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	course.Title = req.Title
	course.Description = req.Description
	course.Industry = req.Industry
	course.TargetRole = req.TargetRole
	course.SkillLevel = req.SkillLevel
	if err := s.courses.Update(ctx, course); err != nil {
		return nil, notFoundOr(err, "course not found", "failed to update course")
	}
	return course, nil
}

// SetCourseStatus moves a course through its lifecycle. Publishing needs a challenge on every module.
func (s *CatalogService) SetCourseStatus(ctx context.Context, id string, req dto.CourseStatusRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid status")
	}
	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == models.CourseStatusPublished {
		if len(course.Modules) == 0 {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot publish a course without modules")
		}
		missing := []string{}
		for _, m := range course.Modules {
			if m.Challenge == nil {
				missing = append(missing, m.ID)
			}
		}
		if len(missing) > 0 {
			return nil, appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrPreconditionFailed, "every module needs a challenge before publishing"),
				map[string]interface{}{"modules": missing},
			)
		}
	}
	if err := s.courses.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, notFoundOr(err, "course not found", "failed to update course status")
	}
	course.Status = req.Status
	s.logger.Info("course status changed", zap.String("course_id", id), zap.String("status", string(req.Status)))
	return course, nil
}

// AddModule appends a module to a course.
func (s *CatalogService) AddModule(ctx context.Context, courseID string, req dto.ModuleRequest) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid module payload")
	}
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}
	module := &models.Module{CourseID: courseID, Title: req.Title, ContentType: req.ContentType}
	if err := s.modules.Create(ctx, module); err != nil {
		return nil, notFoundOr(err, "course not found", "failed to create module")
	}
	return module, nil
}

// UpdateModule rewrites a module's title and content type.
func (s *CatalogService) UpdateModule(ctx context.Context, id string, req dto.ModuleRequest) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid module payload")
	}
	module, err := s.findModule(ctx, id)
	if err != nil {
		return nil, err
	}
	if module.Challenge != nil && module.Challenge.Type != req.ContentType {
		return nil, appErrors.Clone(appErrors.ErrConflict, "content type must match the attached challenge")
	}
	module.Title = req.Title
	module.ContentType = req.ContentType
	if err := s.modules.Update(ctx, module); err != nil {
		return nil, notFoundOr(err, "module not found", "failed to update module")
	}
	return module, nil
}

// MoveModule repositions a module within its course.
func (s *CatalogService) MoveModule(ctx context.Context, id string, req dto.MoveModuleRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid position")
	}
	if err := s.modules.Move(ctx, id, req.Position); err != nil {
		return notFoundOr(err, "module not found", "failed to move module")
	}
	return nil
}

// DeleteModule removes a module; remaining positions close up.
func (s *CatalogService) DeleteModule(ctx context.Context, id string) error {
	if err := s.modules.Delete(ctx, id); err != nil {
		return notFoundOr(err, "module not found", "failed to delete module")
	}
	s.logger.Info("module deleted", zap.String("module_id", id))
	return nil
}

// SetChallenge validates a raw challenge document and stores it on the module.
func (s *CatalogService) SetChallenge(ctx context.Context, moduleID string, req dto.ChallengeRequest) (*models.Module, error) {
	if len(req.Challenge) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "challenge is required")
	}
	challenge, err := models.ParseChallenge(req.Challenge)
	if err != nil {
		return nil, appErrors.Validation(err, err.Error())
	}
	return s.attach(ctx, moduleID, challenge)
}

// GenerateChallenge asks the content service for a challenge and attaches it.
func (s *CatalogService) GenerateChallenge(ctx context.Context, moduleID string, req dto.GenerateChallengeRequest) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid generation request")
	}
	if _, err := s.findModule(ctx, moduleID); err != nil {
		return nil, err
	}
	challenge, err := s.generator.GenerateChallenge(ctx, req.GenerateRequest)
	s.metrics.RecordAIRequest("generate", err)
	if err != nil {
		return nil, aiError(err, "challenge generation is temporarily unavailable")
	}
	return s.attach(ctx, moduleID, challenge)
}

func (s *CatalogService) attach(ctx context.Context, moduleID string, challenge *models.Challenge) (*models.Module, error) {
	if err := s.modules.UpdateChallenge(ctx, moduleID, challenge); err != nil {
		return nil, notFoundOr(err, "module not found", "failed to save challenge")
	}
	return s.findModule(ctx, moduleID)
}

// ListPaths returns learning paths, optionally only published ones.
func (s *CatalogService) ListPaths(ctx context.Context, publishedOnly bool) ([]models.LearningPath, error) {
	paths, err := s.paths.List(ctx, publishedOnly)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list learning paths")
	}
	return paths, nil
}

// GetPath returns a path. Unpublished paths are hidden from learners.
func (s *CatalogService) GetPath(ctx context.Context, id string, publishedOnly bool) (*models.LearningPath, error) {
	path, err := s.paths.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "learning path not found", "failed to load learning path")
	}
	if publishedOnly && !path.IsPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "learning path not found")
	}
	return path, nil
}

// CreatePath adds an unpublished learning path.
func (s *CatalogService) CreatePath(ctx context.Context, req dto.PathRequest) (*models.LearningPath, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid learning path payload")
	}
	path := &models.LearningPath{Title: req.Title, Description: req.Description, TargetRole: req.TargetRole}
	if err := s.paths.Create(ctx, path); err != nil {
		return nil, appErrors.Internal(err, "failed to create learning path")
	}
	path.Courses = []models.PathCourse{}
	return path, nil
}

// UpdatePath rewrites a path's descriptive fields.
func (s *CatalogService) UpdatePath(ctx context.Context, id string, req dto.PathRequest) (*models.LearningPath, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid learning path payload")
	}
	path, err := s.GetPath(ctx, id, false)
	if err != nil {
		return nil, err
	}
	path.Title = req.Title
	path.Description = req.Description
	path.TargetRole = req.TargetRole
	if err := s.paths.Update(ctx, path); err != nil {
		return nil, notFoundOr(err, "learning path not found", "failed to update learning path")
	}
	return path, nil
}

// SetPathCourses replaces the ordered member courses of a path.
func (s *CatalogService) SetPathCourses(ctx context.Context, id string, req dto.PathCoursesRequest) (*models.LearningPath, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid course list")
	}
	for _, courseID := range req.CourseIDs {
		if _, err := s.findCourse(ctx, courseID); err != nil {
			if errors.Is(err, appErrors.ErrNotFound) {
				return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "unknown course"), map[string]interface{}{"course_id": courseID})
			}
			return nil, err
		}
	}
	if err := s.paths.ReplaceCourses(ctx, id, req.CourseIDs); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course listed twice")
		}
		return nil, notFoundOr(err, "learning path not found", "failed to update learning path courses")
	}
	return s.GetPath(ctx, id, false)
}

// PublishPath toggles a path's visibility.
func (s *CatalogService) PublishPath(ctx context.Context, id string, req dto.PublishRequest) (*models.LearningPath, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "published is required")
	}
	if *req.Published {
		path, err := s.GetPath(ctx, id, false)
		if err != nil {
			return nil, err
		}
		if len(path.Courses) == 0 {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot publish an empty learning path")
		}
	}
	if err := s.paths.SetPublished(ctx, id, *req.Published); err != nil {
		return nil, notFoundOr(err, "learning path not found", "failed to publish learning path")
	}
	return s.GetPath(ctx, id, false)
}

func (s *CatalogService) findCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "course not found", "failed to load course")
	}
	return course, nil
}

func (s *CatalogService) findModule(ctx context.Context, id string) (*models.Module, error) {
	module, err := s.modules.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "module not found", "failed to load module")
	}
	return module, nil
}

// notFoundOr maps sql.ErrNoRows to NOT_FOUND and anything else to INTERNAL_ERROR.
func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Internal(err, internal)
}

func newPagination(page, size, total int) *models.Pagination {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
