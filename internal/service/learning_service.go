package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sql-academy-api/internal/access"
	"github.com/noah-isme/sql-academy-api/internal/ai"
	"github.com/noah-isme/sql-academy-api/internal/dto"
	"github.com/noah-isme/sql-academy-api/internal/models"
	appErrors "github.com/noah-isme/sql-academy-api/pkg/errors"
)

// mcqPoints is the XP for a correct multiple choice answer.
const mcqPoints = 50

// defaultPoints is awarded when the grader accepts an answer without scoring it.
// It is also the most a graded answer can earn.
const defaultPoints = 100

type learningCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type learningPathRepository interface {
	FindByID(ctx context.Context, id string) (*models.LearningPath, error)
}

type learningProgressRepository interface {
	ListByUser(ctx context.Context, userID string) ([]models.ModuleProgress, error)
	Find(ctx context.Context, userID, moduleID string) (*models.ModuleProgress, error)
	MarkStarted(ctx context.Context, userID, courseID, moduleID string) (bool, error)
	MarkCompleted(ctx context.Context, userID, courseID, moduleID string, xp int) (bool, error)
}

type learningEnrollmentRepository interface {
	Touch(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	EnsurePathEnrollment(ctx context.Context, userID, pathID string) (*models.PathEnrollment, error)
}

type permissionResolver interface {
	PermissionsFor(ctx context.Context, userID string) (*models.ResolvedPermissions, error)
}

// Grader judges free-form answers.
type Grader interface {
	Grade(ctx context.Context, challenge *models.Challenge, answer string) (*models.GradeResult, error)
}

type progressInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// LearningService handles module navigation under the lesson gate and answer submission.
type LearningService struct {
	courses     learningCourseRepository
	paths       learningPathRepository
	progress    learningProgressRepository
	enrollments learningEnrollmentRepository
	permissions permissionResolver
	grader      Grader
	invalidator progressInvalidator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// LearningDeps groups LearningService collaborators.
type LearningDeps struct {
	Courses     learningCourseRepository
	Paths       learningPathRepository
	Progress    learningProgressRepository
	Enrollments learningEnrollmentRepository
	Permissions permissionResolver
	Grader      Grader
	Invalidator progressInvalidator
	Metrics     *MetricsService
}

// NewLearningService constructs a LearningService.
func NewLearningService(deps LearningDeps, validate *validator.Validate, logger *zap.Logger) *LearningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &LearningService{
		courses:     deps.Courses,
		paths:       deps.Paths,
		progress:    deps.Progress,
		enrollments: deps.Enrollments,
		permissions: deps.Permissions,
		grader:      deps.Grader,
		invalidator: deps.Invalidator,
		metrics:     deps.Metrics,
		validator:   validate,
		logger:      logger,
	}
}

// EnterCourse opens the first module the learner has not completed.
func (s *LearningService) EnterCourse(ctx context.Context, userID, courseID string) (*dto.ModuleAccessResponse, error) {
	course, err := s.publishedCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(course.Modules) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course has no modules")
	}

	rows, err := s.progress.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load progress")
	}
	completed := make(map[string]struct{})
	for _, row := range rows {
		if row.Status == models.ProgressStatusCompleted {
			completed[row.ModuleID] = struct{}{}
		}
	}

	resume := &course.Modules[0]
	for i := range course.Modules {
		if _, done := completed[course.Modules[i].ID]; !done {
			resume = &course.Modules[i]
			break
		}
	}
	return s.open(ctx, userID, course, resume, rows)
}

// StartModule jumps directly to a module.
func (s *LearningService) StartModule(ctx context.Context, userID, courseID, moduleID string) (*dto.ModuleAccessResponse, error) {
	course, err := s.publishedCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	module := findModule(course, moduleID)
	if module == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found in course")
	}
	rows, err := s.progress.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load progress")
	}
	return s.open(ctx, userID, course, module, rows)
}

// NextModule opens the module following currentModuleID.
func (s *LearningService) NextModule(ctx context.Context, userID, courseID, currentModuleID string) (*dto.ModuleAccessResponse, error) {
	course, err := s.publishedCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i := range course.Modules {
		if course.Modules[i].ID == currentModuleID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found in course")
	}
	if idx == len(course.Modules)-1 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no module after the last one")
	}
	rows, err := s.progress.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load progress")
	}
	return s.open(ctx, userID, course, &course.Modules[idx+1], rows)
}

// open evaluates the gate and, on permit, records enrollment access and the module start.
func (s *LearningService) open(ctx context.Context, userID string, course *models.Course, module *models.Module, rows []models.ModuleProgress) (*dto.ModuleAccessResponse, error) {
	perms, err := s.permissions.PermissionsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision := access.Evaluate(access.Request{
		ModuleID:        module.ID,
		CourseModuleIDs: course.ModuleIDs(),
		Started:         access.StartedSet(rows),
		Limit:           perms.CourseLessonLimit,
	})
	s.metrics.RecordGateDecision(string(decision.Reason), decision.Allowed)
	if !decision.Allowed {
		s.logger.Info("lesson gate denied",
			zap.String("user_id", userID),
			zap.String("module_id", module.ID),
			zap.Int("limit", decision.Limit),
		)
		return nil, appErrors.WithDetails(appErrors.ErrUpgradeRequired, map[string]interface{}{
			"tier":              perms.Tier,
			"limit":             decision.Limit,
			"started_in_course": decision.StartedInCourse,
			"module_id":         module.ID,
		})
	}

	enrollment, err := s.enrollments.Touch(ctx, userID, course.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to record enrollment")
	}
	created, err := s.progress.MarkStarted(ctx, userID, course.ID, module.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to record module start")
	}
	s.invalidator.Invalidate(ctx, userID)

	view, err := learnerView(module)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render module")
	}
	return &dto.ModuleAccessResponse{
		CourseID:     course.ID,
		CourseTitle:  course.Title,
		Module:       view,
		TotalModules: len(course.Modules),
		Status:       string(enrollment.Status),
		Decision:     decision,
		Started:      created,
	}, nil
}

// Submit grades an answer for a started module and records completion.
func (s *LearningService) Submit(ctx context.Context, userID, courseID, moduleID string, req dto.SubmitAnswerRequest) (*dto.SubmitAnswerResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid submission")
	}
	course, err := s.publishedCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	module := findModule(course, moduleID)
	if module == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "module not found in course")
	}
	if module.Challenge == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "module has no challenge")
	}

	row, err := s.progress.Find(ctx, userID, moduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "module has not been started")
		}
		return nil, appErrors.Internal(err, "failed to load progress")
	}

	result, err := s.grade(ctx, module.Challenge, req)
	if err != nil {
		return nil, err
	}

	resp := &dto.SubmitAnswerResponse{Result: *result, AlreadyCompleted: row.Status == models.ProgressStatusCompleted}
	if !result.IsCorrect {
		return resp, nil
	}
	resp.Completed = true
	if resp.AlreadyCompleted {
		return resp, nil
	}

	xp := result.Points
	if xp <= 0 || xp > defaultPoints {
		xp = defaultPoints
	}
	awarded, err := s.progress.MarkCompleted(ctx, userID, courseID, moduleID, xp)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to record completion")
	}
	if awarded {
		resp.XPAwarded = xp
	}
	s.invalidator.Invalidate(ctx, userID)
	s.logger.Info("module completed",
		zap.String("user_id", userID),
		zap.String("module_id", moduleID),
		zap.Int("xp", resp.XPAwarded),
	)
	return resp, nil
}

func (s *LearningService) grade(ctx context.Context, challenge *models.Challenge, req dto.SubmitAnswerRequest) (*models.GradeResult, error) {
	if mcq, ok := challenge.MCQ(); ok {
		if req.Choice == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "choice is required for multiple choice")
		}
		if *req.Choice < 0 || *req.Choice >= len(mcq.Options) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "choice out of range")
		}
		correct := *req.Choice == mcq.CorrectAnswer
		result := &models.GradeResult{IsCorrect: correct, Feedback: mcq.Explanation}
		if correct {
			result.Points = mcqPoints
		} else {
			result.Tip = "Review the scenario and try another option."
		}
		return result, nil
	}

	if strings.TrimSpace(req.Answer) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "answer is required")
	}
	result, err := s.grader.Grade(ctx, challenge, req.Answer)
	s.metrics.RecordAIRequest("grade", err)
	if err != nil {
		return nil, aiError(err, "grading is temporarily unavailable")
	}
	return result, nil
}

// EnrollPath opts the learner into a published learning path.
func (s *LearningService) EnrollPath(ctx context.Context, userID, pathID string) (*models.PathEnrollment, error) {
	path, err := s.paths.FindByID(ctx, pathID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "learning path not found")
		}
		return nil, appErrors.Internal(err, "failed to load learning path")
	}
	if !path.IsPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "learning path not found")
	}

	enrollment, err := s.enrollments.EnsurePathEnrollment(ctx, userID, pathID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to enroll in learning path")
	}
	s.invalidator.Invalidate(ctx, userID)
	return enrollment, nil
}

func (s *LearningService) publishedCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}
	if course.Status != models.CourseStatusPublished {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return course, nil
}

func findModule(course *models.Course, moduleID string) *models.Module {
	for i := range course.Modules {
		if course.Modules[i].ID == moduleID {
			return &course.Modules[i]
		}
	}
	return nil
}

// answerKeys are challenge fields learners must not see.
var answerKeys = []string{"correct_answer", "expected_query", "explanation"}

func learnerView(module *models.Module) (dto.ModuleView, error) {
	view := dto.ModuleView{
		ID:          module.ID,
		CourseID:    module.CourseID,
		Position:    module.Position,
		Title:       module.Title,
		ContentType: module.ContentType,
	}
	if module.Challenge == nil {
		return view, nil
	}
	raw, err := json.Marshal(module.Challenge)
	if err != nil {
		return view, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return view, err
	}
	for _, k := range answerKeys {
		delete(fields, k)
	}
	view.Challenge, err = json.Marshal(fields)
	return view, err
}

// aiError maps content service failures onto AI_UNAVAILABLE.
func aiError(err error, message string) error {
	if errors.Is(err, ai.ErrMalformedOutput) || errors.Is(err, ai.ErrEmptyResponse) {
		message = fmt.Sprintf("%s: unusable response", message)
	}
	return appErrors.Wrap(err, appErrors.ErrAIUnavailable.Code, appErrors.ErrAIUnavailable.Status, message)
}
