package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sql-academy-api/internal/models"
	"github.com/noah-isme/sql-academy-api/internal/progress"
	appErrors "github.com/noah-isme/sql-academy-api/pkg/errors"
)

type publishedCourseSource interface {
	ListPublished(ctx context.Context) ([]models.Course, error)
}

type pathSource interface {
	List(ctx context.Context, publishedOnly bool) ([]models.LearningPath, error)
}

type progressEnrollmentStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
	ListPathEnrollments(ctx context.Context, userID string) ([]models.PathEnrollment, error)
	UpdateStatus(ctx context.Context, userID, courseID string, status models.EnrollmentStatus) error
	UpdatePathStatus(ctx context.Context, userID, pathID string, status models.EnrollmentStatus) error
}

type progressRowSource interface {
	ListByUser(ctx context.Context, userID string) ([]models.ModuleProgress, error)
}

// ProgressSnapshot is the cached per-user view of reconciled progress.
type ProgressSnapshot struct {
	Progress     *progress.Result       `json:"progress"`
	Stats        progress.Stats         `json:"stats"`
	Achievements []progress.Achievement `json:"achievements"`
	GeneratedAt  time.Time              `json:"generated_at"`
}

// ProgressService gathers a learner's records, reconciles them and applies status corrections.
type ProgressService struct {
	courses     publishedCourseSource
	paths       pathSource
	enrollments progressEnrollmentStore
	rows        progressRowSource
	cache       *CacheService
	metrics     *MetricsService
	logger      *zap.Logger
	ttl         time.Duration
}

// NewProgressService constructs a ProgressService.
func NewProgressService(courses publishedCourseSource, paths pathSource, enrollments progressEnrollmentStore, rows progressRowSource, cache *CacheService, metrics *MetricsService, logger *zap.Logger, ttl time.Duration) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		courses:     courses,
		paths:       paths,
		enrollments: enrollments,
		rows:        rows,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		ttl:         ttl,
	}
}

// Snapshot returns the learner's reconciled progress, from cache when fresh.
func (s *ProgressService) Snapshot(ctx context.Context, userID string) (*ProgressSnapshot, error) {
	snapshot, _, err := s.Cached(ctx, userID)
	return snapshot, err
}

// Cached is Snapshot that also reports whether the cache served the result.
func (s *ProgressService) Cached(ctx context.Context, userID string) (*ProgressSnapshot, bool, error) {
	key := progressCacheKey(userID)
	var cached ProgressSnapshot
	if hit, _ := s.cache.Get(ctx, key, &cached); hit && cached.Progress != nil {
		return &cached, true, nil
	}

	snapshot, err := s.Refresh(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	_ = s.cache.Set(ctx, key, snapshot, s.ttl)
	return snapshot, false, nil
}

// Refresh recomputes progress without consulting the cache.
func (s *ProgressService) Refresh(ctx context.Context, userID string) (*ProgressSnapshot, error) {
	start := time.Now()
	in := progress.Input{UserID: userID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Courses, err = s.courses.ListPublished(gctx)
		return err
	})
	g.Go(func() (err error) {
		in.Paths, err = s.paths.List(gctx, true)
		return err
	})
	g.Go(func() (err error) {
		in.Enrollments, err = s.enrollments.ListByUser(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		in.Progress, err = s.rows.ListByUser(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		in.PathEnrollments, err = s.enrollments.ListPathEnrollments(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Internal(err, "failed to load progress records")
	}

	result, err := progress.Reconcile(in)
	if err != nil {
		return nil, appErrors.Validation(err, "cannot reconcile progress")
	}
	s.apply(ctx, result.Writes)
	s.metrics.ObserveReconcile(time.Since(start))

	stats := progress.StatsFrom(in.Progress, result)
	return &ProgressSnapshot{
		Progress:     result,
		Stats:        stats,
		Achievements: progress.Achievements(stats),
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// apply persists status corrections. Failures are logged; the next run re-derives them.
func (s *ProgressService) apply(ctx context.Context, writes []progress.StatusWrite) {
	for _, w := range writes {
		var err error
		switch w.Kind {
		case progress.WritePathEnrollment:
			err = s.enrollments.UpdatePathStatus(ctx, w.UserID, w.EntityID, w.To)
		case progress.WriteCourseEnrollment:
			err = s.enrollments.UpdateStatus(ctx, w.UserID, w.EntityID, w.To)
		}
		s.metrics.RecordStatusWrite(string(w.Kind), err)
		if err != nil {
			s.logger.Warn("failed to apply status write",
				zap.String("kind", string(w.Kind)),
				zap.String("user_id", w.UserID),
				zap.String("entity_id", w.EntityID),
				zap.String("to", string(w.To)),
				zap.Error(err),
			)
			continue
		}
		s.logger.Debug("status write applied",
			zap.String("kind", string(w.Kind)),
			zap.String("entity_id", w.EntityID),
			zap.String("from", string(w.From)),
			zap.String("to", string(w.To)),
		)
	}
}

// CompletedCourses returns the ids of courses the learner has finished.
func (s *ProgressService) CompletedCourses(ctx context.Context, userID string) (progress.CourseSet, error) {
	snapshot, err := s.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return snapshot.Progress.CompletedCourseIDs, nil
}

// Invalidate drops the learner's cached progress.
func (s *ProgressService) Invalidate(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, progressCacheKey(userID)); err != nil {
		s.logger.Warn("failed to invalidate progress cache", zap.String("user_id", userID), zap.Error(err))
	}
}
