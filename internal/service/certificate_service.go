package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sql-academy-api/internal/dto"
	"github.com/noah-isme/sql-academy-api/internal/models"
	"github.com/noah-isme/sql-academy-api/internal/progress"
	"github.com/noah-isme/sql-academy-api/internal/render"
	"github.com/noah-isme/sql-academy-api/internal/repository"
	appErrors "github.com/noah-isme/sql-academy-api/pkg/errors"
	"github.com/noah-isme/sql-academy-api/pkg/export"
	"github.com/noah-isme/sql-academy-api/pkg/jobs"
	"github.com/noah-isme/sql-academy-api/pkg/storage"
)

type certificateStore interface {
	Create(ctx context.Context, cert *models.Certificate) error
	FindByID(ctx context.Context, id string) (*models.Certificate, error)
	FindByUserCourse(ctx context.Context, userID, courseID string) (*models.Certificate, error)
	ListByUser(ctx context.Context, userID string) ([]models.Certificate, error)
	MarkIssued(ctx context.Context, id, imageURL, storageKey string, issuedAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	Requeue(ctx context.Context, id string) error
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Certificate, error)
}

type certificateDispatcher interface {
	Enqueue(job jobs.Job[string]) error
}

type completionSource interface {
	CompletedCourses(ctx context.Context, userID string) (progress.CourseSet, error)
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type certificateRenderer interface {
	Render(ctx context.Context, cert render.Certificate) (string, error)
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// CertificateServiceConfig tunes certificate maintenance.
type CertificateServiceConfig struct {
	StaleAfter time.Duration
	// PDFPath is the route prefix used to build PDF links.
	PDFPath string
}

// CertificateService issues course certificates and serves their downloads.
type CertificateService struct {
	repo       certificateStore
	courses    courseFinder
	users      userFinder
	completion completionSource
	queue      certificateDispatcher
	store      storage.ObjectStore
	pdf        *export.CertificatePDF
	logger     *zap.Logger
	cfg        CertificateServiceConfig
}

// NewCertificateService constructs a CertificateService.
func NewCertificateService(repo certificateStore, courses courseFinder, users userFinder, completion completionSource, queue certificateDispatcher, store storage.ObjectStore, pdf *export.CertificatePDF, logger *zap.Logger, cfg CertificateServiceConfig) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pdf == nil {
		pdf = export.NewCertificatePDF("")
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.PDFPath == "" {
		cfg.PDFPath = "/api/v1/certificates"
	}
	return &CertificateService{
		repo:       repo,
		courses:    courses,
		users:      users,
		completion: completion,
		queue:      queue,
		store:      store,
		pdf:        pdf,
		logger:     logger,
		cfg:        cfg,
	}
}

// Issue requests a certificate for a completed course. Rendering happens in the background.
func (s *CertificateService) Issue(ctx context.Context, userID, courseID string) (*dto.CertificateResponse, error) {
	completed, err := s.completion.CompletedCourses(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !completed.Has(courseID) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is not completed")
	}

	existing, err := s.repo.FindByUserCourse(ctx, userID, courseID)
	switch {
	case err == nil && existing.Status == models.CertificateStatusFailed:
		if err := s.repo.Requeue(ctx, existing.ID); err != nil {
			return nil, appErrors.Internal(err, "failed to retry certificate")
		}
		existing.Status = models.CertificateStatusPending
		existing.LastError = nil
		s.enqueue(existing.ID)
		return s.response(existing), nil
	case err == nil:
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrConflict, "certificate already requested"),
			map[string]interface{}{"certificate_id": existing.ID, "status": existing.Status},
		)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Internal(err, "failed to load certificate")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, notFoundOr(err, "course not found", "failed to load course")
	}

	cert := &models.Certificate{UserID: userID, CourseID: courseID, Title: course.Title}
	if err := s.repo.Create(ctx, cert); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "certificate already requested")
		}
		return nil, appErrors.Internal(err, "failed to create certificate")
	}
	s.enqueue(cert.ID)
	s.logger.Info("certificate requested", zap.String("certificate_id", cert.ID), zap.String("user_id", userID), zap.String("course_id", courseID))
	return s.response(cert), nil
}

// enqueue is best effort; stale pending records are swept by RequeueStale.
func (s *CertificateService) enqueue(id string) {
	if err := s.queue.Enqueue(jobs.Job[string]{ID: id, Payload: id}); err != nil {
		s.logger.Sugar().Warnw("failed to enqueue certificate", "certificate_id", id, "error", err)
	}
}

// List returns the learner's certificates with download links.
func (s *CertificateService) List(ctx context.Context, userID string) ([]dto.CertificateResponse, error) {
	certs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list certificates")
	}
	out := make([]dto.CertificateResponse, 0, len(certs))
	for i := range certs {
		out = append(out, *s.response(&certs[i]))
	}
	return out, nil
}

// Get returns one of the learner's certificates.
func (s *CertificateService) Get(ctx context.Context, userID, id string) (*dto.CertificateResponse, error) {
	cert, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.response(cert), nil
}

// PDF renders the printable rendition of an issued certificate.
func (s *CertificateService) PDF(ctx context.Context, userID, id string) ([]byte, string, error) {
	cert, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	if cert.Status != models.CertificateStatusIssued || cert.IssuedAt == nil {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "certificate is not issued yet")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, "", notFoundOr(err, "user not found", "failed to load user")
	}
	data, err := s.pdf.Render(export.CertificateData{
		CertificateID: cert.ID,
		LearnerName:   displayName(user),
		CourseTitle:   cert.Title,
		IssuedAt:      *cert.IssuedAt,
	})
	if err != nil {
		return nil, "", appErrors.Internal(err, "failed to render certificate pdf")
	}
	return data, fmt.Sprintf("certificate-%s.pdf", cert.ID), nil
}

// OpenAsset streams a stored certificate image by key.
func (s *CertificateService) OpenAsset(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "asset not found")
		}
		return nil, appErrors.Internal(err, "failed to open asset")
	}
	return rc, nil
}

// RequeueStale re-dispatches certificates stuck in pending. Returns how many were queued.
func (s *CertificateService) RequeueStale(ctx context.Context) int {
	stale, err := s.repo.ListStalePending(ctx, time.Now().UTC().Add(-s.cfg.StaleAfter), 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to list stale certificates", "error", err)
		return 0
	}
	for _, cert := range stale {
		s.enqueue(cert.ID)
	}
	if len(stale) > 0 {
		s.logger.Info("requeued stale certificates", zap.Int("count", len(stale)))
	}
	return len(stale)
}

func (s *CertificateService) owned(ctx context.Context, userID, id string) (*models.Certificate, error) {
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "certificate not found", "failed to load certificate")
	}
	if cert.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
	}
	return cert, nil
}

func (s *CertificateService) response(cert *models.Certificate) *dto.CertificateResponse {
	resp := &dto.CertificateResponse{Certificate: *cert}
	if cert.Status != models.CertificateStatusIssued {
		return resp
	}
	resp.PDFURL = fmt.Sprintf("%s/%s/pdf", s.cfg.PDFPath, cert.ID)
	if cert.StorageKey != nil && s.store != nil {
		if url, err := s.store.URL(*cert.StorageKey); err == nil {
			resp.DownloadURL = url
		} else {
			s.logger.Warn("failed to sign certificate url", zap.String("certificate_id", cert.ID), zap.Error(err))
		}
	}
	return resp
}

func displayName(user *models.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Email
}

// CertificateWorker renders pending certificates from the queue.
type CertificateWorker struct {
	repo     certificateStore
	users    userFinder
	renderer certificateRenderer
	store    storage.ObjectStore
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewCertificateWorker constructs a worker.
func NewCertificateWorker(repo certificateStore, users userFinder, renderer certificateRenderer, store storage.ObjectStore, metrics *MetricsService, logger *zap.Logger) *CertificateWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateWorker{repo: repo, users: users, renderer: renderer, store: store, metrics: metrics, logger: logger}
}

// Handle renders, stores and marks one certificate issued. Errors are retried by the queue.
func (w *CertificateWorker) Handle(ctx context.Context, job jobs.Job[string]) error {
	cert, err := w.repo.FindByID(ctx, job.Payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Warn("certificate vanished before rendering", zap.String("certificate_id", job.Payload))
			return nil
		}
		return err
	}
	if cert.Status != models.CertificateStatusPending {
		return nil
	}

	user, err := w.users.FindByID(ctx, cert.UserID)
	if err != nil {
		return fmt.Errorf("load learner: %w", err)
	}
	issuedAt := time.Now().UTC()

	imageURL, err := w.renderer.Render(ctx, render.Certificate{
		CertificateID: cert.ID,
		LearnerName:   displayName(user),
		CourseTitle:   cert.Title,
		IssuedAt:      issuedAt,
	})
	if err != nil {
		w.metrics.RecordCertificateJob("retry")
		return err
	}
	data, contentType, err := w.renderer.Fetch(ctx, imageURL)
	if err != nil {
		w.metrics.RecordCertificateJob("retry")
		return err
	}

	key := fmt.Sprintf("certificates/%s/%s.png", cert.UserID, cert.ID)
	if err := w.store.Put(ctx, key, contentType, data); err != nil {
		w.metrics.RecordCertificateJob("retry")
		return fmt.Errorf("store certificate image: %w", err)
	}
	if err := w.repo.MarkIssued(ctx, cert.ID, imageURL, key, issuedAt); err != nil {
		return fmt.Errorf("mark certificate issued: %w", err)
	}
	w.metrics.RecordCertificateJob("issued")
	w.logger.Info("certificate issued", zap.String("certificate_id", cert.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// GiveUp records the final failure once the queue has exhausted its retries.
func (w *CertificateWorker) GiveUp(ctx context.Context, job jobs.Job[string], cause error) {
	w.metrics.RecordCertificateJob("failed")
	if err := w.repo.MarkFailed(context.WithoutCancel(ctx), job.Payload, cause.Error()); err != nil {
		w.logger.Sugar().Warnw("failed to mark certificate failed", "certificate_id", job.Payload, "error", err)
	}
}
