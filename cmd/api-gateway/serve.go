package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sql-academy-api/api/swagger"
	"github.com/noah-isme/sql-academy-api/internal/ai"
	"github.com/noah-isme/sql-academy-api/internal/handler"
	"github.com/noah-isme/sql-academy-api/internal/render"
	"github.com/noah-isme/sql-academy-api/internal/repository"
	"github.com/noah-isme/sql-academy-api/internal/router"
	"github.com/noah-isme/sql-academy-api/internal/service"
	"github.com/noah-isme/sql-academy-api/pkg/cache"
	"github.com/noah-isme/sql-academy-api/pkg/config"
	"github.com/noah-isme/sql-academy-api/pkg/database"
	"github.com/noah-isme/sql-academy-api/pkg/export"
	"github.com/noah-isme/sql-academy-api/pkg/jobs"
	"github.com/noah-isme/sql-academy-api/pkg/logger"
	"github.com/noah-isme/sql-academy-api/pkg/storage"
)

const certificateIssuer = "SQL Academy"

func newServeCommand() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(autoMigrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if autoMigrate {
		migrator, err := database.NewMigrator(db.DB, logr)
		if err != nil {
			return err
		}
		if err := migrator.Up(ctx); err != nil {
			return err
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.ProgressTTL, logr, cacheRepo != nil)

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	users := repository.NewUserRepository(db)
	plans := repository.NewPlanRepository(db)
	courses := repository.NewCourseRepository(db)
	modules := repository.NewModuleRepository(db)
	paths := repository.NewLearningPathRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	progressRows := repository.NewProgressRepository(db)
	certificates := repository.NewCertificateRepository(db)

	gemini := ai.NewClient(cfg.Gemini, logr)
	renderer := render.NewClient(cfg.Renderer, logr)

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	planSvc := service.NewPlanService(plans, users, cacheSvc, validate, logr, service.PlanServiceConfig{
		PermissionsTTL: cfg.Cache.PermissionsTTL,
		WebhookSecret:  cfg.Billing.WebhookSecret,
	})
	progressSvc := service.NewProgressService(courses, paths, enrollments, progressRows, cacheSvc, metrics, logr, cfg.Cache.ProgressTTL)
	userSvc := service.NewUserService(users, planSvc, progressRows, progressSvc, logr)
	catalogSvc := service.NewCatalogService(courses, modules, paths, gemini, metrics, validate, logr)
	learningSvc := service.NewLearningService(service.LearningDeps{
		Courses:     courses,
		Paths:       paths,
		Progress:    progressRows,
		Enrollments: enrollments,
		Permissions: planSvc,
		Grader:      gemini,
		Invalidator: progressSvc,
		Metrics:     metrics,
	}, validate, logr)

	worker := service.NewCertificateWorker(certificates, users, renderer, store, metrics, logr)
	queue := jobs.New[string]("certificates", worker.Handle, worker.GiveUp, jobs.Config{
		Workers:    cfg.Certificates.Workers,
		MaxRetries: cfg.Certificates.MaxRetries,
		RetryDelay: cfg.Certificates.RetryDelay,
		Logger:     logr,
	})
	certificateSvc := service.NewCertificateService(certificates, courses, users, progressSvc, queue, store, export.NewCertificatePDF(certificateIssuer), logr, service.CertificateServiceConfig{
		StaleAfter: cfg.Certificates.StaleAfter,
		PDFPath:    cfg.APIPrefix + "/certificates",
	})

	queue.Start(ctx)
	defer queue.Stop()

	scheduler := jobs.NewScheduler(logr, time.Minute)
	if err := scheduler.Add("certificate-requeue", cfg.Certificates.MaintenanceCron, func(ctx context.Context) {
		if n := certificateSvc.RequeueStale(ctx); n > 0 {
			logr.Info("stale certificates requeued", zap.Int("count", n))
		}
	}); err != nil {
		return err
	}
	scheduler.Start()

	// Signed asset links are only served when images live on local disk.
	certificateHandler := handler.NewCertificateHandler(certificateSvc, nil)
	if local, ok := store.(*storage.LocalStorage); ok {
		certificateHandler = handler.NewCertificateHandler(certificateSvc, local.Signer())
	}

	engine := router.New(router.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Users:        handler.NewUserHandler(userSvc, planSvc),
		Plans:        handler.NewPlanHandler(planSvc),
		Catalog:      handler.NewCatalogHandler(catalogSvc),
		Learning:     handler.NewLearningHandler(learningSvc, progressSvc),
		Certificates: certificateHandler,
		Metrics:      handler.NewMetricsHandler(metrics, db),
	}, router.Options{
		Prefix:         cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Tokens:         authSvc,
		Observer:       metrics,
		Logger:         logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scheduler.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logr.Info("server stopped")
	return nil
}
