// Package router mounts the HTTP API on a gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sql-academy-api/internal/handler"
	"github.com/noah-isme/sql-academy-api/internal/middleware"
	"github.com/noah-isme/sql-academy-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sql-academy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sql-academy-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	Users        *handler.UserHandler
	Plans        *handler.PlanHandler
	Catalog      *handler.CatalogHandler
	Learning     *handler.LearningHandler
	Certificates *handler.CertificateHandler
	Metrics      *handler.MetricsHandler
}

// Options carries the cross-cutting dependencies of the middleware chain.
type Options struct {
	Prefix         string
	AllowedOrigins []string
	EnableDocs     bool
	Tokens         middleware.TokenValidator
	Observer       middleware.RequestObserver
	Logger         *zap.Logger
}

// New builds an engine with the standard middleware chain and all routes.
func New(h Handlers, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Prefix == "" {
		opts.Prefix = "/api/v1"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Observer))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.Prefix)

	auth := api.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)

	api.GET("/courses", h.Catalog.ListCourses)
	api.GET("/courses/:id", h.Catalog.GetCourse)
	api.GET("/paths", h.Catalog.ListPaths)
	api.GET("/paths/:id", h.Catalog.GetPath)
	api.GET("/plans", h.Plans.List)
	api.GET("/plans/:tier", h.Plans.Get)
	api.POST("/billing/webhook", h.Plans.BillingWebhook)
	api.GET("/assets", h.Certificates.Asset)

	secured := api.Group("")
	secured.Use(middleware.JWT(opts.Tokens))

	secured.GET("/me", h.Users.Me)
	secured.GET("/me/progress", h.Learning.Progress)
	secured.GET("/me/permissions", h.Plans.Mine)
	secured.GET("/me/certificates", h.Certificates.List)

	secured.POST("/courses/:id/enter", h.Learning.EnterCourse)
	secured.POST("/courses/:id/modules/:moduleId/start", h.Learning.StartModule)
	secured.POST("/courses/:id/modules/:moduleId/next", h.Learning.NextModule)
	secured.POST("/courses/:id/modules/:moduleId/submit", h.Learning.Submit)
	secured.POST("/courses/:id/certificate", h.Certificates.Issue)
	secured.POST("/paths/:id/enroll", h.Learning.EnrollPath)

	secured.GET("/certificates/:id", h.Certificates.Get)
	secured.GET("/certificates/:id/pdf", h.Certificates.PDF)

	admin := secured.Group("/admin")
	admin.Use(middleware.RequireAdmin())

	admin.GET("/metrics", h.Metrics.Summary)

	admin.GET("/users", h.Users.List)
	admin.GET("/users/:id", h.Users.Get)
	admin.PUT("/users/:id/tier", h.Users.SetTier)
	admin.PATCH("/plans/:tier", h.Plans.Update)

	admin.GET("/courses", h.Catalog.AdminListCourses)
	admin.POST("/courses", h.Catalog.CreateCourse)
	admin.GET("/courses/:id", h.Catalog.AdminGetCourse)
	admin.PUT("/courses/:id", h.Catalog.UpdateCourse)
	admin.PUT("/courses/:id/status", h.Catalog.SetCourseStatus)
	admin.POST("/courses/:id/modules", h.Catalog.AddModule)

	admin.PUT("/modules/:moduleId", h.Catalog.UpdateModule)
	admin.DELETE("/modules/:moduleId", h.Catalog.DeleteModule)
	admin.PUT("/modules/:moduleId/position", h.Catalog.MoveModule)
	admin.PUT("/modules/:moduleId/challenge", h.Catalog.SetChallenge)
	admin.POST("/modules/:moduleId/challenge/generate", h.Catalog.GenerateChallenge)

	admin.GET("/paths", h.Catalog.AdminListPaths)
	admin.POST("/paths", h.Catalog.CreatePath)
	admin.PUT("/paths/:id", h.Catalog.UpdatePath)
	admin.PUT("/paths/:id/courses", h.Catalog.SetPathCourses)
	admin.PUT("/paths/:id/publish", h.Catalog.PublishPath)

	return r
}
