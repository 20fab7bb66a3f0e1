// Package api is the portal's REST API: auth, counties, tasks, and the
// county screens (profile, obligations, forms, reminders).
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civisight/portal/pkg/auth"
	"github.com/civisight/portal/pkg/config"
	"github.com/civisight/portal/pkg/health"
	"github.com/civisight/portal/pkg/middleware"
	"github.com/civisight/portal/pkg/models"
	"github.com/civisight/portal/pkg/observability"
	"github.com/civisight/portal/pkg/services"
)

// ReminderService is the part of services.ReminderService the API exposes.
type ReminderService interface {
	SendNow(ctx context.Context, taskID string) ([]*models.Reminder, error)
	ListByTask(ctx context.Context, taskID string) ([]*models.Reminder, error)
}

// Services are the business services behind the handlers.
type Services struct {
	Accounts    services.AccountService
	Counties    services.CountyService
	Tasks       services.TaskService
	Obligations services.ObligationService
	Forms       services.FormService
	Reminders   ReminderService
}

// Options carries the optional collaborators of a Server.
type Options struct {
	Logger  observability.Logger
	Metrics observability.MetricsClient
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// Health backs /health/ready. A nil checker always reports ready.
	Health *health.HealthChecker
}

// Server represents the API server
type Server struct {
	router  *gin.Engine
	server  *http.Server
	config  config.APIConfig
	auth    *auth.Service
	svc     Services
	limiter *middleware.RateLimiter
	health  *health.HealthChecker
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewServer creates the API server and registers its routes.
func NewServer(cfg config.APIConfig, authService *auth.Service, svc Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewNoOpMetricsClient()
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/api/v1"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.MaxUploadBytes

	s := &Server{
		router:  router,
		config:  cfg,
		auth:    authService,
		svc:     svc,
		limiter: middleware.NewRateLimiter(cfg.RateLimit, opts.Logger, opts.Metrics),
		health:  opts.Health,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		server: &http.Server{
			Addr:         cfg.ListenAddress,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(s.logger))
	router.Use(middleware.RequestLogger(s.logger, s.metrics))
	router.Use(s.limiter.GlobalLimit())

	s.setupRoutes(opts.MetricsHandler)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(metricsHandler http.Handler) {
	s.router.GET("/health/live", s.liveHandler)
	s.router.GET("/health/ready", s.readyHandler)
	if metricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := s.router.Group(s.config.BasePath)

	public := v1.Group("/auth")
	public.Use(s.limiter.UserLimit())
	public.POST("/signup", s.signup)
	public.POST("/login", s.login)

	secured := v1.Group("")
	secured.Use(s.auth.GinMiddleware(), s.limiter.UserLimit())
	secured.GET("/auth/me", s.me)

	secured.GET("/users", s.auth.RequireRole(models.RoleState), s.listUsers)

	counties := secured.Group("/counties")
	counties.GET("", s.listCounties)
	counties.GET("/:id", s.countyAccess, s.getCounty)
	counties.GET("/:id/tasks", s.countyAccess, s.listCountyTasks)
	counties.GET("/:id/profile", s.countyAccess, s.getProfile)
	counties.PUT("/:id/profile", s.countyAccess, s.updateProfile)
	counties.GET("/:id/obligations", s.countyAccess, s.listObligations)
	counties.GET("/:id/forms", s.countyAccess, s.listForms)
	counties.POST("/:id/forms", s.countyAccess, s.uploadForm)

	tasks := secured.Group("/tasks")
	tasks.POST("", s.auth.RequireRole(models.RoleState), s.createTask)
	tasks.GET("/mine", s.myTasks)
	tasks.PATCH("/:id/status", s.updateTaskStatus)
	tasks.DELETE("/:id", s.auth.RequireRole(models.RoleState), s.deleteTask)
	tasks.GET("/:id/reminders", s.listReminders)
	tasks.POST("/:id/reminders", s.auth.RequireRole(models.RoleState), s.sendReminder)

	secured.PATCH("/obligations/:id", s.updateObligation)
	secured.GET("/forms/:id/download", s.downloadForm)
}

// Start serves until Shutdown. The rate limiter's eviction loop stops with
// ctx.
func (s *Server) Start(ctx context.Context) error {
	go s.limiter.Run(ctx)
	s.logger.Info("API server listening", map[string]interface{}{"address": s.config.ListenAddress})
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the API server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) liveHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) readyHandler(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": health.StatusHealthy})
		return
	}
	results := s.health.RunChecks(c.Request.Context())
	if !health.IsHealthy(results) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": health.StatusUnhealthy, "components": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": health.StatusHealthy, "components": results})
}

// countyAccess keeps county users inside their own county.
func (s *Server) countyAccess(c *gin.Context) {
	p, ok := auth.GetPrincipal(c)
	if !ok {
		s.respondError(c, auth.ErrUnauthorized)
		return
	}
	if p.Role == models.RoleCounty && p.CountyID != c.Param("id") {
		s.respondError(c, services.ErrForbidden)
		return
	}
	c.Next()
}
