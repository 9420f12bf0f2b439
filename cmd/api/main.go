package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edulink-app/assignment-api/api/swagger"
	"github.com/edulink-app/assignment-api/internal/handler"
	"github.com/edulink-app/assignment-api/internal/middleware"
	"github.com/edulink-app/assignment-api/internal/models"
	"github.com/edulink-app/assignment-api/internal/repository"
	"github.com/edulink-app/assignment-api/internal/service"
	"github.com/edulink-app/assignment-api/pkg/cache"
	"github.com/edulink-app/assignment-api/pkg/config"
	"github.com/edulink-app/assignment-api/pkg/database"
	"github.com/edulink-app/assignment-api/pkg/jobs"
	"github.com/edulink-app/assignment-api/pkg/logger"
	corsmiddleware "github.com/edulink-app/assignment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edulink-app/assignment-api/pkg/middleware/requestid"
	"github.com/edulink-app/assignment-api/pkg/speech"
	"github.com/edulink-app/assignment-api/pkg/storage"
)

// @title Assignment API
// @version 1.0.0
// @description Assignment, progress tracking and statistics backend
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(cfg.Database); err != nil {
		logr.Sugar().Fatalw("failed to run migrations", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Stats.CacheTTL, logr, true)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, userRepo, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, userRepo, cacheSvc, validate, logr)

	speechClient := speech.NewClient(cfg.Speech.BaseURL, cfg.Speech.Timeout)
	progressSvc := service.NewProgressService(assignmentRepo, progressRepo, speechClient, userRepo, cacheSvc, metricsSvc, validate, logr)

	statsSvc := service.NewStatsService(statsRepo, assignmentRepo, progressRepo, classRepo, cacheSvc, metricsSvc, cfg.Stats.CacheTTL, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := service.NewPublishScheduler(assignmentRepo, cacheSvc, cfg.Publisher.Interval, logr)
	if cfg.Publisher.Enabled {
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(statsRepo, classRepo, store, signer, service.ExportConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		}, validate, logr, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportSvc.Start(ctx)
		defer exportSvc.Stop()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	classHandler := handler.NewClassHandler(classSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	progressHandler := handler.NewProgressHandler(progressSvc)
	statsHandler := handler.NewStatsHandler(statsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("")
		authed.Use(middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	users := api.Group("/users")
	users.Use(middleware.JWT(authSvc))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
		users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Deactivate)
	}

	classes := api.Group("/classes")
	classes.Use(middleware.JWT(authSvc))
	{
		classes.GET("", classHandler.List)
		classes.GET("/:id", classHandler.Get)
		classes.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), classHandler.Create)
		classes.PUT("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), classHandler.Update)
		classes.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), classHandler.Delete)
		classes.GET("/:id/students", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), classHandler.ListMembers)
		classes.POST("/:id/students", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), classHandler.AddStudent)
		classes.DELETE("/:id/students/:studentId", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), classHandler.RemoveStudent)
		classes.GET("/:id/stats", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), statsHandler.Class)
	}

	assignments := api.Group("/assignments")
	assignments.Use(middleware.JWT(authSvc))
	{
		assignments.GET("", assignmentHandler.List)
		assignments.GET("/:id", assignmentHandler.Get)

		writes := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
		assignments.POST("", writes, assignmentHandler.Create)
		assignments.PUT("/:id", writes, assignmentHandler.Update)
		assignments.DELETE("/:id", writes, assignmentHandler.Delete)
		assignments.POST("/reading", writes, assignmentHandler.CreateReading)
		assignments.POST("/video", writes, assignmentHandler.CreateVideo)
		assignments.POST("/pronunciation", writes, assignmentHandler.CreatePronunciation)

		assignments.POST("/:id/submit-progress", middleware.RequireRoles(models.RoleStudent), progressHandler.Submit)
		assignments.GET("/:id/progress", progressHandler.List)
		assignments.GET("/:id/progress/:studentId", progressHandler.Status)
		assignments.GET("/:id/stats", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), statsHandler.Assignment)
	}

	ielts := api.Group("/ielts")
	ielts.Use(middleware.JWT(authSvc))
	{
		ielts.GET("/assignments", assignmentHandler.ListIELTS)
		ielts.POST("/assignments", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), assignmentHandler.CreateIELTS)
	}

	students := api.Group("/students")
	students.Use(middleware.JWT(authSvc))
	students.GET("/:id/stats", middleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher), "SELF"), statsHandler.Student)

	stats := api.Group("/stats")
	stats.Use(middleware.JWT(authSvc))
	stats.GET("/school", middleware.RequireRoles(models.RoleAdmin), statsHandler.School)

	stats.GET("/system", middleware.RequireRoles(models.RoleAdmin), metricsHandler.System)

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		exports := api.Group("/exports")
		{
			// Download links are signed; the token is the only credential needed.
			exports.GET("/download/:token", exportHandler.Download)

			authed := exports.Group("")
			authed.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
			authed.POST("/class-report", exportHandler.RequestClassReport)
			authed.GET("/:id", exportHandler.Get)
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
