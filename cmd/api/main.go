package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ndrozd/studentportal-api/api/swagger"
	"github.com/ndrozd/studentportal-api/internal/handler"
	"github.com/ndrozd/studentportal-api/internal/middleware"
	"github.com/ndrozd/studentportal-api/internal/models"
	"github.com/ndrozd/studentportal-api/internal/repository"
	"github.com/ndrozd/studentportal-api/internal/service"
	rediscache "github.com/ndrozd/studentportal-api/pkg/cache"
	"github.com/ndrozd/studentportal-api/pkg/config"
	"github.com/ndrozd/studentportal-api/pkg/database"
	"github.com/ndrozd/studentportal-api/pkg/locker"
	"github.com/ndrozd/studentportal-api/pkg/logger"
	corsmiddleware "github.com/ndrozd/studentportal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ndrozd/studentportal-api/pkg/middleware/requestid"
	"github.com/ndrozd/studentportal-api/pkg/storage"
)

// @title Student Portal API
// @version 1.0.0
// @description Course catalogue, submission checks, and defense slot scheduling
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Sugar().Fatalw("postgres connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := rediscache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	store, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("storage init failed", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	windowRepo := repository.NewWindowRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	signupRepo := repository.NewSignupRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Shared infrastructure.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Defense.CapacityCacheTTL, logr, true)
	locks := locker.NewRedisLocker(redisClient, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := service.NewNotifier(cfg.Notifications, metricsSvc, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	// Services.
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "studentportal-api",
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	windowSvc := service.NewWindowService(windowRepo, cacheSvc, nil, logr)
	capacitySvc := service.NewCapacityService(windowRepo, cacheRepo, metricsSvc, cfg.Defense, logr)
	courseSvc := service.NewCourseService(courseRepo, capacitySvc, nil, logr)
	taskSvc := service.NewTaskService(taskRepo, courseRepo, nil, logr)
	defenseSvc := service.NewDefenseService(db, bookingRepo, windowRepo, submissionRepo, taskRepo, courseRepo, locks, notifier, cfg.Defense, logr)
	signupSvc := service.NewSignupService(db, signupRepo, windowRepo, locks, notifier, cfg.Defense, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, taskRepo, store, signer, service.NewBasicContentChecker(), defenseSvc, notifier, cfg.Uploads, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, cacheSvc)
	taskHandler := handler.NewTaskHandler(taskSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc)
	windowHandler := handler.NewWindowHandler(windowSvc)
	defenseHandler := handler.NewDefenseHandler(defenseSvc)
	signupHandler := handler.NewSignupHandler(signupSvc)
	fileHandler := handler.NewFileHandler(signer, store)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix + "/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/register", middleware.OptionalJWT(authSvc), authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.PUT("/password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	api.GET("/files/:token", fileHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		protected.GET("/users/me", userHandler.Me)

		users := protected.Group("/users")
		users.Use(middleware.RequireRoles(models.RoleAdmin))
		{
			users.GET("", userHandler.List)
			users.POST("", userHandler.Create)
			users.GET("/:id", userHandler.Get)
			users.PUT("/:id", userHandler.Update)
			users.DELETE("/:id", userHandler.Delete)
		}

		courses := protected.Group("/courses")
		{
			courses.GET("", courseHandler.List)
			courses.POST("", courseHandler.Create)
			courses.GET("/:id", courseHandler.Get)
			courses.PUT("/:id", courseHandler.Update)
			courses.DELETE("/:id", courseHandler.Delete)
			courses.GET("/:id/files", courseHandler.ListFiles)
			courses.POST("/:id/files", courseHandler.AddFile)
			courses.GET("/:id/recommendation", courseHandler.Recommendation)
			courses.GET("/:id/tasks", taskHandler.ListByCourse)
			courses.POST("/:id/tasks", taskHandler.Create)
		}

		tasks := protected.Group("/tasks")
		{
			tasks.GET("/:id", taskHandler.Get)
			tasks.PUT("/:id", taskHandler.Update)
			tasks.DELETE("/:id", taskHandler.Delete)
			tasks.POST("/:id/submissions", submissionHandler.Submit)
		}

		submissions := protected.Group("/submissions")
		{
			submissions.GET("", submissionHandler.List)
			submissions.GET("/:id", submissionHandler.Get)
			submissions.GET("/:id/download", submissionHandler.DownloadURL)
		}

		windows := protected.Group("/windows")
		{
			windows.GET("", windowHandler.List)
			windows.POST("", windowHandler.Create)
			windows.GET("/:id", windowHandler.Get)
			windows.DELETE("/:id", windowHandler.Delete)
			windows.POST("/:id/signup", signupHandler.Signup)
			windows.DELETE("/:id/signup", signupHandler.Cancel)
			windows.GET("/:id/signup/position", signupHandler.Position)
			windows.GET("/:id/signups", signupHandler.List)
		}

		defenses := protected.Group("/defenses")
		{
			defenses.GET("", defenseHandler.ListMine)
			defenses.GET("/export", defenseHandler.ExportDay)
			defenses.POST("/:id/reschedule", defenseHandler.Reschedule)
		}
		protected.GET("/teachers/:id/defenses", defenseHandler.ListByTeacher)

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRoles(models.RoleAdmin))
		{
			admin.GET("/metrics", metricsHandler.Snapshot)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
