package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/theprantadutta/filerunner/api/swagger"
	"github.com/theprantadutta/filerunner/internal/handler"
	"github.com/theprantadutta/filerunner/internal/middleware"
	"github.com/theprantadutta/filerunner/internal/repository"
	"github.com/theprantadutta/filerunner/internal/service"
	"github.com/theprantadutta/filerunner/pkg/cache"
	"github.com/theprantadutta/filerunner/pkg/config"
	"github.com/theprantadutta/filerunner/pkg/database"
	"github.com/theprantadutta/filerunner/pkg/logger"
	corsmiddleware "github.com/theprantadutta/filerunner/pkg/middleware/cors"
	reqidmiddleware "github.com/theprantadutta/filerunner/pkg/middleware/requestid"
	"github.com/theprantadutta/filerunner/pkg/storage"
)

// @title FileRunner API
// @version 1.0.0
// @description File hosting backend with rotating refresh credentials, project API keys and per-folder visibility
// @BasePath /api
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.MigrationsDir); err != nil {
			logr.Sugar().Fatalw("failed to run migrations", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, rate limiting disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	localStore, err := storage.NewLocalStorage(cfg.Storage.Path)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare storage directory", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	folderRepo := repository.NewFolderRepository(db)
	fileRepo := repository.NewFileRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	tokenSvc := service.NewTokenService(tokenRepo, userRepo, auditRepo, metricsSvc, logr, service.TokenConfig{
		Secret:        cfg.JWT.Secret,
		Issuer:        cfg.JWT.Issuer,
		AccessExpiry:  cfg.JWT.AccessExpiry,
		RefreshExpiry: cfg.JWT.RefreshExpiry,
	})
	authSvc := service.NewAuthService(userRepo, tokenSvc, auditRepo, validate, logr, service.AuthConfig{
		AllowSignup:   cfg.Auth.AllowSignup,
		AdminEmail:    cfg.Auth.AdminEmail,
		AdminPassword: cfg.Auth.AdminPassword,
		BcryptCost:    cfg.Auth.BcryptCost,
	})
	accessSvc := service.NewAccessService(projectRepo, logr)
	projectSvc := service.NewProjectService(projectRepo, localStore, auditRepo, validate, logr)
	folderSvc := service.NewFolderService(folderRepo, projectRepo, fileRepo, localStore, auditRepo, validate, logr)
	fileSvc := service.NewFileService(fileRepo, folderRepo, projectRepo, localStore, signer, accessSvc, auditRepo, metricsSvc, validate, logr, service.FileConfig{
		MaxFileSizeBytes: cfg.Storage.MaxFileSizeBytes,
		APIPrefix:        cfg.APIPrefix,
	})
	auditSvc := service.NewAuditService(auditRepo, logr)
	maintenanceSvc := service.NewMaintenanceService(tokenSvc, logr, service.MaintenanceConfig{
		PurgeInterval:  cfg.Maintenance.PurgeInterval,
		TokenRetention: cfg.Maintenance.TokenRetention,
		Workers:        cfg.Maintenance.WorkerConcurrency,
		Retries:        cfg.Maintenance.WorkerRetries,
	})

	var limiter *service.RateLimitService
	if redisClient != nil {
		limiter = service.NewRateLimitService(redisClient, cfg.RateLimit.Window, logr)
	} else {
		limiter = service.NewRateLimitService(nil, cfg.RateLimit.Window, logr)
	}
	authPerWindow, uploadPerWindow := 0, 0
	if cfg.RateLimit.Enabled {
		authPerWindow = cfg.RateLimit.AuthPerWindow
		uploadPerWindow = cfg.RateLimit.UploadPerWindow
	}

	var redisPing handler.Pinger
	if redisClient != nil {
		redisPing = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	authHandler := handler.NewAuthHandler(authSvc)
	projectHandler := handler.NewProjectHandler(projectSvc)
	folderHandler := handler.NewFolderHandler(folderSvc)
	fileHandler := handler.NewFileHandler(fileSvc, accessSvc)
	adminHandler := handler.NewAdminHandler(maintenanceSvc, metricsSvc, auditSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"postgres": db.PingContext,
		"redis":    redisPing,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	authLimit := middleware.RateLimit(limiter, "auth", authPerWindow)
	auth.POST("/register", authLimit, authHandler.Register)
	auth.POST("/login", authLimit, authHandler.Login)
	auth.POST("/refresh", authLimit, authHandler.Refresh)

	session := auth.Group("", middleware.JWT(tokenSvc))
	session.POST("/logout", authHandler.Logout)
	session.POST("/logout-all", authHandler.LogoutAll)
	session.GET("/me", authHandler.Me)
	session.GET("/sessions", authHandler.Sessions)
	session.PUT("/change-password", authHandler.ChangePassword)

	owner := api.Group("", middleware.JWT(tokenSvc))
	owner.POST("/projects", projectHandler.Create)
	owner.GET("/projects", projectHandler.List)
	owner.GET("/projects/:id", projectHandler.Get)
	owner.PUT("/projects/:id", projectHandler.Update)
	owner.DELETE("/projects/:id", projectHandler.Delete)
	owner.POST("/projects/:id/regenerate-key", projectHandler.RegenerateKey)
	owner.GET("/projects/:id/report", projectHandler.UsageReport)
	owner.GET("/projects/:id/files", fileHandler.ListForProject)
	owner.POST("/folders", folderHandler.Create)
	owner.GET("/folders", folderHandler.List)
	owner.PUT("/folders/:id/visibility", folderHandler.UpdateVisibility)
	owner.POST("/files/bulk-delete", fileHandler.BulkDelete)
	owner.GET("/files/:id/signed-url", fileHandler.SignedURL)

	keyed := api.Group("", middleware.APIKey(accessSvc))
	uploadLimit := middleware.RateLimit(limiter, "upload", uploadPerWindow)
	keyed.POST("/upload", uploadLimit, fileHandler.Upload)
	keyed.POST("/folders/delete", uploadLimit, folderHandler.PurgeFiles)

	// Downloads carry their own credentials; deletes accept either a bearer
	// token or the project key, resolved inside the handler.
	api.GET("/files/:id", fileHandler.Download)
	api.DELETE("/files/:id", middleware.OptionalJWT(tokenSvc), fileHandler.Delete)

	admin := api.Group("/admin", middleware.JWT(tokenSvc), middleware.RequireAdmin())
	admin.POST("/maintenance/purge", adminHandler.PurgeTokens)
	admin.GET("/stats", adminHandler.Stats)
	admin.GET("/audit-logs", adminHandler.AuditLogs)

	if err := authSvc.Bootstrap(ctx); err != nil {
		logr.Sugar().Warnw("admin bootstrap failed", "error", err)
	}

	maintenanceSvc.Start(ctx)
	defer maintenanceSvc.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server shutdown error", "error", err)
		}
	}()

	logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
