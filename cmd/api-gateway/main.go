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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-announcement-api/api/swagger"
	"github.com/noah-isme/sma-announcement-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-announcement-api/internal/middleware"
	"github.com/noah-isme/sma-announcement-api/internal/models"
	"github.com/noah-isme/sma-announcement-api/internal/repository"
	"github.com/noah-isme/sma-announcement-api/internal/service"
	"github.com/noah-isme/sma-announcement-api/pkg/cache"
	"github.com/noah-isme/sma-announcement-api/pkg/config"
	"github.com/noah-isme/sma-announcement-api/pkg/database"
	"github.com/noah-isme/sma-announcement-api/pkg/jobs"
	"github.com/noah-isme/sma-announcement-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-announcement-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-announcement-api/pkg/middleware/requestid"
)

// @title SMA Announcement API
// @version 1.0.0
// @description Announcement publishing, scheduling and read tracking
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, directory cache disabled", zap.Error(err))
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()

	announcementRepo := repository.NewAnnouncementRepository(db)
	readRepo := repository.NewAnnouncementReadRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Announcements.DirectoryCacheTTL, logr, cfg.Announcements.CacheEnabled && redisClient != nil)
	directory := service.NewBatchDirectory(batchRepo, userRepo, cacheSvc, cfg.Announcements.DirectoryCacheTTL, logr)
	auditWriter := service.NewAuditWriter(auditRepo, jobs.QueueConfig{Workers: 2, MaxRetries: 3, RetryDelay: time.Second}, logr)
	auditWriter.Start(context.Background())
	announcementSvc := service.NewAnnouncementService(announcementRepo, readRepo, directory, auditWriter, validator.New(), logr)
	tokenVerifier := service.NewTokenVerifier(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	scheduler := service.NewAnnouncementScheduler(announcementRepo, metricsSvc, cfg.Announcements.SchedulerInterval, logr)
	if cfg.Announcements.SchedulerEnabled {
		if err := scheduler.Start(ctx); err != nil {
			logr.Fatal("failed to start announcement scheduler", zap.Error(err))
		}
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(tokenVerifier))

	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	announcements := api.Group("/announcements")
	{
		announcements.GET("", announcementHandler.List)
		announcements.GET("/:id", announcementHandler.Get)
		announcements.POST("/:id/read", announcementHandler.MarkAsRead)

		authoring := announcements.Group("")
		authoring.Use(internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
		authoring.POST("", announcementHandler.Create)
		authoring.PATCH("/:id", announcementHandler.Update)
		authoring.DELETE("/:id", announcementHandler.Delete)
		authoring.GET("/:id/reads", announcementHandler.ExportReads)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	if err := scheduler.Stop(); err != nil {
		logr.Warn("announcement scheduler stop failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	auditWriter.Stop()
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
