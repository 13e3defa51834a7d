package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/thesis-lifecycle-api/api/swagger"
	"github.com/noah-isme/thesis-lifecycle-api/internal/handler"
	internalmiddleware "github.com/noah-isme/thesis-lifecycle-api/internal/middleware"
	"github.com/noah-isme/thesis-lifecycle-api/internal/models"
	"github.com/noah-isme/thesis-lifecycle-api/internal/repository"
	"github.com/noah-isme/thesis-lifecycle-api/internal/service"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/cache"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/config"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/database"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/jobs"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/thesis-lifecycle-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/thesis-lifecycle-api/pkg/middleware/requestid"
	"github.com/noah-isme/thesis-lifecycle-api/pkg/storage"
)

const stagingTTL = 24 * time.Hour

// @title Thesis Lifecycle API
// @version 1.0.0
// @description Thesis application and conclusion workflow
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, application cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	files, err := storage.NewLocalStorage(cfg.Uploads.BaseDir)
	if err != nil {
		logr.Fatal("failed to prepare upload storage", zap.Error(err))
	}
	if removed, err := files.CleanupOlderThan(storage.StagingRoot, stagingTTL); err != nil {
		logr.Warn("staging sweep failed", zap.Error(err))
	} else if len(removed) > 0 {
		logr.Info("removed stale staging areas", zap.Int("count", len(removed)))
	}

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	cleanupQueue := jobs.NewQueue(service.StagingCleanupJob, service.NewStagingCleanupHandler(files, logr), jobs.QueueConfig{
		Workers:    cfg.Uploads.CleanupWorkers,
		MaxRetries: cfg.Uploads.CleanupRetries,
		Logger:     logr,
	})
	cleanupQueue.Start(ctx)
	defer cleanupQueue.Stop()

	validate := validator.New()

	txManager := repository.NewTxManager(db)
	applicationRepo := repository.NewThesisApplicationRepository(db)
	thesisRepo := repository.NewThesisRepository(db)
	relationRepo := repository.NewThesisRelationRepository(db)
	historyRepo := repository.NewStatusHistoryRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "thesis")

	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Expiry: cfg.JWT.Expiration})
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, redisClient != nil)
	historySvc := service.NewStatusHistoryService(historyRepo, applicationRepo, logr)
	eligibilitySvc := service.NewEligibilityService(applicationRepo, thesisRepo, referenceRepo, logr)
	applicationSvc := service.NewApplicationService(txManager, applicationRepo, thesisRepo, referenceRepo, historySvc, cacheSvc, metricsSvc, validate, logr)
	resumePolicySvc := service.NewResumePolicyService(referenceRepo, cfg.Theses.ResumeRequiredCollegi, logr)
	documentSvc := service.NewDocumentService(nil, files, metricsSvc, logr)
	conclusionSvc := service.NewConclusionService(
		txManager,
		thesisRepo,
		relationRepo,
		referenceRepo,
		historySvc,
		resumePolicySvc,
		documentSvc,
		files,
		cleanupQueue,
		metricsSvc,
		validate,
		logr,
		service.ConclusionServiceConfig{MaxFileSize: cfg.Uploads.MaxFileSizeBytes},
	)
	signer := storage.NewSignedURLSigner(signingSecret(cfg), cfg.Uploads.SignedURLTTL)
	documentLinkSvc := service.NewDocumentLinkService(thesisRepo, signer, files, cfg.APIPrefix, logr)

	applicationHandler := handler.NewApplicationHandler(applicationSvc, eligibilitySvc, historySvc)
	conclusionHandler := handler.NewConclusionHandler(conclusionSvc, filepath.Join(files.BaseDir(), "tmp"))
	studentHandler := handler.NewStudentHandler(resumePolicySvc)
	documentHandler := handler.NewDocumentHandler(documentLinkSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.MaxMultipartMemory = 32 << 20

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metricsSvc != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	student := internalmiddleware.RequireRoles(models.RoleStudent)
	staff := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(tokenSvc))
	{
		applications := api.Group("/thesis-applications")
		applications.POST("", student, applicationHandler.Submit)
		applications.GET("", staff, applicationHandler.List)
		applications.GET("/last", student, applicationHandler.Last)
		applications.GET("/eligibility", student, applicationHandler.Eligibility)
		applications.POST("/:id/cancel", student, applicationHandler.Cancel)
		applications.GET("/:id/status-history", applicationHandler.History)
		applications.GET("/:id/status-history/export", applicationHandler.ExportHistory)

		api.POST("/thesis-conclusion", student, conclusionHandler.Submit)
		api.GET("/students/me/required-resume", student, studentHandler.RequiredResume)

		documents := api.Group("/thesis/documents")
		documents.GET("/:kind/link", student, documentHandler.Link)
		documents.GET("/download", documentHandler.Download)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// signingSecret falls back to the JWT secret when no dedicated download secret is configured.
func signingSecret(cfg *config.Config) string {
	if cfg.Uploads.SignedURLSecret != "" {
		return cfg.Uploads.SignedURLSecret
	}
	return cfg.JWT.Secret
}
