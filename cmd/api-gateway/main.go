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

	_ "github.com/scorehub/scorehub-api/api/swagger"
	"github.com/scorehub/scorehub-api/internal/converter"
	"github.com/scorehub/scorehub-api/internal/dto"
	"github.com/scorehub/scorehub-api/internal/handler"
	"github.com/scorehub/scorehub-api/internal/middleware"
	"github.com/scorehub/scorehub-api/internal/models"
	"github.com/scorehub/scorehub-api/internal/repository"
	"github.com/scorehub/scorehub-api/internal/service"
	"github.com/scorehub/scorehub-api/pkg/blob"
	"github.com/scorehub/scorehub-api/pkg/cache"
	"github.com/scorehub/scorehub-api/pkg/config"
	"github.com/scorehub/scorehub-api/pkg/database"
	"github.com/scorehub/scorehub-api/pkg/jobs"
	"github.com/scorehub/scorehub-api/pkg/logger"
	corsmiddleware "github.com/scorehub/scorehub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/scorehub/scorehub-api/pkg/middleware/requestid"
	"github.com/scorehub/scorehub-api/pkg/progress"
)

// @title ScoreHub API
// @version 0.1.0
// @description Collaborative music transcription backend
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

	if err := dto.RegisterValidations(); err != nil {
		logr.Sugar().Fatalw("failed to register validations", "error", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	blobs, err := blob.NewFilesystemStore(cfg.Blob.BaseDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to open blob store", "error", err)
	}

	branchRepo, err := service.NewFilesystemBranchRepo(cfg.Blob.BranchDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to open branch workspace dir", "error", err)
	}

	var index service.SearchIndex
	if cfg.Search.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, search index disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			index = service.NewRedisSearchIndex(redisClient, cfg.Search.KeyPrefix, cfg.Search.DocumentTTL)
		}
	}

	// Repositories.
	users := repository.NewUserRepository(db)
	works := repository.NewWorkRepository(db)
	sources := repository.NewSourceRepository(db)
	revisions := repository.NewRevisionRepository(db)
	diffs := repository.NewDiffRepository(db)
	ratings := repository.NewRatingRepository(db)
	comments := repository.NewCommentRepository(db)

	// Services.
	metrics := service.NewMetricsService()
	broker := progress.NewBroker(32)
	runner := converter.NewExecRunner()

	authService := service.NewAuthService(users, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: "scorehub-api",
	})
	aggregation := service.NewAggregationService(works, sources, index, logr)

	pipelineService := service.NewPipelineService(
		revisions, sources, diffs, blobs, runner, broker, aggregation, metrics, logr,
		service.PipelineConfig{
			DerivedContainer:  cfg.Blob.DerivedContainer,
			ConverterTimeout:  cfg.Pipeline.ConverterTimeout,
			DiffTimeout:       cfg.Pipeline.DiffTimeout,
			NotationConverter: cfg.Pipeline.NotationConverter,
			Linearizer:        cfg.Pipeline.Linearizer,
			Renderer:          cfg.Pipeline.Renderer,
			DiffRenderer:      cfg.Pipeline.DiffRenderer,
			RenderEnabled:     cfg.Pipeline.RenderEnabled,
			DiffEnabled:       cfg.Pipeline.DiffEnabled,
		},
	)
	pipelineQueue := jobs.NewQueue("pipeline", pipelineService.Handle, jobs.QueueConfig{
		Workers:    cfg.Pipeline.WorkerConcurrency,
		MaxRetries: cfg.Pipeline.WorkerRetries,
		Logger:     logr,
	})

	var notifier service.Notifier
	var notificationQueue *jobs.Queue
	if cfg.Notifications.Enabled {
		notificationQueue = jobs.NewQueue("notifications",
			service.NotificationHandler(service.NewLogNotifier(logr)),
			jobs.QueueConfig{Workers: 1, Logger: logr})
		notifier = service.NewAsyncNotifier(notificationQueue, logr)
	}

	revisionService := service.NewRevisionService(
		works, sources, revisions, diffs, blobs, aggregation, pipelineQueue, branchRepo, notifier, logr,
		service.RevisionServiceConfig{
			RawContainer:   cfg.Blob.RawContainer,
			AllowedFormats: cfg.Blob.AllowedFormats,
		},
	)
	sourceService := service.NewSourceService(sources, aggregation, logr)
	workService := service.NewWorkService(works, sources, index, logr)
	ratingService := service.NewRatingService(ratings, revisions, logr)
	commentService := service.NewCommentService(comments, revisions, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	workHandler := handler.NewWorkHandler(workService, sourceService)
	sourceHandler := handler.NewSourceHandler(revisionService, sourceService, metrics, cfg.Blob.MaxUploadBytes)
	revisionHandler := handler.NewRevisionHandler(revisionService, sourceService, pipelineService, blobs, sourceHandler)
	ratingHandler := handler.NewRatingHandler(ratingService)
	commentHandler := handler.NewCommentHandler(commentService)
	progressHandler := handler.NewProgressHandler(broker, logr)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.GET("/auth/me", middleware.JWT(authService), authHandler.Me)
	api.POST("/auth/users", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), authHandler.CreateUser)

	worksGroup := api.Group("/works")
	{
		worksGroup.GET("", workHandler.List)
		worksGroup.GET("/:workId", workHandler.Get)
		worksGroup.PATCH("/:workId", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), workHandler.UpdateMetadata)
		worksGroup.DELETE("/:workId", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), workHandler.Purge)
		worksGroup.GET("/:workId/sources", workHandler.ListSources)
		worksGroup.GET("/:workId/export", workHandler.Export)
	}

	sourcesGroup := api.Group("/sources")
	{
		sourcesGroup.POST("", middleware.JWT(authService), sourceHandler.Upload)
		sourcesGroup.GET("/:sourceId", sourceHandler.Get)
		sourcesGroup.DELETE("/:sourceId", middleware.JWT(authService), sourceHandler.Delete)
		sourcesGroup.PUT("/:sourceId/verified", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), sourceHandler.Verify)
		sourcesGroup.POST("/:sourceId/flag", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), sourceHandler.Flag)
		sourcesGroup.DELETE("/:sourceId/flag", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), sourceHandler.ClearFlag)

		sourcesGroup.POST("/:sourceId/revisions", middleware.JWT(authService), revisionHandler.Create)
		sourcesGroup.GET("/:sourceId/revisions", middleware.OptionalJWT(authService), revisionHandler.List)
		sourcesGroup.GET("/:sourceId/revisions/:revisionId", middleware.OptionalJWT(authService), revisionHandler.Get)
		sourcesGroup.GET("/:sourceId/revisions/:revisionId/diff", middleware.OptionalJWT(authService), revisionHandler.Diff)
		sourcesGroup.POST("/:sourceId/revisions/:revisionId/approve", middleware.JWT(authService), revisionHandler.Approve)
		sourcesGroup.POST("/:sourceId/revisions/:revisionId/reject", middleware.JWT(authService), revisionHandler.Reject)
	}

	revisionsGroup := api.Group("/revisions")
	{
		revisionsGroup.GET("/:revisionId/ratings", ratingHandler.Histogram)
		revisionsGroup.POST("/:revisionId/ratings", middleware.JWT(authService), ratingHandler.Rate)
		revisionsGroup.GET("/:revisionId/comments", commentHandler.List)
		revisionsGroup.POST("/:revisionId/comments", middleware.JWT(authService), commentHandler.Create)
	}

	commentsGroup := api.Group("/comments")
	{
		commentsGroup.DELETE("/:commentId", middleware.JWT(authService), commentHandler.Delete)
		commentsGroup.POST("/:commentId/votes", middleware.JWT(authService), commentHandler.Vote)
	}

	api.GET("/progress/:correlationId", progressHandler.Stream)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipelineQueue.Start(ctx)
	defer pipelineQueue.Stop()
	if notificationQueue != nil {
		notificationQueue.Start(ctx)
		defer notificationQueue.Stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
