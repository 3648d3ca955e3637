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
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/lesson-reflection-api/api/swagger"
	"github.com/noah-isme/lesson-reflection-api/internal/handler"
	"github.com/noah-isme/lesson-reflection-api/internal/middleware"
	"github.com/noah-isme/lesson-reflection-api/internal/models"
	"github.com/noah-isme/lesson-reflection-api/internal/repository"
	"github.com/noah-isme/lesson-reflection-api/internal/service"
	"github.com/noah-isme/lesson-reflection-api/pkg/cache"
	"github.com/noah-isme/lesson-reflection-api/pkg/config"
	"github.com/noah-isme/lesson-reflection-api/pkg/database"
	"github.com/noah-isme/lesson-reflection-api/pkg/gworkspace"
	"github.com/noah-isme/lesson-reflection-api/pkg/jobs"
	"github.com/noah-isme/lesson-reflection-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lesson-reflection-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lesson-reflection-api/pkg/middleware/requestid"
	"github.com/noah-isme/lesson-reflection-api/pkg/sessionkey"
	"github.com/noah-isme/lesson-reflection-api/pkg/storage"
)

const (
	shutdownTimeout   = 15 * time.Second
	schedulerTimeout  = 10 * time.Minute
	recorderQueueSize = 256
)

// @title Lesson Reflection API
// @version 1.0.0
// @description Editing sessions, autosaved drafts and document generation for lesson reflections
// @BasePath /
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	guardianRepo := repository.NewGuardianRepository(db)
	reflectionRepo := repository.NewReflectionRepository(db)
	notificationLogRepo := repository.NewNotificationLogRepository(db)
	importRepo := repository.NewImportRepository(db)

	bootstrap := service.NewBootstrapService(service.BootstrapConfig{
		Source:          cfg.Bootstrap.Source,
		DefaultPassword: cfg.Auth.DefaultPassword,
	}, importRepo, func(ctx context.Context) error {
		return database.EnsureSchema(ctx, db)
	}, logr.Named("bootstrap"))
	if _, err := bootstrap.Run(ctx); err != nil {
		return fmt.Errorf("bootstrap master data: %w", err)
	}

	scheduler := jobs.NewScheduler(cfg.Location(), schedulerTimeout, logr.Named("scheduler"))
	if err := bootstrap.Schedule(scheduler, cfg.Bootstrap.SyncSchedule); err != nil {
		return fmt.Errorf("schedule master data resync: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	redisClient, draftRepo, err := newDraftRepository(cfg, logr)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	workspace, err := gworkspace.NewFromFiles(ctx, cfg.Google.ClientSecretsFile, cfg.Google.TokenFile, gworkspace.Options{
		RequestsPerSecond: cfg.Google.RequestsPerSecond,
		Burst:             cfg.Google.Burst,
		CallTimeout:       cfg.Google.CallTimeout,
		Logger:            logr.Named("gworkspace"),
		Observer:          metrics,
	})
	if err != nil {
		return fmt.Errorf("init google workspace client: %w", err)
	}

	validate := validator.New()
	keys := sessionkey.NewSigner(cfg.Session.Namespace, cfg.Session.KeySecret)

	templates := service.NewTemplateService(service.TemplateServiceConfig{
		Dir:         cfg.Templates.Dir,
		DefaultName: cfg.Templates.DefaultName,
		CacheTTL:    cfg.Templates.CacheTTL,
		Location:    cfg.Location(),
	}, logr.Named("templates"))
	if cfg.Templates.Watch {
		go func() {
			if err := templates.Watch(ctx); err != nil {
				logr.Warn("template watcher stopped", zap.Error(err))
			}
		}()
	}

	recorder := service.NewNotificationLogRecorder(notificationLogRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.RecordWorkers,
		BufferSize: recorderQueueSize,
		MaxRetries: cfg.Notifications.RecordRetries,
		Logger:     logr.Named("notification-log"),
	})
	recorder.Start(ctx)
	defer recorder.Close(shutdownTimeout)

	authSvc := service.NewAuthService(teacherRepo, validate, logr.Named("auth"), service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	masterData := service.NewMasterDataService(teacherRepo, studentRepo, guardianRepo, logr.Named("masterdata"))
	drafts := service.NewDraftService(draftRepo, keys, metrics, logr.Named("drafts"))
	contexts := service.NewContextService(templates, masterData, drafts, reflectionRepo, keys, validate, logr.Named("context"))
	materializer := service.NewMaterializerService(workspace, masterData, templates, cfg.Google.DefaultParentFolderID, logr.Named("materializer"))
	notifier := service.NewNotificationService(service.NotificationConfig{
		Enabled:     cfg.Notifications.Enabled,
		FromAddress: cfg.Notifications.FromAddress,
	}, workspace, masterData, recorder, metrics, logr.Named("notifications"))
	submissions := service.NewSubmissionService(templates, masterData, materializer, notifier, reflectionRepo, keys, metrics, validate, logr.Named("submissions"))
	history := service.NewHistoryService(reflectionRepo, notificationLogRepo, masterData, cfg.Location(), logr.Named("history"))

	checks := map[string]handler.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return pingPostgres(ctx, db) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.RegisterRoutes(r, cfg.APIPrefix, middleware.Auth(authSvc, cfg.Auth.Required), handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Session:     handler.NewSessionHandler(contexts, drafts, submissions, cfg.Drafts.MaxBodyBytes),
		Reflections: handler.NewReflectionHandler(history),
		Students:    handler.NewStudentHandler(masterData),
		Teachers:    handler.NewTeacherHandler(masterData),
		Templates:   handler.NewTemplateHandler(templates),
		Metrics:     handler.NewMetricsHandler(metrics, checks),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "draft_backend", cfg.Drafts.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type draftBackend interface {
	Save(ctx context.Context, draft models.Draft) error
	Load(ctx context.Context, sessionKey string) (*models.Draft, error)
}

func newDraftRepository(cfg *config.Config, logr *zap.Logger) (*redis.Client, draftBackend, error) {
	switch cfg.Drafts.Backend {
	case config.DraftBackendFile:
		store, err := storage.NewLocalStorage(cfg.Drafts.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open draft directory: %w", err)
		}
		return nil, repository.NewFileDraftRepository(store, logr.Named("drafts")), nil
	default:
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return client, repository.NewDraftRepository(client, cfg.Drafts.KeyPrefix, logr.Named("drafts")), nil
	}
}

func pingPostgres(ctx context.Context, db *sqlx.DB) error {
	return db.PingContext(ctx)
}
