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
	"go.uber.org/zap"

	_ "github.com/noah-isme/alumni-network-api/api/swagger"
	dbmigrations "github.com/noah-isme/alumni-network-api/db"
	"github.com/noah-isme/alumni-network-api/internal/handler"
	internalmiddleware "github.com/noah-isme/alumni-network-api/internal/middleware"
	"github.com/noah-isme/alumni-network-api/internal/repository"
	"github.com/noah-isme/alumni-network-api/internal/service"
	"github.com/noah-isme/alumni-network-api/pkg/cache"
	"github.com/noah-isme/alumni-network-api/pkg/config"
	"github.com/noah-isme/alumni-network-api/pkg/database"
	"github.com/noah-isme/alumni-network-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/alumni-network-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/alumni-network-api/pkg/middleware/requestid"
)

// @title Alumni Network Workflow API
// @version 1.0.0
// @description Connection requests, event registrations and job applications.
// @BasePath /api/v1
// @schemes http https
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

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		migrator, err := database.NewMigrator(cfg.Database, dbmigrations.Migrations, dbmigrations.MigrationsDir, logr)
		if err != nil {
			return fmt.Errorf("init migrator: %w", err)
		}
		err = migrator.Up()
		migrator.Close()
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	metrics := service.NewMetricsService()
	readiness := map[string]handler.ReadinessCheck{"postgres": db.PingContext}

	var cacheRepo service.CacheRepository
	if cfg.CapacityCache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		cacheRepo = repository.NewCacheRepository(client, "alumni")
		readiness["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	capacityCache := service.NewCacheService(cacheRepo, metrics, cfg.CapacityCache.TTL, logr, cfg.CapacityCache.Enabled)

	notifications := service.NewNotificationService(service.NewLogNotifier(logr), service.NotificationConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, metrics, logr)
	notifications.Start(ctx)
	defer notifications.Stop()

	identity := service.NewIdentityService(service.IdentityConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		TokenTTL: cfg.JWT.Expiration,
	}, logr)

	validate := validator.New()
	workflowCfg := service.WorkflowConfig{
		StoreTimeout:  cfg.Workflow.StoreTimeout,
		RetryAttempts: cfg.Workflow.RetryAttempts,
		RetryInterval: cfg.Workflow.RetryInterval,
	}
	workflowOpts := []service.WorkflowOption{
		service.WithAudit(repository.NewAuditRepository(db)),
		service.WithNotifications(notifications),
		service.WithMetrics(metrics),
	}

	connectionSvc := service.NewConnectionService(
		repository.NewConnectionRepository(db),
		repository.NewUserRepository(db),
		validate, workflowCfg, logr, workflowOpts...,
	)
	registrationSvc := service.NewRegistrationService(
		repository.NewEventRepository(db, cfg.Workflow.LockTimeout),
		repository.NewRegistrationRepository(db),
		service.NewAdmissionController(),
		validate, workflowCfg, logr, workflowOpts,
		service.WithCapacityCache(capacityCache),
	)
	applicationSvc := service.NewApplicationService(
		repository.NewJobRepository(db),
		repository.NewApplicationRepository(db),
		validate, workflowCfg, logr, workflowOpts...,
	)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS))

	handler.RegisterOpsRoutes(r, handler.NewOpsHandler(metrics, readiness))
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, internalmiddleware.JWT(identity), internalmiddleware.RequestMeta())
	handler.RegisterWorkflowRoutes(api, handler.WorkflowHandlers{
		Connections:   handler.NewConnectionHandler(connectionSvc),
		Registrations: handler.NewRegistrationHandler(registrationSvc),
		Applications:  handler.NewApplicationHandler(applicationSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
