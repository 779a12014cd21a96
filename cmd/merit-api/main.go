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
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-merit-api/api/swagger"
	"github.com/noah-isme/sma-merit-api/internal/handler"
	"github.com/noah-isme/sma-merit-api/internal/repository"
	"github.com/noah-isme/sma-merit-api/internal/service"
	"github.com/noah-isme/sma-merit-api/pkg/cache"
	"github.com/noah-isme/sma-merit-api/pkg/config"
	"github.com/noah-isme/sma-merit-api/pkg/database"
	"github.com/noah-isme/sma-merit-api/pkg/logger"
)

// @title SMA Merit API
// @version 1.0.0
// @description Merit and demerit events for classrooms and students
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB); err != nil {
			return err
		}
		logr.Info("migrations applied")
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()

	events := repository.NewEventRepository(db)
	classrooms := repository.NewClassroomRepository(db)
	students := repository.NewStudentRepository(db)
	eventTypes := repository.NewEventTypeRepository(db)
	grants := repository.NewPermissionRepository(db)
	users := repository.NewUserRepository(db)

	audit := service.NewAuditService(repository.NewAuditRepository(db), service.AuditConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
	}, logr)
	audit.Start()
	defer audit.Stop()

	authSvc := service.NewAuthService(users, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Events.PendingCacheTTL, logr, cfg.Events.PendingCacheEnabled)
	validate := service.NewValidator()

	eventSvc := service.NewEventService(service.EventStores{
		Events:     events,
		Classrooms: classrooms,
		Students:   students,
		EventTypes: eventTypes,
		Grants:     grants,
		Tx:         db,
	}, service.EventOptions{
		Cache:      cacheSvc,
		Metrics:    metrics,
		Audit:      audit,
		Validator:  validate,
		Logger:     logr,
		PendingTTL: cfg.Events.PendingCacheTTL,
	})
	syncSvc := service.NewEventSyncService(eventSvc, cfg.Events.MaxSyncItems)

	permissionSvc := service.NewPermissionService(grants, classrooms, students, service.PermissionOptions{
		Audit:     audit,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
	})

	sweeper := service.NewPermissionSweeper(permissionSvc, cfg.Permissions.ExpirySweepSchedule, logr)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start permission sweeper: %w", err)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := newRouter(cfg, logr, routeDeps{
		auth:        authSvc,
		metrics:     metrics,
		events:      handler.NewEventHandler(eventSvc, syncSvc),
		permissions: handler.NewPermissionHandler(permissionSvc),
		probes:      handler.NewMetricsHandler(metrics, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sweeper.Stop(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}
