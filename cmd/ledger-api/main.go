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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tuition-ledger-api/api/swagger"
	"github.com/noah-isme/tuition-ledger-api/internal/handler"
	"github.com/noah-isme/tuition-ledger-api/internal/middleware"
	"github.com/noah-isme/tuition-ledger-api/internal/repository"
	"github.com/noah-isme/tuition-ledger-api/internal/service"
	"github.com/noah-isme/tuition-ledger-api/pkg/cache"
	"github.com/noah-isme/tuition-ledger-api/pkg/clock"
	"github.com/noah-isme/tuition-ledger-api/pkg/config"
	"github.com/noah-isme/tuition-ledger-api/pkg/database"
	"github.com/noah-isme/tuition-ledger-api/pkg/jobs"
	"github.com/noah-isme/tuition-ledger-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tuition-ledger-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tuition-ledger-api/pkg/middleware/requestid"
	"github.com/noah-isme/tuition-ledger-api/pkg/scheduler"
)

// @title Tuition Ledger API
// @version 1.0.0
// @description Enrollment policy, fee balances, session lifecycle and monthly renewals for a tuition institute.
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

	zone, err := clock.NewZone(cfg.Ledger.Timezone)
	if err != nil {
		logr.Fatal("invalid ledger timezone", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, sweeps rely on database guards only", zap.Error(err))
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	studentRepo := repository.NewStudentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	sweepLock := repository.NewSweepLockRepository(redisClient, logr)
	defer sweepLock.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()

	notifications := service.NewNotificationService(notificationRepo, metrics, cfg.Ledger.SystemActorID, logr)
	notifyQueue := jobs.NewQueue("notifications", notifications.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notify.Workers,
		BufferSize: cfg.Notify.BufferSize,
		MaxRetries: cfg.Notify.Retries,
		Logger:     logr,
		OnDrop:     notifications.HandleDrop,
	})
	notifyQueue.Start(ctx)
	notifications.UseQueue(notifyQueue)

	students := service.NewStudentService(db, studentRepo, enrollmentRepo, ledgerRepo, notifications, validate, logr)
	sessions := service.NewSessionService(sessionRepo, notifications, validate, logr)
	enrollments := service.NewEnrollmentService(db, studentRepo, sessionRepo, enrollmentRepo, ledgerRepo, notifications, metrics, zone, validate, logr)
	ledger := service.NewLedgerService(db, enrollmentRepo, sessionRepo, ledgerRepo, notifications, metrics, zone, validate, logr)
	balances := service.NewBalanceService(studentRepo, enrollmentRepo, sessionRepo, ledgerRepo, logr)
	lifecycle := service.NewLifecycleService(db, sessionRepo, enrollmentRepo, studentRepo, notifications, metrics, logr,
		service.WithSweepLock(sweepLock, cfg.Sweep.LockTTL))
	renewals := service.NewRenewalService(db, enrollmentRepo, ledgerRepo, notifications, sweepLock, service.RenewalConfig{
		DaysAhead:   cfg.Ledger.RenewalDaysAhead,
		LockTTL:     cfg.Sweep.LockTTL,
		SystemActor: cfg.Ledger.SystemActorID,
	}, metrics, logr)

	sched := scheduler.New(scheduler.Options{Location: zone.Location(), Timeout: 10 * time.Minute, Logger: logr})
	if cfg.Scheduler.Enabled {
		if err := sched.Register("session-expiry", cfg.Scheduler.ExpiryCron, func(ctx context.Context) error {
			_, err := lifecycle.ExpireSessions(ctx, zone.Today())
			return err
		}); err != nil {
			logr.Fatal("failed to schedule expiry sweep", zap.Error(err))
		}
		if err := sched.Register("monthly-renewal", cfg.Scheduler.RenewalCron, func(ctx context.Context) error {
			_, err := renewals.ProcessRenewals(ctx, service.RenewalOptions{Today: zone.Today()})
			return err
		}); err != nil {
			logr.Fatal("failed to schedule renewal sweep", zap.Error(err))
		}
		sched.Start()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.Actor(cfg.JWT.Secret))
	if cfg.Sweep.OnRequest {
		api.Use(middleware.ExpirySweep(lifecycle, zone, middleware.ExpirySweepConfig{MinInterval: cfg.Sweep.MinInterval}, logr))
	}
	handler.RegisterRoutes(api, handler.Handlers{
		Students:      handler.NewStudentHandler(students, balances),
		Sessions:      handler.NewSessionHandler(sessions, lifecycle, zone),
		Enrollments:   handler.NewEnrollmentHandler(enrollments, balances),
		Ledger:        handler.NewLedgerHandler(ledger),
		Reports:       handler.NewReportHandler(balances, renewals, zone),
		Notifications: handler.NewNotificationHandler(notifications),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "timezone", cfg.Ledger.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	sched.Stop(shutdownCtx)
	notifyQueue.Stop()
}
