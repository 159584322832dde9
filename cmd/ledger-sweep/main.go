package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tuition-ledger-api/internal/repository"
	"github.com/noah-isme/tuition-ledger-api/internal/service"
	"github.com/noah-isme/tuition-ledger-api/pkg/cache"
	"github.com/noah-isme/tuition-ledger-api/pkg/clock"
	"github.com/noah-isme/tuition-ledger-api/pkg/config"
	"github.com/noah-isme/tuition-ledger-api/pkg/database"
	"github.com/noah-isme/tuition-ledger-api/pkg/logger"
)

func main() {
	var (
		task         string
		dryRun       bool
		daysAhead    int
		sessionIDs   string
		allCompleted bool
		todayRaw     string
		timeout      time.Duration
	)

	flag.StringVar(&task, "task", "expire", "Sweep to run: expire, restore, renew or reconcile")
	flag.BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	flag.IntVar(&daysAhead, "days-ahead", 0, "Renewal look-ahead window in days (0 uses LEDGER_RENEWAL_DAYS_AHEAD)")
	flag.StringVar(&sessionIDs, "session-ids", "", "Comma separated session ids to restore")
	flag.BoolVar(&allCompleted, "all-completed", false, "Restore every completed session")
	flag.StringVar(&todayRaw, "today", "", "Override the institute-local date (YYYY-MM-DD)")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Overall sweep deadline")
	flag.Parse()

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
		log.Fatalf("invalid ledger timezone: %v", err)
	}
	if todayRaw != "" {
		pinned, err := clock.ParseDate(todayRaw)
		if err != nil {
			log.Fatalf("invalid -today: %v", err)
		}
		zone = clock.Fixed(pinned)
	}
	today := zone.Today()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without sweep lock", zap.Error(err))
		redisClient = nil
	}
	sweepLock := repository.NewSweepLockRepository(redisClient, logr)
	defer sweepLock.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sessionRepo := repository.NewSessionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	metrics := service.NewMetricsService()
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), metrics, cfg.Ledger.SystemActorID, logr)

	lifecycle := service.NewLifecycleService(db, sessionRepo, enrollmentRepo, studentRepo, notifications, metrics, logr,
		service.WithSweepLock(sweepLock, cfg.Sweep.LockTTL))

	var result interface{}
	switch task {
	case "expire":
		result, err = lifecycle.ExpireSessions(ctx, today)
	case "restore":
		req := service.RestoreRequest{All: allCompleted, DryRun: dryRun}
		for _, id := range strings.Split(sessionIDs, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.SessionIDs = append(req.SessionIDs, id)
			}
		}
		result, err = lifecycle.RestoreSessions(ctx, cfg.Ledger.SystemActorID, req)
	case "renew":
		renewals := service.NewRenewalService(db, enrollmentRepo, ledgerRepo, notifications, sweepLock, service.RenewalConfig{
			DaysAhead:   cfg.Ledger.RenewalDaysAhead,
			LockTTL:     cfg.Sweep.LockTTL,
			SystemActor: cfg.Ledger.SystemActorID,
		}, metrics, logr)
		result, err = renewals.ProcessRenewals(ctx, service.RenewalOptions{Today: today, DaysAhead: daysAhead, DryRun: dryRun})
	case "reconcile":
		result, err = lifecycle.ReconcileStudentStatuses(ctx)
	default:
		log.Fatalf("unknown -task %q", task)
	}
	if err != nil {
		logr.Fatal("sweep failed", zap.String("task", task), zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("failed to write summary: %v", err)
	}
}
