package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/models"
	"github.com/noah-isme/tuition-ledger-api/internal/repository"
	"github.com/noah-isme/tuition-ledger-api/pkg/clock"
	appErrors "github.com/noah-isme/tuition-ledger-api/pkg/errors"
)

type renewalEnrollmentStore interface {
	ListActiveMonthly(ctx context.Context) ([]models.EnrollmentDetail, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error)
	SetNextMonthlyDue(ctx context.Context, tx *sqlx.Tx, id string, due time.Time) error
}

type renewalLedgerStore interface {
	LatestPaymentDate(ctx context.Context, tx *sqlx.Tx, enrollmentID string) (*time.Time, error)
	DueExists(ctx context.Context, tx *sqlx.Tx, enrollmentID string, date time.Time) (bool, error)
	Insert(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) error
}

// RenewalOptions parameterises one renewal sweep. DaysAhead <= 0 uses the configured window.
type RenewalOptions struct {
	Today     time.Time
	DaysAhead int
	DryRun    bool
}

type renewalOutcome int

const (
	renewalNotDue renewalOutcome = iota
	renewalExists
	renewalCreated
)

// RenewalConfig tunes the renewal sweep.
type RenewalConfig struct {
	DaysAhead   int
	LockTTL     time.Duration
	SystemActor string
}

// RenewalService schedules the next monthly due for Active enrollments in monthly sessions.
type RenewalService struct {
	db          txProvider
	enrollments renewalEnrollmentStore
	ledger      renewalLedgerStore
	notifier    Notifier
	locker      SweepLocker
	cfg         RenewalConfig
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewRenewalService constructs the service. locker may be nil.
func NewRenewalService(db txProvider, enrollments renewalEnrollmentStore, ledger renewalLedgerStore, notifier Notifier, locker SweepLocker, cfg RenewalConfig, metrics *MetricsService, logger *zap.Logger) *RenewalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DaysAhead <= 0 {
		cfg.DaysAhead = 7
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.SystemActor == "" {
		cfg.SystemActor = "system"
	}
	return &RenewalService{
		db:          db,
		enrollments: enrollments,
		ledger:      ledger,
		notifier:    notifier,
		locker:      locker,
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger,
	}
}

// NextDue anchors on the last payment, or the registration date when nothing was paid,
// and adds one calendar month. ok is false when there is no anchor.
func NextDue(lastPayment, registrationDate *time.Time) (time.Time, bool) {
	anchor := lastPayment
	if anchor == nil {
		anchor = registrationDate
	}
	if anchor == nil {
		return time.Time{}, false
	}
	return clock.AddMonths(clock.Date(*anchor), 1), true
}

// ProcessRenewals creates at most one scheduled due per enrollment and due date. Each
// enrollment is handled in its own transaction with the enrollment row locked, and a
// failure on one enrollment does not stop the rest.
func (s *RenewalService) ProcessRenewals(ctx context.Context, opts RenewalOptions) (*dto.RenewalSummary, error) {
	start := time.Now()
	if opts.DaysAhead <= 0 {
		opts.DaysAhead = s.cfg.DaysAhead
	}
	today := clock.Date(opts.Today)
	horizon := today.AddDate(0, 0, opts.DaysAhead)
	summary := &dto.RenewalSummary{DryRun: opts.DryRun, Created: []dto.RenewalItem{}}

	if !opts.DryRun && s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, SweepRenewal, s.cfg.LockTTL)
		switch {
		case err != nil:
			s.logger.Warn("sweep lock unavailable, continuing", zap.String("sweep", SweepRenewal), zap.Error(err))
		case !ok:
			summary.Skipped = true
			s.metrics.ObserveSweep(SweepRenewal, "skipped", time.Since(start))
			return summary, nil
		default:
			defer release()
		}
	}

	candidates, err := s.enrollments.ListActiveMonthly(ctx)
	if err != nil {
		s.metrics.ObserveSweep(SweepRenewal, "failed", time.Since(start))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list monthly enrollments")
	}

	for _, candidate := range candidates {
		summary.Checked++
		item := dto.RenewalItem{
			EnrollmentID: candidate.ID,
			StudentName:  candidate.StudentName,
			SessionName:  candidate.SessionName,
			Amount:       NetFee(candidate.Enrollment),
		}

		var outcome renewalOutcome
		if opts.DryRun {
			outcome, item.DueDate, err = s.plan(ctx, candidate, horizon)
		} else {
			outcome, item.DueDate, err = s.renewOne(ctx, candidate, horizon)
		}
		if err != nil {
			s.logger.Warn("renewal failed", zap.String("enrollment_id", candidate.ID), zap.Error(err))
			summary.Failures = append(summary.Failures, dto.SweepFailure{ID: candidate.ID, Error: err.Error()})
			continue
		}

		switch outcome {
		case renewalExists:
			summary.Existing++
		case renewalCreated:
			summary.Created = append(summary.Created, item)
			if !opts.DryRun {
				s.notifier.Notify(ctx, "", models.NotificationMonthlyRenewal, fmt.Sprintf(
					"Monthly renewal: %s, %s, due %s, amount %s",
					item.StudentName, item.SessionName, item.DueDate.Format("2006-01-02"), item.Amount.StringFixed(2)))
			}
		}
	}

	if opts.DryRun {
		return summary, nil
	}
	s.metrics.IncRenewalsCreated(len(summary.Created))
	s.metrics.ObserveSweep(SweepRenewal, sweepOutcome(len(summary.Failures), len(candidates)), time.Since(start))
	s.logger.Info("renewal sweep completed",
		zap.Int("checked", summary.Checked),
		zap.Int("created", len(summary.Created)),
		zap.Int("existing", summary.Existing),
		zap.Int("failures", len(summary.Failures)),
	)
	return summary, nil
}

func (s *RenewalService) plan(ctx context.Context, candidate models.EnrollmentDetail, horizon time.Time) (renewalOutcome, time.Time, error) {
	last, err := s.ledger.LatestPaymentDate(ctx, nil, candidate.ID)
	if err != nil {
		return renewalNotDue, time.Time{}, err
	}
	due, ok := NextDue(last, candidate.RegistrationDate)
	if !ok || due.After(horizon) {
		return renewalNotDue, due, nil
	}
	exists, err := s.ledger.DueExists(ctx, nil, candidate.ID, due)
	if err != nil {
		return renewalNotDue, due, err
	}
	if exists {
		return renewalExists, due, nil
	}
	return renewalCreated, due, nil
}

func (s *RenewalService) renewOne(ctx context.Context, candidate models.EnrollmentDetail, horizon time.Time) (outcome renewalOutcome, due time.Time, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return renewalNotDue, due, fmt.Errorf("begin renewal transaction: %w", err)
	}
	defer func() {
		if err != nil || outcome != renewalCreated {
			_ = tx.Rollback()
		}
	}()

	enrollment, err := s.enrollments.LockByID(ctx, tx, candidate.ID)
	if err != nil {
		return renewalNotDue, due, fmt.Errorf("lock enrollment: %w", err)
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return renewalNotDue, due, nil
	}

	last, err := s.ledger.LatestPaymentDate(ctx, tx, enrollment.ID)
	if err != nil {
		return renewalNotDue, due, err
	}
	due, ok := NextDue(last, enrollment.RegistrationDate)
	if !ok || due.After(horizon) {
		return renewalNotDue, due, nil
	}

	exists, err := s.ledger.DueExists(ctx, tx, enrollment.ID, due)
	if err != nil {
		return renewalNotDue, due, err
	}
	if exists {
		return renewalExists, due, nil
	}

	entry := models.NewLedgerEntry(enrollment.ID, s.cfg.SystemActor, models.ScheduledDue{Date: due})
	if err = s.ledger.Insert(ctx, tx, &entry); err != nil {
		if repository.IsUniqueViolation(err) {
			return renewalExists, due, nil
		}
		return renewalNotDue, due, err
	}
	if err = s.enrollments.SetNextMonthlyDue(ctx, tx, enrollment.ID, due); err != nil {
		return renewalNotDue, due, err
	}
	if err = tx.Commit(); err != nil {
		return renewalNotDue, due, fmt.Errorf("commit renewal: %w", err)
	}
	s.metrics.IncLedgerWrite("scheduled_due")
	return renewalCreated, due, nil
}
