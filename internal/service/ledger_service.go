package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/models"
	"github.com/noah-isme/tuition-ledger-api/internal/repository"
	"github.com/noah-isme/tuition-ledger-api/pkg/clock"
	appErrors "github.com/noah-isme/tuition-ledger-api/pkg/errors"
)

type ledgerEnrollmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error)
}

type ledgerSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type ledgerStore interface {
	Insert(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) error
	FindByID(ctx context.Context, id string) (*models.LedgerEntry, error)
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.LedgerEntry, error)
	DueExists(ctx context.Context, tx *sqlx.Tx, enrollmentID string, date time.Time) (bool, error)
	Settle(ctx context.Context, tx *sqlx.Tx, id, actorID string, amount decimal.Decimal, date time.Time) (bool, error)
}

// PaymentRequest records money received against an enrollment. Date defaults to today.
type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// SettleRequest converts a scheduled due into a payment.
type SettleRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// ScheduleDueRequest adds an expected installment.
type ScheduleDueRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// InstallmentPlanRequest splits an enrollment into monthly installments.
type InstallmentPlanRequest struct {
	Count           int                 `json:"count" validate:"required,min=1,max=36"`
	FirstDueDate    string              `json:"first_due_date" validate:"required,datetime=2006-01-02"`
	FirstPaidAmount decimal.NullDecimal `json:"first_paid_amount"`
}

// LedgerService writes payments and scheduled dues.
type LedgerService struct {
	db          txProvider
	enrollments ledgerEnrollmentStore
	sessions    ledgerSessionReader
	ledger      ledgerStore
	notifier    Notifier
	metrics     *MetricsService
	clock       clock.Clock
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewLedgerService constructs the service.
func NewLedgerService(db txProvider, enrollments ledgerEnrollmentStore, sessions ledgerSessionReader, ledger ledgerStore, notifier Notifier, metrics *MetricsService, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *LedgerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.UTC()
	}
	return &LedgerService{
		db:          db,
		enrollments: enrollments,
		sessions:    sessions,
		ledger:      ledger,
		notifier:    notifier,
		metrics:     metrics,
		clock:       clk,
		validator:   validate,
		logger:      logger,
	}
}

// RecordPayment appends a paid entry.
func (s *LedgerService) RecordPayment(ctx context.Context, actorID, enrollmentID string, req PaymentRequest) (*dto.LedgerEntryView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}
	enrollment, err := s.findEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	entry := models.NewLedgerEntry(enrollment.ID, actorID, models.Paid{Amount: req.Amount, Date: s.dateOrToday(req.Date)})
	if err := s.ledger.Insert(ctx, nil, &entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	s.metrics.IncLedgerWrite(dto.LedgerKindPaid)

	s.notifier.Notify(ctx, actorID, models.NotificationNewFee, fmt.Sprintf("Payment of %s recorded for enrollment %s", entry.Amount.StringFixed(2), enrollment.ID))
	view := LedgerEntryView(entry)
	return &view, nil
}

// SettleDue turns a scheduled due into a payment. Settling an entry that is already paid
// is a conflict.
func (s *LedgerService) SettleDue(ctx context.Context, actorID, entryID string, req SettleRequest) (*dto.LedgerEntryView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settle payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}

	entry, err := s.ledger.FindByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ledger entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger entry")
	}
	if _, paid := entry.Record().(models.Paid); paid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "ledger entry is already paid")
	}

	date := s.dateOrToday(req.Date)
	ok, err := s.ledger.Settle(ctx, nil, entry.ID, actorID, req.Amount, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle due")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "ledger entry is already paid")
	}
	s.metrics.IncLedgerWrite(dto.LedgerKindPaid)

	entry.Amount = req.Amount
	entry.Date = date
	entry.ActorID = actorID
	s.notifier.Notify(ctx, actorID, models.NotificationNewFee, fmt.Sprintf("Scheduled due settled with %s for enrollment %s", req.Amount.StringFixed(2), entry.EnrollmentID))
	view := LedgerEntryView(*entry)
	return &view, nil
}

// ScheduleDue adds a scheduled due unless one already exists for that date. created
// reports whether a new entry was written.
func (s *LedgerService) ScheduleDue(ctx context.Context, actorID, enrollmentID string, req ScheduleDueRequest) (view *dto.LedgerEntryView, created bool, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid due payload")
	}
	date, _ := clock.ParseDate(req.Date)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer func() {
		if err != nil || !created {
			_ = tx.Rollback()
		}
	}()

	enrollment, err := s.lockEnrollment(ctx, tx, enrollmentID)
	if err != nil {
		return nil, false, err
	}
	entry, err := s.insertDue(ctx, tx, enrollment.ID, actorID, date)
	if err != nil || entry == nil {
		return nil, false, err
	}
	if err = tx.Commit(); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit due")
	}
	created = true
	s.metrics.IncLedgerWrite(dto.LedgerKindScheduledDue)

	s.notifier.Notify(ctx, actorID, models.NotificationNewEntry, fmt.Sprintf("Due scheduled on %s for enrollment %s", req.Date, enrollment.ID))
	v := LedgerEntryView(*entry)
	return &v, true, nil
}

// PlanInstallments schedules count monthly dues starting at the first due date. The last
// installment may not fall after the session's end date. When FirstPaidAmount is set the
// first installment is recorded as paid instead of scheduled.
func (s *LedgerService) PlanInstallments(ctx context.Context, actorID, enrollmentID string, req InstallmentPlanRequest) (result *dto.InstallmentPlanResult, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid installment plan")
	}
	if req.FirstPaidAmount.Valid && req.FirstPaidAmount.Decimal.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "first_paid_amount must not be negative")
	}
	first, _ := clock.ParseDate(req.FirstDueDate)

	enrollment, err := s.findEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.FindByID(ctx, enrollment.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	last := clock.AddMonths(first, req.Count-1)
	if session.EndDate != nil && last.After(clock.Date(*session.EndDate)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("last installment %s falls after session end %s",
			last.Format("2006-01-02"), session.EndDate.Format("2006-01-02")))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.lockEnrollment(ctx, tx, enrollment.ID); err != nil {
		return nil, err
	}

	result = &dto.InstallmentPlanResult{EnrollmentID: enrollment.ID, Entries: []dto.LedgerEntryView{}}
	var written []string
	for i := 0; i < req.Count; i++ {
		date := clock.AddMonths(first, i)
		if i == 0 && req.FirstPaidAmount.Valid && req.FirstPaidAmount.Decimal.IsPositive() {
			entry := models.NewLedgerEntry(enrollment.ID, actorID, models.Paid{Amount: req.FirstPaidAmount.Decimal, Date: date})
			if err = s.ledger.Insert(ctx, tx, &entry); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record first installment")
			}
			written = append(written, dto.LedgerKindPaid)
			result.Entries = append(result.Entries, LedgerEntryView(entry))
			continue
		}
		entry, insertErr := s.insertDue(ctx, tx, enrollment.ID, actorID, date)
		if insertErr != nil {
			err = insertErr
			return nil, err
		}
		if entry != nil {
			written = append(written, dto.LedgerKindScheduledDue)
			result.Entries = append(result.Entries, LedgerEntryView(*entry))
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit installment plan")
	}
	for _, kind := range written {
		s.metrics.IncLedgerWrite(kind)
	}

	s.notifier.Notify(ctx, actorID, models.NotificationNewEntry, fmt.Sprintf("Installment plan of %d created for enrollment %s", req.Count, enrollment.ID))
	return result, nil
}

// Entries lists the enrollment's ledger as typed views.
func (s *LedgerService) Entries(ctx context.Context, enrollmentID string) ([]dto.LedgerEntryView, error) {
	if _, err := s.findEnrollment(ctx, enrollmentID); err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger")
	}
	views := make([]dto.LedgerEntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, LedgerEntryView(entry))
	}
	return views, nil
}

// LedgerEntryView renders a row according to its PaymentRecord kind.
func LedgerEntryView(entry models.LedgerEntry) dto.LedgerEntryView {
	view := dto.LedgerEntryView{ID: entry.ID, EnrollmentID: entry.EnrollmentID, ActorID: entry.ActorID}
	switch record := entry.Record().(type) {
	case models.Paid:
		amount := record.Amount
		view.Kind = dto.LedgerKindPaid
		view.Amount = &amount
		view.Date = record.Date
	case models.ScheduledDue:
		view.Kind = dto.LedgerKindScheduledDue
		view.Date = record.Date
	}
	return view
}

// insertDue writes a scheduled due unless one exists on date. It returns nil when skipped.
func (s *LedgerService) insertDue(ctx context.Context, tx *sqlx.Tx, enrollmentID, actorID string, date time.Time) (*models.LedgerEntry, error) {
	exists, err := s.ledger.DueExists(ctx, tx, enrollmentID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check scheduled due")
	}
	if exists {
		return nil, nil
	}
	entry := models.NewLedgerEntry(enrollmentID, actorID, models.ScheduledDue{Date: date})
	if err := s.ledger.Insert(ctx, tx, &entry); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "scheduled due created concurrently, retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule due")
	}
	return &entry, nil
}

func (s *LedgerService) findEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *LedgerService) lockEnrollment(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.LockByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock enrollment")
	}
	return enrollment, nil
}

func (s *LedgerService) dateOrToday(raw string) time.Time {
	if raw != "" {
		if parsed, err := clock.ParseDate(raw); err == nil {
			return parsed
		}
	}
	return clock.Date(s.clock.Now())
}
