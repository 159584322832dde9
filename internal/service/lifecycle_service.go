package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/models"
	appErrors "github.com/noah-isme/tuition-ledger-api/pkg/errors"
)

const summaryNameLimit = 3

type lifecycleSessionStore interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	ListExpired(ctx context.Context, today time.Time) ([]models.Session, error)
	ListCompleted(ctx context.Context, ids []string) ([]models.Session, error)
	CompleteIfExpired(ctx context.Context, tx *sqlx.Tx, id string, today time.Time) (bool, error)
	Reactivate(ctx context.Context, tx *sqlx.Tx, id string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error
}

type lifecycleEnrollmentStore interface {
	CompleteActiveBySession(ctx context.Context, tx *sqlx.Tx, sessionID string) ([]string, error)
	ListCompletedBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error)
	HasOtherActive(ctx context.Context, tx *sqlx.Tx, studentID, excludeID string) (bool, error)
	Reactivate(ctx context.Context, tx *sqlx.Tx, id string) (bool, error)
}

type lifecycleStudentStore interface {
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error)
	SetStatusMany(ctx context.Context, tx *sqlx.Tx, ids []string, status models.StudentStatus) (int64, error)
	NamesByIDs(ctx context.Context, ids []string) (map[string]string, error)
	CompleteExStudents(ctx context.Context) ([]string, error)
}

// SweepLocker guards a sweep against concurrent runs in other processes.
type SweepLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), acquired bool, err error)
}

// RestoreRequest selects Completed sessions to move back to Active.
type RestoreRequest struct {
	SessionIDs []string `json:"session_ids"`
	All        bool     `json:"all"`
	DryRun     bool     `json:"dry_run"`
}

// SetSessionStatusRequest is the manual status change payload.
type SetSessionStatusRequest struct {
	Status models.SessionStatus `json:"status" validate:"required,oneof=Active Inactive"`
}

// LifecycleService drives the session state machine: automatic Active to Completed on
// expiry, manual restore, and manual Active/Inactive changes.
type LifecycleService struct {
	db          txProvider
	sessions    lifecycleSessionStore
	enrollments lifecycleEnrollmentStore
	students    lifecycleStudentStore
	notifier    Notifier
	locker      SweepLocker
	lockTTL     time.Duration
	metrics     *MetricsService
	logger      *zap.Logger
}

// LifecycleOption configures the service.
type LifecycleOption func(*LifecycleService)

// WithSweepLock installs a cross-process lock held for ttl during sweeps.
func WithSweepLock(locker SweepLocker, ttl time.Duration) LifecycleOption {
	return func(s *LifecycleService) {
		s.locker = locker
		s.lockTTL = ttl
	}
}

// NewLifecycleService constructs the service.
func NewLifecycleService(db txProvider, sessions lifecycleSessionStore, enrollments lifecycleEnrollmentStore, students lifecycleStudentStore, notifier Notifier, metrics *MetricsService, logger *zap.Logger, opts ...LifecycleOption) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LifecycleService{
		db:          db,
		sessions:    sessions,
		enrollments: enrollments,
		students:    students,
		notifier:    notifier,
		metrics:     metrics,
		logger:      logger,
		lockTTL:     2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExpireSessions completes every Active session whose end date is before today, along
// with its Active enrollments and their students. Each session commits on its own and
// only transitions if it is still Active at write time, so concurrent or repeated runs
// never transition or notify twice.
func (s *LifecycleService) ExpireSessions(ctx context.Context, today time.Time) (*dto.ExpirySummary, error) {
	start := time.Now()
	summary := &dto.ExpirySummary{Sessions: []dto.SessionTransition{}}

	release, ok := s.acquire(ctx, SweepExpiry)
	if !ok {
		summary.Skipped = true
		s.metrics.ObserveSweep(SweepExpiry, "skipped", time.Since(start))
		return summary, nil
	}
	defer release()

	sessions, err := s.sessions.ListExpired(ctx, today)
	if err != nil {
		s.metrics.ObserveSweep(SweepExpiry, "failed", time.Since(start))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expired sessions")
	}

	var studentIDs []string
	for _, session := range sessions {
		transitioned, students, err := s.expireOne(ctx, session, today)
		if err != nil {
			s.logger.Warn("session expiry failed", zap.String("session_id", session.ID), zap.Error(err))
			summary.Failures = append(summary.Failures, dto.SweepFailure{ID: session.ID, Error: err.Error()})
			continue
		}
		if !transitioned {
			continue
		}
		summary.Sessions = append(summary.Sessions, dto.SessionTransition{
			SessionID:   session.ID,
			SessionName: session.Name,
			Enrollments: len(students),
			Students:    len(students),
		})
		summary.Enrollments += len(students)
		studentIDs = append(studentIDs, students...)
	}
	studentIDs = uniqueStrings(len(studentIDs), func(i int) string { return studentIDs[i] })
	summary.Students = len(studentIDs)

	s.metrics.AddTransitions(SweepExpiry, "session", len(summary.Sessions))
	s.metrics.AddTransitions(SweepExpiry, "enrollment", summary.Enrollments)
	s.metrics.AddTransitions(SweepExpiry, "student", summary.Students)
	s.metrics.ObserveSweep(SweepExpiry, sweepOutcome(len(summary.Failures), len(sessions)), time.Since(start))

	if len(summary.Sessions) > 0 {
		s.notifier.Notify(ctx, "", models.NotificationGeneral, s.expiryMessage(ctx, summary, studentIDs))
		s.logger.Info("expiry sweep completed",
			zap.Int("sessions", len(summary.Sessions)),
			zap.Int("enrollments", summary.Enrollments),
			zap.Int("students", summary.Students),
			zap.Int("failures", len(summary.Failures)),
		)
	}
	return summary, nil
}

func (s *LifecycleService) expireOne(ctx context.Context, session models.Session, today time.Time) (transitioned bool, studentIDs []string, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("begin expiry transaction: %w", err)
	}
	defer func() {
		if err != nil || !transitioned {
			_ = tx.Rollback()
		}
	}()

	transitioned, err = s.sessions.CompleteIfExpired(ctx, tx, session.ID, today)
	if err != nil || !transitioned {
		return false, nil, err
	}
	studentIDs, err = s.enrollments.CompleteActiveBySession(ctx, tx, session.ID)
	if err != nil {
		return false, nil, err
	}
	if _, err = s.students.SetStatusMany(ctx, tx, studentIDs, models.StudentStatusCompleted); err != nil {
		return false, nil, err
	}
	if err = tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("commit expiry: %w", err)
	}
	return true, studentIDs, nil
}

func (s *LifecycleService) expiryMessage(ctx context.Context, summary *dto.ExpirySummary, studentIDs []string) string {
	sessionNames := make([]string, 0, len(summary.Sessions))
	for _, t := range summary.Sessions {
		sessionNames = append(sessionNames, t.SessionName)
	}
	msg := fmt.Sprintf("%d session(s) completed: %s.", len(summary.Sessions), summarizeNames(sessionNames, summaryNameLimit))
	if len(studentIDs) == 0 {
		return msg
	}
	return msg + fmt.Sprintf(" %d student(s) moved to Ex-Student: %s.", len(studentIDs), s.studentNames(ctx, studentIDs))
}

// RestoreSessions moves Completed sessions back to Active together with their Completed
// enrollments and students. An enrollment is left Completed when its student already
// holds another Active enrollment.
func (s *LifecycleService) RestoreSessions(ctx context.Context, actorID string, req RestoreRequest) (*dto.RestoreSummary, error) {
	if len(req.SessionIDs) == 0 && !req.All {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session_ids or all is required")
	}
	if len(req.SessionIDs) > 0 && req.All {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session_ids and all are mutually exclusive")
	}

	start := time.Now()
	summary := &dto.RestoreSummary{DryRun: req.DryRun, Sessions: []dto.SessionTransition{}}

	if !req.DryRun {
		release, ok := s.acquire(ctx, SweepRestore)
		if !ok {
			s.metrics.ObserveSweep(SweepRestore, "skipped", time.Since(start))
			return nil, appErrors.Clone(appErrors.ErrLockNotAcquired, "a restore is already running")
		}
		defer release()
	}

	sessions, err := s.sessions.ListCompleted(ctx, req.SessionIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list completed sessions")
	}

	var studentIDs []string
	for _, session := range sessions {
		transition, restored, skipped, err := s.restoreOne(ctx, session, req.DryRun)
		if err != nil {
			s.logger.Warn("session restore failed", zap.String("session_id", session.ID), zap.Error(err))
			summary.Failures = append(summary.Failures, dto.SweepFailure{ID: session.ID, Error: err.Error()})
			continue
		}
		if transition == nil {
			continue
		}
		summary.Sessions = append(summary.Sessions, *transition)
		summary.Enrollments += transition.Enrollments
		summary.Skipped = append(summary.Skipped, skipped...)
		studentIDs = append(studentIDs, restored...)
	}
	studentIDs = uniqueStrings(len(studentIDs), func(i int) string { return studentIDs[i] })
	summary.Students = len(studentIDs)

	if req.DryRun {
		return summary, nil
	}

	s.metrics.AddTransitions(SweepRestore, "session", len(summary.Sessions))
	s.metrics.AddTransitions(SweepRestore, "enrollment", summary.Enrollments)
	s.metrics.ObserveSweep(SweepRestore, sweepOutcome(len(summary.Failures), len(sessions)), time.Since(start))

	if len(summary.Sessions) > 0 {
		names := make([]string, 0, len(summary.Sessions))
		for _, t := range summary.Sessions {
			names = append(names, t.SessionName)
		}
		s.notifier.Notify(ctx, actorID, models.NotificationUpdation, fmt.Sprintf(
			"%d session(s) restored to Active: %s. %d enrollment(s) and %d student(s) reactivated.",
			len(summary.Sessions), summarizeNames(names, summaryNameLimit), summary.Enrollments, summary.Students))
	}
	return summary, nil
}

func (s *LifecycleService) restoreOne(ctx context.Context, session models.Session, dryRun bool) (transition *dto.SessionTransition, studentIDs, skipped []string, err error) {
	enrollments, err := s.enrollments.ListCompletedBySession(ctx, session.ID)
	if err != nil {
		return nil, nil, nil, err
	}

	if dryRun {
		for _, e := range enrollments {
			busy, err := s.enrollments.HasOtherActive(ctx, nil, e.StudentID, e.ID)
			if err != nil {
				return nil, nil, nil, err
			}
			if busy {
				skipped = append(skipped, e.ID)
				continue
			}
			studentIDs = append(studentIDs, e.StudentID)
		}
		return &dto.SessionTransition{SessionID: session.ID, SessionName: session.Name, Enrollments: len(studentIDs), Students: len(studentIDs)}, studentIDs, skipped, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("begin restore transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ok, err := s.sessions.Reactivate(ctx, tx, session.ID)
	if err != nil || !ok {
		return nil, nil, nil, err
	}

	for _, e := range enrollments {
		if _, err = s.students.LockByID(ctx, tx, e.StudentID); err != nil {
			return nil, nil, nil, fmt.Errorf("lock student %s: %w", e.StudentID, err)
		}
		busy, err := s.enrollments.HasOtherActive(ctx, tx, e.StudentID, e.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		if busy {
			skipped = append(skipped, e.ID)
			continue
		}
		reactivated, err := s.enrollments.Reactivate(ctx, tx, e.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		if reactivated {
			studentIDs = append(studentIDs, e.StudentID)
		}
	}
	if _, err = s.students.SetStatusMany(ctx, tx, studentIDs, models.StudentStatusActive); err != nil {
		return nil, nil, nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, nil, fmt.Errorf("commit restore: %w", err)
	}
	committed = true

	return &dto.SessionTransition{SessionID: session.ID, SessionName: session.Name, Enrollments: len(studentIDs), Students: len(studentIDs)}, studentIDs, skipped, nil
}

// SetSessionStatus changes a session to Active or Inactive by hand. A session cannot be
// activated without a fee.
func (s *LifecycleService) SetSessionStatus(ctx context.Context, actorID, sessionID string, req SetSessionStatusRequest) (*models.Session, error) {
	if req.Status != models.SessionStatusActive && req.Status != models.SessionStatusInactive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be Active or Inactive")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if req.Status == models.SessionStatusActive && !session.Fee.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session fee must be set before activation")
	}
	if session.Status == req.Status {
		return session, nil
	}

	if err := s.sessions.UpdateStatus(ctx, sessionID, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session status")
	}
	previous := session.Status
	session.Status = req.Status
	s.notifier.Notify(ctx, actorID, models.NotificationUpdation, fmt.Sprintf("Session %s changed from %s to %s", session.Name, previous, session.Status))
	return session, nil
}

// ReconcileStudentStatuses marks Completed every student whose enrollments all belong to
// Completed sessions.
func (s *LifecycleService) ReconcileStudentStatuses(ctx context.Context) (*dto.ReconcileSummary, error) {
	names, err := s.students.CompleteExStudents(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile student statuses")
	}
	if len(names) > 0 {
		s.notifier.Notify(ctx, "", models.NotificationGeneral,
			fmt.Sprintf("%d student(s) moved to Ex-Student: %s.", len(names), summarizeNames(names, summaryNameLimit)))
	}
	return &dto.ReconcileSummary{Updated: len(names), Students: names}, nil
}

func (s *LifecycleService) acquire(ctx context.Context, name string) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}
	release, ok, err := s.locker.Acquire(ctx, name, s.lockTTL)
	if err != nil {
		// Conditional updates keep the sweep safe without the lock.
		s.logger.Warn("sweep lock unavailable, continuing", zap.String("sweep", name), zap.Error(err))
		return func() {}, true
	}
	return release, ok
}

func (s *LifecycleService) studentNames(ctx context.Context, ids []string) string {
	byID, err := s.students.NamesByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve student names", zap.Error(err))
		return fmt.Sprintf("%d student(s)", len(ids))
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	return summarizeNames(names, summaryNameLimit)
}

func sweepOutcome(failures, total int) string {
	switch {
	case failures == 0:
		return "ok"
	case failures < total:
		return "partial"
	default:
		return "failed"
	}
}
