package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-ledger-api/internal/models"
	"github.com/noah-isme/tuition-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/tuition-ledger-api/pkg/errors"
)

type studentStore interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error)
	Create(ctx context.Context, tx *sqlx.Tx, student *models.Student) error
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, status models.StudentStatus, reason *models.InactiveReason) error
	Delete(ctx context.Context, tx *sqlx.Tx, id string) error
}

type studentEnrollmentStore interface {
	DeleteByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) (int64, error)
}

type studentLedgerStore interface {
	DeleteByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) (int64, error)
}

// CreateStudentRequest holds payload for registering students.
type CreateStudentRequest struct {
	FullName   string `json:"full_name" validate:"required,max=200"`
	FatherName string `json:"father_name" validate:"max=200"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"max=32"`
}

// FreezeStudentRequest carries the inactivation reason.
type FreezeStudentRequest struct {
	Reason models.InactiveReason `json:"reason" validate:"required,oneof=Freeze Expelled"`
}

// StudentService handles student use-cases.
type StudentService struct {
	db          txProvider
	repo        studentStore
	enrollments studentEnrollmentStore
	ledger      studentLedgerStore
	notifier    Notifier
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(
	db txProvider,
	repo studentStore,
	enrollments studentEnrollmentStore,
	ledger studentLedgerStore,
	notifier Notifier,
	validate *validator.Validate,
	logger *zap.Logger,
) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		db:          db,
		repo:        repo,
		enrollments: enrollments,
		ledger:      ledger,
		notifier:    notifier,
		validator:   validate,
		logger:      logger,
	}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Status != "" && filter.Status != models.StudentStatusActive &&
		filter.Status != models.StudentStatusInactive && filter.Status != models.StudentStatusCompleted {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown student status")
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new Active student. The roll number is issued on first enrollment.
func (s *StudentService) Create(ctx context.Context, actorID string, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student := &models.Student{
		FullName:   strings.TrimSpace(req.FullName),
		FatherName: strings.TrimSpace(req.FatherName),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:      strings.TrimSpace(req.Phone),
		Status:     models.StudentStatusActive,
	}
	if student.FullName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "full name is required")
	}
	if err := s.repo.Create(ctx, nil, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.notifier.Notify(ctx, actorID, models.NotificationNewEntry, fmt.Sprintf("Student %s registered", student.FullName))
	return student, nil
}

// Freeze marks the student Inactive with the given reason.
func (s *StudentService) Freeze(ctx context.Context, actorID, id string, req FreezeStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid freeze payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if student.Status == models.StudentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "completed students cannot be frozen")
	}

	reason := req.Reason
	if err := s.repo.UpdateStatus(ctx, nil, student.ID, models.StudentStatusInactive, &reason); err != nil {
		return nil, s.statusError(err)
	}
	student.Status = models.StudentStatusInactive
	student.InactiveReason = &reason

	s.notifier.Notify(ctx, actorID, models.NotificationUpdation, fmt.Sprintf("Student %s set Inactive (%s)", student.FullName, reason))
	return student, nil
}

// Unfreeze returns an Inactive student to Active.
func (s *StudentService) Unfreeze(ctx context.Context, actorID, id string) (*models.Student, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if student.Status != models.StudentStatusInactive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("student is %s, not Inactive", student.Status))
	}

	if err := s.repo.UpdateStatus(ctx, nil, student.ID, models.StudentStatusActive, nil); err != nil {
		return nil, s.statusError(err)
	}
	student.Status = models.StudentStatusActive
	student.InactiveReason = nil

	s.notifier.Notify(ctx, actorID, models.NotificationUpdation, fmt.Sprintf("Student %s set Active", student.FullName))
	return student, nil
}

// Delete removes the student with every enrollment and ledger entry in one transaction.
func (s *StudentService) Delete(ctx context.Context, actorID, id string) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	student, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock student")
	}
	entries, err := s.ledger.DeleteByStudent(ctx, tx, student.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete ledger entries")
	}
	enrollments, err := s.enrollments.DeleteByStudent(ctx, tx, student.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollments")
	}
	if err = s.repo.Delete(ctx, tx, student.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit deletion")
	}

	s.logger.Info("student deleted",
		zap.String("student_id", student.ID),
		zap.Int64("enrollments", enrollments),
		zap.Int64("ledger_entries", entries),
	)
	s.notifier.Notify(ctx, actorID, models.NotificationDeletion,
		fmt.Sprintf("Student %s deleted with %d enrollments and %d ledger entries", student.FullName, enrollments, entries))
	return nil
}

func (s *StudentService) statusError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if repository.IsUniqueViolation(err) {
		return appErrors.Clone(appErrors.ErrConflict, "student changed concurrently")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student status")
}
