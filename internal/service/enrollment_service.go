package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
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

const (
	waiverNote        = "Registration fee waived: student has a prior enrollment."
	maxRollNoAttempts = 1000
	ruleSingleActive  = "single_active"
)

// rollNoPrefixes maps recognisable session-name fragments to roll number prefixes.
// Order matters: the first fragment found in the upper-cased name wins.
var rollNoPrefixes = []struct {
	fragment string
	prefix   string
}{
	{"CSS", "CP"},
	{"PMS", "PM"},
	{"MDCAT", "MD"},
	{"ECAT", "EC"},
	{"IELTS", "IE"},
	{"SPOKEN", "SE"},
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type enrollmentStudentStore interface {
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error)
	RollNoExists(ctx context.Context, tx *sqlx.Tx, rollNo string) (bool, error)
	AssignRollNo(ctx context.Context, tx *sqlx.Tx, id, rollNo string) (bool, error)
}

type enrollmentSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type enrollmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error)
	ListByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) ([]models.EnrollmentDetail, error)
	CountBySession(ctx context.Context, tx *sqlx.Tx, sessionID string) (int, error)
	Create(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error
	Update(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error
	Delete(ctx context.Context, tx *sqlx.Tx, id string) error
}

type enrollmentLedgerStore interface {
	DeleteByEnrollment(ctx context.Context, tx *sqlx.Tx, enrollmentID string) (int64, error)
}

// EnrollRequest is the payload to enroll a student into a session.
type EnrollRequest struct {
	StudentID        string              `json:"student_id" validate:"required"`
	SessionID        string              `json:"session_id" validate:"required"`
	RegistrationDate string              `json:"registration_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate          string              `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Discount         decimal.NullDecimal `json:"discount"`
	Notes            string              `json:"notes" validate:"max=1000"`
}

// UpdateEnrollmentRequest changes the mutable fields of an enrollment. Nil fields are left alone.
type UpdateEnrollmentRequest struct {
	Status   *models.EnrollmentStatus `json:"status" validate:"omitempty,oneof=Active Inactive Completed"`
	DueDate  *string                  `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Discount *decimal.Decimal         `json:"discount"`
	Notes    *string                  `json:"notes" validate:"omitempty,max=1000"`
}

// EnrollmentService gatekeeps enrollment writes: one Active enrollment per student,
// registration fee waiver on re-enrollment, lazy roll number issuance.
type EnrollmentService struct {
	db          txProvider
	students    enrollmentStudentStore
	sessions    enrollmentSessionReader
	enrollments enrollmentStore
	ledger      enrollmentLedgerStore
	notifier    Notifier
	metrics     *MetricsService
	clock       clock.Clock
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(
	db txProvider,
	students enrollmentStudentStore,
	sessions enrollmentSessionReader,
	enrollments enrollmentStore,
	ledger enrollmentLedgerStore,
	notifier Notifier,
	metrics *MetricsService,
	clk clock.Clock,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.UTC()
	}
	return &EnrollmentService{
		db:          db,
		students:    students,
		sessions:    sessions,
		enrollments: enrollments,
		ledger:      ledger,
		notifier:    notifier,
		metrics:     metrics,
		clock:       clk,
		validator:   validate,
		logger:      logger,
	}
}

// Enroll creates an enrollment under a lock on the student row so that the single-active
// check and the insert cannot interleave with a concurrent enrollment.
func (s *EnrollmentService) Enroll(ctx context.Context, actorID string, req EnrollRequest) (result *dto.EnrollmentResult, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.Discount.Valid && req.Discount.Decimal.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discount must not be negative")
	}

	registrationDate := clock.Date(s.clock.Now())
	if req.RegistrationDate != "" {
		registrationDate, _ = clock.ParseDate(req.RegistrationDate)
	}
	var dueDate *time.Time
	if req.DueDate != "" {
		parsed, _ := clock.ParseDate(req.DueDate)
		dueDate = &parsed
	}

	session, err := s.sessions.FindByID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !session.Fee.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("session %q has no fee configured", session.Name))
	}
	if session.Status != models.SessionStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("session %q is %s", session.Name, session.Status))
	}
	if req.Discount.Valid && req.Discount.Decimal.GreaterThan(session.Fee) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discount exceeds session fee")
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

	student, err := s.students.LockByID(ctx, tx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock student")
	}

	existing, err := s.enrollments.ListByStudent(ctx, tx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	if conflict := activeEnrollment(existing, ""); conflict != nil {
		s.metrics.IncPolicyRejection(ruleSingleActive)
		return nil, policyViolation(conflict.SessionName)
	}

	enrollment := &models.Enrollment{
		StudentID:        student.ID,
		SessionID:        session.ID,
		RegistrationDate: &registrationDate,
		Fee:              session.Fee,
		RegistrationFee:  decimal.NewNullDecimal(session.RegistrationFee),
		Discount:         req.Discount,
		DueDate:          dueDate,
		Status:           models.EnrollmentStatusActive,
		Notes:            strings.TrimSpace(req.Notes),
	}
	waived := len(existing) > 0
	if waived {
		enrollment.RegistrationFee = decimal.NewNullDecimal(decimal.Zero)
		enrollment.Notes = appendNote(enrollment.Notes, waiverNote)
	}

	var issued *string
	if !student.HasRollNo() {
		rollNo, rollErr := s.issueRollNumber(ctx, tx, student.ID, session)
		if rollErr != nil {
			err = rollErr
			return nil, err
		}
		issued = &rollNo
	}

	if err = s.enrollments.Create(ctx, tx, enrollment); err != nil {
		if repository.IsUniqueViolation(err) {
			s.metrics.IncPolicyRejection(ruleSingleActive)
			return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "student already holds an active enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enrollment")
	}

	rollNo := student.RollNo
	if issued != nil {
		rollNo = issued
	}
	s.notifier.Notify(ctx, actorID, models.NotificationNewEntry, fmt.Sprintf("%s enrolled in %s (roll no %s)", student.FullName, session.Name, deref(rollNo)))
	s.logger.Info("student enrolled",
		zap.String("student_id", student.ID),
		zap.String("session_id", session.ID),
		zap.String("enrollment_id", enrollment.ID),
		zap.Bool("registration_waived", waived),
	)

	return &dto.EnrollmentResult{
		Enrollment:         *enrollment,
		RollNo:             rollNo,
		RollNoIssued:       issued != nil,
		RegistrationWaived: waived,
	}, nil
}

// Update changes status, due date, discount or notes. Moving an enrollment to Active is
// subject to the same single-active check as a new enrollment.
func (s *EnrollmentService) Update(ctx context.Context, actorID, id string, req UpdateEnrollmentRequest) (updated *models.Enrollment, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if req.Discount != nil && req.Discount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "discount must not be negative")
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

	current, err := s.lockEnrollment(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if req.Status != nil && *req.Status == models.EnrollmentStatusActive && current.Status != models.EnrollmentStatusActive {
		if _, err = s.students.LockByID(ctx, tx, current.StudentID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock student")
		}
		existing, listErr := s.enrollments.ListByStudent(ctx, tx, current.StudentID)
		if listErr != nil {
			err = listErr
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
		}
		if conflict := activeEnrollment(existing, current.ID); conflict != nil {
			s.metrics.IncPolicyRejection(ruleSingleActive)
			err = policyViolation(conflict.SessionName)
			return nil, err
		}
	}

	if req.Status != nil {
		current.Status = *req.Status
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			current.DueDate = nil
		} else {
			parsed, _ := clock.ParseDate(*req.DueDate)
			current.DueDate = &parsed
		}
	}
	if req.Discount != nil {
		if req.Discount.GreaterThan(current.Fee) {
			err = appErrors.Clone(appErrors.ErrValidation, "discount exceeds enrollment fee")
			return nil, err
		}
		current.Discount = decimal.NewNullDecimal(*req.Discount)
	}
	if req.Notes != nil {
		current.Notes = strings.TrimSpace(*req.Notes)
	}

	if err = s.enrollments.Update(ctx, tx, current); err != nil {
		if repository.IsUniqueViolation(err) {
			s.metrics.IncPolicyRejection(ruleSingleActive)
			return nil, appErrors.Clone(appErrors.ErrPolicyViolation, "student already holds an active enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enrollment")
	}

	s.notifier.Notify(ctx, actorID, models.NotificationUpdation, fmt.Sprintf("Enrollment %s updated (status %s)", current.ID, current.Status))
	return current, nil
}

// Withdraw sets the enrollment Inactive, freeing the student to enroll elsewhere.
func (s *EnrollmentService) Withdraw(ctx context.Context, actorID, id string) (*models.Enrollment, error) {
	status := models.EnrollmentStatusInactive
	return s.Update(ctx, actorID, id, UpdateEnrollmentRequest{Status: &status})
}

// Delete removes the enrollment together with its ledger entries.
func (s *EnrollmentService) Delete(ctx context.Context, actorID, id string) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := s.lockEnrollment(ctx, tx, id)
	if err != nil {
		return err
	}
	removed, err := s.ledger.DeleteByEnrollment(ctx, tx, current.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete ledger entries")
	}
	if err = s.enrollments.Delete(ctx, tx, current.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit deletion")
	}

	s.notifier.Notify(ctx, actorID, models.NotificationDeletion, fmt.Sprintf("Enrollment %s deleted with %d ledger entries", current.ID, removed))
	return nil
}

func (s *EnrollmentService) lockEnrollment(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	current, err := s.enrollments.LockByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock enrollment")
	}
	return current, nil
}

func (s *EnrollmentService) issueRollNumber(ctx context.Context, tx *sqlx.Tx, studentID string, session *models.Session) (string, error) {
	count, err := s.enrollments.CountBySession(ctx, tx, session.ID)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count session enrollments")
	}

	prefix := RollNumberPrefix(session.Name)
	for seq := count + 1; seq <= count+maxRollNoAttempts; seq++ {
		candidate := FormatRollNumber(prefix, seq)
		taken, err := s.students.RollNoExists(ctx, tx, candidate)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roll number")
		}
		if taken {
			continue
		}
		assigned, err := s.students.AssignRollNo(ctx, tx, studentID, candidate)
		if err != nil {
			if repository.IsUniqueViolation(err) {
				return "", appErrors.Clone(appErrors.ErrConflict, "roll number taken concurrently, retry")
			}
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign roll number")
		}
		if !assigned {
			return "", appErrors.Clone(appErrors.ErrConflict, "student roll number already assigned")
		}
		return candidate, nil
	}
	return "", appErrors.Clone(appErrors.ErrConflict, "no free roll number for session")
}

// RollNumberPrefix derives the roll number prefix for a session name: a known fragment's
// prefix, otherwise the first two characters of the trimmed name uppercased.
func RollNumberPrefix(sessionName string) string {
	upper := strings.ToUpper(strings.TrimSpace(sessionName))
	for _, p := range rollNoPrefixes {
		if strings.Contains(upper, p.fragment) {
			return p.prefix
		}
	}
	if upper == "" {
		return "XX"
	}
	runes := []rune(upper)
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return string(runes)
}

// FormatRollNumber joins prefix and a counter padded to two digits.
func FormatRollNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s%02d", prefix, seq)
}

func activeEnrollment(existing []models.EnrollmentDetail, excludeID string) *models.EnrollmentDetail {
	for i := range existing {
		if existing[i].ID != excludeID && existing[i].Status == models.EnrollmentStatusActive {
			return &existing[i]
		}
	}
	return nil
}

func policyViolation(sessionName string) *appErrors.Error {
	return appErrors.Clone(appErrors.ErrPolicyViolation,
		fmt.Sprintf("student already holds an active enrollment in %q; complete or withdraw it first", sessionName))
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
