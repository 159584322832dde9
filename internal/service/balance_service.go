package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/models"
	appErrors "github.com/noah-isme/tuition-ledger-api/pkg/errors"
)

type balanceStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type balanceEnrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	ListByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) ([]models.EnrollmentDetail, error)
	ListByStudentIDs(ctx context.Context, studentIDs []string) ([]models.Enrollment, error)
	ListOverdueCandidates(ctx context.Context, today time.Time) ([]models.EnrollmentDetail, error)
}

type balanceSessionReader interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Session, error)
}

type balanceLedgerReader interface {
	ListByEnrollmentIDs(ctx context.Context, enrollmentIDs []string) (map[string][]models.LedgerEntry, error)
	ListPendingDues(ctx context.Context) ([]dto.PendingDueItem, error)
}

// BalanceService answers balance queries by recomputing from the ledger on every call.
type BalanceService struct {
	students    balanceStudentReader
	enrollments balanceEnrollmentReader
	sessions    balanceSessionReader
	ledger      balanceLedgerReader
	logger      *zap.Logger
}

// NewBalanceService constructs the service.
func NewBalanceService(students balanceStudentReader, enrollments balanceEnrollmentReader, sessions balanceSessionReader, ledger balanceLedgerReader, logger *zap.Logger) *BalanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceService{students: students, enrollments: enrollments, sessions: sessions, ledger: ledger, logger: logger}
}

// StudentBalance returns the student's derived balance.
func (s *BalanceService) StudentBalance(ctx context.Context, studentID string) (*dto.StudentBalance, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	sl, err := s.loadStudentLedger(ctx, *student)
	if err != nil {
		return nil, err
	}
	balance := BuildStudentBalance(sl)
	return &balance, nil
}

// EnrollmentBalance returns one enrollment's balance, evaluated against its student's
// other enrollments to decide whether it carries the registration fee.
func (s *BalanceService) EnrollmentBalance(ctx context.Context, enrollmentID string) (*dto.EnrollmentBalance, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	sl, err := s.loadStudentLedger(ctx, models.Student{ID: enrollment.StudentID})
	if err != nil {
		return nil, err
	}
	for _, el := range sl.Enrollments {
		if el.Enrollment.ID == enrollmentID {
			balance := BuildEnrollmentBalance(sl, el)
			return &balance, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
}

// Overdue lists Active enrollments of Active students whose due date is before today and
// which still carry a balance.
func (s *BalanceService) Overdue(ctx context.Context, today time.Time) ([]dto.OverdueEnrollment, error) {
	candidates, err := s.enrollments.ListOverdueCandidates(ctx, today)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overdue enrollments")
	}
	if len(candidates) == 0 {
		return []dto.OverdueEnrollment{}, nil
	}

	studentIDs := uniqueStrings(len(candidates), func(i int) string { return candidates[i].StudentID })
	ledgers, err := s.loadLedgers(ctx, studentIDs)
	if err != nil {
		return nil, err
	}

	result := make([]dto.OverdueEnrollment, 0, len(candidates))
	for _, candidate := range candidates {
		sl := ledgers[candidate.StudentID]
		for _, el := range sl.Enrollments {
			if el.Enrollment.ID != candidate.ID {
				continue
			}
			remaining := EnrollmentBalance(el, IsPrimary(sl, el.Enrollment.ID))
			if !remaining.IsPositive() {
				break
			}
			result = append(result, dto.OverdueEnrollment{
				EnrollmentID: candidate.ID,
				StudentID:    candidate.StudentID,
				StudentName:  candidate.StudentName,
				SessionName:  candidate.SessionName,
				DueDate:      *candidate.DueDate,
				DaysOverdue:  int(today.Sub(*candidate.DueDate).Hours() / 24),
				Remaining:    remaining,
			})
			break
		}
	}
	return result, nil
}

// PendingDues groups scheduled dues of Active students. Each scheduled due is valued at
// its enrollment's net fee.
func (s *BalanceService) PendingDues(ctx context.Context) ([]dto.PendingDuesDigest, error) {
	items, err := s.ledger.ListPendingDues(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load pending dues")
	}

	digests := make([]dto.PendingDuesDigest, 0)
	index := make(map[string]int)
	for _, item := range items {
		i, ok := index[item.StudentID]
		if !ok {
			digests = append(digests, dto.PendingDuesDigest{
				StudentID:   item.StudentID,
				StudentName: item.StudentName,
				RollNo:      item.RollNo,
				Pending:     decimal.Zero,
			})
			i = len(digests) - 1
			index[item.StudentID] = i
		}
		digests[i].Dues = append(digests[i].Dues, item)
		digests[i].Pending = digests[i].Pending.Add(floorZero(item.NetFee))
	}
	return digests, nil
}

func (s *BalanceService) loadStudentLedger(ctx context.Context, student models.Student) (models.StudentLedger, error) {
	details, err := s.enrollments.ListByStudent(ctx, nil, student.ID)
	if err != nil {
		return models.StudentLedger{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	enrollments := make([]models.Enrollment, 0, len(details))
	for _, detail := range details {
		enrollments = append(enrollments, detail.Enrollment)
	}
	ledgers, err := s.assemble(ctx, []models.Student{student}, enrollments)
	if err != nil {
		return models.StudentLedger{}, err
	}
	return ledgers[student.ID], nil
}

func (s *BalanceService) loadLedgers(ctx context.Context, studentIDs []string) (map[string]models.StudentLedger, error) {
	enrollments, err := s.enrollments.ListByStudentIDs(ctx, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	students := make([]models.Student, 0, len(studentIDs))
	for _, id := range studentIDs {
		students = append(students, models.Student{ID: id})
	}
	return s.assemble(ctx, students, enrollments)
}

func (s *BalanceService) assemble(ctx context.Context, students []models.Student, enrollments []models.Enrollment) (map[string]models.StudentLedger, error) {
	sessionIDs := uniqueStrings(len(enrollments), func(i int) string { return enrollments[i].SessionID })
	enrollmentIDs := uniqueStrings(len(enrollments), func(i int) string { return enrollments[i].ID })

	sessions, err := s.sessions.FindByIDs(ctx, sessionIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}
	entries, err := s.ledger.ListByEnrollmentIDs(ctx, enrollmentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger")
	}

	result := make(map[string]models.StudentLedger, len(students))
	for _, student := range students {
		result[student.ID] = models.StudentLedger{Student: student}
	}
	for _, enrollment := range enrollments {
		sl := result[enrollment.StudentID]
		sl.Student.ID = enrollment.StudentID
		sl.Enrollments = append(sl.Enrollments, models.EnrollmentLedger{
			Enrollment: enrollment,
			Session:    sessions[enrollment.SessionID],
			Entries:    entries[enrollment.ID],
		})
		result[enrollment.StudentID] = sl
	}
	return result, nil
}

func uniqueStrings(n int, at func(int) string) []string {
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		v := at(i)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
