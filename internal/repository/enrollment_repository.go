package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tuition-ledger-api/internal/models"
)

const enrollmentColumns = `e.id, e.student_id, e.session_id, e.registration_date, e.fee, e.registration_fee, e.discount,
	e.due_date, e.next_monthly_due, e.status, e.notes, e.created_at, e.updated_at`

const enrollmentDetailSelect = `SELECT ` + enrollmentColumns + `,
	st.full_name AS student_name, st.status AS student_status, ss.name AS session_name, ss.type AS session_type
FROM enrollments e
JOIN students st ON st.id = e.student_id
JOIN sessions ss ON ss.id = e.session_id`

// EnrollmentRepository persists enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns the enrollment or sql.ErrNoRows.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, `SELECT `+enrollmentColumns+` FROM enrollments e WHERE e.id = $1`, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// LockByID loads the enrollment with FOR UPDATE.
func (r *EnrollmentRepository) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := tx.GetContext(ctx, &enrollment, `SELECT `+enrollmentColumns+` FROM enrollments e WHERE e.id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByStudent returns every enrollment of the student with session names, oldest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) ([]models.EnrollmentDetail, error) {
	var items []models.EnrollmentDetail
	query := enrollmentDetailSelect + ` WHERE e.student_id = $1 ORDER BY e.registration_date NULLS LAST, e.id`
	if err := sqlx.SelectContext(ctx, ext(r.db, tx), &items, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return items, nil
}

// CountBySession returns how many enrollments the session has.
func (r *EnrollmentRepository) CountBySession(ctx context.Context, tx *sqlx.Tx, sessionID string) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, ext(r.db, tx), &count, `SELECT COUNT(*) FROM enrollments WHERE session_id = $1`, sessionID); err != nil {
		return 0, fmt.Errorf("count session enrollments: %w", err)
	}
	return count, nil
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now

	const query = `
INSERT INTO enrollments (id, student_id, session_id, registration_date, fee, registration_fee, discount, due_date, next_monthly_due, status, notes, created_at, updated_at)
VALUES (:id, :student_id, :session_id, :registration_date, :fee, :registration_fee, :discount, :due_date, :next_monthly_due, :status, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext(r.db, tx), query, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// Update writes the mutable enrollment fields.
func (r *EnrollmentRepository) Update(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `
UPDATE enrollments SET
	discount = :discount,
	due_date = :due_date,
	next_monthly_due = :next_monthly_due,
	status = :status,
	notes = :notes,
	updated_at = :updated_at
WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, ext(r.db, tx), query, enrollment)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CompleteActiveBySession moves the session's Active enrollments to Completed and returns
// the affected student ids.
func (r *EnrollmentRepository) CompleteActiveBySession(ctx context.Context, tx *sqlx.Tx, sessionID string) ([]string, error) {
	var studentIDs []string
	const query = `UPDATE enrollments SET status = 'Completed', updated_at = NOW() WHERE session_id = $1 AND status = 'Active' RETURNING student_id`
	if err := tx.SelectContext(ctx, &studentIDs, query, sessionID); err != nil {
		return nil, fmt.Errorf("complete session enrollments: %w", err)
	}
	return studentIDs, nil
}

// ListCompletedBySession returns the session's Completed enrollments.
func (r *EnrollmentRepository) ListCompletedBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error) {
	var items []models.Enrollment
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.session_id = $1 AND e.status = 'Completed' ORDER BY e.id`
	if err := r.db.SelectContext(ctx, &items, query, sessionID); err != nil {
		return nil, fmt.Errorf("list completed enrollments: %w", err)
	}
	return items, nil
}

// HasOtherActive reports whether the student holds an Active enrollment other than excludeID.
func (r *EnrollmentRepository) HasOtherActive(ctx context.Context, tx *sqlx.Tx, studentID, excludeID string) (bool, error) {
	var exists int
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND id <> $2 AND status = 'Active' LIMIT 1`
	if err := sqlx.GetContext(ctx, ext(r.db, tx), &exists, query, studentID, excludeID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollments: %w", err)
	}
	return true, nil
}

// Reactivate moves a Completed enrollment back to Active.
func (r *EnrollmentRepository) Reactivate(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	const query = `UPDATE enrollments SET status = 'Active', updated_at = NOW() WHERE id = $1 AND status = 'Completed'`
	return affectedOne(tx.ExecContext(ctx, query, id))
}

// ListActiveMonthly returns Active enrollments under monthly sessions of any status.
func (r *EnrollmentRepository) ListActiveMonthly(ctx context.Context) ([]models.EnrollmentDetail, error) {
	var items []models.EnrollmentDetail
	query := enrollmentDetailSelect + ` WHERE e.status = 'Active' AND ss.type = 'Monthly' ORDER BY e.id`
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list monthly enrollments: %w", err)
	}
	return items, nil
}

// ListOverdueCandidates returns Active enrollments of Active students whose due date has passed.
func (r *EnrollmentRepository) ListOverdueCandidates(ctx context.Context, today time.Time) ([]models.EnrollmentDetail, error) {
	var items []models.EnrollmentDetail
	query := enrollmentDetailSelect + ` WHERE e.status = 'Active' AND st.status = 'Active' AND e.due_date IS NOT NULL AND e.due_date < $1 ORDER BY e.due_date, e.id`
	if err := r.db.SelectContext(ctx, &items, query, today); err != nil {
		return nil, fmt.Errorf("list overdue enrollments: %w", err)
	}
	return items, nil
}

// ListByStudentIDs returns enrollments for many students.
func (r *EnrollmentRepository) ListByStudentIDs(ctx context.Context, studentIDs []string) ([]models.Enrollment, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	var items []models.Enrollment
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments e WHERE e.student_id = ANY($1) ORDER BY e.student_id, e.id`
	if err := r.db.SelectContext(ctx, &items, query, pq.Array(studentIDs)); err != nil {
		return nil, fmt.Errorf("list enrollments by students: %w", err)
	}
	return items, nil
}

// SetNextMonthlyDue records the next monthly due date.
func (r *EnrollmentRepository) SetNextMonthlyDue(ctx context.Context, tx *sqlx.Tx, id string, due time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE enrollments SET next_monthly_due = $2, updated_at = NOW() WHERE id = $1`, id, due); err != nil {
		return fmt.Errorf("set next monthly due: %w", err)
	}
	return nil
}

// Delete removes one enrollment row.
func (r *EnrollmentRepository) Delete(ctx context.Context, tx *sqlx.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByStudent removes every enrollment of the student.
func (r *EnrollmentRepository) DeleteByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE student_id = $1`, studentID)
	if err != nil {
		return 0, fmt.Errorf("delete student enrollments: %w", err)
	}
	return res.RowsAffected()
}
