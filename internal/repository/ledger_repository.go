package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/models"
)

const ledgerColumns = `id, enrollment_id, actor_id, amount, date, created_at`

// LedgerRepository persists ledger entries. Rows are append-mostly: the only in-place
// update converts a scheduled due into a payment.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Insert appends an entry. A second scheduled due for the same enrollment and date
// trips a unique index; check with IsUniqueViolation.
func (r *LedgerRepository) Insert(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	const query = `
INSERT INTO ledger_entries (id, enrollment_id, actor_id, amount, date, created_at)
VALUES (:id, :enrollment_id, :actor_id, :amount, :date, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext(r.db, tx), query, entry); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// FindByID returns the entry or sql.ErrNoRows.
func (r *LedgerRepository) FindByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.GetContext(ctx, &entry, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByEnrollment returns the enrollment's entries ordered by date.
func (r *LedgerRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE enrollment_id = $1 ORDER BY date, created_at`
	if err := r.db.SelectContext(ctx, &entries, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

// ListByEnrollmentIDs returns entries grouped by enrollment id.
func (r *LedgerRepository) ListByEnrollmentIDs(ctx context.Context, enrollmentIDs []string) (map[string][]models.LedgerEntry, error) {
	result := make(map[string][]models.LedgerEntry, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return result, nil
	}
	var entries []models.LedgerEntry
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE enrollment_id = ANY($1) ORDER BY date, created_at`
	if err := r.db.SelectContext(ctx, &entries, query, pq.Array(enrollmentIDs)); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	for _, entry := range entries {
		result[entry.EnrollmentID] = append(result[entry.EnrollmentID], entry)
	}
	return result, nil
}

// LatestPaymentDate returns the date of the most recent positive entry, or nil.
func (r *LedgerRepository) LatestPaymentDate(ctx context.Context, tx *sqlx.Tx, enrollmentID string) (*time.Time, error) {
	var latest sql.NullTime
	const query = `SELECT MAX(date) FROM ledger_entries WHERE enrollment_id = $1 AND amount > 0`
	if err := sqlx.GetContext(ctx, ext(r.db, tx), &latest, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("latest payment date: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

// DueExists reports whether a scheduled due already exists for the enrollment on date.
func (r *LedgerRepository) DueExists(ctx context.Context, tx *sqlx.Tx, enrollmentID string, date time.Time) (bool, error) {
	var exists int
	const query = `SELECT 1 FROM ledger_entries WHERE enrollment_id = $1 AND date = $2 AND amount = 0 LIMIT 1`
	if err := sqlx.GetContext(ctx, ext(r.db, tx), &exists, query, enrollmentID, date); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check scheduled due: %w", err)
	}
	return true, nil
}

// Settle converts a scheduled due into a payment. It returns false when the entry is
// missing or already paid.
func (r *LedgerRepository) Settle(ctx context.Context, tx *sqlx.Tx, id, actorID string, amount decimal.Decimal, date time.Time) (bool, error) {
	const query = `UPDATE ledger_entries SET amount = $2, actor_id = $3, date = $4 WHERE id = $1 AND amount = 0`
	return affectedOne(ext(r.db, tx).ExecContext(ctx, query, id, amount, actorID, date))
}

// DeleteByEnrollment removes the enrollment's entries.
func (r *LedgerRepository) DeleteByEnrollment(ctx context.Context, tx *sqlx.Tx, enrollmentID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE enrollment_id = $1`, enrollmentID)
	if err != nil {
		return 0, fmt.Errorf("delete ledger entries: %w", err)
	}
	return res.RowsAffected()
}

// DeleteByStudent removes every entry under the student's enrollments.
func (r *LedgerRepository) DeleteByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) (int64, error) {
	const query = `DELETE FROM ledger_entries WHERE enrollment_id IN (SELECT id FROM enrollments WHERE student_id = $1)`
	res, err := tx.ExecContext(ctx, query, studentID)
	if err != nil {
		return 0, fmt.Errorf("delete student ledger entries: %w", err)
	}
	return res.RowsAffected()
}

// ListPendingDues returns the scheduled dues of Active students with enrollment context.
func (r *LedgerRepository) ListPendingDues(ctx context.Context) ([]dto.PendingDueItem, error) {
	const query = `
SELECT
	st.id AS student_id,
	st.full_name AS student_name,
	st.rollno AS rollno,
	e.id AS enrollment_id,
	ss.name AS session_name,
	l.id AS entry_id,
	l.date AS due_date,
	e.fee - COALESCE(e.discount, 0) AS net_fee
FROM ledger_entries l
JOIN enrollments e ON e.id = l.enrollment_id
JOIN students st ON st.id = e.student_id
JOIN sessions ss ON ss.id = e.session_id
WHERE l.amount = 0 AND st.status = 'Active'
ORDER BY st.full_name, st.id, l.date`
	var items []dto.PendingDueItem
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list pending dues: %w", err)
	}
	return items, nil
}
