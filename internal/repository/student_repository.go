package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tuition-ledger-api/internal/models"
)

const studentColumns = `id, rollno, full_name, father_name, email, phone, status, inactive_reason, created_at, updated_at`

// StudentRepository persists students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the filter and the total match count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	args := []interface{}{}
	conditions := []string{"1=1"}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(COALESCE(rollno, '')) LIKE $%d)", len(args), len(args)))
	}
	where := " FROM students WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"full_name":  "full_name",
		"rollno":     "rollno",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s%s ORDER BY %s %s, id LIMIT %d OFFSET %d", studentColumns, where, column, order, size, (page-1)*size)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns the student or sql.ErrNoRows.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// LockByID loads the student row with FOR UPDATE, serialising enrollment writes for that student.
func (r *StudentRepository) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error) {
	var student models.Student
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if student.Status == "" {
		student.Status = models.StudentStatusActive
	}

	const query = `
INSERT INTO students (id, rollno, full_name, father_name, email, phone, status, inactive_reason, created_at, updated_at)
VALUES (:id, :rollno, :full_name, :father_name, :email, :phone, :status, :inactive_reason, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext(r.db, tx), query, student); err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// RollNoExists reports whether any student already holds rollNo.
func (r *StudentRepository) RollNoExists(ctx context.Context, tx *sqlx.Tx, rollNo string) (bool, error) {
	var exists int
	err := sqlx.GetContext(ctx, ext(r.db, tx), &exists, `SELECT 1 FROM students WHERE rollno = $1 LIMIT 1`, rollNo)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check rollno: %w", err)
	}
	return true, nil
}

// AssignRollNo sets the roll number only when none is set. It returns false when the
// student already had one.
func (r *StudentRepository) AssignRollNo(ctx context.Context, tx *sqlx.Tx, id, rollNo string) (bool, error) {
	const query = `UPDATE students SET rollno = $2, updated_at = NOW() WHERE id = $1 AND rollno IS NULL`
	res, err := tx.ExecContext(ctx, query, id, rollNo)
	if err != nil {
		return false, fmt.Errorf("assign rollno: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("assign rollno rows: %w", err)
	}
	return affected > 0, nil
}

// UpdateStatus sets status and inactivation reason.
func (r *StudentRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, status models.StudentStatus, reason *models.InactiveReason) error {
	const query = `UPDATE students SET status = $2, inactive_reason = $3, updated_at = NOW() WHERE id = $1`
	res, err := ext(r.db, tx).ExecContext(ctx, query, id, status, reason)
	if err != nil {
		return fmt.Errorf("update student status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetStatusMany moves the given students to status, clearing any inactivation reason.
func (r *StudentRepository) SetStatusMany(ctx context.Context, tx *sqlx.Tx, ids []string, status models.StudentStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE students SET status = $2, inactive_reason = NULL, updated_at = NOW() WHERE id = ANY($1) AND status <> $2`
	res, err := ext(r.db, tx).ExecContext(ctx, query, pq.Array(ids), status)
	if err != nil {
		return 0, fmt.Errorf("update student statuses: %w", err)
	}
	return res.RowsAffected()
}

// CompleteExStudents marks Completed every student whose enrollments all sit in Completed
// sessions and returns their names.
func (r *StudentRepository) CompleteExStudents(ctx context.Context) ([]string, error) {
	const query = `
UPDATE students s SET status = 'Completed', inactive_reason = NULL, updated_at = NOW()
WHERE s.status <> 'Completed'
	AND EXISTS (SELECT 1 FROM enrollments e WHERE e.student_id = s.id)
	AND NOT EXISTS (
		SELECT 1 FROM enrollments e
		JOIN sessions ss ON ss.id = e.session_id
		WHERE e.student_id = s.id AND ss.status <> 'Completed'
	)
RETURNING s.full_name`
	var names []string
	if err := r.db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("reconcile student statuses: %w", err)
	}
	return names, nil
}

// NamesByIDs returns full names keyed by id.
func (r *StudentRepository) NamesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []struct {
		ID       string `db:"id"`
		FullName string `db:"full_name"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, full_name FROM students WHERE id = ANY($1) ORDER BY full_name`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("load student names: %w", err)
	}
	for _, row := range rows {
		result[row.ID] = row.FullName
	}
	return result, nil
}

// Delete removes the student row. Dependent rows must already be gone.
func (r *StudentRepository) Delete(ctx context.Context, tx *sqlx.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
