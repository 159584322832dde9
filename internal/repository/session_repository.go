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

const sessionColumns = `id, name, type, start_date, end_date, registration_fee, fee, status, created_at, updated_at`

// SessionRepository persists course sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID returns the session or sql.ErrNoRows.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := r.db.GetContext(ctx, &session, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByIDs loads sessions keyed by id.
func (r *SessionRepository) FindByIDs(ctx context.Context, ids []string) (map[string]models.Session, error) {
	result := make(map[string]models.Session, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, `SELECT `+sessionColumns+` FROM sessions WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for _, s := range sessions {
		result[s.ID] = s
	}
	return result, nil
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	const query = `
INSERT INTO sessions (id, name, type, start_date, end_date, registration_fee, fee, status, created_at, updated_at)
VALUES (:id, :name, :type, :start_date, :end_date, :registration_fee, :fee, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// List returns sessions, optionally filtered by status, newest first.
func (r *SessionRepository) List(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY start_date DESC NULLS LAST, name`
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ListExpired returns Active sessions whose end date is strictly before today.
func (r *SessionRepository) ListExpired(ctx context.Context, today time.Time) ([]models.Session, error) {
	var sessions []models.Session
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE status = 'Active' AND end_date IS NOT NULL AND end_date < $1 ORDER BY end_date, id`
	if err := r.db.SelectContext(ctx, &sessions, query, today); err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return sessions, nil
}

// ListCompleted returns Completed sessions, optionally restricted to ids.
func (r *SessionRepository) ListCompleted(ctx context.Context, ids []string) ([]models.Session, error) {
	var sessions []models.Session
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE status = 'Completed'`
	args := []interface{}{}
	if len(ids) > 0 {
		query += ` AND id = ANY($1)`
		args = append(args, pq.Array(ids))
	}
	query += ` ORDER BY name, id`
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	return sessions, nil
}

// CompleteIfExpired moves an Active session past its end date to Completed. It returns
// false when another writer got there first or the precondition no longer holds.
func (r *SessionRepository) CompleteIfExpired(ctx context.Context, tx *sqlx.Tx, id string, today time.Time) (bool, error) {
	const query = `UPDATE sessions SET status = 'Completed', updated_at = NOW() WHERE id = $1 AND status = 'Active' AND end_date < $2`
	return affectedOne(tx.ExecContext(ctx, query, id, today))
}

// Reactivate moves a Completed session back to Active.
func (r *SessionRepository) Reactivate(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	const query = `UPDATE sessions SET status = 'Active', updated_at = NOW() WHERE id = $1 AND status = 'Completed'`
	return affectedOne(tx.ExecContext(ctx, query, id))
}

// UpdateStatus sets the session status unconditionally.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, fmt.Errorf("conditional update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("conditional update rows: %w", err)
	}
	return affected > 0, nil
}
