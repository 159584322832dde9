package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tuition-ledger-api/internal/models"
)

// NotificationRepository stores notification events for the operator UI to read.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert writes one notification.
func (r *NotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO notifications (id, actor_id, category, content, is_read, created_at)
VALUES (:id, :actor_id, :category, :content, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListUnread returns the actor's unread notifications, newest first.
func (r *NotificationRepository) ListUnread(ctx context.Context, actorID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []models.Notification
	const query = `
SELECT id, actor_id, category, content, is_read, created_at
FROM notifications
WHERE actor_id = $1 AND is_read = FALSE
ORDER BY created_at DESC
LIMIT $2`
	if err := r.db.SelectContext(ctx, &items, query, actorID, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// MarkRead flags the actor's notifications as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, actorID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`UPDATE notifications SET is_read = TRUE WHERE actor_id = ? AND id IN (?)`, actorID, ids)
	if err != nil {
		return 0, fmt.Errorf("build mark read query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}
