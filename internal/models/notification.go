package models

import "time"

// NotificationCategory classifies a notification event.
type NotificationCategory string

// Categories emitted by the ledger engine.
const (
	NotificationNewEntry       NotificationCategory = "New Entry"
	NotificationUpdation       NotificationCategory = "Updation"
	NotificationDeletion       NotificationCategory = "Deletion"
	NotificationNewFee         NotificationCategory = "New Fee"
	NotificationMonthlyRenewal NotificationCategory = "Monthly Renewal"
	NotificationGeneral        NotificationCategory = "General"
)

// Notification is a read/unread message attached to an actor.
type Notification struct {
	ID        string               `db:"id" json:"id"`
	ActorID   string               `db:"actor_id" json:"actor_id"`
	Category  NotificationCategory `db:"category" json:"category"`
	Content   string               `db:"content" json:"content"`
	IsRead    bool                 `db:"is_read" json:"is_read"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}
