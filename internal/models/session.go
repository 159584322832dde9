package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionType distinguishes fixed-period courses from monthly billed ones.
type SessionType string

// Session types.
const (
	SessionTypeTimePeriod SessionType = "TimePeriod"
	SessionTypeMonthly    SessionType = "Monthly"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	return t == SessionTypeTimePeriod || t == SessionTypeMonthly
}

// SessionStatus is the lifecycle state of a course offering.
type SessionStatus string

// Session statuses. Active and Completed form the automatic cycle; Inactive is set manually.
const (
	SessionStatusActive    SessionStatus = "Active"
	SessionStatusInactive  SessionStatus = "Inactive"
	SessionStatusCompleted SessionStatus = "Completed"
)

// Session is a course offering students enroll into.
type Session struct {
	ID              string          `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	Type            SessionType     `db:"type" json:"type"`
	StartDate       *time.Time      `db:"start_date" json:"start_date,omitempty"`
	EndDate         *time.Time      `db:"end_date" json:"end_date,omitempty"`
	RegistrationFee decimal.Decimal `db:"registration_fee" json:"registration_fee"`
	Fee             decimal.Decimal `db:"fee" json:"fee"`
	Status          SessionStatus   `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the session ended strictly before today.
func (s Session) Expired(today time.Time) bool {
	return s.EndDate != nil && s.EndDate.Before(today)
}
