package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "Active"
	EnrollmentStatusInactive  EnrollmentStatus = "Inactive"
	EnrollmentStatusCompleted EnrollmentStatus = "Completed"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusInactive, EnrollmentStatusCompleted:
		return true
	}
	return false
}

// Enrollment joins a student to a session. Fee and RegistrationFee are snapshots taken
// from the session when the row was created.
type Enrollment struct {
	ID               string              `db:"id" json:"id"`
	StudentID        string              `db:"student_id" json:"student_id"`
	SessionID        string              `db:"session_id" json:"session_id"`
	RegistrationDate *time.Time          `db:"registration_date" json:"registration_date,omitempty"`
	Fee              decimal.Decimal     `db:"fee" json:"fee"`
	RegistrationFee  decimal.NullDecimal `db:"registration_fee" json:"registration_fee"`
	Discount         decimal.NullDecimal `db:"discount" json:"discount"`
	DueDate          *time.Time          `db:"due_date" json:"due_date,omitempty"`
	NextMonthlyDue   *time.Time          `db:"next_monthly_due" json:"next_monthly_due,omitempty"`
	Status           EnrollmentStatus    `db:"status" json:"status"`
	Notes            string              `db:"notes" json:"notes"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updated_at"`
}

// NetFee is the fee after discount. A missing discount counts as zero.
func (e Enrollment) NetFee() decimal.Decimal {
	return e.Fee.Sub(e.DiscountOrZero())
}

// DiscountOrZero returns the discount, treating NULL as zero.
func (e Enrollment) DiscountOrZero() decimal.Decimal {
	if !e.Discount.Valid {
		return decimal.Zero
	}
	return e.Discount.Decimal
}

// EnrollmentDetail enriches an enrollment with the names operators see.
type EnrollmentDetail struct {
	Enrollment
	StudentName   string        `db:"student_name" json:"student_name"`
	StudentStatus StudentStatus `db:"student_status" json:"student_status"`
	SessionName   string        `db:"session_name" json:"session_name"`
	SessionType   SessionType   `db:"session_type" json:"session_type"`
}
