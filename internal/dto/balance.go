package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus summarises how much of a liability has been settled.
type PaymentStatus string

// Payment statuses.
const (
	PaymentStatusPaid    PaymentStatus = "Paid"
	PaymentStatusPartial PaymentStatus = "Partial"
	PaymentStatusUnpaid  PaymentStatus = "Unpaid"
)

// EnrollmentBalance is the derived balance of one enrollment.
type EnrollmentBalance struct {
	EnrollmentID    string          `json:"enrollment_id"`
	SessionID       string          `json:"session_id"`
	SessionName     string          `json:"session_name"`
	Status          string          `json:"status"`
	IsPrimary       bool            `json:"is_primary"`
	Fee             decimal.Decimal `json:"fee"`
	Discount        decimal.Decimal `json:"discount"`
	RegistrationFee decimal.Decimal `json:"registration_fee"`
	TotalFee        decimal.Decimal `json:"total_fee"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	Remaining       decimal.Decimal `json:"remaining_balance"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	ScheduledDues   int             `json:"scheduled_dues"`
}

// StudentBalance is the derived balance of a student across all enrollments.
type StudentBalance struct {
	StudentID     string              `json:"student_id"`
	StudentName   string              `json:"student_name"`
	RollNo        *string             `json:"rollno,omitempty"`
	TotalFee      decimal.Decimal     `json:"total_fee"`
	TotalPaid     decimal.Decimal     `json:"total_paid"`
	Remaining     decimal.Decimal     `json:"remaining_balance"`
	PaymentStatus PaymentStatus       `json:"payment_status"`
	Enrollments   []EnrollmentBalance `json:"enrollments"`
}

// OverdueEnrollment is an Active enrollment past its due date with money outstanding.
type OverdueEnrollment struct {
	EnrollmentID string          `json:"enrollment_id"`
	StudentID    string          `json:"student_id"`
	StudentName  string          `json:"student_name"`
	SessionName  string          `json:"session_name"`
	DueDate      time.Time       `json:"due_date"`
	DaysOverdue  int             `json:"days_overdue"`
	Remaining    decimal.Decimal `json:"remaining_balance"`
}

// PendingDueItem is one scheduled due row joined with its student and session.
type PendingDueItem struct {
	StudentID    string          `db:"student_id" json:"student_id"`
	StudentName  string          `db:"student_name" json:"student_name"`
	RollNo       *string         `db:"rollno" json:"rollno,omitempty"`
	EnrollmentID string          `db:"enrollment_id" json:"enrollment_id"`
	SessionName  string          `db:"session_name" json:"session_name"`
	EntryID      string          `db:"entry_id" json:"entry_id"`
	DueDate      time.Time       `db:"due_date" json:"due_date"`
	NetFee       decimal.Decimal `db:"net_fee" json:"net_fee"`
}

// PendingDuesDigest groups a student's scheduled dues.
type PendingDuesDigest struct {
	StudentID   string           `json:"student_id"`
	StudentName string           `json:"student_name"`
	RollNo      *string          `json:"rollno,omitempty"`
	Pending     decimal.Decimal  `json:"pending"`
	Dues        []PendingDueItem `json:"dues"`
}
