package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// RenewalItem is one scheduled due created, or planned in a dry run.
type RenewalItem struct {
	EnrollmentID string          `json:"enrollment_id"`
	StudentName  string          `json:"student_name"`
	SessionName  string          `json:"session_name"`
	DueDate      time.Time       `json:"due_date"`
	Amount       decimal.Decimal `json:"amount"`
}

// RenewalSummary is the outcome of a renewal sweep.
type RenewalSummary struct {
	DryRun   bool           `json:"dry_run"`
	Checked  int            `json:"checked"`
	Created  []RenewalItem  `json:"created"`
	Existing int            `json:"existing"`
	Failures []SweepFailure `json:"failures,omitempty"`
	Skipped  bool           `json:"skipped,omitempty"`
}
