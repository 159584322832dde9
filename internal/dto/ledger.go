package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry kinds as rendered to clients.
const (
	LedgerKindPaid         = "paid"
	LedgerKindScheduledDue = "scheduled_due"
)

// LedgerEntryView renders a ledger row with its kind made explicit.
type LedgerEntryView struct {
	ID           string           `json:"id"`
	EnrollmentID string           `json:"enrollment_id"`
	Kind         string           `json:"kind"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Date         time.Time        `json:"date"`
	ActorID      string           `json:"actor_id"`
}

// InstallmentPlanResult lists the entries created by an installment plan.
type InstallmentPlanResult struct {
	EnrollmentID string            `json:"enrollment_id"`
	Entries      []LedgerEntryView `json:"entries"`
}
