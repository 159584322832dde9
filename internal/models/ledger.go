package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry is one persisted ledger row. A zero amount marks a scheduled due that has
// not been collected; use Record to read it as a typed PaymentRecord.
type LedgerEntry struct {
	ID           string          `db:"id" json:"id"`
	EnrollmentID string          `db:"enrollment_id" json:"enrollment_id"`
	ActorID      string          `db:"actor_id" json:"actor_id"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Date         time.Time       `db:"date" json:"date"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// PaymentRecord is either Paid or ScheduledDue.
type PaymentRecord interface {
	isPaymentRecord()
	EntryID() string
	DueOn() time.Time
}

// Paid is a collected payment.
type Paid struct {
	ID     string
	Amount decimal.Decimal
	Date   time.Time
}

// ScheduledDue is an expected installment or monthly charge not yet collected.
type ScheduledDue struct {
	ID   string
	Date time.Time
}

func (Paid) isPaymentRecord()         {}
func (ScheduledDue) isPaymentRecord() {}

// EntryID implements PaymentRecord.
func (p Paid) EntryID() string { return p.ID }

// DueOn implements PaymentRecord.
func (p Paid) DueOn() time.Time { return p.Date }

// EntryID implements PaymentRecord.
func (d ScheduledDue) EntryID() string { return d.ID }

// DueOn implements PaymentRecord.
func (d ScheduledDue) DueOn() time.Time { return d.Date }

// Record classifies the row. Non-positive amounts read as scheduled dues.
func (e LedgerEntry) Record() PaymentRecord {
	if e.Amount.IsPositive() {
		return Paid{ID: e.ID, Amount: e.Amount, Date: e.Date}
	}
	return ScheduledDue{ID: e.ID, Date: e.Date}
}

// NewLedgerEntry builds the row for a record under enrollmentID attributed to actorID.
func NewLedgerEntry(enrollmentID, actorID string, record PaymentRecord) LedgerEntry {
	entry := LedgerEntry{
		ID:           record.EntryID(),
		EnrollmentID: enrollmentID,
		ActorID:      actorID,
		Amount:       decimal.Zero,
		Date:         record.DueOn(),
	}
	if paid, ok := record.(Paid); ok {
		entry.Amount = paid.Amount
	}
	return entry
}
