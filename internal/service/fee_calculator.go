package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/models"
)

// Balance arithmetic. Everything here is pure: no I/O, no errors, missing amounts count
// as zero. Balances are recomputed from the ledger on every read.

// NetFee returns fee minus discount, floored at zero.
func NetFee(e models.Enrollment) decimal.Decimal {
	net := e.NetFee()
	if net.IsNegative() {
		return decimal.Zero
	}
	return net
}

// RegistrationFee returns the enrollment's snapshotted registration fee, falling back to
// the session's configured fee when the snapshot is absent.
func RegistrationFee(el models.EnrollmentLedger) decimal.Decimal {
	if el.Enrollment.RegistrationFee.Valid {
		return el.Enrollment.RegistrationFee.Decimal
	}
	return el.Session.RegistrationFee
}

// PrimaryEnrollment picks the student's earliest-registered enrollment of any status,
// breaking ties by lowest id. Enrollments without a registration date sort last. Later
// enrollments have their registration fee waived, so the first one stays primary after it
// completes and its registration fee keeps counting. ok is false only when the student has
// no enrollments.
func PrimaryEnrollment(sl models.StudentLedger) (models.EnrollmentLedger, bool) {
	if len(sl.Enrollments) == 0 {
		return models.EnrollmentLedger{}, false
	}
	ordered := make([]models.EnrollmentLedger, len(sl.Enrollments))
	copy(ordered, sl.Enrollments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return registeredBefore(ordered[i].Enrollment, ordered[j].Enrollment)
	})
	return ordered[0], true
}

// IsPrimary reports whether enrollmentID is the student's primary enrollment.
func IsPrimary(sl models.StudentLedger, enrollmentID string) bool {
	primary, ok := PrimaryEnrollment(sl)
	return ok && primary.Enrollment.ID == enrollmentID
}

func registeredBefore(a, b models.Enrollment) bool {
	switch {
	case a.RegistrationDate == nil && b.RegistrationDate == nil:
		return a.ID < b.ID
	case a.RegistrationDate == nil:
		return false
	case b.RegistrationDate == nil:
		return true
	case !a.RegistrationDate.Equal(*b.RegistrationDate):
		return a.RegistrationDate.Before(*b.RegistrationDate)
	default:
		return a.ID < b.ID
	}
}

// EnrollmentTotalFee is the net fee plus the registration fee when primary.
func EnrollmentTotalFee(el models.EnrollmentLedger, primary bool) decimal.Decimal {
	total := NetFee(el.Enrollment)
	if primary {
		total = total.Add(RegistrationFee(el))
	}
	return total
}

// EnrollmentPaid sums the enrollment's collected payments.
func EnrollmentPaid(el models.EnrollmentLedger) decimal.Decimal {
	paid := decimal.Zero
	for _, entry := range el.Entries {
		if p, ok := entry.Record().(models.Paid); ok {
			paid = paid.Add(p.Amount)
		}
	}
	return paid
}

// EnrollmentBalance is max(0, total fee - paid) for one enrollment.
func EnrollmentBalance(el models.EnrollmentLedger, primary bool) decimal.Decimal {
	return floorZero(EnrollmentTotalFee(el, primary).Sub(EnrollmentPaid(el)))
}

// TotalFee sums net fees across all enrollments of any status plus the primary
// enrollment's registration fee.
func TotalFee(sl models.StudentLedger) decimal.Decimal {
	total := decimal.Zero
	for _, el := range sl.Enrollments {
		total = total.Add(NetFee(el.Enrollment))
	}
	if primary, ok := PrimaryEnrollment(sl); ok {
		total = total.Add(RegistrationFee(primary))
	}
	return total
}

// TotalPaid sums every collected payment across the student's enrollments.
func TotalPaid(sl models.StudentLedger) decimal.Decimal {
	paid := decimal.Zero
	for _, el := range sl.Enrollments {
		paid = paid.Add(EnrollmentPaid(el))
	}
	return paid
}

// RemainingBalance is max(0, TotalFee - TotalPaid).
func RemainingBalance(sl models.StudentLedger) decimal.Decimal {
	return floorZero(TotalFee(sl).Sub(TotalPaid(sl)))
}

// PaymentStatusFor classifies a liability from what was paid and what remains.
func PaymentStatusFor(paid, remaining decimal.Decimal) dto.PaymentStatus {
	switch {
	case !remaining.IsPositive():
		return dto.PaymentStatusPaid
	case paid.IsPositive():
		return dto.PaymentStatusPartial
	default:
		return dto.PaymentStatusUnpaid
	}
}

// BuildEnrollmentBalance renders one enrollment's balance within its student's ledger.
func BuildEnrollmentBalance(sl models.StudentLedger, el models.EnrollmentLedger) dto.EnrollmentBalance {
	primary := IsPrimary(sl, el.Enrollment.ID)
	paid := EnrollmentPaid(el)
	remaining := EnrollmentBalance(el, primary)
	regFee := decimal.Zero
	if primary {
		regFee = RegistrationFee(el)
	}

	scheduled := 0
	for _, entry := range el.Entries {
		if _, ok := entry.Record().(models.ScheduledDue); ok {
			scheduled++
		}
	}

	return dto.EnrollmentBalance{
		EnrollmentID:    el.Enrollment.ID,
		SessionID:       el.Session.ID,
		SessionName:     el.Session.Name,
		Status:          string(el.Enrollment.Status),
		IsPrimary:       primary,
		Fee:             el.Enrollment.Fee,
		Discount:        el.Enrollment.DiscountOrZero(),
		RegistrationFee: regFee,
		TotalFee:        EnrollmentTotalFee(el, primary),
		TotalPaid:       paid,
		Remaining:       remaining,
		PaymentStatus:   PaymentStatusFor(paid, remaining),
		ScheduledDues:   scheduled,
	}
}

// BuildStudentBalance renders the student's overall and per-enrollment balances.
func BuildStudentBalance(sl models.StudentLedger) dto.StudentBalance {
	paid := TotalPaid(sl)
	remaining := RemainingBalance(sl)
	balance := dto.StudentBalance{
		StudentID:     sl.Student.ID,
		StudentName:   sl.Student.FullName,
		RollNo:        sl.Student.RollNo,
		TotalFee:      TotalFee(sl),
		TotalPaid:     paid,
		Remaining:     remaining,
		PaymentStatus: PaymentStatusFor(paid, remaining),
		Enrollments:   make([]dto.EnrollmentBalance, 0, len(sl.Enrollments)),
	}
	for _, el := range sl.Enrollments {
		balance.Enrollments = append(balance.Enrollments, BuildEnrollmentBalance(sl, el))
	}
	return balance
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
