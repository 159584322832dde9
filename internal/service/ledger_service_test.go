package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/models"
	appErrors "github.com/noah-isme/tuition-ledger-api/pkg/errors"
)

func seedLedger(f *ledgerFixture) {
	f.store.addStudent(models.Student{ID: "stu-1", FullName: "Ayesha Khan"})
	f.store.addSession(models.Session{ID: "css", Name: "CSS 2024", Type: models.SessionTypeTimePeriod, EndDate: datePtr(2024, time.June, 30), Fee: d("20000"), Status: models.SessionStatusActive})
	f.store.addEnrollment(models.Enrollment{ID: "enr-1", StudentID: "stu-1", SessionID: "css", RegistrationDate: datePtr(2024, time.January, 1), Fee: d("20000"), RegistrationFee: nd("1000"), Status: models.EnrollmentStatusActive})
}

func TestRecordPayment(t *testing.T) {
	f := newLedgerFixture(t)
	seedLedger(f)
	svc := f.ledgerService(time.Date(2024, time.March, 3, 15, 30, 0, 0, time.UTC))

	_, err := svc.RecordPayment(context.Background(), "op-1", "enr-1", PaymentRequest{Amount: decimal.Zero})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.RecordPayment(context.Background(), "op-1", "missing", PaymentRequest{Amount: d("10")})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	view, err := svc.RecordPayment(context.Background(), "op-1", "enr-1", PaymentRequest{Amount: d("5000")})
	require.NoError(t, err)
	assert.Equal(t, dto.LedgerKindPaid, view.Kind)
	require.NotNil(t, view.Amount)
	assert.True(t, view.Amount.Equal(d("5000")))
	assert.Equal(t, date(2024, time.March, 3), view.Date)
	assert.Equal(t, "op-1", view.ActorID)

	fees := f.notifier.byCategory(models.NotificationNewFee)
	require.Len(t, fees, 1)
	assert.Contains(t, fees[0].Content, "5000.00")
}

func TestScheduleDueIsIdempotent(t *testing.T) {
	f := newLedgerFixture(t)
	seedLedger(f)
	svc := f.ledgerService(date(2024, time.March, 1))

	expectTx(f.mock, true)
	view, created, err := svc.ScheduleDue(context.Background(), "op-1", "enr-1", ScheduleDueRequest{Date: "2024-04-01"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, dto.LedgerKindScheduledDue, view.Kind)
	assert.Nil(t, view.Amount)
	assert.NotEmpty(t, view.ID)

	expectTx(f.mock, false)
	view, created, err = svc.ScheduleDue(context.Background(), "op-1", "enr-1", ScheduleDueRequest{Date: "2024-04-01"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, view)

	assert.Len(t, f.store.entriesOf("enr-1"), 1)
	assert.Len(t, f.notifier.byCategory(models.NotificationNewEntry), 1)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSettleDue(t *testing.T) {
	f := newLedgerFixture(t)
	seedLedger(f)
	f.store.addEntry(models.LedgerEntry{ID: "due-1", EnrollmentID: "enr-1", ActorID: "system", Amount: decimal.Zero, Date: date(2024, time.April, 1)})
	svc := f.ledgerService(date(2024, time.April, 2))

	view, err := svc.SettleDue(context.Background(), "op-2", "due-1", SettleRequest{Amount: d("3000")})
	require.NoError(t, err)
	assert.Equal(t, dto.LedgerKindPaid, view.Kind)
	assert.Equal(t, date(2024, time.April, 2), view.Date)

	stored := f.store.entriesOf("enr-1")[0]
	assert.True(t, stored.Amount.Equal(d("3000")))
	assert.Equal(t, "op-2", stored.ActorID)

	_, err = svc.SettleDue(context.Background(), "op-2", "due-1", SettleRequest{Amount: d("3000")})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	_, err = svc.SettleDue(context.Background(), "op-2", "missing", SettleRequest{Amount: d("1")})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestPlanInstallments(t *testing.T) {
	f := newLedgerFixture(t)
	seedLedger(f)
	svc := f.ledgerService(date(2024, time.March, 1))

	_, err := svc.PlanInstallments(context.Background(), "op-1", "enr-1", InstallmentPlanRequest{Count: 4, FirstDueDate: "2024-04-15"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "2024-06-30")

	expectTx(f.mock, true)
	result, err := svc.PlanInstallments(context.Background(), "op-1", "enr-1", InstallmentPlanRequest{
		Count:           3,
		FirstDueDate:    "2024-04-30",
		FirstPaidAmount: nd("7000"),
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)
	assert.Equal(t, dto.LedgerKindPaid, result.Entries[0].Kind)
	assert.Equal(t, dto.LedgerKindScheduledDue, result.Entries[1].Kind)
	assert.Equal(t, date(2024, time.May, 30), result.Entries[1].Date)
	assert.Equal(t, date(2024, time.June, 30), result.Entries[2].Date)

	views, err := svc.Entries(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Len(t, views, 3)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLedgerEntryViewTagsRecord(t *testing.T) {
	paid := LedgerEntryView(paidEntry("p", "10", date(2024, time.January, 1)))
	assert.Equal(t, dto.LedgerKindPaid, paid.Kind)
	require.NotNil(t, paid.Amount)

	due := LedgerEntryView(dueEntry("s", date(2024, time.February, 1)))
	assert.Equal(t, dto.LedgerKindScheduledDue, due.Kind)
	assert.Nil(t, due.Amount)
	assert.Equal(t, "s", due.ID)
}
