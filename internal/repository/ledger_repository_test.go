package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-ledger-api/internal/models"
)

func TestLedgerRepositoryLatestPaymentDate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	paidOn := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("SELECT MAX(date) FROM ledger_entries WHERE enrollment_id = $1 AND amount > 0")
	mock.ExpectQuery(query).WithArgs("enr-1").WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectQuery(query).WithArgs("enr-2").WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(paidOn))

	latest, err := repo.LatestPaymentDate(context.Background(), nil, "enr-1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	latest, err = repo.LatestPaymentDate(context.Background(), nil, "enr-2")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, paidOn, *latest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryDueExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	due := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("SELECT 1 FROM ledger_entries WHERE enrollment_id = $1 AND date = $2 AND amount = 0 LIMIT 1")
	mock.ExpectQuery(query).WithArgs("enr-1", due).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(query).WithArgs("enr-1", due).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.DueExists(context.Background(), nil, "enr-1", due)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.DueExists(context.Background(), nil, "enr-1", due)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositorySettleOnlyTouchesScheduledDues(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	paidOn := time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("UPDATE ledger_entries SET amount = $2, actor_id = $3, date = $4 WHERE id = $1 AND amount = 0")
	mock.ExpectExec(query).WithArgs("due-1", sqlmock.AnyArg(), "op-1", paidOn).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("due-1", sqlmock.AnyArg(), "op-1", paidOn).WillReturnResult(sqlmock.NewResult(0, 0))

	settled, err := repo.Settle(context.Background(), nil, "due-1", "op-1", decimal.NewFromInt(3000), paidOn)
	require.NoError(t, err)
	assert.True(t, settled)

	settled, err = repo.Settle(context.Background(), nil, "due-1", "op-1", decimal.NewFromInt(3000), paidOn)
	require.NoError(t, err)
	assert.False(t, settled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepositoryInsertAndList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLedgerRepository(db)

	now := time.Now()
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(sqlmock.AnyArg(), "enr-1", "op-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM ledger_entries WHERE enrollment_id = ANY($1) ORDER BY date, created_at")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "enrollment_id", "actor_id", "amount", "date", "created_at"}).
			AddRow("pay-1", "enr-1", "op-1", "5000.00", now, now).
			AddRow("due-1", "enr-1", "system", "0", now, now).
			AddRow("pay-2", "enr-2", "op-1", "100", now, now))

	entry := &models.LedgerEntry{EnrollmentID: "enr-1", ActorID: "op-1", Amount: decimal.NewFromInt(5000), Date: now}
	require.NoError(t, repo.Insert(context.Background(), nil, entry))
	assert.NotEmpty(t, entry.ID)

	grouped, err := repo.ListByEnrollmentIDs(context.Background(), []string{"enr-1", "enr-2"})
	require.NoError(t, err)
	require.Len(t, grouped["enr-1"], 2)
	_, scheduled := grouped["enr-1"][1].Record().(models.ScheduledDue)
	assert.True(t, scheduled)
	assert.Len(t, grouped["enr-2"], 1)

	empty, err := repo.ListByEnrollmentIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}
