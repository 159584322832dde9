package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-ledger-api/internal/models"
)

var sessionRowColumns = []string{"id", "name", "type", "start_date", "end_date", "registration_fee", "fee", "status", "created_at", "updated_at"}

func TestSessionRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE status = $1 ORDER BY start_date DESC NULLS LAST, name")).
		WithArgs(models.SessionStatusActive).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("css", "CSS 2024", "TimePeriod", now, now.AddDate(0, 6, 0), "1000", "20000", "Active", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions ORDER BY start_date DESC NULLS LAST, name")).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))

	sessions, err := repo.List(context.Background(), models.SessionStatusActive)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionTypeTimePeriod, sessions[0].Type)
	require.NotNil(t, sessions[0].EndDate)

	sessions, err = repo.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListCompleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'Completed' AND id = ANY($1) ORDER BY name, id")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'Completed' ORDER BY name, id")).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))

	_, err := repo.ListCompleted(context.Background(), []string{"css"})
	require.NoError(t, err)
	_, err = repo.ListCompleted(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCompleteIfExpired(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	today := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("UPDATE sessions SET status = 'Completed', updated_at = NOW() WHERE id = $1 AND status = 'Active' AND end_date < $2")
	mock.ExpectBegin()
	mock.ExpectExec(query).WithArgs("css", today).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs("css", today).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	done, err := repo.CompleteIfExpired(context.Background(), tx, "css", today)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = repo.CompleteIfExpired(context.Background(), tx, "css", today)
	require.NoError(t, err)
	assert.False(t, done)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByIDsEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	sessions, err := NewSessionRepository(db).FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}
