package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
)

func newMockStore(t *testing.T, driver string) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, driver)), mock
}

func TestMockQueryFailureIsDatabaseError(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLite)

	mock.ExpectQuery(regexp.QuoteMeta("FROM trades WHERE id = ? AND user_id = ?")).
		WithArgs("t1", "u1").
		WillReturnError(errors.New("disk I/O error"))

	_, err := s.GetTrade(context.Background(), "u1", "t1")
	assert.ErrorIs(t, err, apperrors.ErrDatabaseError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockNoRowsIsNotFound(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLite)

	mock.ExpectQuery("FROM users").WillReturnError(sql.ErrNoRows)

	_, err := s.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMockPostgresRebind(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET is_read = $1 WHERE id = $2 AND user_id = $3")).
		WithArgs(true, "n1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkNotificationRead(context.Background(), "u1", "n1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockWithTxRollbackOnError(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLite)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO partial_exits").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx DataStore) error {
		return tx.AddExit(context.Background(), &models.PartialExit{TradeID: "t1"})
	})
	assert.ErrorIs(t, err, apperrors.ErrDatabaseError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockCommitFailure(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLite)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("commit failed"))

	err := s.WithTx(context.Background(), func(DataStore) error { return nil })
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockDeleteTradeRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLite)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM trades WHERE id = ?")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM trade_likes WHERE trade_id = ?")).
		WithArgs("t1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM partial_exits WHERE trade_id = ?")).
		WithArgs("t1").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := s.DeleteTrade(context.Background(), "u1", "t1")
	assert.ErrorIs(t, err, apperrors.ErrDatabaseError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockDeleteTradeOfAnotherUser(t *testing.T) {
	s, mock := newMockStore(t, DriverSQLite)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM trades WHERE id = ?")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u2"))
	mock.ExpectRollback()

	err := s.DeleteTrade(context.Background(), "u1", "t1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockDeleteTradeCommits(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM trades WHERE id = $1")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM trade_likes WHERE trade_id = $1")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM partial_exits WHERE trade_id = $1")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM trade_metrics WHERE trade_id = $1")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM trades WHERE id = $1 AND user_id = $2")).
		WithArgs("t1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteTrade(context.Background(), "u1", "t1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
