package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aegis-Wallet/aegis/pkg/contracts"
)

// The Postgres variant shares the SQL with SQLite except for
// placeholder style; sqlmock pins the rewritten queries without a
// live server.

func mockStores(t *testing.T) (*SQLStores, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS wallet_sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS wallet_events").WillReturnResult(sqlmock.NewResult(0, 0))

	stores, err := NewPostgres(db)
	require.NoError(t, err)
	return stores, mock
}

func TestPostgresUpsertUsesNumberedPlaceholders(t *testing.T) {
	stores, mock := mockStores(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)INSERT INTO wallet_sessions.+VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)`).
		WithArgs(sqlmock.AnyArg(), "dapp.example", "gh-main", "mainnet-v1",
			`["A1"]`, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow("sess-1", now.Format(time.RFC3339Nano)))

	stored, err := stores.Upsert(context.Background(), newSession("dapp.example", now, "A1"))
	require.NoError(t, err)
	assert.Equal(t, "sess-1", stored.ID)
	assert.Equal(t, now, stored.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEnqueueReportsConflictAsDuplicate(t *testing.T) {
	stores, mock := mockStores(t)

	mock.ExpectExec(`(?s)INSERT INTO wallet_events.+ON CONFLICT \(request_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := stores.Enqueue(context.Background(), queuedEvent("req-1", contracts.KindEnable, time.Now().UTC()))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEnqueuePropagatesStorageErrors(t *testing.T) {
	stores, mock := mockStores(t)

	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO wallet_events`).WillReturnError(boom)

	_, err := stores.Enqueue(context.Background(), queuedEvent("req-1", contracts.KindEnable, time.Now().UTC()))
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
