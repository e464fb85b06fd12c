package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openLedger(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE refresh_tokens (uid TEXT PRIMARY KEY, revoked INTEGER NOT NULL DEFAULT 0)`)
	require.NoError(t, err)
	return db
}

func tokenCount(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM refresh_tokens`).Scan(&n))
	return n
}

func insertToken(ctx context.Context, tx DBTX, uid string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO refresh_tokens(uid) VALUES (?)`, uid)
	return err
}

func TestWithTx_Commit(t *testing.T) {
	db := openLedger(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		if err := insertToken(ctx, tx, "a"); err != nil {
			return err
		}
		return insertToken(ctx, tx, "b")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, tokenCount(t, db))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := openLedger(t)
	boom := errors.New("boom")

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, insertToken(ctx, tx, "a"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, tokenCount(t, db))
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := openLedger(t)

	assert.PanicsWithValue(t, "kaput", func() {
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
			require.NoError(t, insertToken(ctx, tx, "a"))
			panic("kaput")
		})
	})
	assert.Equal(t, 0, tokenCount(t, db))
}

func TestWithTx_BeginError(t *testing.T) {
	db := openLedger(t)
	require.NoError(t, db.Close())

	called := false
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
	assert.False(t, called)
}

func TestWithTx_CommitError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lost := errors.New("connection lost")
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(lost)

	err = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		return nil
	})
	assert.ErrorIs(t, err, lost)
	assert.Contains(t, err.Error(), "commit tx")
	assert.NoError(t, mock.ExpectationsWereMet())
}
