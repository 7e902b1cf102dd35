package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestAdvisoryKeyIsStable(t *testing.T) {
	assert.Equal(t, AdvisoryKey("contoso.com"), AdvisoryKey("contoso.com"))
	assert.NotEqual(t, AdvisoryKey("contoso.com"), AdvisoryKey("fabrikam.com"))
}

func TestWithSQLTx(t *testing.T) {
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE t (v INTEGER)`)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = WithSQLTx(ctx, db, SQLTxConfig{Fn: func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, `INSERT INTO t (v) VALUES (1)`); execErr != nil {
			return execErr
		}
		return boom
	}})
	require.ErrorIs(t, err, boom)

	err = WithSQLTx(ctx, db, SQLTxConfig{Fn: func(tx *sql.Tx) error {
		_, execErr := tx.ExecContext(ctx, `INSERT INTO t (v) VALUES (2)`)
		return execErr
	}})
	require.NoError(t, err)

	var sum int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COALESCE(SUM(v), 0) FROM t`).Scan(&sum))
	assert.Equal(t, 2, sum, "rolled back insert must not persist")
}
