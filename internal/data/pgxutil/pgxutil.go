// Package pgxutil holds transaction helpers shared by the sqlite and postgres job stores.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
)

// SQLTxConfig groups parameters for WithSQLTx to keep parameter count ≤ 3.
type SQLTxConfig struct {
	Opts *sql.TxOptions
	Fn   func(*sql.Tx) error
}

// WithSQLTx runs the given function within a database/sql transaction.
func WithSQLTx(ctx context.Context, db *sql.DB, cfg SQLTxConfig) (err error) {
	tx, err := db.BeginTx(ctx, cfg.Opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
	}()
	if err = cfg.Fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AdvisoryKey derives a stable int4 advisory-lock key from a string.
func AdvisoryKey(s string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int32(h.Sum32()) // #nosec G115 - wraparound is intended, only stability matters
}

// AdvisoryXactLock blocks until the two-key transaction-scoped advisory lock is held.
func AdvisoryXactLock(ctx context.Context, tx *sql.Tx, major, minor int32) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1, $2)", major, minor); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	return nil
}

// TryAdvisoryXactLock attempts the two-key transaction-scoped advisory lock without waiting.
func TryAdvisoryXactLock(ctx context.Context, tx *sql.Tx, major, minor int32) (bool, error) {
	var locked bool
	if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", major, minor).Scan(&locked); err != nil {
		return false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	return locked, nil
}

// SetLocalLockTimeout bounds lock waits for the rest of the postgres transaction.
func SetLocalLockTimeout(ctx context.Context, tx *sql.Tx, timeout string) error {
	if _, err := tx.ExecContext(ctx, "SELECT set_config('lock_timeout', $1, true)", timeout); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}
	return nil
}
