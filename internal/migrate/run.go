// Package migrate applies the embedded job store schema for each supported dialect.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Dialects with embedded migrations.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Run applies all SQL migrations embedded for the dialect. It is safe to call multiple times.
func Run(ctx context.Context, db *sql.DB, dialect string) error {
	m, err := newMigrator(db, dialect)
	if err != nil {
		return err
	}

	if _, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	files, err := m.files()
	if err != nil {
		return err
	}
	for _, f := range files {
		info := migrationInfo{
			versionStr: strings.TrimSuffix(f, ".sql"),
			file:       f,
		}
		if applyErr := m.apply(ctx, info); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Versions lists the embedded migration versions for the dialect in apply order.
func Versions(dialect string) ([]string, error) {
	m, err := newMigrator(nil, dialect)
	if err != nil {
		return nil, err
	}
	files, err := m.files()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, strings.TrimSuffix(f, ".sql"))
	}
	return out, nil
}

type migrator struct {
	db  *sql.DB
	dir string
	// bind renders the n-th (1-based) bind parameter in the dialect's syntax.
	bind func(n int) string
}

func newMigrator(db *sql.DB, dialect string) (*migrator, error) {
	switch dialect {
	case DialectSQLite:
		return &migrator{db: db, dir: "migrations/sqlite", bind: func(int) string { return "?" }}, nil
	case DialectPostgres:
		return &migrator{db: db, dir: "migrations/postgres", bind: func(n int) string { return "$" + strconv.Itoa(n) }}, nil
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
}

func (m *migrator) files() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// migrationInfo holds information about a migration for processing.
type migrationInfo struct {
	versionStr string
	file       string
}

func (m *migrator) exists(ctx context.Context, info migrationInfo) (bool, error) {
	var n int
	query := `SELECT COUNT(*) FROM schema_migrations WHERE version = ` + m.bind(1)
	if err := m.db.QueryRowContext(ctx, query, info.versionStr).Scan(&n); err != nil {
		return false, fmt.Errorf("check migration %s: %w", info.file, err)
	}
	return n > 0, nil
}

func (m *migrator) record(ctx context.Context, tx *sql.Tx, info migrationInfo) error {
	query := `INSERT INTO schema_migrations (version, applied_at) VALUES (` + m.bind(1) + `, ` + m.bind(2) + `)`
	appliedAt := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, query, info.versionStr, appliedAt); err != nil {
		return fmt.Errorf("record migration %s: %w", info.file, err)
	}
	return nil
}

func (m *migrator) apply(ctx context.Context, info migrationInfo) error {
	exists, err := m.exists(ctx, info)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	sqlBytes, err := migrationsFS.ReadFile(m.dir + "/" + info.file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", info.file, err)
	}

	logger := slog.Default().With("component", "migrations")
	logger.InfoContext(ctx, "applying migration", "version", info.versionStr, "dir", m.dir)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			logger.ErrorContext(
				ctx,
				"failed to rollback transaction",
				"err",
				rollbackErr,
				"migration_file",
				info.file,
			)
		}
	}()

	if _, execErr := tx.ExecContext(ctx, string(sqlBytes)); execErr != nil {
		return fmt.Errorf("exec migration %s: %w", info.file, execErr)
	}
	if insertErr := m.record(ctx, tx, info); insertErr != nil {
		return insertErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit migration %s: %w", info.file, commitErr)
	}

	return nil
}
