package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain path", "/var/lib/tenantscan/jobs.db", "file:/var/lib/tenantscan/jobs.db?" + pragmas},
		{"file uri", "file:jobs.db", "file:jobs.db?" + pragmas},
		{"existing query keeps txlock", "file:jobs.db?mode=memory", "file:jobs.db?mode=memory&" + pragmas},
		{"plain path with query", "/tmp/jobs.db?cache=shared", "file:/tmp/jobs.db?cache=shared&" + pragmas},
		{
			"caller settings win",
			"file:jobs.db?_txlock=deferred&_pragma=busy_timeout(100)",
			"file:jobs.db?_txlock=deferred&_pragma=busy_timeout(100)&_pragma=journal_mode(WAL)",
		},
		{"empty query", "file:jobs.db?", "file:jobs.db?" + pragmas},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SQLiteDSN(tt.in))
		})
	}
}

func TestDriverName(t *testing.T) {
	tests := map[string]string{
		"":           "sqlite",
		"sqlite":     "sqlite",
		"SQLite3":    "sqlite",
		"postgres":   "pgx",
		"postgresql": "pgx",
		"pgx":        "pgx",
	}
	for in, want := range tests {
		got, err := DriverName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := DriverName("mysql")
	require.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	db, err := Open(context.Background(), Config{Driver: "sqlite", DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestOpen_SQLiteURIWithQuery(t *testing.T) {
	path := filepath.ToSlash(filepath.Join(t.TempDir(), "jobs.db"))
	db, err := Open(context.Background(), Config{Driver: "sqlite", DSN: "file:" + path + "?cache=private"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var timeout int
	require.NoError(t, db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "postgres"})
	require.Error(t, err)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://scan:xxxxx@db:5432/jobs", Redact("postgres://scan:hunter2@db:5432/jobs"))
	assert.Equal(t, "/tmp/jobs.db", Redact("/tmp/jobs.db"))
}
