// Package testutil provides store fixtures and builders shared by tenantscan tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/target/tenantscan/internal/data/database"
	"github.com/target/tenantscan/internal/migrate"
)

// TestDBConfig holds configuration for an externally managed postgres test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig returns default test database configuration.
// Defaults to port 55432 (local test DB from docker-compose test profile).
// CI/CD environments should set TEST_DB_PORT=5432 explicitly.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "tenantscan"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "tenantscan"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "tenantscan"),
	}
}

// DSN renders the postgres URL for the config.
func (c TestDBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		c.User, c.Password, net.JoinHostPort(c.Host, c.Port), c.DBName,
		getEnvOrDefault("DB_SSL_MODE", "disable"))
}

// SQLitePath returns a fresh store file path inside the test's temp dir.
func SQLitePath(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "tenantscan.db")
}

// NewSQLiteDB opens a migrated sqlite store in a temp file. The file outlives individual
// connections so a second *sql.DB (a worker, say) can open the same path.
func NewSQLiteDB(t testing.TB) (*sql.DB, string) {
	t.Helper()
	path := SQLitePath(t)
	db := OpenStore(t, "sqlite", path)
	return db, path
}

// OpenStore opens the store at dsn and applies migrations.
func OpenStore(t testing.TB, driver, dsn string) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, database.Config{Driver: driver, DSN: dsn})
	if err != nil {
		t.Fatalf("open %s store: %v", driver, err)
	}
	t.Cleanup(func() {
		if cerr := db.Close(); cerr != nil {
			t.Logf("close %s store: %v", driver, cerr)
		}
	})

	dialect := migrate.DialectSQLite
	if driver == "postgres" {
		dialect = migrate.DialectPostgres
	}
	if err = migrate.Run(ctx, db, dialect); err != nil {
		t.Fatalf("run %s migrations: %v", driver, err)
	}
	return db
}

// NewPostgresDB returns a migrated postgres store and its DSN. It skips unless
// TENANTSCAN_PG_TESTS is truthy. TEST_DB_HOST selects an external database;
// otherwise a throwaway container is started.
func NewPostgresDB(t testing.TB) (*sql.DB, string) {
	t.Helper()
	if !envBool("TENANTSCAN_PG_TESTS") {
		if requireDB() {
			t.Fatal("postgres tests required but TENANTSCAN_PG_TESTS is not set")
		}
		t.Skip("set TENANTSCAN_PG_TESTS=1 to run postgres store tests")
	}

	dsn := DefaultTestDBConfig().DSN()
	if os.Getenv("TEST_DB_HOST") == "" {
		dsn = startPostgresContainer(t)
	}
	db := OpenStore(t, "postgres", dsn)
	CleanupTestDB(t, db)
	return db, dsn
}

func startPostgresContainer(t testing.TB) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tenantscan_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if terr := pgContainer.Terminate(ctx); terr != nil {
			t.Logf("terminate postgres container: %v", terr)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	return connStr
}

// CountRows returns the number of rows in table. The name is not escaped; pass literals only.
func CountRows(t testing.TB, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// getEnvOrDefault returns environment variable value or default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envBool parses common truthy values from env vars.
func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func requireDB() bool { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}
