// Package database opens the job store connection for the configured backend.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"

	// Register the pgx driver for database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Register the pure-Go sqlite driver for database/sql.
	_ "modernc.org/sqlite"
)

// sqliteParams bound lock waits at 5s, enable WAL (many readers, one writer) and make
// every transaction take the write lock at BEGIN so read-then-insert sequences cannot race.
// Each is matched by prefix so a caller's own setting for the same knob wins.
var sqliteParams = []struct{ prefix, param string }{
	{"_pragma=busy_timeout", "_pragma=busy_timeout(5000)"},
	{"_pragma=journal_mode", "_pragma=journal_mode(WAL)"},
	{"_txlock=", "_txlock=immediate"},
}

// Config describes how to reach the job store.
type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver string
	// DSN is a postgres URL or a sqlite file path.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// SQLiteDSN builds a modernc.org/sqlite DSN for the file at path with the store pragmas.
// Query parameters already on path are kept and the store's are added after them.
func SQLiteDSN(path string) string {
	path, query, _ := strings.Cut(path, "?")
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + filepath.ToSlash(path)
	}

	var params []string
	for p := range strings.SplitSeq(query, "&") {
		if p != "" {
			params = append(params, p)
		}
	}
	existing := len(params)
	for _, sp := range sqliteParams {
		if !slices.ContainsFunc(params[:existing], func(p string) bool {
			return strings.HasPrefix(strings.ToLower(p), sp.prefix)
		}) {
			params = append(params, sp.param)
		}
	}
	return path + "?" + strings.Join(params, "&")
}

// DriverName maps a store driver to the registered database/sql driver.
func DriverName(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return "sqlite", nil
	case "postgres", "postgresql", "pgx":
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported store driver: %q", driver)
	}
}

// Open opens and pings the job store.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	name, err := DriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("store dsn is required")
	}

	dsn := cfg.DSN
	if name == "sqlite" {
		dsn = SQLiteDSN(dsn)
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	applyPool(db, name, cfg)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}
	return db, nil
}

func applyPool(db *sql.DB, driver string, cfg Config) {
	maxOpen, maxIdle, lifetime := 25, 5, 5*time.Minute
	if driver == "sqlite" {
		// One file, one writer; a small pool keeps readers concurrent under WAL.
		maxOpen, maxIdle, lifetime = 8, 8, 0
	}
	if cfg.MaxOpenConns > 0 {
		maxOpen = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		maxIdle = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		lifetime = cfg.ConnMaxLifetime
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
}

// Redact hides the password of a postgres URL so the locator can be logged.
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
