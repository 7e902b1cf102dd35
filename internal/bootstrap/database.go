package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/target/tenantscan/config"
	"github.com/target/tenantscan/internal/data"
	"github.com/target/tenantscan/internal/data/database"
	"github.com/target/tenantscan/internal/domain/model"
	"github.com/target/tenantscan/internal/migrate"
)

// Store is an open job store and the dialect its queries use.
type Store struct {
	DB      *sql.DB
	Dialect data.Dialect
	// Locator is how worker processes reach the same store.
	Locator model.StoreLocator
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// StoreLocator resolves the configured store into a locator a worker can open.
// SQLite paths are made absolute so a worker started elsewhere finds the same file.
func StoreLocator(cfg config.StoreConfig) (model.StoreLocator, error) {
	dsn := cfg.ConnectionString()
	if cfg.Driver != config.StoreDriverPostgres {
		abs, err := absSQLitePath(dsn)
		if err != nil {
			return model.StoreLocator{}, fmt.Errorf("resolve store path: %w", err)
		}
		dsn = abs
	}
	return model.StoreLocator{Driver: cfg.Driver, DSN: model.Secret(dsn)}, nil
}

// absSQLitePath makes the file part of a sqlite path or file: URI absolute,
// keeping the scheme and any query string. In-memory databases are returned as is.
func absSQLitePath(dsn string) (string, error) {
	path, query, hasQuery := strings.Cut(dsn, "?")
	scheme := ""
	if rest, ok := strings.CutPrefix(path, "file:"); ok {
		scheme, path = "file:", rest
	}
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return dsn, nil
	}

	abs, err := filepath.Abs(filepath.FromSlash(path))
	if err != nil {
		return "", err
	}
	if scheme != "" {
		abs = filepath.ToSlash(abs)
	}
	out := scheme + abs
	if hasQuery {
		out += "?" + query
	}
	return out, nil
}

// ConnectStore opens the job store described by cfg.
func ConnectStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*Store, error) {
	locator, err := StoreLocator(cfg)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(ctx, locator, database.Config{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.InfoContext(ctx, "job store connected",
			"driver", locator.Driver,
			"location", database.Redact(locator.DSN.Reveal()),
		)
	}
	return store, nil
}

// OpenStore opens the store a locator points at. Workers use it with the locator from their bundle.
func OpenStore(ctx context.Context, locator model.StoreLocator, pool database.Config) (*Store, error) {
	dialect, err := data.ParseDialect(locator.Driver)
	if err != nil {
		return nil, err
	}
	pool.Driver = locator.Driver
	pool.DSN = locator.DSN.Reveal()

	db, err := database.Open(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	return &Store{DB: db, Dialect: dialect, Locator: locator}, nil
}

// RunMigrations runs database migrations.
func RunMigrations(ctx context.Context, store *Store, logger *slog.Logger) error {
	if err := migrate.Run(ctx, store.DB, string(store.Dialect)); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed", "dialect", store.Dialect)
	}

	return nil
}
