package data

import (
	"context"
	"database/sql"

	"github.com/target/tenantscan/internal/migrate"
)

// RunMigrations executes database migrations for the dialect by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	return migrate.Run(ctx, db, string(dialect))
}
