package errors

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// reKeyField extracts field name from unique violation detail: "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// reSQLiteColumn extracts the column from sqlite constraint messages: "UNIQUE constraint failed: jobs.id".
var reSQLiteColumn = regexp.MustCompile(`constraint failed: \w+\.(\w+)`)

// MapDBError maps database errors to AppError instances.
// It handles common database error patterns including:
// - sql.ErrNoRows / pgx.ErrNoRows → NotFound
// - Unique constraint violations → Conflict
// - Check and NOT NULL violations → Validation
// - Lock contention (sqlite busy/locked, postgres lock timeout) → Unavailable
// - Context timeouts/cancellations → Timeout/Canceled
//
// If the error is not a recognized database error, it returns the original error.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	// Check for context errors first
	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out. Please try again.",
			Cause:   err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{
			Code:    ErrCodeCanceled,
			Message: "Request was canceled.",
			Cause:   err,
		}
	}

	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return &AppError{
			Code:    ErrCodeNotFound,
			Message: "Resource not found",
			Cause:   err,
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return mapSQLiteError(liteErr)
	}

	if errors.Is(err, sql.ErrConnDone) {
		return &AppError{
			Code:    ErrCodeUnavailable,
			Message: "The job store is unavailable. Please try again.",
			Cause:   err,
		}
	}

	// Return original error if not a recognized database error
	return err
}

// mapPgError maps PostgreSQL-specific errors to AppError instances.
func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return mapUniqueViolation(pgErr)
	case pgerrcode.CheckViolation:
		return validationError(pgErr.ColumnName, pgErr)
	case pgerrcode.NotNullViolation:
		return validationError(pgErr.ColumnName, pgErr)
	case pgerrcode.LockNotAvailable, pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected,
		pgerrcode.CannotConnectNow, pgerrcode.AdminShutdown, pgerrcode.TooManyConnections:
		return unavailableError(pgErr)
	default:
		// Return wrapped internal error for unhandled database errors
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "A database error occurred. Please try again.",
			Cause:   pgErr,
		}
	}
}

// mapSQLiteError maps modernc sqlite result codes to AppError instances.
func mapSQLiteError(liteErr *sqlite.Error) error {
	code := liteErr.Code()
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "This value already exists.",
			Field:   sqliteColumn(liteErr),
			Cause:   liteErr,
		}
	case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return validationError(sqliteColumn(liteErr), liteErr)
	}

	// Extended codes carry the primary code in the low byte.
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return unavailableError(liteErr)
	case sqlite3.SQLITE_CONSTRAINT:
		return validationError(sqliteColumn(liteErr), liteErr)
	default:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "A database error occurred. Please try again.",
			Cause:   liteErr,
		}
	}
}

func sqliteColumn(liteErr *sqlite.Error) string {
	if m := reSQLiteColumn.FindStringSubmatch(liteErr.Error()); len(m) == 2 {
		return m[1]
	}
	return ""
}

func unavailableError(cause error) error {
	return &AppError{
		Code:    ErrCodeUnavailable,
		Message: "The job store is busy. Please try again.",
		Cause:   cause,
	}
}

func validationError(field string, cause error) error {
	if field != "" {
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "This field has an invalid value.",
			Field:   field,
			Cause:   cause,
		}
	}
	return &AppError{
		Code:    ErrCodeValidation,
		Message: "Invalid data. Please check your input.",
		Cause:   cause,
	}
}

// mapUniqueViolation maps unique constraint violations to Conflict errors.
func mapUniqueViolation(pgErr *pgconn.PgError) error {
	field := pgErr.ColumnName

	// Fallback: Parse Detail message for "Key (field)=(value) already exists."
	if field == "" && pgErr.Detail != "" {
		if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			field = m[1]
		}
	}

	// Last resort: Infer from constraint name (e.g., "job_stats_job_id_key" → "job_id")
	if field == "" {
		field = inferFieldFromConstraint(pgErr.TableName, pgErr.ConstraintName)
	}

	return &AppError{
		Code:    ErrCodeConflict,
		Message: "This value already exists.",
		Field:   field,
		Cause:   pgErr,
	}
}

// inferFieldFromConstraint strips the table prefix and the key suffix from a
// postgres default constraint name. Returns empty string if inference fails.
func inferFieldFromConstraint(table, constraintName string) string {
	if constraintName == "" {
		return ""
	}
	name := constraintName
	for _, suffix := range []string{"_key", "_unique", "_pkey"} {
		if trimmed, ok := strings.CutSuffix(name, suffix); ok {
			name = trimmed
			break
		}
	}
	if table != "" {
		if trimmed, ok := strings.CutPrefix(name, table+"_"); ok {
			return trimmed
		}
		return ""
	}
	parts := strings.Split(name, "_")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
