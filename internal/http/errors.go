package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/target/tenantscan/internal/errors"
)

// Error codes rendered in the "error" field of JSON error bodies.
const (
	errCodeInvalidJSON = "invalid_json"
	errCodeValidation  = "invalid_request"
	errCodeNotFound    = "not_found"
	errCodeTenantBusy  = "tenant_busy"
	errCodeUnavailable = "unavailable"
	errCodeTimeout     = "timeout"
	errCodeInternal    = "internal_error"
)

// Server-side failures are rendered with these messages; the cause is only logged.
var (
	errInternal    = errors.New("internal server error")
	errUnavailable = errors.New("job store unavailable, retry later")
)

// WriteServiceError maps a service error onto a status code and JSON error body.
func WriteServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: errCodeValidation, Err: err})
	case apperrors.ErrCodeNotFound:
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: errCodeNotFound, Err: err})
	case apperrors.ErrCodeConflict:
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: errCodeTenantBusy, Err: err})
	case apperrors.ErrCodeUnavailable:
		logger.Warn("store unavailable", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: errCodeUnavailable, Err: errUnavailable})
	case apperrors.ErrCodeTimeout:
		logger.Warn("request timed out", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: errCodeTimeout, Err: errUnavailable})
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: errCodeInternal, Err: errInternal})
	}
}
