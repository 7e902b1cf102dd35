// Package httpx provides the HTTP submission and polling interface of the tenantscan job engine.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/tenantscan/internal/domain/model"
	"github.com/target/tenantscan/internal/service"
)

// ScanHandlers provides HTTP handlers for scan submission and polling.
type ScanHandlers struct {
	Svc    *service.JobService
	Logger *slog.Logger
}

// Submit handles HTTP requests to submit a new scan.
// A bearer token in the Authorization header is used when the body carries none.
func (h *ScanHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.BearerToken == "" {
		req.BearerToken = model.Secret(bearerToken(r))
	}

	resp, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		WriteServiceError(w, h.logger(), err)
		return
	}

	WriteJSON(w, http.StatusAccepted, resp)
}

// Poll handles HTTP requests for a scan's status. A terminal result is returned once.
func (h *ScanHandlers) Poll(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("job id is required")},
		)
		return
	}

	resp, err := h.Svc.Poll(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, h.logger(), err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

// Stats handles HTTP requests for the completion history aggregates.
func (h *ScanHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger(), err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

func (h *ScanHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
