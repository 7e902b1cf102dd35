package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	healthResponse     = `{"status":"ok"}`
	unhealthyResponse  = `{"status":"unavailable"}`
	healthProbeTimeout = 2 * time.Second
)

// Pinger reports whether the job store is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// healthHandler answers readiness/liveness checks. With a store configured, an
// unreachable store turns the answer into 503 so the instance stops taking scans.
func healthHandler(store Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, healthResponse
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
			err := store.PingContext(ctx)
			cancel()
			if err != nil {
				logger.WarnContext(r.Context(), "health probe failed", "error", err)
				status, body = http.StatusServiceUnavailable, unhealthyResponse
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.WriteString(w, body); err != nil {
			// Nothing more to do if the client connection is gone.
			return
		}
	}
}
