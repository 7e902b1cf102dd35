package httpx

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/target/tenantscan/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs *service.JobService
	// Store is probed by /healthz. Optional.
	Store Pinger
	// MaxBodyBytes caps submission bodies. Zero disables the limit.
	MaxBodyBytes int64
	// Metrics exposes the Prometheus collectors at /metrics when true.
	Metrics bool
	Logger  *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	scans := &ScanHandlers{Svc: services.Jobs, Logger: logger.With("component", "http")}
	registerScanRoutes(mux, scans, services.MaxBodyBytes)

	health := healthHandler(services.Store, logger)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)
	if services.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return Recover(logger)(Logging(logger)(mux))
}

func registerScanRoutes(mux *http.ServeMux, h *ScanHandlers, maxBody int64) {
	mux.Handle("POST /api/scans", LimitBody(maxBody)(http.HandlerFunc(h.Submit)))
	// The literal segment wins over the wildcard.
	mux.HandleFunc("GET /api/scans/stats", h.Stats)
	mux.HandleFunc("GET /api/scans/{id}", h.Poll)
}
