package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the submission and polling HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeReaper runs the job lifecycle reaper.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited, case-insensitive list of service modes.
// Blank entries are skipped; an unknown mode or an empty result is an error.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	if strings.TrimSpace(servicesStr) == "" {
		return map[ServiceMode]bool{}, errors.New("at least one service must be specified")
	}

	valid := ValidServiceModes()
	services := make(map[ServiceMode]bool, len(valid))
	for part := range strings.SplitSeq(servicesStr, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		if !slices.Contains(valid, mode) {
			return nil, fmt.Errorf("invalid service name: %q (valid options: %s)", name, joinModes(valid))
		}
		services[mode] = true
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}
	return services, nil
}

func joinModes(modes []ServiceMode) string {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"1m"`

	// RunningMaxAge is the maximum age for running jobs before they are marked as failed.
	// The worker is not killed; its late terminal write becomes a no-op.
	RunningMaxAge time.Duration `env:"REAPER_RUNNING_MAX_AGE" envDefault:"30m"`

	// CompletedMaxAge is the soft expiry for completed results nobody polled.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"1h"`

	// FailedMaxAge is the hard expiry for failed jobs.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"24h"`

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize clamps reaper settings so a misconfigured deployment cannot hammer the job store.
func (r *ReaperConfig) Sanitize() {
	r.Interval = max(r.Interval, 10*time.Second)
	r.RunningMaxAge = max(r.RunningMaxAge, time.Minute)
	r.CompletedMaxAge = max(r.CompletedMaxAge, time.Minute)
	r.FailedMaxAge = max(r.FailedMaxAge, time.Minute)
	r.BatchSize = min(max(r.BatchSize, 1), 10000)
}
