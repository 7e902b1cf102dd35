package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/tenantscan/config"
	"github.com/target/tenantscan/internal/adapters/reaper"
	"github.com/target/tenantscan/internal/observability/statsd"
)

// ReaperConfig contains configuration for the reaper service.
type ReaperConfig struct {
	Store   *Store
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	if cfg.Store == nil {
		return errors.New("job store is required")
	}
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.Store.DB,
		Dialect: cfg.Store.Dialect,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
