package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/tenantscan/config"
	"github.com/target/tenantscan/internal/bootstrap"
)

const defaultMigrationTimeout = 5 * time.Minute

var (
	cfg    config.AppConfig
	logger *slog.Logger
)

func main() {
	logger = bootstrap.InitLogger()

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		logger.Error("tenantscan failed", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "tenantscan",
		Short:             "Tenant security-configuration scanning service",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}
	root.AddCommand(serveCmd(), migrateCmd(), workerCmd(), versionCmd())
	return root
}

func loadConfig(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.SetLogLevel(cfg.SlogLevel())
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job reaper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), &cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.AppConfig) error {
	logStartupInfo(ctx, cfg)

	if err := bootstrap.ValidateServiceConfig(cfg); err != nil {
		return err
	}

	store, err := bootstrap.ConnectStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close job store failed", "error", cerr)
		}
	}()

	if cfg.Store.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, store, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config: cfg,
		Store:  store,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   cfg,
		Services: services,
		Store:    store,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting tenantscan service",
		"store_driver", cfg.Store.Driver,
		"tenant_concurrency", cfg.Scan.TenantConcurrency,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply job store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultMigrationTimeout)
			defer cancel()

			store, err := bootstrap.ConnectStore(ctx, cfg.Store, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return bootstrap.RunMigrations(ctx, store, logger)
		},
	}
}

// workerCmd is the entrypoint of a re-executed scan worker. The bundle arrives on stdin.
func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "_worker",
		Short:  "internal command",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			bundle, err := bootstrap.ReadWorkerBundle(cmd.InOrStdin())
			if err != nil {
				return err
			}
			logger.InfoContext(bootstrap.WorkerContext(ctx, bundle.JobID), "worker started", "bundle", bundle)
			return bootstrap.RunWorker(ctx, &cfg, bundle, logger)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		// Version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			info, ok := debug.ReadBuildInfo()
			if !ok {
				fmt.Fprintln(out, "tenantscan: version info not available")
				return
			}
			fmt.Fprintf(out, "tenantscan: %s\n", info.Main.Version)
			fmt.Fprintf(out, "go:         %s\n", info.GoVersion)
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					fmt.Fprintf(out, "commit:     %s\n", s.Value)
				case "vcs.time":
					fmt.Fprintf(out, "date:       %s\n", s.Value)
				}
			}
		},
	}
}
