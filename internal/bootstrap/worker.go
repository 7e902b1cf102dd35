package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/target/tenantscan/config"
	"github.com/target/tenantscan/internal/adapters/credentials"
	"github.com/target/tenantscan/internal/adapters/engine"
	"github.com/target/tenantscan/internal/core"
	"github.com/target/tenantscan/internal/data"
	"github.com/target/tenantscan/internal/data/database"
	"github.com/target/tenantscan/internal/domain/model"
	tslog "github.com/target/tenantscan/internal/log"
	"github.com/target/tenantscan/internal/normalize"
	obserrors "github.com/target/tenantscan/internal/observability/errors"
	"github.com/target/tenantscan/internal/observability/metrics"
	"github.com/target/tenantscan/internal/observability/notify"
	"github.com/target/tenantscan/internal/service"
)

// workerStoreConns keeps a worker's footprint on the shared store small.
const workerStoreConns = 2

// ReadWorkerBundle decodes the bundle a worker receives on stdin.
func ReadWorkerBundle(r io.Reader) (model.WorkerBundle, error) {
	var bundle model.WorkerBundle
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&bundle); err != nil {
		return bundle, fmt.Errorf("decode worker bundle: %w", err)
	}
	if err := bundle.Validate(); err != nil {
		return bundle, err
	}
	return bundle, nil
}

// WorkerContext tags every record logged with ctx as coming from this worker.
func WorkerContext(ctx context.Context, jobID string) context.Context {
	return tslog.ContextAttrs(ctx, slog.Group("worker",
		slog.String("cmd", "scan"),
		slog.Int("pid", os.Getpid()),
		slog.String("job_id", jobID),
	))
}

// RunWorker executes the scan described by bundle and records its terminal state.
// The returned error is the scan failure, already recorded on the job when possible.
func RunWorker(ctx context.Context, cfg *config.AppConfig, bundle model.WorkerBundle, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("worker config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx = WorkerContext(ctx, bundle.JobID)

	store, err := OpenStore(ctx, bundle.Store, database.Config{
		MaxOpenConns: workerStoreConns,
		MaxIdleConns: workerStoreConns,
	})
	if err != nil {
		// Nothing can be recorded; the reaper fails the job once it goes stale.
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close job store failed", "error", cerr)
		}
	}()

	repo := data.NewJobRepo(store.DB, data.RepoConfig{Dialect: store.Dialect, Logger: logger})

	obs := buildObservability(logger, cfg.Observability)
	if obs.MetricsSink != nil {
		defer func() { _ = obs.MetricsSink.Close() }()
	}
	notifier := obs.FailureNotifier
	scan, err := NewScanService(cfg, repo, notifier, obs.Recorder, logger)
	if err != nil {
		failUnstarted(ctx, repo, notifier, &bundle, err, logger)
		return err
	}
	return scan.Run(ctx, bundle)
}

// NewScanService wires the worker-side scan pipeline.
func NewScanService(
	cfg *config.AppConfig,
	repo core.JobRepository,
	notifier service.FailureNotifier,
	recorder *metrics.Recorder,
	logger *slog.Logger,
) (*service.ScanService, error) {
	orchestrator, err := NewConnectionAcquirer(cfg.Credentials, logger)
	if err != nil {
		return nil, err
	}

	runner, err := engine.NewRunner(engine.Config{
		Command:   cfg.Engine.Command,
		Args:      cfg.Engine.Args,
		TestsRoot: cfg.Engine.TestsRoot,
		Timeout:   cfg.Engine.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create engine runner: %w", err)
	}

	normalizer, err := normalize.New(logger)
	if err != nil {
		return nil, fmt.Errorf("create normalizer: %w", err)
	}

	return service.NewScanService(service.ScanServiceOptions{
		Repo:        repo,
		Connections: orchestrator,
		Engine:      runner,
		Normalizer:  normalizer,
		Notifier:    notifier,
		Metrics:     recorder,
		Logger:      logger,
	})
}

// NewConnectionAcquirer wires discovery, grants, domain resolution and the cloud connector.
func NewConnectionAcquirer(cfg config.CredentialsConfig, logger *slog.Logger) (*credentials.Orchestrator, error) {
	resolver := credentials.NewEndpointResolver(credentials.EndpointResolverOptions{
		Authority: cfg.Authority,
		Logger:    logger,
	})
	granter := credentials.NewClientCredentialsGranter(resolver, nil, cfg.GrantTimeout)

	// azidentity expects the authority host with a trailing slash; empty means the public cloud.
	authorityHost := ""
	if cfg.Authority != "" && cfg.Authority != credentials.DefaultAuthority {
		authorityHost = cfg.Authority + "/"
	}

	return credentials.NewOrchestrator(credentials.OrchestratorOptions{
		Granter: granter,
		Domains: credentials.NewDomainResolver(nil),
		Cloud:   credentials.NewServicePrincipalConnector(authorityHost, cfg.ManagementScope),
		Scopes: credentials.Scopes{
			Directory:     cfg.DirectoryScope,
			Mail:          cfg.MailScope,
			Compliance:    cfg.ComplianceScope,
			Collaboration: cfg.CollaborationScope,
		},
		Logger: logger,
	})
}

// failUnstarted records a job whose scan pipeline could not even be assembled.
func failUnstarted(
	ctx context.Context,
	repo core.JobRepository,
	notifier service.FailureNotifier,
	bundle *model.WorkerBundle,
	cause error,
	logger *slog.Logger,
) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	message := model.SanitizeError(cause.Error())
	written, err := repo.Fail(wctx, core.FailJobParams{ID: bundle.JobID, Error: message})
	if err != nil {
		logger.ErrorContext(ctx, "failed to record worker setup failure", "error", err)
		return
	}
	if written && notifier != nil {
		notifier.NotifyScanFailure(wctx, notify.ScanFailurePayload{
			JobID:      bundle.JobID,
			TenantID:   bundle.TenantID,
			Suites:     bundle.Suites,
			Stage:      notify.StageSetup,
			Error:      message,
			ErrorClass: obserrors.Classify(cause),
		})
	}
}
