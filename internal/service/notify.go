package service

import (
	"context"

	"github.com/target/tenantscan/internal/domain/model"
	obserrors "github.com/target/tenantscan/internal/observability/errors"
	"github.com/target/tenantscan/internal/observability/notify"
)

// FailureNotifier reports jobs that were recorded as failed.
type FailureNotifier interface {
	NotifyScanFailure(ctx context.Context, payload notify.ScanFailurePayload)
}

// notifyFailure is called only after the failed state was written, so each job is reported once.
func notifyFailure(
	ctx context.Context,
	n FailureNotifier,
	bundle *model.WorkerBundle,
	stage, message string,
	cause error,
) {
	if n == nil {
		return
	}
	n.NotifyScanFailure(ctx, notify.ScanFailurePayload{
		JobID:      bundle.JobID,
		TenantID:   bundle.TenantID,
		Suites:     bundle.Suites,
		Stage:      stage,
		Error:      message,
		ErrorClass: obserrors.Classify(cause),
		Severity:   notify.SeverityCritical,
	})
}
