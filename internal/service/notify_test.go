package service

import (
	"context"
	"sync"

	"github.com/target/tenantscan/internal/observability/notify"
)

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []notify.ScanFailurePayload
}

func (n *recordingNotifier) NotifyScanFailure(_ context.Context, payload notify.ScanFailurePayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
}

func (n *recordingNotifier) received() []notify.ScanFailurePayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.ScanFailurePayload(nil), n.payloads...)
}
