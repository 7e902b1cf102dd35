package worker

import (
	"context"
	"fmt"
)

// tracked reports the number of handles in the registry, exited or not.
func (l *Launcher) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handles)
}

// waitExit blocks until the worker for jobID exits or ctx is done. It does not release the handle.
func (l *Launcher) waitExit(ctx context.Context, jobID string) error {
	l.mu.Lock()
	h, ok := l.handles[jobID]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("no worker tracked for job %s", jobID)
	}
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
