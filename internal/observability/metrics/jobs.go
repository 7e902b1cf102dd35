// Package metrics emits job lifecycle metrics to StatsD and Prometheus.
package metrics

import (
	"time"

	obserrors "github.com/target/tenantscan/internal/observability/errors"
	"github.com/target/tenantscan/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultNoop     = "noop"
	ResultRejected = "rejected"
)

// Transition names used for the job.transition metric.
const (
	TransitionSubmit   = "submit"
	TransitionComplete = "complete"
	TransitionFail     = "fail"
	TransitionCollect  = "collect"
	TransitionTimeout  = "timeout"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
	Count      int64 // jobs covered by the event; zero means one
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", max(in.Count, 1), tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
