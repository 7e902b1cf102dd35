package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/target/tenantscan/internal/observability/statsd"
)

// JobsSubmittedCount counts submissions by outcome.
var JobsSubmittedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tenantscan",
	Name:      "jobs_submitted_total",
	Help:      "Scan submissions by outcome (accepted, rejected, error)",
}, []string{"result"})

// JobsTerminalCount counts jobs seen reaching a terminal state, by status.
var JobsTerminalCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tenantscan",
	Name:      "jobs_terminal_total",
	Help:      "Terminal jobs observed by the server, collected by a poll or failed by the reaper",
}, []string{"status"})

// JobDuration observes the run time of collected jobs.
var JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "tenantscan",
	Name:      "job_duration_seconds",
	Help:      "Duration of terminal scan jobs",
	Buckets:   []float64{5, 30, 60, 300, 600, 900, 1500, 1800, 3600},
})

// WorkersRunning tracks live worker handles in this process.
var WorkersRunning = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "tenantscan",
	Name:      "workers_running",
	Help:      "Worker processes launched by this server that have not been reaped",
})

// Submission outcomes for JobsSubmittedCount.
const (
	SubmitAccepted = "accepted"
	SubmitRejected = "rejected"
	SubmitError    = "error"
)

// Recorder fans job events out to the StatsD sink and the Prometheus collectors.
// A nil Recorder is valid and records nothing.
type Recorder struct {
	Sink statsd.Sink
}

// NewRecorder creates a Recorder writing StatsD metrics to sink.
func NewRecorder(sink statsd.Sink) *Recorder {
	return &Recorder{Sink: sink}
}

// Submitted records the outcome of a submission.
func (r *Recorder) Submitted(outcome string, err error) {
	if r == nil {
		return
	}
	JobsSubmittedCount.WithLabelValues(outcome).Inc()

	result := ResultSuccess
	switch outcome {
	case SubmitRejected:
		result = ResultRejected
	case SubmitError:
		result = ResultError
	}
	EmitJobLifecycle(r.Sink, JobMetric{Transition: TransitionSubmit, Result: result, Err: err})
}

// Terminal records a job the server observed in a terminal state.
func (r *Recorder) Terminal(transition, status string, duration time.Duration) {
	if r == nil {
		return
	}
	JobsTerminalCount.WithLabelValues(status).Inc()
	if duration > 0 {
		JobDuration.Observe(duration.Seconds())
	}
	EmitJobLifecycle(r.Sink, JobMetric{Transition: transition, Result: status, Duration: duration})
}

// Finished records the terminal write made by a worker. Only the StatsD sink is
// used because the worker process is never scraped.
func (r *Recorder) Finished(status string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	in := JobMetric{Transition: TransitionComplete, Result: ResultSuccess, Duration: duration}
	if status != "completed" {
		in.Transition, in.Result, in.Err = TransitionFail, ResultError, err
	}
	EmitJobLifecycle(r.Sink, in)
}

// Reaped records n running jobs the reaper failed for outliving their deadline.
func (r *Recorder) Reaped(n int64) {
	if r == nil || n <= 0 {
		return
	}
	JobsTerminalCount.WithLabelValues("failed").Add(float64(n))
	EmitJobLifecycle(r.Sink, JobMetric{Transition: TransitionTimeout, Result: "failed", Count: n})
}

// Workers records the number of live worker handles.
func (r *Recorder) Workers(n int) {
	if r == nil {
		return
	}
	WorkersRunning.Set(float64(n))
	if r.Sink != nil {
		r.Sink.Gauge("workers.running", float64(n), nil)
	}
}
