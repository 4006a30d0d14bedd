// Package metrics holds the Prometheus metrics of planning and submission.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	tasksPlannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasker_tasks_planned_total",
			Help: "Number of tasks planned, by task type.",
		},
		[]string{"kind"},
	)

	taskBatchesSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasker_task_batches_submitted_total",
			Help: "Task batches handed to the job manager, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	jobManagerRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tasker_jobmanager_request_duration_seconds",
			Help:    "Latency of job manager calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"op"},
	)
)

func ObserveTasksPlanned(kind string, n int) {
	tasksPlannedTotal.WithLabelValues(kind).Add(float64(n))
}

func ObserveBatchSubmitted(op string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	taskBatchesSubmittedTotal.WithLabelValues(op, outcome).Inc()
}

func ObserveJobManagerRequest(op string, d time.Duration) {
	jobManagerRequestDurationSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// Push sends all registered metrics to a Prometheus push gateway, grouped under the job name.
func Push(url, job string) error {
	return push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push()
}
