// Package metrics exposes per-worker Prometheus collectors. A worker is a
// short-lived per-process unit (one worker = one binary invocation), so
// collectors are registered against a dedicated prometheus.Registry instead
// of the global promauto default registry, and explicitly unregistered at
// shutdown.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every collector the worker updates, scoped to one
// worker name via a constant "worker" label.
type Registry struct {
	reg *prometheus.Registry

	JobsClaimed   *prometheus.CounterVec
	JobsCompleted *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec

	QueuePullDuration prometheus.Histogram
	QueueDepth        prometheus.Gauge

	FlowStepsAdvanced prometheus.Counter
	FlowsSuspended    prometheus.Counter
	FlowsCompleted    *prometheus.CounterVec

	ZombiesReclaimed prometheus.Counter
	ZombiesKilled    prometheus.Counter

	WebhookRequests *prometheus.CounterVec

	ActiveJobs prometheus.Gauge
}

// New builds and registers a Registry for workerName. Call Close to
// unregister every collector when the worker shuts down.
func New(workerName string) *Registry {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"worker": workerName}

	m := &Registry{
		reg: reg,

		JobsClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "windmill_worker_jobs_claimed_total",
			Help:        "Total number of jobs claimed from the queue.",
			ConstLabels: labels,
		}, []string{"job_kind"}),

		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "windmill_worker_jobs_completed_total",
			Help:        "Total number of jobs completed successfully.",
			ConstLabels: labels,
		}, []string{"job_kind"}),

		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "windmill_worker_jobs_failed_total",
			Help:        "Total number of jobs that failed, tagged by error kind.",
			ConstLabels: labels,
		}, []string{"job_kind", "error_kind"}),

		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "windmill_worker_job_duration_seconds",
			Help:        "Job execution duration in seconds.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"job_kind"}),

		QueuePullDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "windmill_worker_queue_pull_duration_seconds",
			Help:        "Time spent waiting on a queue pull iteration.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 12),
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "windmill_worker_queue_depth",
			Help:        "Observed number of queued jobs eligible for this worker's tags.",
			ConstLabels: labels,
		}),

		FlowStepsAdvanced: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "windmill_worker_flow_steps_advanced_total",
			Help:        "Total number of flow module steps advanced.",
			ConstLabels: labels,
		}),

		FlowsSuspended: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "windmill_worker_flows_suspended_total",
			Help:        "Total number of flows that entered WaitingForEvents.",
			ConstLabels: labels,
		}),

		FlowsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "windmill_worker_flows_completed_total",
			Help:        "Total number of flows that reached a terminal state.",
			ConstLabels: labels,
		}, []string{"success"}),

		ZombiesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "windmill_worker_zombies_reclaimed_total",
			Help:        "Total number of restartable zombie jobs returned to the queue.",
			ConstLabels: labels,
		}),

		ZombiesKilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "windmill_worker_zombies_killed_total",
			Help:        "Total number of unrecoverable zombie jobs failed out.",
			ConstLabels: labels,
		}),

		WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "windmill_worker_webhook_requests_total",
			Help:        "Total number of inbound webhook trigger requests, tagged by provider and outcome.",
			ConstLabels: labels,
		}, []string{"provider", "outcome"}),

		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "windmill_worker_active_jobs",
			Help:        "Number of jobs currently being supervised by this worker.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.JobsClaimed, m.JobsCompleted, m.JobsFailed, m.JobDuration,
		m.QueuePullDuration, m.QueueDepth,
		m.FlowStepsAdvanced, m.FlowsSuspended, m.FlowsCompleted,
		m.ZombiesReclaimed, m.ZombiesKilled,
		m.WebhookRequests, m.ActiveJobs,
	)

	return m
}

// Gatherer exposes the underlying registry for the /metrics HTTP handler.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.reg
}

// Close unregisters every collector, releasing this worker's metrics so a
// subsequent worker in the same process (tests spinning up several workers)
// doesn't collide on collector identity.
func (m *Registry) Close() {
	m.reg.Unregister(m.JobsClaimed)
	m.reg.Unregister(m.JobsCompleted)
	m.reg.Unregister(m.JobsFailed)
	m.reg.Unregister(m.JobDuration)
	m.reg.Unregister(m.QueuePullDuration)
	m.reg.Unregister(m.QueueDepth)
	m.reg.Unregister(m.FlowStepsAdvanced)
	m.reg.Unregister(m.FlowsSuspended)
	m.reg.Unregister(m.FlowsCompleted)
	m.reg.Unregister(m.ZombiesReclaimed)
	m.reg.Unregister(m.ZombiesKilled)
	m.reg.Unregister(m.WebhookRequests)
	m.reg.Unregister(m.ActiveJobs)
}
