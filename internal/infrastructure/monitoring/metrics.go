package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the agent exports. One instance
// is created at startup and shared by injection; collectors register on the
// given registerer, so tests can use private registries.
type Metrics struct {
	// Key operations, labeled by kms, operation and outcome.
	KeyOperations *prometheus.CounterVec

	// Sync engine behavior.
	SyncTicks          *prometheus.CounterVec   // labeled by direction and outcome
	SyncJobsProcessed  *prometheus.CounterVec   // labeled by direction
	SyncJobFailures    *prometheus.CounterVec   // labeled by direction
	SyncEndpointErrors *prometheus.CounterVec   // labeled by endpoint
	SyncTickDuration   *prometheus.HistogramVec // labeled by direction

	// DID resolution.
	ResolutionRequests *prometheus.CounterVec // labeled by outcome
}

// NewMetrics builds and registers all collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		KeyOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "didagent",
			Subsystem: "keys",
			Name:      "operations_total",
			Help:      "Key operations by kms, operation and outcome.",
		}, []string{"kms", "operation", "outcome"}),

		SyncTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "didagent",
			Subsystem: "sync",
			Name:      "ticks_total",
			Help:      "Completed sync cycles by direction and outcome.",
		}, []string{"direction", "outcome"}),

		SyncJobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "didagent",
			Subsystem: "sync",
			Name:      "jobs_processed_total",
			Help:      "Replication jobs completed and removed from the queue.",
		}, []string{"direction"}),

		SyncJobFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "didagent",
			Subsystem: "sync",
			Name:      "job_failures_total",
			Help:      "Replication jobs that failed and stayed queued for retry.",
		}, []string{"direction"}),

		SyncEndpointErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "didagent",
			Subsystem: "sync",
			Name:      "endpoint_errors_total",
			Help:      "Remote endpoints skipped within a cycle after a failure.",
		}, []string{"endpoint"}),

		SyncTickDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "didagent",
			Subsystem: "sync",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one sync cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),

		ResolutionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "didagent",
			Subsystem: "resolver",
			Name:      "requests_total",
			Help:      "DID resolution attempts by outcome.",
		}, []string{"outcome"}),
	}
}
