// Package monitoring exposes execution, queue, and lock metrics through
// prometheus/client_golang, and derives execution progress on demand from
// step states for the events publisher. Collectors hang off an explicitly
// constructed Metrics value registered against a caller-supplied registry,
// never a package-level init() global.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

// Metrics owns the execution engine's Prometheus collectors, registered
// against a caller-supplied registry so cmd/execution-core controls
// whether it's the global default registry or a scoped one.
type Metrics struct {
	executionsStarted   *prometheus.CounterVec
	executionsCompleted *prometheus.CounterVec
	executionDuration   *prometheus.HistogramVec
	queueDepth          *prometheus.GaugeVec
	lockContention      *prometheus.CounterVec
	stepDuration        *prometheus.HistogramVec
}

// NewMetrics constructs and registers the execution-core collector set
// against reg. Pass prometheus.NewRegistry() in production and a fresh
// registry per test in tests so collectors never collide across runs.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		executionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execution_core",
			Name:      "executions_started_total",
			Help:      "Total number of executions that began running.",
		}, []string{"sla_class"}),
		executionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execution_core",
			Name:      "executions_completed_total",
			Help:      "Total number of executions that reached a terminal status.",
		}, []string{"sla_class", "status"}),
		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "execution_core",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of completed executions.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		}, []string{"sla_class"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "execution_core",
			Name:      "queue_depth",
			Help:      "Current number of queue items by status.",
		}, []string{"status"}),
		lockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "execution_core",
			Name:      "lock_contention_total",
			Help:      "Total number of asset lock acquisitions that had to wait for a held lock.",
		}, []string{"tenant_id"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "execution_core",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual step executions.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"step_type", "status"}),
	}

	reg.MustRegister(
		m.executionsStarted,
		m.executionsCompleted,
		m.executionDuration,
		m.queueDepth,
		m.lockContention,
		m.stepDuration,
	)
	return m
}

// RecordExecutionStarted increments the started counter for an SLA class.
func (m *Metrics) RecordExecutionStarted(sla models.SLAClass) {
	m.executionsStarted.WithLabelValues(string(sla)).Inc()
}

// RecordExecutionCompleted increments the completed counter and observes
// the execution's total duration, keyed by its terminal status.
func (m *Metrics) RecordExecutionCompleted(sla models.SLAClass, status models.Status, duration time.Duration) {
	m.executionsCompleted.WithLabelValues(string(sla), string(status)).Inc()
	if duration > 0 {
		m.executionDuration.WithLabelValues(string(sla)).Observe(duration.Seconds())
	}
}

// RecordStepDuration observes a single step's execution time.
func (m *Metrics) RecordStepDuration(stepType models.StepType, status models.StepStatus, duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.stepDuration.WithLabelValues(string(stepType), string(status)).Observe(duration.Seconds())
}

// SetQueueDepth publishes the current count of queue items per status,
// called periodically from the pool health loop.
func (m *Metrics) SetQueueDepth(depth map[models.QueueStatus]int) {
	for status, n := range depth {
		m.queueDepth.WithLabelValues(string(status)).Set(float64(n))
	}
}

// RecordLockContention increments the contention counter when an asset
// lock acquisition had to wait because the lock was already held.
func (m *Metrics) RecordLockContention(tenantID string) {
	m.lockContention.WithLabelValues(tenantID).Inc()
}
