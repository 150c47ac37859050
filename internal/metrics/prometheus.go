package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ngruychev/distributed-computing/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Metrics are created and registered on first use, so constructing a
// collector that is never exercised registers nothing.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	jobsCreated      *prometheus.CounterVec
	claims           *prometheus.CounterVec
	answers          *prometheus.CounterVec
	renewals         *prometheus.CounterVec
	failovers        *prometheus.CounterVec
	sweepDuration    prometheus.Histogram
	sweepRecovered   prometheus.Counter
	kvOpDuration     *prometheus.HistogramVec
	workerHeartbeats *prometheus.CounterVec
	subtasksDone     *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Metrics namespace (defaults to "distcomp" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "distcomp"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.jobsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "jobs_created_total",
			Help:      "Jobs created, labelled by whether an identical job was returned instead.",
		}, []string{"deduplicated"})

		p.claims = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "claims_total",
			Help:      "Claim requests by result (claimed, empty, not_found, error).",
		}, []string{"result"})

		p.answers = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coordinator",
			Name:      "answers_total",
			Help:      "Answer submissions by result (solved, released, mismatch, not_found, error).",
		}, []string{"result"})

		p.renewals = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "lease",
			Name:      "renewals_total",
			Help:      "Lease renewals by outcome (accepted, rejected).",
		}, []string{"outcome"})

		p.failovers = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "lease",
			Name:      "failovers_total",
			Help:      "Claims revoked and requeued by reason (rejected, expired, orphan_claim, orphan_lease).",
		}, []string{"reason"})

		p.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "lease",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of lease sweep passes in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~4s
		})

		p.sweepRecovered = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "lease",
			Name:      "sweep_recovered_total",
			Help:      "Subtasks returned to the queue by the sweeper.",
		})

		p.kvOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of KV operations in seconds by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"})

		p.workerHeartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "heartbeats_total",
			Help:      "Heartbeats sent by this worker by success.",
		}, []string{"worker", "success"})

		p.subtasksDone = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "subtasks_processed_total",
			Help:      "Subtasks processed by outcome (found, exhausted, invalid, lost, error).",
		}, []string{"outcome"})

		p.reg.MustRegister(
			p.jobsCreated,
			p.claims,
			p.answers,
			p.renewals,
			p.failovers,
			p.sweepDuration,
			p.sweepRecovered,
			p.kvOpDuration,
			p.workerHeartbeats,
			p.subtasksDone,
		)
	})
}

// RecordJobCreated increments the jobs counter.
func (p *PrometheusCollector) RecordJobCreated(deduplicated bool) {
	p.ensureRegistered()
	p.jobsCreated.WithLabelValues(strconv.FormatBool(deduplicated)).Inc()
}

// RecordClaim increments the claims counter for result.
func (p *PrometheusCollector) RecordClaim(result string) {
	p.ensureRegistered()
	p.claims.WithLabelValues(result).Inc()
}

// RecordAnswer increments the answers counter for result.
func (p *PrometheusCollector) RecordAnswer(result string) {
	p.ensureRegistered()
	p.answers.WithLabelValues(result).Inc()
}

// RecordLeaseRenewal increments the renewals counter.
func (p *PrometheusCollector) RecordLeaseRenewal(accepted bool) {
	p.ensureRegistered()
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	p.renewals.WithLabelValues(outcome).Inc()
}

// RecordFailover increments the failovers counter for reason.
func (p *PrometheusCollector) RecordFailover(reason string) {
	p.ensureRegistered()
	p.failovers.WithLabelValues(reason).Inc()
}

// RecordSweepDuration observes one sweep pass.
func (p *PrometheusCollector) RecordSweepDuration(duration float64, recovered int) {
	p.ensureRegistered()
	p.sweepDuration.Observe(duration)
	p.sweepRecovered.Add(float64(recovered))
}

// RecordKVOperationDuration observes store latency for op.
func (p *PrometheusCollector) RecordKVOperationDuration(operation string, duration float64) {
	p.ensureRegistered()
	p.kvOpDuration.WithLabelValues(operation).Observe(duration)
}

// RecordHeartbeat increments the worker heartbeat counter.
func (p *PrometheusCollector) RecordHeartbeat(workerID string, success bool) {
	p.ensureRegistered()
	p.workerHeartbeats.WithLabelValues(workerID, strconv.FormatBool(success)).Inc()
}

// RecordSubtaskProcessed increments the processed counter for outcome.
func (p *PrometheusCollector) RecordSubtaskProcessed(outcome string) {
	p.ensureRegistered()
	p.subtasksDone.WithLabelValues(outcome).Inc()
}
