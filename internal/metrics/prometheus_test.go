package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordJobCreated(false)
	p.RecordJobCreated(true)
	p.RecordJobCreated(false)
	p.RecordClaim("claimed")
	p.RecordClaim("empty")
	p.RecordAnswer("solved")
	p.RecordLeaseRenewal(true)
	p.RecordLeaseRenewal(false)
	p.RecordFailover("expired")
	p.RecordFailover("expired")
	p.RecordHeartbeat("w-1", true)
	p.RecordSubtaskProcessed("exhausted")

	require.InDelta(t, 2, testutil.ToFloat64(p.jobsCreated.WithLabelValues("false")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.jobsCreated.WithLabelValues("true")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.claims.WithLabelValues("empty")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.renewals.WithLabelValues("rejected")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(p.failovers.WithLabelValues("expired")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.workerHeartbeats.WithLabelValues("w-1", "true")), 0)
}

func TestPrometheusCollector_Histograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "")

	p.RecordSweepDuration(0.01, 3)
	p.RecordSweepDuration(0.02, 1)
	p.RecordKVOperationDuration("update", 0.001)

	require.InDelta(t, 4, testutil.ToFloat64(p.sweepRecovered), 0)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["distcomp_lease_sweep_duration_seconds"])
	require.True(t, names["distcomp_store_operation_duration_seconds"])
}

func TestPrometheusCollector_LazyRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheus(reg, "lazy")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Empty(t, families)
}
