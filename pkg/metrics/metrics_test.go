package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == name {
			return fam
		}
	}
	return nil
}

func TestSweepJobMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSweepJobMetrics(reg)

	m.IncSuccess("bid-expiry")
	m.IncSuccess("bid-expiry")
	m.IncFailure("stale-orders")
	m.ObserveDuration("bid-expiry", 120*time.Millisecond)

	success := gather(t, reg, "sweep_job_success")
	require.NotNil(t, success)
	require.Len(t, success.Metric, 1)
	assert.Equal(t, float64(2), success.Metric[0].GetCounter().GetValue())

	failure := gather(t, reg, "sweep_job_failure")
	require.NotNil(t, failure)
	assert.Equal(t, "stale-orders", failure.Metric[0].GetLabel()[0].GetValue())
}

func TestSweepJobMetricsNilSafe(t *testing.T) {
	var m *SweepJobMetrics
	m.IncSuccess("x")
	m.IncFailure("x")
	m.ObserveDuration("x", time.Second)

	unregistered := NewSweepJobMetrics(nil)
	unregistered.IncSuccess("x")
}

func TestDecisionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDecisionMetrics(reg)

	m.IncOutcome(DecisionOutcomeAssigned)
	m.IncOutcome(DecisionOutcomeAssigned)
	m.IncOutcome(DecisionOutcomeNoBids)
	m.IncRetry()

	attempts := gather(t, reg, "decision_attempts_total")
	require.NotNil(t, attempts)
	assert.Len(t, attempts.Metric, 2)

	retries := gather(t, reg, "decision_retries_total")
	require.NotNil(t, retries)
	assert.Equal(t, float64(1), retries.Metric[0].GetCounter().GetValue())
}
