package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

func TestRegistry_CountersGather(t *testing.T) {
	r := NewRegistry()

	r.OrdersSubmitted.WithLabelValues("buy").Inc()
	r.OrdersSubmitted.WithLabelValues("buy").Inc()
	r.OrderOutcomes.WithLabelValues("filled").Inc()
	r.RiskViolations.WithLabelValues("trailing_stop").Inc()
	r.OpenPositions.Set(2)

	families, err := r.Prometheus().Gather()
	require.NoError(t, err)

	submitted := findFamily(t, families, "optionrun_orders_submitted_total")
	require.Len(t, submitted.GetMetric(), 1)
	assert.Equal(t, 2.0, submitted.GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, "buy", submitted.GetMetric()[0].GetLabel()[0].GetValue())

	violations := findFamily(t, families, "optionrun_risk_violations_total")
	assert.Equal(t, 1.0, violations.GetMetric()[0].GetCounter().GetValue())

	gauge := findFamily(t, families, "optionrun_open_positions")
	assert.Equal(t, 2.0, gauge.GetMetric()[0].GetGauge().GetValue())
}

func TestRegistry_HistogramObserves(t *testing.T) {
	r := NewRegistry()
	r.FillWaitSeconds.Observe(0.3)
	r.FillWaitSeconds.Observe(1.2)

	families, err := r.Prometheus().Gather()
	require.NoError(t, err)

	hist := findFamily(t, families, "optionrun_fill_wait_seconds")
	assert.Equal(t, uint64(2), hist.GetMetric()[0].GetHistogram().GetSampleCount())
}
