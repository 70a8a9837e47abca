package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.EventsIngested.WithLabelValues("binance", "level").Inc()
	r.BusDropped.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["marketfeed_events_ingested_total"])
	assert.True(t, names["marketfeed_bus_dropped_total"])
}

func TestEventsIngestedCountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)
	r.EventsIngested.WithLabelValues("kraken", "trade").Add(3)

	var metric io_prometheus_client.Metric
	require.NoError(t, r.EventsIngested.WithLabelValues("kraken", "trade").Write(&metric))
	assert.Equal(t, float64(3), metric.GetCounter().GetValue())
}
