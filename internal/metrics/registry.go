// Package metrics defines the Prometheus registry exposed by the
// healthcheck/metrics HTTP server, grounded on the registry pattern in
// internal/interfaces/http/metrics.go of the teacher repo.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric marketfeed publishes.
type Registry struct {
	EventsIngested   *prometheus.CounterVec
	ParseErrors      *prometheus.CounterVec
	SessionState     *prometheus.GaugeVec
	BusDropped       prometheus.Counter
	BusDepth         prometheus.Gauge
	ArbitrageSignals *prometheus.CounterVec
	SpoofDetections  *prometheus.CounterVec
	SinkFlushes      *prometheus.CounterVec
	SinkFlushLatency prometheus.Histogram
}

// NewRegistry builds a Registry and registers every metric with reg.
func NewRegistry(reg *prometheus.Registry) *Registry {
	r := &Registry{
		EventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_events_ingested_total",
				Help: "Total canonical events produced by a venue session.",
			},
			[]string{"exchange", "kind"},
		),
		ParseErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_parse_errors_total",
				Help: "Total frames dropped for failing to translate into canonical events.",
			},
			[]string{"exchange"},
		),
		SessionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketfeed_session_state",
				Help: "Current session lifecycle state (0=opening,1=subscribing,2=running,3=closed).",
			},
			[]string{"exchange"},
		),
		BusDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "marketfeed_bus_dropped_total",
				Help: "Total events dropped from a lagging subscriber's queue.",
			},
		),
		BusDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketfeed_bus_subscribers",
				Help: "Current number of active bus subscribers.",
			},
		),
		ArbitrageSignals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_arbitrage_signals_total",
				Help: "Total arbitrage signals raised, by direction.",
			},
			[]string{"buy_exchange", "sell_exchange"},
		),
		SpoofDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_spoof_detections_total",
				Help: "Total price levels flagged as suspected spoofing, by exchange and side.",
			},
			[]string{"exchange", "side"},
		),
		SinkFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketfeed_sink_flushes_total",
				Help: "Total buffered sink flushes, by result.",
			},
			[]string{"sink", "result"},
		),
		SinkFlushLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketfeed_sink_flush_latency_seconds",
				Help:    "Latency of a buffered sink flush call.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(
		r.EventsIngested,
		r.ParseErrors,
		r.SessionState,
		r.BusDropped,
		r.BusDepth,
		r.ArbitrageSignals,
		r.SpoofDetections,
		r.SinkFlushes,
		r.SinkFlushLatency,
	)
	return r
}
