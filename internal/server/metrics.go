// Package server exposes Prometheus metrics for PicoRelay.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. Each instance owns its
// own registry so tests can construct a fresh server without collector
// registration conflicts.
type Metrics struct {
	registry *prometheus.Registry

	ReadingsIngested  prometheus.Counter
	ReadingsRejected  prometheus.Counter
	CommandsEnqueued  prometheus.Counter
	CommandsDelivered prometheus.Counter
}

// NewMetrics builds and registers the collectors. live feeds the
// live-device and ring-length gauges.
func NewMetrics(live *LiveState) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picorelay_readings_ingested_total",
			Help: "Readings accepted by /api/ingest.",
		}),
		ReadingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picorelay_readings_rejected_total",
			Help: "Ingest requests rejected by validation.",
		}),
		CommandsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picorelay_commands_enqueued_total",
			Help: "Commands queued via /api/device-message.",
		}),
		CommandsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picorelay_commands_delivered_total",
			Help: "Commands delivered by consume-polls.",
		}),
	}

	liveGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "picorelay_live_devices",
		Help: "Devices currently within the presence TTL.",
	}, func() float64 { return float64(live.LiveCount()) })

	ringGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "picorelay_ring_length",
		Help: "Readings currently held in the live ring.",
	}, func() float64 { return float64(live.RingLen()) })

	m.registry.MustRegister(
		m.ReadingsIngested, m.ReadingsRejected,
		m.CommandsEnqueued, m.CommandsDelivered,
		liveGauge, ringGauge,
	)
	return m
}

// Handler returns the scrape endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
