// Package metrics exposes Prometheus instrumentation for capture sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one camlink process.
type Metrics struct {
	registry *prometheus.Registry

	FramesDelivered *prometheus.CounterVec
	FramesSkipped   *prometheus.CounterVec
	StartupFailures *prometheus.CounterVec
	SessionState    *prometheus.GaugeVec
	DevicesKnown    prometheus.Gauge
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		FramesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "camlink",
			Name:      "frames_delivered_total",
			Help:      "Frames wrapped and dispatched to at least one consumer.",
		}, []string{"device_id"}),
		FramesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "camlink",
			Name:      "frames_skipped_total",
			Help:      "Frames dropped at arrival because no consumer was registered.",
		}, []string{"device_id"}),
		StartupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "camlink",
			Name:      "session_startup_failures_total",
			Help:      "Asynchronous session startups that ended in an error.",
		}, []string{"device_id", "stage"}),
		SessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "camlink",
			Name:      "session_state",
			Help:      "Current session state (1 for the active state, 0 otherwise).",
		}, []string{"device_id", "state"}),
		DevicesKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "camlink",
			Name:      "devices_known",
			Help:      "Devices in the last catalog snapshot.",
		}),
	}

	registry.MustRegister(
		m.FramesDelivered,
		m.FramesSkipped,
		m.StartupFailures,
		m.SessionState,
		m.DevicesKnown,
	)
	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetSessionState flips the state gauge so exactly one state is 1 for the
// device.
func (m *Metrics) SetSessionState(deviceID, state string) {
	for _, s := range []string{"idle", "starting", "running", "stopping"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.SessionState.WithLabelValues(deviceID, s).Set(v)
	}
}
