package hub

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type hubMetrics struct {
	connections prometheus.Gauge
	joined      prometheus.Gauge
	joinsTotal  prometheus.Counter
	frames      *prometheus.CounterVec
	relayed     *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

func newHubMetrics(reg prometheus.Registerer) *hubMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &hubMetrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Open websocket connections, joined or not.",
		}),
		joined: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_identities_joined",
			Help: "Connections that completed JOIN.",
		}),
		joinsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_joins_total",
			Help: "Total JOINs accepted since start.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Decoded frames received from clients by type.",
		}, []string{"type"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_relayed_total",
			Help: "Frames forwarded to at least one peer, by type and addressing mode.",
		}, []string{"type", "mode"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_dropped_total",
			Help: "Frames dropped by reason.",
		}, []string{"reason"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_dispatch_latency_seconds",
			Help:    "Time spent dispatching one inbound frame.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.connections,
		m.joined,
		m.joinsTotal,
		m.frames,
		m.relayed,
		m.dropped,
		m.latency,
	)
	return m
}

func (m *hubMetrics) connOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *hubMetrics) connClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *hubMetrics) identityJoined() {
	if m == nil {
		return
	}
	m.joined.Inc()
	m.joinsTotal.Inc()
}

func (m *hubMetrics) identityLeft() {
	if m == nil {
		return
	}
	m.joined.Dec()
}

func (m *hubMetrics) frameReceived(typ string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(typ).Inc()
}

func (m *hubMetrics) frameRelayed(typ, mode string) {
	if m == nil {
		return
	}
	m.relayed.WithLabelValues(typ, mode).Inc()
}

func (m *hubMetrics) frameDropped(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *hubMetrics) observeDispatch(typ string, dur time.Duration) {
	if m == nil || typ == "" {
		return
	}
	m.latency.WithLabelValues(typ).Observe(dur.Seconds())
}
