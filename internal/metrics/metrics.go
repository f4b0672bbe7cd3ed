package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warpcall"

// Metrics holds the signaling server collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	connections   prometheus.Gauge
	occupiedRooms *prometheus.GaugeVec
	joins         *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	relayed       *prometheus.CounterVec
	dropped       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signaling",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		occupiedRooms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}, []string{"modality"}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "joins_total",
			Help:      "Accepted room joins.",
		}, []string{"modality"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "rejections_total",
			Help:      "Joins rejected because the room was full.",
		}, []string{"modality"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signaling",
			Name:      "relayed_total",
			Help:      "Messages forwarded to a peer.",
		}, []string{"modality", "type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signaling",
			Name:      "dropped_total",
			Help:      "Messages dropped before reaching a peer.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.occupiedRooms,
		m.joins,
		m.rejections,
		m.relayed,
		m.dropped,
	)
	return m
}

// Handler exposes the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) RoomJoined(modality string) {
	if m != nil {
		m.joins.WithLabelValues(modality).Inc()
	}
}

func (m *Metrics) RoomRejected(modality string) {
	if m != nil {
		m.rejections.WithLabelValues(modality).Inc()
	}
}

func (m *Metrics) SetOccupiedRooms(modality string, n int) {
	if m != nil {
		m.occupiedRooms.WithLabelValues(modality).Set(float64(n))
	}
}

func (m *Metrics) Relayed(modality, msgType string) {
	if m != nil {
		m.relayed.WithLabelValues(modality, msgType).Inc()
	}
}

// Dropped reasons.
const (
	DropUnreachable = "unreachable"
	DropRateLimited = "rate_limited"
	DropSendBuffer  = "send_buffer"
)

func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}
