package meshnet

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector a Node exposes, registered on an
// isolated registry so meshnet metrics never collide with a process-global
// default registry (and so each test gets its own clean Metrics instance).
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsByState   *prometheus.GaugeVec
	ConnectionsOpened    *prometheus.CounterVec
	ConnectionsDestroyed prometheus.Counter

	MessagesBroadcast *prometheus.CounterVec
	MessagesIngested  prometheus.Counter
	MessagesDuplicate prometheus.Counter
	MessagesDropped   *prometheus.CounterVec
	MessagesBad       prometheus.Counter

	SwitchboardRequests *prometheus.CounterVec
	SwitchboardLatency  prometheus.Histogram

	RudeSenderDrops prometheus.Counter

	BuildInfo *prometheus.GaugeVec
}

// NewMetrics creates a Metrics instance with every collector registered on
// a fresh registry. version identifies the running build on the info gauge.
func NewMetrics(version string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		ConnectionsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "meshnet_connections",
				Help: "Number of connections currently in each state.",
			},
			[]string{"state"},
		),
		ConnectionsOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshnet_connections_opened_total",
				Help: "Total connections created, by role.",
			},
			[]string{"role"},
		),
		ConnectionsDestroyed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meshnet_connections_destroyed_total",
				Help: "Total connections torn down.",
			},
		),

		MessagesBroadcast: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshnet_messages_broadcast_total",
				Help: "Total messages originated by this node, by app_id.",
			},
			[]string{"app_id"},
		),
		MessagesIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meshnet_messages_ingested_total",
				Help: "Total inbound messages accepted for processing.",
			},
		),
		MessagesDuplicate: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meshnet_messages_duplicate_total",
				Help: "Total inbound messages dropped as already-seen.",
			},
		),
		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshnet_messages_dropped_total",
				Help: "Total inbound messages dropped, by reason.",
			},
			[]string{"reason"},
		),
		MessagesBad: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meshnet_messages_bad_total",
				Help: "Total inbound messages that failed verification.",
			},
		),

		SwitchboardRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meshnet_switchboard_requests_total",
				Help: "Total switchboard polls, by outcome.",
			},
			[]string{"outcome"},
		),
		SwitchboardLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meshnet_switchboard_latency_seconds",
				Help:    "Latency of switchboard poll round trips.",
				Buckets: prometheus.DefBuckets,
			},
		),

		RudeSenderDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meshnet_rude_sender_drops_total",
				Help: "Total connections or messages refused due to a rude sender.",
			},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "meshnet_info",
				Help: "Build information for the running meshnet node.",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		m.ConnectionsByState,
		m.ConnectionsOpened,
		m.ConnectionsDestroyed,
		m.MessagesBroadcast,
		m.MessagesIngested,
		m.MessagesDuplicate,
		m.MessagesDropped,
		m.MessagesBad,
		m.SwitchboardRequests,
		m.SwitchboardLatency,
		m.RudeSenderDrops,
		m.BuildInfo,
	)
	m.BuildInfo.WithLabelValues(version).Set(1)
	return m
}

// Handler returns an http.Handler serving this Metrics' Prometheus exposition.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// observeConnectionStates recomputes the connections-by-state gauge from a
// fresh snapshot. Called periodically by Node rather than incrementally, so
// it can never drift from ConnectionManager's authoritative state.
func (m *Metrics) observeConnectionStates(snapshots []ConnectionSnapshot) {
	counts := map[State]int{StatePending: 0, StateOpen: 0, StateConnected: 0, StateDead: 0}
	for _, s := range snapshots {
		counts[s.State]++
	}
	m.ConnectionsByState.WithLabelValues("pending").Set(float64(counts[StatePending]))
	m.ConnectionsByState.WithLabelValues("open").Set(float64(counts[StateOpen]))
	m.ConnectionsByState.WithLabelValues("connected").Set(float64(counts[StateConnected]))
	m.ConnectionsByState.WithLabelValues("dead").Set(float64(counts[StateDead]))
}
