// Package metrics wraps a prometheus.Registerer with the counters/gauges/
// histograms the storage core emits, matching the teacher's metrics package
// shape (a thin struct around a Registerer plus a Register helper).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the core registers.
type Metrics struct {
	Registry prometheus.Registerer

	PaxosRounds      *prometheus.CounterVec
	PaxosConflicts   prometheus.Counter
	PaxosRoundLength prometheus.Histogram

	DockConnections   prometheus.Gauge
	DockReconnects    prometheus.Counter
	DockRPCLatency    *prometheus.HistogramVec

	SiloOps      *prometheus.CounterVec
	SiloUsedBytes prometheus.Gauge

	UnderReplicated prometheus.Counter
}

// New creates and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registry: reg,
		PaxosRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_paxos_rounds_total",
			Help: "Paxos rounds driven by this node, by phase outcome.",
		}, []string{"phase", "outcome"}),
		PaxosConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_paxos_conflicts_total",
			Help: "Conflicts surfaced to a resolver.",
		}),
		PaxosRoundLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "storage_paxos_round_seconds",
			Help: "Wall-clock duration of a full propose/accept/confirm round.",
		}),
		DockConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storage_dock_connections",
			Help: "Active pooled peer connections.",
		}),
		DockReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_dock_reconnects_total",
			Help: "Reconnect attempts after ConnectionClosed.",
		}),
		DockRPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "storage_dock_rpc_seconds",
			Help: "RPC round-trip latency by name.",
		}, []string{"rpc"}),
		SiloOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_silo_ops_total",
			Help: "Silo operations by kind and result.",
		}, []string{"op", "result"}),
		SiloUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storage_silo_used_bytes",
			Help: "Bytes currently used by the local silo.",
		}),
		UnderReplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_under_replicated_total",
			Help: "under_replicated signals emitted (§4.5.7).",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.PaxosRounds, m.PaxosConflicts, m.PaxosRoundLength,
		m.DockConnections, m.DockReconnects, m.DockRPCLatency,
		m.SiloOps, m.SiloUsedBytes, m.UnderReplicated,
	} {
		_ = m.Register(c)
	}
	return m
}

// Register registers a single collector, ignoring AlreadyRegisteredError so
// tests may call New against a shared registry repeatedly.
func (m *Metrics) Register(c prometheus.Collector) error {
	if err := m.Registry.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// Noop returns a Metrics backed by a fresh, unshared registry — for tests
// that don't care about the values but need a non-nil Metrics.
func Noop() *Metrics { return New(prometheus.NewRegistry()) }
