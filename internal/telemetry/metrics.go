package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter and gauge a peer exposes on /metrics. It
// is safe for concurrent use; every field is a prometheus collector,
// which is inherently concurrency-safe.
type Metrics struct {
	RPCRequestsTotal   *prometheus.CounterVec
	RPCFailuresTotal   *prometheus.CounterVec
	StorageForwardsTotal *prometheus.CounterVec
	RingSize           prometheus.Gauge
	MaintenanceRuns    *prometheus.CounterVec
}

// NewMetrics registers every collector against reg and returns the
// bundle. Pass prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RPCRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chordring_rpc_requests_total",
			Help: "Inbound RPC requests handled by this peer, by route.",
		}, []string{"route"}),
		RPCFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chordring_rpc_failures_total",
			Help: "Outbound RPC calls that failed or timed out, by method.",
		}, []string{"method"}),
		StorageForwardsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chordring_storage_forwards_total",
			Help: "PUT/GET requests forwarded one hop to the owning peer, by verb.",
		}, []string{"verb"}),
		RingSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chordring_known_peers",
			Help: "Number of distinct peer addresses in this node's finger table and predecessor.",
		}),
		MaintenanceRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chordring_maintenance_runs_total",
			Help: "Completed maintenance task ticks, by task.",
		}, []string{"task"}),
	}
}
