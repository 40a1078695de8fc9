// Package metrics exposes Prometheus instrumentation for the filesystem.
// Every recording method is nil-safe so components can run unmetered.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks filesystem-wide counters and latencies.
type Metrics struct {
	FilesStored       prometheus.Counter
	FilesRetrieved    prometheus.Counter
	BytesAssembled    prometheus.Counter
	AssemblyDuration  prometheus.Histogram
	PlacementFailures prometheus.Counter
	PermissionDenials prometheus.Counter
	ContractsSettled  prometheus.Counter
	EscrowDistributed prometheus.Counter
	EscrowRefunded    prometheus.Counter
	GrantsIssued      prometheus.Counter
	GrantsSwept       prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers filesystem metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		FilesStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfs_files_stored_total",
			Help: "Total files stored",
		}),
		FilesRetrieved: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfs_files_retrieved_total",
			Help: "Total files retrieved",
		}),
		BytesAssembled: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfs_bytes_assembled_total",
			Help: "Total bytes produced by chunk assembly",
		}),
		AssemblyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dfs_assembly_duration_seconds",
			Help:    "Chunk assembly latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		PlacementFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfs_placement_failures_total",
			Help: "Placement requests that found no qualifying replica set",
		}),
		PermissionDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfs_permission_denials_total",
			Help: "Access checks that were denied",
		}),
		ContractsSettled: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfs_contracts_settled_total",
			Help: "Storage contracts settled",
		}),
		EscrowDistributed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfs_escrow_distributed_total",
			Help: "Escrow tokens paid to storage nodes",
		}),
		EscrowRefunded: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfs_escrow_refunded_total",
			Help: "Escrow tokens refunded to clients",
		}),
		GrantsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfs_access_grants_issued_total",
			Help: "Temporary access grants issued",
		}),
		GrantsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfs_access_grants_swept_total",
			Help: "Expired access grants removed by the sweep",
		}),
		registry: registry,
	}
}

// Handler serves the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncFilesStored() {
	if m != nil {
		m.FilesStored.Inc()
	}
}

func (m *Metrics) IncFilesRetrieved() {
	if m != nil {
		m.FilesRetrieved.Inc()
	}
}

func (m *Metrics) AddBytesAssembled(n uint64) {
	if m != nil {
		m.BytesAssembled.Add(float64(n))
	}
}

func (m *Metrics) ObserveAssembly(seconds float64) {
	if m != nil {
		m.AssemblyDuration.Observe(seconds)
	}
}

func (m *Metrics) IncPlacementFailures() {
	if m != nil {
		m.PlacementFailures.Inc()
	}
}

func (m *Metrics) IncPermissionDenials() {
	if m != nil {
		m.PermissionDenials.Inc()
	}
}

func (m *Metrics) IncContractsSettled() {
	if m != nil {
		m.ContractsSettled.Inc()
	}
}

func (m *Metrics) AddEscrowDistributed(n uint64) {
	if m != nil {
		m.EscrowDistributed.Add(float64(n))
	}
}

func (m *Metrics) AddEscrowRefunded(n uint64) {
	if m != nil {
		m.EscrowRefunded.Add(float64(n))
	}
}

func (m *Metrics) IncGrantsIssued() {
	if m != nil {
		m.GrantsIssued.Inc()
	}
}

func (m *Metrics) AddGrantsSwept(n int) {
	if m != nil {
		m.GrantsSwept.Add(float64(n))
	}
}
