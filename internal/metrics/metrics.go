// Package metrics exposes Prometheus counters for mesh splitting runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "meshsplit"

	reasonLabel = "reason"
)

// Metrics groups the counters updated by the splitter and scene integrator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	meshesProcessed  prometheus.Counter
	meshesIneligible *prometheus.CounterVec
	meshesSplit      prometheus.Counter
	piecesEmitted    prometheus.Counter
	splitIterations  prometheus.Histogram
	wireframeDropped prometheus.Counter
	cacheHits        prometheus.Counter
}

// New registers the split metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		meshesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meshes_processed_total",
			Help:      "The number of distinct meshes handed to the splitter.",
		}),
		meshesIneligible: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meshes_ineligible_total",
			Help:      "The number of meshes passed through unchanged because they cannot be split.",
		}, []string{reasonLabel}),
		meshesSplit: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meshes_split_total",
			Help:      "The number of meshes that exceeded the index bound.",
		}),
		piecesEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pieces_emitted_total",
			Help:      "The number of output meshes produced.",
		}),
		splitIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "split_iterations",
			Help:      "Partitioning iterations per split mesh.",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),
		wireframeDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wireframe_lines_dropped_total",
			Help:      "Wireframe lines that could not be placed with their solid geometry.",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mesh_cache_hits_total",
			Help:      "Mesh references resolved from an already split identity.",
		}),
	}
}

// MeshProcessed records a mesh entering the splitter.
func (m *Metrics) MeshProcessed() {
	if m == nil {
		return
	}
	m.meshesProcessed.Inc()
}

// MeshIneligible records a mesh rejected by validation.
func (m *Metrics) MeshIneligible(reason string) {
	if m == nil {
		return
	}
	m.meshesIneligible.WithLabelValues(reason).Inc()
}

// MeshSplit records a mesh that needed partitioning and the iterations it took.
func (m *Metrics) MeshSplit(iterations int) {
	if m == nil {
		return
	}
	m.meshesSplit.Inc()
	m.splitIterations.Observe(float64(iterations))
}

// PiecesEmitted records output meshes.
func (m *Metrics) PiecesEmitted(n int) {
	if m == nil {
		return
	}
	m.piecesEmitted.Add(float64(n))
}

// WireframeDropped records wireframe lines dropped from the output.
func (m *Metrics) WireframeDropped(lines int) {
	if m == nil || lines == 0 {
		return
	}
	m.wireframeDropped.Add(float64(lines))
}

// CacheHit records a mesh reference served from the identity cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// WriteFile writes every metric gathered by g in the Prometheus text format.
func WriteFile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
