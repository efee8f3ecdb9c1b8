package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ownership graph.
type Metrics struct {
	GraphWrites       *prometheus.CounterVec
	WriteConflicts    prometheus.Counter
	GraphReadDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		GraphWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_graph_writes_total",
			Help: "Total graph writes by operation",
		}, []string{"operation"}),
		WriteConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ownergraph_graph_open_version_conflicts_total",
			Help: "Writes rejected because an open version already exists for the key",
		}),
		GraphReadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ownergraph_graph_read_duration_seconds",
			Help:    "Duration of adjacency reads (edges into / out of an entity)",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// IncWrite records a committed graph write. Safe on a nil receiver.
func (m *Metrics) IncWrite(operation string) {
	if m == nil {
		return
	}
	m.GraphWrites.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.WriteConflicts.Inc()
}

// ObserveRead records an adjacency read. Call with time.Now() at the start.
func (m *Metrics) ObserveRead(start time.Time) {
	if m == nil {
		return
	}
	m.GraphReadDuration.Observe(time.Since(start).Seconds())
}
