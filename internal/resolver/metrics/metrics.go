package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for chain resolution.
type Metrics struct {
	Resolutions     *prometheus.CounterVec
	ResolveDuration prometheus.Histogram
	NodesVisited    prometheus.Histogram
	Warnings        *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_resolver_resolutions_total",
			Help: "Chain resolutions by outcome (complete, partial)",
		}, []string{"outcome"}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ownergraph_resolver_duration_seconds",
			Help:    "Duration of chain resolution including cache lookups",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		NodesVisited: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ownergraph_resolver_nodes_visited",
			Help:    "Nodes visited per resolution",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		}),
		Warnings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_resolver_warnings_total",
			Help: "Recoverable traversal warnings by code",
		}, []string{"code"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_resolver_cache_lookups_total",
			Help: "Chain cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
	}
}

// ObserveResolution records one finished traversal. Safe on a nil receiver.
func (m *Metrics) ObserveResolution(partial bool, visited int, start time.Time) {
	if m == nil {
		return
	}
	outcome := "complete"
	if partial {
		outcome = "partial"
	}
	m.Resolutions.WithLabelValues(outcome).Inc()
	m.ResolveDuration.Observe(time.Since(start).Seconds())
	m.NodesVisited.Observe(float64(visited))
}

func (m *Metrics) IncWarning(code string) {
	if m == nil {
		return
	}
	m.Warnings.WithLabelValues(code).Inc()
}

func (m *Metrics) IncCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
