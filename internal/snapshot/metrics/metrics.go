package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for snapshot capture and comparison.
type Metrics struct {
	Captures          *prometheus.CounterVec
	CaptureDuration   prometheus.Histogram
	InconsistentReads prometheus.Counter
	Comparisons       *prometheus.CounterVec
	TriggerMessages   *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Captures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_snapshot_captures_total",
			Help: "Snapshots captured by trigger",
		}, []string{"trigger"}),
		CaptureDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ownergraph_snapshot_capture_duration_seconds",
			Help:    "Time spent capturing one snapshot, retries included",
			Buckets: prometheus.DefBuckets,
		}),
		InconsistentReads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ownergraph_snapshot_inconsistent_reads_total",
			Help: "Capture attempts discarded because a store changed during the read",
		}),
		Comparisons: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_snapshot_comparisons_total",
			Help: "Snapshot comparisons by outcome (changed, unchanged)",
		}, []string{"outcome"}),
		TriggerMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_snapshot_trigger_messages_total",
			Help: "Snapshot trigger messages by outcome (captured, invalid, failed)",
		}, []string{"outcome"}),
	}
}

// ObserveCapture is safe on a nil receiver, as are the other helpers.
func (m *Metrics) ObserveCapture(trigger string, d time.Duration) {
	if m == nil {
		return
	}
	m.Captures.WithLabelValues(trigger).Inc()
	m.CaptureDuration.Observe(d.Seconds())
}

func (m *Metrics) IncInconsistentRead() {
	if m == nil {
		return
	}
	m.InconsistentReads.Inc()
}

func (m *Metrics) IncComparison(changed bool) {
	if m == nil {
		return
	}
	outcome := "unchanged"
	if changed {
		outcome = "changed"
	}
	m.Comparisons.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTriggerMessage(outcome string) {
	if m == nil {
		return
	}
	m.TriggerMessages.WithLabelValues(outcome).Inc()
}
