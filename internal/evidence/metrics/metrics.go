package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the evidence ledger.
type Metrics struct {
	Changes     *prometheus.CounterVec
	Assessments *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Changes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_evidence_changes_total",
			Help: "Evidence writes by action (attach, verify, reject, expire, resubmit)",
		}, []string{"action"}),
		Assessments: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_evidence_assessments_total",
			Help: "Provability assessments by outcome (provable, insufficient)",
		}, []string{"outcome"}),
	}
}

// IncChange is safe on a nil receiver.
func (m *Metrics) IncChange(action string) {
	if m == nil {
		return
	}
	m.Changes.WithLabelValues(action).Inc()
}

func (m *Metrics) IncAssessment(canProve bool) {
	if m == nil {
		return
	}
	outcome := "insufficient"
	if canProve {
		outcome = "provable"
	}
	m.Assessments.WithLabelValues(outcome).Inc()
}
