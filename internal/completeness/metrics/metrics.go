package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ownergraph/internal/completeness/models"
)

// Metrics provides observability for completeness checks.
type Metrics struct {
	Checks *prometheus.CounterVec
	Issues *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_completeness_checks_total",
			Help: "Completeness checks by verdict (complete, incomplete)",
		}, []string{"verdict"}),
		Issues: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_completeness_issues_total",
			Help: "Completeness issues raised by code",
		}, []string{"code"}),
	}
}

// ObserveReport records a finished check. Safe on a nil receiver.
func (m *Metrics) ObserveReport(r *models.Report) {
	if m == nil {
		return
	}
	verdict := "incomplete"
	if r.IsComplete {
		verdict = "complete"
	}
	m.Checks.WithLabelValues(verdict).Inc()
	for _, issue := range r.Issues {
		m.Issues.WithLabelValues(string(issue.Code)).Inc()
	}
}
