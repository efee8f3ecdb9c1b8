package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the UBO registry.
type Metrics struct {
	Registrations *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	Overrides     prometheus.Counter
	Endings       *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_ubo_registrations_total",
			Help: "UBO candidates registered by discovery method",
		}, []string{"method"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_ubo_transitions_total",
			Help: "Verification state changes by source and target status",
		}, []string{"from", "to"}),
		Overrides: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ownergraph_ubo_proof_overrides_total",
			Help: "Candidates moved to PROVEN without sufficient verified evidence",
		}),
		Endings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ownergraph_ubo_endings_total",
			Help: "Candidates superseded or closed",
		}, []string{"kind"}),
	}
}

// IncRegistration is safe on a nil receiver, as are the other helpers.
func (m *Metrics) IncRegistration(method string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(method).Inc()
}

func (m *Metrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncOverride() {
	if m == nil {
		return
	}
	m.Overrides.Inc()
}

func (m *Metrics) IncEnding(kind string) {
	if m == nil {
		return
	}
	m.Endings.WithLabelValues(kind).Inc()
}
