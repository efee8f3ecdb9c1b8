// Package ops provides a best-effort audit tracker for read-side events.
//
// Tracker never fails the caller. Events are sampled, and a circuit breaker
// stops persistence attempts while the store is unhealthy.
package ops

import (
	"context"
	"log/slog"

	audit "ownergraph/pkg/platform/audit"
	"ownergraph/pkg/requestcontext"
)

// Tracker records operational audit events.
type Tracker struct {
	store   audit.Store
	sampler *Sampler
	breaker *CircuitBreaker
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Tracker.
type Option func(*Tracker)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithSampler(s *Sampler) Option {
	return func(t *Tracker) { t.sampler = s }
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(t *Tracker) { t.breaker = cb }
}

// New creates a tracker that keeps every event and opens its breaker after
// five consecutive failures, unless overridden by options.
func New(store audit.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:   store,
		sampler: NewSampler(1.0),
		breaker: NewCircuitBreaker(5, 0),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track persists the event if sampling and the breaker allow it.
func (t *Tracker) Track(ctx context.Context, event audit.OpsEvent) {
	if !t.sampler.ShouldSample(event.Action) {
		t.metrics.IncSampled()
		return
	}
	if !t.breaker.Allow() {
		t.metrics.IncCircuitBreakerDropped()
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if err := t.store.Append(ctx, event.ToEvent()); err != nil {
		t.breaker.RecordFailure()
		t.metrics.IncPersistFailures()
		t.metrics.SetCircuitBreakerState(t.breaker.IsOpen())
		if t.logger != nil {
			t.logger.WarnContext(ctx, "ops audit dropped", "action", event.Action, "error", err)
		}
		return
	}
	t.breaker.RecordSuccess()
	t.metrics.SetCircuitBreakerState(false)
	t.metrics.IncTracked()
}
