// Package service resolves ownership chains from a subject up to the natural
// persons who ultimately hold it.
//
// The traversal is an explicit-stack depth-first walk. Cycle detection is per
// path: a node already on the current path abandons that path only, so
// diamonds reached through different parents are still explored. Depth, a
// node-visit budget and a deadline bound the worst case; exhausting the budget
// or the deadline yields a result marked Partial instead of an error.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	graphmodels "ownergraph/internal/graph/models"
	"ownergraph/internal/resolver/cache"
	resolvermetrics "ownergraph/internal/resolver/metrics"
	"ownergraph/internal/resolver/models"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/requestcontext"
)

// Upper bounds accepted from callers overriding the policy.
const (
	MaxDepthLimit  = 64
	MaxVisitsLimit = 1_000_000
)

// Graph is the read side of the ownership graph the traversal needs.
type Graph interface {
	EdgesInto(ctx context.Context, owned id.EntityID, asOf time.Time) ([]*graphmodels.OwnershipEdge, error)
	FindEntities(ctx context.Context, ids []id.EntityID) (map[id.EntityID]*graphmodels.Entity, error)
	Revision(ctx context.Context) (int64, error)
}

type Cache interface {
	Get(ctx context.Context, key cache.Key) (*models.Result, bool, error)
	Set(ctx context.Context, key cache.Key, result *models.Result) error
}

// Policy carries the default traversal bounds.
type Policy struct {
	MaxDepth    int
	MaxVisits   int
	Timeout     time.Duration
	Concurrency int
}

// Options override the policy for one call. Zero values fall back to the
// policy; a nil AsOf means the request time and bypasses the cache.
type Options struct {
	AsOf      *time.Time
	MaxDepth  int
	MaxVisits int
}

// Resolver runs chain resolution.
type Resolver struct {
	graph   Graph
	cache   Cache
	policy  Policy
	logger  *slog.Logger
	metrics *resolvermetrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func WithMetrics(m *resolvermetrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithCache enables result caching for explicit as-of resolutions.
func WithCache(c Cache) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

func New(graph Graph, policy Policy, opts ...Option) *Resolver {
	if policy.MaxDepth <= 0 {
		policy.MaxDepth = 10
	}
	if policy.MaxVisits <= 0 {
		policy.MaxVisits = 10_000
	}
	if policy.Concurrency <= 0 {
		policy.Concurrency = 4
	}
	r := &Resolver{
		graph:  graph,
		policy: policy,
		tracer: otel.Tracer("ownergraph/resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

func (r *Resolver) normalize(ctx context.Context, opts Options) (asOf time.Time, explicit bool, depth, visits int, err error) {
	depth, visits = r.policy.MaxDepth, r.policy.MaxVisits
	if opts.MaxDepth != 0 {
		if opts.MaxDepth < 1 || opts.MaxDepth > MaxDepthLimit {
			return time.Time{}, false, 0, 0, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("max_depth must be between 1 and %d", MaxDepthLimit))
		}
		depth = opts.MaxDepth
	}
	if opts.MaxVisits != 0 {
		if opts.MaxVisits < 1 || opts.MaxVisits > MaxVisitsLimit {
			return time.Time{}, false, 0, 0, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("max_visits must be between 1 and %d", MaxVisitsLimit))
		}
		visits = opts.MaxVisits
	}
	if opts.AsOf != nil {
		return opts.AsOf.UTC(), true, depth, visits, nil
	}
	return requestcontext.Now(ctx).UTC(), false, depth, visits, nil
}

// Resolve walks the ownership graph upward from subject.
func (r *Resolver) Resolve(ctx context.Context, subject id.EntityID, opts Options) (*models.Result, error) {
	if subject.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	asOf, explicit, depth, visits, err := r.normalize(ctx, opts)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "resolver.Resolve",
		trace.WithAttributes(
			attribute.String("subject_id", subject.String()),
			attribute.Int("max_depth", depth),
			attribute.Int("max_visits", visits),
		),
	)
	defer span.End()
	start := time.Now()

	rev, err := r.graph.Revision(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read revision failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read graph revision")
	}

	key := cache.Key{SubjectID: subject, Revision: rev, AsOf: asOf, MaxDepth: depth, MaxVisits: visits}
	if cached, ok := r.lookup(ctx, explicit, key); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}

	result, err := r.walk(ctx, subject, asOf, depth, visits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "traversal failed")
		return nil, err
	}
	result.GraphRevision = rev

	r.metrics.ObserveResolution(result.Partial, result.NodesVisited, start)
	for _, w := range result.Warnings {
		r.metrics.IncWarning(string(w.Code))
		r.logger.WarnContext(ctx, "traversal warning",
			"subject_id", subject.String(),
			"code", string(w.Code),
			"message", w.Message,
		)
	}
	span.SetAttributes(
		attribute.Int("chains", len(result.Chains)),
		attribute.Int("dead_ends", len(result.DeadEnds)),
		attribute.Int("nodes_visited", result.NodesVisited),
		attribute.Bool("partial", result.Partial),
	)

	if explicit && !result.Partial {
		r.store(ctx, key, result)
	}
	return result, nil
}

func (r *Resolver) lookup(ctx context.Context, explicit bool, key cache.Key) (*models.Result, bool) {
	if r.cache == nil || !explicit {
		return nil, false
	}
	cached, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.metrics.IncCache("error")
		r.logger.WarnContext(ctx, "chain cache read failed", "subject_id", key.SubjectID.String(), "error", err)
		return nil, false
	}
	if !ok {
		r.metrics.IncCache("miss")
		return nil, false
	}
	r.metrics.IncCache("hit")
	return cached, true
}

// store caches result only if the graph did not move during the walk.
func (r *Resolver) store(ctx context.Context, key cache.Key, result *models.Result) {
	if r.cache == nil {
		return
	}
	after, err := r.graph.Revision(ctx)
	if err != nil || after != key.Revision {
		return
	}
	if err := r.cache.Set(ctx, key, result); err != nil {
		r.logger.WarnContext(ctx, "chain cache write failed", "subject_id", key.SubjectID.String(), "error", err)
	}
}

type frame struct {
	node id.EntityID
	path []id.EntityID
	pcts []float64
}

func (f frame) extend(owner id.EntityID, pct float64) frame {
	path := make([]id.EntityID, len(f.path), len(f.path)+1)
	copy(path, f.path)
	pcts := make([]float64, len(f.pcts), len(f.pcts)+1)
	copy(pcts, f.pcts)
	return frame{node: owner, path: append(path, owner), pcts: append(pcts, pct)}
}

func (f frame) onPath(node id.EntityID) bool {
	for _, n := range f.path {
		if n == node {
			return true
		}
	}
	return false
}

func (r *Resolver) walk(ctx context.Context, subject id.EntityID, asOf time.Time, maxDepth, maxVisits int) (*models.Result, error) {
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}

	result := &models.Result{
		SubjectID: subject,
		AsOf:      asOf,
		MaxDepth:  maxDepth,
		MaxVisits: maxVisits,
		Chains:    []models.Chain{},
		Truncated: []models.Chain{},
		DeadEnds:  []models.Chain{},
		Warnings:  []models.Warning{},
		Visited:   []id.EntityID{},
	}
	kinds := map[id.EntityID]id.EntityKind{}
	expanded := map[id.EntityID]bool{}

	stack := []frame{{node: subject, path: []id.EntityID{subject}}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			r.markPartial(result, "deadline reached before the search finished")
			break
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if result.NodesVisited >= maxVisits {
			r.markPartial(result, fmt.Sprintf("node-visit budget of %d exhausted", maxVisits))
			break
		}
		result.NodesVisited++

		if f.node != subject && kinds[f.node].IsNaturalPerson() {
			result.Chains = append(result.Chains, models.NewChain(f.path, f.pcts, true))
			continue
		}

		edges, err := r.graph.EdgesInto(ctx, f.node, asOf)
		if err != nil {
			if ctx.Err() != nil {
				r.markPartial(result, "deadline reached before the search finished")
				break
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load owners").
				WithDetail("entity_id", f.node.String())
		}
		if !expanded[f.node] {
			expanded[f.node] = true
			result.Visited = append(result.Visited, f.node)
		}

		if len(edges) == 0 {
			if f.node != subject {
				result.DeadEnds = append(result.DeadEnds, models.NewChain(f.path, f.pcts, false))
			}
			continue
		}
		if len(f.pcts) >= maxDepth {
			result.Truncated = append(result.Truncated, models.NewChain(f.path, f.pcts, false))
			result.Warnings = append(result.Warnings, models.Warning{
				Code:    models.WarningDepthExceeded,
				Message: fmt.Sprintf("max depth %d reached at %s with owners still recorded", maxDepth, f.node),
				Path:    f.path,
			})
			continue
		}

		if err := r.loadKinds(ctx, edges, kinds); err != nil {
			if ctx.Err() != nil {
				r.markPartial(result, "deadline reached before the search finished")
				break
			}
			return nil, err
		}

		// Edges arrive sorted by owner id; pushing in reverse pops them in order.
		for i := len(edges) - 1; i >= 0; i-- {
			e := edges[i]
			owner := e.Value.OwnerID
			if f.onPath(owner) {
				cycle := append(append([]id.EntityID{}, f.path...), owner)
				result.Warnings = append(result.Warnings, models.Warning{
					Code:    models.WarningCycleDetected,
					Message: fmt.Sprintf("cycle through %s abandoned", owner),
					Path:    cycle,
				})
				continue
			}
			stack = append(stack, f.extend(owner, e.Value.Percentage))
		}
	}
	return result, nil
}

// loadKinds fetches entity kinds for owners not seen yet. Unknown entities
// stay absent and therefore count as non-persons.
func (r *Resolver) loadKinds(ctx context.Context, edges []*graphmodels.OwnershipEdge, kinds map[id.EntityID]id.EntityKind) error {
	var missing []id.EntityID
	seen := map[id.EntityID]bool{}
	for _, e := range edges {
		owner := e.Value.OwnerID
		if _, ok := kinds[owner]; ok || seen[owner] {
			continue
		}
		seen[owner] = true
		missing = append(missing, owner)
	}
	if len(missing) == 0 {
		return nil
	}
	entities, err := r.graph.FindEntities(ctx, missing)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load entities")
	}
	for _, owner := range missing {
		if e, ok := entities[owner]; ok {
			kinds[owner] = e.Kind
		} else {
			kinds[owner] = ""
		}
	}
	return nil
}

func (r *Resolver) markPartial(result *models.Result, msg string) {
	result.Partial = true
	result.Warnings = append(result.Warnings, models.Warning{
		Code:    models.WarningBudgetExhausted,
		Message: msg,
	})
}

// ResolveMany resolves subjects concurrently, bounded by the policy's
// concurrency. The first hard error cancels the rest.
func (r *Resolver) ResolveMany(ctx context.Context, subjects []id.EntityID, opts Options) (map[id.EntityID]*models.Result, error) {
	out := make(map[id.EntityID]*models.Result, len(subjects))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.policy.Concurrency)
	for _, subject := range subjects {
		g.Go(func() error {
			result, err := r.Resolve(gctx, subject, opts)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", subject, err)
			}
			mu.Lock()
			out[subject] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
