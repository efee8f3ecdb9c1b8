package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	completenessmetrics "ownergraph/internal/completeness/metrics"
	"ownergraph/internal/completeness/models"
	graphmodels "ownergraph/internal/graph/models"
	resolvermodels "ownergraph/internal/resolver/models"
	resolver "ownergraph/internal/resolver/service"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

// DefaultThreshold is the disclosure threshold in percent.
const DefaultThreshold = 25.0

type Resolver interface {
	Resolve(ctx context.Context, subject id.EntityID, opts resolver.Options) (*resolvermodels.Result, error)
}

// History exposes every version of the edges into an entity.
type History interface {
	EdgeHistoryInto(ctx context.Context, owned id.EntityID) ([]*graphmodels.OwnershipEdge, error)
}

// CheckOptions carries per-call overrides. A zero Threshold uses the
// checker's default.
type CheckOptions struct {
	Threshold float64
	AsOf      *time.Time
}

type Checker struct {
	resolver  Resolver
	history   History
	threshold float64
	logger    *slog.Logger
	metrics   *completenessmetrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Checker)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

func WithMetrics(m *completenessmetrics.Metrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// WithThreshold sets the default disclosure threshold.
func WithThreshold(threshold float64) Option {
	return func(c *Checker) {
		c.threshold = threshold
	}
}

func New(resolver Resolver, history History, opts ...Option) *Checker {
	c := &Checker{
		resolver:  resolver,
		history:   history,
		threshold: DefaultThreshold,
		tracer:    otel.Tracer("ownergraph/completeness"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Check resolves the subject's chains and reports how much of its ownership
// they account for.
func (c *Checker) Check(ctx context.Context, subject id.EntityID, opts CheckOptions) (*models.Report, error) {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = c.threshold
	}
	if threshold <= 0 || threshold > 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "threshold must be in (0, 100]")
	}

	ctx, span := c.tracer.Start(ctx, "completeness.Check",
		trace.WithAttributes(attribute.String("subject_id", subject.String())))
	defer span.End()

	result, err := c.resolver.Resolve(ctx, subject, resolver.Options{AsOf: opts.AsOf})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return nil, err
	}
	report, err := c.assess(ctx, result, threshold)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "overlap scan failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("is_complete", report.IsComplete),
		attribute.Float64("total_identified", report.TotalIdentified),
		attribute.Int("issues", len(report.Issues)),
	)
	c.logger.DebugContext(ctx, "completeness checked",
		"subject_id", subject.String(),
		"total_identified", report.TotalIdentified,
		"is_complete", report.IsComplete,
		"issues", len(report.Issues),
	)
	return report, nil
}

// Assess builds the report for a result the caller already resolved, so the
// report and the chains it describes come from the same traversal.
func (c *Checker) Assess(ctx context.Context, result *resolvermodels.Result, threshold float64) (*models.Report, error) {
	if threshold == 0 {
		threshold = c.threshold
	}
	if threshold <= 0 || threshold > 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "threshold must be in (0, 100]")
	}
	return c.assess(ctx, result, threshold)
}

func (c *Checker) assess(ctx context.Context, result *resolvermodels.Result, threshold float64) (*models.Report, error) {
	overlaps, err := c.overlaps(ctx, result.Visited)
	if err != nil {
		return nil, err
	}
	report := models.NewReport(result, threshold, overlaps)
	c.metrics.ObserveReport(report)
	return report, nil
}

// overlaps scans the full edge history of every node the traversal expanded.
func (c *Checker) overlaps(ctx context.Context, nodes []id.EntityID) ([]graphmodels.EdgeOverlap, error) {
	var out []graphmodels.EdgeOverlap
	for _, node := range nodes {
		history, err := c.history.EdgeHistoryInto(ctx, node)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load edge history").
				WithDetail("entity_id", node.String())
		}
		out = append(out, graphmodels.FindOverlaps(history)...)
	}
	return out, nil
}
