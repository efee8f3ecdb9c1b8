// Package service captures and compares snapshots of a subject's beneficial
// ownership.
//
// Capture reads the graph, the registry and the evidence ledger without a
// shared lock. It records the three store revisions before and after
// gathering; if any moved, the attempt is discarded and retried. After the
// last attempt the capture fails with a retryable InconsistentRead error and
// nothing is stored.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	completenessmodels "ownergraph/internal/completeness/models"
	evidencemodels "ownergraph/internal/evidence/models"
	graphmodels "ownergraph/internal/graph/models"
	resolvermodels "ownergraph/internal/resolver/models"
	resolver "ownergraph/internal/resolver/service"
	snapshotmetrics "ownergraph/internal/snapshot/metrics"
	"ownergraph/internal/snapshot/models"
	ubomodels "ownergraph/internal/ubo/models"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/sentinel"
	"ownergraph/pkg/platform/shardlock"
	"ownergraph/pkg/requestcontext"
)

// DefaultRetries is the number of capture attempts before giving up.
const DefaultRetries = 3

type Store interface {
	Insert(ctx context.Context, snap *models.Snapshot) error
	Find(ctx context.Context, snapshotID id.SnapshotID) (*models.Snapshot, error)
	ListBySubject(ctx context.Context, subject id.EntityID) ([]models.Summary, error)
}

type Graph interface {
	ControlsOver(ctx context.Context, entityID id.EntityID, asOf time.Time) ([]*graphmodels.ControlRelationship, error)
	Revision(ctx context.Context) (int64, error)
}

type Registry interface {
	List(ctx context.Context, subject id.EntityID, includeInactive bool) ([]*ubomodels.Candidate, error)
	Revision(ctx context.Context) (int64, error)
}

type Evidence interface {
	CanProve(ctx context.Context, uboID id.UBOID) (*evidencemodels.Provability, error)
	Revision(ctx context.Context) (int64, error)
}

type Resolver interface {
	Resolve(ctx context.Context, subject id.EntityID, opts resolver.Options) (*resolvermodels.Result, error)
}

// Assessor builds a completeness report from an already resolved result.
type Assessor interface {
	Assess(ctx context.Context, result *resolvermodels.Result, threshold float64) (*completenessmodels.Report, error)
}

// Sources are the stores a capture reads.
type Sources struct {
	Graph    Graph
	Registry Registry
	Evidence Evidence
	Resolver Resolver
	Assessor Assessor
}

type TxRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// OpsTracker records best-effort read-side events.
type OpsTracker interface {
	Track(ctx context.Context, event audit.OpsEvent)
}

type CaptureCommand struct {
	SubjectID id.EntityID
	Reason    string
	Trigger   models.Trigger
}

type Service struct {
	store     Store
	src       Sources
	retries   int
	threshold float64
	tx        TxRunner
	audit     AuditPublisher
	ops       OpsTracker
	logger    *slog.Logger
	metrics   *snapshotmetrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *snapshotmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithOpsTracker(tracker OpsTracker) Option {
	return func(s *Service) {
		s.ops = tracker
	}
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithRetries sets the number of capture attempts.
func WithRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retries = n
		}
	}
}

// WithThreshold sets the threshold of the frozen completeness report. Zero
// keeps the assessor's default.
func WithThreshold(threshold float64) Option {
	return func(s *Service) {
		s.threshold = threshold
	}
}

func New(store Store, src Sources, opts ...Option) *Service {
	s := &Service{
		store:   store,
		src:     src,
		retries: DefaultRetries,
		tracer:  otel.Tracer("ownergraph/snapshot"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.tx == nil {
		s.tx = shardlock.New()
	}
	return s
}

// Capture freezes the subject's active candidates, chains, control
// relationships and completeness report as of the request time.
func (s *Service) Capture(ctx context.Context, cmd CaptureCommand) (*models.Snapshot, error) {
	if cmd.SubjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	cmd.Reason = strings.TrimSpace(cmd.Reason)
	if cmd.Reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "snapshot reason is required")
	}
	if cmd.Trigger == "" {
		cmd.Trigger = models.TriggerManual
	}
	if !cmd.Trigger.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown snapshot trigger")
	}

	ctx, span := s.tracer.Start(ctx, "snapshot.Capture", trace.WithAttributes(
		attribute.String("subject.id", cmd.SubjectID.String()),
		attribute.String("snapshot.trigger", string(cmd.Trigger)),
	))
	defer span.End()
	started := time.Now()

	snap, err := s.capture(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.metrics.ObserveCapture(string(cmd.Trigger), time.Since(started))
	span.SetAttributes(attribute.String("snapshot.id", snap.ID.String()))
	s.logger.InfoContext(ctx, "snapshot captured",
		"snapshot_id", snap.ID.String(),
		"subject_id", snap.SubjectID.String(),
		"trigger", string(snap.Trigger),
		"ubo_count", len(snap.Payload.UBOs),
	)
	return snap, nil
}

func (s *Service) capture(ctx context.Context, cmd CaptureCommand) (*models.Snapshot, error) {
	at := requestcontext.Now(ctx)
	for attempt := 1; attempt <= s.retries; attempt++ {
		before, err := s.revisions(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := s.gather(ctx, cmd.SubjectID, at)
		if err != nil {
			return nil, err
		}
		after, err := s.revisions(ctx)
		if err != nil {
			return nil, err
		}
		if before == after {
			return s.persist(ctx, cmd, after, payload, at)
		}
		s.metrics.IncInconsistentRead()
		s.logger.WarnContext(ctx, "stores changed during snapshot capture",
			"subject_id", cmd.SubjectID.String(),
			"attempt", attempt,
		)
	}
	return nil, models.InconsistentRead(cmd.SubjectID, s.retries)
}

func (s *Service) persist(ctx context.Context, cmd CaptureCommand, revs models.Revisions, payload models.Payload, at time.Time) (*models.Snapshot, error) {
	snap, err := models.NewSnapshot(id.NewSnapshotID(), cmd.Reason, cmd.Trigger,
		requestcontext.ActorID(ctx).String(), revs, payload, at)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal snapshot")
	}
	err = s.tx.RunInTx(ctx, "snapshot:"+cmd.SubjectID.String(), func(txCtx context.Context) error {
		if err := s.store.Insert(txCtx, snap); err != nil {
			return wrapStoreErr(err, "failed to store snapshot")
		}
		return s.emit(txCtx, snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Service) revisions(ctx context.Context) (models.Revisions, error) {
	var (
		revs models.Revisions
		err  error
	)
	if revs.Graph, err = s.src.Graph.Revision(ctx); err != nil {
		return revs, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read graph revision")
	}
	if revs.Registry, err = s.src.Registry.Revision(ctx); err != nil {
		return revs, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registry revision")
	}
	if revs.Evidence, err = s.src.Evidence.Revision(ctx); err != nil {
		return revs, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read evidence revision")
	}
	return revs, nil
}

// gather reads the chain side and the registry side in parallel.
func (s *Service) gather(ctx context.Context, subject id.EntityID, at time.Time) (models.Payload, error) {
	payload := models.Payload{SubjectID: subject, AsOf: at}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result, err := s.src.Resolver.Resolve(gctx, subject, resolver.Options{AsOf: &at})
		if err != nil {
			return err
		}
		report, err := s.src.Assessor.Assess(gctx, result, s.threshold)
		if err != nil {
			return err
		}
		controls, err := s.controls(gctx, subject, result.Visited, at)
		if err != nil {
			return err
		}
		payload.Chains = result
		payload.Completeness = report
		payload.Controls = controls
		return nil
	})

	g.Go(func() error {
		ubos, err := s.ubos(gctx, subject)
		if err != nil {
			return err
		}
		payload.UBOs = ubos
		return nil
	})

	if err := g.Wait(); err != nil {
		return models.Payload{}, err
	}
	return payload, nil
}

// controls collects the control relationships over the subject and every
// entity its chains pass through.
func (s *Service) controls(ctx context.Context, subject id.EntityID, visited []id.EntityID, at time.Time) ([]models.ControlEntry, error) {
	nodes := append([]id.EntityID{subject}, visited...)
	seenNode := make(map[id.EntityID]bool, len(nodes))
	seen := make(map[id.ControlID]bool)
	out := []models.ControlEntry{}
	for _, node := range nodes {
		if seenNode[node] {
			continue
		}
		seenNode[node] = true
		rels, err := s.src.Graph.ControlsOver(ctx, node, at)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			if seen[rel.ID] {
				continue
			}
			seen[rel.ID] = true
			out = append(out, models.NewControlEntry(rel))
		}
	}
	return out, nil
}

func (s *Service) ubos(ctx context.Context, subject id.EntityID) ([]models.UBOEntry, error) {
	candidates, err := s.src.Registry.List(ctx, subject, false)
	if err != nil {
		return nil, err
	}
	out := make([]models.UBOEntry, 0, len(candidates))
	for _, c := range candidates {
		p, err := s.src.Evidence.CanProve(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		missing := make([]string, 0, len(p.Missing))
		for _, role := range p.Missing {
			missing = append(missing, string(role))
		}
		out = append(out, models.UBOEntry{
			UBOID:               c.ID,
			OwnerPersonID:       c.OwnerPersonID,
			RelationshipType:    c.RelationshipType,
			QualifyingReason:    c.QualifyingReason,
			OwnershipPercentage: c.OwnershipPercentage,
			ControlType:         c.ControlType,
			VerificationStatus:  c.Status,
			Evidence: models.EvidenceSummary{
				CanProve:      p.CanProve,
				VerifiedCount: p.VerifiedCount,
				PendingCount:  p.PendingCount,
				Missing:       missing,
			},
		})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, snapshotID id.SnapshotID) (*models.Snapshot, error) {
	if snapshotID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "snapshot id is required")
	}
	snap, err := s.store.Find(ctx, snapshotID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load snapshot")
	}
	return snap, nil
}

// List returns the subject's snapshots, newest first.
func (s *Service) List(ctx context.Context, subject id.EntityID) ([]models.Summary, error) {
	if subject.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	items, err := s.store.ListBySubject(ctx, subject)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list snapshots")
	}
	return items, nil
}

// Compare diffs two snapshots of one subject.
func (s *Service) Compare(ctx context.Context, baselineID, currentID id.SnapshotID) (*models.Comparison, error) {
	baseline, err := s.Get(ctx, baselineID)
	if err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, currentID)
	if err != nil {
		return nil, err
	}
	cmp, err := models.Compare(baseline, current)
	if err != nil {
		return nil, err
	}
	s.metrics.IncComparison(cmp.HasChanges)
	if s.ops != nil {
		s.ops.Track(ctx, audit.OpsEvent{
			SubjectID: cmp.SubjectID.String(),
			Action:    audit.EventSnapshotCompared,
			Metadata: map[string]any{
				"baseline_id": baselineID.String(),
				"current_id":  currentID.String(),
				"has_changes": cmp.HasChanges,
			},
		})
	}
	return cmp, nil
}

func (s *Service) emit(ctx context.Context, snap *models.Snapshot) error {
	s.logger.InfoContext(ctx, string(audit.EventSnapshotCaptured),
		"subject_id", snap.SubjectID.String(),
		"resource_id", snap.ID.String(),
		"log_type", "audit",
	)
	if s.audit == nil {
		return nil
	}
	return s.audit.Emit(ctx, audit.ComplianceEvent{
		SubjectID:    snap.SubjectID.String(),
		Action:       audit.EventSnapshotCaptured,
		ResourceType: "snapshot",
		ResourceID:   snap.ID.String(),
		Reason:       snap.Reason,
		Metadata: map[string]any{
			"trigger":      string(snap.Trigger),
			"content_hash": snap.ContentHash,
		},
	})
}

func wrapStoreErr(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "snapshot not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "snapshot already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
