// Package service runs the UBO registry: candidate registration, discovery
// from resolved chains, and the verification state machine.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	evidencemodels "ownergraph/internal/evidence/models"
	graphmodels "ownergraph/internal/graph/models"
	resolvermodels "ownergraph/internal/resolver/models"
	resolver "ownergraph/internal/resolver/service"
	ubometrics "ownergraph/internal/ubo/metrics"
	"ownergraph/internal/ubo/models"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/sentinel"
	"ownergraph/pkg/platform/shardlock"
	"ownergraph/pkg/requestcontext"
)

// DefaultThreshold is the discovery threshold in percent.
const DefaultThreshold = 25.0

type Store interface {
	Insert(ctx context.Context, c *models.Candidate) error
	Find(ctx context.Context, uboID id.UBOID) (*models.Candidate, error)
	FindActive(ctx context.Context, key models.Key) (*models.Candidate, error)
	ListBySubject(ctx context.Context, subject id.EntityID, includeInactive bool) ([]*models.Candidate, error)
	Subjects(ctx context.Context) ([]id.EntityID, error)
	Execute(ctx context.Context, uboID id.UBOID, validate func(*models.Candidate) error, mutate func(*models.Candidate)) (*models.Candidate, error)
	Revision(ctx context.Context) (int64, error)
}

// ProofChecker assesses the evidence held against a candidate.
type ProofChecker interface {
	CanProve(ctx context.Context, uboID id.UBOID) (*evidencemodels.Provability, error)
}

// OwnershipSource resolves the chains discovery works from.
type OwnershipSource interface {
	Resolve(ctx context.Context, subject id.EntityID, opts resolver.Options) (*resolvermodels.Result, error)
}

// Entities looks up registry records. A CodeNotFound error means unknown.
type Entities interface {
	GetEntity(ctx context.Context, entityID id.EntityID) (*graphmodels.Entity, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// RegisterCommand describes a candidate to register.
type RegisterCommand struct {
	SubjectID           id.EntityID
	OwnerPersonID       id.EntityID
	RelationshipType    models.RelationshipType
	QualifyingReason    models.QualifyingReason
	OwnershipPercentage *float64
	ControlType         string
	Risk                models.RiskFactors
	// DiscoveryMethod defaults to MANUAL. INFERRED is rejected; only
	// DiscoverCandidates registers inferred candidates.
	DiscoveryMethod models.DiscoveryMethod
}

func (c RegisterCommand) validateMethod() error {
	if c.DiscoveryMethod == models.DiscoveryInferred {
		return dErrors.New(dErrors.CodeValidation, "inferred candidates are registered by discovery only")
	}
	if c.DiscoveryMethod != "" && !c.DiscoveryMethod.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown discovery method")
	}
	return nil
}

func (c RegisterCommand) spec() models.CandidateSpec {
	return models.CandidateSpec{
		SubjectID:           c.SubjectID,
		OwnerPersonID:       c.OwnerPersonID,
		RelationshipType:    c.RelationshipType,
		QualifyingReason:    c.QualifyingReason,
		OwnershipPercentage: c.OwnershipPercentage,
		ControlType:         c.ControlType,
		Risk:                c.Risk,
		DiscoveryMethod:     c.DiscoveryMethod,
	}
}

type TransitionCommand struct {
	Target models.Status
	Reason string
}

// TransitionResult reports the outcome of a state change. Changed is false for
// a self-transition.
type TransitionResult struct {
	Candidate *models.Candidate          `json:"candidate"`
	From      models.Status              `json:"from"`
	Changed   bool                       `json:"changed"`
	Warnings  []models.TransitionWarning `json:"warnings,omitempty"`
}

// DiscoveryResult groups the candidates a discovery run touched.
type DiscoveryResult struct {
	SubjectID  id.EntityID         `json:"subject_id"`
	Threshold  float64             `json:"threshold"`
	Partial    bool                `json:"partial"`
	Registered []*models.Candidate `json:"registered"`
	Refreshed  []*models.Candidate `json:"refreshed"`
	Unchanged  []*models.Candidate `json:"unchanged"`
}

type Service struct {
	store     Store
	proofs    ProofChecker
	ownership OwnershipSource
	entities  Entities
	tx        TxRunner
	audit     AuditPublisher
	logger    *slog.Logger
	metrics   *ubometrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *ubometrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithProofChecker enables the evidence check on entry to PROVEN.
func WithProofChecker(proofs ProofChecker) Option {
	return func(s *Service) {
		s.proofs = proofs
	}
}

// WithOwnershipSource enables DiscoverCandidates.
func WithOwnershipSource(source OwnershipSource) Option {
	return func(s *Service) {
		s.ownership = source
	}
}

// WithEntities makes registration check that the owner is a known natural
// person.
func WithEntities(entities Entities) Option {
	return func(s *Service) {
		s.entities = entities
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.tx == nil {
		s.tx = shardlock.New()
	}
	s.tracer = otel.Tracer("ownergraph/ubo")
	return s
}

func subjectKey(subject id.EntityID) string {
	return "registry:" + subject.String()
}

func candidateKey(uboID id.UBOID) string {
	return "ubo:" + uboID.String()
}

// Register creates a SUSPECTED candidate. A second active candidate for the
// same subject, person and relationship fails with a DuplicateCandidate error.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*models.Candidate, error) {
	if err := cmd.validateMethod(); err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, cmd.OwnerPersonID); err != nil {
		return nil, err
	}
	var out *models.Candidate
	err := s.tx.RunInTx(ctx, subjectKey(cmd.SubjectID), func(txCtx context.Context) error {
		c, err := s.register(txCtx, cmd.spec())
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "ubo candidate registered",
		"ubo_id", out.ID.String(),
		"subject_id", out.SubjectID.String(),
		"relationship_type", string(out.RelationshipType),
	)
	return out, nil
}

// register runs inside the subject's critical section.
func (s *Service) register(ctx context.Context, spec models.CandidateSpec) (*models.Candidate, error) {
	c, err := models.NewCandidate(id.NewUBOID(), spec, requestcontext.ActorID(ctx).String(), requestcontext.Now(ctx))
	if err != nil {
		return nil, invariantErr(err)
	}
	existing, err := s.store.FindActive(ctx, c.Key())
	switch {
	case err == nil:
		return nil, models.DuplicateCandidate(c.Key(), existing.ID)
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, wrapStoreErr(err, "failed to check for an active candidate")
	}
	if err := s.store.Insert(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, models.DuplicateCandidate(c.Key(), id.UBOID{})
		}
		return nil, wrapStoreErr(err, "failed to register candidate")
	}
	if err := s.emit(ctx, c, audit.EventUBORegistered, "", map[string]any{
		"owner_person_id":   c.OwnerPersonID.String(),
		"relationship_type": string(c.RelationshipType),
		"discovery_method":  string(c.DiscoveryMethod),
	}); err != nil {
		return nil, err
	}
	s.metrics.IncRegistration(string(c.DiscoveryMethod))
	return c, nil
}

// Transition moves a candidate through the verification state machine. The
// read, validation, write and audit append form one critical section per
// candidate. Entering PROVEN without sufficient evidence succeeds with a
// warning and an override audit record.
func (s *Service) Transition(ctx context.Context, uboID id.UBOID, cmd TransitionCommand) (*TransitionResult, error) {
	if uboID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ubo id is required")
	}
	if !cmd.Target.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown target status")
	}
	ctx, span := s.tracer.Start(ctx, "ubo.Transition", trace.WithAttributes(
		attribute.String("ubo.id", uboID.String()),
		attribute.String("ubo.target", string(cmd.Target)),
	))
	defer span.End()

	var result *TransitionResult
	err := s.tx.RunInTx(ctx, candidateKey(uboID), func(txCtx context.Context) error {
		current, err := s.store.Find(txCtx, uboID)
		if err != nil {
			return wrapStoreErr(err, "failed to load candidate")
		}
		if current.Status == cmd.Target {
			result = &TransitionResult{Candidate: current, From: current.Status}
			return nil
		}

		var warnings []models.TransitionWarning
		if cmd.Target == models.StatusProven {
			warnings, err = s.assessProof(txCtx, uboID)
			if err != nil {
				return err
			}
		}

		now := requestcontext.Now(txCtx)
		var from models.Status
		updated, err := s.store.Execute(txCtx, uboID,
			func(c *models.Candidate) error {
				from = c.Status
				return c.CanTransitionTo(cmd.Target)
			},
			func(c *models.Candidate) { c.ApplyTransition(cmd.Target, now) },
		)
		if err != nil {
			return wrapStoreErr(err, "failed to transition candidate")
		}

		if err := s.emit(txCtx, updated, audit.EventUBOTransitioned, cmd.Reason, map[string]any{
			"from": string(from),
			"to":   string(cmd.Target),
		}); err != nil {
			return err
		}
		if len(warnings) > 0 {
			if err := s.emit(txCtx, updated, audit.EventUBOOverride, cmd.Reason, map[string]any{
				"missing": warnings[0].Missing,
			}); err != nil {
				return err
			}
		}
		result = &TransitionResult{Candidate: updated, From: from, Changed: true, Warnings: warnings}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if result.Changed {
		s.metrics.IncTransition(string(result.From), string(cmd.Target))
		s.logger.InfoContext(ctx, "ubo candidate transitioned",
			"ubo_id", uboID.String(),
			"from", string(result.From),
			"to", string(cmd.Target),
		)
	}
	if len(result.Warnings) > 0 {
		s.metrics.IncOverride()
		s.logger.WarnContext(ctx, "candidate proven without sufficient evidence",
			"ubo_id", uboID.String(),
			"missing", result.Warnings[0].Missing,
		)
	}
	return result, nil
}

func (s *Service) assessProof(ctx context.Context, uboID id.UBOID) ([]models.TransitionWarning, error) {
	if s.proofs == nil {
		return nil, nil
	}
	p, err := s.proofs.CanProve(ctx, uboID)
	if err != nil {
		return nil, err
	}
	if p.CanProve {
		return nil, nil
	}
	missing := make([]string, 0, len(p.Missing))
	for _, role := range p.Missing {
		missing = append(missing, string(role))
	}
	return []models.TransitionWarning{{
		Code:    models.WarningInsufficientEvidence,
		Message: fmt.Sprintf("missing verified evidence: %s", strings.Join(missing, ", ")),
		Missing: missing,
	}}, nil
}

// DiscoverCandidates registers INFERRED candidates for every person holding
// at least threshold percent of subject. Persons with an active ownership
// candidate keep it and only have their percentage refreshed.
func (s *Service) DiscoverCandidates(ctx context.Context, subject id.EntityID, threshold float64) (*DiscoveryResult, error) {
	if s.ownership == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "candidate discovery is not configured")
	}
	if subject.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "threshold must be within (0, 100]")
	}
	ctx, span := s.tracer.Start(ctx, "ubo.DiscoverCandidates", trace.WithAttributes(
		attribute.String("subject.id", subject.String()),
		attribute.Float64("threshold", threshold),
	))
	defer span.End()

	resolved, err := s.ownership.Resolve(ctx, subject, resolver.Options{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := &DiscoveryResult{
		SubjectID:  subject,
		Threshold:  threshold,
		Partial:    resolved.Partial,
		Registered: []*models.Candidate{},
		Refreshed:  []*models.Candidate{},
		Unchanged:  []*models.Candidate{},
	}
	err = s.tx.RunInTx(ctx, subjectKey(subject), func(txCtx context.Context) error {
		for _, owner := range resolved.OwnersAbove(threshold) {
			if err := s.discoverOwner(txCtx, subject, owner, out); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.logger.InfoContext(ctx, "ubo discovery finished",
		"subject_id", subject.String(),
		"registered", len(out.Registered),
		"refreshed", len(out.Refreshed),
		"partial", out.Partial,
	)
	return out, nil
}

func (s *Service) discoverOwner(ctx context.Context, subject id.EntityID, owner resolvermodels.Owner, out *DiscoveryResult) error {
	pct := owner.TotalOwnership
	for _, relType := range []models.RelationshipType{models.RelationshipDirectOwnership, models.RelationshipIndirectOwnership} {
		existing, err := s.store.FindActive(ctx, models.Key{SubjectID: subject, OwnerPersonID: owner.PersonID, RelationshipType: relType})
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return wrapStoreErr(err, "failed to check for an active candidate")
		}
		updated, changed, err := s.refresh(ctx, existing.ID, pct)
		if err != nil {
			return err
		}
		if changed {
			out.Refreshed = append(out.Refreshed, updated)
		} else {
			out.Unchanged = append(out.Unchanged, updated)
		}
		return nil
	}

	relType := models.RelationshipIndirectOwnership
	if owner.MinDepth == 1 {
		relType = models.RelationshipDirectOwnership
	}
	c, err := s.register(ctx, models.CandidateSpec{
		SubjectID:           subject,
		OwnerPersonID:       owner.PersonID,
		RelationshipType:    relType,
		QualifyingReason:    models.ReasonOwnershipThreshold,
		OwnershipPercentage: &pct,
		DiscoveryMethod:     models.DiscoveryInferred,
	})
	if err != nil {
		return err
	}
	out.Registered = append(out.Registered, c)
	return nil
}

// RefreshOwnership updates the derived ownership percentage of an active
// candidate.
func (s *Service) RefreshOwnership(ctx context.Context, uboID id.UBOID, pct float64) (*models.Candidate, error) {
	if pct < 0 || pct > 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "ownership percentage must be between 0 and 100")
	}
	var out *models.Candidate
	err := s.tx.RunInTx(ctx, candidateKey(uboID), func(txCtx context.Context) error {
		c, _, err := s.refresh(txCtx, uboID, pct)
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) refresh(ctx context.Context, uboID id.UBOID, pct float64) (*models.Candidate, bool, error) {
	now := requestcontext.Now(ctx)
	var changed bool
	updated, err := s.store.Execute(ctx, uboID,
		func(c *models.Candidate) error { return c.CanEnd() },
		func(c *models.Candidate) { changed = c.ApplyOwnership(pct, now) },
	)
	if err != nil {
		return nil, false, wrapStoreErr(err, "failed to refresh candidate")
	}
	if !changed {
		return updated, false, nil
	}
	if err := s.emit(ctx, updated, audit.EventUBORefreshed, "", map[string]any{
		"ownership_percentage": pct,
	}); err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

// SupersedeCandidate replaces an active candidate. The old record keeps its
// history and points at the replacement; both writes share one critical
// section on the subject.
func (s *Service) SupersedeCandidate(ctx context.Context, oldID id.UBOID, replacement RegisterCommand) (*models.Candidate, error) {
	old, err := s.Get(ctx, oldID)
	if err != nil {
		return nil, err
	}
	if err := replacement.validateMethod(); err != nil {
		return nil, err
	}
	if replacement.SubjectID.IsNil() {
		replacement.SubjectID = old.SubjectID
	}
	if replacement.SubjectID != old.SubjectID {
		return nil, dErrors.New(dErrors.CodeValidation, "a replacement must belong to the same subject")
	}
	if replacement.OwnerPersonID.IsNil() {
		replacement.OwnerPersonID = old.OwnerPersonID
	}
	if replacement.RelationshipType == "" {
		replacement.RelationshipType = old.RelationshipType
	}
	if err := s.checkOwner(ctx, replacement.OwnerPersonID); err != nil {
		return nil, err
	}

	var out *models.Candidate
	err = s.tx.RunInTx(ctx, subjectKey(old.SubjectID), func(txCtx context.Context) error {
		actor := requestcontext.ActorID(txCtx).String()
		now := requestcontext.Now(txCtx)
		next, err := models.NewCandidate(id.NewUBOID(), replacement.spec(), actor, now)
		if err != nil {
			return invariantErr(err)
		}
		if next.Key() != old.Key() {
			existing, err := s.store.FindActive(txCtx, next.Key())
			if err == nil {
				return models.DuplicateCandidate(next.Key(), existing.ID)
			}
			if !errors.Is(err, sentinel.ErrNotFound) {
				return wrapStoreErr(err, "failed to check for an active candidate")
			}
		}

		ended, err := s.store.Execute(txCtx, oldID,
			func(c *models.Candidate) error { return c.CanEnd() },
			func(c *models.Candidate) { c.ApplySupersede(next.ID, now) },
		)
		if err != nil {
			return wrapStoreErr(err, "failed to supersede candidate")
		}
		if err := s.store.Insert(txCtx, next); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return models.DuplicateCandidate(next.Key(), id.UBOID{})
			}
			return wrapStoreErr(err, "failed to register replacement candidate")
		}
		if err := s.emit(txCtx, ended, audit.EventUBOSuperseded, "", map[string]any{
			"superseded_by": next.ID.String(),
		}); err != nil {
			return err
		}
		if err := s.emit(txCtx, next, audit.EventUBORegistered, "", map[string]any{
			"owner_person_id":   next.OwnerPersonID.String(),
			"relationship_type": string(next.RelationshipType),
			"discovery_method":  string(next.DiscoveryMethod),
			"supersedes":        ended.ID.String(),
		}); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncEnding("superseded")
	s.metrics.IncRegistration(string(out.DiscoveryMethod))
	s.logger.InfoContext(ctx, "ubo candidate superseded",
		"ubo_id", oldID.String(),
		"superseded_by", out.ID.String(),
	)
	return out, nil
}

// CloseCandidate ends an active candidate. Closed candidates are kept.
func (s *Service) CloseCandidate(ctx context.Context, uboID id.UBOID, reason string) (*models.Candidate, error) {
	if uboID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ubo id is required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "close reason is required")
	}
	var out *models.Candidate
	err := s.tx.RunInTx(ctx, candidateKey(uboID), func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		closed, err := s.store.Execute(txCtx, uboID,
			func(c *models.Candidate) error { return c.CanEnd() },
			func(c *models.Candidate) { c.ApplyClose(reason, now) },
		)
		if err != nil {
			return wrapStoreErr(err, "failed to close candidate")
		}
		if err := s.emit(txCtx, closed, audit.EventUBOClosed, reason, nil); err != nil {
			return err
		}
		out = closed
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncEnding("closed")
	s.logger.InfoContext(ctx, "ubo candidate closed", "ubo_id", uboID.String())
	return out, nil
}

func (s *Service) Get(ctx context.Context, uboID id.UBOID) (*models.Candidate, error) {
	if uboID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "ubo id is required")
	}
	c, err := s.store.Find(ctx, uboID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load candidate")
	}
	return c, nil
}

// List returns the subject's candidates; inactive ones only when asked.
func (s *Service) List(ctx context.Context, subject id.EntityID, includeInactive bool) ([]*models.Candidate, error) {
	if subject.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	items, err := s.store.ListBySubject(ctx, subject, includeInactive)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list candidates")
	}
	return items, nil
}

// Subjects lists subjects with at least one active candidate.
func (s *Service) Subjects(ctx context.Context) ([]id.EntityID, error) {
	subjects, err := s.store.Subjects(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list registry subjects")
	}
	return subjects, nil
}

func (s *Service) Revision(ctx context.Context) (int64, error) {
	rev, err := s.store.Revision(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read registry revision")
	}
	return rev, nil
}

func (s *Service) checkOwner(ctx context.Context, person id.EntityID) error {
	if s.entities == nil || person.IsNil() {
		return nil
	}
	entity, err := s.entities.GetEntity(ctx, person)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.New(dErrors.CodeValidation, "owner person is not a known entity").
				WithDetail("owner_person_id", person.String())
		}
		return err
	}
	if !entity.Kind.IsNaturalPerson() {
		return dErrors.New(dErrors.CodeValidation, "a beneficial owner must be a natural person").
			WithDetail("owner_person_id", person.String()).
			WithDetail("kind", string(entity.Kind))
	}
	return nil
}

func (s *Service) emit(ctx context.Context, c *models.Candidate, action audit.AuditEvent, reason string, metadata map[string]any) error {
	s.logger.InfoContext(ctx, string(action),
		"subject_id", c.SubjectID.String(),
		"resource_id", c.ID.String(),
		"log_type", "audit",
	)
	if s.audit == nil {
		return nil
	}
	return s.audit.Emit(ctx, audit.ComplianceEvent{
		SubjectID:    c.SubjectID.String(),
		Action:       action,
		ResourceType: "ubo_candidate",
		ResourceID:   c.ID.String(),
		Decision:     string(c.Status),
		Reason:       reason,
		Metadata:     metadata,
	})
}

func invariantErr(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return err
}

func wrapStoreErr(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "ubo candidate not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "ubo candidate already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
