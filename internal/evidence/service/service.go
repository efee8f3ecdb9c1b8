// Package service manages evidence held against UBO candidates and answers
// whether a candidate can be proven.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	evidencemetrics "ownergraph/internal/evidence/metrics"
	"ownergraph/internal/evidence/models"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/sentinel"
	"ownergraph/pkg/platform/shardlock"
	"ownergraph/pkg/requestcontext"
)

type Store interface {
	Insert(ctx context.Context, e *models.Evidence) error
	Find(ctx context.Context, evidenceID id.EvidenceID) (*models.Evidence, error)
	ListByUBO(ctx context.Context, uboID id.UBOID) ([]*models.Evidence, error)
	Execute(ctx context.Context, evidenceID id.EvidenceID, validate func(*models.Evidence) error, mutate func(*models.Evidence)) (*models.Evidence, error)
	Revision(ctx context.Context) (int64, error)
}

// UBOLookup resolves the subject a candidate belongs to. It returns
// sentinel.ErrNotFound for unknown candidates.
type UBOLookup interface {
	SubjectOf(ctx context.Context, uboID id.UBOID) (id.EntityID, error)
}

type TxRunner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// AttachCommand describes a new evidence item.
type AttachCommand struct {
	UBOID       id.UBOID
	Role        models.Role
	DocumentRef string
	Description string
	ExpiresAt   *time.Time
}

type Service struct {
	store   Store
	ubos    UBOLookup
	tx      TxRunner
	audit   AuditPublisher
	logger  *slog.Logger
	metrics *evidencemetrics.Metrics
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

func WithMetrics(m *evidencemetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTx(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func New(store Store, ubos UBOLookup, opts ...Option) *Service {
	s := &Service{store: store, ubos: ubos}
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

func lockKey(uboID id.UBOID) string {
	return "evidence:" + uboID.String()
}

// Attach records a PENDING evidence item against a candidate.
func (s *Service) Attach(ctx context.Context, cmd AttachCommand) (*models.Evidence, error) {
	var out *models.Evidence
	err := s.tx.RunInTx(ctx, lockKey(cmd.UBOID), func(txCtx context.Context) error {
		subject, err := s.subjectOf(txCtx, cmd.UBOID)
		if err != nil {
			return err
		}
		item, err := models.NewEvidence(id.NewEvidenceID(), cmd.UBOID, cmd.Role, cmd.DocumentRef, cmd.Description,
			cmd.ExpiresAt, requestcontext.ActorID(txCtx).String(), requestcontext.Now(txCtx))
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		if err := s.store.Insert(txCtx, item); err != nil {
			return wrapStoreErr(err, "failed to attach evidence")
		}
		if err := s.emit(txCtx, subject, item, audit.EventEvidenceAttached, ""); err != nil {
			return err
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncChange("attach")
	s.logger.InfoContext(ctx, "evidence attached",
		"evidence_id", out.ID.String(),
		"ubo_id", out.UBOID.String(),
		"role", string(out.Role),
	)
	return out, nil
}

// Verify marks an item VERIFIED by the acting analyst.
func (s *Service) Verify(ctx context.Context, evidenceID id.EvidenceID) (*models.Evidence, error) {
	return s.move(ctx, evidenceID, models.StatusVerified, audit.EventEvidenceVerified, "", "verify",
		func(e *models.Evidence, actor string, now time.Time) { e.ApplyVerify(actor, now) })
}

// Reject marks an item REJECTED. A reason is required.
func (s *Service) Reject(ctx context.Context, evidenceID id.EvidenceID, reason string) (*models.Evidence, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	return s.move(ctx, evidenceID, models.StatusRejected, audit.EventEvidenceRejected, reason, "reject",
		func(e *models.Evidence, _ string, now time.Time) { e.ApplyReject(reason, now) })
}

func (s *Service) Expire(ctx context.Context, evidenceID id.EvidenceID) (*models.Evidence, error) {
	return s.move(ctx, evidenceID, models.StatusExpired, audit.EventEvidenceExpired, "", "expire",
		func(e *models.Evidence, _ string, now time.Time) { e.ApplyExpire(now) })
}

// Resubmit returns a rejected or expired item to PENDING.
func (s *Service) Resubmit(ctx context.Context, evidenceID id.EvidenceID) (*models.Evidence, error) {
	return s.move(ctx, evidenceID, models.StatusPending, audit.EventEvidenceResubmitted, "", "resubmit",
		func(e *models.Evidence, _ string, now time.Time) { e.ApplyResubmit(now) })
}

func (s *Service) move(ctx context.Context, evidenceID id.EvidenceID, to models.Status, event audit.AuditEvent, reason, action string, apply func(*models.Evidence, string, time.Time)) (*models.Evidence, error) {
	if evidenceID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "evidence id is required")
	}
	current, err := s.store.Find(ctx, evidenceID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load evidence")
	}

	var out *models.Evidence
	err = s.tx.RunInTx(ctx, lockKey(current.UBOID), func(txCtx context.Context) error {
		actor := requestcontext.ActorID(txCtx).String()
		now := requestcontext.Now(txCtx)
		updated, err := s.store.Execute(txCtx, evidenceID,
			func(e *models.Evidence) error { return e.CanMoveTo(to) },
			func(e *models.Evidence) { apply(e, actor, now) },
		)
		if err != nil {
			return wrapStoreErr(err, "failed to update evidence")
		}
		subject, err := s.subjectOf(txCtx, updated.UBOID)
		if err != nil {
			return err
		}
		if err := s.emit(txCtx, subject, updated, event, reason); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncChange(action)
	s.logger.InfoContext(ctx, "evidence status changed",
		"evidence_id", out.ID.String(),
		"ubo_id", out.UBOID.String(),
		"status", string(out.Status),
	)
	return out, nil
}

func (s *Service) Get(ctx context.Context, evidenceID id.EvidenceID) (*models.Evidence, error) {
	e, err := s.store.Find(ctx, evidenceID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load evidence")
	}
	return e, nil
}

func (s *Service) List(ctx context.Context, uboID id.UBOID) ([]*models.Evidence, error) {
	if _, err := s.subjectOf(ctx, uboID); err != nil {
		return nil, err
	}
	items, err := s.store.ListByUBO(ctx, uboID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list evidence")
	}
	return items, nil
}

// CanProve assesses the candidate's evidence at request time. Missing roles
// are reported in the result, never as an error.
func (s *Service) CanProve(ctx context.Context, uboID id.UBOID) (*models.Provability, error) {
	items, err := s.store.ListByUBO(ctx, uboID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list evidence")
	}
	p := models.Assess(uboID, items, requestcontext.Now(ctx))
	s.metrics.IncAssessment(p.CanProve)
	return &p, nil
}

func (s *Service) Revision(ctx context.Context) (int64, error) {
	rev, err := s.store.Revision(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read evidence revision")
	}
	return rev, nil
}

func (s *Service) subjectOf(ctx context.Context, uboID id.UBOID) (id.EntityID, error) {
	if uboID.IsNil() {
		return id.EntityID{}, dErrors.New(dErrors.CodeInvalidInput, "ubo id is required")
	}
	subject, err := s.ubos.SubjectOf(ctx, uboID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.EntityID{}, dErrors.New(dErrors.CodeNotFound, "ubo candidate not found").
				WithDetail("ubo_id", uboID.String())
		}
		return id.EntityID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ubo candidate")
	}
	return subject, nil
}

func (s *Service) emit(ctx context.Context, subject id.EntityID, e *models.Evidence, action audit.AuditEvent, reason string) error {
	s.logger.InfoContext(ctx, string(action),
		"subject_id", subject.String(),
		"resource_id", e.ID.String(),
		"log_type", "audit",
	)
	if s.audit == nil {
		return nil
	}
	return s.audit.Emit(ctx, audit.ComplianceEvent{
		SubjectID:    subject.String(),
		Action:       action,
		ResourceType: "evidence",
		ResourceID:   e.ID.String(),
		Decision:     string(e.Status),
		Reason:       reason,
		Metadata: map[string]any{
			"ubo_id": e.UBOID.String(),
			"role":   string(e.Role),
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
		return dErrors.New(dErrors.CodeNotFound, "evidence not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "evidence already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
