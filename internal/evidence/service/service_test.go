package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ownergraph/internal/evidence/models"
	"ownergraph/internal/evidence/store"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/audit/publishers/compliance"
	auditmemory "ownergraph/pkg/platform/audit/store/memory"
	"ownergraph/pkg/platform/sentinel"
	"ownergraph/pkg/requestcontext"
)

type candidates map[id.UBOID]id.EntityID

func (c candidates) SubjectOf(_ context.Context, uboID id.UBOID) (id.EntityID, error) {
	subject, ok := c[uboID]
	if !ok {
		return id.EntityID{}, sentinel.ErrNotFound
	}
	return subject, nil
}

type EvidenceServiceSuite struct {
	suite.Suite
	store    *store.InMemory
	auditLog *auditmemory.InMemoryStore
	svc      *Service
	ubo      id.UBOID
	subject  id.EntityID
	ctx      context.Context
	t0       time.Time
}

func TestEvidenceServiceSuite(t *testing.T) {
	suite.Run(t, new(EvidenceServiceSuite))
}

func (s *EvidenceServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.auditLog = auditmemory.NewInMemoryStore()
	s.ubo, s.subject = id.NewUBOID(), id.NewEntityID()
	s.svc = New(s.store, candidates{s.ubo: s.subject}, WithAuditPublisher(compliance.New(s.auditLog)))
	s.t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.t0)
	s.ctx = requestcontext.WithActorID(s.ctx, "analyst-1")
}

func (s *EvidenceServiceSuite) attach(role models.Role) *models.Evidence {
	e, err := s.svc.Attach(s.ctx, AttachCommand{UBOID: s.ubo, Role: role, DocumentRef: "doc://" + string(role)})
	s.Require().NoError(err)
	return e
}

func (s *EvidenceServiceSuite) TestProvabilityScenario() {
	identity := s.attach(models.RoleIdentityProof)
	_, err := s.svc.Verify(s.ctx, identity.ID)
	s.Require().NoError(err)

	p, err := s.svc.CanProve(s.ctx, s.ubo)
	s.Require().NoError(err)
	s.False(p.CanProve)
	s.Equal([]models.Role{models.RoleOwnershipProof}, p.Missing)

	link := s.attach(models.RoleChainLink)
	_, err = s.svc.Verify(s.ctx, link.ID)
	s.Require().NoError(err)

	p, err = s.svc.CanProve(s.ctx, s.ubo)
	s.Require().NoError(err)
	s.True(p.CanProve)
	s.Empty(p.Missing)
	s.Equal(2, p.VerifiedCount)
}

func (s *EvidenceServiceSuite) TestAttach() {
	s.Run("unknown candidate", func() {
		_, err := s.svc.Attach(s.ctx, AttachCommand{UBOID: id.NewUBOID(), Role: models.RoleIdentityProof})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid role is a validation error", func() {
		_, err := s.svc.Attach(s.ctx, AttachCommand{UBOID: s.ubo, Role: "PASSPORT"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("records submitter and audits against the subject", func() {
		e := s.attach(models.RoleOwnershipProof)
		s.Equal(models.StatusPending, e.Status)
		s.Equal("analyst-1", e.SubmittedBy)

		events, err := s.auditLog.ListBySubject(s.ctx, s.subject.String())
		s.Require().NoError(err)
		s.Require().NotEmpty(events)
		s.Equal(string(audit.EventEvidenceAttached), events[len(events)-1].Action)
	})
}

func (s *EvidenceServiceSuite) TestLifecycle() {
	e := s.attach(models.RoleIdentityProof)

	s.Run("reject needs a reason", func() {
		_, err := s.svc.Reject(s.ctx, e.ID, "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("reject then resubmit then verify", func() {
		rejected, err := s.svc.Reject(s.ctx, e.ID, "illegible scan")
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, rejected.Status)

		_, err = s.svc.Verify(s.ctx, e.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

		pending, err := s.svc.Resubmit(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Empty(pending.RejectionReason)

		verified, err := s.svc.Verify(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Equal("analyst-1", verified.VerifiedBy)
		s.Require().NotNil(verified.VerifiedAt)
	})

	s.Run("expire removes it from the assessment", func() {
		_, err := s.svc.Expire(s.ctx, e.ID)
		s.Require().NoError(err)
		p, err := s.svc.CanProve(s.ctx, s.ubo)
		s.Require().NoError(err)
		s.False(p.HasIdentityProof)
	})

	s.Run("unknown evidence", func() {
		_, err := s.svc.Verify(s.ctx, id.NewEvidenceID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *EvidenceServiceSuite) TestRevisionMovesOnEveryWrite() {
	before, err := s.svc.Revision(s.ctx)
	s.Require().NoError(err)

	e := s.attach(models.RoleIdentityProof)
	_, err = s.svc.Verify(s.ctx, e.ID)
	s.Require().NoError(err)

	after, err := s.svc.Revision(s.ctx)
	s.Require().NoError(err)
	s.Equal(before+2, after)
}

func (s *EvidenceServiceSuite) TestList() {
	s.attach(models.RoleIdentityProof)
	s.attach(models.RoleChainLink)

	items, err := s.svc.List(s.ctx, s.ubo)
	s.Require().NoError(err)
	s.Len(items, 2)

	_, err = s.svc.List(s.ctx, id.NewUBOID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
