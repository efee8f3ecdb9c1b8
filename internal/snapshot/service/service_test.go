package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	completeness "ownergraph/internal/completeness/service"
	evidencestore "ownergraph/internal/evidence/store"
	evidence "ownergraph/internal/evidence/service"
	graphmodels "ownergraph/internal/graph/models"
	graph "ownergraph/internal/graph/service"
	graphstore "ownergraph/internal/graph/store"
	resolver "ownergraph/internal/resolver/service"
	"ownergraph/internal/snapshot/models"
	"ownergraph/internal/snapshot/store"
	ubomodels "ownergraph/internal/ubo/models"
	ubo "ownergraph/internal/ubo/service"
	ubostore "ownergraph/internal/ubo/store"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/audit/publishers/compliance"
	auditmemory "ownergraph/pkg/platform/audit/store/memory"
	"ownergraph/pkg/requestcontext"
)

// tornGraph mutates the graph from inside a capture, the way a concurrent
// writer would.
type tornGraph struct {
	*graph.Service
	remaining atomic.Int32
	mutate    func(ctx context.Context)
}

func (g *tornGraph) ControlsOver(ctx context.Context, entityID id.EntityID, asOf time.Time) ([]*graphmodels.ControlRelationship, error) {
	if g.remaining.Add(-1) >= 0 {
		g.mutate(ctx)
	}
	return g.Service.ControlsOver(ctx, entityID, asOf)
}

type SnapshotServiceSuite struct {
	suite.Suite
	graph    *graph.Service
	torn     *tornGraph
	registry *ubo.Service
	evidence *evidence.Service
	auditLog *auditmemory.InMemoryStore
	svc      *Service
	subject  id.EntityID
	person   id.EntityID
	ctx      context.Context
	t0       time.Time
}

func TestSnapshotServiceSuite(t *testing.T) {
	suite.Run(t, new(SnapshotServiceSuite))
}

func (s *SnapshotServiceSuite) SetupTest() {
	s.t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.t0)
	s.ctx = requestcontext.WithActorID(s.ctx, "analyst-1")

	gs := graphstore.NewInMemory()
	s.graph = graph.New(gs)
	s.auditLog = auditmemory.NewInMemoryStore()
	publisher := compliance.New(s.auditLog)
	res := resolver.New(gs, resolver.Policy{})
	us := ubostore.NewInMemory()
	s.evidence = evidence.New(evidencestore.NewInMemory(), us)
	s.registry = ubo.New(us,
		ubo.WithProofChecker(s.evidence),
		ubo.WithOwnershipSource(res),
		ubo.WithEntities(s.graph),
	)
	s.torn = &tornGraph{Service: s.graph, mutate: func(ctx context.Context) {
		_, err := s.graph.UpsertEntity(ctx, graph.UpsertEntityCommand{ID: id.NewEntityID(), Kind: id.EntityKindLegalEntity})
		s.Require().NoError(err)
	}}
	s.svc = New(store.NewInMemory(), Sources{
		Graph:    s.torn,
		Registry: s.registry,
		Evidence: s.evidence,
		Resolver: res,
		Assessor: completeness.New(res, s.graph),
	}, WithAuditPublisher(publisher))

	s.subject = s.entity(id.EntityKindLegalEntity)
	s.person = s.entity(id.EntityKindNaturalPerson)
}

func (s *SnapshotServiceSuite) entity(kind id.EntityKind) id.EntityID {
	e, err := s.graph.UpsertEntity(s.ctx, graph.UpsertEntityCommand{ID: id.NewEntityID(), Kind: kind})
	s.Require().NoError(err)
	return e.ID
}

func (s *SnapshotServiceSuite) own(owner, owned id.EntityID, pct float64) {
	_, err := s.graph.AddEdge(s.ctx, graph.AddEdgeCommand{OwnerID: owner, OwnedID: owned, Percentage: pct})
	s.Require().NoError(err)
}

func (s *SnapshotServiceSuite) capture() *models.Snapshot {
	snap, err := s.svc.Capture(s.ctx, CaptureCommand{SubjectID: s.subject, Reason: "case review", Trigger: models.TriggerCaseOpen})
	s.Require().NoError(err)
	return snap
}

func (s *SnapshotServiceSuite) TestCaptureFreezesState() {
	holding := s.entity(id.EntityKindLegalEntity)
	s.own(s.person, holding, 100)
	s.own(holding, s.subject, 60)
	_, err := s.graph.AddControl(s.ctx, graph.AddControlCommand{
		ControllerID: s.person,
		ControlledID: holding,
		ControlType:  graphmodels.ControlBoardAppointment,
	})
	s.Require().NoError(err)
	discovered, err := s.registry.DiscoverCandidates(s.ctx, s.subject, 0)
	s.Require().NoError(err)
	s.Require().Len(discovered.Registered, 1)

	snap := s.capture()

	s.Equal(s.subject, snap.SubjectID)
	s.Equal(s.t0, snap.CapturedAt)
	s.Equal("analyst-1", snap.CapturedBy)
	s.NotEmpty(snap.ContentHash)
	s.NoError(snap.VerifyHash())

	s.Require().Len(snap.Payload.UBOs, 1)
	entry := snap.Payload.UBOs[0]
	s.Equal(s.person, entry.OwnerPersonID)
	s.Equal(ubomodels.RelationshipIndirectOwnership, entry.RelationshipType)
	s.Equal(ubomodels.StatusSuspected, entry.VerificationStatus)
	s.False(entry.Evidence.CanProve)
	s.Equal([]string{"IDENTITY_PROOF", "OWNERSHIP_PROOF"}, entry.Evidence.Missing)

	s.Require().NotNil(snap.Payload.Chains)
	s.Len(snap.Payload.Chains.Chains, 1)
	s.Require().Len(snap.Payload.Controls, 1, "controls over intermediate entities are frozen too")
	s.Equal(holding, snap.Payload.Controls[0].ControlledID)
	s.Require().NotNil(snap.Payload.Completeness)
	s.InDelta(60.0, snap.Payload.Completeness.TotalIdentified, 0.0001)

	events, err := s.auditLog.ListBySubject(s.ctx, s.subject.String())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventSnapshotCaptured), events[0].Action)

	s.Run("stored snapshot round-trips with the same hash", func() {
		got, err := s.svc.Get(s.ctx, snap.ID)
		s.Require().NoError(err)
		s.Equal(snap.ContentHash, got.ContentHash)
		s.NoError(got.VerifyHash())
	})

	s.Run("listing shows a summary", func() {
		items, err := s.svc.List(s.ctx, s.subject)
		s.Require().NoError(err)
		s.Require().Len(items, 1)
		s.Equal(1, items[0].UBOCount)
		s.Equal(models.TriggerCaseOpen, items[0].Trigger)
	})
}

func (s *SnapshotServiceSuite) TestEmptySubjectHasEmptyUBOList() {
	snap := s.capture()
	s.NotNil(snap.Payload.UBOs)
	s.Empty(snap.Payload.UBOs)
	s.NotNil(snap.Payload.Controls)
}

func (s *SnapshotServiceSuite) TestCaptureValidation() {
	s.Run("reason is required", func() {
		_, err := s.svc.Capture(s.ctx, CaptureCommand{SubjectID: s.subject, Reason: "  "})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("subject is required", func() {
		_, err := s.svc.Capture(s.ctx, CaptureCommand{Reason: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
	s.Run("unknown trigger", func() {
		_, err := s.svc.Capture(s.ctx, CaptureCommand{SubjectID: s.subject, Reason: "x", Trigger: "WHENEVER"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("trigger defaults to manual", func() {
		snap, err := s.svc.Capture(s.ctx, CaptureCommand{SubjectID: s.subject, Reason: "x"})
		s.Require().NoError(err)
		s.Equal(models.TriggerManual, snap.Trigger)
	})
}

func (s *SnapshotServiceSuite) TestTornReadIsRetried() {
	s.torn.remaining.Store(1)

	snap := s.capture()

	before, err := s.graph.Revision(s.ctx)
	s.Require().NoError(err)
	s.Equal(before, snap.Revisions.Graph, "the stored snapshot matches the settled revision")
}

func (s *SnapshotServiceSuite) TestPersistentTornReadFails() {
	s.torn.remaining.Store(100)

	_, err := s.svc.Capture(s.ctx, CaptureCommand{SubjectID: s.subject, Reason: "case review"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	items, err := s.svc.List(s.ctx, s.subject)
	s.Require().NoError(err)
	s.Empty(items, "nothing is stored after an inconsistent read")
}

func (s *SnapshotServiceSuite) TestCompare() {
	s.own(s.person, s.subject, 40)
	c, err := s.registry.Register(s.ctx, ubo.RegisterCommand{
		SubjectID:        s.subject,
		OwnerPersonID:    s.person,
		RelationshipType: ubomodels.RelationshipDirectOwnership,
	})
	s.Require().NoError(err)
	baseline := s.capture()

	_, err = s.registry.Transition(s.ctx, c.ID, ubo.TransitionCommand{Target: ubomodels.StatusPending})
	s.Require().NoError(err)
	newcomer := s.entity(id.EntityKindNaturalPerson)
	s.own(newcomer, s.subject, 30)
	current := s.capture()

	cmp, err := s.svc.Compare(s.ctx, baseline.ID, current.ID)
	s.Require().NoError(err)
	s.True(cmp.HasChanges)
	s.Empty(cmp.Added)
	s.Empty(cmp.Removed)
	s.Require().Len(cmp.Changed, 1)
	s.Equal("verification_status", cmp.Changed[0].Changes[0].Field)

	s.Run("identical snapshots have no changes", func() {
		cmp, err := s.svc.Compare(s.ctx, current.ID, current.ID)
		s.Require().NoError(err)
		s.False(cmp.HasChanges)
	})

	s.Run("unknown snapshot", func() {
		_, err := s.svc.Compare(s.ctx, baseline.ID, id.NewSnapshotID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *SnapshotServiceSuite) TestCaptureWithBackoff() {
	policy := RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsedTime: time.Second}

	s.Run("retries past an inconsistent read", func() {
		s.torn.remaining.Store(int32(DefaultRetries + 1))
		snap, err := s.svc.CaptureWithBackoff(s.ctx, CaptureCommand{SubjectID: s.subject, Reason: "sweep"}, policy)
		s.Require().NoError(err)
		s.NotEmpty(snap.ContentHash)
	})

	s.Run("other errors are not retried", func() {
		s.torn.remaining.Store(0)
		_, err := s.svc.CaptureWithBackoff(s.ctx, CaptureCommand{SubjectID: s.subject}, policy)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.False(IsInconsistentRead(err))
	})
}
