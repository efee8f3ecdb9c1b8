package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	evidencemodels "ownergraph/internal/evidence/models"
	evidencestore "ownergraph/internal/evidence/store"
	evidence "ownergraph/internal/evidence/service"
	graph "ownergraph/internal/graph/service"
	graphstore "ownergraph/internal/graph/store"
	resolver "ownergraph/internal/resolver/service"
	"ownergraph/internal/ubo/models"
	"ownergraph/internal/ubo/store"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/audit/publishers/compliance"
	auditmemory "ownergraph/pkg/platform/audit/store/memory"
	"ownergraph/pkg/requestcontext"
)

type RegistryServiceSuite struct {
	suite.Suite
	store    *store.InMemory
	graph    *graph.Service
	evidence *evidence.Service
	auditLog *auditmemory.InMemoryStore
	svc      *Service
	subject  id.EntityID
	person   id.EntityID
	ctx      context.Context
	t0       time.Time
}

func TestRegistryServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistryServiceSuite))
}

func (s *RegistryServiceSuite) SetupTest() {
	s.t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.t0)
	s.ctx = requestcontext.WithActorID(s.ctx, "analyst-1")

	gs := graphstore.NewInMemory()
	s.graph = graph.New(gs)
	s.store = store.NewInMemory()
	s.auditLog = auditmemory.NewInMemoryStore()
	publisher := compliance.New(s.auditLog)
	s.evidence = evidence.New(evidencestore.NewInMemory(), s.store, evidence.WithAuditPublisher(publisher))
	s.svc = New(s.store,
		WithAuditPublisher(publisher),
		WithProofChecker(s.evidence),
		WithOwnershipSource(resolver.New(gs, resolver.Policy{})),
		WithEntities(s.graph),
	)

	s.subject = s.entity(id.EntityKindLegalEntity)
	s.person = s.entity(id.EntityKindNaturalPerson)
}

func (s *RegistryServiceSuite) entity(kind id.EntityKind) id.EntityID {
	e, err := s.graph.UpsertEntity(s.ctx, graph.UpsertEntityCommand{ID: id.NewEntityID(), Kind: kind})
	s.Require().NoError(err)
	return e.ID
}

func (s *RegistryServiceSuite) own(owner, owned id.EntityID, pct float64) {
	_, err := s.graph.AddEdge(s.ctx, graph.AddEdgeCommand{OwnerID: owner, OwnedID: owned, Percentage: pct})
	s.Require().NoError(err)
}

func (s *RegistryServiceSuite) register() *models.Candidate {
	c, err := s.svc.Register(s.ctx, RegisterCommand{
		SubjectID:        s.subject,
		OwnerPersonID:    s.person,
		RelationshipType: models.RelationshipDirectOwnership,
	})
	s.Require().NoError(err)
	return c
}

func (s *RegistryServiceSuite) TestRegisterDiscoveryMethod() {
	for _, method := range []models.DiscoveryMethod{models.DiscoveryDocument, models.DiscoveryRegistry, models.DiscoveryScreening} {
		s.Run(string(method)+" is recorded", func() {
			c, err := s.svc.Register(s.ctx, RegisterCommand{
				SubjectID:        s.subject,
				OwnerPersonID:    s.entity(id.EntityKindNaturalPerson),
				RelationshipType: models.RelationshipDirectOwnership,
				DiscoveryMethod:  method,
			})
			s.Require().NoError(err)
			s.Equal(method, c.DiscoveryMethod)

			stored, err := s.svc.Get(s.ctx, c.ID)
			s.Require().NoError(err)
			s.Equal(method, stored.DiscoveryMethod)
		})
	}

	s.Run("inferred is reserved for discovery", func() {
		_, err := s.svc.Register(s.ctx, RegisterCommand{
			SubjectID:        s.subject,
			OwnerPersonID:    s.person,
			RelationshipType: models.RelationshipDirectOwnership,
			DiscoveryMethod:  models.DiscoveryInferred,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown method is invalid input", func() {
		_, err := s.svc.Register(s.ctx, RegisterCommand{
			SubjectID:        s.subject,
			OwnerPersonID:    s.person,
			RelationshipType: models.RelationshipDirectOwnership,
			DiscoveryMethod:  "RUMOUR",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("replacement keeps its own method", func() {
		old := s.register()
		next, err := s.svc.SupersedeCandidate(s.ctx, old.ID, RegisterCommand{
			RelationshipType: models.RelationshipIndirectOwnership,
			DiscoveryMethod:  models.DiscoveryRegistry,
		})
		s.Require().NoError(err)
		s.Equal(models.DiscoveryRegistry, next.DiscoveryMethod)
	})
}

func (s *RegistryServiceSuite) actions() []string {
	events, err := s.auditLog.ListBySubject(s.ctx, s.subject.String())
	s.Require().NoError(err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *RegistryServiceSuite) TestRegister() {
	c := s.register()
	s.Equal(models.StatusSuspected, c.Status)
	s.Equal(models.DiscoveryManual, c.DiscoveryMethod)
	s.Equal("analyst-1", c.CreatedBy)
	s.Equal([]string{string(audit.EventUBORegistered)}, s.actions())

	s.Run("duplicate active candidate", func() {
		_, err := s.svc.Register(s.ctx, RegisterCommand{
			SubjectID:        s.subject,
			OwnerPersonID:    s.person,
			RelationshipType: models.RelationshipDirectOwnership,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(c.ID.String(), dErrors.DetailsOf(err)["existing_id"])
		var dup *models.DuplicateCandidateError
		s.True(errors.As(err, &dup))
	})

	s.Run("another relationship type is a separate candidate", func() {
		_, err := s.svc.Register(s.ctx, RegisterCommand{
			SubjectID:        s.subject,
			OwnerPersonID:    s.person,
			RelationshipType: models.RelationshipControl,
			QualifyingReason: models.ReasonSeniorManagingOfficial,
		})
		s.NoError(err)
	})

	s.Run("owner must be a natural person", func() {
		company := s.entity(id.EntityKindLegalEntity)
		_, err := s.svc.Register(s.ctx, RegisterCommand{
			SubjectID:        s.subject,
			OwnerPersonID:    company,
			RelationshipType: models.RelationshipDirectOwnership,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("owner must exist", func() {
		_, err := s.svc.Register(s.ctx, RegisterCommand{
			SubjectID:        s.subject,
			OwnerPersonID:    id.NewEntityID(),
			RelationshipType: models.RelationshipDirectOwnership,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *RegistryServiceSuite) TestTransitions() {
	c := s.register()

	s.Run("allowed move", func() {
		res, err := s.svc.Transition(s.ctx, c.ID, TransitionCommand{Target: models.StatusPending})
		s.Require().NoError(err)
		s.True(res.Changed)
		s.Equal(models.StatusSuspected, res.From)
		s.Equal(models.StatusPending, res.Candidate.Status)
	})

	s.Run("self transition is a no-op", func() {
		res, err := s.svc.Transition(s.ctx, c.ID, TransitionCommand{Target: models.StatusPending})
		s.Require().NoError(err)
		s.False(res.Changed)
	})

	s.Run("disallowed move fails with from and to", func() {
		_, err := s.svc.Transition(s.ctx, c.ID, TransitionCommand{Target: models.StatusSuspected})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		var invalid *models.InvalidTransitionError
		s.Require().True(errors.As(err, &invalid))
		s.Equal(models.StatusPending, invalid.From)
		s.Equal(models.StatusSuspected, invalid.To)
	})

	s.Run("unknown candidate", func() {
		_, err := s.svc.Transition(s.ctx, id.NewUBOID(), TransitionCommand{Target: models.StatusPending})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *RegistryServiceSuite) TestProvenWithoutEvidenceIsAnOverride() {
	c := s.register()

	res, err := s.svc.Transition(s.ctx, c.ID, TransitionCommand{Target: models.StatusProven, Reason: "registry extract on file"})
	s.Require().NoError(err)
	s.True(res.Changed)
	s.Require().Len(res.Warnings, 1)
	s.Equal(models.WarningInsufficientEvidence, res.Warnings[0].Code)
	s.Equal([]string{"IDENTITY_PROOF", "OWNERSHIP_PROOF"}, res.Warnings[0].Missing)
	s.Require().NotNil(res.Candidate.ProofDate)
	s.Equal(s.t0, *res.Candidate.ProofDate)
	s.Contains(s.actions(), string(audit.EventUBOOverride))
}

func (s *RegistryServiceSuite) TestProvenWithEvidenceHasNoWarning() {
	c := s.register()
	for _, role := range []evidencemodels.Role{evidencemodels.RoleIdentityProof, evidencemodels.RoleOwnershipProof} {
		e, err := s.evidence.Attach(s.ctx, evidence.AttachCommand{UBOID: c.ID, Role: role, DocumentRef: "doc://" + string(role)})
		s.Require().NoError(err)
		_, err = s.evidence.Verify(s.ctx, e.ID)
		s.Require().NoError(err)
	}

	res, err := s.svc.Transition(s.ctx, c.ID, TransitionCommand{Target: models.StatusProven})
	s.Require().NoError(err)
	s.Empty(res.Warnings)
	s.NotContains(s.actions(), string(audit.EventUBOOverride))
}

func (s *RegistryServiceSuite) TestConcurrentTransitionsDoNotLoseUpdates() {
	c := s.register()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.svc.Transition(s.ctx, c.ID, TransitionCommand{Target: models.StatusPending})
			if err != nil {
				return
			}
			if res.Changed {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, changed)
	transitioned := 0
	for _, action := range s.actions() {
		if action == string(audit.EventUBOTransitioned) {
			transitioned++
		}
	}
	s.Equal(1, transitioned)
}

func (s *RegistryServiceSuite) TestConcurrentRegistrationsKeepOneActive() {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, dupes int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.Register(s.ctx, RegisterCommand{
				SubjectID:        s.subject,
				OwnerPersonID:    s.person,
				RelationshipType: models.RelationshipDirectOwnership,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if dErrors.HasCode(err, dErrors.CodeConflict) {
				dupes++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, ok)
	s.Equal(9, dupes)
}

func (s *RegistryServiceSuite) TestSupersedeAndClose() {
	c := s.register()
	pct := 40.0

	next, err := s.svc.SupersedeCandidate(s.ctx, c.ID, RegisterCommand{OwnershipPercentage: &pct})
	s.Require().NoError(err)
	s.Equal(c.OwnerPersonID, next.OwnerPersonID)
	s.Equal(c.RelationshipType, next.RelationshipType)
	s.NotEqual(c.ID, next.ID)

	old, err := s.svc.Get(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Require().NotNil(old.SupersededBy)
	s.Equal(next.ID, *old.SupersededBy)

	active, err := s.svc.List(s.ctx, s.subject, false)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(next.ID, active[0].ID)

	s.Run("a superseded candidate cannot move", func() {
		_, err := s.svc.Transition(s.ctx, c.ID, TransitionCommand{Target: models.StatusPending})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("close requires a reason", func() {
		_, err := s.svc.CloseCandidate(s.ctx, next.ID, " ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("close keeps the record", func() {
		closed, err := s.svc.CloseCandidate(s.ctx, next.ID, "no longer an owner")
		s.Require().NoError(err)
		s.NotNil(closed.ClosedAt)

		all, err := s.svc.List(s.ctx, s.subject, true)
		s.Require().NoError(err)
		s.Len(all, 2)
		_, err = s.svc.CloseCandidate(s.ctx, next.ID, "again")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Contains(s.actions(), string(audit.EventUBOSuperseded))
	s.Contains(s.actions(), string(audit.EventUBOClosed))
}

func (s *RegistryServiceSuite) TestDiscoverCandidates() {
	holding := s.entity(id.EntityKindLegalEntity)
	minority := s.entity(id.EntityKindNaturalPerson)
	s.own(s.person, s.subject, 40)
	s.own(holding, s.subject, 60)
	indirect := s.entity(id.EntityKindNaturalPerson)
	s.own(indirect, holding, 50)
	s.own(minority, holding, 10)

	res, err := s.svc.DiscoverCandidates(s.ctx, s.subject, 25)
	s.Require().NoError(err)
	s.Require().Len(res.Registered, 2)
	s.False(res.Partial)

	byPerson := map[id.EntityID]*models.Candidate{}
	for _, c := range res.Registered {
		s.Equal(models.DiscoveryInferred, c.DiscoveryMethod)
		s.Equal(models.StatusSuspected, c.Status)
		byPerson[c.OwnerPersonID] = c
	}
	s.Require().Contains(byPerson, s.person)
	s.Equal(models.RelationshipDirectOwnership, byPerson[s.person].RelationshipType)
	s.InDelta(40, *byPerson[s.person].OwnershipPercentage, 1e-9)
	s.Require().Contains(byPerson, indirect)
	s.Equal(models.RelationshipIndirectOwnership, byPerson[indirect].RelationshipType)
	s.InDelta(30, *byPerson[indirect].OwnershipPercentage, 1e-9)
	s.NotContains(byPerson, minority)

	s.Run("a second run leaves existing candidates alone", func() {
		again, err := s.svc.DiscoverCandidates(s.ctx, s.subject, 25)
		s.Require().NoError(err)
		s.Empty(again.Registered)
		s.Empty(again.Refreshed)
		s.Len(again.Unchanged, 2)
	})

	s.Run("threshold validation", func() {
		_, err := s.svc.DiscoverCandidates(s.ctx, s.subject, 150)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *RegistryServiceSuite) TestRefreshOwnership() {
	c := s.register()

	updated, err := s.svc.RefreshOwnership(s.ctx, c.ID, 55)
	s.Require().NoError(err)
	s.InDelta(55, *updated.OwnershipPercentage, 1e-9)
	s.Contains(s.actions(), string(audit.EventUBORefreshed))

	_, err = s.svc.RefreshOwnership(s.ctx, c.ID, 101)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *RegistryServiceSuite) TestRevisionMovesOnWrites() {
	before, err := s.svc.Revision(s.ctx)
	s.Require().NoError(err)
	c := s.register()
	_, err = s.svc.Transition(s.ctx, c.ID, TransitionCommand{Target: models.StatusPending})
	s.Require().NoError(err)
	after, err := s.svc.Revision(s.ctx)
	s.Require().NoError(err)
	s.Equal(before+2, after)
}
