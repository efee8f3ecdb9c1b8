package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ownergraph/internal/graph/models"
	"ownergraph/internal/graph/store"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/audit/publishers/compliance"
	auditmemory "ownergraph/pkg/platform/audit/store/memory"
	"ownergraph/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store    *store.InMemory
	auditLog *auditmemory.InMemoryStore
	svc      *Service
	ctx      context.Context
	t0       time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.auditLog = auditmemory.NewInMemoryStore()
	s.svc = New(s.store, WithAuditPublisher(compliance.New(s.auditLog)))
	s.t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.t0)
	s.ctx = requestcontext.WithActorID(s.ctx, "analyst-1")
}

func (s *ServiceSuite) addEdge(owner, owned id.EntityID, pct float64) *models.OwnershipEdge {
	edge, err := s.svc.AddEdge(s.ctx, AddEdgeCommand{OwnerID: owner, OwnedID: owned, Percentage: pct})
	s.Require().NoError(err)
	return edge
}

func (s *ServiceSuite) TestUpsertEntity() {
	entityID := id.NewEntityID()

	s.Run("creates and preserves created_at on update", func() {
		first, err := s.svc.UpsertEntity(s.ctx, UpsertEntityCommand{ID: entityID, Kind: id.EntityKindLegalEntity, DisplayName: "Acme"})
		s.Require().NoError(err)

		later := requestcontext.WithTime(s.ctx, s.t0.Add(time.Hour))
		second, err := s.svc.UpsertEntity(later, UpsertEntityCommand{ID: entityID, Kind: id.EntityKindLegalEntity, DisplayName: "Acme Ltd"})
		s.Require().NoError(err)
		s.Equal(first.CreatedAt, second.CreatedAt)
		s.Equal(s.t0.Add(time.Hour), second.UpdatedAt)
	})

	s.Run("invalid kind is a validation error", func() {
		_, err := s.svc.UpsertEntity(s.ctx, UpsertEntityCommand{ID: id.NewEntityID(), Kind: "ROBOT"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown entity is not found", func() {
		_, err := s.svc.GetEntity(s.ctx, id.NewEntityID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestAddEdge() {
	s.Run("stamps actor, defaults valid_from to now and audits", func() {
		owner, owned := id.NewEntityID(), id.NewEntityID()
		edge := s.addEdge(owner, owned, 40)
		s.Equal("analyst-1", edge.CreatedBy)
		s.Equal(s.t0, edge.ValidFrom)

		events, err := s.auditLog.ListBySubject(s.ctx, owned.String())
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventEdgeAdded), events[0].Action)
		s.Equal("analyst-1", events[0].ActorID)
	})

	s.Run("self ownership is rejected with the entity id", func() {
		entity := id.NewEntityID()
		_, err := s.svc.AddEdge(s.ctx, AddEdgeCommand{OwnerID: entity, OwnedID: entity, Percentage: 10})
		var selfErr *models.SelfOwnershipError
		s.Require().True(errors.As(err, &selfErr))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("invalid percentage is rejected", func() {
		_, err := s.svc.AddEdge(s.ctx, AddEdgeCommand{OwnerID: id.NewEntityID(), OwnedID: id.NewEntityID(), Percentage: 120})
		var pctErr *models.InvalidPercentageError
		s.True(errors.As(err, &pctErr))
	})

	s.Run("second open version reports the existing edge", func() {
		owner, owned := id.NewEntityID(), id.NewEntityID()
		existing := s.addEdge(owner, owned, 40)
		_, err := s.svc.AddEdge(s.ctx, AddEdgeCommand{OwnerID: owner, OwnedID: owned, Percentage: 45})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(existing.ID.String(), dErrors.DetailsOf(err)["existing_id"])
	})

	s.Run("back-dated closed version alongside an open one is accepted", func() {
		owner, owned := id.NewEntityID(), id.NewEntityID()
		s.addEdge(owner, owned, 40)
		to := s.t0.AddDate(0, 1, 0)
		_, err := s.svc.AddEdge(s.ctx, AddEdgeCommand{
			OwnerID: owner, OwnedID: owned, Percentage: 30,
			ValidFrom: s.t0.AddDate(-1, 0, 0), ValidTo: &to,
		})
		s.NoError(err)
	})
}

func (s *ServiceSuite) TestConcurrentAddEdgeLeavesOneOpenVersion() {
	owner, owned := id.NewEntityID(), id.NewEntityID()
	const goroutines = 25

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.AddEdge(s.ctx, AddEdgeCommand{OwnerID: owner, OwnedID: owned, Percentage: 10})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	}
	s.Equal(1, successes)

	history, err := s.svc.EdgeHistory(s.ctx, models.EdgeKey{OwnerID: owner, OwnedID: owned})
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *ServiceSuite) TestCloseEdge() {
	owner, owned := id.NewEntityID(), id.NewEntityID()
	edge := s.addEdge(owner, owned, 50)

	s.Run("close at valid_from is rejected", func() {
		_, err := s.svc.CloseEdge(s.ctx, edge.ID, CloseCommand{At: s.t0})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	closeAt := s.t0.AddDate(0, 2, 0)
	closed, err := s.svc.CloseEdge(s.ctx, edge.ID, CloseCommand{At: closeAt, Reason: "disposed"})
	s.Require().NoError(err)
	s.Require().NotNil(closed.ValidTo)
	s.Equal(closeAt, *closed.ValidTo)

	s.Run("edge no longer valid at close instant", func() {
		edges, err := s.svc.EdgesInto(s.ctx, owned, closeAt)
		s.Require().NoError(err)
		s.Empty(edges)
	})

	s.Run("closing twice is an invalid state", func() {
		_, err := s.svc.CloseEdge(s.ctx, edge.ID, CloseCommand{At: closeAt.AddDate(0, 1, 0)})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown edge is not found", func() {
		_, err := s.svc.CloseEdge(s.ctx, id.NewEdgeID(), CloseCommand{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestSupersedeEdgePreservesHistory() {
	owner, owned := id.NewEntityID(), id.NewEntityID()
	original := s.addEdge(owner, owned, 60)
	effective := s.t0.AddDate(0, 6, 0)

	replacement, err := s.svc.SupersedeEdge(s.ctx, original.ID, SupersedeEdgeCommand{
		Percentage:  45,
		EffectiveAt: effective,
		Reason:      "partial disposal",
	})
	s.Require().NoError(err)
	s.Equal(effective, replacement.ValidFrom)
	s.Equal(models.RelationshipDirect, replacement.Value.RelationshipType)

	history, err := s.svc.EdgeHistory(s.ctx, original.Key())
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(original.ID, history[0].ID)
	s.Require().NotNil(history[0].SupersededBy)
	s.Equal(replacement.ID, *history[0].SupersededBy)
	s.Equal(60.0, history[0].Value.Percentage, "the old version is never edited")

	before, err := s.svc.EdgesInto(s.ctx, owned, effective.Add(-time.Second))
	s.Require().NoError(err)
	s.Require().Len(before, 1)
	s.Equal(60.0, before[0].Value.Percentage)

	after, err := s.svc.EdgesInto(s.ctx, owned, effective)
	s.Require().NoError(err)
	s.Require().Len(after, 1)
	s.Equal(45.0, after[0].Value.Percentage)

	events, err := s.auditLog.ListBySubject(s.ctx, owned.String())
	s.Require().NoError(err)
	s.Equal(string(audit.EventEdgeSuperseded), events[len(events)-1].Action)

	s.Run("superseding a closed version fails", func() {
		_, err := s.svc.SupersedeEdge(s.ctx, original.ID, SupersedeEdgeCommand{Percentage: 10, EffectiveAt: effective.AddDate(0, 1, 0)})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestSupersedeEdgeIsNeverHalfVisible() {
	owner, owned := id.NewEntityID(), id.NewEntityID()
	current := s.addEdge(owner, owned, 50)
	asOf := s.t0.AddDate(1, 0, 0)
	const rounds = 50

	done := make(chan struct{})
	writeErrs := make(chan error, rounds)
	go func() {
		defer close(done)
		for i := 1; i <= rounds; i++ {
			next, err := s.svc.SupersedeEdge(s.ctx, current.ID, SupersedeEdgeCommand{
				Percentage:  float64(50 + (i%2)*10),
				EffectiveAt: s.t0.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				writeErrs <- err
				return
			}
			current = next
		}
	}()

	var reads, torn int
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		edges, err := s.svc.EdgesInto(s.ctx, owned, asOf)
		s.Require().NoError(err)
		reads++
		if len(edges) != 1 {
			torn++
		}
	}
	close(writeErrs)
	for err := range writeErrs {
		s.Require().NoError(err)
	}

	s.Positive(reads)
	s.Zero(torn, "readers must see the old version or its replacement, never neither")

	history, err := s.svc.EdgeHistory(s.ctx, models.EdgeKey{OwnerID: owner, OwnedID: owned})
	s.Require().NoError(err)
	s.Len(history, rounds+1)
}

func (s *ServiceSuite) TestControls() {
	controller, controlled := id.NewEntityID(), id.NewEntityID()
	rel, err := s.svc.AddControl(s.ctx, AddControlCommand{
		ControllerID: controller,
		ControlledID: controlled,
		ControlType:  models.ControlSeniorManagement,
	})
	s.Require().NoError(err)

	_, err = s.svc.AddControl(s.ctx, AddControlCommand{
		ControllerID: controller,
		ControlledID: controlled,
		ControlType:  models.ControlSeniorManagement,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	active, err := s.svc.ControlsOver(s.ctx, controlled, s.t0)
	s.Require().NoError(err)
	s.Len(active, 1)

	_, err = s.svc.CloseControl(s.ctx, rel.ID, CloseCommand{At: s.t0.AddDate(0, 1, 0), Reason: "resigned"})
	s.Require().NoError(err)

	active, err = s.svc.ControlsOver(s.ctx, controlled, s.t0.AddDate(0, 1, 0))
	s.Require().NoError(err)
	s.Empty(active)
}

func (s *ServiceSuite) TestAuditFailureAbortsWrite() {
	svc := New(s.store, WithAuditPublisher(failingPublisher{}))
	owned := id.NewEntityID()
	before, err := s.store.Revision(s.ctx)
	s.Require().NoError(err)

	_, err = svc.AddEdge(s.ctx, AddEdgeCommand{OwnerID: id.NewEntityID(), OwnedID: owned, Percentage: 10})
	s.Require().Error(err)

	// The in-memory store has no rollback, so the insert stays; a Postgres
	// transaction would undo it. What matters is the caller sees the failure.
	after, err := s.store.Revision(s.ctx)
	s.Require().NoError(err)
	s.Equal(before+1, after)
}

type failingPublisher struct{}

func (failingPublisher) Emit(context.Context, audit.ComplianceEvent) error {
	return errors.New("audit store down")
}
