package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ownergraph/internal/graph/models"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	t0    time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *InMemorySuite) edge(owner, owned id.EntityID, pct float64, from time.Time, to *time.Time) *models.OwnershipEdge {
	e, err := models.NewOwnershipEdge(id.NewEdgeID(), models.Ownership{OwnerID: owner, OwnedID: owned, Percentage: pct}, from, to, "test", s.t0)
	s.Require().NoError(err)
	return e
}

func (s *InMemorySuite) TestEntities() {
	a, err := models.NewEntity(id.NewEntityID(), id.EntityKindLegalEntity, "Acme", "gb", s.t0)
	s.Require().NoError(err)
	s.Require().NoError(s.store.UpsertEntity(s.ctx, a))

	s.Run("find returns a copy", func() {
		found, err := s.store.FindEntity(s.ctx, a.ID)
		s.Require().NoError(err)
		found.DisplayName = "mutated"
		again, err := s.store.FindEntity(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal("Acme", again.DisplayName)
	})

	s.Run("unknown entity is not found", func() {
		_, err := s.store.FindEntity(s.ctx, id.NewEntityID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("batch lookup omits unknown ids", func() {
		missing := id.NewEntityID()
		found, err := s.store.FindEntities(s.ctx, []id.EntityID{a.ID, missing})
		s.Require().NoError(err)
		s.Len(found, 1)
		s.Contains(found, a.ID)
	})
}

func (s *InMemorySuite) TestInsertEdgeRejectsSecondOpenVersion() {
	owner, owned := id.NewEntityID(), id.NewEntityID()
	s.Require().NoError(s.store.InsertEdge(s.ctx, s.edge(owner, owned, 30, s.t0, nil)))

	err := s.store.InsertEdge(s.ctx, s.edge(owner, owned, 40, s.t0.AddDate(0, 1, 0), nil))
	s.ErrorIs(err, sentinel.ErrConflict)

	to := s.t0.AddDate(1, 0, 0)
	s.Require().NoError(s.store.InsertEdge(s.ctx, s.edge(owner, owned, 40, s.t0.AddDate(-1, 0, 0), &to)),
		"a closed version alongside the open one is allowed")
}

func (s *InMemorySuite) TestCloseEdge() {
	owner, owned := id.NewEntityID(), id.NewEntityID()
	e := s.edge(owner, owned, 30, s.t0, nil)
	s.Require().NoError(s.store.InsertEdge(s.ctx, e))

	next := id.NewEdgeID()
	e.ApplyClose(s.t0.AddDate(0, 6, 0), "sold", &next)
	s.Require().NoError(s.store.CloseEdge(s.ctx, e))

	stored, err := s.store.FindEdge(s.ctx, e.ID)
	s.Require().NoError(err)
	s.False(stored.IsOpen())
	s.Equal("sold", stored.CloseReason)
	s.Require().NotNil(stored.SupersededBy)
	s.Equal(next, *stored.SupersededBy)

	s.ErrorIs(s.store.CloseEdge(s.ctx, e), sentinel.ErrInvalidState)
}

func (s *InMemorySuite) TestSupersedeEdge() {
	owner, owned := id.NewEntityID(), id.NewEntityID()
	old := s.edge(owner, owned, 60, s.t0, nil)
	s.Require().NoError(s.store.InsertEdge(s.ctx, old))
	start, err := s.store.Revision(s.ctx)
	s.Require().NoError(err)

	at := s.t0.AddDate(0, 6, 0)
	next := s.edge(owner, owned, 45, at, nil)
	old.ApplyClose(at, "partial disposal", &next.ID)
	s.Require().NoError(s.store.SupersedeEdge(s.ctx, old, next))

	s.Run("one revision for both halves", func() {
		end, err := s.store.Revision(s.ctx)
		s.Require().NoError(err)
		s.Equal(start+1, end)
	})

	s.Run("old version closed and linked, replacement open", func() {
		history, err := s.store.EdgeHistory(s.ctx, old.Key())
		s.Require().NoError(err)
		s.Require().Len(history, 2)
		s.False(history[0].IsOpen())
		s.Require().NotNil(history[0].SupersededBy)
		s.Equal(next.ID, *history[0].SupersededBy)
		s.True(history[1].IsOpen())
	})

	s.Run("closed version cannot be superseded again", func() {
		again := s.edge(owner, owned, 10, at.AddDate(0, 1, 0), nil)
		stale := *old
		stale.ApplyClose(at.AddDate(0, 1, 0), "", &again.ID)
		s.ErrorIs(s.store.SupersedeEdge(s.ctx, &stale, again), sentinel.ErrInvalidState)

		edges, err := s.store.EdgesInto(s.ctx, owned, at.AddDate(1, 0, 0))
		s.Require().NoError(err)
		s.Require().Len(edges, 1, "a rejected supersession leaves nothing behind")
		s.Equal(next.ID, edges[0].ID)
	})

	s.Run("unknown edge is not found", func() {
		ghost := s.edge(owner, owned, 10, s.t0, nil)
		ghost.ApplyClose(at, "", nil)
		s.ErrorIs(s.store.SupersedeEdge(s.ctx, ghost, s.edge(owner, owned, 10, at, nil)), sentinel.ErrNotFound)
	})
}

func (s *InMemorySuite) TestEdgesIntoRespectsHalfOpenWindow() {
	owned := id.NewEntityID()
	ownerA, ownerB := id.NewEntityID(), id.NewEntityID()
	switchAt := s.t0.AddDate(0, 6, 0)
	s.Require().NoError(s.store.InsertEdge(s.ctx, s.edge(ownerA, owned, 50, s.t0, &switchAt)))
	s.Require().NoError(s.store.InsertEdge(s.ctx, s.edge(ownerB, owned, 50, switchAt, nil)))

	before, err := s.store.EdgesInto(s.ctx, owned, switchAt.Add(-time.Nanosecond))
	s.Require().NoError(err)
	s.Require().Len(before, 1)
	s.Equal(ownerA, before[0].Value.OwnerID)

	at, err := s.store.EdgesInto(s.ctx, owned, switchAt)
	s.Require().NoError(err)
	s.Require().Len(at, 1)
	s.Equal(ownerB, at[0].Value.OwnerID)

	none, err := s.store.EdgesInto(s.ctx, owned, s.t0.Add(-time.Hour))
	s.Require().NoError(err)
	s.Empty(none)

	out, err := s.store.EdgesOut(s.ctx, ownerB, switchAt)
	s.Require().NoError(err)
	s.Len(out, 1)
}

func (s *InMemorySuite) TestEdgeHistoryIsOrdered() {
	owner, owned := id.NewEntityID(), id.NewEntityID()
	mid := s.t0.AddDate(0, 3, 0)
	late := s.edge(owner, owned, 40, mid, nil)
	early := s.edge(owner, owned, 30, s.t0, &mid)
	s.Require().NoError(s.store.InsertEdge(s.ctx, late))
	s.Require().NoError(s.store.InsertEdge(s.ctx, early))
	s.Require().NoError(s.store.InsertEdge(s.ctx, s.edge(id.NewEntityID(), owned, 10, s.t0, nil)))

	history, err := s.store.EdgeHistory(s.ctx, models.EdgeKey{OwnerID: owner, OwnedID: owned})
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(early.ID, history[0].ID)
	s.Equal(late.ID, history[1].ID)

	all, err := s.store.EdgeHistoryInto(s.ctx, owned)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *InMemorySuite) TestControls() {
	controller, controlled := id.NewEntityID(), id.NewEntityID()
	rel, err := models.NewControlRelationship(id.NewControlID(), models.Control{
		ControllerID: controller,
		ControlledID: controlled,
		ControlType:  models.ControlBoardAppointment,
	}, s.t0, nil, "test", s.t0)
	s.Require().NoError(err)
	s.Require().NoError(s.store.InsertControl(s.ctx, rel))

	dup, err := models.NewControlRelationship(id.NewControlID(), rel.Value, s.t0.AddDate(0, 1, 0), nil, "test", s.t0)
	s.Require().NoError(err)
	s.ErrorIs(s.store.InsertControl(s.ctx, dup), sentinel.ErrConflict)

	active, err := s.store.ControlsOver(s.ctx, controlled, s.t0)
	s.Require().NoError(err)
	s.Len(active, 1)

	rel.ApplyClose(s.t0.AddDate(0, 2, 0), "resigned")
	s.Require().NoError(s.store.CloseControl(s.ctx, rel))

	active, err = s.store.ControlsOver(s.ctx, controlled, s.t0.AddDate(0, 2, 0))
	s.Require().NoError(err)
	s.Empty(active)

	history, err := s.store.ControlHistory(s.ctx, rel.Key())
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *InMemorySuite) TestRevisionAdvancesOnEveryWrite() {
	start, err := s.store.Revision(s.ctx)
	s.Require().NoError(err)

	e := s.edge(id.NewEntityID(), id.NewEntityID(), 10, s.t0, nil)
	s.Require().NoError(s.store.InsertEdge(s.ctx, e))
	e.ApplyClose(s.t0.AddDate(0, 1, 0), "", nil)
	s.Require().NoError(s.store.CloseEdge(s.ctx, e))

	end, err := s.store.Revision(s.ctx)
	s.Require().NoError(err)
	s.Equal(start+2, end)
}
