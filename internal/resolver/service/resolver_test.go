package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	graphmodels "ownergraph/internal/graph/models"
	"ownergraph/internal/graph/store"
	"ownergraph/internal/resolver/cache"
	"ownergraph/internal/resolver/models"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/requestcontext"
)

type ResolverSuite struct {
	suite.Suite
	graph *store.InMemory
	cache *cache.InMemory
	svc   *Resolver
	ctx   context.Context
	t0    time.Time
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.graph = store.NewInMemory()
	s.cache = cache.NewInMemory()
	s.svc = New(s.graph, Policy{MaxDepth: 10, MaxVisits: 1000}, WithCache(s.cache))
	s.t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.t0.Add(24*time.Hour))
}

func (s *ResolverSuite) entity(kind id.EntityKind) id.EntityID {
	entity, err := graphmodels.NewEntity(id.NewEntityID(), kind, "", "", s.t0)
	s.Require().NoError(err)
	s.Require().NoError(s.graph.UpsertEntity(s.ctx, entity))
	return entity.ID
}

func (s *ResolverSuite) company() id.EntityID { return s.entity(id.EntityKindLegalEntity) }
func (s *ResolverSuite) person() id.EntityID  { return s.entity(id.EntityKindNaturalPerson) }

func (s *ResolverSuite) own(owner, owned id.EntityID, pct float64) {
	edge, err := graphmodels.NewOwnershipEdge(id.NewEdgeID(), graphmodels.Ownership{
		OwnerID:          owner,
		OwnedID:          owned,
		Percentage:       pct,
		RelationshipType: graphmodels.RelationshipDirect,
	}, s.t0, nil, "test", s.t0)
	s.Require().NoError(err)
	s.Require().NoError(s.graph.InsertEdge(s.ctx, edge))
}

func (s *ResolverSuite) chainTo(result *models.Result, terminal id.EntityID) []models.Chain {
	var out []models.Chain
	for _, c := range result.Chains {
		if c.Terminal() == terminal {
			out = append(out, c)
		}
	}
	return out
}

func (s *ResolverSuite) TestTwoLevelChain() {
	subject, holdco, p := s.company(), s.company(), s.person()
	s.own(holdco, subject, 60)
	s.own(p, holdco, 50)

	result, err := s.svc.Resolve(s.ctx, subject, Options{})
	s.Require().NoError(err)

	s.Require().Len(result.Chains, 1)
	chain := result.Chains[0]
	s.Equal([]id.EntityID{subject, holdco, p}, chain.Path)
	s.Equal([]float64{60, 50}, chain.Percentages)
	s.InDelta(30, chain.EffectiveOwnership, 1e-9)
	s.Equal(2, chain.Depth)
	s.True(chain.IsComplete)
	s.Empty(result.DeadEnds)
	s.Empty(result.Warnings)
	s.False(result.Partial)
}

func (s *ResolverSuite) TestMixedStructureWithDeadEnd() {
	subject, holdco, opaque := s.company(), s.company(), s.company()
	p1, p2 := s.person(), s.person()
	s.own(p1, subject, 70)
	s.own(holdco, subject, 30)
	s.own(p2, holdco, 50)
	s.own(opaque, holdco, 50)

	result, err := s.svc.Resolve(s.ctx, subject, Options{})
	s.Require().NoError(err)

	s.Require().Len(result.Chains, 2)
	s.InDelta(70, s.chainTo(result, p1)[0].EffectiveOwnership, 1e-9)
	s.InDelta(15, s.chainTo(result, p2)[0].EffectiveOwnership, 1e-9)
	s.InDelta(85, result.TotalIdentified(), 1e-9)

	s.Require().Len(result.DeadEnds, 1)
	deadEnd := result.DeadEnds[0]
	s.Equal(opaque, deadEnd.Terminal())
	s.False(deadEnd.IsComplete)
	s.InDelta(15, deadEnd.EffectiveOwnership, 1e-9)

	owners := result.Owners()
	s.Require().Len(owners, 2)
	s.Equal(p1, owners[0].PersonID)
	s.Len(result.OwnersAbove(25), 1)
}

func (s *ResolverSuite) TestCycleAbandonsOnlyThatPath() {
	subject, a, b, p := s.company(), s.company(), s.company(), s.person()
	s.own(a, subject, 100)
	s.own(b, a, 50)
	s.own(a, b, 50)
	s.own(p, b, 50)

	result, err := s.svc.Resolve(s.ctx, subject, Options{})
	s.Require().NoError(err)

	s.Require().Len(result.Chains, 1)
	s.InDelta(25, result.Chains[0].EffectiveOwnership, 1e-9)
	s.True(result.HasWarning(models.WarningCycleDetected))

	var cycle models.Warning
	for _, w := range result.Warnings {
		if w.Code == models.WarningCycleDetected {
			cycle = w
		}
	}
	s.Equal([]id.EntityID{subject, a, b, a}, cycle.Path)
	s.False(result.Partial)
}

func (s *ResolverSuite) TestDiamondIsNotACycle() {
	subject, a, b, c, p := s.company(), s.company(), s.company(), s.company(), s.person()
	s.own(a, subject, 50)
	s.own(b, subject, 50)
	s.own(c, a, 100)
	s.own(c, b, 100)
	s.own(p, c, 100)

	result, err := s.svc.Resolve(s.ctx, subject, Options{})
	s.Require().NoError(err)

	s.Len(s.chainTo(result, p), 2)
	s.False(result.HasWarning(models.WarningCycleDetected))

	owners := result.Owners()
	s.Require().Len(owners, 1)
	s.InDelta(100, owners[0].TotalOwnership, 1e-9)
	s.Equal(2, owners[0].ChainCount)
}

func (s *ResolverSuite) TestDepthLimitTruncates() {
	subject, e1, e2, e3, p := s.company(), s.company(), s.company(), s.company(), s.person()
	s.own(e1, subject, 100)
	s.own(e2, e1, 100)
	s.own(e3, e2, 100)
	s.own(p, e3, 100)

	result, err := s.svc.Resolve(s.ctx, subject, Options{MaxDepth: 2})
	s.Require().NoError(err)

	s.Empty(result.Chains)
	s.Require().Len(result.Truncated, 1)
	s.Equal([]id.EntityID{subject, e1, e2}, result.Truncated[0].Path)
	s.False(result.Truncated[0].IsComplete)
	s.True(result.HasWarning(models.WarningDepthExceeded))
	s.False(result.Partial)

	s.Run("the default depth reaches the person", func() {
		full, err := s.svc.Resolve(s.ctx, subject, Options{})
		s.Require().NoError(err)
		s.Len(full.Chains, 1)
		s.Empty(full.Truncated)
	})
}

func (s *ResolverSuite) TestVisitBudgetMarksPartial() {
	subject := s.company()
	for range 10 {
		s.own(s.company(), subject, 5)
	}

	result, err := s.svc.Resolve(s.ctx, subject, Options{MaxVisits: 3})
	s.Require().NoError(err)

	s.True(result.Partial)
	s.True(result.HasWarning(models.WarningBudgetExhausted))
	s.Equal(3, result.NodesVisited)
	s.Len(result.DeadEnds, 2)
}

func (s *ResolverSuite) TestCancelledContextMarksPartial() {
	subject, holdco := s.company(), s.company()
	s.own(holdco, subject, 100)

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	result, err := s.svc.Resolve(ctx, subject, Options{})
	s.Require().NoError(err)
	s.True(result.Partial)
	s.Zero(result.NodesVisited)
}

func (s *ResolverSuite) TestUnknownOwnerIsADeadEnd() {
	subject := s.company()
	ghost := id.NewEntityID()
	s.own(ghost, subject, 40)

	result, err := s.svc.Resolve(s.ctx, subject, Options{})
	s.Require().NoError(err)

	s.Empty(result.Chains)
	s.Require().Len(result.DeadEnds, 1)
	s.Equal(ghost, result.DeadEnds[0].Terminal())
}

func (s *ResolverSuite) TestSubjectWithoutOwners() {
	subject := s.company()

	result, err := s.svc.Resolve(s.ctx, subject, Options{})
	s.Require().NoError(err)

	s.Empty(result.Chains)
	s.Empty(result.DeadEnds)
	s.Equal([]id.EntityID{subject}, result.Visited)
	s.Zero(result.TotalIdentified())
}

func (s *ResolverSuite) TestAsOfSeesHistoricalEdges() {
	subject, p := s.company(), s.person()
	edge, err := graphmodels.NewOwnershipEdge(id.NewEdgeID(), graphmodels.Ownership{
		OwnerID: p, OwnedID: subject, Percentage: 40, RelationshipType: graphmodels.RelationshipDirect,
	}, s.t0, nil, "test", s.t0)
	s.Require().NoError(err)
	s.Require().NoError(s.graph.InsertEdge(s.ctx, edge))
	edge.ApplyClose(s.t0.Add(time.Hour), "sold", nil)
	s.Require().NoError(s.graph.CloseEdge(s.ctx, edge))

	before := s.t0.Add(30 * time.Minute)
	result, err := s.svc.Resolve(s.ctx, subject, Options{AsOf: &before})
	s.Require().NoError(err)
	s.Len(result.Chains, 1)

	now, err := s.svc.Resolve(s.ctx, subject, Options{})
	s.Require().NoError(err)
	s.Empty(now.Chains)
}

func (s *ResolverSuite) TestCaching() {
	subject, p := s.company(), s.person()
	s.own(p, subject, 100)
	asOf := s.t0.Add(time.Hour)

	s.Run("explicit as_of results are cached per revision", func() {
		first, err := s.svc.Resolve(s.ctx, subject, Options{AsOf: &asOf})
		s.Require().NoError(err)
		s.Equal(1, s.cache.Len())

		second, err := s.svc.Resolve(s.ctx, subject, Options{AsOf: &asOf})
		s.Require().NoError(err)
		s.Equal(first.Chains, second.Chains)
		s.Equal(first.GraphRevision, second.GraphRevision)
		s.Equal(1, s.cache.Len())
	})

	s.Run("a graph write makes earlier entries unreachable", func() {
		s.own(s.person(), subject, 0)
		result, err := s.svc.Resolve(s.ctx, subject, Options{AsOf: &asOf})
		s.Require().NoError(err)
		s.Len(result.Chains, 2)
		s.Equal(2, s.cache.Len())
	})

	s.Run("request-time resolutions are not cached", func() {
		_, err := s.svc.Resolve(s.ctx, subject, Options{})
		s.Require().NoError(err)
		s.Equal(2, s.cache.Len())
	})

	s.Run("partial results are not cached", func() {
		_, err := s.svc.Resolve(s.ctx, subject, Options{AsOf: &asOf, MaxVisits: 1})
		s.Require().NoError(err)
		s.Equal(2, s.cache.Len())
	})
}

func (s *ResolverSuite) TestValidation() {
	s.Run("nil subject", func() {
		_, err := s.svc.Resolve(s.ctx, id.EntityID{}, Options{})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
	s.Run("depth above the cap", func() {
		_, err := s.svc.Resolve(s.ctx, id.NewEntityID(), Options{MaxDepth: MaxDepthLimit + 1})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("negative visit budget", func() {
		_, err := s.svc.Resolve(s.ctx, id.NewEntityID(), Options{MaxVisits: -1})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

type brokenGraph struct {
	*store.InMemory
}

func (brokenGraph) EdgesInto(context.Context, id.EntityID, time.Time) ([]*graphmodels.OwnershipEdge, error) {
	return nil, errors.New("connection reset")
}

func (s *ResolverSuite) TestStoreFailureIsAnError() {
	svc := New(brokenGraph{s.graph}, Policy{})
	_, err := svc.Resolve(s.ctx, s.company(), Options{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ResolverSuite) TestResolveMany() {
	var subjects []id.EntityID
	for range 5 {
		subject := s.company()
		s.own(s.person(), subject, 51)
		subjects = append(subjects, subject)
	}

	results, err := s.svc.ResolveMany(s.ctx, subjects, Options{})
	s.Require().NoError(err)
	s.Require().Len(results, 5)
	for _, subject := range subjects {
		s.Len(results[subject].Chains, 1)
	}
}
