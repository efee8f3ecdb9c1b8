//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ownergraph/internal/resolver/cache"
	"ownergraph/internal/resolver/models"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.RedisCache
	ctx   context.Context
}

func TestRedisCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = cache.NewRedisCache(s.redis.Client, time.Minute)
	s.ctx = context.Background()
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.Reset(s.ctx))
}

func (s *RedisCacheSuite) TestRoundTrip() {
	subject, p := id.NewEntityID(), id.NewEntityID()
	key := cache.Key{SubjectID: subject, Revision: 7, AsOf: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), MaxDepth: 10, MaxVisits: 100}

	_, ok, err := s.cache.Get(s.ctx, key)
	s.Require().NoError(err)
	s.False(ok)

	result := &models.Result{
		SubjectID:     subject,
		AsOf:          key.AsOf,
		Chains:        []models.Chain{models.NewChain([]id.EntityID{subject, p}, []float64{40}, true)},
		GraphRevision: 7,
	}
	s.Require().NoError(s.cache.Set(s.ctx, key, result))

	got, ok, err := s.cache.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(result.Chains, got.Chains)
	s.True(result.AsOf.Equal(got.AsOf))

	s.Run("a newer revision misses", func() {
		next := key
		next.Revision = 8
		_, ok, err := s.cache.Get(s.ctx, next)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("entries carry the ttl", func() {
		ttl, err := s.redis.Client.TTL(s.ctx, key.String()).Result()
		s.Require().NoError(err)
		s.Greater(ttl, time.Duration(0))
		s.LessOrEqual(ttl, time.Minute)
	})
}
