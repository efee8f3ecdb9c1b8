package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ownergraph/internal/ubo/models"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store   *InMemory
	ctx     context.Context
	t0      time.Time
	subject id.EntityID
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.subject = id.NewEntityID()
}

func (s *InMemorySuite) candidate(person id.EntityID, at time.Time) *models.Candidate {
	c, err := models.NewCandidate(id.NewUBOID(), models.CandidateSpec{
		SubjectID:        s.subject,
		OwnerPersonID:    person,
		RelationshipType: models.RelationshipDirectOwnership,
	}, "a", at)
	s.Require().NoError(err)
	return c
}

func (s *InMemorySuite) TestActiveKeyIsUnique() {
	person := id.NewEntityID()
	first := s.candidate(person, s.t0)
	s.Require().NoError(s.store.Insert(s.ctx, first))

	err := s.store.Insert(s.ctx, s.candidate(person, s.t0))
	s.True(errors.Is(err, sentinel.ErrConflict))

	found, err := s.store.FindActive(s.ctx, first.Key())
	s.Require().NoError(err)
	s.Equal(first.ID, found.ID)
}

func (s *InMemorySuite) TestClosingFreesTheKey() {
	person := id.NewEntityID()
	first := s.candidate(person, s.t0)
	s.Require().NoError(s.store.Insert(s.ctx, first))

	_, err := s.store.Execute(s.ctx, first.ID,
		func(c *models.Candidate) error { return c.CanEnd() },
		func(c *models.Candidate) { c.ApplyClose("exited", s.t0) })
	s.Require().NoError(err)

	_, err = s.store.FindActive(s.ctx, first.Key())
	s.True(errors.Is(err, sentinel.ErrNotFound))

	second := s.candidate(person, s.t0.Add(time.Hour))
	s.Require().NoError(s.store.Insert(s.ctx, second))

	active, err := s.store.ListBySubject(s.ctx, s.subject, false)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(second.ID, active[0].ID)

	all, err := s.store.ListBySubject(s.ctx, s.subject, true)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(first.ID, all[0].ID)
}

func (s *InMemorySuite) TestExecuteValidationFailureLeavesStateUntouched() {
	c := s.candidate(id.NewEntityID(), s.t0)
	s.Require().NoError(s.store.Insert(s.ctx, c))
	before, _ := s.store.Revision(s.ctx)

	_, err := s.store.Execute(s.ctx, c.ID,
		func(c *models.Candidate) error { return c.CanTransitionTo(models.StatusVerified) },
		func(c *models.Candidate) { c.ApplyTransition(models.StatusVerified, s.t0) })
	s.Error(err)

	after, _ := s.store.Revision(s.ctx)
	s.Equal(before, after)
	stored, err := s.store.Find(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSuspected, stored.Status)
}

func (s *InMemorySuite) TestSubjectLookups() {
	c := s.candidate(id.NewEntityID(), s.t0)
	s.Require().NoError(s.store.Insert(s.ctx, c))

	subject, err := s.store.SubjectOf(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(s.subject, subject)

	_, err = s.store.SubjectOf(s.ctx, id.NewUBOID())
	s.True(errors.Is(err, sentinel.ErrNotFound))

	subjects, err := s.store.Subjects(s.ctx)
	s.Require().NoError(err)
	s.Equal([]id.EntityID{s.subject}, subjects)
}

func (s *InMemorySuite) TestReturnedCopiesAreDetached() {
	c := s.candidate(id.NewEntityID(), s.t0)
	s.Require().NoError(s.store.Insert(s.ctx, c))

	found, err := s.store.Find(s.ctx, c.ID)
	s.Require().NoError(err)
	found.Status = models.StatusVerified

	again, err := s.store.Find(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSuspected, again.Status)
}
