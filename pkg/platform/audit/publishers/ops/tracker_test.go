package ops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/audit/store/memory"
)

type failingStore struct {
	calls int
}

func (f *failingStore) Append(context.Context, audit.Event) error {
	f.calls++
	return errors.New("store down")
}

func (f *failingStore) ListBySubject(context.Context, string) ([]audit.Event, error) {
	return nil, nil
}

func (f *failingStore) ListRecent(context.Context, int) ([]audit.Event, error) { return nil, nil }

type TrackerSuite struct {
	suite.Suite
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) TestTrackPersistsEvent() {
	store := memory.NewInMemoryStore()
	tracker := New(store)

	tracker.Track(context.Background(), audit.OpsEvent{
		SubjectID: "cbu-1",
		Action:    audit.EventChainsResolved,
	})

	events, err := store.ListBySubject(context.Background(), "cbu-1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.CategoryOperations, events[0].Category)
	s.False(events[0].Timestamp.IsZero())
}

func (s *TrackerSuite) TestTrackHonoursZeroSampleRate() {
	store := memory.NewInMemoryStore()
	sampler := NewSampler(1.0)
	sampler.SetRate(audit.EventCompletenessChecked, 0)
	tracker := New(store, WithSampler(sampler))

	tracker.Track(context.Background(), audit.OpsEvent{SubjectID: "cbu-1", Action: audit.EventCompletenessChecked})
	tracker.Track(context.Background(), audit.OpsEvent{SubjectID: "cbu-1", Action: audit.EventChainsResolved})

	events, err := store.ListBySubject(context.Background(), "cbu-1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventChainsResolved), events[0].Action)
}

func (s *TrackerSuite) TestBreakerStopsAttemptsAfterThreshold() {
	store := &failingStore{}
	tracker := New(store, WithCircuitBreaker(NewCircuitBreaker(2, time.Hour)))

	for range 5 {
		tracker.Track(context.Background(), audit.OpsEvent{SubjectID: "x", Action: audit.EventChainsResolved})
	}

	s.Equal(2, store.calls)
}

func (s *TrackerSuite) TestBreakerHalfOpensAfterCooldown() {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	s.True(cb.IsOpen())
	s.False(cb.Allow())

	now = now.Add(2 * time.Minute)
	s.True(cb.Allow())
	s.False(cb.IsOpen())

	cb.RecordFailure()
	s.True(cb.IsOpen(), "a failure while half-open reopens the breaker")
}
