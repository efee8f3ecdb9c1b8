// Package store persists evidence items.
package store

import (
	"context"
	"sort"
	"sync"

	"ownergraph/internal/evidence/models"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	items    map[id.EvidenceID]*models.Evidence
	byUBO    map[id.UBOID][]id.EvidenceID
	revision int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		items: make(map[id.EvidenceID]*models.Evidence),
		byUBO: make(map[id.UBOID][]id.EvidenceID),
	}
}

func (s *InMemory) Insert(_ context.Context, e *models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[e.ID]; exists {
		return sentinel.ErrConflict
	}
	s.items[e.ID] = clone(e)
	s.byUBO[e.UBOID] = append(s.byUBO[e.UBOID], e.ID)
	s.revision++
	return nil
}

func (s *InMemory) Find(_ context.Context, evidenceID id.EvidenceID) (*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[evidenceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(e), nil
}

// ListByUBO returns items in submission order.
func (s *InMemory) ListByUBO(_ context.Context, uboID id.UBOID) ([]*models.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Evidence, 0, len(s.byUBO[uboID]))
	for _, evidenceID := range s.byUBO[uboID] {
		out = append(out, clone(s.items[evidenceID]))
	}
	sortItems(out)
	return out, nil
}

// Execute validates and mutates one item under the store lock. On a
// validation failure the current item is returned with the error.
func (s *InMemory) Execute(_ context.Context, evidenceID id.EvidenceID, validate func(*models.Evidence) error, mutate func(*models.Evidence)) (*models.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.items[evidenceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := clone(stored)
	if err := validate(working); err != nil {
		return working, err
	}
	mutate(working)
	s.items[evidenceID] = working
	s.revision++
	return clone(working), nil
}

func (s *InMemory) Revision(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, nil
}

func clone(e *models.Evidence) *models.Evidence {
	c := *e
	if e.VerifiedAt != nil {
		t := *e.VerifiedAt
		c.VerifiedAt = &t
	}
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func sortItems(items []*models.Evidence) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].SubmittedAt.Equal(items[j].SubmittedAt) {
			return items[i].SubmittedAt.Before(items[j].SubmittedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}
