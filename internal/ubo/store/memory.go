// Package store persists UBO candidates.
package store

import (
	"context"
	"sort"
	"sync"

	"ownergraph/internal/ubo/models"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/sentinel"
)

// InMemory keeps candidates in maps guarded by one lock. The active-key index
// mirrors the partial unique index of the Postgres schema.
type InMemory struct {
	mu        sync.RWMutex
	items     map[id.UBOID]*models.Candidate
	bySubject map[id.EntityID][]id.UBOID
	active    map[models.Key]id.UBOID
	revision  int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		items:     make(map[id.UBOID]*models.Candidate),
		bySubject: make(map[id.EntityID][]id.UBOID),
		active:    make(map[models.Key]id.UBOID),
	}
}

func (s *InMemory) Insert(_ context.Context, c *models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.ID]; exists {
		return sentinel.ErrConflict
	}
	if c.IsActive() {
		if _, taken := s.active[c.Key()]; taken {
			return sentinel.ErrConflict
		}
		s.active[c.Key()] = c.ID
	}
	s.items[c.ID] = clone(c)
	s.bySubject[c.SubjectID] = append(s.bySubject[c.SubjectID], c.ID)
	s.revision++
	return nil
}

func (s *InMemory) Find(_ context.Context, uboID id.UBOID) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[uboID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

// FindActive returns the active candidate for key.
func (s *InMemory) FindActive(_ context.Context, key models.Key) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uboID, ok := s.active[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.items[uboID]), nil
}

// ListBySubject returns the subject's candidates in creation order.
func (s *InMemory) ListBySubject(_ context.Context, subject id.EntityID, includeInactive bool) ([]*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Candidate, 0, len(s.bySubject[subject]))
	for _, uboID := range s.bySubject[subject] {
		c := s.items[uboID]
		if !includeInactive && !c.IsActive() {
			continue
		}
		out = append(out, clone(c))
	}
	sortCandidates(out)
	return out, nil
}

// Subjects lists every subject with at least one active candidate.
func (s *InMemory) Subjects(_ context.Context) ([]id.EntityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[id.EntityID]bool)
	out := []id.EntityID{}
	for key := range s.active {
		if !seen[key.SubjectID] {
			seen[key.SubjectID] = true
			out = append(out, key.SubjectID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *InMemory) SubjectOf(_ context.Context, uboID id.UBOID) (id.EntityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[uboID]
	if !ok {
		return id.EntityID{}, sentinel.ErrNotFound
	}
	return c.SubjectID, nil
}

// Execute validates and mutates one candidate under the store lock and keeps
// the active-key index in step. On a validation failure the current candidate
// is returned with the error.
func (s *InMemory) Execute(_ context.Context, uboID id.UBOID, validate func(*models.Candidate) error, mutate func(*models.Candidate)) (*models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.items[uboID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := clone(stored)
	if err := validate(working); err != nil {
		return working, err
	}
	mutate(working)
	if stored.IsActive() && !working.IsActive() {
		delete(s.active, stored.Key())
	}
	s.items[uboID] = working
	s.revision++
	return clone(working), nil
}

func (s *InMemory) Revision(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, nil
}

func clone(c *models.Candidate) *models.Candidate {
	out := *c
	out.OwnershipPercentage = clonePtr(c.OwnershipPercentage)
	out.ProofDate = clonePtr(c.ProofDate)
	out.VerifiedAt = clonePtr(c.VerifiedAt)
	out.ClosedAt = clonePtr(c.ClosedAt)
	out.SupersededBy = clonePtr(c.SupersededBy)
	return &out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func sortCandidates(items []*models.Candidate) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}
