// Package store persists the ownership graph. InMemory backs tests and
// single-process deployments; PostgresStore backs everything else.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"ownergraph/internal/graph/models"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/sentinel"
)

// InMemory keeps every version ever written. Reads return copies.
type InMemory struct {
	mu       sync.RWMutex
	entities map[id.EntityID]*models.Entity
	edges    map[id.EdgeID]*models.OwnershipEdge
	into     map[id.EntityID][]id.EdgeID
	outOf    map[id.EntityID][]id.EdgeID
	controls map[id.ControlID]*models.ControlRelationship
	ctrlInto map[id.EntityID][]id.ControlID
	revision int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		entities: make(map[id.EntityID]*models.Entity),
		edges:    make(map[id.EdgeID]*models.OwnershipEdge),
		into:     make(map[id.EntityID][]id.EdgeID),
		outOf:    make(map[id.EntityID][]id.EdgeID),
		controls: make(map[id.ControlID]*models.ControlRelationship),
		ctrlInto: make(map[id.EntityID][]id.ControlID),
	}
}

func (s *InMemory) UpsertEntity(_ context.Context, entity *models.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entity
	s.entities[entity.ID] = &cp
	s.revision++
	return nil
}

func (s *InMemory) FindEntity(_ context.Context, entityID id.EntityID) (*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// FindEntities returns the known entities among ids; unknown ids are absent from the map.
func (s *InMemory) FindEntities(_ context.Context, ids []id.EntityID) (map[id.EntityID]*models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.EntityID]*models.Entity, len(ids))
	for _, entityID := range ids {
		if e, ok := s.entities[entityID]; ok {
			cp := *e
			out[entityID] = &cp
		}
	}
	return out, nil
}

// InsertEdge stores a new version. A second open version for the same key is
// rejected with sentinel.ErrConflict.
func (s *InMemory) InsertEdge(_ context.Context, edge *models.OwnershipEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.edges[edge.ID]; exists {
		return sentinel.ErrConflict
	}
	if edge.IsOpen() {
		for _, edgeID := range s.into[edge.Value.OwnedID] {
			existing := s.edges[edgeID]
			if existing.Key() == edge.Key() && existing.IsOpen() {
				return sentinel.ErrConflict
			}
		}
	}
	s.edges[edge.ID] = cloneEdge(edge)
	s.into[edge.Value.OwnedID] = append(s.into[edge.Value.OwnedID], edge.ID)
	s.outOf[edge.Value.OwnerID] = append(s.outOf[edge.Value.OwnerID], edge.ID)
	s.revision++
	return nil
}

func (s *InMemory) FindEdge(_ context.Context, edgeID id.EdgeID) (*models.OwnershipEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[edgeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneEdge(e), nil
}

// CloseEdge persists the closing fields of an edge. Only an open edge can be closed.
func (s *InMemory) CloseEdge(_ context.Context, edge *models.OwnershipEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.edges[edge.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !existing.IsOpen() || edge.ValidTo == nil {
		return sentinel.ErrInvalidState
	}
	to := *edge.ValidTo
	existing.ValidTo = &to
	existing.CloseReason = edge.CloseReason
	if edge.SupersededBy != nil {
		next := *edge.SupersededBy
		existing.SupersededBy = &next
	}
	s.revision++
	return nil
}

// SupersedeEdge closes old and stores next under one lock and one revision
// bump, so readers see either the old version or its replacement.
func (s *InMemory) SupersedeEdge(_ context.Context, old, next *models.OwnershipEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.edges[old.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !existing.IsOpen() || old.ValidTo == nil {
		return sentinel.ErrInvalidState
	}
	if _, exists := s.edges[next.ID]; exists {
		return sentinel.ErrConflict
	}
	if next.IsOpen() {
		for _, edgeID := range s.into[next.Value.OwnedID] {
			other := s.edges[edgeID]
			if edgeID != old.ID && other.Key() == next.Key() && other.IsOpen() {
				return sentinel.ErrConflict
			}
		}
	}
	to := *old.ValidTo
	existing.ValidTo = &to
	existing.CloseReason = old.CloseReason
	if old.SupersededBy != nil {
		ref := *old.SupersededBy
		existing.SupersededBy = &ref
	}
	s.edges[next.ID] = cloneEdge(next)
	s.into[next.Value.OwnedID] = append(s.into[next.Value.OwnedID], next.ID)
	s.outOf[next.Value.OwnerID] = append(s.outOf[next.Value.OwnerID], next.ID)
	s.revision++
	return nil
}

func (s *InMemory) EdgesInto(_ context.Context, owned id.EntityID, asOf time.Time) ([]*models.OwnershipEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectEdges(s.into[owned], func(e *models.OwnershipEdge) bool { return e.ActiveAt(asOf) }), nil
}

func (s *InMemory) EdgesOut(_ context.Context, owner id.EntityID, asOf time.Time) ([]*models.OwnershipEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectEdges(s.outOf[owner], func(e *models.OwnershipEdge) bool { return e.ActiveAt(asOf) }), nil
}

func (s *InMemory) EdgeHistory(_ context.Context, key models.EdgeKey) ([]*models.OwnershipEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectEdges(s.into[key.OwnedID], func(e *models.OwnershipEdge) bool { return e.Key() == key }), nil
}

func (s *InMemory) EdgeHistoryInto(_ context.Context, owned id.EntityID) ([]*models.OwnershipEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectEdges(s.into[owned], func(*models.OwnershipEdge) bool { return true }), nil
}

func (s *InMemory) collectEdges(ids []id.EdgeID, keep func(*models.OwnershipEdge) bool) []*models.OwnershipEdge {
	out := make([]*models.OwnershipEdge, 0, len(ids))
	for _, edgeID := range ids {
		if e := s.edges[edgeID]; keep(e) {
			out = append(out, cloneEdge(e))
		}
	}
	sortEdges(out)
	return out
}

func (s *InMemory) InsertControl(_ context.Context, rel *models.ControlRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.controls[rel.ID]; exists {
		return sentinel.ErrConflict
	}
	if rel.IsOpen() {
		for _, controlID := range s.ctrlInto[rel.Value.ControlledID] {
			existing := s.controls[controlID]
			if existing.Key() == rel.Key() && existing.IsOpen() {
				return sentinel.ErrConflict
			}
		}
	}
	s.controls[rel.ID] = cloneControl(rel)
	s.ctrlInto[rel.Value.ControlledID] = append(s.ctrlInto[rel.Value.ControlledID], rel.ID)
	s.revision++
	return nil
}

func (s *InMemory) FindControl(_ context.Context, controlID id.ControlID) (*models.ControlRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controls[controlID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneControl(c), nil
}

func (s *InMemory) CloseControl(_ context.Context, rel *models.ControlRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.controls[rel.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !existing.IsOpen() || rel.ValidTo == nil {
		return sentinel.ErrInvalidState
	}
	to := *rel.ValidTo
	existing.ValidTo = &to
	existing.CloseReason = rel.CloseReason
	s.revision++
	return nil
}

func (s *InMemory) ControlsOver(_ context.Context, controlled id.EntityID, asOf time.Time) ([]*models.ControlRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectControls(controlled, func(c *models.ControlRelationship) bool { return c.ActiveAt(asOf) }), nil
}

func (s *InMemory) ControlHistory(_ context.Context, key models.ControlKey) ([]*models.ControlRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectControls(key.ControlledID, func(c *models.ControlRelationship) bool { return c.Key() == key }), nil
}

func (s *InMemory) collectControls(controlled id.EntityID, keep func(*models.ControlRelationship) bool) []*models.ControlRelationship {
	var out []*models.ControlRelationship
	for _, controlID := range s.ctrlInto[controlled] {
		if c := s.controls[controlID]; keep(c) {
			out = append(out, cloneControl(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ValidFrom.Equal(out[j].ValidFrom) {
			return out[i].ValidFrom.Before(out[j].ValidFrom)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Revision increases on every write.
func (s *InMemory) Revision(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision, nil
}

func cloneEdge(e *models.OwnershipEdge) *models.OwnershipEdge {
	cp := *e
	if e.ValidTo != nil {
		to := *e.ValidTo
		cp.ValidTo = &to
	}
	if e.SupersededBy != nil {
		next := *e.SupersededBy
		cp.SupersededBy = &next
	}
	return &cp
}

func cloneControl(c *models.ControlRelationship) *models.ControlRelationship {
	cp := *c
	if c.ValidTo != nil {
		to := *c.ValidTo
		cp.ValidTo = &to
	}
	return &cp
}

// sortEdges orders edges by owner id, then start, so traversal is deterministic.
func sortEdges(edges []*models.OwnershipEdge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Value.OwnerID != b.Value.OwnerID {
			return a.Value.OwnerID.String() < b.Value.OwnerID.String()
		}
		if a.Value.OwnedID != b.Value.OwnedID {
			return a.Value.OwnedID.String() < b.Value.OwnedID.String()
		}
		if !a.ValidFrom.Equal(b.ValidFrom) {
			return a.ValidFrom.Before(b.ValidFrom)
		}
		return a.ID.String() < b.ID.String()
	})
}
