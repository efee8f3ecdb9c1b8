// Package store persists snapshots. Snapshots are write-once: there is no
// update path.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"ownergraph/internal/snapshot/models"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/sentinel"
)

// InMemory keeps each snapshot as encoded JSON so callers never share state
// with the store.
type InMemory struct {
	mu        sync.RWMutex
	items     map[id.SnapshotID][]byte
	bySubject map[id.EntityID][]*models.Summary
}

func NewInMemory() *InMemory {
	return &InMemory{
		items:     make(map[id.SnapshotID][]byte),
		bySubject: make(map[id.EntityID][]*models.Summary),
	}
}

func (s *InMemory) Insert(_ context.Context, snap *models.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[snap.ID]; exists {
		return sentinel.ErrConflict
	}
	s.items[snap.ID] = raw
	summary := snap.Summary()
	s.bySubject[snap.SubjectID] = append(s.bySubject[snap.SubjectID], &summary)
	return nil
}

func (s *InMemory) Find(_ context.Context, snapshotID id.SnapshotID) (*models.Snapshot, error) {
	s.mu.RLock()
	raw, ok := s.items[snapshotID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// ListBySubject returns summaries newest first.
func (s *InMemory) ListBySubject(_ context.Context, subject id.EntityID) ([]models.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Summary, 0, len(s.bySubject[subject]))
	for _, summary := range s.bySubject[subject] {
		out = append(out, *summary)
	}
	sortSummaries(out)
	return out, nil
}

func sortSummaries(items []models.Summary) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CapturedAt.Equal(items[j].CapturedAt) {
			return items[i].CapturedAt.After(items[j].CapturedAt)
		}
		return items[i].ID.String() > items[j].ID.String()
	})
}
