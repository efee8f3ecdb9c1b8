package models

import (
	"sort"

	id "ownergraph/pkg/domain"
)

// EdgeOverlap is a pair of versions of one edge key whose validity windows
// share at least one instant. The engine never picks a winner; overlaps are
// reported as a data-quality issue.
type EdgeOverlap struct {
	Key    EdgeKey
	First  id.EdgeID
	Second id.EdgeID
}

// FindOverlaps scans edge versions (any mix of keys) for overlapping windows.
// Results are ordered by key, then by the earlier version's start.
func FindOverlaps(edges []*OwnershipEdge) []EdgeOverlap {
	byKey := make(map[EdgeKey][]*OwnershipEdge)
	for _, e := range edges {
		byKey[e.Key()] = append(byKey[e.Key()], e)
	}

	keys := make([]EdgeKey, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	var out []EdgeOverlap
	for _, k := range keys {
		versions := byKey[k]
		sort.Slice(versions, func(i, j int) bool {
			if versions[i].ValidFrom.Equal(versions[j].ValidFrom) {
				return versions[i].ID.String() < versions[j].ID.String()
			}
			return versions[i].ValidFrom.Before(versions[j].ValidFrom)
		})
		for i := 0; i < len(versions); i++ {
			for j := i + 1; j < len(versions); j++ {
				if versions[i].Overlaps(versions[j].ValidFrom, versions[j].ValidTo) {
					out = append(out, EdgeOverlap{Key: k, First: versions[i].ID, Second: versions[j].ID})
				}
			}
		}
	}
	return out
}
