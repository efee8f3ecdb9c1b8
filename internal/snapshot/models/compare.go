package models

import (
	"math"
	"sort"
	"strconv"
	"time"

	ubomodels "ownergraph/internal/ubo/models"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

// OwnershipTolerance is the smallest percentage difference reported as a
// change.
const OwnershipTolerance = 0.001

// FieldChange is one differing field of a matched candidate.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// UBOChange groups the field changes of one matched candidate.
type UBOChange struct {
	OwnerPersonID    id.EntityID                `json:"owner_person_id"`
	RelationshipType ubomodels.RelationshipType `json:"relationship_type"`
	BaselineUBOID    id.UBOID                   `json:"baseline_ubo_id"`
	CurrentUBOID     id.UBOID                   `json:"current_ubo_id"`
	Changes          []FieldChange              `json:"changes"`
}

// OwnershipDelta is a change in a person's aggregated effective ownership.
type OwnershipDelta struct {
	PersonID id.EntityID `json:"person_id"`
	Baseline float64     `json:"baseline"`
	Current  float64     `json:"current"`
	Delta    float64     `json:"delta"`
}

type ControlChange string

const (
	ControlAdded   ControlChange = "ADDED"
	ControlRemoved ControlChange = "REMOVED"
)

// ControlDelta is a control relationship present in only one snapshot.
type ControlDelta struct {
	Change  ControlChange `json:"change"`
	Control ControlEntry  `json:"control"`
}

type Comparison struct {
	SubjectID          id.EntityID      `json:"subject_id"`
	BaselineID         id.SnapshotID    `json:"baseline_id"`
	CurrentID          id.SnapshotID    `json:"current_id"`
	BaselineCapturedAt time.Time        `json:"baseline_captured_at"`
	CurrentCapturedAt  time.Time        `json:"current_captured_at"`
	Added              []UBOEntry       `json:"added"`
	Removed            []UBOEntry       `json:"removed"`
	Changed            []UBOChange      `json:"changed"`
	OwnershipDeltas    []OwnershipDelta `json:"ownership_deltas"`
	ControlDeltas      []ControlDelta   `json:"control_deltas"`
	HasChanges         bool             `json:"has_changes"`
}

// Compare diffs two snapshots of the same subject. Candidates are matched on
// owner person; a person never appears in both Added and Removed.
func Compare(baseline, current *Snapshot) (*Comparison, error) {
	if baseline.SubjectID != current.SubjectID {
		return nil, dErrors.New(dErrors.CodeValidation, "snapshots belong to different subjects").
			WithDetail("baseline_subject_id", baseline.SubjectID.String()).
			WithDetail("current_subject_id", current.SubjectID.String())
	}
	out := &Comparison{
		SubjectID:          baseline.SubjectID,
		BaselineID:         baseline.ID,
		CurrentID:          current.ID,
		BaselineCapturedAt: baseline.CapturedAt,
		CurrentCapturedAt:  current.CapturedAt,
		Added:              []UBOEntry{},
		Removed:            []UBOEntry{},
		Changed:            []UBOChange{},
	}

	before := groupByPerson(baseline.Payload.UBOs)
	after := groupByPerson(current.Payload.UBOs)
	for person, curs := range after {
		olds := before[person]
		if len(olds) == 0 {
			out.Added = append(out.Added, curs...)
			continue
		}
		pairs, onlyOld, onlyCur := pairEntries(olds, curs)
		for _, p := range pairs {
			if changes := diffEntry(p.old, p.cur); len(changes) > 0 {
				out.Changed = append(out.Changed, UBOChange{
					OwnerPersonID:    person,
					RelationshipType: p.cur.RelationshipType,
					BaselineUBOID:    p.old.UBOID,
					CurrentUBOID:     p.cur.UBOID,
					Changes:          changes,
				})
			}
		}
		out.Removed = append(out.Removed, onlyOld...)
		out.Added = append(out.Added, onlyCur...)
	}
	for person, olds := range before {
		if len(after[person]) == 0 {
			out.Removed = append(out.Removed, olds...)
		}
	}
	sortEntries(out.Added)
	sortEntries(out.Removed)
	sort.Slice(out.Changed, func(i, j int) bool {
		return lessKey(out.Changed[i].OwnerPersonID, out.Changed[i].RelationshipType,
			out.Changed[j].OwnerPersonID, out.Changed[j].RelationshipType)
	})

	out.OwnershipDeltas = ownershipDeltas(baseline.Payload, current.Payload)
	out.ControlDeltas = controlDeltas(baseline.Payload.Controls, current.Payload.Controls)
	out.HasChanges = len(out.Added) > 0 || len(out.Removed) > 0 || len(out.Changed) > 0 ||
		len(out.OwnershipDeltas) > 0 || len(out.ControlDeltas) > 0
	return out, nil
}

// groupByPerson buckets entries by owner person, each bucket sorted by
// relationship type.
func groupByPerson(entries []UBOEntry) map[id.EntityID][]UBOEntry {
	out := make(map[id.EntityID][]UBOEntry)
	for _, e := range entries {
		out[e.OwnerPersonID] = append(out[e.OwnerPersonID], e)
	}
	for _, bucket := range out {
		sortEntries(bucket)
	}
	return out
}

type entryPair struct {
	old, cur UBOEntry
}

// pairEntries matches one person's entries across snapshots. Entries with the
// same relationship type pair first; the rest pair in relationship type
// order, so a reclassified candidate shows up as a relationship_type change.
// Only the side with more entries can have leftovers.
func pairEntries(olds, curs []UBOEntry) (pairs []entryPair, onlyOld, onlyCur []UBOEntry) {
	usedOld := make([]bool, len(olds))
	usedCur := make([]bool, len(curs))
	for i, o := range olds {
		for j, c := range curs {
			if !usedCur[j] && o.RelationshipType == c.RelationshipType {
				pairs = append(pairs, entryPair{old: o, cur: c})
				usedOld[i], usedCur[j] = true, true
				break
			}
		}
	}
	var restOld, restCur []UBOEntry
	for i, o := range olds {
		if !usedOld[i] {
			restOld = append(restOld, o)
		}
	}
	for j, c := range curs {
		if !usedCur[j] {
			restCur = append(restCur, c)
		}
	}
	n := min(len(restOld), len(restCur))
	for k := 0; k < n; k++ {
		pairs = append(pairs, entryPair{old: restOld[k], cur: restCur[k]})
	}
	return pairs, restOld[n:], restCur[n:]
}

// diffEntry returns field changes sorted by field name.
func diffEntry(old, cur UBOEntry) []FieldChange {
	var changes []FieldChange
	if old.ControlType != cur.ControlType {
		changes = append(changes, FieldChange{Field: "control_type", Old: old.ControlType, New: cur.ControlType})
	}
	if percentageChanged(old.OwnershipPercentage, cur.OwnershipPercentage) {
		changes = append(changes, FieldChange{
			Field: "ownership_percentage",
			Old:   formatPct(old.OwnershipPercentage),
			New:   formatPct(cur.OwnershipPercentage),
		})
	}
	if old.QualifyingReason != cur.QualifyingReason {
		changes = append(changes, FieldChange{
			Field: "qualifying_reason",
			Old:   string(old.QualifyingReason),
			New:   string(cur.QualifyingReason),
		})
	}
	if old.RelationshipType != cur.RelationshipType {
		changes = append(changes, FieldChange{
			Field: "relationship_type",
			Old:   string(old.RelationshipType),
			New:   string(cur.RelationshipType),
		})
	}
	if old.VerificationStatus != cur.VerificationStatus {
		changes = append(changes, FieldChange{
			Field: "verification_status",
			Old:   string(old.VerificationStatus),
			New:   string(cur.VerificationStatus),
		})
	}
	return changes
}

func percentageChanged(a, b *float64) bool {
	if a == nil || b == nil {
		return (a == nil) != (b == nil)
	}
	return math.Abs(*a-*b) > OwnershipTolerance
}

func formatPct(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func ownershipDeltas(baseline, current Payload) []OwnershipDelta {
	before := ownerTotals(baseline)
	after := ownerTotals(current)
	persons := make(map[id.EntityID]struct{}, len(before)+len(after))
	for p := range before {
		persons[p] = struct{}{}
	}
	for p := range after {
		persons[p] = struct{}{}
	}
	out := []OwnershipDelta{}
	for p := range persons {
		delta := after[p] - before[p]
		if math.Abs(delta) > OwnershipTolerance {
			out = append(out, OwnershipDelta{PersonID: p, Baseline: before[p], Current: after[p], Delta: delta})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonID.String() < out[j].PersonID.String() })
	return out
}

func ownerTotals(p Payload) map[id.EntityID]float64 {
	out := make(map[id.EntityID]float64)
	if p.Chains == nil {
		return out
	}
	for _, o := range p.Chains.Owners() {
		out[o.PersonID] = o.TotalOwnership
	}
	return out
}

type controlKey struct {
	controller, controlled id.EntityID
	controlType            string
}

func controlDeltas(baseline, current []ControlEntry) []ControlDelta {
	index := func(entries []ControlEntry) map[controlKey]ControlEntry {
		out := make(map[controlKey]ControlEntry, len(entries))
		for _, c := range entries {
			out[controlKey{c.ControllerID, c.ControlledID, string(c.ControlType)}] = c
		}
		return out
	}
	before, after := index(baseline), index(current)
	out := []ControlDelta{}
	for k, c := range after {
		if _, ok := before[k]; !ok {
			out = append(out, ControlDelta{Change: ControlAdded, Control: c})
		}
	}
	for k, c := range before {
		if _, ok := after[k]; !ok {
			out = append(out, ControlDelta{Change: ControlRemoved, Control: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Control, out[j].Control
		if a.ControllerID != b.ControllerID {
			return a.ControllerID.String() < b.ControllerID.String()
		}
		if a.ControlledID != b.ControlledID {
			return a.ControlledID.String() < b.ControlledID.String()
		}
		if a.ControlType != b.ControlType {
			return a.ControlType < b.ControlType
		}
		return out[i].Change < out[j].Change
	})
	return out
}

func sortEntries(entries []UBOEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return lessKey(entries[i].OwnerPersonID, entries[i].RelationshipType,
			entries[j].OwnerPersonID, entries[j].RelationshipType)
	})
}

func lessKey(p1 id.EntityID, r1 ubomodels.RelationshipType, p2 id.EntityID, r2 ubomodels.RelationshipType) bool {
	if p1 != p2 {
		return p1.String() < p2.String()
	}
	return r1 < r2
}
