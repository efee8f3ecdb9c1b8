package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candidate(t *testing.T, status Status) *Candidate {
	t.Helper()
	c, err := NewCandidate(id.NewUBOID(), CandidateSpec{
		SubjectID:        id.NewEntityID(),
		OwnerPersonID:    id.NewEntityID(),
		RelationshipType: RelationshipIndirectOwnership,
	}, "analyst", t0)
	require.NoError(t, err)
	c.Status = status
	return c
}

func TestTransitionTable(t *testing.T) {
	allowed := map[Status][]Status{
		StatusSuspected: {StatusProven, StatusPending, StatusFailed, StatusRemoved},
		StatusPending:   {StatusProven, StatusVerified, StatusFailed, StatusDisputed, StatusRemoved},
		StatusProven:    {StatusVerified, StatusDisputed, StatusRemoved},
		StatusVerified:  {StatusDisputed, StatusRemoved},
		StatusFailed:    {StatusSuspected, StatusPending},
		StatusDisputed:  {StatusProven, StatusVerified, StatusRemoved, StatusFailed},
		StatusRemoved:   {},
	}
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			want := from == to
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)

			err := candidate(t, from).CanTransitionTo(to)
			if want {
				assert.NoErrorf(t, err, "%s -> %s", from, to)
				continue
			}
			require.Errorf(t, err, "%s -> %s", from, to)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
			var invalid *InvalidTransitionError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, from, invalid.From)
			assert.Equal(t, to, invalid.To)
		}
	}
}

func TestApplyTransition(t *testing.T) {
	t.Run("first entry to PROVEN stamps the proof date", func(t *testing.T) {
		c := candidate(t, StatusSuspected)
		later := t0.Add(time.Hour)
		assert.True(t, c.ApplyTransition(StatusProven, later))
		require.NotNil(t, c.ProofDate)
		assert.Equal(t, later, *c.ProofDate)

		c.ApplyTransition(StatusDisputed, later.Add(time.Hour))
		c.ApplyTransition(StatusProven, later.Add(2*time.Hour))
		assert.Equal(t, later, *c.ProofDate)
	})

	t.Run("VERIFIED stamps verified_at", func(t *testing.T) {
		c := candidate(t, StatusProven)
		assert.True(t, c.ApplyTransition(StatusVerified, t0))
		require.NotNil(t, c.VerifiedAt)
	})

	t.Run("self transition changes nothing", func(t *testing.T) {
		c := candidate(t, StatusPending)
		assert.False(t, c.ApplyTransition(StatusPending, t0.Add(time.Hour)))
		assert.Equal(t, t0, c.UpdatedAt)
	})
}

func TestInactiveCandidates(t *testing.T) {
	c := candidate(t, StatusPending)
	c.ApplyClose("left the company", t0)
	assert.False(t, c.IsActive())

	assert.NoError(t, c.CanTransitionTo(StatusPending))
	err := c.CanTransitionTo(StatusProven)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	assert.Error(t, c.CanEnd())
}

func TestRemovedIsStillActive(t *testing.T) {
	c := candidate(t, StatusRemoved)
	assert.True(t, c.IsActive())
	assert.NoError(t, c.CanEnd())
}

func TestNewCandidate(t *testing.T) {
	subject := id.NewEntityID()
	person := id.NewEntityID()
	tooMuch := 120.0

	tests := []struct {
		name string
		spec CandidateSpec
	}{
		{"missing subject", CandidateSpec{OwnerPersonID: person, RelationshipType: RelationshipDirectOwnership}},
		{"self ownership", CandidateSpec{SubjectID: subject, OwnerPersonID: subject, RelationshipType: RelationshipDirectOwnership}},
		{"unknown relationship", CandidateSpec{SubjectID: subject, OwnerPersonID: person, RelationshipType: "COUSIN"}},
		{"percentage above 100", CandidateSpec{SubjectID: subject, OwnerPersonID: person, RelationshipType: RelationshipDirectOwnership, OwnershipPercentage: &tooMuch}},
		{"unknown discovery method", CandidateSpec{SubjectID: subject, OwnerPersonID: person, RelationshipType: RelationshipDirectOwnership, DiscoveryMethod: "RUMOUR"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCandidate(id.NewUBOID(), tt.spec, "a", t0)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}

	t.Run("defaults", func(t *testing.T) {
		c, err := NewCandidate(id.NewUBOID(), CandidateSpec{SubjectID: subject, OwnerPersonID: person, RelationshipType: RelationshipControl}, "a", t0)
		require.NoError(t, err)
		assert.Equal(t, StatusSuspected, c.Status)
		assert.Equal(t, ReasonOwnershipThreshold, c.QualifyingReason)
		assert.Equal(t, DiscoveryManual, c.DiscoveryMethod)
		assert.True(t, c.IsActive())
	})
}

func TestParseDiscoveryMethod(t *testing.T) {
	for in, want := range map[string]DiscoveryMethod{
		"MANUAL":     DiscoveryManual,
		"inferred":   DiscoveryInferred,
		"DOCUMENT":   DiscoveryDocument,
		" registry ": DiscoveryRegistry,
		"screening":  DiscoveryScreening,
	} {
		got, err := ParseDiscoveryMethod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseDiscoveryMethod("RUMOUR")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestDuplicateCandidate(t *testing.T) {
	key := Key{SubjectID: id.NewEntityID(), OwnerPersonID: id.NewEntityID(), RelationshipType: RelationshipDirectOwnership}
	existing := id.NewUBOID()
	err := DuplicateCandidate(key, existing)

	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	assert.Equal(t, existing.String(), dErrors.DetailsOf(err)["existing_id"])
	var dup *DuplicateCandidateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, existing, dup.ExistingID)
}
