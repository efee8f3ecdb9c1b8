package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func item(t *testing.T, ubo id.UBOID, role Role, status Status) *Evidence {
	t.Helper()
	e, err := NewEvidence(id.NewEvidenceID(), ubo, role, "doc://1", "", nil, "analyst", t0)
	require.NoError(t, err)
	e.Status = status
	return e
}

func TestAssess(t *testing.T) {
	ubo := id.NewUBOID()

	t.Run("identity alone is not enough", func(t *testing.T) {
		p := Assess(ubo, []*Evidence{item(t, ubo, RoleIdentityProof, StatusVerified)}, t0)
		assert.False(t, p.CanProve)
		assert.True(t, p.HasIdentityProof)
		assert.Equal(t, []Role{RoleOwnershipProof}, p.Missing)
		assert.Equal(t, 1, p.VerifiedCount)
	})

	t.Run("a verified chain link completes the proof", func(t *testing.T) {
		p := Assess(ubo, []*Evidence{
			item(t, ubo, RoleIdentityProof, StatusVerified),
			item(t, ubo, RoleChainLink, StatusVerified),
		}, t0)
		assert.True(t, p.CanProve)
		assert.Empty(t, p.Missing)
	})

	t.Run("pending items do not count", func(t *testing.T) {
		p := Assess(ubo, []*Evidence{
			item(t, ubo, RoleIdentityProof, StatusPending),
			item(t, ubo, RoleOwnershipProof, StatusRejected),
		}, t0)
		assert.False(t, p.CanProve)
		assert.Equal(t, []Role{RoleIdentityProof, RoleOwnershipProof}, p.Missing)
		assert.Equal(t, 1, p.PendingCount)
		assert.Zero(t, p.VerifiedCount)
	})

	t.Run("verified items past expiry do not count", func(t *testing.T) {
		expiring := item(t, ubo, RoleIdentityProof, StatusVerified)
		end := t0.Add(time.Hour)
		expiring.ExpiresAt = &end
		assert.True(t, Assess(ubo, []*Evidence{expiring}, t0).HasIdentityProof)
		assert.False(t, Assess(ubo, []*Evidence{expiring}, end).HasIdentityProof)
	})

	t.Run("address and wealth proofs do not stand in for ownership", func(t *testing.T) {
		p := Assess(ubo, []*Evidence{
			item(t, ubo, RoleIdentityProof, StatusVerified),
			item(t, ubo, RoleAddressProof, StatusVerified),
			item(t, ubo, RoleSourceOfWealth, StatusVerified),
		}, t0)
		assert.False(t, p.CanProve)
		assert.Equal(t, []Role{RoleOwnershipProof}, p.Missing)
		assert.Equal(t, 3, p.VerifiedCount)
	})

	t.Run("no evidence", func(t *testing.T) {
		p := Assess(ubo, nil, t0)
		assert.False(t, p.CanProve)
		assert.Len(t, p.Missing, 2)
	})
}

func TestLifecycle(t *testing.T) {
	all := []Status{StatusPending, StatusVerified, StatusRejected, StatusExpired}
	allowed := map[Status]map[Status]bool{
		StatusPending:  {StatusVerified: true, StatusRejected: true, StatusExpired: true},
		StatusVerified: {StatusExpired: true, StatusRejected: true},
		StatusRejected: {StatusPending: true},
		StatusExpired:  {StatusPending: true},
	}
	for _, from := range all {
		for _, to := range all {
			e := item(t, id.NewUBOID(), RoleAddressProof, from)
			err := e.CanMoveTo(to)
			if allowed[from][to] {
				assert.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			require.Error(t, err, "%s -> %s", from, to)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		}
	}

	t.Run("resubmit clears the verdict", func(t *testing.T) {
		e := item(t, id.NewUBOID(), RoleIdentityProof, StatusPending)
		e.ApplyVerify("checker", t0)
		e.ApplyReject("forged", t0.Add(time.Hour))
		e.ApplyResubmit(t0.Add(2 * time.Hour))
		assert.Equal(t, StatusPending, e.Status)
		assert.Nil(t, e.VerifiedAt)
		assert.Empty(t, e.RejectionReason)
	})
}

func TestNewEvidence(t *testing.T) {
	_, err := NewEvidence(id.NewEvidenceID(), id.NewUBOID(), Role("SELFIE"), "", "", nil, "a", t0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	past := t0.Add(-time.Hour)
	_, err = NewEvidence(id.NewEvidenceID(), id.NewUBOID(), RoleIdentityProof, "", "", &past, "a", t0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = ParseRole("chain_link")
	assert.NoError(t, err)
}

func TestParseRole(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Role
	}{
		{"IDENTITY_PROOF", RoleIdentityProof},
		{"ownership_proof", RoleOwnershipProof},
		{"CONTROL_PROOF", RoleControlProof},
		{"ADDRESS_PROOF", RoleAddressProof},
		{" source_of_wealth ", RoleSourceOfWealth},
		{"CHAIN_LINK", RoleChainLink},
	} {
		got, err := ParseRole(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	for _, in := range []string{"SUPPORTING", "SELFIE", ""} {
		_, err := ParseRole(in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), in)
	}
}
