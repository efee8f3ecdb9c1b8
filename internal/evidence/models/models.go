// Package models defines evidence items attached to UBO candidates and the
// provability assessment derived from them.
package models

import (
	"fmt"
	"strings"
	"time"

	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

// Role is what an evidence item proves about its candidate.
type Role string

const (
	RoleIdentityProof  Role = "IDENTITY_PROOF"
	RoleOwnershipProof Role = "OWNERSHIP_PROOF"
	RoleControlProof   Role = "CONTROL_PROOF"
	RoleAddressProof   Role = "ADDRESS_PROOF"
	RoleSourceOfWealth Role = "SOURCE_OF_WEALTH"
	RoleChainLink      Role = "CHAIN_LINK"
)

var validRoles = map[Role]bool{
	RoleIdentityProof:  true,
	RoleOwnershipProof: true,
	RoleControlProof:   true,
	RoleAddressProof:   true,
	RoleSourceOfWealth: true,
	RoleChainLink:      true,
}

func (r Role) IsValid() bool { return validRoles[r] }

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown evidence role")
	}
	return r, nil
}

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusVerified, StatusRejected, StatusExpired},
	StatusVerified: {StatusExpired, StatusRejected},
	StatusRejected: {StatusPending},
	StatusExpired:  {StatusPending},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError rejects a lifecycle move outside the table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("evidence cannot move from %s to %s", e.From, e.To)
}

// Evidence is one document reference held against a UBO candidate. The
// document itself lives in an external store; only its reference is kept.
type Evidence struct {
	ID              id.EvidenceID `json:"id"`
	UBOID           id.UBOID      `json:"ubo_id"`
	Role            Role          `json:"role"`
	Status          Status        `json:"verification_status"`
	DocumentRef     string        `json:"document_ref,omitempty"`
	Description     string        `json:"description,omitempty"`
	SubmittedAt     time.Time     `json:"submitted_at"`
	SubmittedBy     string        `json:"submitted_by,omitempty"`
	VerifiedAt      *time.Time    `json:"verified_at,omitempty"`
	VerifiedBy      string        `json:"verified_by,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	ExpiresAt       *time.Time    `json:"expires_at,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewEvidence builds a PENDING item.
func NewEvidence(evidenceID id.EvidenceID, uboID id.UBOID, role Role, documentRef, description string, expiresAt *time.Time, actor string, now time.Time) (*Evidence, error) {
	if uboID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "ubo id is required")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "evidence role is invalid")
	}
	documentRef = strings.TrimSpace(documentRef)
	if len(documentRef) > 512 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document reference must be 512 characters or less")
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expires_at must be in the future")
	}
	return &Evidence{
		ID:          evidenceID,
		UBOID:       uboID,
		Role:        role,
		Status:      StatusPending,
		DocumentRef: documentRef,
		Description: strings.TrimSpace(description),
		SubmittedAt: now,
		SubmittedBy: actor,
		ExpiresAt:   expiresAt,
		UpdatedAt:   now,
	}, nil
}

// CanMoveTo validates a lifecycle move.
func (e *Evidence) CanMoveTo(to Status) error {
	if !CanTransition(e.Status, to) {
		return dErrors.Wrap(&InvalidTransitionError{From: e.Status, To: to},
			dErrors.CodeInvalidState, fmt.Sprintf("evidence cannot move from %s to %s", e.Status, to)).
			WithDetail("evidence_id", e.ID.String()).
			WithDetail("from", string(e.Status)).
			WithDetail("to", string(to))
	}
	return nil
}

func (e *Evidence) ApplyVerify(actor string, now time.Time) {
	e.Status = StatusVerified
	e.VerifiedAt = &now
	e.VerifiedBy = actor
	e.RejectionReason = ""
	e.UpdatedAt = now
}

func (e *Evidence) ApplyReject(reason string, now time.Time) {
	e.Status = StatusRejected
	e.RejectionReason = reason
	e.UpdatedAt = now
}

func (e *Evidence) ApplyExpire(now time.Time) {
	e.Status = StatusExpired
	e.UpdatedAt = now
}

// ApplyResubmit returns the item to PENDING and clears the previous verdict.
func (e *Evidence) ApplyResubmit(now time.Time) {
	e.Status = StatusPending
	e.VerifiedAt = nil
	e.VerifiedBy = ""
	e.RejectionReason = ""
	e.UpdatedAt = now
}

// VerifiedAsOf reports whether the item counts as verified at t. A verified
// item past its expiry no longer counts even before it is marked EXPIRED.
func (e *Evidence) VerifiedAsOf(t time.Time) bool {
	if e.Status != StatusVerified {
		return false
	}
	return e.ExpiresAt == nil || t.Before(*e.ExpiresAt)
}

// Provability says whether a candidate's evidence supports PROVEN. Missing
// roles are data, not errors.
type Provability struct {
	UBOID             id.UBOID `json:"ubo_id"`
	CanProve          bool     `json:"can_prove"`
	HasIdentityProof  bool     `json:"has_identity_proof"`
	HasOwnershipProof bool     `json:"has_ownership_proof"`
	Missing           []Role   `json:"missing"`
	VerifiedCount     int      `json:"verified_count"`
	PendingCount      int      `json:"pending_count"`
}

// Assess evaluates items at instant now. Identity needs a verified
// IDENTITY_PROOF; ownership needs a verified OWNERSHIP_PROOF or CHAIN_LINK.
func Assess(uboID id.UBOID, items []*Evidence, now time.Time) Provability {
	p := Provability{UBOID: uboID, Missing: []Role{}}
	for _, item := range items {
		if item.Status == StatusPending {
			p.PendingCount++
		}
		if !item.VerifiedAsOf(now) {
			continue
		}
		p.VerifiedCount++
		switch item.Role {
		case RoleIdentityProof:
			p.HasIdentityProof = true
		case RoleOwnershipProof, RoleChainLink:
			p.HasOwnershipProof = true
		}
	}
	if !p.HasIdentityProof {
		p.Missing = append(p.Missing, RoleIdentityProof)
	}
	if !p.HasOwnershipProof {
		p.Missing = append(p.Missing, RoleOwnershipProof)
	}
	p.CanProve = p.HasIdentityProof && p.HasOwnershipProof
	return p
}
