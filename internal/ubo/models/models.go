// Package models defines the UBO candidate aggregate and its verification
// state machine. Every invariant is enforced by the aggregate's methods; stores
// never apply rules of their own.
package models

import (
	"fmt"
	"strings"
	"time"

	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

// Status is the verification state of a candidate.
type Status string

const (
	StatusSuspected Status = "SUSPECTED"
	StatusPending   Status = "PENDING"
	StatusProven    Status = "PROVEN"
	StatusVerified  Status = "VERIFIED"
	StatusFailed    Status = "FAILED"
	StatusDisputed  Status = "DISPUTED"
	StatusRemoved   Status = "REMOVED"
)

// AllStatuses lists every state in table order.
var AllStatuses = []Status{
	StatusSuspected, StatusPending, StatusProven, StatusVerified,
	StatusFailed, StatusDisputed, StatusRemoved,
}

var transitions = map[Status][]Status{
	StatusSuspected: {StatusProven, StatusPending, StatusFailed, StatusRemoved},
	StatusPending:   {StatusProven, StatusVerified, StatusFailed, StatusDisputed, StatusRemoved},
	StatusProven:    {StatusVerified, StatusDisputed, StatusRemoved},
	StatusVerified:  {StatusDisputed, StatusRemoved},
	StatusFailed:    {StatusSuspected, StatusPending},
	StatusDisputed:  {StatusProven, StatusVerified, StatusRemoved, StatusFailed},
	StatusRemoved:   {},
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown verification status")
	}
	return st, nil
}

// CanTransition reports whether from -> to is allowed. X -> X always is.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.IsValid()
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// RelationshipType is how the person relates to the subject.
type RelationshipType string

const (
	RelationshipDirectOwnership   RelationshipType = "DIRECT_OWNERSHIP"
	RelationshipIndirectOwnership RelationshipType = "INDIRECT_OWNERSHIP"
	RelationshipControl           RelationshipType = "CONTROL_PRONG"
	RelationshipTrustRole         RelationshipType = "TRUST_ROLE"
)

var validRelationshipTypes = map[RelationshipType]bool{
	RelationshipDirectOwnership:   true,
	RelationshipIndirectOwnership: true,
	RelationshipControl:           true,
	RelationshipTrustRole:         true,
}

func (t RelationshipType) IsValid() bool { return validRelationshipTypes[t] }

func ParseRelationshipType(s string) (RelationshipType, error) {
	t := RelationshipType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown ubo relationship type")
	}
	return t, nil
}

// QualifyingReason records why the person counts as a beneficial owner.
type QualifyingReason string

const (
	ReasonOwnershipThreshold     QualifyingReason = "OWNERSHIP_THRESHOLD"
	ReasonUltimateControl        QualifyingReason = "ULTIMATE_CONTROL"
	ReasonSeniorManagingOfficial QualifyingReason = "SENIOR_MANAGING_OFFICIAL"
	ReasonTrustCreator           QualifyingReason = "TRUST_CREATOR"
	ReasonLegalManager           QualifyingReason = "LEGAL_MANAGER"
	ReasonNamedBeneficiary       QualifyingReason = "NAMED_BENEFICIARY"
)

var validReasons = map[QualifyingReason]bool{
	ReasonOwnershipThreshold:     true,
	ReasonUltimateControl:        true,
	ReasonSeniorManagingOfficial: true,
	ReasonTrustCreator:           true,
	ReasonLegalManager:           true,
	ReasonNamedBeneficiary:       true,
}

func (r QualifyingReason) IsValid() bool { return validReasons[r] }

func ParseQualifyingReason(s string) (QualifyingReason, error) {
	r := QualifyingReason(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown qualifying reason")
	}
	return r, nil
}

// DiscoveryMethod records how the candidate came to the engine's attention.
// INFERRED is reserved for graph discovery.
type DiscoveryMethod string

const (
	DiscoveryManual    DiscoveryMethod = "MANUAL"
	DiscoveryInferred  DiscoveryMethod = "INFERRED"
	DiscoveryDocument  DiscoveryMethod = "DOCUMENT"
	DiscoveryRegistry  DiscoveryMethod = "REGISTRY"
	DiscoveryScreening DiscoveryMethod = "SCREENING"
)

var validDiscoveryMethods = map[DiscoveryMethod]bool{
	DiscoveryManual:    true,
	DiscoveryInferred:  true,
	DiscoveryDocument:  true,
	DiscoveryRegistry:  true,
	DiscoveryScreening: true,
}

func (m DiscoveryMethod) IsValid() bool { return validDiscoveryMethods[m] }

func ParseDiscoveryMethod(s string) (DiscoveryMethod, error) {
	m := DiscoveryMethod(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown discovery method")
	}
	return m, nil
}

// RiskFactors are the screening flags the engine carries per candidate.
type RiskFactors struct {
	PEP                  bool `json:"pep"`
	Sanctions            bool `json:"sanctions"`
	AdverseMedia         bool `json:"adverse_media"`
	HighRiskJurisdiction bool `json:"high_risk_jurisdiction"`
}

// Key identifies the series a candidate belongs to. At most one active
// candidate exists per key.
type Key struct {
	SubjectID        id.EntityID
	OwnerPersonID    id.EntityID
	RelationshipType RelationshipType
}

// Candidate is one UBO candidate for a subject.
type Candidate struct {
	ID                  id.UBOID         `json:"id"`
	SubjectID           id.EntityID      `json:"subject_id"`
	OwnerPersonID       id.EntityID      `json:"owner_person_id"`
	RelationshipType    RelationshipType `json:"relationship_type"`
	QualifyingReason    QualifyingReason `json:"qualifying_reason"`
	OwnershipPercentage *float64         `json:"ownership_percentage,omitempty"`
	ControlType         string           `json:"control_type,omitempty"`
	Status              Status           `json:"verification_status"`
	DiscoveryMethod     DiscoveryMethod  `json:"discovery_method"`
	ProofDate           *time.Time       `json:"proof_date,omitempty"`
	VerifiedAt          *time.Time       `json:"verified_at,omitempty"`
	SupersededBy        *id.UBOID        `json:"superseded_by,omitempty"`
	ClosedAt            *time.Time       `json:"closed_at,omitempty"`
	CloseReason         string           `json:"close_reason,omitempty"`
	Risk                RiskFactors      `json:"risk_factors"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	CreatedBy           string           `json:"created_by,omitempty"`
}

// CandidateSpec is the caller-provided part of a new candidate.
type CandidateSpec struct {
	SubjectID           id.EntityID
	OwnerPersonID       id.EntityID
	RelationshipType    RelationshipType
	QualifyingReason    QualifyingReason
	OwnershipPercentage *float64
	ControlType         string
	Risk                RiskFactors
	DiscoveryMethod     DiscoveryMethod
}

// NewCandidate builds a SUSPECTED candidate.
func NewCandidate(uboID id.UBOID, spec CandidateSpec, actor string, now time.Time) (*Candidate, error) {
	if spec.SubjectID.IsNil() || spec.OwnerPersonID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject_id and owner_person_id are required")
	}
	if spec.SubjectID == spec.OwnerPersonID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a subject cannot be its own beneficial owner")
	}
	if !spec.RelationshipType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "relationship type is invalid")
	}
	if spec.QualifyingReason == "" {
		spec.QualifyingReason = ReasonOwnershipThreshold
	}
	if !spec.QualifyingReason.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "qualifying reason is invalid")
	}
	if p := spec.OwnershipPercentage; p != nil && (*p < 0 || *p > 100) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "ownership percentage must be between 0 and 100")
	}
	if spec.DiscoveryMethod == "" {
		spec.DiscoveryMethod = DiscoveryManual
	}
	if !spec.DiscoveryMethod.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "discovery method is invalid")
	}
	return &Candidate{
		ID:                  uboID,
		SubjectID:           spec.SubjectID,
		OwnerPersonID:       spec.OwnerPersonID,
		RelationshipType:    spec.RelationshipType,
		QualifyingReason:    spec.QualifyingReason,
		OwnershipPercentage: spec.OwnershipPercentage,
		ControlType:         strings.TrimSpace(spec.ControlType),
		Status:              StatusSuspected,
		DiscoveryMethod:     spec.DiscoveryMethod,
		Risk:                spec.Risk,
		CreatedAt:           now,
		UpdatedAt:           now,
		CreatedBy:           actor,
	}, nil
}

func (c *Candidate) Key() Key {
	return Key{SubjectID: c.SubjectID, OwnerPersonID: c.OwnerPersonID, RelationshipType: c.RelationshipType}
}

// IsActive reports whether the candidate is neither superseded nor closed.
// A REMOVED candidate is still active until it is closed.
func (c *Candidate) IsActive() bool {
	return c.SupersededBy == nil && c.ClosedAt == nil
}

// InvalidTransitionError rejects a move outside the transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// DuplicateCandidateError rejects a second active candidate for one key.
type DuplicateCandidateError struct {
	SubjectID        id.EntityID
	OwnerPersonID    id.EntityID
	RelationshipType RelationshipType
	ExistingID       id.UBOID
}

func (e *DuplicateCandidateError) Error() string {
	return fmt.Sprintf("an active candidate already exists for person %s on subject %s (%s)",
		e.OwnerPersonID, e.SubjectID, e.RelationshipType)
}

// DuplicateCandidate builds the coded error for key with the existing id.
func DuplicateCandidate(key Key, existing id.UBOID) error {
	err := dErrors.Wrap(&DuplicateCandidateError{
		SubjectID:        key.SubjectID,
		OwnerPersonID:    key.OwnerPersonID,
		RelationshipType: key.RelationshipType,
		ExistingID:       existing,
	}, dErrors.CodeConflict, "an active candidate already exists for this person and relationship").
		WithDetail("subject_id", key.SubjectID.String()).
		WithDetail("owner_person_id", key.OwnerPersonID.String()).
		WithDetail("relationship_type", string(key.RelationshipType))
	if !existing.IsNil() {
		err = err.WithDetail("existing_id", existing.String())
	}
	return err
}

// CanTransitionTo validates a move. Self-transitions always succeed, even on
// inactive candidates; any other move needs an active candidate and a table
// entry.
func (c *Candidate) CanTransitionTo(to Status) error {
	if !to.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown target status")
	}
	if c.Status == to {
		return nil
	}
	if !c.IsActive() {
		return dErrors.New(dErrors.CodeInvalidState, "candidate is superseded or closed").
			WithDetail("ubo_id", c.ID.String())
	}
	if !CanTransition(c.Status, to) {
		return dErrors.Wrap(&InvalidTransitionError{From: c.Status, To: to},
			dErrors.CodeInvalidState, fmt.Sprintf("invalid transition from %s to %s", c.Status, to)).
			WithDetail("ubo_id", c.ID.String()).
			WithDetail("from", string(c.Status)).
			WithDetail("to", string(to))
	}
	return nil
}

// ApplyTransition moves the candidate and reports whether anything changed.
// The first entry to PROVEN stamps ProofDate; entering VERIFIED stamps
// VerifiedAt.
func (c *Candidate) ApplyTransition(to Status, now time.Time) bool {
	if c.Status == to {
		return false
	}
	c.Status = to
	c.UpdatedAt = now
	switch to {
	case StatusProven:
		if c.ProofDate == nil {
			c.ProofDate = &now
		}
	case StatusVerified:
		c.VerifiedAt = &now
	}
	return true
}

func (c *Candidate) CanEnd() error {
	if !c.IsActive() {
		return dErrors.New(dErrors.CodeInvalidState, "candidate is already superseded or closed").
			WithDetail("ubo_id", c.ID.String())
	}
	return nil
}

func (c *Candidate) ApplySupersede(by id.UBOID, now time.Time) {
	c.SupersededBy = &by
	c.UpdatedAt = now
}

func (c *Candidate) ApplyClose(reason string, now time.Time) {
	c.ClosedAt = &now
	c.CloseReason = reason
	c.UpdatedAt = now
}

// ApplyOwnership refreshes the derived percentage and reports a change.
func (c *Candidate) ApplyOwnership(pct float64, now time.Time) bool {
	if c.OwnershipPercentage != nil && *c.OwnershipPercentage == pct {
		return false
	}
	c.OwnershipPercentage = &pct
	c.UpdatedAt = now
	return true
}

// WarningInsufficientEvidence flags a move to PROVEN made without the
// verified evidence the proof normally requires.
const WarningInsufficientEvidence = "INSUFFICIENT_EVIDENCE"

// TransitionWarning is a non-fatal finding attached to a transition.
type TransitionWarning struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Missing []string `json:"missing,omitempty"`
}
