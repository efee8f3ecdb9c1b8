// Package models holds the ownership graph aggregates: entities, versioned
// ownership edges and versioned control relationships.
package models

import (
	"strings"
	"time"

	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

// Entity is the engine's view of an Entity Registry record. Only Kind drives
// traversal; the other fields are carried for analysts.
type Entity struct {
	ID           id.EntityID   `json:"id"`
	Kind         id.EntityKind `json:"kind"`
	DisplayName  string        `json:"display_name"`
	Jurisdiction string        `json:"jurisdiction,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewEntity validates and builds an entity record.
func NewEntity(entityID id.EntityID, kind id.EntityKind, displayName, jurisdiction string, now time.Time) (*Entity, error) {
	if entityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "entity id is required")
	}
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "entity kind is invalid")
	}
	displayName = strings.TrimSpace(displayName)
	if len(displayName) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "display name must be 256 characters or less")
	}
	return &Entity{
		ID:           entityID,
		Kind:         kind,
		DisplayName:  displayName,
		Jurisdiction: strings.ToUpper(strings.TrimSpace(jurisdiction)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// RelationshipType classifies an ownership edge.
type RelationshipType string

const (
	RelationshipDirect     RelationshipType = "DIRECT"
	RelationshipIndirect   RelationshipType = "INDIRECT"
	RelationshipBeneficial RelationshipType = "BENEFICIAL"
)

func (t RelationshipType) IsValid() bool {
	switch t {
	case RelationshipDirect, RelationshipIndirect, RelationshipBeneficial:
		return true
	}
	return false
}

// ParseRelationshipType accepts any casing; empty means DIRECT.
func ParseRelationshipType(s string) (RelationshipType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return RelationshipDirect, nil
	}
	t := RelationshipType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown relationship type: "+s)
	}
	return t, nil
}

// ControlType classifies a control relationship.
type ControlType string

const (
	ControlVotingRights     ControlType = "VOTING_RIGHTS"
	ControlBoardAppointment ControlType = "BOARD_APPOINTMENT"
	ControlSeniorManagement ControlType = "SENIOR_MANAGEMENT"
	ControlTrustee          ControlType = "TRUSTEE"
	ControlProtector        ControlType = "PROTECTOR"
	ControlOther            ControlType = "OTHER"
)

func (t ControlType) IsValid() bool {
	switch t {
	case ControlVotingRights, ControlBoardAppointment, ControlSeniorManagement,
		ControlTrustee, ControlProtector, ControlOther:
		return true
	}
	return false
}

func ParseControlType(s string) (ControlType, error) {
	t := ControlType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown control type: "+s)
	}
	return t, nil
}
