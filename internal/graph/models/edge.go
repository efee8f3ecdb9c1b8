package models

import (
	"fmt"
	"math"
	"time"

	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

// Ownership is the value held by one version of an ownership edge.
type Ownership struct {
	OwnerID          id.EntityID      `json:"owner_id"`
	OwnedID          id.EntityID      `json:"owned_id"`
	Percentage       float64          `json:"percentage"`
	RelationshipType RelationshipType `json:"relationship_type"`
}

// EdgeKey identifies the series of versions an edge belongs to.
type EdgeKey struct {
	OwnerID id.EntityID
	OwnedID id.EntityID
}

func (k EdgeKey) String() string {
	return k.OwnerID.String() + "->" + k.OwnedID.String()
}

// OwnershipEdge is one version of "owner holds percentage of owned".
//
// Invariants:
//   - OwnerID != OwnedID
//   - Percentage in [0, 100]
//   - ValidTo, when set, is strictly after ValidFrom
//   - the value is never edited; closing only sets ValidTo (and SupersededBy)
//   - at most one open version per EdgeKey, checked by the service before insert
type OwnershipEdge struct {
	ID id.EdgeID `json:"id"`
	id.Versioned[Ownership]
	SupersededBy *id.EdgeID `json:"superseded_by,omitempty"`
	CloseReason  string     `json:"close_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CreatedBy    string     `json:"created_by,omitempty"`
}

// SelfOwnershipError rejects an edge whose owner and owned entity coincide.
type SelfOwnershipError struct {
	EntityID id.EntityID
}

func (e *SelfOwnershipError) Error() string {
	return fmt.Sprintf("entity %s cannot own itself", e.EntityID)
}

// InvalidPercentageError rejects a percentage outside [0, 100].
type InvalidPercentageError struct {
	Percentage float64
}

func (e *InvalidPercentageError) Error() string {
	return fmt.Sprintf("percentage %v is outside [0, 100]", e.Percentage)
}

// InvalidWindowError rejects a validity window that does not move forward.
type InvalidWindowError struct {
	ValidFrom time.Time
	ValidTo   *time.Time
}

func (e *InvalidWindowError) Error() string {
	if e.ValidTo == nil {
		return "valid_from is required"
	}
	return fmt.Sprintf("valid_to %s must be after valid_from %s",
		e.ValidTo.Format(time.RFC3339), e.ValidFrom.Format(time.RFC3339))
}

// OpenVersionExistsError rejects a second open version for the same key.
type OpenVersionExistsError struct {
	Key        string
	ExistingID string
}

func (e *OpenVersionExistsError) Error() string {
	return fmt.Sprintf("an open version already exists for %s (%s)", e.Key, e.ExistingID)
}

// NewOwnershipEdge validates the ownership invariants and builds an open or
// closed edge version.
func NewOwnershipEdge(edgeID id.EdgeID, value Ownership, from time.Time, to *time.Time, actor string, now time.Time) (*OwnershipEdge, error) {
	if value.OwnerID.IsNil() || value.OwnedID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner_id and owned_id are required")
	}
	if value.OwnerID == value.OwnedID {
		return nil, dErrors.Wrap(&SelfOwnershipError{EntityID: value.OwnerID},
			dErrors.CodeValidation, "an entity cannot own itself").
			WithDetail("entity_id", value.OwnerID.String())
	}
	if value.Percentage < 0 || value.Percentage > 100 || math.IsNaN(value.Percentage) {
		return nil, dErrors.Wrap(&InvalidPercentageError{Percentage: value.Percentage},
			dErrors.CodeValidation, "percentage must be between 0 and 100").
			WithDetail("percentage", fmt.Sprintf("%v", value.Percentage))
	}
	if value.RelationshipType == "" {
		value.RelationshipType = RelationshipDirect
	}
	if !value.RelationshipType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown relationship type")
	}
	window, err := id.NewVersioned(value, from, to)
	if err != nil {
		return nil, dErrors.Wrap(&InvalidWindowError{ValidFrom: from, ValidTo: to},
			dErrors.CodeValidation, err.Error())
	}
	return &OwnershipEdge{
		ID:        edgeID,
		Versioned: window,
		CreatedAt: now,
		CreatedBy: actor,
	}, nil
}

// Key returns the version series key.
func (e *OwnershipEdge) Key() EdgeKey {
	return EdgeKey{OwnerID: e.Value.OwnerID, OwnedID: e.Value.OwnedID}
}

// CanClose checks the edge can be closed at t.
func (e *OwnershipEdge) CanClose(t time.Time) error {
	if err := e.Versioned.CanClose(t); err != nil {
		return dErrors.Wrap(err, codeOf(err), "edge cannot be closed").
			WithDetail("edge_id", e.ID.String())
	}
	return nil
}

// ApplyClose ends the edge at t, optionally pointing at its replacement.
func (e *OwnershipEdge) ApplyClose(t time.Time, reason string, supersededBy *id.EdgeID) {
	e.Versioned.ApplyClose(t)
	e.CloseReason = reason
	e.SupersededBy = supersededBy
}

func codeOf(err error) dErrors.Code {
	if code, ok := dErrors.GetCode(err); ok {
		return code
	}
	return dErrors.CodeInternal
}

// OpenVersionConflict builds the coded error for a second open version.
func OpenVersionConflict(key string, existing string) error {
	return dErrors.Wrap(&OpenVersionExistsError{Key: key, ExistingID: existing},
		dErrors.CodeConflict, "an open version already exists for this relationship").
		WithDetail("key", key).
		WithDetail("existing_id", existing)
}
