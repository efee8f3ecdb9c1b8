package models

import (
	"time"

	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

// Control is the value held by one version of a control relationship.
type Control struct {
	ControllerID id.EntityID `json:"controller_id"`
	ControlledID id.EntityID `json:"controlled_id"`
	ControlType  ControlType `json:"control_type"`
}

// ControlKey identifies the series of versions a control relationship belongs to.
type ControlKey struct {
	ControllerID id.EntityID
	ControlledID id.EntityID
	ControlType  ControlType
}

func (k ControlKey) String() string {
	return k.ControllerID.String() + "->" + k.ControlledID.String() + "#" + string(k.ControlType)
}

// ControlRelationship is one version of "controller exercises control over controlled".
type ControlRelationship struct {
	ID id.ControlID `json:"id"`
	id.Versioned[Control]
	CloseReason string    `json:"close_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

func NewControlRelationship(controlID id.ControlID, value Control, from time.Time, to *time.Time, actor string, now time.Time) (*ControlRelationship, error) {
	if value.ControllerID.IsNil() || value.ControlledID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "controller_id and controlled_id are required")
	}
	if value.ControllerID == value.ControlledID {
		return nil, dErrors.Wrap(&SelfOwnershipError{EntityID: value.ControllerID},
			dErrors.CodeValidation, "an entity cannot control itself").
			WithDetail("entity_id", value.ControllerID.String())
	}
	if !value.ControlType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown control type")
	}
	window, err := id.NewVersioned(value, from, to)
	if err != nil {
		return nil, dErrors.Wrap(&InvalidWindowError{ValidFrom: from, ValidTo: to},
			dErrors.CodeValidation, err.Error())
	}
	return &ControlRelationship{
		ID:        controlID,
		Versioned: window,
		CreatedAt: now,
		CreatedBy: actor,
	}, nil
}

func (c *ControlRelationship) Key() ControlKey {
	return ControlKey{
		ControllerID: c.Value.ControllerID,
		ControlledID: c.Value.ControlledID,
		ControlType:  c.Value.ControlType,
	}
}

func (c *ControlRelationship) CanClose(t time.Time) error {
	if err := c.Versioned.CanClose(t); err != nil {
		return dErrors.Wrap(err, codeOf(err), "control relationship cannot be closed").
			WithDetail("control_id", c.ID.String())
	}
	return nil
}

func (c *ControlRelationship) ApplyClose(t time.Time, reason string) {
	c.Versioned.ApplyClose(t)
	c.CloseReason = reason
}
