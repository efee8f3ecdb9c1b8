package handler

import (
	"strings"
	"time"

	"ownergraph/internal/graph/models"
	"ownergraph/internal/graph/service"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

// UpsertEntityRequest is the body for PUT /entities/{id}.
type UpsertEntityRequest struct {
	Kind         string `json:"kind"`
	DisplayName  string `json:"display_name"`
	Jurisdiction string `json:"jurisdiction"`

	kind id.EntityKind
}

func (r *UpsertEntityRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	kind, err := id.ParseEntityKind(r.Kind)
	if err != nil {
		return err
	}
	r.kind = kind
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	return nil
}

// AddEdgeRequest is the body for POST /edges.
type AddEdgeRequest struct {
	OwnerID          string     `json:"owner_id"`
	OwnedID          string     `json:"owned_id"`
	Percentage       *float64   `json:"percentage"`
	RelationshipType string     `json:"relationship_type"`
	ValidFrom        *time.Time `json:"valid_from,omitempty"`
	ValidTo          *time.Time `json:"valid_to,omitempty"`

	ownerID id.EntityID
	ownedID id.EntityID
	relType models.RelationshipType
}

func (r *AddEdgeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.ownerID, err = id.ParseEntityID(r.OwnerID); err != nil {
		return err
	}
	if r.ownedID, err = id.ParseEntityID(r.OwnedID); err != nil {
		return err
	}
	if r.Percentage == nil {
		return dErrors.New(dErrors.CodeValidation, "percentage is required")
	}
	if r.relType, err = models.ParseRelationshipType(r.RelationshipType); err != nil {
		return err
	}
	return nil
}

func (r *AddEdgeRequest) command() service.AddEdgeCommand {
	cmd := service.AddEdgeCommand{
		OwnerID:          r.ownerID,
		OwnedID:          r.ownedID,
		Percentage:       *r.Percentage,
		RelationshipType: r.relType,
		ValidTo:          r.ValidTo,
	}
	if r.ValidFrom != nil {
		cmd.ValidFrom = *r.ValidFrom
	}
	return cmd
}

// CloseRequest is the body for closing an edge or control relationship.
type CloseRequest struct {
	At     *time.Time `json:"at,omitempty"`
	Reason string     `json:"reason"`
}

func (r *CloseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > 512 {
		return dErrors.New(dErrors.CodeValidation, "reason must be 512 characters or less")
	}
	return nil
}

func (r *CloseRequest) command() service.CloseCommand {
	cmd := service.CloseCommand{Reason: r.Reason}
	if r.At != nil {
		cmd.At = *r.At
	}
	return cmd
}

// SupersedeEdgeRequest is the body for POST /edges/{id}/supersede.
type SupersedeEdgeRequest struct {
	Percentage       *float64   `json:"percentage"`
	RelationshipType string     `json:"relationship_type,omitempty"`
	EffectiveAt      *time.Time `json:"effective_at,omitempty"`
	Reason           string     `json:"reason"`

	relType models.RelationshipType
}

func (r *SupersedeEdgeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Percentage == nil {
		return dErrors.New(dErrors.CodeValidation, "percentage is required")
	}
	// An empty type keeps the superseded edge's type.
	if strings.TrimSpace(r.RelationshipType) != "" {
		relType, err := models.ParseRelationshipType(r.RelationshipType)
		if err != nil {
			return err
		}
		r.relType = relType
	}
	r.Reason = strings.TrimSpace(r.Reason)
	return nil
}

func (r *SupersedeEdgeRequest) command() service.SupersedeEdgeCommand {
	cmd := service.SupersedeEdgeCommand{
		Percentage:       *r.Percentage,
		RelationshipType: r.relType,
		Reason:           r.Reason,
	}
	if r.EffectiveAt != nil {
		cmd.EffectiveAt = *r.EffectiveAt
	}
	return cmd
}

// AddControlRequest is the body for POST /controls.
type AddControlRequest struct {
	ControllerID string     `json:"controller_id"`
	ControlledID string     `json:"controlled_id"`
	ControlType  string     `json:"control_type"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidTo      *time.Time `json:"valid_to,omitempty"`

	controllerID id.EntityID
	controlledID id.EntityID
	controlType  models.ControlType
}

func (r *AddControlRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.controllerID, err = id.ParseEntityID(r.ControllerID); err != nil {
		return err
	}
	if r.controlledID, err = id.ParseEntityID(r.ControlledID); err != nil {
		return err
	}
	if r.controlType, err = models.ParseControlType(r.ControlType); err != nil {
		return err
	}
	return nil
}

func (r *AddControlRequest) command() service.AddControlCommand {
	cmd := service.AddControlCommand{
		ControllerID: r.controllerID,
		ControlledID: r.controlledID,
		ControlType:  r.controlType,
		ValidTo:      r.ValidTo,
	}
	if r.ValidFrom != nil {
		cmd.ValidFrom = *r.ValidFrom
	}
	return cmd
}
