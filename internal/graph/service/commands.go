package service

import (
	"time"

	"ownergraph/internal/graph/models"
	id "ownergraph/pkg/domain"
)

type UpsertEntityCommand struct {
	ID           id.EntityID
	Kind         id.EntityKind
	DisplayName  string
	Jurisdiction string
}

// AddEdgeCommand describes a new ownership edge. A zero ValidFrom means now.
type AddEdgeCommand struct {
	OwnerID          id.EntityID
	OwnedID          id.EntityID
	Percentage       float64
	RelationshipType models.RelationshipType
	ValidFrom        time.Time
	ValidTo          *time.Time
}

// SupersedeEdgeCommand replaces the percentage (and optionally the type) of an
// open edge from EffectiveAt onwards.
type SupersedeEdgeCommand struct {
	Percentage       float64
	RelationshipType models.RelationshipType
	EffectiveAt      time.Time
	Reason           string
}

type AddControlCommand struct {
	ControllerID id.EntityID
	ControlledID id.EntityID
	ControlType  models.ControlType
	ValidFrom    time.Time
	ValidTo      *time.Time
}

// CloseCommand ends an edge or control relationship at At (zero means now).
type CloseCommand struct {
	At     time.Time
	Reason string
}
