package handler

import (
	"time"

	"ownergraph/internal/graph/models"
	id "ownergraph/pkg/domain"
)

type EdgeResponse struct {
	ID               id.EdgeID   `json:"id"`
	OwnerID          id.EntityID `json:"owner_id"`
	OwnedID          id.EntityID `json:"owned_id"`
	Percentage       float64     `json:"percentage"`
	RelationshipType string      `json:"relationship_type"`
	ValidFrom        time.Time   `json:"valid_from"`
	ValidTo          *time.Time  `json:"valid_to,omitempty"`
	SupersededBy     *id.EdgeID  `json:"superseded_by,omitempty"`
	CloseReason      string      `json:"close_reason,omitempty"`
	CreatedBy        string      `json:"created_by,omitempty"`
}

type EdgeListResponse struct {
	EntityID id.EntityID    `json:"entity_id"`
	AsOf     time.Time      `json:"as_of"`
	Edges    []EdgeResponse `json:"edges"`
}

type ControlResponse struct {
	ID           id.ControlID `json:"id"`
	ControllerID id.EntityID  `json:"controller_id"`
	ControlledID id.EntityID  `json:"controlled_id"`
	ControlType  string       `json:"control_type"`
	ValidFrom    time.Time    `json:"valid_from"`
	ValidTo      *time.Time   `json:"valid_to,omitempty"`
	CloseReason  string       `json:"close_reason,omitempty"`
}

func toEdgeResponse(e *models.OwnershipEdge) EdgeResponse {
	return EdgeResponse{
		ID:               e.ID,
		OwnerID:          e.Value.OwnerID,
		OwnedID:          e.Value.OwnedID,
		Percentage:       e.Value.Percentage,
		RelationshipType: string(e.Value.RelationshipType),
		ValidFrom:        e.ValidFrom,
		ValidTo:          e.ValidTo,
		SupersededBy:     e.SupersededBy,
		CloseReason:      e.CloseReason,
		CreatedBy:        e.CreatedBy,
	}
}

func toEdgeResponses(edges []*models.OwnershipEdge) []EdgeResponse {
	out := make([]EdgeResponse, 0, len(edges))
	for _, e := range edges {
		out = append(out, toEdgeResponse(e))
	}
	return out
}

func toControlResponse(c *models.ControlRelationship) ControlResponse {
	return ControlResponse{
		ID:           c.ID,
		ControllerID: c.Value.ControllerID,
		ControlledID: c.Value.ControlledID,
		ControlType:  string(c.Value.ControlType),
		ValidFrom:    c.ValidFrom,
		ValidTo:      c.ValidTo,
		CloseReason:  c.CloseReason,
	}
}
