package service

import (
	"context"
	"log/slog"

	"ownergraph/internal/graph/models"
	"ownergraph/pkg/platform/audit"
)

// auditEmitter logs graph writes and appends them to the compliance trail.
// A nil publisher only logs.
type auditEmitter struct {
	logger    *slog.Logger
	publisher AuditPublisher
}

func newAuditEmitter(logger *slog.Logger, publisher AuditPublisher) *auditEmitter {
	return &auditEmitter{logger: logger, publisher: publisher}
}

func (e *auditEmitter) emit(ctx context.Context, event audit.ComplianceEvent) error {
	e.logger.InfoContext(ctx, string(event.Action),
		"subject_id", event.SubjectID,
		"resource_id", event.ResourceID,
		"log_type", "audit",
	)
	if e.publisher == nil {
		return nil
	}
	return e.publisher.Emit(ctx, event)
}

func (e *auditEmitter) entityUpserted(ctx context.Context, entity *models.Entity) error {
	return e.emit(ctx, audit.ComplianceEvent{
		SubjectID:    entity.ID.String(),
		Action:       audit.EventEntityUpserted,
		ResourceType: "entity",
		ResourceID:   entity.ID.String(),
		Metadata:     map[string]any{"kind": string(entity.Kind)},
	})
}

func (e *auditEmitter) edgeAdded(ctx context.Context, edge *models.OwnershipEdge) error {
	return e.emit(ctx, audit.ComplianceEvent{
		SubjectID:    edge.Value.OwnedID.String(),
		Action:       audit.EventEdgeAdded,
		ResourceType: "ownership_edge",
		ResourceID:   edge.ID.String(),
		Metadata: map[string]any{
			"owner_id":          edge.Value.OwnerID.String(),
			"percentage":        edge.Value.Percentage,
			"relationship_type": string(edge.Value.RelationshipType),
			"valid_from":        edge.ValidFrom,
		},
	})
}

func (e *auditEmitter) edgeClosed(ctx context.Context, edge *models.OwnershipEdge) error {
	return e.emit(ctx, audit.ComplianceEvent{
		SubjectID:    edge.Value.OwnedID.String(),
		Action:       audit.EventEdgeClosed,
		ResourceType: "ownership_edge",
		ResourceID:   edge.ID.String(),
		Reason:       edge.CloseReason,
		Metadata:     map[string]any{"valid_to": edge.ValidTo},
	})
}

func (e *auditEmitter) edgeSuperseded(ctx context.Context, old, next *models.OwnershipEdge) error {
	return e.emit(ctx, audit.ComplianceEvent{
		SubjectID:    old.Value.OwnedID.String(),
		Action:       audit.EventEdgeSuperseded,
		ResourceType: "ownership_edge",
		ResourceID:   old.ID.String(),
		Reason:       old.CloseReason,
		Metadata: map[string]any{
			"replacement_id": next.ID.String(),
			"old_percentage": old.Value.Percentage,
			"new_percentage": next.Value.Percentage,
			"effective_at":   next.ValidFrom,
		},
	})
}

func (e *auditEmitter) controlAdded(ctx context.Context, rel *models.ControlRelationship) error {
	return e.emit(ctx, audit.ComplianceEvent{
		SubjectID:    rel.Value.ControlledID.String(),
		Action:       audit.EventControlAdded,
		ResourceType: "control_relationship",
		ResourceID:   rel.ID.String(),
		Metadata: map[string]any{
			"controller_id": rel.Value.ControllerID.String(),
			"control_type":  string(rel.Value.ControlType),
		},
	})
}

func (e *auditEmitter) controlClosed(ctx context.Context, rel *models.ControlRelationship) error {
	return e.emit(ctx, audit.ComplianceEvent{
		SubjectID:    rel.Value.ControlledID.String(),
		Action:       audit.EventControlClosed,
		ResourceType: "control_relationship",
		ResourceID:   rel.ID.String(),
		Reason:       rel.CloseReason,
	})
}
