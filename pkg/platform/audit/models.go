package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: every change
	// to the ownership graph, the UBO register, evidence and snapshots.
	// These require tamper-evident storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers read-side activity useful for operational visibility.
	// These can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID           string
	Category     EventCategory
	Timestamp    time.Time
	SubjectID    string // entity whose ownership picture the event concerns
	Action       string
	ResourceType string
	ResourceID   string
	ActorID      string
	Decision     string // outcome, e.g. the target verification status
	Reason       string
	RequestID    string
	// Metadata is free-form context for auditors. Nothing in the engine reads it back.
	Metadata map[string]any
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

type AuditEvent string

const (
	// Graph events
	EventEntityUpserted AuditEvent = "entity_upserted"
	EventEdgeAdded      AuditEvent = "ownership_edge_added"
	EventEdgeClosed     AuditEvent = "ownership_edge_closed"
	EventEdgeSuperseded AuditEvent = "ownership_edge_superseded"
	EventControlAdded   AuditEvent = "control_relationship_added"
	EventControlClosed  AuditEvent = "control_relationship_closed"

	// UBO register events
	EventUBORegistered   AuditEvent = "ubo_registered"
	EventUBOTransitioned AuditEvent = "ubo_transitioned"
	EventUBOOverride     AuditEvent = "ubo_proven_without_evidence"
	EventUBOSuperseded   AuditEvent = "ubo_superseded"
	EventUBOClosed       AuditEvent = "ubo_closed"
	EventUBORefreshed    AuditEvent = "ubo_ownership_refreshed"

	// Evidence events
	EventEvidenceAttached    AuditEvent = "evidence_attached"
	EventEvidenceVerified    AuditEvent = "evidence_verified"
	EventEvidenceRejected    AuditEvent = "evidence_rejected"
	EventEvidenceExpired     AuditEvent = "evidence_expired"
	EventEvidenceResubmitted AuditEvent = "evidence_resubmitted"

	// Snapshot events
	EventSnapshotCaptured AuditEvent = "snapshot_captured"
	EventSnapshotCompared AuditEvent = "snapshot_compared"

	// Read-side events
	EventChainsResolved      AuditEvent = "chains_resolved"
	EventCompletenessChecked AuditEvent = "completeness_checked"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventEntityUpserted:      CategoryCompliance,
	EventEdgeAdded:           CategoryCompliance,
	EventEdgeClosed:          CategoryCompliance,
	EventEdgeSuperseded:      CategoryCompliance,
	EventControlAdded:        CategoryCompliance,
	EventControlClosed:       CategoryCompliance,
	EventUBORegistered:       CategoryCompliance,
	EventUBOTransitioned:     CategoryCompliance,
	EventUBOOverride:         CategoryCompliance,
	EventUBOSuperseded:       CategoryCompliance,
	EventUBOClosed:           CategoryCompliance,
	EventUBORefreshed:        CategoryCompliance,
	EventEvidenceAttached:    CategoryCompliance,
	EventEvidenceVerified:    CategoryCompliance,
	EventEvidenceRejected:    CategoryCompliance,
	EventEvidenceExpired:     CategoryCompliance,
	EventEvidenceResubmitted: CategoryCompliance,
	EventSnapshotCaptured:    CategoryCompliance,

	EventSnapshotCompared:    CategoryOperations,
	EventChainsResolved:      CategoryOperations,
	EventCompletenessChecked: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures regulatory-significant actions requiring guaranteed persistence.
// Use with the compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	Timestamp    time.Time
	SubjectID    string // required
	Action       AuditEvent
	ResourceType string
	ResourceID   string
	ActorID      string
	Decision     string
	Reason       string
	RequestID    string
	Metadata     map[string]any
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the stored Event shape.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:     CategoryCompliance,
		Timestamp:    e.Timestamp,
		SubjectID:    e.SubjectID,
		Action:       string(e.Action),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		ActorID:      e.ActorID,
		Decision:     e.Decision,
		Reason:       e.Reason,
		RequestID:    e.RequestID,
		Metadata:     e.Metadata,
	}
}

// OpsEvent captures operational events with minimal overhead.
// Events are fire-and-forget with optional sampling.
type OpsEvent struct {
	Timestamp time.Time
	SubjectID string
	Action    AuditEvent
	RequestID string
	Metadata  map[string]any
}

// Category returns CategoryOperations (always).
func (e OpsEvent) Category() EventCategory { return CategoryOperations }

// ToEvent converts to the stored Event shape.
func (e OpsEvent) ToEvent() Event {
	return Event{
		Category:  CategoryOperations,
		Timestamp: e.Timestamp,
		SubjectID: e.SubjectID,
		Action:    string(e.Action),
		RequestID: e.RequestID,
		Metadata:  e.Metadata,
	}
}
