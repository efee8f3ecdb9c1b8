// Package models defines point-in-time snapshots of a subject's beneficial
// ownership and the comparison between two of them.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	completenessmodels "ownergraph/internal/completeness/models"
	graphmodels "ownergraph/internal/graph/models"
	resolvermodels "ownergraph/internal/resolver/models"
	ubomodels "ownergraph/internal/ubo/models"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

// Trigger is what asked for a capture.
type Trigger string

const (
	TriggerCaseOpen    Trigger = "CASE_OPEN"
	TriggerCaseClose   Trigger = "CASE_CLOSE"
	TriggerPeriodic    Trigger = "PERIODIC"
	TriggerEventDriven Trigger = "EVENT_DRIVEN"
	TriggerManual      Trigger = "MANUAL"
)

func (t Trigger) IsValid() bool {
	switch t {
	case TriggerCaseOpen, TriggerCaseClose, TriggerPeriodic, TriggerEventDriven, TriggerManual:
		return true
	}
	return false
}

func ParseTrigger(s string) (Trigger, error) {
	t := Trigger(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown snapshot trigger")
	}
	return t, nil
}

// EvidenceSummary is the provability of a candidate at capture time.
type EvidenceSummary struct {
	CanProve      bool     `json:"can_prove"`
	VerifiedCount int      `json:"verified_count"`
	PendingCount  int      `json:"pending_count"`
	Missing       []string `json:"missing"`
}

// UBOEntry freezes one active candidate.
type UBOEntry struct {
	UBOID               id.UBOID                   `json:"ubo_id"`
	OwnerPersonID       id.EntityID                `json:"owner_person_id"`
	RelationshipType    ubomodels.RelationshipType `json:"relationship_type"`
	QualifyingReason    ubomodels.QualifyingReason `json:"qualifying_reason"`
	OwnershipPercentage *float64                   `json:"ownership_percentage,omitempty"`
	ControlType         string                     `json:"control_type,omitempty"`
	VerificationStatus  ubomodels.Status           `json:"verification_status"`
	Evidence            EvidenceSummary            `json:"evidence"`
}

// ControlEntry freezes one control relationship active at capture time.
type ControlEntry struct {
	ID           id.ControlID            `json:"id"`
	ControllerID id.EntityID             `json:"controller_id"`
	ControlledID id.EntityID             `json:"controlled_id"`
	ControlType  graphmodels.ControlType `json:"control_type"`
	ValidFrom    time.Time               `json:"valid_from"`
}

func NewControlEntry(rel *graphmodels.ControlRelationship) ControlEntry {
	return ControlEntry{
		ID:           rel.ID,
		ControllerID: rel.Value.ControllerID,
		ControlledID: rel.Value.ControlledID,
		ControlType:  rel.Value.ControlType,
		ValidFrom:    rel.ValidFrom,
	}
}

// Payload is the frozen content of a snapshot. ContentHash covers exactly
// this value.
type Payload struct {
	SubjectID    id.EntityID                `json:"subject_id"`
	AsOf         time.Time                  `json:"as_of"`
	UBOs         []UBOEntry                 `json:"ubos"`
	Chains       *resolvermodels.Result     `json:"chains"`
	Controls     []ControlEntry             `json:"controls"`
	Completeness *completenessmodels.Report `json:"completeness"`
}

// Revisions are the store revisions a capture was read at.
type Revisions struct {
	Graph    int64 `json:"graph"`
	Registry int64 `json:"registry"`
	Evidence int64 `json:"evidence"`
}

// Snapshot is an immutable capture of one subject.
type Snapshot struct {
	ID          id.SnapshotID `json:"id"`
	SubjectID   id.EntityID   `json:"subject_id"`
	CapturedAt  time.Time     `json:"captured_at"`
	Reason      string        `json:"reason"`
	Trigger     Trigger       `json:"trigger"`
	CapturedBy  string        `json:"captured_by,omitempty"`
	Revisions   Revisions     `json:"revisions"`
	ContentHash string        `json:"content_hash"`
	Payload     Payload       `json:"payload"`
}

// NewSnapshot seals payload with its content hash.
func NewSnapshot(snapshotID id.SnapshotID, reason string, trigger Trigger, actor string, revs Revisions, payload Payload, now time.Time) (*Snapshot, error) {
	if payload.SubjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "snapshot subject is required")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "snapshot reason is required")
	}
	if !trigger.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "snapshot trigger is invalid")
	}
	hash, err := ContentHash(payload)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ID:          snapshotID,
		SubjectID:   payload.SubjectID,
		CapturedAt:  now,
		Reason:      strings.TrimSpace(reason),
		Trigger:     trigger,
		CapturedBy:  actor,
		Revisions:   revs,
		ContentHash: hash,
		Payload:     payload,
	}, nil
}

// ContentHash is the hex SHA-256 of the JCS canonical form of payload.
func ContentHash(payload Payload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize snapshot payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyHash recomputes the content hash and compares it with the stored one.
func (s *Snapshot) VerifyHash() error {
	hash, err := ContentHash(s.Payload)
	if err != nil {
		return err
	}
	if hash != s.ContentHash {
		return dErrors.New(dErrors.CodeInternal, "snapshot content does not match its hash").
			WithDetail("snapshot_id", s.ID.String())
	}
	return nil
}

// Summary is the listing view of a snapshot.
type Summary struct {
	ID          id.SnapshotID `json:"id"`
	SubjectID   id.EntityID   `json:"subject_id"`
	CapturedAt  time.Time     `json:"captured_at"`
	Reason      string        `json:"reason"`
	Trigger     Trigger       `json:"trigger"`
	CapturedBy  string        `json:"captured_by,omitempty"`
	ContentHash string        `json:"content_hash"`
	UBOCount    int           `json:"ubo_count"`
}

func (s *Snapshot) Summary() Summary {
	return Summary{
		ID:          s.ID,
		SubjectID:   s.SubjectID,
		CapturedAt:  s.CapturedAt,
		Reason:      s.Reason,
		Trigger:     s.Trigger,
		CapturedBy:  s.CapturedBy,
		ContentHash: s.ContentHash,
		UBOCount:    len(s.Payload.UBOs),
	}
}

// InconsistentReadError reports a capture that could not get a stable view
// of the stores. Callers retry it.
type InconsistentReadError struct {
	SubjectID id.EntityID
	Attempts  int
}

func (e *InconsistentReadError) Error() string {
	return fmt.Sprintf("could not read a consistent view of subject %s after %d attempts", e.SubjectID, e.Attempts)
}

func (e *InconsistentReadError) Retryable() bool { return true }

// InconsistentRead builds the coded error.
func InconsistentRead(subject id.EntityID, attempts int) error {
	return dErrors.Wrap(&InconsistentReadError{SubjectID: subject, Attempts: attempts},
		dErrors.CodeUnavailable, "stores changed during snapshot capture, retry").
		WithDetail("subject_id", subject.String()).
		WithDetail("attempts", fmt.Sprint(attempts))
}
