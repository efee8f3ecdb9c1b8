// Package domain holds identifier and classification primitives shared by every module.
//
// Identifiers are distinct named UUID types so an EntityID can never be passed
// where a UBOID is expected. Parse functions are the trust boundary for
// identifiers arriving from HTTP, CLI or Kafka payloads.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "ownergraph/pkg/domain-errors"
)

// maxIDLength bounds raw input before it reaches the UUID parser.
const maxIDLength = 64

type (
	EntityID   uuid.UUID
	EdgeID     uuid.UUID
	ControlID  uuid.UUID
	UBOID      uuid.UUID
	EvidenceID uuid.UUID
	SnapshotID uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

func ParseEntityID(s string) (EntityID, error) {
	u, err := parseUUID("entity id", s)
	return EntityID(u), err
}

func ParseEdgeID(s string) (EdgeID, error) {
	u, err := parseUUID("edge id", s)
	return EdgeID(u), err
}

func ParseControlID(s string) (ControlID, error) {
	u, err := parseUUID("control id", s)
	return ControlID(u), err
}

func ParseUBOID(s string) (UBOID, error) {
	u, err := parseUUID("ubo id", s)
	return UBOID(u), err
}

func ParseEvidenceID(s string) (EvidenceID, error) {
	u, err := parseUUID("evidence id", s)
	return EvidenceID(u), err
}

func ParseSnapshotID(s string) (SnapshotID, error) {
	u, err := parseUUID("snapshot id", s)
	return SnapshotID(u), err
}

func (id EntityID) String() string   { return uuid.UUID(id).String() }
func (id EdgeID) String() string     { return uuid.UUID(id).String() }
func (id ControlID) String() string  { return uuid.UUID(id).String() }
func (id UBOID) String() string      { return uuid.UUID(id).String() }
func (id EvidenceID) String() string { return uuid.UUID(id).String() }
func (id SnapshotID) String() string { return uuid.UUID(id).String() }

func (id EntityID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id EdgeID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ControlID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id UBOID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id EvidenceID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SnapshotID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps identifiers as plain UUID strings in JSON payloads.

func (id EntityID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id EdgeID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id ControlID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id UBOID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id EvidenceID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id SnapshotID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *EntityID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EdgeID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ControlID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UBOID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EvidenceID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *SnapshotID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// NewEntityID and friends mint random identifiers.
func NewEntityID() EntityID     { return EntityID(uuid.New()) }
func NewEdgeID() EdgeID         { return EdgeID(uuid.New()) }
func NewControlID() ControlID   { return ControlID(uuid.New()) }
func NewUBOID() UBOID           { return UBOID(uuid.New()) }
func NewEvidenceID() EvidenceID { return EvidenceID(uuid.New()) }
func NewSnapshotID() SnapshotID { return SnapshotID(uuid.New()) }

// ActorID names whoever performed a change: an analyst's token subject or a
// system component such as the snapshot scheduler. It is free text, not a UUID.
type ActorID string

// System actors used by background workers.
const (
	ActorScheduler ActorID = "system:scheduler"
	ActorTrigger   ActorID = "system:trigger"
	ActorCLI       ActorID = "system:cli"
)

func ParseActorID(s string) (ActorID, error) {
	if len(s) > maxIDLength*4 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "actor id is too long")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "actor id is required")
	}
	return ActorID(s), nil
}

func (id ActorID) String() string { return string(id) }
func (id ActorID) IsNil() bool    { return id == "" }
