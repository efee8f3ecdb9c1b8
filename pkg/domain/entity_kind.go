package domain

import (
	"strings"

	dErrors "ownergraph/pkg/domain-errors"
)

// EntityKind classifies a node in the ownership graph. The resolver only needs
// to know whether a node is a natural person (a traversal terminus).
type EntityKind string

const (
	EntityKindNaturalPerson EntityKind = "NATURAL_PERSON"
	EntityKindLegalEntity   EntityKind = "LEGAL_ENTITY"
	EntityKindTrust         EntityKind = "TRUST"
	EntityKindPartnership   EntityKind = "PARTNERSHIP"
	EntityKindFoundation    EntityKind = "FOUNDATION"
	EntityKindFund          EntityKind = "FUND"
)

var validEntityKinds = map[EntityKind]bool{
	EntityKindNaturalPerson: true,
	EntityKindLegalEntity:   true,
	EntityKindTrust:         true,
	EntityKindPartnership:   true,
	EntityKindFoundation:    true,
	EntityKindFund:          true,
}

// ParseEntityKind accepts any case and surrounding whitespace.
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToUpper(strings.TrimSpace(s)))
	if !validEntityKinds[k] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown entity kind: "+s)
	}
	return k, nil
}

func (k EntityKind) String() string { return string(k) }

func (k EntityKind) IsValid() bool { return validEntityKinds[k] }

// IsNaturalPerson reports whether the kind terminates an ownership chain.
func (k EntityKind) IsNaturalPerson() bool { return k == EntityKindNaturalPerson }
