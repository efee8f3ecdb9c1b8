package handler

import (
	"strings"

	"ownergraph/internal/ubo/models"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
)

// RegisterCandidateRequest is the body for POST /subjects/{id}/ubos and
// POST /ubos/{id}/supersede. On supersede, omitted person and relationship
// fields are taken from the candidate being replaced.
type RegisterCandidateRequest struct {
	OwnerPersonID       string             `json:"owner_person_id"`
	RelationshipType    string             `json:"relationship_type"`
	QualifyingReason    string             `json:"qualifying_reason"`
	OwnershipPercentage *float64           `json:"ownership_percentage,omitempty"`
	ControlType         string             `json:"control_type,omitempty"`
	RiskFactors         models.RiskFactors `json:"risk_factors"`
	DiscoveryMethod     string             `json:"discovery_method,omitempty"`

	ownerPersonID    id.EntityID
	relationshipType models.RelationshipType
	qualifyingReason models.QualifyingReason
	discoveryMethod  models.DiscoveryMethod
	partial          bool
}

func (r *RegisterCandidateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.OwnerPersonID != "" || !r.partial {
		personID, err := id.ParseEntityID(r.OwnerPersonID)
		if err != nil {
			return dErrors.New(dErrors.CodeInvalidInput, "owner_person_id must be a valid id")
		}
		r.ownerPersonID = personID
	}
	if r.RelationshipType != "" || !r.partial {
		relType, err := models.ParseRelationshipType(r.RelationshipType)
		if err != nil {
			return err
		}
		r.relationshipType = relType
	}
	if r.QualifyingReason != "" {
		reason, err := models.ParseQualifyingReason(r.QualifyingReason)
		if err != nil {
			return err
		}
		r.qualifyingReason = reason
	}
	if p := r.OwnershipPercentage; p != nil && (*p < 0 || *p > 100) {
		return dErrors.New(dErrors.CodeValidation, "ownership_percentage must be between 0 and 100")
	}
	if r.DiscoveryMethod != "" {
		method, err := models.ParseDiscoveryMethod(r.DiscoveryMethod)
		if err != nil {
			return err
		}
		if method == models.DiscoveryInferred {
			return dErrors.New(dErrors.CodeValidation, "discovery_method INFERRED is reserved for discovery")
		}
		r.discoveryMethod = method
	}
	return nil
}

// SupersedeCandidateRequest is RegisterCandidateRequest with every field
// optional.
type SupersedeCandidateRequest struct {
	RegisterCandidateRequest
}

func (r *SupersedeCandidateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.partial = true
	return r.RegisterCandidateRequest.Validate()
}

// TransitionRequest is the body for POST /ubos/{id}/transition.
type TransitionRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason"`

	target models.Status
}

func (r *TransitionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	target, err := models.ParseStatus(r.Target)
	if err != nil {
		return err
	}
	r.target = target
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > 512 {
		return dErrors.New(dErrors.CodeValidation, "reason must be 512 characters or less")
	}
	return nil
}

// CloseRequest is the body for POST /ubos/{id}/close.
type CloseRequest struct {
	Reason string `json:"reason"`
}

func (r *CloseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > 512 {
		return dErrors.New(dErrors.CodeValidation, "reason must be 512 characters or less")
	}
	return nil
}
