package handler

import (
	"strings"
	"time"

	"ownergraph/internal/evidence/models"
	dErrors "ownergraph/pkg/domain-errors"
)

// AttachEvidenceRequest is the body for POST /ubos/{id}/evidence.
type AttachEvidenceRequest struct {
	Role        string     `json:"role"`
	DocumentRef string     `json:"document_ref"`
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	role models.Role
}

func (r *AttachEvidenceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	role, err := models.ParseRole(r.Role)
	if err != nil {
		return err
	}
	r.role = role
	if len(r.Description) > 1024 {
		return dErrors.New(dErrors.CodeValidation, "description must be 1024 characters or less")
	}
	return nil
}

// RejectEvidenceRequest is the body for POST /evidence/{id}/reject.
type RejectEvidenceRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectEvidenceRequest) Validate() error {
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
