package handler

import (
	"strings"

	"ownergraph/internal/snapshot/models"
	dErrors "ownergraph/pkg/domain-errors"
)

// CaptureRequest is the body for POST /subjects/{id}/snapshots. Trigger
// defaults to MANUAL.
type CaptureRequest struct {
	Reason  string `json:"reason"`
	Trigger string `json:"trigger,omitempty"`

	trigger models.Trigger
}

func (r *CaptureRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	r.trigger = models.TriggerManual
	if r.Trigger != "" {
		t, err := models.ParseTrigger(r.Trigger)
		if err != nil {
			return err
		}
		r.trigger = t
	}
	return nil
}
