package trigger

import (
	"context"

	"ownergraph/internal/snapshot/models"
	"ownergraph/internal/snapshot/service"
	id "ownergraph/pkg/domain"
)

// Capturer is the part of the snapshot service triggers need.
type Capturer interface {
	CaptureWithBackoff(ctx context.Context, cmd service.CaptureCommand, policy service.RetryPolicy) (*models.Snapshot, error)
}

// SubjectSource lists the subjects that hold active candidates.
type SubjectSource interface {
	Subjects(ctx context.Context) ([]id.EntityID, error)
}
