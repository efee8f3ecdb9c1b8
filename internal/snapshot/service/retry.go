package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ownergraph/internal/snapshot/models"
)

// RetryPolicy spaces out repeated captures after an inconsistent read.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy suits interactive callers.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     time.Second,
	MaxElapsedTime:  10 * time.Second,
}

// CaptureWithBackoff calls Capture until it stops failing with an
// inconsistent read or the policy gives up. Any other error ends the retry
// at once.
func (s *Service) CaptureWithBackoff(ctx context.Context, cmd CaptureCommand, policy RetryPolicy) (*models.Snapshot, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.MaxElapsedTime = policy.MaxElapsedTime

	var snap *models.Snapshot
	operation := func() error {
		var err error
		snap, err = s.Capture(ctx, cmd)
		if err == nil {
			return nil
		}
		if IsInconsistentRead(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	attempts := 0
	notify := func(err error, next time.Duration) {
		attempts++
		s.logger.WarnContext(ctx, "snapshot capture retry scheduled",
			"subject_id", cmd.SubjectID.String(),
			"attempt", attempts,
			"next_retry_in", next,
			"error", err,
		)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return snap, nil
}

// IsInconsistentRead reports whether err is a retryable torn read.
func IsInconsistentRead(err error) bool {
	var torn *models.InconsistentReadError
	return errors.As(err, &torn)
}
