package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"

	"ownergraph/internal/snapshot/models"
	"ownergraph/internal/snapshot/service"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/requestcontext"
)

// SweepConfig holds the periodic sweep settings.
type SweepConfig struct {
	Interval time.Duration
	Workers  int
	Policy   service.RetryPolicy
}

// Sweep captures a PERIODIC snapshot of every subject with active
// candidates once per interval.
type Sweep struct {
	config   SweepConfig
	subjects SubjectSource
	capturer Capturer
	logger   *slog.Logger
	running  atomic.Bool
}

func NewSweep(config SweepConfig, subjects SubjectSource, capturer Capturer, logger *slog.Logger) *Sweep {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	if config.Policy == (service.RetryPolicy{}) {
		config.Policy = service.DefaultRetryPolicy
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sweep{config: config, subjects: subjects, capturer: capturer, logger: logger}
}

// Start runs sweep cycles until ctx is cancelled.
func (s *Sweep) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("snapshot sweep already running")
	}
	defer s.running.Store(false)

	s.logger.InfoContext(ctx, "starting periodic snapshot sweep",
		"interval", s.config.Interval,
		"workers", s.config.Workers,
	)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "periodic snapshot sweep stopping")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.ErrorContext(ctx, "periodic snapshot sweep failed", "error", err)
			}
		}
	}
}

// SweepResult counts the outcome of one cycle.
type SweepResult struct {
	Subjects int
	Captured int
	Failed   int
}

// RunOnce captures every subject with a bounded number of workers. A
// failing subject does not stop the others.
func (s *Sweep) RunOnce(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	subjects, err := s.subjects.Subjects(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list sweep subjects: %w", err)
	}

	ctx = requestcontext.WithActorID(ctx, id.ActorScheduler)
	ctx = requestcontext.WithTime(ctx, time.Now().UTC())
	reason := "periodic review " + requestcontext.Now(ctx).Format(time.DateOnly)

	var captured, failed atomic.Int32
	pool := pond.NewPool(s.config.Workers, pond.WithQueueSize(len(subjects)+1), pond.WithContext(ctx))
	for _, subject := range subjects {
		pool.Submit(func() {
			_, err := s.capturer.CaptureWithBackoff(ctx, service.CaptureCommand{
				SubjectID: subject,
				Reason:    reason,
				Trigger:   models.TriggerPeriodic,
			}, s.config.Policy)
			if err != nil {
				failed.Add(1)
				s.logger.WarnContext(ctx, "periodic snapshot failed",
					"subject_id", subject.String(),
					"error", err,
				)
				return
			}
			captured.Add(1)
		})
	}
	pool.StopAndWait()

	result := SweepResult{Subjects: len(subjects), Captured: int(captured.Load()), Failed: int(failed.Load())}
	s.logger.InfoContext(ctx, "periodic snapshot sweep completed",
		"duration", time.Since(started),
		"subjects", result.Subjects,
		"captured", result.Captured,
		"failed", result.Failed,
	)
	return result, ctx.Err()
}
