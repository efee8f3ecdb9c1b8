// Package trigger turns case-manager events and the periodic schedule into
// snapshot captures.
package trigger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"ownergraph/internal/platform/kafka"
	snapshotmetrics "ownergraph/internal/snapshot/metrics"
	"ownergraph/internal/snapshot/models"
	"ownergraph/internal/snapshot/service"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/requestcontext"
)

// Message is the JSON body of a snapshot trigger event.
type Message struct {
	SubjectID   string `json:"subject_id"`
	Trigger     string `json:"trigger"`
	RequestedBy string `json:"requested_by"`
	Reason      string `json:"reason,omitempty"`
}

// parse validates a trigger event. Only case-manager triggers arrive over
// the topic; PERIODIC belongs to the sweep and MANUAL to analysts.
func (m Message) parse() (service.CaptureCommand, id.ActorID, error) {
	subject, err := id.ParseEntityID(m.SubjectID)
	if err != nil {
		return service.CaptureCommand{}, "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid subject_id")
	}
	trigger, err := models.ParseTrigger(m.Trigger)
	if err != nil {
		return service.CaptureCommand{}, "", err
	}
	switch trigger {
	case models.TriggerCaseOpen, models.TriggerCaseClose, models.TriggerEventDriven:
	default:
		return service.CaptureCommand{}, "", dErrors.New(dErrors.CodeValidation, "trigger not accepted from the event stream").
			WithDetail("trigger", string(trigger))
	}
	actor := id.ActorTrigger
	if by := strings.TrimSpace(m.RequestedBy); by != "" {
		actor = id.ActorID(by)
	}
	reason := strings.TrimSpace(m.Reason)
	if reason == "" {
		reason = strings.ToLower(string(trigger)) + " requested by " + actor.String()
	}
	return service.CaptureCommand{SubjectID: subject, Reason: reason, Trigger: trigger}, actor, nil
}

// Handler consumes snapshot trigger messages.
type Handler struct {
	capturer Capturer
	policy   service.RetryPolicy
	logger   *slog.Logger
	metrics  *snapshotmetrics.Metrics
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func WithMetrics(m *snapshotmetrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithRetryPolicy(policy service.RetryPolicy) Option {
	return func(h *Handler) {
		h.policy = policy
	}
}

func NewHandler(capturer Capturer, opts ...Option) *Handler {
	h := &Handler{capturer: capturer, policy: service.DefaultRetryPolicy}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h
}

// Handle is a kafka.Handler. Malformed messages are logged and dropped so
// they do not block the partition.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var body Message
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		h.metrics.IncTriggerMessage("invalid")
		h.logger.WarnContext(ctx, "dropping malformed snapshot trigger",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	cmd, actor, err := body.parse()
	if err != nil {
		h.metrics.IncTriggerMessage("invalid")
		h.logger.WarnContext(ctx, "dropping invalid snapshot trigger",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"subject_id", body.SubjectID,
			"error", err,
		)
		return nil
	}

	ctx = requestcontext.WithActorID(ctx, actor)
	snap, err := h.capturer.CaptureWithBackoff(ctx, cmd, h.policy)
	if err != nil {
		h.metrics.IncTriggerMessage("failed")
		return err
	}
	h.metrics.IncTriggerMessage("captured")
	h.logger.InfoContext(ctx, "snapshot captured from trigger",
		"snapshot_id", snap.ID.String(),
		"subject_id", snap.SubjectID.String(),
		"trigger", string(snap.Trigger),
	)
	return nil
}
