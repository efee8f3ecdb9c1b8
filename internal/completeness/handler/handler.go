package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ownergraph/internal/completeness/models"
	"ownergraph/internal/completeness/service"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/httputil"
	"ownergraph/pkg/requestcontext"
)

type Service interface {
	Check(ctx context.Context, subject id.EntityID, opts service.CheckOptions) (*models.Report, error)
}

type OpsTracker interface {
	Track(ctx context.Context, event audit.OpsEvent)
}

type Handler struct {
	service Service
	logger  *slog.Logger
	ops     OpsTracker
}

type Option func(*Handler)

func WithOpsTracker(tracker OpsTracker) Option {
	return func(h *Handler) {
		h.ops = tracker
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/subjects/{id}/completeness", h.HandleCheck)
}

// HandleCheck handles GET /subjects/{id}/completeness?threshold=&as_of=.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	threshold, err := httputil.QueryFloat(r, "threshold", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	opts := service.CheckOptions{Threshold: threshold}
	asOf, ok, err := httputil.QueryTime(r, "as_of")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if ok {
		opts.AsOf = &asOf
	}

	report, err := h.service.Check(ctx, subject, opts)
	if err != nil {
		h.logger.WarnContext(ctx, "completeness check failed",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", subject.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if h.ops != nil {
		h.ops.Track(ctx, audit.OpsEvent{
			SubjectID: subject.String(),
			Action:    audit.EventCompletenessChecked,
			Metadata: map[string]any{
				"is_complete": report.IsComplete,
				"gap":         report.Gap,
			},
		})
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
