package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ownergraph/internal/resolver/models"
	"ownergraph/internal/resolver/service"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/audit"
	"ownergraph/pkg/platform/httputil"
	"ownergraph/pkg/requestcontext"
)

// Service resolves ownership chains for a subject.
type Service interface {
	Resolve(ctx context.Context, subject id.EntityID, opts service.Options) (*models.Result, error)
}

// OpsTracker records best-effort read-side audit events.
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
	r.Get("/subjects/{id}/chains", h.HandleResolve)
}

// ChainsResponse is a resolution plus its per-person aggregation.
type ChainsResponse struct {
	*models.Result
	TotalIdentified float64        `json:"total_identified"`
	Owners          []models.Owner `json:"owners"`
}

// HandleResolve handles GET /subjects/{id}/chains?as_of=&max_depth=&max_visits=.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	opts, err := parseOptions(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Resolve(ctx, subject, opts)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to resolve chains",
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
			Action:    audit.EventChainsResolved,
			Metadata: map[string]any{
				"chains":  len(result.Chains),
				"partial": result.Partial,
			},
		})
	}
	httputil.WriteJSON(w, http.StatusOK, ChainsResponse{
		Result:          result,
		TotalIdentified: result.TotalIdentified(),
		Owners:          result.Owners(),
	})
}

func parseOptions(r *http.Request) (service.Options, error) {
	var opts service.Options
	asOf, ok, err := httputil.QueryTime(r, "as_of")
	if err != nil {
		return opts, err
	}
	if ok {
		opts.AsOf = &asOf
	}
	if opts.MaxDepth, err = httputil.QueryInt(r, "max_depth", 0); err != nil {
		return opts, err
	}
	if opts.MaxVisits, err = httputil.QueryInt(r, "max_visits", 0); err != nil {
		return opts, err
	}
	return opts, nil
}

