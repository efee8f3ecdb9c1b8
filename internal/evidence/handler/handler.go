package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ownergraph/internal/evidence/models"
	"ownergraph/internal/evidence/service"
	id "ownergraph/pkg/domain"
	"ownergraph/pkg/platform/httputil"
	"ownergraph/pkg/requestcontext"
)

// Service defines the evidence operations exposed over HTTP.
type Service interface {
	Attach(ctx context.Context, cmd service.AttachCommand) (*models.Evidence, error)
	List(ctx context.Context, uboID id.UBOID) ([]*models.Evidence, error)
	CanProve(ctx context.Context, uboID id.UBOID) (*models.Provability, error)
	Verify(ctx context.Context, evidenceID id.EvidenceID) (*models.Evidence, error)
	Reject(ctx context.Context, evidenceID id.EvidenceID, reason string) (*models.Evidence, error)
	Expire(ctx context.Context, evidenceID id.EvidenceID) (*models.Evidence, error)
	Resubmit(ctx context.Context, evidenceID id.EvidenceID) (*models.Evidence, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/ubos/{id}/evidence", h.HandleAttach)
	r.Get("/ubos/{id}/evidence", h.HandleList)
	r.Get("/ubos/{id}/provability", h.HandleProvability)
	r.Post("/evidence/{id}/verify", h.HandleVerify)
	r.Post("/evidence/{id}/reject", h.HandleReject)
	r.Post("/evidence/{id}/expire", h.HandleExpire)
	r.Post("/evidence/{id}/resubmit", h.HandleResubmit)
}

// EvidenceListResponse wraps the items held against one candidate.
type EvidenceListResponse struct {
	UBOID    id.UBOID           `json:"ubo_id"`
	Evidence []*models.Evidence `json:"evidence"`
}

func (h *Handler) HandleAttach(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	uboID, err := id.ParseUBOID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AttachEvidenceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	item, err := h.service.Attach(ctx, service.AttachCommand{
		UBOID:       uboID,
		Role:        req.role,
		DocumentRef: req.DocumentRef,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		h.writeFailure(ctx, w, "failed to attach evidence", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uboID, err := id.ParseUBOID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, err := h.service.List(ctx, uboID)
	if err != nil {
		h.writeFailure(ctx, w, "failed to list evidence", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EvidenceListResponse{UBOID: uboID, Evidence: items})
}

func (h *Handler) HandleProvability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uboID, err := id.ParseUBOID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.CanProve(ctx, uboID)
	if err != nil {
		h.writeFailure(ctx, w, "failed to assess provability", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	h.handleMove(w, r, "failed to verify evidence", h.service.Verify)
}

func (h *Handler) HandleExpire(w http.ResponseWriter, r *http.Request) {
	h.handleMove(w, r, "failed to expire evidence", h.service.Expire)
}

func (h *Handler) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	h.handleMove(w, r, "failed to resubmit evidence", h.service.Resubmit)
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectEvidenceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	item, err := h.service.Reject(ctx, evidenceID, req.Reason)
	if err != nil {
		h.writeFailure(ctx, w, "failed to reject evidence", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request, failMsg string, move func(context.Context, id.EvidenceID) (*models.Evidence, error)) {
	ctx := r.Context()
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	item, err := move(ctx, evidenceID)
	if err != nil {
		h.writeFailure(ctx, w, failMsg, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", requestcontext.ActorID(ctx).String(),
		"error", err,
	)
	httputil.WriteError(w, err)
}
