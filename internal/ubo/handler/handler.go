package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ownergraph/internal/ubo/models"
	"ownergraph/internal/ubo/service"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/platform/httputil"
	"ownergraph/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, cmd service.RegisterCommand) (*models.Candidate, error)
	List(ctx context.Context, subject id.EntityID, includeInactive bool) ([]*models.Candidate, error)
	DiscoverCandidates(ctx context.Context, subject id.EntityID, threshold float64) (*service.DiscoveryResult, error)
	Get(ctx context.Context, uboID id.UBOID) (*models.Candidate, error)
	Transition(ctx context.Context, uboID id.UBOID, cmd service.TransitionCommand) (*service.TransitionResult, error)
	SupersedeCandidate(ctx context.Context, oldID id.UBOID, replacement service.RegisterCommand) (*models.Candidate, error)
	CloseCandidate(ctx context.Context, uboID id.UBOID, reason string) (*models.Candidate, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/subjects/{id}/ubos", h.HandleRegister)
	r.Get("/subjects/{id}/ubos", h.HandleList)
	r.Post("/subjects/{id}/ubos/discover", h.HandleDiscover)
	r.Get("/ubos/{id}", h.HandleGet)
	r.Post("/ubos/{id}/transition", h.HandleTransition)
	r.Post("/ubos/{id}/supersede", h.HandleSupersede)
	r.Post("/ubos/{id}/close", h.HandleClose)
}

type CandidateListResponse struct {
	SubjectID  id.EntityID         `json:"subject_id"`
	Candidates []*models.Candidate `json:"candidates"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	subject, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterCandidateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	c, err := h.service.Register(ctx, req.command(subject))
	if err != nil {
		h.writeFailure(ctx, w, "failed to register candidate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	includeInactive := false
	if raw := r.URL.Query().Get("include_inactive"); raw != "" {
		includeInactive, err = strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "include_inactive must be a boolean"))
			return
		}
	}
	items, err := h.service.List(ctx, subject, includeInactive)
	if err != nil {
		h.writeFailure(ctx, w, "failed to list candidates", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CandidateListResponse{SubjectID: subject, Candidates: items})
}

func (h *Handler) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	threshold, err := httputil.QueryFloat(r, "threshold", service.DefaultThreshold)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.DiscoverCandidates(ctx, subject, threshold)
	if err != nil {
		h.writeFailure(ctx, w, "failed to discover candidates", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uboID, err := id.ParseUBOID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.service.Get(ctx, uboID)
	if err != nil {
		h.writeFailure(ctx, w, "failed to load candidate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	uboID, err := id.ParseUBOID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Transition(ctx, uboID, service.TransitionCommand{Target: req.target, Reason: req.Reason})
	if err != nil {
		h.writeFailure(ctx, w, "failed to transition candidate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleSupersede(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	uboID, err := id.ParseUBOID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SupersedeCandidateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	c, err := h.service.SupersedeCandidate(ctx, uboID, req.command(id.EntityID{}))
	if err != nil {
		h.writeFailure(ctx, w, "failed to supersede candidate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	uboID, err := id.ParseUBOID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CloseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	c, err := h.service.CloseCandidate(ctx, uboID, req.Reason)
	if err != nil {
		h.writeFailure(ctx, w, "failed to close candidate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (r *RegisterCandidateRequest) command(subject id.EntityID) service.RegisterCommand {
	return service.RegisterCommand{
		SubjectID:           subject,
		OwnerPersonID:       r.ownerPersonID,
		RelationshipType:    r.relationshipType,
		QualifyingReason:    r.qualifyingReason,
		OwnershipPercentage: r.OwnershipPercentage,
		ControlType:         r.ControlType,
		Risk:                r.RiskFactors,
		DiscoveryMethod:     r.discoveryMethod,
	}
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", requestcontext.ActorID(ctx).String(),
		"error", err,
	)
	httputil.WriteError(w, err)
}
