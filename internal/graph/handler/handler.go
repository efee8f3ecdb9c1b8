package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ownergraph/internal/graph/models"
	"ownergraph/internal/graph/service"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/platform/httputil"
	"ownergraph/pkg/requestcontext"
)

// Service defines the graph operations exposed over HTTP.
type Service interface {
	UpsertEntity(ctx context.Context, cmd service.UpsertEntityCommand) (*models.Entity, error)
	GetEntity(ctx context.Context, entityID id.EntityID) (*models.Entity, error)
	AddEdge(ctx context.Context, cmd service.AddEdgeCommand) (*models.OwnershipEdge, error)
	CloseEdge(ctx context.Context, edgeID id.EdgeID, cmd service.CloseCommand) (*models.OwnershipEdge, error)
	SupersedeEdge(ctx context.Context, edgeID id.EdgeID, cmd service.SupersedeEdgeCommand) (*models.OwnershipEdge, error)
	EdgesInto(ctx context.Context, entityID id.EntityID, asOf time.Time) ([]*models.OwnershipEdge, error)
	EdgesOut(ctx context.Context, entityID id.EntityID, asOf time.Time) ([]*models.OwnershipEdge, error)
	AddControl(ctx context.Context, cmd service.AddControlCommand) (*models.ControlRelationship, error)
	CloseControl(ctx context.Context, controlID id.ControlID, cmd service.CloseCommand) (*models.ControlRelationship, error)
}

// Handler wires graph endpoints to the graph service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts graph endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Put("/entities/{id}", h.HandleUpsertEntity)
	r.Get("/entities/{id}", h.HandleGetEntity)
	r.Get("/entities/{id}/edges", h.HandleListEdges)
	r.Post("/edges", h.HandleAddEdge)
	r.Post("/edges/{id}/close", h.HandleCloseEdge)
	r.Post("/edges/{id}/supersede", h.HandleSupersedeEdge)
	r.Post("/controls", h.HandleAddControl)
	r.Post("/controls/{id}/close", h.HandleCloseControl)
}

func (h *Handler) HandleUpsertEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	entityID, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpsertEntityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	entity, err := h.service.UpsertEntity(ctx, service.UpsertEntityCommand{
		ID:           entityID,
		Kind:         req.kind,
		DisplayName:  req.DisplayName,
		Jurisdiction: req.Jurisdiction,
	})
	if err != nil {
		h.writeFailure(ctx, w, "failed to upsert entity", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entity)
}

func (h *Handler) HandleGetEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entity, err := h.service.GetEntity(ctx, entityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entity)
}

// HandleListEdges handles GET /entities/{id}/edges?direction=in|out&as_of=.
func (h *Handler) HandleListEdges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	asOf, ok, err := httputil.QueryTime(r, "as_of")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !ok {
		asOf = requestcontext.Now(ctx)
	}

	var edges []*models.OwnershipEdge
	switch direction := r.URL.Query().Get("direction"); direction {
	case "", "in":
		edges, err = h.service.EdgesInto(ctx, entityID, asOf)
	case "out":
		edges, err = h.service.EdgesOut(ctx, entityID, asOf)
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "direction must be in or out"))
		return
	}
	if err != nil {
		h.writeFailure(ctx, w, "failed to list edges", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EdgeListResponse{EntityID: entityID, AsOf: asOf, Edges: toEdgeResponses(edges)})
}

func (h *Handler) HandleAddEdge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[AddEdgeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	edge, err := h.service.AddEdge(ctx, req.command())
	if err != nil {
		h.writeFailure(ctx, w, "failed to add edge", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toEdgeResponse(edge))
}

func (h *Handler) HandleCloseEdge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	edgeID, err := id.ParseEdgeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CloseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	edge, err := h.service.CloseEdge(ctx, edgeID, req.command())
	if err != nil {
		h.writeFailure(ctx, w, "failed to close edge", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEdgeResponse(edge))
}

func (h *Handler) HandleSupersedeEdge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	edgeID, err := id.ParseEdgeID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SupersedeEdgeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	edge, err := h.service.SupersedeEdge(ctx, edgeID, req.command())
	if err != nil {
		h.writeFailure(ctx, w, "failed to supersede edge", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toEdgeResponse(edge))
}

func (h *Handler) HandleAddControl(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[AddControlRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	rel, err := h.service.AddControl(ctx, req.command())
	if err != nil {
		h.writeFailure(ctx, w, "failed to add control relationship", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toControlResponse(rel))
}

func (h *Handler) HandleCloseControl(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	controlID, err := id.ParseControlID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CloseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	rel, err := h.service.CloseControl(ctx, controlID, req.command())
	if err != nil {
		h.writeFailure(ctx, w, "failed to close control relationship", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toControlResponse(rel))
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", requestcontext.ActorID(ctx).String(),
		"error", err,
	)
	httputil.WriteError(w, err)
}
