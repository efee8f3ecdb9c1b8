package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ownergraph/internal/snapshot/export"
	"ownergraph/internal/snapshot/models"
	"ownergraph/internal/snapshot/service"
	id "ownergraph/pkg/domain"
	dErrors "ownergraph/pkg/domain-errors"
	"ownergraph/pkg/platform/httputil"
	"ownergraph/pkg/requestcontext"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Service defines the snapshot operations exposed over HTTP.
type Service interface {
	CaptureWithBackoff(ctx context.Context, cmd service.CaptureCommand, policy service.RetryPolicy) (*models.Snapshot, error)
	Get(ctx context.Context, snapshotID id.SnapshotID) (*models.Snapshot, error)
	List(ctx context.Context, subject id.EntityID) ([]models.Summary, error)
	Compare(ctx context.Context, baselineID, currentID id.SnapshotID) (*models.Comparison, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/subjects/{id}/snapshots", h.HandleCapture)
	r.Get("/subjects/{id}/snapshots", h.HandleList)
	r.Get("/snapshots/compare", h.HandleCompare)
	r.Get("/snapshots/compare.xlsx", h.HandleCompareXLSX)
	r.Get("/snapshots/{id}", h.HandleGet)
}

type SnapshotListResponse struct {
	SubjectID id.EntityID      `json:"subject_id"`
	Snapshots []models.Summary `json:"snapshots"`
}

func (h *Handler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	subject, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CaptureRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	snap, err := h.service.CaptureWithBackoff(ctx, service.CaptureCommand{
		SubjectID: subject,
		Reason:    req.Reason,
		Trigger:   req.trigger,
	}, service.DefaultRetryPolicy)
	if err != nil {
		h.writeFailure(ctx, w, "failed to capture snapshot", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, snap)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := id.ParseEntityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, err := h.service.List(ctx, subject)
	if err != nil {
		h.writeFailure(ctx, w, "failed to list snapshots", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SnapshotListResponse{SubjectID: subject, Snapshots: items})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snapshotID, err := id.ParseSnapshotID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	snap, err := h.service.Get(ctx, snapshotID)
	if err != nil {
		h.writeFailure(ctx, w, "failed to load snapshot", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cmp, ok := h.compare(ctx, w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cmp)
}

func (h *Handler) HandleCompareXLSX(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cmp, ok := h.compare(ctx, w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteComparison(&buf, cmp); err != nil {
		h.writeFailure(ctx, w, "failed to render comparison", dErrors.Wrap(err, dErrors.CodeInternal, "failed to render comparison"))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="comparison-`+cmp.BaselineID.String()+`-`+cmp.CurrentID.String()+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) compare(ctx context.Context, w http.ResponseWriter, r *http.Request) (*models.Comparison, bool) {
	baseline, err := id.ParseSnapshotID(r.URL.Query().Get("baseline"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "baseline must be a valid snapshot id"))
		return nil, false
	}
	current, err := id.ParseSnapshotID(r.URL.Query().Get("current"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "current must be a valid snapshot id"))
		return nil, false
	}
	cmp, err := h.service.Compare(ctx, baseline, current)
	if err != nil {
		h.writeFailure(ctx, w, "failed to compare snapshots", err)
		return nil, false
	}
	return cmp, true
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", requestcontext.ActorID(ctx).String(),
		"error", err,
	)
	httputil.WriteError(w, err)
}
