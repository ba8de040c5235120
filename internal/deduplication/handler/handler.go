// Package handler exposes the deduplication workflow over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	dmodels "dedup/internal/deduplication/models"
	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
	"dedup/pkg/platform/httputil"
	authmw "dedup/pkg/platform/middleware/auth"
	"dedup/pkg/platform/middleware/request"
	"dedup/pkg/requestcontext"
)

// Permissions checked on the routes.
const (
	PermSearch            = "beneficiary.search"
	PermCreateReviewTasks = "deduplication.review_tasks.create"
)

//go:generate mockgen -source=handler.go -destination=mocks/handler-mocks.go -package=mocks Service

// Service defines the deduplication operations the handler drives.
type Service interface {
	Summarize(ctx context.Context, cols []string, planID id.BenefitPlanID) ([]dmodels.SummaryRow, error)
	CreateReviewTasksForPlan(ctx context.Context, planID id.BenefitPlanID, attributes []string, actingUser id.UserID) (dmodels.BatchResult, error)
	RenderPayload(ctx context.Context, ref dmodels.SerializerRef, data map[string]any) (map[string]any, error)
}

type Handler struct {
	service      Service
	logger       *slog.Logger
	jwtValidator authmw.JWTValidator
}

func New(service Service, logger *slog.Logger, jwtValidator authmw.JWTValidator) *Handler {
	return &Handler{
		service:      service,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the authenticated deduplication routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(h.jwtValidator, h.logger))

		r.With(authmw.RequirePermission(PermSearch, h.logger)).
			Get("/v1/benefit-plans/{planID}/duplicates", h.handleSummary)
		r.With(authmw.RequirePermission(PermCreateReviewTasks, h.logger)).
			Post("/v1/benefit-plans/{planID}/duplicates/review-tasks", h.handleCreateReviewTasks)
		r.With(authmw.RequirePermission(PermCreateReviewTasks, h.logger)).
			Post("/v1/deduplication/payloads/render", h.handleRenderPayload)
	})
}

type summaryResponse struct {
	Rows []dmodels.SummaryRow `json:"rows"`
}

// handleSummary answers GET ?columns=a,b or repeated ?columns=a&columns=b.
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, err := id.ParseBenefitPlanID(chi.URLParam(r, "planID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var cols []string
	for _, v := range r.URL.Query()["columns"] {
		cols = append(cols, strings.Split(v, ",")...)
	}

	rows, err := h.service.Summarize(ctx, cols, planID)
	if err != nil {
		h.logFailure(ctx, "duplicate summary failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summaryResponse{Rows: rows})
}

type createReviewTasksRequest struct {
	Columns []string `json:"columns"`
}

func (h *Handler) handleCreateReviewTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID, err := id.ParseBenefitPlanID(chi.URLParam(r, "planID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req createReviewTasksRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.CreateReviewTasksForPlan(ctx, planID, req.Columns, requestcontext.UserID(ctx))
	if err != nil {
		h.logFailure(ctx, "review task creation failed", err)
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if !result.Success {
		status = http.StatusMultiStatus
	}
	httputil.WriteJSON(w, status, result)
}

type renderPayloadRequest struct {
	Serializer dmodels.SerializerRef `json:"json_serializer"`
	Data       map[string]any        `json:"data"`
}

func (h *Handler) handleRenderPayload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req renderPayloadRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Data == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "data is required"))
		return
	}
	out, err := h.service.RenderPayload(ctx, req.Serializer, req.Data)
	if err != nil {
		h.logFailure(ctx, "payload render failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", request.GetRequestID(ctx),
		"error", err,
	)
}
