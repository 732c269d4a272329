package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"issuance/internal/correlator"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/httputil"
	"issuance/pkg/requestcontext"
)

// Service is the subset of the correlator reachable over HTTP.
type Service interface {
	Fulfill(ctx context.Context, requestID id.RequestID, resp correlator.Response) error
	Cancel(ctx context.Context, requestID id.RequestID) error
	Get(requestID id.RequestID) (correlator.Request, bool)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/requests/{id}", h.HandleGet)
	r.Post("/requests/{id}/fulfill", h.HandleFulfill)
	r.Post("/requests/{id}/cancel", h.HandleCancel)
}

type FulfillRequest struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}

func (r *FulfillRequest) Validate() error {
	if r == nil || r.Kind == "" {
		return dErrors.New(dErrors.CodeValidation, "kind is required")
	}
	return nil
}

type statusResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := h.service.Get(requestID)
	if !ok {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "request %s is not pending", requestID))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) HandleFulfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	reqID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[FulfillRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	resp := correlator.Response{Kind: correlator.Kind(req.Kind), Payload: req.Payload}
	if err := h.service.Fulfill(ctx, reqID, resp); err != nil {
		h.logger.WarnContext(ctx, "request fulfilment failed", "request_id", requestID, "external_request_id", reqID.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{RequestID: reqID.String(), Status: "fulfilled"})
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	reqID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Cancel(r.Context(), reqID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{RequestID: reqID.String(), Status: "cancelled"})
}
