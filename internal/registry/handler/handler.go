package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"issuance/internal/registry/models"
	"issuance/internal/registry/service"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/httputil"
	"issuance/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, cmd service.RegisterCommand) (*models.Security, error)
	Get(ctx context.Context, securityID id.SecurityID) (*models.Security, error)
	List(ctx context.Context) ([]*models.Security, error)
	SetCSDMapping(ctx context.Context, m models.CSDMapping) error
	RequestNAV(ctx context.Context, securityID id.SecurityID) (id.RequestID, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts registry endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/securities", h.HandleRegister)
	r.Get("/securities", h.HandleList)
	r.Get("/securities/{id}", h.HandleGet)
	r.Post("/securities/{id}/nav", h.HandleRequestNAV)
	r.Put("/securities/{id}/csd-mappings", h.HandleSetCSDMapping)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterSecurityRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sec, err := h.service.Register(ctx, req.Command())
	if err != nil {
		h.logger.WarnContext(ctx, "security registration failed",
			"request_id", requestID,
			"security_id", req.SecurityID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromSecurity(sec))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := make([]SecurityResponse, 0, len(list))
	for _, sec := range list {
		resp = append(resp, FromSecurity(sec))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	securityID, err := id.ParseSecurityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sec, err := h.service.Get(r.Context(), securityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSecurity(sec))
}

func (h *Handler) HandleRequestNAV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	securityID, err := id.ParseSecurityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqID, err := h.service.RequestNAV(ctx, securityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "nav requested",
		"request_id", requestcontext.RequestID(ctx),
		"security_id", securityID.String(),
		"external_request_id", reqID.String(),
	)
	httputil.WriteJSON(w, http.StatusAccepted, PendingRequestResponse{RequestID: reqID.String(), Status: "pending"})
}

func (h *Handler) HandleSetCSDMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	securityID, err := id.ParseSecurityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CSDMappingRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SetCSDMapping(ctx, req.Mapping(securityID)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
