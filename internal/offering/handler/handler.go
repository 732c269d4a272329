package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"issuance/internal/offering/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/httputil"
	"issuance/pkg/requestcontext"
)

// Service defines the offering operations exposed over HTTP.
type Service interface {
	Configure(ctx context.Context, securityID id.SecurityID, cfg models.Config) (*models.Offering, error)
	UpdateConfig(ctx context.Context, securityID id.SecurityID, cfg models.Config) (*models.Offering, error)
	Get(ctx context.Context, securityID id.SecurityID) (*models.Offering, error)
	RecordCommitment(ctx context.Context, securityID id.SecurityID, investor id.InvestorID, amount decimal.Decimal, currency id.Currency, paymentRef string) (*models.Commitment, error)
	IssueUnits(ctx context.Context, securityID id.SecurityID, investor id.InvestorID, units int64) (*models.Issuance, error)
	Finalize(ctx context.Context, securityID id.SecurityID) (*models.Offering, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts offering endpoints. {id} is the security identifier.
func (h *Handler) Register(r chi.Router) {
	r.Post("/offerings", h.HandleConfigure)
	r.Put("/offerings/{id}", h.HandleUpdateConfig)
	r.Get("/offerings/{id}", h.HandleGet)
	r.Post("/offerings/{id}/commitments", h.HandleRecordCommitment)
	r.Post("/offerings/{id}/issuances", h.HandleIssueUnits)
	r.Post("/offerings/{id}/finalize", h.HandleFinalize)
}

func (h *Handler) HandleConfigure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ConfigRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	securityID, err := id.ParseSecurityID(req.SecurityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	o, err := h.service.Configure(ctx, securityID, req.Config())
	if err != nil {
		h.logger.WarnContext(ctx, "offering configuration failed",
			"request_id", requestID,
			"security_id", securityID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromOffering(o))
}

func (h *Handler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	securityID, err := id.ParseSecurityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ConfigRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	o, err := h.service.UpdateConfig(ctx, securityID, req.Config())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOffering(o))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	securityID, err := id.ParseSecurityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	o, err := h.service.Get(r.Context(), securityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOffering(o))
}

func (h *Handler) HandleRecordCommitment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	securityID, err := id.ParseSecurityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CommitmentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	c, err := h.service.RecordCommitment(ctx, securityID, req.investor, req.amount, req.currency, req.PaymentReference)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromCommitment(c))
}

func (h *Handler) HandleIssueUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	securityID, err := id.ParseSecurityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[IssuanceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	issuance, err := h.service.IssueUnits(ctx, securityID, req.investor, req.Units)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromIssuance(issuance))
}

func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	securityID, err := id.ParseSecurityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	o, err := h.service.Finalize(r.Context(), securityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOffering(o))
}
