package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"issuance/internal/ledger/models"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/httputil"
	"issuance/pkg/requestcontext"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	Whitelist(ctx context.Context, investor id.InvestorID, jurisdiction string, kyc, aml bool) (*models.Position, error)
	SetCompliance(ctx context.Context, investor id.InvestorID, kyc, aml bool) (*models.Position, error)
	RequestValidation(ctx context.Context, investor id.InvestorID) (id.RequestID, error)
	Get(ctx context.Context, investor id.InvestorID) (*models.Position, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/investors", h.HandleWhitelist)
	r.Get("/investors/{id}", h.HandleGet)
	r.Put("/investors/{id}/compliance", h.HandleSetCompliance)
	r.Post("/investors/{id}/validation", h.HandleRequestValidation)
}

type WhitelistRequest struct {
	Investor     string `json:"investor"`
	Jurisdiction string `json:"jurisdiction"`
	KYCPassed    bool   `json:"kyc_passed"`
	AMLPassed    bool   `json:"aml_passed"`

	investor id.InvestorID
}

func (r *WhitelistRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	investor, err := id.ParseInvestorID(r.Investor)
	if err != nil {
		return err
	}
	r.investor = investor
	if len(strings.TrimSpace(r.Jurisdiction)) > 8 {
		return dErrors.New(dErrors.CodeValidation, "jurisdiction must be at most 8 characters")
	}
	return nil
}

func (r *WhitelistRequest) InvestorID() id.InvestorID {
	return r.investor
}

type ComplianceRequest struct {
	KYCPassed *bool `json:"kyc_passed"`
	AMLPassed *bool `json:"aml_passed"`
}

func (r *ComplianceRequest) Validate() error {
	if r == nil || r.KYCPassed == nil || r.AMLPassed == nil {
		return dErrors.New(dErrors.CodeValidation, "kyc_passed and aml_passed are required")
	}
	return nil
}

type HoldingResponse struct {
	SecurityID    string     `json:"security_id"`
	Committed     string     `json:"committed"`
	IssuedUnits   int64      `json:"issued_units"`
	LockupRelease *time.Time `json:"lockup_release,omitempty"`
}

type PositionResponse struct {
	Investor     string            `json:"investor"`
	Jurisdiction string            `json:"jurisdiction"`
	KYCPassed    bool              `json:"kyc_passed"`
	AMLPassed    bool              `json:"aml_passed"`
	Holdings     []HoldingResponse `json:"holdings"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func FromPosition(p *models.Position) PositionResponse {
	resp := PositionResponse{
		Investor:     p.Investor.String(),
		Jurisdiction: p.Jurisdiction,
		KYCPassed:    p.KYCPassed,
		AMLPassed:    p.AMLPassed,
		Holdings:     make([]HoldingResponse, 0, len(p.Holdings)),
		UpdatedAt:    p.UpdatedAt,
	}
	for _, securityID := range p.SecurityIDs() {
		h := p.Holdings[securityID]
		resp.Holdings = append(resp.Holdings, HoldingResponse{
			SecurityID:    securityID.String(),
			Committed:     h.Committed.String(),
			IssuedUnits:   h.IssuedUnits,
			LockupRelease: h.LockupRelease,
		})
	}
	return resp
}

func (h *Handler) HandleWhitelist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[WhitelistRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.Whitelist(ctx, req.investor, req.Jurisdiction, req.KYCPassed, req.AMLPassed)
	if err != nil {
		h.logger.WarnContext(ctx, "whitelist failed", "request_id", requestID, "investor", req.Investor, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPosition(p))
}

func (h *Handler) HandleSetCompliance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	investor, err := id.ParseInvestorID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ComplianceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.service.SetCompliance(ctx, investor, *req.KYCPassed, *req.AMLPassed)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPosition(p))
}

func (h *Handler) HandleRequestValidation(w http.ResponseWriter, r *http.Request) {
	investor, err := id.ParseInvestorID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqID, err := h.service.RequestValidation(r.Context(), investor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"request_id": reqID.String(), "status": "pending"})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	investor, err := id.ParseInvestorID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), investor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPosition(p))
}
