package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"issuance/internal/derivatives/models"
	"issuance/internal/derivatives/service"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/httputil"
	"issuance/pkg/requestcontext"
)

// Service defines the derivative reporting operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, cmd service.ReportCommand) (*models.Report, error)
	Correct(ctx context.Context, prior id.UTI, cmd service.ReportCommand) (*models.Report, error)
	ReportError(ctx context.Context, uti id.UTI, reason string) (*models.Report, error)
	Get(ctx context.Context, uti id.UTI) (*models.Report, error)
	Chain(ctx context.Context, uti id.UTI) ([]*models.Report, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/derivatives", h.HandleSubmit)
	r.Get("/derivatives/{uti}", h.HandleGet)
	r.Get("/derivatives/{uti}/chain", h.HandleChain)
	r.Post("/derivatives/{uti}/correct", h.HandleCorrect)
	r.Post("/derivatives/{uti}/errors", h.HandleReportError)
}

type CounterpartyRequest struct {
	LEI          string `json:"lei"`
	Jurisdiction string `json:"jurisdiction"`
	Reportable   bool   `json:"reportable"`
}

type CollateralRequest struct {
	InitialMargin   string `json:"initial_margin"`
	VariationMargin string `json:"variation_margin"`
	Currency        string `json:"currency"`
}

type ValuationRequest struct {
	Amount   string    `json:"amount"`
	Currency string    `json:"currency"`
	AsOf     time.Time `json:"as_of"`
}

type ReportRequest struct {
	UTI            string                `json:"uti"`
	SecurityID     string                `json:"security_id"`
	Counterparties []CounterpartyRequest `json:"counterparties"`
	Collateral     CollateralRequest     `json:"collateral"`
	Valuation      ValuationRequest      `json:"valuation"`

	cmd service.ReportCommand
}

func (r *ReportRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	uti, err := id.ParseUTI(r.UTI)
	if err != nil {
		return err
	}
	securityID, err := id.ParseSecurityID(r.SecurityID)
	if err != nil {
		return err
	}
	if len(r.Counterparties) != 2 {
		return dErrors.New(dErrors.CodeValidation, "exactly two counterparties are required")
	}
	var counterparties [2]models.Counterparty
	for i, cp := range r.Counterparties {
		lei, err := id.ParseLEI(cp.LEI)
		if err != nil {
			return err
		}
		counterparties[i] = models.Counterparty{LEI: lei, Jurisdiction: cp.Jurisdiction, Reportable: cp.Reportable}
	}
	initial, err := parseDecimal("collateral.initial_margin", r.Collateral.InitialMargin)
	if err != nil {
		return err
	}
	variation, err := parseDecimal("collateral.variation_margin", r.Collateral.VariationMargin)
	if err != nil {
		return err
	}
	value, err := parseDecimal("valuation.amount", r.Valuation.Amount)
	if err != nil {
		return err
	}
	collateralCurrency, err := optionalCurrency(r.Collateral.Currency)
	if err != nil {
		return err
	}
	valuationCurrency, err := optionalCurrency(r.Valuation.Currency)
	if err != nil {
		return err
	}
	r.cmd = service.ReportCommand{
		UTI:            uti,
		SecurityID:     securityID,
		Counterparties: counterparties,
		Collateral:     models.Collateral{InitialMargin: initial, VariationMargin: variation, Currency: collateralCurrency},
		Valuation:      models.Valuation{Amount: value, Currency: valuationCurrency, AsOf: r.Valuation.AsOf},
	}
	return nil
}

func (r *ReportRequest) Command() service.ReportCommand {
	return r.cmd
}

type ErrorRequest struct {
	Reason string `json:"reason"`
}

func (r *ErrorRequest) Validate() error {
	if r == nil || r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > 1024 {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 1024 characters")
	}
	return nil
}

type ErrorEntryResponse struct {
	Reason       string    `json:"reason"`
	ReportedAt   time.Time `json:"reported_at"`
	Acknowledged bool      `json:"acknowledged"`
}

type ReportResponse struct {
	UTI            string                `json:"uti"`
	SecurityID     string                `json:"security_id"`
	Counterparties []CounterpartyRequest `json:"counterparties"`
	Collateral     CollateralRequest     `json:"collateral"`
	Valuation      ValuationRequest      `json:"valuation"`
	PriorUTI       string                `json:"prior_uti,omitempty"`
	SupersededBy   string                `json:"superseded_by,omitempty"`
	Status         string                `json:"status"`
	StatusReason   string                `json:"status_reason,omitempty"`
	RepositoryRef  string                `json:"repository_ref,omitempty"`
	Errors         []ErrorEntryResponse  `json:"errors"`
	SubmittedAt    time.Time             `json:"submitted_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func FromReport(r *models.Report) ReportResponse {
	resp := ReportResponse{
		UTI:        r.UTI.String(),
		SecurityID: r.SecurityID.String(),
		Collateral: CollateralRequest{
			InitialMargin:   r.Collateral.InitialMargin.String(),
			VariationMargin: r.Collateral.VariationMargin.String(),
			Currency:        r.Collateral.Currency.String(),
		},
		Valuation: ValuationRequest{
			Amount:   r.Valuation.Amount.String(),
			Currency: r.Valuation.Currency.String(),
			AsOf:     r.Valuation.AsOf,
		},
		PriorUTI:      r.PriorUTI.String(),
		SupersededBy:  r.SupersededBy.String(),
		Status:        string(r.Status),
		StatusReason:  r.StatusReason,
		RepositoryRef: r.RepositoryRef,
		Errors:        make([]ErrorEntryResponse, 0, len(r.Errors)),
		SubmittedAt:   r.SubmittedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	for _, cp := range r.Counterparties {
		resp.Counterparties = append(resp.Counterparties, CounterpartyRequest{
			LEI:          cp.LEI.String(),
			Jurisdiction: cp.Jurisdiction,
			Reportable:   cp.Reportable,
		})
	}
	for _, e := range r.Errors {
		resp.Errors = append(resp.Errors, ErrorEntryResponse(e))
	}
	return resp
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ReportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	report, err := h.service.Submit(ctx, req.cmd)
	if err != nil {
		h.logger.WarnContext(ctx, "derivative submission failed", "request_id", requestID, "uti", req.UTI, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, FromReport(report))
}

func (h *Handler) HandleCorrect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	prior, err := id.ParseUTI(chi.URLParam(r, "uti"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	report, err := h.service.Correct(ctx, prior, req.cmd)
	if err != nil {
		h.logger.WarnContext(ctx, "derivative correction failed", "request_id", requestID, "prior_uti", prior.String(), "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, FromReport(report))
}

func (h *Handler) HandleReportError(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uti, err := id.ParseUTI(chi.URLParam(r, "uti"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ErrorRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	report, err := h.service.ReportError(ctx, uti, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, FromReport(report))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Get(r.Context(), id.UTI(chi.URLParam(r, "uti")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromReport(report))
}

func (h *Handler) HandleChain(w http.ResponseWriter, r *http.Request) {
	chain, err := h.service.Chain(r.Context(), id.UTI(chi.URLParam(r, "uti")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]ReportResponse, 0, len(chain))
	for _, report := range chain {
		out = append(out, FromReport(report))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func parseDecimal(field, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, dErrors.Newf(dErrors.CodeValidation, "%s must be a decimal string", field)
	}
	return d, nil
}

func optionalCurrency(v string) (id.Currency, error) {
	if v == "" {
		return "", nil
	}
	return id.ParseCurrency(v)
}
