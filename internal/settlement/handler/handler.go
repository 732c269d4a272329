package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"issuance/internal/reconciliation/models"
	registrymodels "issuance/internal/registry/models"
	"issuance/internal/settlement/service"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/httputil"
	"issuance/pkg/requestcontext"
)

// Service defines the settlement operations exposed over HTTP.
type Service interface {
	SyncSettlement(ctx context.Context, cmd service.SyncCommand) (*models.Record, error)
	Get(ctx context.Context, tradeRef string) (*models.Record, error)
	Reconcile(ctx context.Context, tradeRefs []string, maxConcurrent int) (map[string]service.Outcome, error)
	Report(ctx context.Context, from, to time.Time) (*service.Report, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/settlements", h.HandleSync)
	r.Get("/settlements/report", h.HandleReport)
	r.Post("/settlements/reconcile", h.HandleReconcile)
	r.Get("/settlements/{ref}", h.HandleGet)
}

type SyncRequest struct {
	TradeRef         string `json:"trade_ref"`
	SecurityID       string `json:"security_id"`
	From             string `json:"from"`
	To               string `json:"to"`
	Amount           string `json:"amount"`
	ExternalRef      string `json:"external_ref"`
	SettlementSystem string `json:"settlement_system,omitempty"`

	cmd service.SyncCommand
}

func (r *SyncRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.TradeRef == "" {
		return dErrors.New(dErrors.CodeValidation, "trade_ref is required")
	}
	if len(r.TradeRef) > 128 || len(r.ExternalRef) > 128 {
		return dErrors.New(dErrors.CodeValidation, "references must be at most 128 characters")
	}
	securityID, err := id.ParseSecurityID(r.SecurityID)
	if err != nil {
		return err
	}
	from, err := id.ParseInvestorID(r.From)
	if err != nil {
		return err
	}
	to, err := id.ParseInvestorID(r.To)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "amount must be a decimal string")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeZeroAmount, "amount must be positive")
	}
	var system registrymodels.CSDSystem
	if r.SettlementSystem != "" {
		if system, err = registrymodels.ParseCSDSystem(r.SettlementSystem); err != nil {
			return err
		}
	}
	r.cmd = service.SyncCommand{
		TradeRef:    r.TradeRef,
		SecurityID:  securityID,
		From:        from,
		To:          to,
		Amount:      amount,
		ExternalRef: r.ExternalRef,
		System:      system,
	}
	return nil
}

func (r *SyncRequest) Command() service.SyncCommand {
	return r.cmd
}

type ReconcileRequest struct {
	TradeRefs     []string `json:"trade_refs"`
	MaxConcurrent int      `json:"max_concurrent"`
}

func (r *ReconcileRequest) Validate() error {
	if r == nil || len(r.TradeRefs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "trade_refs is required")
	}
	if len(r.TradeRefs) > 500 {
		return dErrors.New(dErrors.CodeValidation, "at most 500 trade references per batch")
	}
	if r.MaxConcurrent < 0 || r.MaxConcurrent > 50 {
		return dErrors.New(dErrors.CodeValidation, "max_concurrent must be between 0 and 50")
	}
	return nil
}

type SettlementResponse struct {
	TradeRef         string     `json:"trade_ref"`
	SettlementID     string     `json:"settlement_id"`
	SecurityID       string     `json:"security_id"`
	From             string     `json:"from"`
	To               string     `json:"to"`
	Amount           string     `json:"amount"`
	ExternalRef      string     `json:"external_ref"`
	SettlementSystem string     `json:"settlement_system,omitempty"`
	Status           string     `json:"status"`
	Detail           string     `json:"detail,omitempty"`
	ProcessedAt      time.Time  `json:"processed_at"`
	ReconciledAt     *time.Time `json:"reconciled_at,omitempty"`
}

func FromRecord(rec *models.Record) SettlementResponse {
	return SettlementResponse{
		TradeRef:         rec.Reference,
		SettlementID:     rec.InternalID,
		SecurityID:       rec.SecurityID.String(),
		From:             rec.From.String(),
		To:               rec.To.String(),
		Amount:           rec.Amount.String(),
		ExternalRef:      rec.ExternalRef,
		SettlementSystem: rec.System,
		Status:           string(rec.Status),
		Detail:           rec.Detail,
		ProcessedAt:      rec.ProcessedAt,
		ReconciledAt:     rec.ReconciledAt,
	}
}

type ReportPeriod struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

type ReportSummary struct {
	TotalSettlements int `json:"total_settlements"`
	Reconciled       int `json:"reconciled"`
	Pending          int `json:"pending"`
	Discrepancies    int `json:"discrepancies"`
	Diverged         int `json:"diverged"`
}

type ReportResponse struct {
	Period        ReportPeriod         `json:"period"`
	Summary       ReportSummary        `json:"summary"`
	Discrepancies []SettlementResponse `json:"discrepancies"`
	GeneratedAt   time.Time            `json:"generated_at"`
}

func FromReport(r *service.Report) ReportResponse {
	resp := ReportResponse{
		Summary: ReportSummary{
			TotalSettlements: r.Total,
			Reconciled:       r.Reconciled,
			Pending:          r.Pending,
			Discrepancies:    r.Discrepancies,
			Diverged:         r.Diverged,
		},
		Discrepancies: make([]SettlementResponse, 0, len(r.Discrepant)),
		GeneratedAt:   r.GeneratedAt,
	}
	if !r.From.IsZero() {
		resp.Period.Start = &r.From
	}
	if !r.To.IsZero() {
		resp.Period.End = &r.To
	}
	for _, rec := range r.Discrepant {
		resp.Discrepancies = append(resp.Discrepancies, FromRecord(rec))
	}
	return resp
}

func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SyncRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	rec, err := h.service.SyncSettlement(ctx, req.cmd)
	if err != nil {
		h.logger.WarnContext(ctx, "settlement sync failed", "request_id", requestID, "trade_ref", req.TradeRef, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromRecord(rec))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}

func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ReconcileRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	results, err := h.service.Reconcile(ctx, req.TradeRefs, req.MaxConcurrent)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, results)
}

// HandleReport accepts optional RFC 3339 "from" and "to" query parameters.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.service.Report(r.Context(), from, to)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromReport(report))
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeInvalidDate, "invalid timestamp %q", v)
	}
	return t, nil
}
