package handler

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"issuance/internal/corporateaction/models"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/httputil"
	"issuance/pkg/requestcontext"
)

// Service defines the corporate action operations exposed over HTTP.
type Service interface {
	Process(ctx context.Context, action models.Action) (*models.Fact, error)
	Get(ctx context.Context, reference string) (*models.Fact, error)
	ListBySecurity(ctx context.Context, securityID id.SecurityID) ([]*models.Fact, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/corporate-actions", h.HandleProcess)
	r.Get("/corporate-actions/{ref}", h.HandleGet)
	r.Get("/securities/{id}/corporate-actions", h.HandleListBySecurity)
}

// TermsRequest is the JSON form of action terms. Only the fields of the
// action's kind are read.
type TermsRequest struct {
	AmountPerUnit  string `json:"amount_per_unit,omitempty" cbor:"amount_per_unit,omitempty"`
	Currency       string `json:"currency,omitempty" cbor:"currency,omitempty"`
	Numerator      int64  `json:"numerator,omitempty" cbor:"numerator,omitempty"`
	Denominator    int64  `json:"denominator,omitempty" cbor:"denominator,omitempty"`
	TargetSecurity string `json:"target_security,omitempty" cbor:"target_security,omitempty"`
	ExchangeRate   string `json:"exchange_rate,omitempty" cbor:"exchange_rate,omitempty"`
}

// ProcessRequest carries either structured terms or a base64 CBOR payload.
type ProcessRequest struct {
	Reference     string        `json:"reference"`
	SecurityID    string        `json:"security_id"`
	ActionType    string        `json:"action_type"`
	EffectiveDate string        `json:"effective_date"`
	RecordDate    string        `json:"record_date,omitempty"`
	Terms         *TermsRequest `json:"terms,omitempty"`
	Payload       string        `json:"payload,omitempty"`

	action models.Action
}

func (r *ProcessRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Reference) > 128 {
		return dErrors.New(dErrors.CodeValidation, "reference must be at most 128 characters")
	}
	securityID, err := id.ParseSecurityID(r.SecurityID)
	if err != nil {
		return err
	}
	effective, err := parseDate(r.EffectiveDate)
	if err != nil {
		return err
	}
	var recordDate *time.Time
	if r.RecordDate != "" {
		d, err := parseDate(r.RecordDate)
		if err != nil {
			return err
		}
		recordDate = &d
	}

	var payload []byte
	switch {
	case r.Payload != "" && r.Terms != nil:
		return dErrors.New(dErrors.CodeValidation, "provide either terms or payload, not both")
	case r.Payload != "":
		if payload, err = base64.StdEncoding.DecodeString(r.Payload); err != nil {
			return dErrors.New(dErrors.CodeValidation, "payload must be base64 encoded CBOR")
		}
	case r.Terms != nil:
		if payload, err = models.EncodeWire(r.Terms); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "terms could not be encoded")
		}
	}

	r.action = models.Action{
		Reference:     strings.TrimSpace(r.Reference),
		SecurityID:    securityID,
		Kind:          models.Kind(r.ActionType),
		EffectiveDate: effective,
		RecordDate:    recordDate,
		Payload:       payload,
	}
	return nil
}

func (r *ProcessRequest) Action() models.Action {
	return r.action
}

type FactResponse struct {
	Reference     string         `json:"reference"`
	SecurityID    string         `json:"security_id"`
	ActionType    string         `json:"action_type"`
	EffectiveDate time.Time      `json:"effective_date"`
	RecordDate    *time.Time     `json:"record_date,omitempty"`
	Terms         map[string]any `json:"terms,omitempty"`
	Status        string         `json:"status"`
	Reason        string         `json:"reason,omitempty"`
	ProcessedAt   time.Time      `json:"processed_at"`
}

func FromFact(f *models.Fact) FactResponse {
	resp := FactResponse{
		Reference:     f.Reference,
		SecurityID:    f.SecurityID.String(),
		ActionType:    string(f.Kind),
		EffectiveDate: f.EffectiveDate,
		RecordDate:    f.RecordDate,
		Status:        string(f.Status),
		Reason:        f.Reason,
		ProcessedAt:   f.ProcessedAt,
	}
	if f.Terms != nil {
		resp.Terms = models.TermsPayload(f.Terms)
	}
	return resp
}

func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ProcessRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	fact, err := h.service.Process(ctx, req.action)
	if err != nil {
		h.logger.WarnContext(ctx, "corporate action rejected",
			"request_id", requestID,
			"reference", req.Reference,
			"action_type", req.ActionType,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromFact(fact))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	fact, err := h.service.Get(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFact(fact))
}

func (h *Handler) HandleListBySecurity(w http.ResponseWriter, r *http.Request) {
	securityID, err := id.ParseSecurityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	facts, err := h.service.ListBySecurity(r.Context(), securityID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]FactResponse, 0, len(facts))
	for _, f := range facts {
		out = append(out, FromFact(f))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// parseDate accepts RFC 3339 timestamps and plain calendar dates. Empty input
// yields the zero time, which the service rejects.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, dErrors.Newf(dErrors.CodeInvalidDate, "invalid date %q", v)
	}
	return t, nil
}
