// Package repository talks to the external trade repository that derivative
// reports are filed with.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"issuance/internal/derivatives/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/circuit"
)

// Client files reports over HTTP. Calls fail fast while the breaker is open.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuit.New("trade_repository"),
		logger:     logger,
	}
}

type counterpartyBody struct {
	LEI          string `json:"lei"`
	Jurisdiction string `json:"jurisdiction"`
	Reportable   bool   `json:"reportable"`
}

type reportBody struct {
	UTI            string             `json:"uti"`
	PriorUTI       string             `json:"prior_uti,omitempty"`
	SecurityID     string             `json:"security_id"`
	Counterparties []counterpartyBody `json:"counterparties"`
	Collateral     struct {
		InitialMargin   string `json:"initial_margin"`
		VariationMargin string `json:"variation_margin"`
		Currency        string `json:"currency,omitempty"`
	} `json:"collateral"`
	Valuation struct {
		Amount   string    `json:"amount"`
		Currency string    `json:"currency,omitempty"`
		AsOf     time.Time `json:"as_of"`
	} `json:"valuation"`
}

type errorBody struct {
	Reason string `json:"reason"`
}

type ackBody struct {
	Accepted  bool   `json:"accepted"`
	Reference string `json:"reference,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func toBody(r *models.Report) reportBody {
	b := reportBody{
		UTI:        r.UTI.String(),
		PriorUTI:   r.PriorUTI.String(),
		SecurityID: r.SecurityID.String(),
	}
	for _, cp := range r.Counterparties {
		b.Counterparties = append(b.Counterparties, counterpartyBody{
			LEI:          cp.LEI.String(),
			Jurisdiction: cp.Jurisdiction,
			Reportable:   cp.Reportable,
		})
	}
	b.Collateral.InitialMargin = r.Collateral.InitialMargin.String()
	b.Collateral.VariationMargin = r.Collateral.VariationMargin.String()
	b.Collateral.Currency = r.Collateral.Currency.String()
	b.Valuation.Amount = r.Valuation.Amount.String()
	b.Valuation.Currency = r.Valuation.Currency.String()
	b.Valuation.AsOf = r.Valuation.AsOf
	return b
}

// Submit files a new report.
func (c *Client) Submit(ctx context.Context, r *models.Report) (models.Ack, error) {
	return c.post(ctx, "/v1/reports", toBody(r))
}

// Correct files next as the replacement of prior.
func (c *Client) Correct(ctx context.Context, prior id.UTI, next *models.Report) (models.Ack, error) {
	return c.post(ctx, "/v1/reports/"+url.PathEscape(prior.String())+"/corrections", toBody(next))
}

// ReportError records an error against a filed report.
func (c *Client) ReportError(ctx context.Context, uti id.UTI, reason string) (models.Ack, error) {
	return c.post(ctx, "/v1/reports/"+url.PathEscape(uti.String())+"/errors", errorBody{Reason: reason})
}

func (c *Client) post(ctx context.Context, path string, payload any) (models.Ack, error) {
	if !c.breaker.Allow() {
		return models.Ack{}, fmt.Errorf("trade repository unavailable: circuit open")
	}
	ack, err := c.do(ctx, path, payload)
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
			c.logger.WarnContext(ctx, "trade repository circuit opened", "error", err)
		}
		return models.Ack{}, err
	}
	c.breaker.RecordSuccess()
	return ack, nil
}

func (c *Client) do(ctx context.Context, path string, payload any) (models.Ack, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.Ack{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return models.Ack{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Ack{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// 422 carries a rejection in the same shape as an acceptance.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return models.Ack{}, fmt.Errorf("trade repository returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out ackBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Ack{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return models.Ack{Accepted: out.Accepted, Reference: out.Reference, Reason: out.Reason}, nil
}

// Logging accepts every filing and logs it. Used when no repository endpoint
// is configured.
type Logging struct {
	Logger *slog.Logger
}

func (l Logging) Submit(ctx context.Context, r *models.Report) (models.Ack, error) {
	l.log(ctx, "derivative report filed", "uti", r.UTI.String())
	return models.Ack{Accepted: true, Reference: "local:" + r.UTI.String()}, nil
}

func (l Logging) Correct(ctx context.Context, prior id.UTI, next *models.Report) (models.Ack, error) {
	l.log(ctx, "derivative correction filed", "prior_uti", prior.String(), "uti", next.UTI.String())
	return models.Ack{Accepted: true, Reference: "local:" + next.UTI.String()}, nil
}

func (l Logging) ReportError(ctx context.Context, uti id.UTI, reason string) (models.Ack, error) {
	l.log(ctx, "derivative error filed", "uti", uti.String(), "reason", reason)
	return models.Ack{Accepted: true}, nil
}

func (l Logging) log(ctx context.Context, msg string, args ...any) {
	if l.Logger != nil {
		l.Logger.InfoContext(ctx, msg, args...)
	}
}
