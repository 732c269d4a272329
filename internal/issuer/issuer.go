// Package issuer talks to the downstream unit issuer: the gateway in front of
// the token contract that mints units and forces transfers.
package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	id "issuance/pkg/domain"
	"issuance/pkg/platform/circuit"
)

// Client calls the unit issuer gateway over HTTP. Calls fail fast while the
// breaker is open.
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
		breaker:    circuit.New("unit_issuer"),
		logger:     logger,
	}
}

type mintRequest struct {
	Investor string `json:"investor"`
	Units    int64  `json:"units"`
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Memo   string `json:"memo"`
}

type gatewayResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Mint issues units to investor.
func (c *Client) Mint(ctx context.Context, investor id.InvestorID, units int64) error {
	return c.post(ctx, "/v1/mint", mintRequest{Investor: investor.String(), Units: units})
}

// ForceTransfer moves amount from one holder to another, bypassing holder
// consent. memo carries the settlement reference.
func (c *Client) ForceTransfer(ctx context.Context, from, to id.InvestorID, amount decimal.Decimal, memo string) error {
	return c.post(ctx, "/v1/force-transfer", transferRequest{From: from.String(), To: to.String(), Amount: amount.String(), Memo: memo})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("unit issuer unavailable: circuit open")
	}
	err := c.do(ctx, path, payload)
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
			c.logger.WarnContext(ctx, "unit issuer circuit opened", "error", err)
		}
		return err
	}
	c.breaker.RecordSuccess()
	return nil
}

func (c *Client) do(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unit issuer returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("unit issuer rejected request: %s", out.Error)
	}
	return nil
}

// Logging accepts every call and logs it. Used when no gateway is configured.
type Logging struct {
	Logger *slog.Logger
}

func (l Logging) Mint(ctx context.Context, investor id.InvestorID, units int64) error {
	if l.Logger != nil {
		l.Logger.InfoContext(ctx, "mint", "investor", investor.String(), "units", units)
	}
	return nil
}

func (l Logging) ForceTransfer(ctx context.Context, from, to id.InvestorID, amount decimal.Decimal, memo string) error {
	if l.Logger != nil {
		l.Logger.InfoContext(ctx, "force transfer", "from", from.String(), "to", to.String(), "amount", amount.String(), "memo", memo)
	}
	return nil
}
