package csd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"issuance/internal/platform/config"
)

// Clearstream confirms settlements with GET /settlements/verify and compares
// the reported quantity with the recorded units.
type Clearstream struct {
	creds  *config.CSDCredentials
	client *http.Client
}

type clearstreamResponse struct {
	Quantity json.Number `json:"quantity"`
}

func (v *Clearstream) Verify(ctx context.Context, c Check) (Result, error) {
	if v.creds == nil {
		return mismatch("Clearstream credentials not configured"), nil
	}
	q := url.Values{}
	q.Set("reference", c.ExternalRef)
	q.Set("security_id", c.CSDSecurityID)
	q.Set("date", c.SettledAt.UTC().Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.creds.Endpoint+"/settlements/verify?"+q.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("Clearstream reconciliation failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.creds.APIKey)
	req.Header.Set("Content-Type", "application/json")

	var out clearstreamResponse
	if err := doJSON(v.client, req, "Clearstream", &out); err != nil {
		return Result{}, err
	}
	units := c.Units.String()
	csdUnits := out.Quantity.String()
	if csdUnits == "" {
		csdUnits = "0"
	}
	if csdUnits != units {
		return mismatch("Unit mismatch: on-chain=%s, CSD=%s", units, csdUnits), nil
	}
	return matched(), nil
}
