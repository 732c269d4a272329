package csd

import (
	"context"
	"net/http"

	"issuance/internal/platform/config"
)

// Euroclear posts the settlement instruction to /v1/settlement/verify.
type Euroclear struct {
	creds  *config.CSDCredentials
	client *http.Client
}

type euroclearRequest struct {
	InstructionReference string `json:"instruction_reference"`
	ISIN                 string `json:"isin"`
	SettlementDate       string `json:"settlement_date"`
	Quantity             string `json:"quantity"`
}

type euroclearResponse struct {
	Matched bool   `json:"matched"`
	Reason  string `json:"reason"`
}

func (v *Euroclear) Verify(ctx context.Context, c Check) (Result, error) {
	if v.creds == nil {
		return mismatch("Euroclear credentials not configured"), nil
	}
	req, err := newJSONRequest(ctx, v.creds.Endpoint+"/v1/settlement/verify", "Euroclear", euroclearRequest{
		InstructionReference: c.ExternalRef,
		ISIN:                 c.SecurityID.String(),
		SettlementDate:       c.SettledAt.UTC().Format(timestampLayout),
		Quantity:             c.Units.String(),
	})
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("X-API-Key", v.creds.APIKey)

	var out euroclearResponse
	if err := doJSON(v.client, req, "Euroclear", &out); err != nil {
		return Result{}, err
	}
	if !out.Matched {
		reason := out.Reason
		if reason == "" {
			reason = "Unknown"
		}
		return mismatch("Euroclear mismatch: %s", reason), nil
	}
	return matched(), nil
}
