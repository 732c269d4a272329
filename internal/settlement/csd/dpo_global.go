package csd

import (
	"context"
	"net/http"

	"issuance/internal/platform/config"
)

// DPOGlobal verifies against the internal DPO Global settlement ledger.
type DPOGlobal struct {
	creds  *config.CSDCredentials
	client *http.Client
}

type dpoGlobalRequest struct {
	SettlementID string `json:"settlement_id"`
	Investor     string `json:"investor"`
	Units        string `json:"units"`
	Timestamp    string `json:"timestamp"`
}

type dpoGlobalResponse struct {
	Verified bool   `json:"verified"`
	Error    string `json:"error"`
}

func (v *DPOGlobal) Verify(ctx context.Context, c Check) (Result, error) {
	if v.creds == nil {
		return mismatch("DPO Global credentials not configured"), nil
	}
	req, err := newJSONRequest(ctx, v.creds.Endpoint+"/api/v1/settlements/verify", "DPO Global", dpoGlobalRequest{
		SettlementID: c.ExternalRef,
		Investor:     c.Investor.String(),
		Units:        c.Units.String(),
		Timestamp:    c.SettledAt.UTC().Format(timestampLayout),
	})
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+v.creds.APIKey)

	var out dpoGlobalResponse
	if err := doJSON(v.client, req, "DPO Global", &out); err != nil {
		return Result{}, err
	}
	if !out.Verified {
		if out.Error != "" {
			return mismatch("%s", out.Error), nil
		}
		return mismatch("Verification failed"), nil
	}
	return matched(), nil
}
