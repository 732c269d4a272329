package handler

import (
	"time"

	"issuance/internal/registry/models"
)

type SecurityResponse struct {
	SecurityID   string       `json:"security_id"`
	IssuerLEI    string       `json:"issuer_lei"`
	UPI          string       `json:"upi"`
	Description  string       `json:"description"`
	Currency     string       `json:"currency"`
	IssueDate    time.Time    `json:"issue_date"`
	MaturityDate *time.Time   `json:"maturity_date,omitempty"`
	TotalSupply  int64        `json:"total_supply"`
	NAV          *NAVResponse `json:"nav,omitempty"`
	RegisteredAt time.Time    `json:"registered_at"`
}

type NAVResponse struct {
	Value    string    `json:"value"`
	Currency string    `json:"currency"`
	AsOf     time.Time `json:"as_of"`
}

func FromSecurity(sec *models.Security) SecurityResponse {
	resp := SecurityResponse{
		SecurityID:   sec.ID.String(),
		IssuerLEI:    sec.IssuerLEI.String(),
		UPI:          sec.UPI.String(),
		Description:  sec.Description,
		Currency:     sec.Currency.String(),
		IssueDate:    sec.IssueDate,
		MaturityDate: sec.MaturityDate,
		TotalSupply:  sec.TotalSupply,
		RegisteredAt: sec.RegisteredAt,
	}
	if sec.NAV != nil {
		resp.NAV = &NAVResponse{Value: sec.NAV.Value.String(), Currency: sec.NAV.Currency.String(), AsOf: sec.NAV.AsOf}
	}
	return resp
}

type PendingRequestResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}
