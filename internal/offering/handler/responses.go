package handler

import (
	"time"

	"issuance/internal/offering/models"
)

type OfferingResponse struct {
	SecurityID       string     `json:"security_id"`
	State            string     `json:"state"`
	OfferingType     string     `json:"offering_type"`
	MaxRaiseAmount   string     `json:"max_raise_amount"`
	LockupSeconds    int64      `json:"lockup_period"`
	Start            time.Time  `json:"start"`
	End              time.Time  `json:"end"`
	BaseCurrency     string     `json:"base_currency"`
	TotalCommitted   string     `json:"total_committed"`
	TotalUnitsIssued int64      `json:"total_units_issued"`
	FinalizedAt      *time.Time `json:"finalized_at,omitempty"`
}

func FromOffering(o *models.Offering) OfferingResponse {
	return OfferingResponse{
		SecurityID:       o.SecurityID.String(),
		State:            string(o.State()),
		OfferingType:     o.Config.OfferingType,
		MaxRaiseAmount:   o.Config.MaxRaise.String(),
		LockupSeconds:    int64(o.Config.Lockup / time.Second),
		Start:            o.Config.Start,
		End:              o.Config.End,
		BaseCurrency:     o.Config.BaseCurrency.String(),
		TotalCommitted:   o.TotalCommitted.String(),
		TotalUnitsIssued: o.TotalIssued,
		FinalizedAt:      o.FinalizedAt,
	}
}

type CommitmentResponse struct {
	SecurityID        string    `json:"security_id"`
	Investor          string    `json:"investor"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	PaymentReference  string    `json:"payment_reference,omitempty"`
	InvestorCommitted string    `json:"investor_committed"`
	TotalCommitted    string    `json:"total_committed"`
	RecordedAt        time.Time `json:"recorded_at"`
}

func FromCommitment(c *models.Commitment) CommitmentResponse {
	return CommitmentResponse{
		SecurityID:        c.SecurityID.String(),
		Investor:          c.Investor.String(),
		Amount:            c.Amount.String(),
		Currency:          c.Currency.String(),
		PaymentReference:  c.PaymentReference,
		InvestorCommitted: c.InvestorCommitted.String(),
		TotalCommitted:    c.TotalCommitted.String(),
		RecordedAt:        c.RecordedAt,
	}
}

type IssuanceResponse struct {
	SecurityID    string    `json:"security_id"`
	Investor      string    `json:"investor"`
	Units         int64     `json:"units"`
	InvestorUnits int64     `json:"investor_units"`
	TotalIssued   int64     `json:"total_units_issued"`
	LockupRelease time.Time `json:"lockup_release"`
	IssuedAt      time.Time `json:"issued_at"`
}

func FromIssuance(i *models.Issuance) IssuanceResponse {
	return IssuanceResponse{
		SecurityID:    i.SecurityID.String(),
		Investor:      i.Investor.String(),
		Units:         i.Units,
		InvestorUnits: i.InvestorUnits,
		TotalIssued:   i.TotalIssued,
		LockupRelease: i.LockupRelease,
		IssuedAt:      i.IssuedAt,
	}
}
