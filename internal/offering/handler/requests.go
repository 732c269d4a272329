package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"issuance/internal/offering/models"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
)

// ConfigRequest is the body of POST /offerings and PUT /offerings/{id}. The
// security id is ignored on PUT.
type ConfigRequest struct {
	SecurityID     string    `json:"security_id,omitempty"`
	OfferingType   string    `json:"offering_type"`
	MaxRaiseAmount string    `json:"max_raise_amount"`
	LockupSeconds  int64     `json:"lockup_period"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	BaseCurrency   string    `json:"base_currency"`

	config models.Config
}

func (r *ConfigRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	maxRaise, err := parseAmount(r.MaxRaiseAmount, "max_raise_amount")
	if err != nil {
		return err
	}
	currency, err := id.ParseCurrency(r.BaseCurrency)
	if err != nil {
		return err
	}
	if r.LockupSeconds < 0 {
		return dErrors.New(dErrors.CodeValidation, "lockup_period cannot be negative")
	}
	r.config = models.Config{
		OfferingType: strings.TrimSpace(r.OfferingType),
		MaxRaise:     maxRaise,
		Lockup:       time.Duration(r.LockupSeconds) * time.Second,
		Start:        r.Start,
		End:          r.End,
		BaseCurrency: currency,
	}
	return nil
}

func (r *ConfigRequest) Config() models.Config {
	return r.config
}

// CommitmentRequest is the body of POST /offerings/{id}/commitments.
type CommitmentRequest struct {
	Investor         string `json:"investor"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	PaymentReference string `json:"payment_reference"`

	investor id.InvestorID
	amount   decimal.Decimal
	currency id.Currency
}

func (r *CommitmentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	investor, err := id.ParseInvestorID(r.Investor)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "amount must be a decimal string")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeZeroAmount, "amount must be positive")
	}
	currency, err := id.ParseCurrency(r.Currency)
	if err != nil {
		return err
	}
	if len(r.PaymentReference) > 128 {
		return dErrors.New(dErrors.CodeValidation, "payment_reference must be at most 128 characters")
	}
	r.investor, r.amount, r.currency = investor, amount, currency
	return nil
}

// Parsed returns the normalized investor, amount and currency.
func (r *CommitmentRequest) Parsed() (id.InvestorID, decimal.Decimal, id.Currency) {
	return r.investor, r.amount, r.currency
}

// IssuanceRequest is the body of POST /offerings/{id}/issuances.
type IssuanceRequest struct {
	Investor string `json:"investor"`
	Units    int64  `json:"units"`

	investor id.InvestorID
}

func (r *IssuanceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Units <= 0 {
		return dErrors.New(dErrors.CodeZeroUnits, "units must be positive")
	}
	investor, err := id.ParseInvestorID(r.Investor)
	if err != nil {
		return err
	}
	r.investor = investor
	return nil
}

func (r *IssuanceRequest) InvestorID() id.InvestorID {
	return r.investor
}

func parseAmount(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, dErrors.Newf(dErrors.CodeValidation, "%s must be a decimal string", field)
	}
	return d, nil
}
