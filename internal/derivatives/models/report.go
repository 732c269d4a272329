// Package models holds derivative trade reports and their correction chain.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Counterparty is one side of the reported trade.
type Counterparty struct {
	LEI          id.LEI
	Jurisdiction string
	// Reportable is false when the counterparty is exempt from reporting in
	// its jurisdiction.
	Reportable bool
}

// Collateral is the margin snapshot at report time.
type Collateral struct {
	InitialMargin   decimal.Decimal
	VariationMargin decimal.Decimal
	Currency        id.Currency
}

// Valuation is the mark-to-market snapshot at report time.
type Valuation struct {
	Amount   decimal.Decimal
	Currency id.Currency
	AsOf     time.Time
}

// ErrorEntry is an error reported against a submitted UTI.
type ErrorEntry struct {
	Reason       string
	ReportedAt   time.Time
	Acknowledged bool
}

// Report is immutable after creation apart from its repository status,
// error log and SupersededBy link. A correction creates a new report whose
// PriorUTI points at the one it replaces.
type Report struct {
	UTI            id.UTI
	SecurityID     id.SecurityID
	Counterparties [2]Counterparty
	Collateral     Collateral
	Valuation      Valuation
	PriorUTI       id.UTI
	SupersededBy   id.UTI
	Status         Status
	StatusReason   string
	RepositoryRef  string
	Errors         []ErrorEntry
	SubmittedAt    time.Time
	UpdatedAt      time.Time
}

// Validate checks the invariants a report must satisfy before it is stored.
func (r *Report) Validate() error {
	if r.UTI == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "UTI cannot be empty")
	}
	if r.SecurityID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidSecurity, "security identifier is required")
	}
	for i, cp := range r.Counterparties {
		if cp.LEI.IsNil() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "counterparty %d requires an LEI", i+1)
		}
	}
	if r.Counterparties[0].LEI == r.Counterparties[1].LEI {
		return dErrors.New(dErrors.CodeInvalidInput, "counterparties must be distinct")
	}
	if r.Collateral.InitialMargin.IsNegative() || r.Collateral.VariationMargin.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "collateral cannot be negative")
	}
	if r.PriorUTI == r.UTI {
		return dErrors.New(dErrors.CodeValidation, "a correction must carry a new UTI")
	}
	return nil
}

func (r *Report) Superseded() bool { return r.SupersededBy != "" }

func (r *Report) Clone() *Report {
	c := *r
	c.Errors = append([]ErrorEntry(nil), r.Errors...)
	return &c
}

// Ack is the trade repository's answer to a submission or correction.
type Ack struct {
	Accepted  bool
	Reference string
	Reason    string
}
