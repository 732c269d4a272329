// Package models holds the securities registry records.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
)

// Security is the canonical metadata for one instrument. The identifier is
// immutable once registered; only the supply counter, NAV and CSD mappings
// change afterwards.
type Security struct {
	ID           id.SecurityID
	IssuerLEI    id.LEI
	UPI          id.UPI
	Description  string
	Currency     id.Currency
	IssueDate    time.Time
	MaturityDate *time.Time
	TotalSupply  int64
	NAV          *NAV
	RegisteredAt time.Time
}

// NAV is the last net asset value delivered by the data provider.
type NAV struct {
	Value    decimal.Decimal
	Currency id.Currency
	AsOf     time.Time
}

// NewSecurity validates required fields.
//
// Errors: CodeInvalidSecurity for a missing identifier, issuer, UPI, issue
// date or description, or a maturity date before the issue date.
func NewSecurity(securityID id.SecurityID, issuer id.LEI, upi id.UPI, description string, currency id.Currency,
	issueDate time.Time, maturityDate *time.Time, initialSupply int64, now time.Time,
) (*Security, error) {
	description = strings.TrimSpace(description)
	switch {
	case securityID.IsNil():
		return nil, dErrors.New(dErrors.CodeInvalidSecurity, "security identifier is required")
	case issuer.IsNil():
		return nil, dErrors.New(dErrors.CodeInvalidSecurity, "issuer LEI is required")
	case upi == "":
		return nil, dErrors.New(dErrors.CodeInvalidSecurity, "UPI is required")
	case description == "":
		return nil, dErrors.New(dErrors.CodeInvalidSecurity, "description is required")
	case issueDate.IsZero():
		return nil, dErrors.New(dErrors.CodeInvalidSecurity, "issue date is required")
	case currency == "":
		return nil, dErrors.New(dErrors.CodeInvalidSecurity, "currency is required")
	}
	if maturityDate != nil && !maturityDate.After(issueDate) {
		return nil, dErrors.New(dErrors.CodeInvalidSecurity, "maturity date must be after issue date")
	}
	if initialSupply < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidSecurity, "initial supply cannot be negative")
	}
	return &Security{
		ID:           securityID,
		IssuerLEI:    issuer,
		UPI:          upi,
		Description:  description,
		Currency:     currency,
		IssueDate:    issueDate.UTC(),
		MaturityDate: maturityDate,
		TotalSupply:  initialSupply,
		RegisteredAt: now.UTC(),
	}, nil
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (s *Security) Clone() *Security {
	c := *s
	if s.MaturityDate != nil {
		m := *s.MaturityDate
		c.MaturityDate = &m
	}
	if s.NAV != nil {
		n := *s.NAV
		c.NAV = &n
	}
	return &c
}

// AdjustSupply applies delta to the supply counter.
func (s *Security) AdjustSupply(delta int64) error {
	total, err := id.AddUnits(s.TotalSupply, delta)
	if err != nil {
		return err
	}
	if total < 0 {
		return dErrors.Newf(dErrors.CodeValidation, "supply adjustment %d would make supply negative", delta)
	}
	s.TotalSupply = total
	return nil
}

// CSDSystem names a central securities depository.
type CSDSystem string

const (
	CSDClearstream CSDSystem = "CLEARSTREAM"
	CSDEuroclear   CSDSystem = "EUROCLEAR"
	CSDDTCC        CSDSystem = "DTCC"
	CSDDPOGlobal   CSDSystem = "DPO_GLOBAL"
)

func ParseCSDSystem(s string) (CSDSystem, error) {
	switch sys := CSDSystem(strings.ToUpper(strings.TrimSpace(s))); sys {
	case CSDClearstream, CSDEuroclear, CSDDTCC, CSDDPOGlobal:
		return sys, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown settlement system %q", s)
}

// CSDMapping links a security to its identifier at a depository.
type CSDMapping struct {
	SecurityID    id.SecurityID
	System        CSDSystem
	CSDSecurityID string
	Active        bool
}
