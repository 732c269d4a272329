// Package models holds offering configuration and aggregate totals.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
)

type State string

const (
	StateOpen      State = "open"
	StateFinalized State = "finalized"
)

// Config is the mutable part of an offering. It is frozen on finalization.
type Config struct {
	OfferingType string
	MaxRaise     decimal.Decimal
	Lockup       time.Duration
	Start        time.Time
	End          time.Time
	BaseCurrency id.Currency
}

// Validate checks the configuration in isolation.
func (c Config) Validate() error {
	if strings.TrimSpace(c.OfferingType) == "" {
		return dErrors.New(dErrors.CodeValidation, "offering type is required")
	}
	if !c.MaxRaise.IsPositive() {
		return dErrors.New(dErrors.CodeZeroAmount, "max raise amount must be positive")
	}
	if c.Lockup < 0 {
		return dErrors.New(dErrors.CodeValidation, "lockup period cannot be negative")
	}
	if c.Start.IsZero() || c.End.IsZero() {
		return dErrors.New(dErrors.CodeInvalidDate, "offering window requires start and end")
	}
	if !c.Start.Before(c.End) {
		return dErrors.New(dErrors.CodeInvalidDate, "offering start must be before end")
	}
	if c.BaseCurrency == "" {
		return dErrors.New(dErrors.CodeValidation, "base currency is required")
	}
	return nil
}

// Offering is the per-security state machine record. TotalCommitted never
// exceeds MaxRaise.
type Offering struct {
	SecurityID     id.SecurityID
	Config         Config
	TotalCommitted decimal.Decimal
	TotalIssued    int64
	Finalized      bool
	FinalizedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func New(securityID id.SecurityID, cfg Config, now time.Time) *Offering {
	return &Offering{
		SecurityID:     securityID,
		Config:         cfg,
		TotalCommitted: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (o *Offering) State() State {
	if o.Finalized {
		return StateFinalized
	}
	return StateOpen
}

// InWindow reports whether now lies in [Start, End].
func (o *Offering) InWindow(now time.Time) bool {
	return !now.Before(o.Config.Start) && !now.After(o.Config.End)
}

// Remaining is the amount that can still be committed.
func (o *Offering) Remaining() decimal.Decimal {
	return o.Config.MaxRaise.Sub(o.TotalCommitted)
}

// LockupRelease is the release time for units issued at now.
func (o *Offering) LockupRelease(now time.Time) time.Time {
	return now.Add(o.Config.Lockup)
}

func (o *Offering) Clone() *Offering {
	c := *o
	if o.FinalizedAt != nil {
		t := *o.FinalizedAt
		c.FinalizedAt = &t
	}
	return &c
}

// Commitment is the receipt of a recorded commitment.
type Commitment struct {
	SecurityID        id.SecurityID
	Investor          id.InvestorID
	Amount            decimal.Decimal
	Currency          id.Currency
	PaymentReference  string
	InvestorCommitted decimal.Decimal
	TotalCommitted    decimal.Decimal
	RecordedAt        time.Time
}

// Issuance is the receipt of an issueUnits call.
type Issuance struct {
	SecurityID    id.SecurityID
	Investor      id.InvestorID
	Units         int64
	InvestorUnits int64
	TotalIssued   int64
	LockupRelease time.Time
	IssuedAt      time.Time
}
