// Package models holds reconciliation records: the markers proving an
// external reference was processed exactly once.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
)

// Domain separates idempotency sets. A reference claimed in one domain does
// not block the same reference in another.
type Domain string

const (
	DomainSettlement      Domain = "settlement"
	DomainCorporateAction Domain = "corporate_action"
)

func ParseDomain(s string) (Domain, error) {
	switch d := Domain(s); d {
	case DomainSettlement, DomainCorporateAction:
		return d, nil
	}
	return "", dErrors.Newf(dErrors.CodeValidation, "unknown reconciliation domain %q", s)
}

type Status string

const (
	// StatusProcessed is the state right after the marker is claimed.
	StatusProcessed   Status = "processed"
	StatusReconciled  Status = "reconciled"
	StatusDiscrepancy Status = "discrepancy"
	// StatusDiverged marks a record whose downstream effect failed after the
	// marker was committed.
	StatusDiverged Status = "diverged"
	// StatusRejected marks a claimed reference whose payload failed validation.
	StatusRejected Status = "rejected"
)

// Pending reports whether the record still awaits external verification.
func (s Status) Pending() bool {
	return s == StatusProcessed
}

// Record is created once per (Domain, Reference) and never overwritten;
// only its status moves.
type Record struct {
	Domain       Domain
	Reference    string
	InternalID   string
	SecurityID   id.SecurityID
	From         id.InvestorID
	To           id.InvestorID
	Amount       decimal.Decimal
	ExternalRef  string
	System       string
	Status       Status
	Detail       string
	ProcessedAt  time.Time
	ReconciledAt *time.Time
}

func (r *Record) Clone() *Record {
	c := *r
	if r.ReconciledAt != nil {
		t := *r.ReconciledAt
		c.ReconciledAt = &t
	}
	return &c
}

// Filter narrows List. Zero values match everything; To is exclusive.
type Filter struct {
	Status     Status
	SecurityID id.SecurityID
	From       time.Time
	To         time.Time
}

func (f Filter) Match(r *Record) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.SecurityID != "" && r.SecurityID != f.SecurityID {
		return false
	}
	if !f.From.IsZero() && r.ProcessedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.ProcessedAt.Before(f.To) {
		return false
	}
	return true
}
