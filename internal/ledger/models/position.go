// Package models holds investor positions: compliance flags and per-security
// holdings.
package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	id "issuance/pkg/domain"
)

// Position is keyed by investor. It is created on first whitelisting or
// commitment and never deleted.
type Position struct {
	Investor     id.InvestorID
	Jurisdiction string
	KYCPassed    bool
	AMLPassed    bool
	Holdings     map[id.SecurityID]*Holding
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Holding is the investor's stake in one offering.
type Holding struct {
	Committed     decimal.Decimal
	IssuedUnits   int64
	LockupRelease *time.Time
}

func NewPosition(investor id.InvestorID, now time.Time) *Position {
	return &Position{
		Investor:  investor,
		Holdings:  make(map[id.SecurityID]*Holding),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormalizeJurisdiction upper-cases and trims a jurisdiction code.
func NormalizeJurisdiction(j string) string {
	return strings.ToUpper(strings.TrimSpace(j))
}

// Compliant reports whether units may be issued to the investor.
func (p *Position) Compliant() bool {
	return p.KYCPassed && p.AMLPassed
}

// Holding returns the holding for securityID, creating an empty one.
func (p *Position) Holding(securityID id.SecurityID) *Holding {
	if p.Holdings == nil {
		p.Holdings = make(map[id.SecurityID]*Holding)
	}
	h, ok := p.Holdings[securityID]
	if !ok {
		h = &Holding{Committed: decimal.Zero}
		p.Holdings[securityID] = h
	}
	return h
}

// Committed returns the committed amount for securityID without creating a
// holding.
func (p *Position) Committed(securityID id.SecurityID) decimal.Decimal {
	if h, ok := p.Holdings[securityID]; ok {
		return h.Committed
	}
	return decimal.Zero
}

// Locked reports whether any units of securityID are still in lockup at now.
func (p *Position) Locked(securityID id.SecurityID, now time.Time) bool {
	h, ok := p.Holdings[securityID]
	return ok && h.LockupRelease != nil && now.Before(*h.LockupRelease)
}

// SecurityIDs returns the held securities in order.
func (p *Position) SecurityIDs() []id.SecurityID {
	out := make([]id.SecurityID, 0, len(p.Holdings))
	for securityID := range p.Holdings {
		out = append(out, securityID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Position) Clone() *Position {
	c := *p
	c.Holdings = make(map[id.SecurityID]*Holding, len(p.Holdings))
	for securityID, h := range p.Holdings {
		hc := *h
		if h.LockupRelease != nil {
			t := *h.LockupRelease
			hc.LockupRelease = &t
		}
		c.Holdings[securityID] = &hc
	}
	return &c
}
