// Package compliance provides the default eligibility oracle consulted when
// commitments are recorded.
package compliance

import (
	"context"
	"strings"

	id "issuance/pkg/domain"
)

// JurisdictionOracle refuses investors from blocked jurisdictions and those
// with no jurisdiction on file.
type JurisdictionOracle struct {
	blocked map[string]struct{}
}

func NewJurisdictionOracle(blocked []string) *JurisdictionOracle {
	o := &JurisdictionOracle{blocked: make(map[string]struct{}, len(blocked))}
	for _, j := range blocked {
		if j = strings.ToUpper(strings.TrimSpace(j)); j != "" {
			o.blocked[j] = struct{}{}
		}
	}
	return o
}

func (o *JurisdictionOracle) IsEligible(_ context.Context, _ id.InvestorID, jurisdiction string) (bool, error) {
	jurisdiction = strings.ToUpper(strings.TrimSpace(jurisdiction))
	if jurisdiction == "" {
		return false, nil
	}
	_, blocked := o.blocked[jurisdiction]
	return !blocked, nil
}
