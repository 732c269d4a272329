package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "issuance/pkg/domain-errors"
)

func validReport() *Report {
	return &Report{
		UTI:        "UTI0001",
		SecurityID: "US0378331005",
		Counterparties: [2]Counterparty{
			{LEI: "HWUPKR0MPOU8FGXBT394", Jurisdiction: "DE", Reportable: true},
			{LEI: "529900T8BM49AURSDO55", Jurisdiction: "US"},
		},
		Collateral: Collateral{InitialMargin: decimal.NewFromInt(100), Currency: "EUR"},
		Valuation:  Valuation{Amount: decimal.RequireFromString("-12.5"), Currency: "EUR", AsOf: time.Now()},
	}
}

func TestReportValidate(t *testing.T) {
	require.NoError(t, validReport().Validate())

	cases := map[string]struct {
		mutate func(r *Report)
		code   dErrors.Code
	}{
		"missing UTI":            {func(r *Report) { r.UTI = "" }, dErrors.CodeInvalidInput},
		"missing security":       {func(r *Report) { r.SecurityID = "" }, dErrors.CodeInvalidSecurity},
		"missing counterparty":   {func(r *Report) { r.Counterparties[1].LEI = "" }, dErrors.CodeInvalidInput},
		"same counterparty":      {func(r *Report) { r.Counterparties[1] = r.Counterparties[0] }, dErrors.CodeInvalidInput},
		"negative margin":        {func(r *Report) { r.Collateral.VariationMargin = decimal.NewFromInt(-1) }, dErrors.CodeValidation},
		"correction reusing UTI": {func(r *Report) { r.PriorUTI = r.UTI }, dErrors.CodeValidation},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := validReport()
			tc.mutate(r)
			assert.True(t, dErrors.HasCode(r.Validate(), tc.code))
		})
	}
}

func TestCloneCopiesErrorLog(t *testing.T) {
	r := validReport()
	r.Errors = []ErrorEntry{{Reason: "late"}}
	c := r.Clone()
	c.Errors[0].Acknowledged = true
	c.Errors = append(c.Errors, ErrorEntry{Reason: "again"})
	assert.False(t, r.Errors[0].Acknowledged)
	assert.Len(t, r.Errors, 1)
}
