package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuance/internal/ledger/service"
	"issuance/internal/ledger/store"
	"issuance/internal/platform/logger"
	"issuance/internal/rbac"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/testutil"
)

const investorAddr = "0xAbCd000000000000000000000000000000000001"

func newLedgerRouter(t *testing.T) http.Handler {
	t.Helper()
	gate := rbac.New(rbac.Bindings{"officer": {rbac.RoleComplianceOfficer}})
	svc := service.New(store.NewInMemory(), gate)
	r := chi.NewRouter()
	New(svc, logger.Discard()).Register(r)
	return r
}

func TestWhitelistThenGet(t *testing.T) {
	router := newLedgerRouter(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/investors", map[string]any{
		"investor":     investorAddr,
		"jurisdiction": "de",
		"kyc_passed":   true,
		"aml_passed":   false,
	})
	req = testutil.WithRequestTime(testutil.WithPrincipal(req, "officer"), now)
	rr := testutil.DoRequest(router, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	getReq := testutil.NewJSONRequest(t, http.MethodGet, "/investors/"+investorAddr, nil)
	rr = testutil.DoRequest(router, getReq)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := testutil.UnmarshalResponse[PositionResponse](t, rr)
	assert.Equal(t, "0xabcd000000000000000000000000000000000001", resp.Investor)
	assert.Equal(t, "DE", resp.Jurisdiction)
	assert.True(t, resp.KYCPassed)
	assert.False(t, resp.AMLPassed)
}

func TestWhitelistErrors(t *testing.T) {
	router := newLedgerRouter(t)

	t.Run("zero address", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/investors", map[string]any{
			"investor":     "0x0000000000000000000000000000000000000000",
			"jurisdiction": "DE",
		})
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, "officer"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeZeroAddress))
	})

	t.Run("anonymous caller", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/investors", map[string]any{
			"investor":     investorAddr,
			"jurisdiction": "DE",
		})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, string(dErrors.CodeNotAuthorized))
	})

	t.Run("compliance update requires both flags", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPut, "/investors/"+investorAddr+"/compliance", map[string]any{
			"kyc_passed": true,
		})
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, "officer"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	t.Run("unknown investor", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/investors/0x9999999999999999999999999999999999999999", nil))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})
}
