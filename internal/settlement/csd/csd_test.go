package csd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuance/internal/platform/config"
	registrymodels "issuance/internal/registry/models"
	"issuance/pkg/platform/circuit"
)

func check() Check {
	return Check{
		ExternalRef:   "CLSTM-2026-001",
		SecurityID:    "US0378331005",
		CSDSecurityID: "CS-AAPL-1",
		Investor:      "0x00000000000000000000000000000000000000b2",
		Units:         decimal.NewFromInt(500),
		SettledAt:     time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}
}

func registry(t *testing.T, system string, h http.HandlerFunc, opts ...Option) *Registry {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	creds := map[string]config.CSDCredentials{system: {Endpoint: srv.URL, APIKey: "secret"}}
	return NewRegistry(creds, append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
}

func TestClearstream(t *testing.T) {
	ctx := context.Background()

	t.Run("matching quantity reconciles", func(t *testing.T) {
		r := registry(t, "CLEARSTREAM", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, http.MethodGet, req.Method)
			assert.Equal(t, "/settlements/verify", req.URL.Path)
			assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
			assert.Equal(t, "CLSTM-2026-001", req.URL.Query().Get("reference"))
			assert.Equal(t, "CS-AAPL-1", req.URL.Query().Get("security_id"))
			assert.Equal(t, "2026-03-02", req.URL.Query().Get("date"))
			_, _ = w.Write([]byte(`{"quantity":"500"}`))
		})
		res, err := r.Verify(ctx, registrymodels.CSDClearstream, check())
		require.NoError(t, err)
		assert.True(t, res.Matched)
	})

	t.Run("quantity mismatch is a discrepancy", func(t *testing.T) {
		r := registry(t, "CLEARSTREAM", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"quantity":450}`))
		})
		res, err := r.Verify(ctx, registrymodels.CSDClearstream, check())
		require.NoError(t, err)
		assert.False(t, res.Matched)
		assert.Equal(t, "Unit mismatch: on-chain=500, CSD=450", res.Reason)
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		r := registry(t, "CLEARSTREAM", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		_, err := r.Verify(ctx, registrymodels.CSDClearstream, check())
		require.Error(t, err)
		assert.Equal(t, "Clearstream API error: 503", err.Error())
	})
}

func TestEuroclear(t *testing.T) {
	ctx := context.Background()

	t.Run("matched", func(t *testing.T) {
		r := registry(t, "EUROCLEAR", func(w http.ResponseWriter, req *http.Request) {
			assert.Equal(t, "/v1/settlement/verify", req.URL.Path)
			assert.Equal(t, "secret", req.Header.Get("X-API-Key"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			assert.Equal(t, "US0378331005", body["isin"])
			assert.Equal(t, "500", body["quantity"])
			assert.Equal(t, "CLSTM-2026-001", body["instruction_reference"])
			_, _ = w.Write([]byte(`{"matched":true}`))
		})
		res, err := r.Verify(ctx, registrymodels.CSDEuroclear, check())
		require.NoError(t, err)
		assert.True(t, res.Matched)
	})

	t.Run("unmatched without reason", func(t *testing.T) {
		r := registry(t, "EUROCLEAR", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"matched":false}`))
		})
		res, err := r.Verify(ctx, registrymodels.CSDEuroclear, check())
		require.NoError(t, err)
		assert.Equal(t, "Euroclear mismatch: Unknown", res.Reason)
	})
}

func TestDPOGlobal(t *testing.T) {
	r := registry(t, "DPO_GLOBAL", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/api/v1/settlements/verify", req.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "0x00000000000000000000000000000000000000b2", body["investor"])
		_, _ = w.Write([]byte(`{"verified":false,"error":"settlement not found"}`))
	})
	res, err := r.Verify(context.Background(), registrymodels.CSDDPOGlobal, check())
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, "settlement not found", res.Reason)
}

func TestMissingCredentials(t *testing.T) {
	r := NewRegistry(nil)
	cases := map[registrymodels.CSDSystem]string{
		registrymodels.CSDClearstream: "Clearstream credentials not configured",
		registrymodels.CSDEuroclear:   "Euroclear credentials not configured",
		registrymodels.CSDDTCC:        "DTCC credentials not configured",
		registrymodels.CSDDPOGlobal:   "DPO Global credentials not configured",
	}
	for system, want := range cases {
		res, err := r.Verify(context.Background(), system, check())
		require.NoError(t, err)
		assert.False(t, res.Matched)
		assert.Equal(t, want, res.Reason)
	}

	res, err := r.Verify(context.Background(), "CREST", check())
	require.NoError(t, err)
	assert.Equal(t, "Unsupported CSD system: CREST", res.Reason)
}

func TestDTCCAcceptsConfiguredChecks(t *testing.T) {
	r := NewRegistry(map[string]config.CSDCredentials{"DTCC": {Endpoint: "https://dtcc.invalid"}})
	res, err := r.Verify(context.Background(), registrymodels.CSDDTCC, check())
	require.NoError(t, err)
	assert.True(t, res.Matched)
}

func TestBreakerFailsFast(t *testing.T) {
	var hits atomic.Int32
	r := registry(t, "CLEARSTREAM", func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, WithBreakerOptions(circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour)))

	for i := 0; i < 2; i++ {
		_, err := r.Verify(context.Background(), registrymodels.CSDClearstream, check())
		require.Error(t, err)
	}
	_, err := r.Verify(context.Background(), registrymodels.CSDClearstream, check())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
	assert.EqualValues(t, 2, hits.Load())

	res, err := r.Verify(context.Background(), registrymodels.CSDDTCC, check())
	require.NoError(t, err, "other systems keep their own breaker")
	assert.False(t, res.Matched)
}
