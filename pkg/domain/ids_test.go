package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "issuance/pkg/domain-errors"
)

// TestParseSecurityID_Invariants validates the parsing invariant:
// "security identifiers are 12-character ISINs with a valid check digit"
func TestParseSecurityID_Invariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    SecurityID
		wantErr bool
	}{
		{"valid US ISIN", "US0378331005", "US0378331005", false},
		{"valid DE ISIN", "DE000BAY0017", "DE000BAY0017", false},
		{"lower case normalized", "us5949181045", "US5949181045", false},
		{"surrounding whitespace trimmed", "  US0378331005 ", "US0378331005", false},
		{"empty", "", "", true},
		{"wrong check digit", "US0378331006", "", true},
		{"too short", "US037833100", "", true},
		{"numeric country", "120378331005", "", true},
		{"letter check digit", "US037833100A", "", true},
		{"injection attempt", "'; DROP--'''", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSecurityID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidSecurity))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLEI(t *testing.T) {
	for _, valid := range []string{"HWUPKR0MPOU8FGXBT394", "784F5XWPLTWKTBV3E584", "5493001KJTIIGC8Y1R12"} {
		t.Run("accepts "+valid, func(t *testing.T) {
			lei, err := ParseLEI(valid)
			require.NoError(t, err)
			assert.Equal(t, LEI(valid), lei)
		})
	}

	for name, input := range map[string]string{
		"empty":            "",
		"wrong length":     "HWUPKR0MPOU8FGXBT39",
		"bad checksum":     "HWUPKR0MPOU8FGXBT395",
		"non alphanumeric": "HWUPKR0MPOU8FGXBT3-4",
	} {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := ParseLEI(input)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		})
	}
}

func TestParseInvestorID(t *testing.T) {
	t.Run("normalizes case", func(t *testing.T) {
		id, err := ParseInvestorID("0xABCDEF")
		require.NoError(t, err)
		assert.Equal(t, InvestorID("0xabcdef"), id)
	})

	t.Run("rejects zero address", func(t *testing.T) {
		_, err := ParseInvestorID("0x0000000000000000000000000000000000000000")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeZeroAddress))
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseInvestorID("   ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeZeroAddress))
	})
}

func TestParseRequestID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", "550e8400-e29b-41d4-a716-446655440000", false},
		{"nil uuid", uuid.Nil.String(), true},
		{"empty", "", true},
		{"oversized", strings.Repeat("a", 1000), true},
		{"null byte", "550e8400\x00-e29b-41d4-a716-446655440000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequestID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRequestIDJSON(t *testing.T) {
	reqID := NewRequestID()
	raw, err := json.Marshal(map[string]RequestID{"id": reqID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+reqID.String()+`"}`, string(raw))

	var back map[string]RequestID
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, reqID, back["id"])
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("usd")
	require.NoError(t, err)
	assert.Equal(t, Currency("USD"), c)

	for _, bad := range []string{"", "US", "US1", "EURO"} {
		_, err := ParseCurrency(bad)
		assert.Error(t, err, bad)
	}
}
