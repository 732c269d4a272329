package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuance/internal/corporateaction/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
)

type factStore interface {
	Record(ctx context.Context, f *models.Fact) error
	Get(ctx context.Context, reference string) (*models.Fact, error)
	ListBySecurity(ctx context.Context, securityID id.SecurityID) ([]*models.Fact, error)
}

const isin = id.SecurityID("US0378331005")

var t0 = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func split(t *testing.T, ref string, effective time.Time) *models.Fact {
	t.Helper()
	terms := models.SplitTerms{Numerator: 2, Denominator: 1}
	payload, err := models.EncodeTerms(terms)
	require.NoError(t, err)
	return &models.Fact{
		Reference:     ref,
		SecurityID:    isin,
		Kind:          models.KindSplit,
		EffectiveDate: effective,
		Terms:         terms,
		Payload:       payload,
		Status:        models.StatusRecorded,
		ProcessedAt:   t0,
	}
}

func runFactContract(t *testing.T, fresh func(t *testing.T) factStore) {
	ctx := context.Background()

	t.Run("record once", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Record(ctx, split(t, "CA-1", t0)))
		assert.ErrorIs(t, s.Record(ctx, split(t, "CA-1", t0)), sentinel.ErrConflict)

		got, err := s.Get(ctx, "CA-1")
		require.NoError(t, err)
		assert.Equal(t, models.SplitTerms{Numerator: 2, Denominator: 1}, got.Terms)
		assert.Nil(t, got.RecordDate)
	})

	t.Run("missing reference", func(t *testing.T) {
		s := fresh(t)
		_, err := s.Get(ctx, "CA-404")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("rejected facts keep no terms", func(t *testing.T) {
		s := fresh(t)
		f := &models.Fact{
			Reference: "CA-BAD", SecurityID: isin, Kind: models.KindDividend, EffectiveDate: t0,
			Payload: []byte{0xff}, Status: models.StatusRejected, Reason: "malformed dividend payload", ProcessedAt: t0,
		}
		require.NoError(t, s.Record(ctx, f))
		got, err := s.Get(ctx, "CA-BAD")
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, got.Status)
		assert.Nil(t, got.Terms)
	})

	t.Run("list by security in effective order", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Record(ctx, split(t, "CA-2", t0.Add(48*time.Hour))))
		require.NoError(t, s.Record(ctx, split(t, "CA-1", t0)))
		other := split(t, "CA-3", t0)
		other.SecurityID = "DE0005140008"
		require.NoError(t, s.Record(ctx, other))

		list, err := s.ListBySecurity(ctx, isin)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "CA-1", list[0].Reference)
		assert.Equal(t, "CA-2", list[1].Reference)
	})
}
