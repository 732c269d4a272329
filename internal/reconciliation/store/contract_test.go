package store_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuance/internal/reconciliation/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
)

type markers interface {
	Claim(ctx context.Context, rec *models.Record) error
	Release(ctx context.Context, domain models.Domain, reference string) error
	Get(ctx context.Context, domain models.Domain, reference string) (*models.Record, error)
	SetStatus(ctx context.Context, domain models.Domain, reference string, status models.Status, detail string, at time.Time) error
	List(ctx context.Context, domain models.Domain, filter models.Filter) ([]*models.Record, error)
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func record(domain models.Domain, ref string, at time.Time) *models.Record {
	return &models.Record{
		Domain:      domain,
		Reference:   ref,
		InternalID:  "int-" + ref,
		SecurityID:  id.SecurityID("US0378331005"),
		From:        id.InvestorID("0x00000000000000000000000000000000000000a1"),
		To:          id.InvestorID("0x00000000000000000000000000000000000000b2"),
		Amount:      decimal.RequireFromString("125.5"),
		ExternalRef: "EXT-" + ref,
		System:      "CLEARSTREAM",
		Status:      models.StatusProcessed,
		ProcessedAt: at,
	}
}

// runMarkerContract exercises behaviour every marker store must share.
// fresh returns an empty store for each subtest.
func runMarkerContract(t *testing.T, fresh func(t *testing.T) markers) {
	ctx := context.Background()

	t.Run("claim succeeds once per reference", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Claim(ctx, record(models.DomainSettlement, "TRADE-1", t0)))
		err := s.Claim(ctx, record(models.DomainSettlement, "TRADE-1", t0.Add(time.Minute)))
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)

		got, err := s.Get(ctx, models.DomainSettlement, "TRADE-1")
		require.NoError(t, err)
		assert.True(t, got.ProcessedAt.Equal(t0), "first claim is kept")
		assert.True(t, got.Amount.Equal(decimal.RequireFromString("125.5")))
		assert.Equal(t, "EXT-TRADE-1", got.ExternalRef)
		assert.Equal(t, models.StatusProcessed, got.Status)
		assert.Nil(t, got.ReconciledAt)
	})

	t.Run("domains are independent", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Claim(ctx, record(models.DomainSettlement, "REF-1", t0)))
		require.NoError(t, s.Claim(ctx, record(models.DomainCorporateAction, "REF-1", t0)))
	})

	t.Run("references that look like store internals are ordinary", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Claim(ctx, record(models.DomainSettlement, "index", t0)))
		require.NoError(t, s.Claim(ctx, record(models.DomainSettlement, "TRADE-1", t0.Add(time.Minute))))
		require.NoError(t, s.Claim(ctx, record(models.DomainSettlement, "idx", t0.Add(2*time.Minute))))

		all, err := s.List(ctx, models.DomainSettlement, models.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "index", all[0].Reference)
		assert.Equal(t, "TRADE-1", all[1].Reference)
	})

	t.Run("a claimed reference named index does not block later claims", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Claim(ctx, record(models.DomainCorporateAction, "CA-1", t0)))
		require.NoError(t, s.Claim(ctx, record(models.DomainCorporateAction, "index", t0)))
		err := s.Claim(ctx, record(models.DomainCorporateAction, "index", t0))
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("concurrent claims have one winner", func(t *testing.T) {
		s := fresh(t)
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.Claim(ctx, record(models.DomainSettlement, "RACE", t0)) == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())
	})

	t.Run("release frees the reference", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Claim(ctx, record(models.DomainSettlement, "TRADE-2", t0)))
		require.NoError(t, s.Release(ctx, models.DomainSettlement, "TRADE-2"))
		_, err := s.Get(ctx, models.DomainSettlement, "TRADE-2")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		require.NoError(t, s.Claim(ctx, record(models.DomainSettlement, "TRADE-2", t0)))
	})

	t.Run("set status records the outcome", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Claim(ctx, record(models.DomainSettlement, "TRADE-3", t0)))
		at := t0.Add(time.Hour)
		require.NoError(t, s.SetStatus(ctx, models.DomainSettlement, "TRADE-3", models.StatusDiscrepancy, "Unit mismatch", at))

		got, err := s.Get(ctx, models.DomainSettlement, "TRADE-3")
		require.NoError(t, err)
		assert.Equal(t, models.StatusDiscrepancy, got.Status)
		assert.Equal(t, "Unit mismatch", got.Detail)
		require.NotNil(t, got.ReconciledAt)
		assert.True(t, got.ReconciledAt.Equal(at))

		err = s.SetStatus(ctx, models.DomainSettlement, "MISSING", models.StatusReconciled, "", at)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("list filters by window and status", func(t *testing.T) {
		s := fresh(t)
		for i := 0; i < 4; i++ {
			ref := fmt.Sprintf("T-%d", i)
			require.NoError(t, s.Claim(ctx, record(models.DomainSettlement, ref, t0.Add(time.Duration(i)*time.Hour))))
		}
		require.NoError(t, s.Claim(ctx, record(models.DomainCorporateAction, "CA-1", t0)))
		require.NoError(t, s.SetStatus(ctx, models.DomainSettlement, "T-1", models.StatusReconciled, "", t0))

		all, err := s.List(ctx, models.DomainSettlement, models.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "T-0", all[0].Reference)
		assert.Equal(t, "T-3", all[3].Reference)

		window, err := s.List(ctx, models.DomainSettlement, models.Filter{From: t0.Add(time.Hour), To: t0.Add(3 * time.Hour)})
		require.NoError(t, err)
		require.Len(t, window, 2)
		assert.Equal(t, "T-1", window[0].Reference)
		assert.Equal(t, "T-2", window[1].Reference)

		pending, err := s.List(ctx, models.DomainSettlement, models.Filter{Status: models.StatusProcessed})
		require.NoError(t, err)
		assert.Len(t, pending, 3)
	})
}
