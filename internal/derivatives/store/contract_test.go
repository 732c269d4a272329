package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuance/internal/derivatives/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
)

type reportStore interface {
	Create(ctx context.Context, r *models.Report) error
	Get(ctx context.Context, uti id.UTI) (*models.Report, error)
	Update(ctx context.Context, uti id.UTI, now time.Time, fn func(*models.Report) error) (*models.Report, error)
	Supersede(ctx context.Context, prior id.UTI, next *models.Report) error
}

var t0 = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func report(uti id.UTI) *models.Report {
	return &models.Report{
		UTI:        uti,
		SecurityID: "US0378331005",
		Counterparties: [2]models.Counterparty{
			{LEI: "HWUPKR0MPOU8FGXBT394", Jurisdiction: "DE", Reportable: true},
			{LEI: "529900T8BM49AURSDO55", Jurisdiction: "FR", Reportable: true},
		},
		Collateral:  models.Collateral{InitialMargin: decimal.NewFromInt(1000), VariationMargin: decimal.RequireFromString("12.5"), Currency: "EUR"},
		Valuation:   models.Valuation{Amount: decimal.RequireFromString("-340.25"), Currency: "EUR", AsOf: t0},
		Status:      models.StatusPending,
		SubmittedAt: t0,
		UpdatedAt:   t0,
	}
}

func runReportContract(t *testing.T, fresh func(t *testing.T) reportStore) {
	ctx := context.Background()

	t.Run("create once", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Create(ctx, report("UTI1")))
		assert.ErrorIs(t, s.Create(ctx, report("UTI1")), sentinel.ErrConflict)

		got, err := s.Get(ctx, "UTI1")
		require.NoError(t, err)
		assert.Equal(t, "-340.25", got.Valuation.Amount.String())
		assert.Equal(t, id.LEI("529900T8BM49AURSDO55"), got.Counterparties[1].LEI)

		_, err = s.Get(ctx, "UTI404")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("update applies fn", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Create(ctx, report("UTI1")))
		updated, err := s.Update(ctx, "UTI1", t0.Add(time.Minute), func(r *models.Report) error {
			r.Status = models.StatusAccepted
			r.RepositoryRef = "TR-77"
			r.Errors = append(r.Errors, models.ErrorEntry{Reason: "late valuation", ReportedAt: t0})
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusAccepted, updated.Status)

		got, err := s.Get(ctx, "UTI1")
		require.NoError(t, err)
		assert.Equal(t, "TR-77", got.RepositoryRef)
		require.Len(t, got.Errors, 1)
		assert.Equal(t, "late valuation", got.Errors[0].Reason)
		assert.True(t, got.UpdatedAt.Equal(t0.Add(time.Minute)))
	})

	t.Run("failed update writes nothing", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Create(ctx, report("UTI1")))
		_, err := s.Update(ctx, "UTI1", t0, func(r *models.Report) error {
			r.Status = models.StatusRejected
			return errors.New("boom")
		})
		require.Error(t, err)
		got, err := s.Get(ctx, "UTI1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)

		_, err = s.Update(ctx, "UTI404", t0, func(*models.Report) error { return nil })
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("supersede links both reports", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Create(ctx, report("UTI1")))
		require.NoError(t, s.Supersede(ctx, "UTI1", report("UTI2")))

		old, err := s.Get(ctx, "UTI1")
		require.NoError(t, err)
		assert.Equal(t, id.UTI("UTI2"), old.SupersededBy)
		next, err := s.Get(ctx, "UTI2")
		require.NoError(t, err)
		assert.Equal(t, id.UTI("UTI1"), next.PriorUTI)

		assert.ErrorIs(t, s.Supersede(ctx, "UTI1", report("UTI3")), sentinel.ErrAlreadyUsed)
		assert.ErrorIs(t, s.Supersede(ctx, "UTI404", report("UTI3")), sentinel.ErrNotFound)
		_, err = s.Get(ctx, "UTI3")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("supersede rejects a taken UTI", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Create(ctx, report("UTI1")))
		require.NoError(t, s.Create(ctx, report("UTI2")))
		assert.ErrorIs(t, s.Supersede(ctx, "UTI1", report("UTI2")), sentinel.ErrConflict)

		old, err := s.Get(ctx, "UTI1")
		require.NoError(t, err)
		assert.False(t, old.Superseded())
	})
}
