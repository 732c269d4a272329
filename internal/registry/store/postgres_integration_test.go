//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"issuance/internal/registry/models"
	"issuance/internal/registry/store"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "csd_mappings", "offerings", "securities")
	s.Require().NoError(err)
}

func newSecurity() *models.Security {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	maturity := issued.AddDate(5, 0, 0)
	sec, err := models.NewSecurity("US0378331005", "HWUPKR0MPOU8FGXBT394", "UPI-1", "fund", "USD", issued, &maturity, 100, issued)
	if err != nil {
		panic(err)
	}
	return sec
}

// TestConcurrentRegistration verifies exactly one insert wins per identifier.
func (s *PostgresStoreSuite) TestConcurrentRegistration() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var created, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, newSecurity())
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestRoundTripWithNAV() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newSecurity()))

	asOf := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	_, err := s.store.Update(ctx, "US0378331005", func(sec *models.Security) error {
		sec.NAV = &models.NAV{Value: decimal.RequireFromString("101.25"), Currency: "USD", AsOf: asOf}
		return sec.AdjustSupply(900)
	})
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, "US0378331005")
	s.Require().NoError(err)
	s.Equal(int64(1000), found.TotalSupply)
	s.Require().NotNil(found.MaturityDate)
	s.Require().NotNil(found.NAV)
	s.True(decimal.RequireFromString("101.25").Equal(found.NAV.Value))
	s.True(asOf.Equal(found.NAV.AsOf))

	_, err = s.store.FindByID(ctx, "DE000BAY0017")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCSDMappingUpsert() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newSecurity()))

	s.Require().NoError(s.store.SetCSDMapping(ctx, models.CSDMapping{SecurityID: "US0378331005", System: models.CSDClearstream, CSDSecurityID: "A", Active: true}))
	s.Require().NoError(s.store.SetCSDMapping(ctx, models.CSDMapping{SecurityID: "US0378331005", System: models.CSDClearstream, CSDSecurityID: "B", Active: false}))

	mappings, err := s.store.CSDMappings(ctx, "US0378331005")
	s.Require().NoError(err)
	s.Require().Len(mappings, 1)
	s.Equal("B", mappings[0].CSDSecurityID)
	s.False(mappings[0].Active)

	err = s.store.SetCSDMapping(ctx, models.CSDMapping{SecurityID: "DE000BAY0017", System: models.CSDDTCC, CSDSecurityID: "X"})
	s.ErrorIs(err, sentinel.ErrNotFound)
}
