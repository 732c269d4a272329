//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"issuance/internal/ledger/models"
	"issuance/internal/ledger/store"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	now      time.Time
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
	s.now = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "investor_holdings", "investors"))
}

func (s *PostgresStoreSuite) TestExecuteRoundTrip() {
	ctx := context.Background()
	release := s.now.Add(90 * 24 * time.Hour)

	_, err := s.store.Execute(ctx, "0xabc", false, s.now, func(*models.Position) error { return nil })
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Execute(ctx, "0xabc", true, s.now, func(p *models.Position) error {
		p.Jurisdiction = "DE"
		p.KYCPassed = true
		h := p.Holding("US0378331005")
		h.Committed = decimal.RequireFromString("600000.50")
		h.IssuedUnits = 100
		h.LockupRelease = &release
		return nil
	})
	s.Require().NoError(err)

	p, err := s.store.FindByInvestor(ctx, "0xabc")
	s.Require().NoError(err)
	s.Equal("DE", p.Jurisdiction)
	s.True(p.KYCPassed)
	s.True(decimal.RequireFromString("600000.50").Equal(p.Committed("US0378331005")))
	s.Equal(int64(100), p.Holdings["US0378331005"].IssuedUnits)
	s.True(release.Equal(*p.Holdings["US0378331005"].LockupRelease))
}

// TestConcurrentIncrements verifies row locking serializes read-modify-write.
func (s *PostgresStoreSuite) TestConcurrentIncrements() {
	ctx := context.Background()
	const goroutines = 25

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, "0xabc", true, s.now, func(p *models.Position) error {
				h := p.Holding("US0378331005")
				h.Committed = h.Committed.Add(decimal.NewFromInt(10))
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	p, err := s.store.FindByInvestor(ctx, "0xabc")
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(250).Equal(p.Committed("US0378331005")))
}
