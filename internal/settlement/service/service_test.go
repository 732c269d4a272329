package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"issuance/internal/platform/metrics"
	"issuance/internal/rbac"
	"issuance/internal/reconciliation/models"
	"issuance/internal/reconciliation/store"
	registrymodels "issuance/internal/registry/models"
	registryservice "issuance/internal/registry/service"
	registrystore "issuance/internal/registry/store"
	"issuance/internal/settlement/csd"
	"issuance/internal/settlement/service/mocks"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/events"
	"issuance/pkg/platform/events/memory"
	ctxutil "issuance/pkg/testutil"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UnitIssuer,Verifier

const (
	isin   = id.SecurityID("US0378331005")
	seller = id.InvestorID("0x00000000000000000000000000000000000000a1")
	buyer  = id.InvestorID("0x00000000000000000000000000000000000000b2")
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	issuer   *mocks.MockUnitIssuer
	verifier *mocks.MockVerifier
	markers  *store.InMemory
	registry *registryservice.Service
	gate     *rbac.Gate
	events   *memory.Recorder
	metrics  *metrics.Metrics
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.issuer = mocks.NewMockUnitIssuer(s.ctrl)
	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.markers = store.NewInMemory()
	s.events = memory.NewRecorder()
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.gate = rbac.New(rbac.Bindings{
		"admin": {rbac.RoleAdmin},
		"ops":   {rbac.RoleSettlementOperator},
	})
	s.registry = registryservice.New(registrystore.NewInMemory(), s.gate)
	s.service = s.newService()

	_, err := s.registry.Register(s.as("admin"), registryservice.RegisterCommand{
		SecurityID:  isin,
		IssuerLEI:   "HWUPKR0MPOU8FGXBT394",
		UPI:         "QZPQJVXW3ZVV",
		Description: "Tokenized fund units",
		Currency:    "EUR",
		IssueDate:   t0.Add(-24 * time.Hour),
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	opts = append([]Option{
		WithEvents(s.events),
		WithMetrics(s.metrics),
		WithVerifier(s.verifier),
	}, opts...)
	return New(s.markers, s.registry, s.issuer, s.gate, opts...)
}

func (s *ServiceSuite) as(principal string) context.Context {
	return ctxutil.AsPrincipal(context.Background(), principal, t0)
}

func (s *ServiceSuite) sync(tradeRef, externalRef string) (*models.Record, error) {
	return s.service.SyncSettlement(s.as("ops"), SyncCommand{
		TradeRef:    tradeRef,
		SecurityID:  isin,
		From:        seller,
		To:          buyer,
		Amount:      decimal.NewFromInt(500),
		ExternalRef: externalRef,
		System:      registrymodels.CSDClearstream,
	})
}

func (s *ServiceSuite) TestSettlementIsProcessedOnce() {
	s.issuer.EXPECT().ForceTransfer(gomock.Any(), seller, buyer, decimal.NewFromInt(500), "TRADE-1").Return(nil).Times(1)

	rec, err := s.sync("TRADE-1", "EUR-REF-1")
	s.Require().NoError(err)
	s.Equal(models.StatusProcessed, rec.Status)
	s.NotEmpty(rec.InternalID)

	_, err = s.sync("TRADE-1", "EUR-REF-1")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadySettled))

	stored, err := s.service.Get(context.Background(), "TRADE-1")
	s.Require().NoError(err)
	s.Equal(rec.InternalID, stored.InternalID, "the second attempt changes nothing")
	s.Len(s.events.ByKind(events.KindSettlementSynced), 1)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SettlementsSynced))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SettlementDuplicates))
}

func (s *ServiceSuite) TestExternalRefMayBeReusedAcrossTrades() {
	s.issuer.EXPECT().ForceTransfer(gomock.Any(), seller, buyer, gomock.Any(), gomock.Any()).Return(nil).Times(2)

	_, err := s.sync("TRADE-1", "EUR-REF-1")
	s.Require().NoError(err)
	_, err = s.sync("TRADE-2", "EUR-REF-1")
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestConcurrentDeliveriesTransferOnce() {
	var transfers atomic.Int32
	s.issuer.EXPECT().ForceTransfer(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, id.InvestorID, id.InvestorID, decimal.Decimal, string) error {
			transfers.Add(1)
			return nil
		}).AnyTimes()

	var wg sync.WaitGroup
	var settled atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.sync("TRADE-9", "EUR-REF-9"); err == nil {
				settled.Add(1)
			}
		}()
	}
	wg.Wait()
	s.EqualValues(1, settled.Load())
	s.EqualValues(1, transfers.Load())
}

func (s *ServiceSuite) TestInputChecks() {
	cases := []struct {
		name string
		cmd  SyncCommand
		code dErrors.Code
	}{
		{"missing trade ref", SyncCommand{SecurityID: isin, From: seller, To: buyer, Amount: decimal.NewFromInt(1)}, dErrors.CodeValidation},
		{"zero sender", SyncCommand{TradeRef: "T", SecurityID: isin, From: "0x0000000000000000000000000000000000000000", To: buyer, Amount: decimal.NewFromInt(1)}, dErrors.CodeZeroAddress},
		{"empty receiver", SyncCommand{TradeRef: "T", SecurityID: isin, From: seller, Amount: decimal.NewFromInt(1)}, dErrors.CodeZeroAddress},
		{"zero amount", SyncCommand{TradeRef: "T", SecurityID: isin, From: seller, To: buyer}, dErrors.CodeZeroAmount},
		{"unregistered security", SyncCommand{TradeRef: "T", SecurityID: "DE0005140008", From: seller, To: buyer, Amount: decimal.NewFromInt(1)}, dErrors.CodeInvalidSecurity},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.service.SyncSettlement(s.as("ops"), tc.cmd)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}

	_, err := s.service.Get(context.Background(), "T")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "rejected input leaves no marker")
}

func (s *ServiceSuite) TestRequiresSettlementOperator() {
	_, err := s.service.SyncSettlement(s.as("admin"), SyncCommand{TradeRef: "T"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
}

func (s *ServiceSuite) TestTransferFailureKeepsMarker() {
	s.issuer.EXPECT().ForceTransfer(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("gateway timeout")).Times(1)

	rec, err := s.sync("TRADE-1", "EUR-REF-1")
	s.Require().NoError(err)
	s.Equal(models.StatusDiverged, rec.Status)
	s.Equal("gateway timeout", rec.Detail)

	stored, err := s.service.Get(context.Background(), "TRADE-1")
	s.Require().NoError(err)
	s.Equal(models.StatusDiverged, stored.Status)

	divergences := s.events.ByKind(events.KindReconciliationDivergence)
	s.Require().Len(divergences, 1)
	s.Equal("settlement", divergences[0].Payload["domain"])
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Divergences.WithLabelValues("settlement")))

	_, err = s.sync("TRADE-1", "EUR-REF-1")
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadySettled), "redelivery stays a no-op")
}

func (s *ServiceSuite) TestTransferFailureWithRollback() {
	s.service = s.newService(WithRollbackOnFailure(true))
	gomock.InOrder(
		s.issuer.EXPECT().ForceTransfer(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(errors.New("gateway timeout")),
		s.issuer.EXPECT().ForceTransfer(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil),
	)

	_, err := s.sync("TRADE-1", "EUR-REF-1")
	s.Require().Error(err)
	s.Contains(err.Error(), "gateway timeout")
	s.Empty(s.events.ByKind(events.KindReconciliationDivergence))

	rec, err := s.sync("TRADE-1", "EUR-REF-1")
	s.Require().NoError(err, "released marker can be claimed again")
	s.Equal(models.StatusProcessed, rec.Status)
}

func (s *ServiceSuite) TestReconcileBatch() {
	s.issuer.EXPECT().ForceTransfer(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.Require().NoError(s.registry.SetCSDMapping(s.as("admin"), registrymodels.CSDMapping{
		SecurityID:    isin,
		System:        registrymodels.CSDClearstream,
		CSDSecurityID: "CS-0001",
		Active:        true,
	}))

	for _, ref := range []string{"A", "B", "C"} {
		_, err := s.sync("TRADE-"+ref, "EXT-"+ref)
		s.Require().NoError(err)
	}
	records, err := s.markers.List(context.Background(), models.DomainSettlement, models.Filter{})
	s.Require().NoError(err)

	var inFlight, peak atomic.Int32
	s.verifier.EXPECT().Verify(gomock.Any(), registrymodels.CSDClearstream, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ registrymodels.CSDSystem, c csd.Check) (csd.Result, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			s.Equal("CS-0001", c.CSDSecurityID)
			switch c.ExternalRef {
			case "EXT-A":
				return csd.Result{Matched: true}, nil
			case "EXT-B":
				return csd.Result{Reason: "Unit mismatch: on-chain=500, CSD=450"}, nil
			default:
				return csd.Result{}, errors.New("Clearstream API error: 503")
			}
		}).Times(3)

	results, err := s.service.ReconcileBatch(s.as("ops"), records, 2)
	s.Require().NoError(err)
	s.Equal(Outcome{Success: true}, results["TRADE-A"])
	s.Equal(Outcome{Error: "Unit mismatch: on-chain=500, CSD=450"}, results["TRADE-B"])
	s.Equal(Outcome{Error: "Clearstream API error: 503"}, results["TRADE-C"])
	s.LessOrEqual(peak.Load(), int32(2))

	a, _ := s.service.Get(context.Background(), "TRADE-A")
	b, _ := s.service.Get(context.Background(), "TRADE-B")
	c, _ := s.service.Get(context.Background(), "TRADE-C")
	s.Equal(models.StatusReconciled, a.Status)
	s.Equal(models.StatusDiscrepancy, b.Status)
	s.Equal(models.StatusProcessed, c.Status, "transport errors leave the record pending")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ReconcileOutcomes.WithLabelValues("CLEARSTREAM", "error")))

	report, err := s.service.Report(context.Background(), t0, t0.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(3, report.Total)
	s.Equal(1, report.Reconciled)
	s.Equal(1, report.Pending)
	s.Equal(1, report.Discrepancies)
	s.Require().Len(report.Discrepant, 1)
	s.Equal("TRADE-B", report.Discrepant[0].Reference)
}

func (s *ServiceSuite) TestReconcileBatchKeepsTradesSharingExternalRef() {
	s.issuer.EXPECT().ForceTransfer(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	_, err := s.sync("TRADE-1", "EUR-REF-1")
	s.Require().NoError(err)
	_, err = s.sync("TRADE-2", "EUR-REF-1")
	s.Require().NoError(err)
	records, err := s.markers.List(context.Background(), models.DomainSettlement, models.Filter{})
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	s.verifier.EXPECT().Verify(gomock.Any(), registrymodels.CSDClearstream, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ registrymodels.CSDSystem, c csd.Check) (csd.Result, error) {
			s.Equal("EUR-REF-1", c.ExternalRef)
			return csd.Result{Matched: true}, nil
		}).Times(2)

	results, err := s.service.ReconcileBatch(s.as("ops"), records, 2)
	s.Require().NoError(err)
	s.Require().Len(results, 2)
	s.Equal(Outcome{Success: true}, results["TRADE-1"])
	s.Equal(Outcome{Success: true}, results["TRADE-2"])

	for _, ref := range []string{"TRADE-1", "TRADE-2"} {
		rec, err := s.service.Get(context.Background(), ref)
		s.Require().NoError(err)
		s.Equal(models.StatusReconciled, rec.Status)
	}
}

func (s *ServiceSuite) TestReconcileFallsBackToSecurityID() {
	s.issuer.EXPECT().ForceTransfer(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	_, err := s.sync("TRADE-1", "EXT-1")
	s.Require().NoError(err)

	s.verifier.EXPECT().Verify(gomock.Any(), registrymodels.CSDClearstream, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ registrymodels.CSDSystem, c csd.Check) (csd.Result, error) {
			s.Equal(isin.String(), c.CSDSecurityID)
			return csd.Result{Matched: true}, nil
		})
	s.Require().NoError(s.service.ReconcilePending(context.Background()))

	rec, err := s.service.Get(context.Background(), "TRADE-1")
	s.Require().NoError(err)
	s.Equal(models.StatusReconciled, rec.Status)
	s.NotNil(rec.ReconciledAt)
	s.Len(s.events.ByKind(events.KindSettlementReconciled), 1)
}

func (s *ServiceSuite) TestReconcilePendingSkipsSettledAndUnroutedRecords() {
	s.issuer.EXPECT().ForceTransfer(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	_, err := s.service.SyncSettlement(s.as("ops"), SyncCommand{
		TradeRef: "NO-SYSTEM", SecurityID: isin, From: seller, To: buyer, Amount: decimal.NewFromInt(1),
	})
	s.Require().NoError(err)

	// No Verify expectation: nothing is routable.
	s.Require().NoError(s.service.ReconcilePending(context.Background()))
}

func (s *ServiceSuite) TestReconcileBatchRequiresRole() {
	_, err := s.service.ReconcileBatch(s.as("admin"), nil, 5)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
}

func (s *ServiceSuite) TestReportRejectsInvertedPeriod() {
	_, err := s.service.Report(context.Background(), t0, t0.Add(-time.Hour))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidDate))
}
