package ingest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	camodels "issuance/internal/corporateaction/models"
	"issuance/internal/correlator"
	derivmodels "issuance/internal/derivatives/models"
	derivservice "issuance/internal/derivatives/service"
	"issuance/internal/ingest/mocks"
	ledgermodels "issuance/internal/ledger/models"
	offeringmodels "issuance/internal/offering/models"
	"issuance/internal/platform/logger"
	"issuance/internal/platform/metrics"
	reconmodels "issuance/internal/reconciliation/models"
	registrymodels "issuance/internal/registry/models"
	settlementservice "issuance/internal/settlement/service"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
)

//go:generate mockgen -source=dispatcher.go -destination=mocks/mocks.go -package=mocks Offerings,Investors,Settlements,CorporateActions,Derivatives,Requests

const (
	isin     = "US0378331005"
	investor = "0x1111111111111111111111111111111111111111"
)

type DispatcherSuite struct {
	suite.Suite
	offerings   *mocks.MockOfferings
	investors   *mocks.MockInvestors
	settlements *mocks.MockSettlements
	actions     *mocks.MockCorporateActions
	derivatives *mocks.MockDerivatives
	requests    *mocks.MockRequests
	metrics     *metrics.Metrics
	dispatcher  *Dispatcher
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.offerings = mocks.NewMockOfferings(ctrl)
	s.investors = mocks.NewMockInvestors(ctrl)
	s.settlements = mocks.NewMockSettlements(ctrl)
	s.actions = mocks.NewMockCorporateActions(ctrl)
	s.derivatives = mocks.NewMockDerivatives(ctrl)
	s.requests = mocks.NewMockRequests(ctrl)
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.dispatcher = NewDispatcher(Services{
		Offerings:        s.offerings,
		Investors:        s.investors,
		Settlements:      s.settlements,
		CorporateActions: s.actions,
		Derivatives:      s.derivatives,
		Requests:         s.requests,
	}, WithLogger(logger.Discard()), WithMetrics(s.metrics))
}

func (s *DispatcherSuite) dispatch(event map[string]any) error {
	raw, err := json.Marshal(event)
	s.Require().NoError(err)
	return s.dispatcher.Dispatch(context.Background(), raw)
}

func (s *DispatcherSuite) TestIgnoredEvents() {
	s.NoError(s.dispatch(map[string]any{"investor": investor}))
	s.NoError(s.dispatch(map[string]any{"event": "Transfer", "investor": investor}))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.IngestedEvents.WithLabelValues("Transfer", "ignored")))
}

func (s *DispatcherSuite) TestMalformedBody() {
	err := s.dispatcher.Dispatch(context.Background(), []byte("not json"))
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *DispatcherSuite) TestOfferingConfigured() {
	event := map[string]any{
		"event":            EventOfferingConfigured,
		"identifiers":      map[string]any{"isin": isin},
		"offering_type":    "RegD",
		"max_raise_amount": "1000000",
		"lockup_period":    86400,
		"start":            "2026-01-01T00:00:00Z",
		"end":              "2026-12-31T00:00:00Z",
		"base_currency":    "usd",
	}

	s.Run("creates the offering", func() {
		s.offerings.EXPECT().Configure(gomock.Any(), id.SecurityID(isin), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.SecurityID, cfg offeringmodels.Config) (*offeringmodels.Offering, error) {
				s.Equal(24*time.Hour, cfg.Lockup)
				s.Equal(id.Currency("USD"), cfg.BaseCurrency)
				s.True(cfg.MaxRaise.Equal(decimal.NewFromInt(1000000)))
				return &offeringmodels.Offering{}, nil
			})
		s.NoError(s.dispatch(event))
	})

	s.Run("updates an existing offering", func() {
		s.offerings.EXPECT().Configure(gomock.Any(), id.SecurityID(isin), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "already configured"))
		s.offerings.EXPECT().UpdateConfig(gomock.Any(), id.SecurityID(isin), gomock.Any()).
			Return(&offeringmodels.Offering{}, nil)
		s.NoError(s.dispatch(event))
	})

	s.Run("missing security", func() {
		delete(event, "identifiers")
		err := s.dispatch(event)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidSecurity))
	})
}

func (s *DispatcherSuite) TestInvestorWhitelisted() {
	s.investors.EXPECT().Whitelist(gomock.Any(), id.InvestorID(investor), "DE", true, false).
		Return(&ledgermodels.Position{}, nil)
	s.NoError(s.dispatch(map[string]any{
		"event":        EventInvestorWhitelisted,
		"investor":     "0x1111111111111111111111111111111111111111",
		"jurisdiction": "DE",
		"kyc_passed":   true,
	}))

	err := s.dispatch(map[string]any{"event": EventInvestorWhitelisted, "investor": ""})
	s.True(dErrors.HasCode(err, dErrors.CodeZeroAddress))
}

func (s *DispatcherSuite) TestCommitmentRecorded() {
	s.offerings.EXPECT().RecordCommitment(gomock.Any(), id.SecurityID(isin), id.InvestorID(investor),
		decimal.RequireFromString("2500.50"), id.Currency("USD"), "wire-7").
		Return(&offeringmodels.Commitment{}, nil)
	s.NoError(s.dispatch(map[string]any{
		"event":             EventCommitmentRecorded,
		"security_id":       isin,
		"investor":          investor,
		"amount":            "2500.50",
		"currency":          "USD",
		"payment_reference": "wire-7",
	}))

	s.offerings.EXPECT().RecordCommitment(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeCapExceeded, "cap exceeded"))
	err := s.dispatch(map[string]any{
		"event":       EventCommitmentRecorded,
		"security_id": isin,
		"investor":    investor,
		"amount":      "1",
		"currency":    "USD",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeCapExceeded))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.IngestedEvents.WithLabelValues(EventCommitmentRecorded, "applied")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.IngestedEvents.WithLabelValues(EventCommitmentRecorded, string(dErrors.CodeCapExceeded))))
}

func (s *DispatcherSuite) TestUnitsIssuedAndFinalized() {
	s.offerings.EXPECT().IssueUnits(gomock.Any(), id.SecurityID(isin), id.InvestorID(investor), int64(40)).
		Return(&offeringmodels.Issuance{}, nil)
	s.NoError(s.dispatch(map[string]any{
		"event":       EventUnitsIssued,
		"security_id": isin,
		"investor":    investor,
		"units":       40,
	}))

	err := s.dispatch(map[string]any{"event": EventUnitsIssued, "security_id": isin, "investor": investor})
	s.True(dErrors.HasCode(err, dErrors.CodeZeroUnits))

	s.offerings.EXPECT().Finalize(gomock.Any(), id.SecurityID(isin)).Return(&offeringmodels.Offering{}, nil)
	s.NoError(s.dispatch(map[string]any{"event": EventFinalized, "security_id": isin, "transaction_hash": "0xfeed"}))
}

func (s *DispatcherSuite) TestSettlementRecorded() {
	s.settlements.EXPECT().SyncSettlement(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd settlementservice.SyncCommand) (*reconmodels.Record, error) {
			s.Equal("T-1", cmd.TradeRef)
			s.Equal(registrymodels.CSDSystem("EUROCLEAR"), cmd.System)
			s.True(cmd.Amount.Equal(decimal.NewFromInt(10)))
			return &reconmodels.Record{}, nil
		})
	s.NoError(s.dispatch(map[string]any{
		"event":             EventSettlementRecorded,
		"trade_ref":         "T-1",
		"security_id":       isin,
		"from":              investor,
		"to":                "0x2222222222222222222222222222222222222222",
		"amount":            "10",
		"external_ref":      "EC-1",
		"settlement_system": "euroclear",
	}))

	s.settlements.EXPECT().SyncSettlement(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeAlreadySettled, "already settled"))
	err := s.dispatch(map[string]any{
		"event":       EventSettlementRecorded,
		"trade_ref":   "T-1",
		"security_id": isin,
		"from":        investor,
		"to":          "0x2222222222222222222222222222222222222222",
		"amount":      "10",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadySettled))
}

func (s *DispatcherSuite) TestCorporateActionAnnounced() {
	s.actions.EXPECT().Process(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, action camodels.Action) (*camodels.Fact, error) {
			s.Equal("CA-9", action.Reference)
			s.Equal(camodels.KindSplit, action.Kind)
			terms, err := camodels.DecodeTerms(action.Kind, action.Payload)
			s.Require().NoError(err)
			s.Equal(camodels.SplitTerms{Numerator: 2, Denominator: 1}, terms)
			return &camodels.Fact{}, nil
		})
	s.NoError(s.dispatch(map[string]any{
		"event":          EventCorporateActionAnnounced,
		"reference":      "CA-9",
		"security_id":    isin,
		"action_type":    "SPLIT",
		"effective_date": "2026-05-01",
		"terms":          map[string]any{"numerator": 2, "denominator": 1},
	}))
}

func (s *DispatcherSuite) TestDerivativeReported() {
	s.derivatives.EXPECT().Submit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmd derivservice.ReportCommand) (*derivmodels.Report, error) {
			s.Equal(id.UTI("UTI77"), cmd.UTI)
			return &derivmodels.Report{UTI: cmd.UTI}, nil
		})
	s.NoError(s.dispatch(map[string]any{
		"event":       EventDerivativeReported,
		"uti":         "UTI77",
		"security_id": isin,
		"counterparties": []map[string]any{
			{"lei": "HWUPKR0MPOU8FGXBT394"},
			{"lei": "5493001KJTIIGC8Y1R12"},
		},
	}))
}

func (s *DispatcherSuite) TestRequestFulfilled() {
	reqID := id.NewRequestID()
	s.requests.EXPECT().Fulfill(gomock.Any(), reqID, correlator.Response{
		Kind:    correlator.KindNAV,
		Payload: map[string]any{"nav": "101.5", "currency": "EUR"},
	}).Return(nil)
	s.NoError(s.dispatch(map[string]any{
		"event":      EventRequestFulfilled,
		"request_id": reqID.String(),
		"kind":       "nav",
		"payload":    map[string]any{"nav": "101.5", "currency": "EUR"},
	}))

	err := s.dispatch(map[string]any{"event": EventRequestFulfilled, "request_id": "nope"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
