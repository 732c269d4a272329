package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"issuance/internal/platform/logger"
	"issuance/internal/reconciliation/models"
	registrymodels "issuance/internal/registry/models"
	"issuance/internal/settlement/handler/mocks"
	"issuance/internal/settlement/service"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type SettlementHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestSettlementHandlerSuite(t *testing.T) {
	suite.Run(t, new(SettlementHandlerSuite))
}

func (s *SettlementHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	s.router = chi.NewRouter()
	New(s.service, logger.Discard()).Register(s.router)
}

func syncBody() map[string]any {
	return map[string]any{
		"trade_ref":         "TRADE-1",
		"security_id":       "US0378331005",
		"from":              "0x00000000000000000000000000000000000000A1",
		"to":                "0x00000000000000000000000000000000000000b2",
		"amount":            "500",
		"external_ref":      "EUR-REF-1",
		"settlement_system": "euroclear",
	}
}

func record(cmd service.SyncCommand) *models.Record {
	return &models.Record{
		Domain:      models.DomainSettlement,
		Reference:   cmd.TradeRef,
		InternalID:  "6f1c1c39-7b55-4f6c-9d63-0d1f1f0a0b01",
		SecurityID:  cmd.SecurityID,
		From:        cmd.From,
		To:          cmd.To,
		Amount:      cmd.Amount,
		ExternalRef: cmd.ExternalRef,
		System:      string(cmd.System),
		Status:      models.StatusProcessed,
		ProcessedAt: t0,
	}
}

func (s *SettlementHandlerSuite) TestSync() {
	s.Run("parses and records", func() {
		s.service.EXPECT().SyncSettlement(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd service.SyncCommand) (*models.Record, error) {
				s.Equal(id.InvestorID("0x00000000000000000000000000000000000000a1"), cmd.From)
				s.Equal(registrymodels.CSDEuroclear, cmd.System)
				s.True(cmd.Amount.Equal(decimal.NewFromInt(500)))
				return record(cmd), nil
			})

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/settlements", syncBody()))
		s.Equal(http.StatusCreated, rr.Code)
		testutil.AssertJSONContains(s.T(), rr, "status", "processed")
		testutil.AssertJSONContains(s.T(), rr, "settlement_system", "EUROCLEAR")
	})

	s.Run("duplicate is a conflict", func() {
		s.service.EXPECT().SyncSettlement(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeAlreadySettled, "trade TRADE-1 is already settled"))
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/settlements", syncBody()))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeAlreadySettled))
	})

	s.Run("zero address is rejected before the service", func() {
		body := syncBody()
		body["to"] = "0x0000000000000000000000000000000000000000"
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/settlements", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeZeroAddress))
	})

	s.Run("zero amount", func() {
		body := syncBody()
		body["amount"] = "0"
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/settlements", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeZeroAmount))
	})

	s.Run("unknown settlement system", func() {
		body := syncBody()
		body["settlement_system"] = "CREST"
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/settlements", body))
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *SettlementHandlerSuite) TestReport() {
	s.Run("summarises the period", func() {
		from := t0
		to := t0.Add(24 * time.Hour)
		s.service.EXPECT().Report(gomock.Any(), from, to).Return(&service.Report{
			From: from, To: to, Total: 3, Reconciled: 1, Pending: 1, Discrepancies: 1,
			Discrepant: []*models.Record{{
				Reference: "TRADE-2", Amount: decimal.NewFromInt(5), Status: models.StatusDiscrepancy,
				Detail: "Unit mismatch: on-chain=5, CSD=4", ProcessedAt: t0,
			}},
			GeneratedAt: to,
		}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodGet,
			"/settlements/report?from=2026-03-02T09:00:00Z&to=2026-03-03T09:00:00Z", ""))
		s.Require().Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[ReportResponse](s.T(), rr)
		s.Equal(3, resp.Summary.TotalSettlements)
		s.Equal(1, resp.Summary.Discrepancies)
		s.Require().Len(resp.Discrepancies, 1)
		s.Equal("TRADE-2", resp.Discrepancies[0].TradeRef)
	})

	s.Run("malformed timestamp", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodGet, "/settlements/report?from=yesterday", ""))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidDate))
	})
}

func (s *SettlementHandlerSuite) TestReconcile() {
	s.service.EXPECT().Reconcile(gomock.Any(), []string{"TRADE-1"}, 0).
		Return(map[string]service.Outcome{"TRADE-1": {Success: true}}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/settlements/reconcile",
		map[string]any{"trade_refs": []string{"TRADE-1"}}))
	s.Require().Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[map[string]service.Outcome](s.T(), rr)
	s.True((*resp)["TRADE-1"].Success)
}

func (s *SettlementHandlerSuite) TestGetUnknown() {
	s.service.EXPECT().Get(gomock.Any(), "TRADE-404").Return(nil, dErrors.New(dErrors.CodeNotFound, "trade not found"))
	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodGet, "/settlements/TRADE-404", ""))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}
