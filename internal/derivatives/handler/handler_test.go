package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"issuance/internal/derivatives/handler/mocks"
	"issuance/internal/derivatives/models"
	"issuance/internal/derivatives/service"
	"issuance/internal/platform/logger"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type DerivativesHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestDerivativesHandlerSuite(t *testing.T) {
	suite.Run(t, new(DerivativesHandlerSuite))
}

func (s *DerivativesHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	s.router = chi.NewRouter()
	New(s.service, logger.Discard()).Register(s.router)
}

func reportBody(uti string) map[string]any {
	return map[string]any{
		"uti":         uti,
		"security_id": "US0378331005",
		"counterparties": []map[string]any{
			{"lei": "HWUPKR0MPOU8FGXBT394", "jurisdiction": "DE", "reportable": true},
			{"lei": "529900t8bm49aursdo55", "jurisdiction": "FR"},
		},
		"collateral": map[string]any{"initial_margin": "1000", "currency": "eur"},
		"valuation":  map[string]any{"amount": "-340.25", "currency": "EUR", "as_of": "2026-06-01T08:00:00Z"},
	}
}

func toReport(cmd service.ReportCommand) *models.Report {
	return &models.Report{
		UTI:            cmd.UTI,
		SecurityID:     cmd.SecurityID,
		Counterparties: cmd.Counterparties,
		Collateral:     cmd.Collateral,
		Valuation:      cmd.Valuation,
		Status:         models.StatusPending,
		SubmittedAt:    t0,
		UpdatedAt:      t0,
	}
}

func (s *DerivativesHandlerSuite) TestSubmit() {
	s.Run("parses the trade snapshot", func() {
		s.service.EXPECT().Submit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd service.ReportCommand) (*models.Report, error) {
				s.Equal(id.LEI("529900T8BM49AURSDO55"), cmd.Counterparties[1].LEI)
				s.Equal(id.Currency("EUR"), cmd.Collateral.Currency)
				s.True(cmd.Collateral.VariationMargin.IsZero())
				s.Equal("-340.25", cmd.Valuation.Amount.String())
				s.True(cmd.Valuation.AsOf.Equal(t0))
				return toReport(cmd), nil
			})

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/derivatives", reportBody("UTI1")))
		s.Require().Equal(http.StatusAccepted, rr.Code)
		resp := testutil.UnmarshalResponse[ReportResponse](s.T(), rr)
		s.Equal("pending", resp.Status)
		s.Len(resp.Counterparties, 2)
		s.NotNil(resp.Errors)
	})

	s.Run("duplicate UTI", func() {
		s.service.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeConflict, "UTI UTI1 already reported"))
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/derivatives", reportBody("UTI1")))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeConflict))
	})

	s.Run("invalid LEI checksum", func() {
		body := reportBody("UTI1")
		body["counterparties"].([]map[string]any)[0]["lei"] = "HWUPKR0MPOU8FGXBT395"
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/derivatives", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})

	s.Run("one counterparty", func() {
		body := reportBody("UTI1")
		body["counterparties"] = body["counterparties"].([]map[string]any)[:1]
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/derivatives", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("non-alphanumeric UTI", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/derivatives", reportBody("UTI-1")))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})

	s.Run("malformed valuation", func() {
		body := reportBody("UTI1")
		body["valuation"] = map[string]any{"amount": "lots"}
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/derivatives", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}

func (s *DerivativesHandlerSuite) TestCorrect() {
	s.service.EXPECT().Correct(gomock.Any(), id.UTI("UTI1"), gomock.Any()).
		DoAndReturn(func(_ context.Context, prior id.UTI, cmd service.ReportCommand) (*models.Report, error) {
			r := toReport(cmd)
			r.PriorUTI = prior
			return r, nil
		})
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/derivatives/UTI1/correct", reportBody("UTI2")))
	s.Require().Equal(http.StatusAccepted, rr.Code)
	testutil.AssertJSONContains(s.T(), rr, "prior_uti", "UTI1")

	s.service.EXPECT().Correct(gomock.Any(), id.UTI("UTI1"), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConflict, "derivative report UTI1 was already corrected"))
	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/derivatives/UTI1/correct", reportBody("UTI3")))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeConflict))
}

func (s *DerivativesHandlerSuite) TestReportError() {
	s.service.EXPECT().ReportError(gomock.Any(), id.UTI("UTI1"), "wrong notional").Return(&models.Report{
		UTI:    "UTI1",
		Status: models.StatusAccepted,
		Errors: []models.ErrorEntry{{Reason: "wrong notional", ReportedAt: t0}},
	}, nil)
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/derivatives/UTI1/errors",
		map[string]any{"reason": "wrong notional"}))
	s.Require().Equal(http.StatusAccepted, rr.Code)
	resp := testutil.UnmarshalResponse[ReportResponse](s.T(), rr)
	s.Require().Len(resp.Errors, 1)
	s.False(resp.Errors[0].Acknowledged)

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/derivatives/UTI1/errors", map[string]any{}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
}

func (s *DerivativesHandlerSuite) TestChain() {
	s.service.EXPECT().Chain(gomock.Any(), id.UTI("UTI2")).Return([]*models.Report{
		{UTI: "UTI1", SupersededBy: "UTI2", Status: models.StatusAccepted},
		{UTI: "UTI2", PriorUTI: "UTI1", Status: models.StatusPending},
	}, nil)
	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodGet, "/derivatives/UTI2/chain", ""))
	s.Require().Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[[]ReportResponse](s.T(), rr)
	s.Require().Len(*resp, 2)
	s.Equal("UTI2", (*resp)[0].SupersededBy)

	s.service.EXPECT().Get(gomock.Any(), id.UTI("UTI404")).Return(nil, dErrors.New(dErrors.CodeNotFound, "derivative report UTI404 not found"))
	rr = testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodGet, "/derivatives/UTI404", ""))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}
