package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"issuance/internal/platform/logger"
	"issuance/internal/registry/handler/mocks"
	"issuance/internal/registry/models"
	"issuance/internal/registry/service"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type RegistryHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestRegistryHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistryHandlerSuite))
}

func (s *RegistryHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, logger.Discard()).Register(s.router)
}

func (s *RegistryHandlerSuite) TestRegister() {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Run("creates security", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, cmd service.RegisterCommand) (*models.Security, error) {
				s.Equal(id.SecurityID("US0378331005"), cmd.SecurityID)
				s.Equal(id.LEI("HWUPKR0MPOU8FGXBT394"), cmd.IssuerLEI)
				return &models.Security{ID: cmd.SecurityID, IssuerLEI: cmd.IssuerLEI, UPI: cmd.UPI, Currency: cmd.Currency, IssueDate: cmd.IssueDate}, nil
			})

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/securities", map[string]any{
			"security_id": "us0378331005",
			"issuer_lei":  "HWUPKR0MPOU8FGXBT394",
			"upi":         "UPI-1",
			"description": "fund",
			"currency":    "usd",
			"issue_date":  issued,
		})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusCreated, rr.Code)
		testutil.AssertJSONContains(s.T(), rr, "security_id", "US0378331005")
	})

	s.Run("malformed ISIN never reaches the service", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/securities", map[string]any{
			"security_id": "US0378331006",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidSecurity))
	})

	s.Run("duplicate registration is a client error", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidSecurity, "already registered"))
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/securities", map[string]any{
			"security_id": "US0378331005",
			"issuer_lei":  "HWUPKR0MPOU8FGXBT394",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidSecurity))
	})

	s.Run("not authorized", func() {
		s.service.EXPECT().Register(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotAuthorized, "denied"))
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/securities", map[string]any{"security_id": "US0378331005"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeNotAuthorized))
	})
}

func (s *RegistryHandlerSuite) TestGet() {
	s.Run("found", func() {
		s.service.EXPECT().Get(gomock.Any(), id.SecurityID("US0378331005")).
			Return(&models.Security{ID: "US0378331005", TotalSupply: 42}, nil)
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/securities/US0378331005", nil))
		s.Equal(http.StatusOK, rr.Code)
		testutil.AssertJSONContains(s.T(), rr, "total_supply", float64(42))
	})

	s.Run("not found", func() {
		s.service.EXPECT().Get(gomock.Any(), id.SecurityID("DE000BAY0017")).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "missing"))
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/securities/DE000BAY0017", nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})
}

func (s *RegistryHandlerSuite) TestRequestNAV() {
	reqID := id.NewRequestID()
	s.service.EXPECT().RequestNAV(gomock.Any(), id.SecurityID("US0378331005")).Return(reqID, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/securities/US0378331005/nav", nil))
	s.Equal(http.StatusAccepted, rr.Code)
	testutil.AssertJSONContains(s.T(), rr, "request_id", reqID.String())
	testutil.AssertJSONContains(s.T(), rr, "status", "pending")
}

func (s *RegistryHandlerSuite) TestSetCSDMapping() {
	s.Run("defaults to active", func() {
		s.service.EXPECT().SetCSDMapping(gomock.Any(), models.CSDMapping{
			SecurityID: "US0378331005", System: models.CSDEuroclear, CSDSecurityID: "EC-1", Active: true,
		}).Return(nil)
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/securities/US0378331005/csd-mappings", map[string]any{
			"csd_system":      "euroclear",
			"csd_security_id": "EC-1",
		})
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusNoContent, rr.Code)
	})

	s.Run("unknown system", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/securities/US0378331005/csd-mappings", map[string]any{
			"csd_system":      "CREST",
			"csd_security_id": "X",
		})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}
