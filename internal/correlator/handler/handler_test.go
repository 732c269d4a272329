package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"issuance/internal/correlator"
	"issuance/internal/correlator/handler/mocks"
	"issuance/internal/platform/logger"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type RequestHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	reqID   id.RequestID
}

func TestRequestHandlerSuite(t *testing.T) {
	suite.Run(t, new(RequestHandlerSuite))
}

func (s *RequestHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	s.router = chi.NewRouter()
	New(s.service, logger.Discard()).Register(s.router)
	s.reqID = id.NewRequestID()
}

func (s *RequestHandlerSuite) TestFulfill() {
	s.Run("forwards the response", func() {
		s.service.EXPECT().Fulfill(gomock.Any(), s.reqID, correlator.Response{
			Kind:    correlator.KindInvestorValidation,
			Payload: map[string]any{"kyc_passed": true, "aml_passed": true},
		}).Return(nil)
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/requests/"+s.reqID.String()+"/fulfill",
			map[string]any{"kind": "investor_validation", "payload": map[string]any{"kyc_passed": true, "aml_passed": true}}))
		s.Require().Equal(http.StatusOK, rr.Code)
		testutil.AssertJSONContains(s.T(), rr, "status", "fulfilled")
	})

	s.Run("unknown request", func() {
		s.service.EXPECT().Fulfill(gomock.Any(), s.reqID, gomock.Any()).
			Return(dErrors.New(dErrors.CodeUnknownRequest, "request is not pending"))
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/requests/"+s.reqID.String()+"/fulfill",
			map[string]any{"kind": "nav"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeUnknownRequest))
	})

	s.Run("kind is required", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/requests/"+s.reqID.String()+"/fulfill",
			map[string]any{"payload": map[string]any{}}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("malformed id", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/requests/abc/fulfill",
			map[string]any{"kind": "nav"}))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
}

func (s *RequestHandlerSuite) TestCancel() {
	s.service.EXPECT().Cancel(gomock.Any(), s.reqID).Return(nil)
	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/requests/"+s.reqID.String()+"/cancel", ""))
	s.Require().Equal(http.StatusOK, rr.Code)
	testutil.AssertJSONContains(s.T(), rr, "status", "cancelled")

	s.service.EXPECT().Cancel(gomock.Any(), s.reqID).Return(dErrors.New(dErrors.CodeNotAuthorized, "not authorized"))
	rr = testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodPost, "/requests/"+s.reqID.String()+"/cancel", ""))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeNotAuthorized))
}

func (s *RequestHandlerSuite) TestGet() {
	issued := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.service.EXPECT().Get(s.reqID).Return(correlator.Request{
		ID:        s.reqID,
		Kind:      correlator.KindNAV,
		Subject:   "US0378331005",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(5 * time.Minute),
	}, true)
	rr := testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodGet, "/requests/"+s.reqID.String(), ""))
	s.Require().Equal(http.StatusOK, rr.Code)
	testutil.AssertJSONContains(s.T(), rr, "subject", "US0378331005")

	other := id.NewRequestID()
	s.service.EXPECT().Get(other).Return(correlator.Request{}, false)
	rr = testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), http.MethodGet, "/requests/"+other.String(), ""))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}
