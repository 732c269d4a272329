package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/requestcontext"
)

type GateSuite struct {
	suite.Suite
	gate *Gate
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	bindings, err := ParseBindings("alice=admin; bob=settlement_operator,oracle ;carol=compliance_officer")
	s.Require().NoError(err)
	s.gate = New(bindings)
}

func as(principal string) context.Context {
	return requestcontext.WithPrincipal(context.Background(), id.PrincipalID(principal))
}

func (s *GateSuite) TestAuthorize() {
	s.Run("role grants its operations", func() {
		s.NoError(s.gate.Authorize(as("alice"), OpRegisterSecurity))
		s.NoError(s.gate.Authorize(as("bob"), OpSyncSettlement))
		s.NoError(s.gate.Authorize(as("bob"), OpFulfillRequest))
		s.NoError(s.gate.Authorize(as("carol"), OpSetCompliance))
	})

	s.Run("missing capability is not authorized", func() {
		err := s.gate.Authorize(as("carol"), OpSyncSettlement)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})

	s.Run("unknown principal is not authorized", func() {
		err := s.gate.Authorize(as("mallory"), OpRegisterSecurity)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})

	s.Run("anonymous caller is not authorized", func() {
		err := s.gate.Authorize(context.Background(), OpRegisterSecurity)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized))
	})
}

func (s *GateSuite) TestGrant() {
	s.Require().NoError(s.gate.Grant("dave", RoleDerivativesReporter))
	s.NoError(s.gate.Authorize(as("dave"), OpSubmitDerivative))
	s.Require().NoError(s.gate.Grant("dave", RoleDerivativesReporter))
	s.Equal([]Role{RoleDerivativesReporter}, s.gate.Roles("dave"))

	err := s.gate.Grant("dave", Role("superuser"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *GateSuite) TestParseBindings() {
	s.Run("rejects unknown role", func() {
		_, err := ParseBindings("alice=root")
		s.Error(err)
	})

	s.Run("rejects missing principal", func() {
		_, err := ParseBindings("=admin")
		s.Error(err)
	})

	s.Run("empty input yields no bindings", func() {
		b, err := ParseBindings("")
		s.Require().NoError(err)
		s.Empty(b)
	})
}
