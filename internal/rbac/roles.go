// Package rbac is the single authorization point consulted at the top of
// every privileged operation.
package rbac

type Role string

const (
	RoleAdmin               Role = "admin"
	RoleComplianceOfficer   Role = "compliance_officer"
	RoleSettlementOperator  Role = "settlement_operator"
	RoleOracle              Role = "oracle"
	RoleDerivativesReporter Role = "derivatives_reporter"
)

// Operation names a privileged action.
type Operation string

const (
	OpRegisterSecurity      Operation = "security.register"
	OpRequestNAV            Operation = "security.request_nav"
	OpSetCSDMapping         Operation = "security.set_csd_mapping"
	OpConfigureOffering     Operation = "offering.configure"
	OpUpdateOffering        Operation = "offering.update_config"
	OpFinalizeOffering      Operation = "offering.finalize"
	OpWhitelistInvestor     Operation = "investor.whitelist"
	OpSetCompliance         Operation = "investor.set_compliance"
	OpRequestValidation     Operation = "investor.request_validation"
	OpRecordCommitment      Operation = "commitment.record"
	OpIssueUnits            Operation = "units.issue"
	OpSyncSettlement        Operation = "settlement.sync"
	OpReconcile             Operation = "settlement.reconcile"
	OpProcessAction         Operation = "corporate_action.process"
	OpFulfillRequest        Operation = "request.fulfill"
	OpCancelRequest         Operation = "request.cancel"
	OpSubmitDerivative      Operation = "derivative.submit"
	OpCorrectDerivative     Operation = "derivative.correct"
	OpReportDerivativeError Operation = "derivative.report_error"
)

var roleOperations = map[Role][]Operation{
	RoleAdmin: {
		OpRegisterSecurity,
		OpRequestNAV,
		OpSetCSDMapping,
		OpConfigureOffering,
		OpUpdateOffering,
		OpFinalizeOffering,
		OpProcessAction,
		OpCancelRequest,
	},
	RoleComplianceOfficer: {
		OpWhitelistInvestor,
		OpSetCompliance,
		OpRequestValidation,
	},
	RoleSettlementOperator: {
		OpRecordCommitment,
		OpIssueUnits,
		OpSyncSettlement,
		OpReconcile,
	},
	RoleOracle: {
		OpFulfillRequest,
		OpCancelRequest,
	},
	RoleDerivativesReporter: {
		OpSubmitDerivative,
		OpCorrectDerivative,
		OpReportDerivativeError,
	},
}

// Operations returns the operations granted to role.
func (r Role) Operations() []Operation {
	return append([]Operation{}, roleOperations[r]...)
}

func (r Role) IsValid() bool {
	_, ok := roleOperations[r]
	return ok
}

func (r Role) allows(op Operation) bool {
	for _, allowed := range roleOperations[r] {
		if allowed == op {
			return true
		}
	}
	return false
}
