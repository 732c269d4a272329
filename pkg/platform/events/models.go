// Package events carries state-transition notifications from services to
// external indexers.
//
// Emission is best-effort: Publisher.Emit never blocks and never fails the
// calling operation. Events are buffered and written to a Sink by a
// background worker.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Category classifies events by their consumer. Kafka topics are derived from it.
type Category string

const (
	// CategoryCompliance covers investor eligibility and authorization facts.
	CategoryCompliance Category = "compliance"
	// CategorySettlement covers commitments, issuance, settlement and corporate actions.
	CategorySettlement Category = "settlement"
	// CategoryOperations covers request correlation and reporting traffic.
	CategoryOperations Category = "operations"
)

type Kind string

const (
	// Registry
	KindSecurityRegistered Kind = "security_registered"
	KindSecurityNAVUpdated Kind = "security_nav_updated"
	KindCSDMappingSet      Kind = "csd_mapping_set"
	KindSupplyAdjusted     Kind = "supply_adjusted"

	// Investor ledger
	KindInvestorWhitelisted Kind = "investor_whitelisted"
	KindComplianceUpdated   Kind = "compliance_updated"

	// Offering
	KindOfferingConfigured Kind = "offering_configured"
	KindOfferingUpdated    Kind = "offering_updated"
	KindCommitmentRecorded Kind = "commitment_recorded"
	KindUnitsIssued        Kind = "units_issued"
	KindOfferingFinalized  Kind = "offering_finalized"

	// Settlement
	KindSettlementSynced         Kind = "settlement_synced"
	KindSettlementReconciled     Kind = "settlement_reconciled"
	KindReconciliationDivergence Kind = "reconciliation_divergence"
	KindCorporateActionProcessed Kind = "corporate_action_processed"
	KindCorporateActionRejected  Kind = "corporate_action_rejected"

	// Correlator
	KindExternalRequestIssued    Kind = "external_request_issued"
	KindExternalRequestFulfilled Kind = "external_request_fulfilled"
	KindExternalRequestCancelled Kind = "external_request_cancelled"

	// Derivatives
	KindDerivativeSubmitted     Kind = "derivative_submitted"
	KindDerivativeCorrected     Kind = "derivative_corrected"
	KindDerivativeErrorReported Kind = "derivative_error_reported"
	KindDerivativeStatusChanged Kind = "derivative_status_changed"
)

var kindCategories = map[Kind]Category{
	KindInvestorWhitelisted: CategoryCompliance,
	KindComplianceUpdated:   CategoryCompliance,

	KindSecurityRegistered:       CategorySettlement,
	KindSupplyAdjusted:           CategorySettlement,
	KindOfferingConfigured:       CategorySettlement,
	KindOfferingUpdated:          CategorySettlement,
	KindCommitmentRecorded:       CategorySettlement,
	KindUnitsIssued:              CategorySettlement,
	KindOfferingFinalized:        CategorySettlement,
	KindSettlementSynced:         CategorySettlement,
	KindSettlementReconciled:     CategorySettlement,
	KindReconciliationDivergence: CategorySettlement,
	KindCorporateActionProcessed: CategorySettlement,
	KindCorporateActionRejected:  CategorySettlement,
}

// Category returns the category for this kind. Unknown kinds default to
// CategoryOperations.
func (k Kind) Category() Category {
	if cat, ok := kindCategories[k]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is one structured notification: kind, primary key and payload.
type Event struct {
	ID        uuid.UUID
	Kind      Kind
	Key       string
	Payload   map[string]any
	Timestamp time.Time
	RequestID string
	Principal string
}

func (e Event) Category() Category { return e.Kind.Category() }

// Sink persists or forwards a batch of events.
type Sink interface {
	Write(ctx context.Context, events []Event) error
}

// Emitter is what services depend on.
type Emitter interface {
	Emit(ctx context.Context, kind Kind, key string, payload map[string]any)
}

type discard struct{}

func (discard) Emit(context.Context, Kind, string, map[string]any) {}

// Discard drops every event.
var Discard Emitter = discard{}
