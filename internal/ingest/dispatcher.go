// Package ingest applies ledger events delivered over HTTP or Kafka to the
// domain services. Each event is a flat JSON object whose "event" field names
// the operation; the remaining fields are the body the matching HTTP endpoint
// accepts, plus "security_id" where the operation is scoped to a security.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	cahandler "issuance/internal/corporateaction/handler"
	camodels "issuance/internal/corporateaction/models"
	"issuance/internal/correlator"
	derivhandler "issuance/internal/derivatives/handler"
	derivmodels "issuance/internal/derivatives/models"
	derivservice "issuance/internal/derivatives/service"
	ledgerhandler "issuance/internal/ledger/handler"
	ledgermodels "issuance/internal/ledger/models"
	offeringhandler "issuance/internal/offering/handler"
	offeringmodels "issuance/internal/offering/models"
	"issuance/internal/platform/metrics"
	reconmodels "issuance/internal/reconciliation/models"
	settlementhandler "issuance/internal/settlement/handler"
	settlementservice "issuance/internal/settlement/service"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/requestcontext"
)

var tracer = otel.Tracer("issuance/ingest")

// Event names accepted by the dispatcher.
const (
	EventOfferingConfigured       = "OfferingConfigured"
	EventInvestorWhitelisted      = "InvestorWhitelisted"
	EventCommitmentRecorded       = "CommitmentRecorded"
	EventUnitsIssued              = "UnitsIssued"
	EventSettlementRecorded       = "SettlementRecorded"
	EventFinalized                = "Finalized"
	EventCorporateActionAnnounced = "CorporateActionAnnounced"
	EventDerivativeReported       = "DerivativeReported"
	EventRequestFulfilled         = "RequestFulfilled"
)

type Offerings interface {
	Configure(ctx context.Context, securityID id.SecurityID, cfg offeringmodels.Config) (*offeringmodels.Offering, error)
	UpdateConfig(ctx context.Context, securityID id.SecurityID, cfg offeringmodels.Config) (*offeringmodels.Offering, error)
	RecordCommitment(ctx context.Context, securityID id.SecurityID, investor id.InvestorID, amount decimal.Decimal, currency id.Currency, paymentRef string) (*offeringmodels.Commitment, error)
	IssueUnits(ctx context.Context, securityID id.SecurityID, investor id.InvestorID, units int64) (*offeringmodels.Issuance, error)
	Finalize(ctx context.Context, securityID id.SecurityID) (*offeringmodels.Offering, error)
}

type Investors interface {
	Whitelist(ctx context.Context, investor id.InvestorID, jurisdiction string, kyc, aml bool) (*ledgermodels.Position, error)
}

type Settlements interface {
	SyncSettlement(ctx context.Context, cmd settlementservice.SyncCommand) (*reconmodels.Record, error)
}

type CorporateActions interface {
	Process(ctx context.Context, action camodels.Action) (*camodels.Fact, error)
}

type Derivatives interface {
	Submit(ctx context.Context, cmd derivservice.ReportCommand) (*derivmodels.Report, error)
}

type Requests interface {
	Fulfill(ctx context.Context, requestID id.RequestID, resp correlator.Response) error
}

// Services bundles the collaborators events are dispatched to.
type Services struct {
	Offerings        Offerings
	Investors        Investors
	Settlements      Settlements
	CorporateActions CorporateActions
	Derivatives      Derivatives
	Requests         Requests
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

type applyFunc func(ctx context.Context, env envelope, raw []byte) error

// Dispatcher routes named events to service calls.
type Dispatcher struct {
	services Services
	handlers map[string]applyFunc
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(services Services, opts ...Option) *Dispatcher {
	d := &Dispatcher{services: services}
	d.handlers = map[string]applyFunc{
		EventOfferingConfigured:       d.offeringConfigured,
		EventInvestorWhitelisted:      d.investorWhitelisted,
		EventCommitmentRecorded:       d.commitmentRecorded,
		EventUnitsIssued:              d.unitsIssued,
		EventSettlementRecorded:       d.settlementRecorded,
		EventFinalized:                d.finalized,
		EventCorporateActionAnnounced: d.corporateActionAnnounced,
		EventDerivativeReported:       d.derivativeReported,
		EventRequestFulfilled:         d.requestFulfilled,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type envelope struct {
	Event       string `json:"event"`
	SecurityID  string `json:"security_id"`
	Identifiers struct {
		ISIN string `json:"isin"`
	} `json:"identifiers"`
	TransactionHash string `json:"transaction_hash"`
}

func (e envelope) securityID() (id.SecurityID, error) {
	if e.SecurityID != "" {
		return id.ParseSecurityID(e.SecurityID)
	}
	return id.ParseSecurityID(e.Identifiers.ISIN)
}

// Dispatch applies one raw event. Events without a name, or with a name the
// dispatcher does not know, are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "event must be a JSON object")
	}
	if env.Event == "" {
		return nil
	}
	apply, ok := d.handlers[env.Event]
	if !ok {
		d.count(env.Event, "ignored")
		if d.logger != nil {
			d.logger.DebugContext(ctx, "ignoring unknown event", "event", env.Event)
		}
		return nil
	}

	ctx, span := tracer.Start(ctx, "ingest.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("event", env.Event))

	if err := apply(ctx, env, raw); err != nil {
		d.count(env.Event, string(dErrors.CodeOf(err)))
		if d.logger != nil {
			d.logger.WarnContext(ctx, "ingested event rejected",
				"event", env.Event,
				"transaction_hash", env.TransactionHash,
				"request_id", requestcontext.RequestID(ctx),
				"principal", requestcontext.Principal(ctx).String(),
				"error", err,
			)
		}
		return err
	}
	d.count(env.Event, "applied")
	if d.logger != nil {
		d.logger.InfoContext(ctx, "ingested event applied",
			"event", env.Event,
			"transaction_hash", env.TransactionHash,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return nil
}

func (d *Dispatcher) count(event, outcome string) {
	if d.metrics != nil {
		d.metrics.IngestedEvents.WithLabelValues(event, outcome).Inc()
	}
}

// decode unmarshals raw into the request type T and runs its validation.
func decode[T any, PT interface {
	*T
	Validate() error
}](raw []byte) (PT, error) {
	req := PT(new(T))
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed event body")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// offeringConfigured creates the offering, or replaces its configuration if
// it already exists.
func (d *Dispatcher) offeringConfigured(ctx context.Context, env envelope, raw []byte) error {
	securityID, err := env.securityID()
	if err != nil {
		return err
	}
	req, err := decode[offeringhandler.ConfigRequest](raw)
	if err != nil {
		return err
	}
	_, err = d.services.Offerings.Configure(ctx, securityID, req.Config())
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		_, err = d.services.Offerings.UpdateConfig(ctx, securityID, req.Config())
	}
	return err
}

func (d *Dispatcher) investorWhitelisted(ctx context.Context, _ envelope, raw []byte) error {
	req, err := decode[ledgerhandler.WhitelistRequest](raw)
	if err != nil {
		return err
	}
	_, err = d.services.Investors.Whitelist(ctx, req.InvestorID(), req.Jurisdiction, req.KYCPassed, req.AMLPassed)
	return err
}

func (d *Dispatcher) commitmentRecorded(ctx context.Context, env envelope, raw []byte) error {
	securityID, err := env.securityID()
	if err != nil {
		return err
	}
	req, err := decode[offeringhandler.CommitmentRequest](raw)
	if err != nil {
		return err
	}
	investor, amount, currency := req.Parsed()
	_, err = d.services.Offerings.RecordCommitment(ctx, securityID, investor, amount, currency, req.PaymentReference)
	return err
}

func (d *Dispatcher) unitsIssued(ctx context.Context, env envelope, raw []byte) error {
	securityID, err := env.securityID()
	if err != nil {
		return err
	}
	req, err := decode[offeringhandler.IssuanceRequest](raw)
	if err != nil {
		return err
	}
	_, err = d.services.Offerings.IssueUnits(ctx, securityID, req.InvestorID(), req.Units)
	return err
}

func (d *Dispatcher) settlementRecorded(ctx context.Context, _ envelope, raw []byte) error {
	req, err := decode[settlementhandler.SyncRequest](raw)
	if err != nil {
		return err
	}
	_, err = d.services.Settlements.SyncSettlement(ctx, req.Command())
	return err
}

func (d *Dispatcher) finalized(ctx context.Context, env envelope, _ []byte) error {
	securityID, err := env.securityID()
	if err != nil {
		return err
	}
	_, err = d.services.Offerings.Finalize(ctx, securityID)
	return err
}

func (d *Dispatcher) corporateActionAnnounced(ctx context.Context, _ envelope, raw []byte) error {
	req, err := decode[cahandler.ProcessRequest](raw)
	if err != nil {
		return err
	}
	_, err = d.services.CorporateActions.Process(ctx, req.Action())
	return err
}

func (d *Dispatcher) derivativeReported(ctx context.Context, _ envelope, raw []byte) error {
	req, err := decode[derivhandler.ReportRequest](raw)
	if err != nil {
		return err
	}
	_, err = d.services.Derivatives.Submit(ctx, req.Command())
	return err
}

type fulfilment struct {
	RequestID string         `json:"request_id"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
}

func (d *Dispatcher) requestFulfilled(ctx context.Context, _ envelope, raw []byte) error {
	var f fulfilment
	if err := json.Unmarshal(raw, &f); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed event body")
	}
	requestID, err := id.ParseRequestID(f.RequestID)
	if err != nil {
		return err
	}
	return d.services.Requests.Fulfill(ctx, requestID, correlator.Response{
		Kind:    correlator.Kind(f.Kind),
		Payload: f.Payload,
	})
}
