// Package service implements the investor position ledger: compliance
// whitelisting, flag updates and asynchronous validation requests. Holdings
// are mutated by the offering state machine through Update.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"issuance/internal/correlator"
	"issuance/internal/ledger/models"
	"issuance/internal/rbac"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/events"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/requestcontext"
)

var tracer = otel.Tracer("issuance/ledger")

type Store interface {
	FindByInvestor(ctx context.Context, investor id.InvestorID) (*models.Position, error)
	List(ctx context.Context) ([]*models.Position, error)
	Execute(ctx context.Context, investor id.InvestorID, create bool, now time.Time, fn func(*models.Position) error) (*models.Position, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, op rbac.Operation) error
}

// RequestIssuer sends asynchronous requests to the KYC/AML authority.
type RequestIssuer interface {
	Issue(ctx context.Context, spec correlator.Spec, callback correlator.Callback) (id.RequestID, error)
}

type Service struct {
	store    Store
	gate     Authorizer
	requests RequestIssuer
	events   events.Emitter
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEvents(e events.Emitter) Option {
	return func(s *Service) {
		s.events = e
	}
}

func WithRequestIssuer(r RequestIssuer) Option {
	return func(s *Service) {
		s.requests = r
	}
}

func New(store Store, gate Authorizer, opts ...Option) *Service {
	s := &Service{store: store, gate: gate, events: events.Discard}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Whitelist records the investor's jurisdiction and compliance flags,
// creating the position on first call.
func (s *Service) Whitelist(ctx context.Context, investor id.InvestorID, jurisdiction string, kyc, aml bool) (*models.Position, error) {
	ctx, span := tracer.Start(ctx, "ledger.Whitelist")
	defer span.End()
	span.SetAttributes(attribute.String("investor", investor.String()))

	if err := s.gate.Authorize(ctx, rbac.OpWhitelistInvestor); err != nil {
		return nil, err
	}
	if investor.IsNil() {
		return nil, dErrors.New(dErrors.CodeZeroAddress, "investor address cannot be zero")
	}
	jurisdiction = models.NormalizeJurisdiction(jurisdiction)
	if jurisdiction == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "jurisdiction is required")
	}

	p, err := s.store.Execute(ctx, investor, true, requestcontext.Now(ctx), func(p *models.Position) error {
		p.Jurisdiction = jurisdiction
		p.KYCPassed = kyc
		p.AMLPassed = aml
		return nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to whitelist investor")
	}

	s.events.Emit(ctx, events.KindInvestorWhitelisted, investor.String(), map[string]any{
		"jurisdiction": jurisdiction,
		"kyc_passed":   kyc,
		"aml_passed":   aml,
	})
	s.logInfo(ctx, "investor whitelisted", "investor", investor.String(), "jurisdiction", jurisdiction, "kyc", kyc, "aml", aml)
	return p, nil
}

// SetCompliance updates the flags of an existing position.
func (s *Service) SetCompliance(ctx context.Context, investor id.InvestorID, kyc, aml bool) (*models.Position, error) {
	if err := s.gate.Authorize(ctx, rbac.OpSetCompliance); err != nil {
		return nil, err
	}
	if investor.IsNil() {
		return nil, dErrors.New(dErrors.CodeZeroAddress, "investor address cannot be zero")
	}
	return s.applyCompliance(ctx, investor, kyc, aml, "", "compliance_officer")
}

func (s *Service) applyCompliance(ctx context.Context, investor id.InvestorID, kyc, aml bool, jurisdiction, source string) (*models.Position, error) {
	p, err := s.store.Execute(ctx, investor, false, requestcontext.Now(ctx), func(p *models.Position) error {
		p.KYCPassed = kyc
		p.AMLPassed = aml
		if jurisdiction != "" {
			p.Jurisdiction = jurisdiction
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "investor %s is not whitelisted", investor)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update compliance")
	}
	s.events.Emit(ctx, events.KindComplianceUpdated, investor.String(), map[string]any{
		"kyc_passed":   kyc,
		"aml_passed":   aml,
		"jurisdiction": p.Jurisdiction,
		"source":       source,
	})
	s.logInfo(ctx, "compliance updated", "investor", investor.String(), "kyc", kyc, "aml", aml, "source", source)
	return p, nil
}

// RequestValidation asks the KYC/AML authority to re-validate the investor.
// The returned flags are applied when the response is fulfilled.
func (s *Service) RequestValidation(ctx context.Context, investor id.InvestorID) (id.RequestID, error) {
	ctx, span := tracer.Start(ctx, "ledger.RequestValidation")
	defer span.End()

	if err := s.gate.Authorize(ctx, rbac.OpRequestValidation); err != nil {
		return id.RequestID{}, err
	}
	if s.requests == nil {
		return id.RequestID{}, dErrors.New(dErrors.CodeInternal, "compliance provider not configured")
	}
	p, err := s.Get(ctx, investor)
	if err != nil {
		return id.RequestID{}, err
	}
	return s.requests.Issue(ctx, correlator.Spec{
		Kind:    correlator.KindInvestorValidation,
		Subject: investor.String(),
		Params:  map[string]any{"investor": investor.String(), "jurisdiction": p.Jurisdiction},
	}, s.applyValidation)
}

// applyValidation expects {"kyc": bool, "aml": bool, "jurisdiction"?: string}.
func (s *Service) applyValidation(ctx context.Context, req correlator.Request, resp correlator.Response) error {
	kyc, err := resp.Bool("kyc")
	if err != nil {
		return err
	}
	aml, err := resp.Bool("aml")
	if err != nil {
		return err
	}
	jurisdiction := models.NormalizeJurisdiction(resp.OptionalString("jurisdiction"))
	_, err = s.applyCompliance(ctx, id.InvestorID(req.Subject), kyc, aml, jurisdiction, "validation:"+req.ID.String())
	return err
}

// Get returns the investor's position.
func (s *Service) Get(ctx context.Context, investor id.InvestorID) (*models.Position, error) {
	p, err := s.store.FindByInvestor(ctx, investor)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "investor %s not found", investor)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load position")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Position, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list positions")
	}
	return list, nil
}

// Update mutates the investor's position under the investor lock, creating
// it on first use. It is not gated: the offering state machine calls it from
// inside its own authorized operations. Errors returned by fn pass through
// unchanged.
func (s *Service) Update(ctx context.Context, investor id.InvestorID, fn func(*models.Position) error) (*models.Position, error) {
	return s.store.Execute(ctx, investor, true, requestcontext.Now(ctx), fn)
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	args = append(args,
		"request_id", requestcontext.RequestID(ctx),
		"principal", requestcontext.Principal(ctx).String(),
	)
	s.logger.InfoContext(ctx, msg, args...)
}
