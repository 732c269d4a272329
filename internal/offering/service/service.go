// Package service implements the offering state machine: configuration,
// windowed commitments under a raise cap, compliance-gated issuance and
// one-way finalization.
//
// Lock order is offering, then investor. The compliance oracle is consulted
// before any lock is taken and the unit issuer only after the issuance
// commits.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	ledgermodels "issuance/internal/ledger/models"
	"issuance/internal/offering/models"
	"issuance/internal/platform/metrics"
	"issuance/internal/rbac"
	registrymodels "issuance/internal/registry/models"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/events"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/requestcontext"
)

var tracer = otel.Tracer("issuance/offering")

type Store interface {
	Create(ctx context.Context, o *models.Offering) error
	FindBySecurity(ctx context.Context, securityID id.SecurityID) (*models.Offering, error)
	List(ctx context.Context) ([]*models.Offering, error)
	Execute(ctx context.Context, securityID id.SecurityID, fn func(ctx context.Context, o *models.Offering) error) (*models.Offering, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, op rbac.Operation) error
}

// Securities resolves registered securities.
type Securities interface {
	Get(ctx context.Context, securityID id.SecurityID) (*registrymodels.Security, error)
}

// Positions is the investor ledger. Update must run fn under the investor
// lock and join any transaction carried by ctx.
type Positions interface {
	Get(ctx context.Context, investor id.InvestorID) (*ledgermodels.Position, error)
	Update(ctx context.Context, investor id.InvestorID, fn func(*ledgermodels.Position) error) (*ledgermodels.Position, error)
}

// ComplianceOracle is the external eligibility check.
type ComplianceOracle interface {
	IsEligible(ctx context.Context, investor id.InvestorID, jurisdiction string) (bool, error)
}

// UnitIssuer mints units on the downstream ledger.
type UnitIssuer interface {
	Mint(ctx context.Context, investor id.InvestorID, units int64) error
}

type Service struct {
	store      Store
	securities Securities
	positions  Positions
	oracle     ComplianceOracle
	gate       Authorizer
	issuer     UnitIssuer
	events     events.Emitter
	metrics    *metrics.Metrics
	logger     *slog.Logger
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithUnitIssuer enables minting after issuance.
func WithUnitIssuer(issuer UnitIssuer) Option {
	return func(s *Service) {
		s.issuer = issuer
	}
}

func New(store Store, securities Securities, positions Positions, oracle ComplianceOracle, gate Authorizer, opts ...Option) *Service {
	s := &Service{
		store:      store,
		securities: securities,
		positions:  positions,
		oracle:     oracle,
		gate:       gate,
		events:     events.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure creates the offering for a registered security.
func (s *Service) Configure(ctx context.Context, securityID id.SecurityID, cfg models.Config) (*models.Offering, error) {
	ctx, span := tracer.Start(ctx, "offering.Configure")
	defer span.End()
	span.SetAttributes(attribute.String("security_id", securityID.String()))

	if err := s.gate.Authorize(ctx, rbac.OpConfigureOffering); err != nil {
		return nil, err
	}
	cfg.OfferingType = strings.TrimSpace(cfg.OfferingType)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireSecurity(ctx, securityID); err != nil {
		return nil, err
	}

	o := models.New(securityID, cfg, requestcontext.Now(ctx))
	if err := s.store.Create(ctx, o); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.Newf(dErrors.CodeConflict, "offering for %s already configured", securityID)
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Newf(dErrors.CodeInvalidSecurity, "security %s is not registered", securityID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to configure offering")
	}

	s.events.Emit(ctx, events.KindOfferingConfigured, securityID.String(), configPayload(cfg))
	s.logInfo(ctx, "offering configured", "security_id", securityID.String(), "offering_type", cfg.OfferingType,
		"max_raise", cfg.MaxRaise.String())
	return o, nil
}

// UpdateConfig replaces the configuration of an open offering. The cap may
// not drop below what is already committed.
func (s *Service) UpdateConfig(ctx context.Context, securityID id.SecurityID, cfg models.Config) (*models.Offering, error) {
	ctx, span := tracer.Start(ctx, "offering.UpdateConfig")
	defer span.End()

	if err := s.gate.Authorize(ctx, rbac.OpUpdateOffering); err != nil {
		return nil, err
	}
	cfg.OfferingType = strings.TrimSpace(cfg.OfferingType)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	o, err := s.store.Execute(ctx, securityID, func(_ context.Context, o *models.Offering) error {
		if o.Finalized {
			return dErrors.Newf(dErrors.CodeAlreadyFinalized, "offering for %s is finalized", securityID)
		}
		if cfg.MaxRaise.LessThan(o.TotalCommitted) {
			return dErrors.Newf(dErrors.CodeCapExceeded, "max raise %s is below committed total %s",
				cfg.MaxRaise, o.TotalCommitted)
		}
		o.Config = cfg
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.translate(err, securityID, "failed to update offering")
	}

	s.events.Emit(ctx, events.KindOfferingUpdated, securityID.String(), configPayload(cfg))
	s.logInfo(ctx, "offering updated", "security_id", securityID.String(), "max_raise", cfg.MaxRaise.String())
	return o, nil
}

// RecordCommitment adds amount to the investor's commitment and the
// offering total.
//
// Errors, in check order: NotAuthorized; ZeroAddress, ZeroAmount; NotFound
// for an unconfigured offering; AlreadyFinalized; NotInWindow;
// CurrencyMismatch; InvestorNotEligible; CapExceeded. A rejected call
// changes nothing.
func (s *Service) RecordCommitment(ctx context.Context, securityID id.SecurityID, investor id.InvestorID, amount decimal.Decimal, currency id.Currency, paymentRef string) (*models.Commitment, error) {
	ctx, span := tracer.Start(ctx, "offering.RecordCommitment")
	defer span.End()
	span.SetAttributes(
		attribute.String("security_id", securityID.String()),
		attribute.String("investor", investor.String()),
	)

	c, err := s.recordCommitment(ctx, securityID, investor, amount, currency, paymentRef)
	if err != nil {
		if s.metrics != nil {
			s.metrics.CommitmentsRejected.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
		}
		if dErrors.ClassOf(err) == dErrors.ClassPolicy && s.logger != nil {
			s.logger.WarnContext(ctx, "commitment rejected",
				"security_id", securityID.String(),
				"investor", investor.String(),
				"amount", amount.String(),
				"code", string(dErrors.CodeOf(err)),
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CommitmentsRecorded.Inc()
	}
	s.events.Emit(ctx, events.KindCommitmentRecorded, securityID.String(), map[string]any{
		"investor":           investor.String(),
		"amount":             amount.String(),
		"currency":           currency.String(),
		"payment_reference":  paymentRef,
		"investor_committed": c.InvestorCommitted.String(),
		"total_committed":    c.TotalCommitted.String(),
	})
	s.logInfo(ctx, "commitment recorded", "security_id", securityID.String(), "investor", investor.String(),
		"amount", amount.String(), "total_committed", c.TotalCommitted.String())
	return c, nil
}

func (s *Service) recordCommitment(ctx context.Context, securityID id.SecurityID, investor id.InvestorID, amount decimal.Decimal, currency id.Currency, paymentRef string) (*models.Commitment, error) {
	if err := s.gate.Authorize(ctx, rbac.OpRecordCommitment); err != nil {
		return nil, err
	}
	if investor.IsNil() {
		return nil, dErrors.New(dErrors.CodeZeroAddress, "investor address cannot be zero")
	}
	if !amount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeZeroAmount, "commitment amount must be positive")
	}
	if currency == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "currency is required")
	}

	now := requestcontext.Now(ctx)
	current, err := s.Get(ctx, securityID)
	if err != nil {
		return nil, err
	}
	if err := checkOpen(current, now); err != nil {
		return nil, err
	}
	if currency != current.Config.BaseCurrency {
		return nil, dErrors.Newf(dErrors.CodeCurrencyMismatch, "offering accepts %s, got %s",
			current.Config.BaseCurrency, currency)
	}
	if err := s.checkEligible(ctx, investor); err != nil {
		return nil, err
	}

	receipt := &models.Commitment{
		SecurityID:       securityID,
		Investor:         investor,
		Amount:           amount,
		Currency:         currency,
		PaymentReference: paymentRef,
		RecordedAt:       now,
	}
	_, err = s.store.Execute(ctx, securityID, func(ctx context.Context, o *models.Offering) error {
		if err := checkOpen(o, now); err != nil {
			return err
		}
		tentative := o.TotalCommitted.Add(amount)
		if tentative.GreaterThan(o.Config.MaxRaise) {
			return dErrors.Newf(dErrors.CodeCapExceeded, "commitment of %s exceeds remaining capacity %s",
				amount, o.Remaining())
		}
		p, err := s.positions.Update(ctx, investor, func(p *ledgermodels.Position) error {
			h := p.Holding(securityID)
			h.Committed = h.Committed.Add(amount)
			return nil
		})
		if err != nil {
			return err
		}
		o.TotalCommitted = tentative
		o.UpdatedAt = now
		receipt.InvestorCommitted = p.Committed(securityID)
		receipt.TotalCommitted = tentative
		return nil
	})
	if err != nil {
		return nil, s.translate(err, securityID, "failed to record commitment")
	}
	return receipt, nil
}

// checkEligible reads the investor's jurisdiction and asks the oracle. It runs
// before any lock is taken.
func (s *Service) checkEligible(ctx context.Context, investor id.InvestorID) error {
	jurisdiction := ""
	p, err := s.positions.Get(ctx, investor)
	switch {
	case err == nil:
		jurisdiction = p.Jurisdiction
	case !dErrors.HasCode(err, dErrors.CodeNotFound):
		return err
	}
	ok, err := s.oracle.IsEligible(ctx, investor, jurisdiction)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvestorNotEligible, "compliance check failed")
	}
	if !ok {
		return dErrors.Newf(dErrors.CodeInvestorNotEligible, "investor %s is not eligible", investor)
	}
	return nil
}

// IssueUnits credits units to a compliant investor and starts the lockup.
// Issuance is not bound by the offering window.
//
// Errors: NotAuthorized; ZeroUnits, ZeroAddress; NotFound; AlreadyFinalized;
// NotCompliant unless both KYC and AML are passed at call time.
func (s *Service) IssueUnits(ctx context.Context, securityID id.SecurityID, investor id.InvestorID, units int64) (*models.Issuance, error) {
	ctx, span := tracer.Start(ctx, "offering.IssueUnits")
	defer span.End()
	span.SetAttributes(
		attribute.String("security_id", securityID.String()),
		attribute.String("investor", investor.String()),
		attribute.Int64("units", units),
	)

	if err := s.gate.Authorize(ctx, rbac.OpIssueUnits); err != nil {
		return nil, err
	}
	if units <= 0 {
		return nil, dErrors.New(dErrors.CodeZeroUnits, "units must be positive")
	}
	if investor.IsNil() {
		return nil, dErrors.New(dErrors.CodeZeroAddress, "investor address cannot be zero")
	}

	now := requestcontext.Now(ctx)
	receipt := &models.Issuance{SecurityID: securityID, Investor: investor, Units: units, IssuedAt: now}
	_, err := s.store.Execute(ctx, securityID, func(ctx context.Context, o *models.Offering) error {
		if o.Finalized {
			return dErrors.Newf(dErrors.CodeAlreadyFinalized, "offering for %s is finalized", securityID)
		}
		totalIssued, err := id.AddUnits(o.TotalIssued, units)
		if err != nil {
			return err
		}
		release := o.LockupRelease(now)
		p, err := s.positions.Update(ctx, investor, func(p *ledgermodels.Position) error {
			if !p.Compliant() {
				return dErrors.Newf(dErrors.CodeNotCompliant, "investor %s has not passed KYC and AML", investor)
			}
			h := p.Holding(securityID)
			issued, err := id.AddUnits(h.IssuedUnits, units)
			if err != nil {
				return err
			}
			h.IssuedUnits = issued
			h.LockupRelease = &release
			return nil
		})
		if err != nil {
			return err
		}
		o.TotalIssued = totalIssued
		o.UpdatedAt = now
		receipt.InvestorUnits = p.Holdings[securityID].IssuedUnits
		receipt.TotalIssued = o.TotalIssued
		receipt.LockupRelease = release
		return nil
	})
	if err != nil {
		return nil, s.translate(err, securityID, "failed to issue units")
	}

	if s.metrics != nil {
		s.metrics.UnitsIssued.Add(float64(units))
	}
	s.events.Emit(ctx, events.KindUnitsIssued, securityID.String(), map[string]any{
		"investor":       investor.String(),
		"units":          units,
		"lockup_release": receipt.LockupRelease,
		"total_issued":   receipt.TotalIssued,
	})
	s.logInfo(ctx, "units issued", "security_id", securityID.String(), "investor", investor.String(),
		"units", units, "lockup_release", receipt.LockupRelease)

	s.mint(ctx, receipt)
	return receipt, nil
}

// mint notifies the downstream issuer. The issuance is already committed, so
// a failure is reported as a divergence instead of an error.
func (s *Service) mint(ctx context.Context, receipt *models.Issuance) {
	if s.issuer == nil {
		return
	}
	err := s.issuer.Mint(ctx, receipt.Investor, receipt.Units)
	if err == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.Divergences.WithLabelValues("issuance").Inc()
	}
	s.events.Emit(ctx, events.KindReconciliationDivergence, receipt.SecurityID.String(), map[string]any{
		"domain":   "issuance",
		"investor": receipt.Investor.String(),
		"units":    receipt.Units,
		"error":    err.Error(),
	})
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "mint failed after issuance",
			"security_id", receipt.SecurityID.String(),
			"investor", receipt.Investor.String(),
			"units", receipt.Units,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// Finalize closes the offering permanently.
func (s *Service) Finalize(ctx context.Context, securityID id.SecurityID) (*models.Offering, error) {
	ctx, span := tracer.Start(ctx, "offering.Finalize")
	defer span.End()

	if err := s.gate.Authorize(ctx, rbac.OpFinalizeOffering); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	o, err := s.store.Execute(ctx, securityID, func(_ context.Context, o *models.Offering) error {
		if o.Finalized {
			return dErrors.Newf(dErrors.CodeAlreadyFinalized, "offering for %s is already finalized", securityID)
		}
		o.Finalized = true
		o.FinalizedAt = &now
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, s.translate(err, securityID, "failed to finalize offering")
	}

	if s.metrics != nil {
		s.metrics.OfferingsFinalized.Inc()
	}
	s.events.Emit(ctx, events.KindOfferingFinalized, securityID.String(), map[string]any{
		"total_committed":    o.TotalCommitted.String(),
		"total_units_issued": o.TotalIssued,
		"finalized_at":       now,
	})
	s.logInfo(ctx, "offering finalized", "security_id", securityID.String(),
		"total_committed", o.TotalCommitted.String(), "total_issued", o.TotalIssued)
	return o, nil
}

func (s *Service) Get(ctx context.Context, securityID id.SecurityID) (*models.Offering, error) {
	o, err := s.store.FindBySecurity(ctx, securityID)
	if err != nil {
		return nil, s.translate(err, securityID, "failed to load offering")
	}
	return o, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Offering, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list offerings")
	}
	return list, nil
}

func (s *Service) requireSecurity(ctx context.Context, securityID id.SecurityID) error {
	if securityID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidSecurity, "security identifier is required")
	}
	_, err := s.securities.Get(ctx, securityID)
	if err == nil {
		return nil
	}
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return dErrors.Newf(dErrors.CodeInvalidSecurity, "security %s is not registered", securityID)
	}
	return err
}

// translate passes coded errors through and maps store sentinels.
func (s *Service) translate(err error, securityID id.SecurityID, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Newf(dErrors.CodeNotFound, "no offering configured for %s", securityID)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func checkOpen(o *models.Offering, now time.Time) error {
	if o.Finalized {
		return dErrors.Newf(dErrors.CodeAlreadyFinalized, "offering for %s is finalized", o.SecurityID)
	}
	if !o.InWindow(now) {
		return dErrors.Newf(dErrors.CodeNotInWindow, "offering window is %s to %s",
			o.Config.Start.Format(time.RFC3339), o.Config.End.Format(time.RFC3339))
	}
	return nil
}

func configPayload(cfg models.Config) map[string]any {
	return map[string]any{
		"offering_type":    cfg.OfferingType,
		"max_raise_amount": cfg.MaxRaise.String(),
		"lockup_seconds":   int64(cfg.Lockup / time.Second),
		"start":            cfg.Start,
		"end":              cfg.End,
		"base_currency":    cfg.BaseCurrency.String(),
	}
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
