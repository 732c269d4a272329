// Package service implements the securities registry: registration, lookup,
// CSD mappings, NAV requests and supply adjustments.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"issuance/internal/correlator"
	"issuance/internal/rbac"
	"issuance/internal/registry/models"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/events"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/requestcontext"
)

var tracer = otel.Tracer("issuance/registry")

type Store interface {
	Create(ctx context.Context, sec *models.Security) error
	FindByID(ctx context.Context, securityID id.SecurityID) (*models.Security, error)
	List(ctx context.Context) ([]*models.Security, error)
	Update(ctx context.Context, securityID id.SecurityID, fn func(*models.Security) error) (*models.Security, error)
	SetCSDMapping(ctx context.Context, m models.CSDMapping) error
	CSDMappings(ctx context.Context, securityID id.SecurityID) ([]models.CSDMapping, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, op rbac.Operation) error
}

// RequestIssuer sends asynchronous requests to external data providers.
type RequestIssuer interface {
	Issue(ctx context.Context, spec correlator.Spec, callback correlator.Callback) (id.RequestID, error)
}

// RegisterCommand carries the fields of a registration.
type RegisterCommand struct {
	SecurityID    id.SecurityID
	IssuerLEI     id.LEI
	UPI           id.UPI
	Description   string
	Currency      id.Currency
	IssueDate     time.Time
	MaturityDate  *time.Time
	InitialSupply int64
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

// WithRequestIssuer enables RequestNAV.
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

// Register inserts an immutable security record.
//
// Errors: NotAuthorized; InvalidSecurity for missing fields or an identifier
// that is already registered.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*models.Security, error) {
	ctx, span := tracer.Start(ctx, "registry.Register")
	defer span.End()
	span.SetAttributes(attribute.String("security_id", cmd.SecurityID.String()))

	if err := s.gate.Authorize(ctx, rbac.OpRegisterSecurity); err != nil {
		return nil, err
	}
	sec, err := models.NewSecurity(cmd.SecurityID, cmd.IssuerLEI, cmd.UPI, cmd.Description, cmd.Currency,
		cmd.IssueDate, cmd.MaturityDate, cmd.InitialSupply, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, sec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeInvalidSecurity, "security %s is already registered", sec.ID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register security")
	}

	s.events.Emit(ctx, events.KindSecurityRegistered, sec.ID.String(), map[string]any{
		"issuer_lei":   sec.IssuerLEI.String(),
		"upi":          sec.UPI.String(),
		"currency":     sec.Currency.String(),
		"issue_date":   sec.IssueDate,
		"total_supply": sec.TotalSupply,
	})
	s.logInfo(ctx, "security registered", "security_id", sec.ID.String(), "issuer_lei", sec.IssuerLEI.String())
	return sec, nil
}

// Get returns the security or a NotFound error.
func (s *Service) Get(ctx context.Context, securityID id.SecurityID) (*models.Security, error) {
	sec, err := s.store.FindByID(ctx, securityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "security %s not found", securityID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load security")
	}
	return sec, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Security, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list securities")
	}
	return list, nil
}

// SetCSDMapping records the security's identifier at a depository.
func (s *Service) SetCSDMapping(ctx context.Context, m models.CSDMapping) error {
	if err := s.gate.Authorize(ctx, rbac.OpSetCSDMapping); err != nil {
		return err
	}
	if m.CSDSecurityID == "" {
		return dErrors.New(dErrors.CodeValidation, "csd security id is required")
	}
	if err := s.store.SetCSDMapping(ctx, m); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeInvalidSecurity, "security %s is not registered", m.SecurityID)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store csd mapping")
	}
	s.events.Emit(ctx, events.KindCSDMappingSet, m.SecurityID.String(), map[string]any{
		"csd_system":      string(m.System),
		"csd_security_id": m.CSDSecurityID,
		"active":          m.Active,
	})
	s.logInfo(ctx, "csd mapping set", "security_id", m.SecurityID.String(), "csd_system", string(m.System))
	return nil
}

// CSDMapping returns the active mapping for system.
func (s *Service) CSDMapping(ctx context.Context, securityID id.SecurityID, system models.CSDSystem) (models.CSDMapping, error) {
	mappings, err := s.store.CSDMappings(ctx, securityID)
	if err != nil {
		return models.CSDMapping{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load csd mappings")
	}
	for _, m := range mappings {
		if m.System == system && m.Active {
			return m, nil
		}
	}
	return models.CSDMapping{}, dErrors.Newf(dErrors.CodeNotFound, "no active %s mapping for %s", system, securityID)
}

func (s *Service) CSDMappings(ctx context.Context, securityID id.SecurityID) ([]models.CSDMapping, error) {
	mappings, err := s.store.CSDMappings(ctx, securityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load csd mappings")
	}
	return mappings, nil
}

// RequestNAV asks the data provider for the current NAV. The operation
// returns the pending request id immediately; the NAV is recorded when the
// response arrives.
func (s *Service) RequestNAV(ctx context.Context, securityID id.SecurityID) (id.RequestID, error) {
	ctx, span := tracer.Start(ctx, "registry.RequestNAV")
	defer span.End()

	if err := s.gate.Authorize(ctx, rbac.OpRequestNAV); err != nil {
		return id.RequestID{}, err
	}
	if s.requests == nil {
		return id.RequestID{}, dErrors.New(dErrors.CodeInternal, "NAV provider not configured")
	}
	sec, err := s.Get(ctx, securityID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return id.RequestID{}, dErrors.Wrap(err, dErrors.CodeInvalidSecurity, "security is not registered")
		}
		return id.RequestID{}, err
	}
	return s.requests.Issue(ctx, correlator.Spec{
		Kind:    correlator.KindNAV,
		Subject: sec.ID.String(),
		Params:  map[string]any{"security_id": sec.ID.String(), "currency": sec.Currency.String()},
	}, s.applyNAV)
}

// applyNAV expects {"nav": "<decimal>", "currency": "USD", "as_of": RFC3339}.
// currency defaults to the security currency and as_of to the fulfil time.
func (s *Service) applyNAV(ctx context.Context, req correlator.Request, resp correlator.Response) error {
	raw, err := resp.String("nav")
	if err != nil {
		return err
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || !value.IsPositive() {
		return dErrors.Newf(dErrors.CodeValidation, "nav %q must be a positive decimal", raw)
	}
	asOf := requestcontext.Now(ctx)
	if v := resp.OptionalString("as_of"); v != "" {
		if asOf, err = time.Parse(time.RFC3339, v); err != nil {
			return dErrors.New(dErrors.CodeValidation, "as_of must be RFC3339")
		}
	}

	securityID := id.SecurityID(req.Subject)
	sec, err := s.store.Update(ctx, securityID, func(sec *models.Security) error {
		currency := sec.Currency
		if v := resp.OptionalString("currency"); v != "" {
			if currency, err = id.ParseCurrency(v); err != nil {
				return err
			}
		}
		sec.NAV = &models.NAV{Value: value, Currency: currency, AsOf: asOf.UTC()}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "security %s not found", securityID)
		}
		return err
	}

	s.events.Emit(ctx, events.KindSecurityNAVUpdated, sec.ID.String(), map[string]any{
		"nav":        sec.NAV.Value.String(),
		"currency":   sec.NAV.Currency.String(),
		"as_of":      sec.NAV.AsOf,
		"request_id": req.ID.String(),
	})
	s.logInfo(ctx, "nav updated", "security_id", sec.ID.String(), "nav", sec.NAV.Value.String())
	return nil
}

// AdjustSupply applies a corporate-action driven supply change. Callers have
// already passed the role gate for the originating action.
func (s *Service) AdjustSupply(ctx context.Context, securityID id.SecurityID, delta int64, reason string) (*models.Security, error) {
	return s.updateSupply(ctx, securityID, reason, func(sec *models.Security) error {
		return sec.AdjustSupply(delta)
	})
}

var maxSupply = decimal.NewFromInt(math.MaxInt64)

// ScaleSupply multiplies the supply by numerator/denominator, rounding down.
func (s *Service) ScaleSupply(ctx context.Context, securityID id.SecurityID, numerator, denominator int64, reason string) (*models.Security, error) {
	if numerator <= 0 || denominator <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidSplitRatio, "ratio terms must be positive")
	}
	return s.updateSupply(ctx, securityID, reason, func(sec *models.Security) error {
		scaled := decimal.NewFromInt(sec.TotalSupply).Mul(decimal.NewFromInt(numerator)).Div(decimal.NewFromInt(denominator)).Floor()
		if scaled.GreaterThan(maxSupply) {
			return dErrors.Newf(dErrors.CodeValidation, "split %d:%d overflows supply of %d", numerator, denominator, sec.TotalSupply)
		}
		return sec.AdjustSupply(scaled.IntPart() - sec.TotalSupply)
	})
}

func (s *Service) updateSupply(ctx context.Context, securityID id.SecurityID, reason string, fn func(*models.Security) error) (*models.Security, error) {
	var before int64
	sec, err := s.store.Update(ctx, securityID, func(sec *models.Security) error {
		before = sec.TotalSupply
		return fn(sec)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeInvalidSecurity, "security %s is not registered", securityID)
		}
		if dErrors.CodeOf(err) != dErrors.CodeInternal {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to adjust supply")
	}
	s.events.Emit(ctx, events.KindSupplyAdjusted, sec.ID.String(), map[string]any{
		"previous_supply": before,
		"total_supply":    sec.TotalSupply,
		"reason":          reason,
	})
	s.logInfo(ctx, "supply adjusted", "security_id", sec.ID.String(), "previous", before, "total", sec.TotalSupply)
	return sec, nil
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
