// Package service implements the corporate action dispatcher: type-directed
// validation of tagged payloads with at-most-once processing per reference.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"issuance/internal/corporateaction/models"
	"issuance/internal/platform/metrics"
	"issuance/internal/rbac"
	reconmodels "issuance/internal/reconciliation/models"
	registrymodels "issuance/internal/registry/models"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/events"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/requestcontext"
)

var tracer = otel.Tracer("issuance/corporateaction")

type Store interface {
	Record(ctx context.Context, f *models.Fact) error
	Get(ctx context.Context, reference string) (*models.Fact, error)
	ListBySecurity(ctx context.Context, securityID id.SecurityID) ([]*models.Fact, error)
}

// Markers is the corporate action idempotency set. It shares the
// reconciliation store with settlements under its own domain.
type Markers interface {
	Claim(ctx context.Context, rec *reconmodels.Record) error
	Get(ctx context.Context, domain reconmodels.Domain, reference string) (*reconmodels.Record, error)
	SetStatus(ctx context.Context, domain reconmodels.Domain, reference string, status reconmodels.Status, detail string, at time.Time) error
}

type Authorizer interface {
	Authorize(ctx context.Context, op rbac.Operation) error
}

type Securities interface {
	Get(ctx context.Context, securityID id.SecurityID) (*registrymodels.Security, error)
}

// Handler is the per-kind extension point run after a fact is recorded,
// for example to compute payouts or adjust supply.
type Handler interface {
	Handle(ctx context.Context, f *models.Fact) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, f *models.Fact) error

func (fn HandlerFunc) Handle(ctx context.Context, f *models.Fact) error { return fn(ctx, f) }

type Service struct {
	store              Store
	markers            Markers
	securities         Securities
	gate               Authorizer
	handlers           map[models.Kind]Handler
	markBeforeValidate bool
	events             events.Emitter
	metrics            *metrics.Metrics
	logger             *slog.Logger
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

// WithHandler registers the extension run for kind.
func WithHandler(kind models.Kind, h Handler) Option {
	return func(s *Service) {
		s.handlers[kind] = h
	}
}

// WithMarkBeforeValidate claims the reference before the payload is
// validated, so a structurally invalid payload is recorded as a rejected
// attempt and cannot be retried under the same reference.
func WithMarkBeforeValidate(mark bool) Option {
	return func(s *Service) {
		s.markBeforeValidate = mark
	}
}

func New(store Store, markers Markers, securities Securities, gate Authorizer, opts ...Option) *Service {
	s := &Service{
		store:      store,
		markers:    markers,
		securities: securities,
		gate:       gate,
		handlers:   make(map[models.Kind]Handler),
		events:     events.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process validates and records a corporate action.
//
// Errors, in check order: NotAuthorized; Validation for an empty reference;
// InvalidActionType; InvalidDate for a zero effective date; InvalidSecurity;
// AlreadyProcessed; then the payload errors of the action kind
// (InvalidActionAmount, InvalidSplitRatio).
func (s *Service) Process(ctx context.Context, action models.Action) (*models.Fact, error) {
	ctx, span := tracer.Start(ctx, "corporateaction.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("reference", action.Reference),
		attribute.String("kind", string(action.Kind)),
	)

	fact, err := s.process(ctx, action)
	if err != nil {
		if s.metrics != nil {
			s.metrics.CorporateActions.WithLabelValues(string(action.Kind), string(dErrors.CodeOf(err))).Inc()
		}
		return nil, err
	}
	return fact, nil
}

func (s *Service) process(ctx context.Context, action models.Action) (*models.Fact, error) {
	if err := s.gate.Authorize(ctx, rbac.OpProcessAction); err != nil {
		return nil, err
	}
	action.Reference = strings.TrimSpace(action.Reference)
	if action.Reference == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "corporate action reference is required")
	}
	kind, err := models.ParseKind(string(action.Kind))
	if err != nil {
		return nil, err
	}
	action.Kind = kind
	if action.EffectiveDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidDate, "effective date is required")
	}
	if err := s.requireSecurity(ctx, action.SecurityID); err != nil {
		return nil, err
	}
	if err := s.checkUnprocessed(ctx, action.Reference); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	fact := &models.Fact{
		Reference:     action.Reference,
		SecurityID:    action.SecurityID,
		Kind:          kind,
		EffectiveDate: action.EffectiveDate,
		RecordDate:    action.RecordDate,
		Payload:       action.Payload,
		Status:        models.StatusRecorded,
		ProcessedAt:   now,
	}

	if s.markBeforeValidate {
		if err := s.claim(ctx, fact); err != nil {
			return nil, err
		}
		terms, err := models.DecodeTerms(kind, action.Payload)
		if err != nil {
			s.reject(ctx, fact, err)
			return nil, err
		}
		fact.Terms = terms
	} else {
		terms, err := models.DecodeTerms(kind, action.Payload)
		if err != nil {
			return nil, err
		}
		fact.Terms = terms
		if err := s.claim(ctx, fact); err != nil {
			return nil, err
		}
	}

	if err := s.store.Record(ctx, fact); err != nil {
		return nil, s.recordFailed(ctx, fact, err)
	}
	if s.metrics != nil {
		s.metrics.CorporateActions.WithLabelValues(string(kind), "processed").Inc()
	}
	payload := map[string]any{
		"security_id":    fact.SecurityID.String(),
		"kind":           string(kind),
		"effective_date": fact.EffectiveDate,
		"terms":          models.TermsPayload(fact.Terms),
	}
	if fact.RecordDate != nil {
		payload["record_date"] = *fact.RecordDate
	}
	s.events.Emit(ctx, events.KindCorporateActionProcessed, fact.Reference, payload)
	s.logInfo(ctx, "corporate action processed", "reference", fact.Reference, "kind", string(kind),
		"security_id", fact.SecurityID.String())

	s.dispatch(ctx, fact)
	return fact, nil
}

func (s *Service) checkUnprocessed(ctx context.Context, reference string) error {
	_, err := s.markers.Get(ctx, reconmodels.DomainCorporateAction, reference)
	switch {
	case err == nil:
		return dErrors.Newf(dErrors.CodeAlreadyProcessed, "corporate action %s already processed", reference)
	case errors.Is(err, sentinel.ErrNotFound):
		return nil
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check corporate action marker")
	}
}

// claim commits the idempotency marker. Losing a race to a concurrent
// delivery of the same reference is reported as AlreadyProcessed.
func (s *Service) claim(ctx context.Context, fact *models.Fact) error {
	err := s.markers.Claim(ctx, &reconmodels.Record{
		Domain:      reconmodels.DomainCorporateAction,
		Reference:   fact.Reference,
		InternalID:  uuid.NewString(),
		SecurityID:  fact.SecurityID,
		Status:      reconmodels.StatusProcessed,
		ProcessedAt: fact.ProcessedAt,
	})
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		return dErrors.Newf(dErrors.CodeAlreadyProcessed, "corporate action %s already processed", fact.Reference)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim corporate action reference")
	}
	return nil
}

// reject records a claimed reference whose payload failed validation.
func (s *Service) reject(ctx context.Context, fact *models.Fact, cause error) {
	fact.Status = models.StatusRejected
	fact.Reason = cause.Error()
	if err := s.markers.SetStatus(ctx, reconmodels.DomainCorporateAction, fact.Reference, reconmodels.StatusRejected, fact.Reason, fact.ProcessedAt); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to mark corporate action rejected", "reference", fact.Reference, "error", err)
	}
	if err := s.store.Record(ctx, fact); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to record rejected corporate action", "reference", fact.Reference, "error", err)
	}
	s.events.Emit(ctx, events.KindCorporateActionRejected, fact.Reference, map[string]any{
		"security_id": fact.SecurityID.String(),
		"kind":        string(fact.Kind),
		"code":        string(dErrors.CodeOf(cause)),
		"reason":      fact.Reason,
	})
	if s.logger != nil {
		s.logger.WarnContext(ctx, "corporate action rejected after claim",
			"reference", fact.Reference,
			"kind", string(fact.Kind),
			"error", cause,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// recordFailed handles a fact that could not be stored after its marker was
// claimed. The marker stays; the fact is reported as a divergence.
func (s *Service) recordFailed(ctx context.Context, fact *models.Fact, cause error) error {
	s.diverge(ctx, fact, cause)
	return dErrors.Wrap(cause, dErrors.CodeInternal, "failed to record corporate action")
}

// dispatch runs the kind's handler. The fact is already durable, so a
// handler failure is a divergence rather than an error.
func (s *Service) dispatch(ctx context.Context, fact *models.Fact) {
	h, ok := s.handlers[fact.Kind]
	if !ok {
		return
	}
	if err := h.Handle(ctx, fact); err != nil {
		s.diverge(ctx, fact, err)
	}
}

func (s *Service) diverge(ctx context.Context, fact *models.Fact, cause error) {
	if err := s.markers.SetStatus(ctx, reconmodels.DomainCorporateAction, fact.Reference, reconmodels.StatusDiverged, cause.Error(), requestcontext.Now(ctx)); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to mark corporate action diverged", "reference", fact.Reference, "error", err)
	}
	if s.metrics != nil {
		s.metrics.Divergences.WithLabelValues(string(reconmodels.DomainCorporateAction)).Inc()
	}
	s.events.Emit(ctx, events.KindReconciliationDivergence, fact.Reference, map[string]any{
		"domain":      string(reconmodels.DomainCorporateAction),
		"security_id": fact.SecurityID.String(),
		"kind":        string(fact.Kind),
		"error":       cause.Error(),
	})
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "corporate action diverged after marker commit",
			"reference", fact.Reference,
			"kind", string(fact.Kind),
			"error", cause,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (s *Service) Get(ctx context.Context, reference string) (*models.Fact, error) {
	f, err := s.store.Get(ctx, reference)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "corporate action %s not found", reference)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load corporate action")
	}
	return f, nil
}

func (s *Service) ListBySecurity(ctx context.Context, securityID id.SecurityID) ([]*models.Fact, error) {
	list, err := s.store.ListBySecurity(ctx, securityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list corporate actions")
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
