// Package service implements the settlement reconciliation engine. A trade
// reference is claimed before the downstream transfer runs, so a redelivered
// settlement is a no-op even when the transfer itself is not idempotent.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"issuance/internal/platform/metrics"
	"issuance/internal/rbac"
	"issuance/internal/reconciliation/models"
	registrymodels "issuance/internal/registry/models"
	"issuance/internal/settlement/csd"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/events"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/requestcontext"
)

var tracer = otel.Tracer("issuance/settlement")

const defaultMaxConcurrent = 5

// Markers is the settlement idempotency store.
type Markers interface {
	Claim(ctx context.Context, rec *models.Record) error
	Release(ctx context.Context, domain models.Domain, reference string) error
	Get(ctx context.Context, domain models.Domain, reference string) (*models.Record, error)
	SetStatus(ctx context.Context, domain models.Domain, reference string, status models.Status, detail string, at time.Time) error
	List(ctx context.Context, domain models.Domain, filter models.Filter) ([]*models.Record, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, op rbac.Operation) error
}

// Securities resolves registered securities and their depository ids.
type Securities interface {
	Get(ctx context.Context, securityID id.SecurityID) (*registrymodels.Security, error)
	CSDMapping(ctx context.Context, securityID id.SecurityID, system registrymodels.CSDSystem) (registrymodels.CSDMapping, error)
}

// UnitIssuer moves units on the downstream ledger.
type UnitIssuer interface {
	ForceTransfer(ctx context.Context, from, to id.InvestorID, amount decimal.Decimal, memo string) error
}

// Verifier confirms records with a depository.
type Verifier interface {
	Verify(ctx context.Context, system registrymodels.CSDSystem, c csd.Check) (csd.Result, error)
}

// SyncCommand describes one settlement confirmation. System is optional; a
// settlement without one is never verified against a depository.
type SyncCommand struct {
	TradeRef    string
	SecurityID  id.SecurityID
	From        id.InvestorID
	To          id.InvestorID
	Amount      decimal.Decimal
	ExternalRef string
	System      registrymodels.CSDSystem
}

// Outcome is the per-reference result of a batch reconciliation.
type Outcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Report summarises settlements processed in a period.
type Report struct {
	From          time.Time
	To            time.Time
	Total         int
	Reconciled    int
	Pending       int
	Discrepancies int
	Diverged      int
	Discrepant    []*models.Record
	GeneratedAt   time.Time
}

type Service struct {
	markers          Markers
	securities       Securities
	issuer           UnitIssuer
	verifier         Verifier
	gate             Authorizer
	rollbackOnFailed bool
	maxConcurrent    int
	events           events.Emitter
	metrics          *metrics.Metrics
	logger           *slog.Logger
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

// WithRollbackOnFailure releases the marker when the downstream transfer
// fails and returns the error, so the settlement can be redelivered. The
// default keeps the marker and emits a divergence event.
func WithRollbackOnFailure(rollback bool) Option {
	return func(s *Service) {
		s.rollbackOnFailed = rollback
	}
}

// WithVerifier enables depository reconciliation.
func WithVerifier(v Verifier) Option {
	return func(s *Service) {
		s.verifier = v
	}
}

// WithMaxConcurrent bounds concurrent depository calls for scheduled runs.
func WithMaxConcurrent(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

func New(markers Markers, securities Securities, issuer UnitIssuer, gate Authorizer, opts ...Option) *Service {
	s := &Service{
		markers:       markers,
		securities:    securities,
		issuer:        issuer,
		gate:          gate,
		maxConcurrent: defaultMaxConcurrent,
		events:        events.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncSettlement records a settlement and then runs the downstream transfer.
//
// Errors, in check order: NotAuthorized; Validation for an empty trade
// reference; ZeroAddress; ZeroAmount; InvalidSecurity; AlreadySettled.
// A failed transfer is reported as a divergence and the record is returned
// with status diverged, unless rollback on failure is enabled.
func (s *Service) SyncSettlement(ctx context.Context, cmd SyncCommand) (*models.Record, error) {
	ctx, span := tracer.Start(ctx, "settlement.SyncSettlement")
	defer span.End()
	span.SetAttributes(
		attribute.String("trade_ref", cmd.TradeRef),
		attribute.String("security_id", cmd.SecurityID.String()),
	)

	if err := s.gate.Authorize(ctx, rbac.OpSyncSettlement); err != nil {
		return nil, err
	}
	if cmd.TradeRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "trade reference is required")
	}
	if cmd.From.IsNil() || cmd.To.IsNil() {
		return nil, dErrors.New(dErrors.CodeZeroAddress, "settlement addresses cannot be zero")
	}
	if !cmd.Amount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeZeroAmount, "settlement amount must be positive")
	}
	if err := s.requireSecurity(ctx, cmd.SecurityID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	rec := &models.Record{
		Domain:      models.DomainSettlement,
		Reference:   cmd.TradeRef,
		InternalID:  uuid.NewString(),
		SecurityID:  cmd.SecurityID,
		From:        cmd.From,
		To:          cmd.To,
		Amount:      cmd.Amount,
		ExternalRef: cmd.ExternalRef,
		System:      string(cmd.System),
		Status:      models.StatusProcessed,
		ProcessedAt: now,
	}
	if err := s.markers.Claim(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			if s.metrics != nil {
				s.metrics.SettlementDuplicates.Inc()
			}
			return nil, dErrors.Newf(dErrors.CodeAlreadySettled, "trade %s is already settled", cmd.TradeRef)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record settlement")
	}

	if err := s.issuer.ForceTransfer(ctx, cmd.From, cmd.To, cmd.Amount, cmd.TradeRef); err != nil {
		return s.transferFailed(ctx, rec, err)
	}

	if s.metrics != nil {
		s.metrics.SettlementsSynced.Inc()
	}
	s.events.Emit(ctx, events.KindSettlementSynced, cmd.TradeRef, map[string]any{
		"settlement_id":     rec.InternalID,
		"security_id":       cmd.SecurityID.String(),
		"from":              cmd.From.String(),
		"to":                cmd.To.String(),
		"amount":            cmd.Amount.String(),
		"external_ref":      cmd.ExternalRef,
		"settlement_system": rec.System,
	})
	s.logInfo(ctx, "settlement synced", "trade_ref", cmd.TradeRef, "security_id", cmd.SecurityID.String(),
		"amount", cmd.Amount.String(), "external_ref", cmd.ExternalRef)
	return rec, nil
}

func (s *Service) transferFailed(ctx context.Context, rec *models.Record, cause error) (*models.Record, error) {
	if s.rollbackOnFailed {
		if err := s.markers.Release(ctx, rec.Domain, rec.Reference); err != nil {
			return nil, dErrors.Wrap(errors.Join(cause, err), dErrors.CodeInternal, "transfer failed and marker release failed")
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "transfer failed, settlement marker released",
				"trade_ref", rec.Reference, "error", cause, "request_id", requestcontext.RequestID(ctx))
		}
		return nil, dErrors.Wrap(cause, dErrors.CodeInternal, "downstream transfer failed")
	}

	now := requestcontext.Now(ctx)
	if err := s.markers.SetStatus(ctx, rec.Domain, rec.Reference, models.StatusDiverged, cause.Error(), now); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to mark settlement diverged", "trade_ref", rec.Reference, "error", err)
	}
	rec.Status = models.StatusDiverged
	rec.Detail = cause.Error()
	rec.ReconciledAt = &now

	if s.metrics != nil {
		s.metrics.Divergences.WithLabelValues(string(models.DomainSettlement)).Inc()
	}
	s.events.Emit(ctx, events.KindReconciliationDivergence, rec.Reference, map[string]any{
		"domain":        string(models.DomainSettlement),
		"settlement_id": rec.InternalID,
		"security_id":   rec.SecurityID.String(),
		"amount":        rec.Amount.String(),
		"error":         cause.Error(),
	})
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "transfer failed after settlement was marked processed",
			"trade_ref", rec.Reference,
			"security_id", rec.SecurityID.String(),
			"error", cause,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return rec, nil
}

// Get returns the settlement recorded under tradeRef.
func (s *Service) Get(ctx context.Context, tradeRef string) (*models.Record, error) {
	rec, err := s.markers.Get(ctx, models.DomainSettlement, tradeRef)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "trade %s not found", tradeRef)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settlement")
	}
	return rec, nil
}

// ReconcileBatch verifies records with their depositories, at most
// maxConcurrent at a time. Results are keyed by trade reference, which is
// unique where external references may repeat across trades.
func (s *Service) ReconcileBatch(ctx context.Context, records []*models.Record, maxConcurrent int) (map[string]Outcome, error) {
	ctx, span := tracer.Start(ctx, "settlement.ReconcileBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)))

	if err := s.gate.Authorize(ctx, rbac.OpReconcile); err != nil {
		return nil, err
	}
	return s.reconcile(ctx, records, maxConcurrent), nil
}

// Reconcile loads the named settlements and verifies them like
// ReconcileBatch. An unknown trade reference fails the whole call with
// NotFound before any depository is contacted.
func (s *Service) Reconcile(ctx context.Context, tradeRefs []string, maxConcurrent int) (map[string]Outcome, error) {
	if len(tradeRefs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one trade reference is required")
	}
	records := make([]*models.Record, 0, len(tradeRefs))
	for _, ref := range tradeRefs {
		rec, err := s.Get(ctx, ref)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return s.ReconcileBatch(ctx, records, maxConcurrent)
}

// ReconcilePending verifies every settlement still awaiting confirmation.
// It is the scheduled job body and runs without a principal.
func (s *Service) ReconcilePending(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "settlement.ReconcilePending")
	defer span.End()

	pending, err := s.markers.List(ctx, models.DomainSettlement, models.Filter{Status: models.StatusProcessed})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending settlements")
	}
	var eligible []*models.Record
	for _, rec := range pending {
		if rec.System != "" {
			eligible = append(eligible, rec)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	results := s.reconcile(ctx, eligible, s.maxConcurrent)
	failed := 0
	for _, o := range results {
		if !o.Success {
			failed++
		}
	}
	s.logInfo(ctx, "pending settlements reconciled", "checked", len(eligible), "unreconciled", failed)
	return nil
}

func (s *Service) reconcile(ctx context.Context, records []*models.Record, maxConcurrent int) map[string]Outcome {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	var (
		mu      sync.Mutex
		results = make(map[string]Outcome, len(records))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, rec := range records {
		g.Go(func() error {
			o := s.reconcileOne(gctx, rec)
			mu.Lock()
			results[rec.Reference] = o
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// reconcileOne verifies rec and stores the verdict. Transport failures leave
// the record pending so a later run retries it.
func (s *Service) reconcileOne(ctx context.Context, rec *models.Record) Outcome {
	if s.verifier == nil {
		return Outcome{Error: "no depository verifier configured"}
	}
	system := registrymodels.CSDSystem(rec.System)
	if system == "" {
		return s.settle(ctx, rec, false, "settlement system not specified")
	}

	csdSecurityID := rec.SecurityID.String()
	mapping, err := s.securities.CSDMapping(ctx, rec.SecurityID, system)
	switch {
	case err == nil:
		csdSecurityID = mapping.CSDSecurityID
	case !dErrors.HasCode(err, dErrors.CodeNotFound):
		return Outcome{Error: err.Error()}
	}

	res, err := s.verifier.Verify(ctx, system, csd.Check{
		ExternalRef:   rec.ExternalRef,
		SecurityID:    rec.SecurityID,
		CSDSecurityID: csdSecurityID,
		Investor:      rec.To,
		Units:         rec.Amount,
		SettledAt:     rec.ProcessedAt,
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.ReconcileOutcomes.WithLabelValues(rec.System, "error").Inc()
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "csd verification failed", "trade_ref", rec.Reference,
				"csd_system", rec.System, "error", err)
		}
		return Outcome{Error: err.Error()}
	}
	return s.settle(ctx, rec, res.Matched, res.Reason)
}

func (s *Service) settle(ctx context.Context, rec *models.Record, matched bool, reason string) Outcome {
	status := models.StatusReconciled
	if !matched {
		status = models.StatusDiscrepancy
	}
	if err := s.markers.SetStatus(ctx, rec.Domain, rec.Reference, status, reason, requestcontext.Now(ctx)); err != nil {
		return Outcome{Error: err.Error()}
	}
	if s.metrics != nil {
		s.metrics.ReconcileOutcomes.WithLabelValues(rec.System, string(status)).Inc()
	}
	s.events.Emit(ctx, events.KindSettlementReconciled, rec.Reference, map[string]any{
		"external_ref":      rec.ExternalRef,
		"settlement_system": rec.System,
		"status":            string(status),
		"detail":            reason,
	})
	if !matched {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "settlement discrepancy", "trade_ref", rec.Reference,
				"external_ref", rec.ExternalRef, "reason", reason)
		}
		return Outcome{Error: reason}
	}
	s.logInfo(ctx, "settlement reconciled", "trade_ref", rec.Reference, "external_ref", rec.ExternalRef)
	return Outcome{Success: true}
}

// Report summarises settlements processed in [from, to).
func (s *Service) Report(ctx context.Context, from, to time.Time) (*Report, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, dErrors.New(dErrors.CodeInvalidDate, "report start must precede its end")
	}
	records, err := s.markers.List(ctx, models.DomainSettlement, models.Filter{From: from, To: to})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list settlements")
	}

	r := &Report{From: from, To: to, Total: len(records), GeneratedAt: requestcontext.Now(ctx)}
	for _, rec := range records {
		switch rec.Status {
		case models.StatusReconciled:
			r.Reconciled++
		case models.StatusProcessed:
			r.Pending++
		case models.StatusDiscrepancy:
			r.Discrepancies++
			r.Discrepant = append(r.Discrepant, rec)
		case models.StatusDiverged:
			r.Diverged++
		}
	}
	return r, nil
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
	args = append(args, "request_id", requestcontext.RequestID(ctx))
	if p := requestcontext.Principal(ctx); !p.IsNil() {
		args = append(args, "principal", p.String())
	}
	s.logger.InfoContext(ctx, msg, args...)
}
