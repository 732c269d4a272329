// Package service implements derivative trade reporting: submissions,
// non-destructive corrections and error reports, each filed with the trade
// repository through the request correlator.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"issuance/internal/correlator"
	"issuance/internal/derivatives/models"
	"issuance/internal/rbac"
	registrymodels "issuance/internal/registry/models"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/events"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/requestcontext"
)

var tracer = otel.Tracer("issuance/derivatives")

// maxChain bounds Chain walks so a corrupted link cannot loop forever.
const maxChain = 256

type Store interface {
	Create(ctx context.Context, r *models.Report) error
	Get(ctx context.Context, uti id.UTI) (*models.Report, error)
	Update(ctx context.Context, uti id.UTI, now time.Time, fn func(*models.Report) error) (*models.Report, error)
	Supersede(ctx context.Context, prior id.UTI, next *models.Report) error
}

type Authorizer interface {
	Authorize(ctx context.Context, op rbac.Operation) error
}

type Securities interface {
	Get(ctx context.Context, securityID id.SecurityID) (*registrymodels.Security, error)
}

type RequestIssuer interface {
	Issue(ctx context.Context, spec correlator.Spec, callback correlator.Callback) (id.RequestID, error)
}

// Repository is the external trade repository.
type Repository interface {
	Submit(ctx context.Context, r *models.Report) (models.Ack, error)
	Correct(ctx context.Context, prior id.UTI, next *models.Report) (models.Ack, error)
	ReportError(ctx context.Context, uti id.UTI, reason string) (models.Ack, error)
}

// ReportCommand is a report as submitted. Identifiers are already parsed.
type ReportCommand struct {
	UTI            id.UTI
	SecurityID     id.SecurityID
	Counterparties [2]models.Counterparty
	Collateral     models.Collateral
	Valuation      models.Valuation
}

type Service struct {
	store      Store
	securities Securities
	gate       Authorizer
	requests   RequestIssuer
	events     events.Emitter
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

func New(store Store, securities Securities, gate Authorizer, requests RequestIssuer, opts ...Option) *Service {
	s := &Service{
		store:      store,
		securities: securities,
		gate:       gate,
		requests:   requests,
		events:     events.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores a new report as pending and files it with the repository.
//
// Errors: NotAuthorized; InvalidInput for a missing UTI or counterparty LEI;
// InvalidSecurity when the linked security is not registered; Conflict when
// the UTI was already reported.
func (s *Service) Submit(ctx context.Context, cmd ReportCommand) (*models.Report, error) {
	ctx, span := tracer.Start(ctx, "derivatives.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("uti", cmd.UTI.String()))

	if err := s.gate.Authorize(ctx, rbac.OpSubmitDerivative); err != nil {
		return nil, err
	}
	r, err := s.newReport(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, r); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "UTI %s already reported", r.UTI)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store derivative report")
	}

	s.events.Emit(ctx, events.KindDerivativeSubmitted, r.UTI.String(), map[string]any{
		"security_id":    r.SecurityID.String(),
		"counterparty_1": r.Counterparties[0].LEI.String(),
		"counterparty_2": r.Counterparties[1].LEI.String(),
	})
	s.logInfo(ctx, "derivative report submitted", "uti", r.UTI.String(), "security_id", r.SecurityID.String())

	s.file(ctx, correlator.Spec{
		Kind:    correlator.KindDerivativeReport,
		Subject: r.UTI.String(),
		Params:  map[string]any{"uti": r.UTI.String()},
	}, s.applyAck)
	return r, nil
}

// Correct supersedes prior with a new report. The prior report is kept and
// linked forward; the new one links back.
//
// Errors: NotAuthorized; NotFound for an unknown prior UTI; Conflict when the
// prior report was already corrected or the new UTI is taken; the input
// errors of Submit.
func (s *Service) Correct(ctx context.Context, prior id.UTI, cmd ReportCommand) (*models.Report, error) {
	ctx, span := tracer.Start(ctx, "derivatives.Correct")
	defer span.End()
	span.SetAttributes(attribute.String("prior_uti", prior.String()), attribute.String("uti", cmd.UTI.String()))

	if err := s.gate.Authorize(ctx, rbac.OpCorrectDerivative); err != nil {
		return nil, err
	}
	r, err := s.newReport(ctx, cmd)
	if err != nil {
		return nil, err
	}
	r.PriorUTI = prior
	if err := r.Validate(); err != nil {
		return nil, err
	}

	switch err := s.store.Supersede(ctx, prior, r); {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Newf(dErrors.CodeNotFound, "derivative report %s not found", prior)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return nil, dErrors.Newf(dErrors.CodeConflict, "derivative report %s was already corrected", prior)
	case errors.Is(err, sentinel.ErrConflict):
		return nil, dErrors.Newf(dErrors.CodeConflict, "UTI %s already reported", r.UTI)
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store correction")
	}

	s.events.Emit(ctx, events.KindDerivativeCorrected, r.UTI.String(), map[string]any{
		"prior_uti":   prior.String(),
		"security_id": r.SecurityID.String(),
	})
	s.logInfo(ctx, "derivative report corrected", "uti", r.UTI.String(), "prior_uti", prior.String())

	s.file(ctx, correlator.Spec{
		Kind:    correlator.KindDerivativeCorrection,
		Subject: r.UTI.String(),
		Params:  map[string]any{"uti": r.UTI.String(), "prior_uti": prior.String()},
	}, s.applyAck)
	return r, nil
}

// ReportError appends reason to the report's error log and files it.
func (s *Service) ReportError(ctx context.Context, uti id.UTI, reason string) (*models.Report, error) {
	ctx, span := tracer.Start(ctx, "derivatives.ReportError")
	defer span.End()
	span.SetAttributes(attribute.String("uti", uti.String()))

	if err := s.gate.Authorize(ctx, rbac.OpReportDerivativeError); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "error reason is required")
	}
	now := requestcontext.Now(ctx)
	r, err := s.store.Update(ctx, uti, now, func(r *models.Report) error {
		r.Errors = append(r.Errors, models.ErrorEntry{Reason: reason, ReportedAt: now})
		return nil
	})
	if err != nil {
		return nil, s.translate(err, uti)
	}

	s.events.Emit(ctx, events.KindDerivativeErrorReported, uti.String(), map[string]any{
		"reason": reason,
		"index":  len(r.Errors) - 1,
	})
	s.logInfo(ctx, "derivative error reported", "uti", uti.String())

	index := len(r.Errors) - 1
	s.file(ctx, correlator.Spec{
		Kind:    correlator.KindDerivativeError,
		Subject: uti.String(),
		Params:  map[string]any{"uti": uti.String(), "reason": reason, "index": index},
	}, func(ctx context.Context, req correlator.Request, resp correlator.Response) error {
		return s.acknowledgeError(ctx, uti, index, resp)
	})
	return r, nil
}

func (s *Service) Get(ctx context.Context, uti id.UTI) (*models.Report, error) {
	r, err := s.store.Get(ctx, uti)
	if err != nil {
		return nil, s.translate(err, uti)
	}
	return r, nil
}

// Chain returns the correction history ending at uti, oldest first.
func (s *Service) Chain(ctx context.Context, uti id.UTI) ([]*models.Report, error) {
	var chain []*models.Report
	seen := make(map[id.UTI]bool)
	for next := uti; next != ""; {
		if seen[next] || len(chain) >= maxChain {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "correction chain of %s does not terminate", uti)
		}
		seen[next] = true
		r, err := s.Get(ctx, next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, r)
		next = r.PriorUTI
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (s *Service) newReport(ctx context.Context, cmd ReportCommand) (*models.Report, error) {
	now := requestcontext.Now(ctx)
	r := &models.Report{
		UTI:            cmd.UTI,
		SecurityID:     cmd.SecurityID,
		Counterparties: cmd.Counterparties,
		Collateral:     cmd.Collateral,
		Valuation:      cmd.Valuation,
		Status:         models.StatusPending,
		SubmittedAt:    now,
		UpdatedAt:      now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.securities.Get(ctx, r.SecurityID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.Newf(dErrors.CodeInvalidSecurity, "security %s is not registered", r.SecurityID)
		}
		return nil, err
	}
	return r, nil
}

// file issues the repository request. The report is already stored, so a
// failure to issue leaves it pending and is only logged.
func (s *Service) file(ctx context.Context, spec correlator.Spec, callback correlator.Callback) {
	if s.requests == nil {
		return
	}
	if _, err := s.requests.Issue(ctx, spec, callback); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to file with trade repository",
			"uti", spec.Subject,
			"kind", string(spec.Kind),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// applyAck expects {"accepted": bool, "reference"?: string, "reason"?: string}.
func (s *Service) applyAck(ctx context.Context, req correlator.Request, resp correlator.Response) error {
	accepted, err := resp.Bool("accepted")
	if err != nil {
		return err
	}
	uti := id.UTI(req.Subject)
	status := models.StatusRejected
	if accepted {
		status = models.StatusAccepted
	}
	r, err := s.store.Update(ctx, uti, requestcontext.Now(ctx), func(r *models.Report) error {
		r.Status = status
		r.StatusReason = resp.OptionalString("reason")
		if ref := resp.OptionalString("reference"); ref != "" {
			r.RepositoryRef = ref
		}
		return nil
	})
	if err != nil {
		return s.translate(err, uti)
	}
	s.events.Emit(ctx, events.KindDerivativeStatusChanged, uti.String(), map[string]any{
		"status":         string(r.Status),
		"reason":         r.StatusReason,
		"repository_ref": r.RepositoryRef,
		"request_id":     req.ID.String(),
	})
	s.logInfo(ctx, "derivative report status changed", "uti", uti.String(), "status", string(r.Status))
	return nil
}

func (s *Service) acknowledgeError(ctx context.Context, uti id.UTI, index int, resp correlator.Response) error {
	accepted, err := resp.Bool("accepted")
	if err != nil {
		return err
	}
	if !accepted {
		return nil
	}
	_, err = s.store.Update(ctx, uti, requestcontext.Now(ctx), func(r *models.Report) error {
		if index < 0 || index >= len(r.Errors) {
			return dErrors.Newf(dErrors.CodeInvariantViolation, "error %d of %s does not exist", index, uti)
		}
		r.Errors[index].Acknowledged = true
		return nil
	})
	if err != nil {
		return s.translate(err, uti)
	}
	return nil
}

func (s *Service) translate(err error, uti id.UTI) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "derivative report %s not found", uti)
	}
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update derivative report")
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
