package service

import (
	"context"
	"fmt"

	"issuance/internal/correlator"
	"issuance/internal/derivatives/models"
	id "issuance/pkg/domain"
)

// Executor files correlator requests of the derivative kinds with repo. Its
// answer fulfils the request and so runs the callback registered at issue.
func (s *Service) Executor(repo Repository) correlator.Executor {
	return correlator.ExecutorFunc(func(ctx context.Context, req correlator.Request) (correlator.Response, error) {
		uti := id.UTI(req.Subject)
		var (
			ack models.Ack
			err error
		)
		switch req.Kind {
		case correlator.KindDerivativeReport, correlator.KindDerivativeCorrection:
			r, loadErr := s.store.Get(ctx, uti)
			if loadErr != nil {
				return correlator.Response{}, fmt.Errorf("load report %s: %w", uti, loadErr)
			}
			if req.Kind == correlator.KindDerivativeReport {
				ack, err = repo.Submit(ctx, r)
			} else {
				ack, err = repo.Correct(ctx, r.PriorUTI, r)
			}
		case correlator.KindDerivativeError:
			reason, _ := req.Params["reason"].(string)
			ack, err = repo.ReportError(ctx, uti, reason)
		default:
			return correlator.Response{}, fmt.Errorf("unsupported request kind %q", req.Kind)
		}
		if err != nil {
			return correlator.Response{}, err
		}
		payload := map[string]any{"accepted": ack.Accepted}
		if ack.Reference != "" {
			payload["reference"] = ack.Reference
		}
		if ack.Reason != "" {
			payload["reason"] = ack.Reason
		}
		return correlator.Response{Kind: req.Kind, Payload: payload}, nil
	})
}

// RegisterExecutors routes every derivative request kind to repo.
func (s *Service) RegisterExecutors(c interface {
	RegisterExecutor(kind correlator.Kind, ex correlator.Executor)
}, repo Repository) {
	ex := s.Executor(repo)
	for _, kind := range []correlator.Kind{
		correlator.KindDerivativeReport,
		correlator.KindDerivativeCorrection,
		correlator.KindDerivativeError,
	} {
		c.RegisterExecutor(kind, ex)
	}
}
