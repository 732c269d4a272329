package correlator

import (
	"context"
	"time"

	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
)

// Kind is the expected shape of a request's response.
type Kind string

const (
	KindInvestorValidation   Kind = "investor_validation"
	KindNAV                  Kind = "nav"
	KindDerivativeReport     Kind = "derivative_report"
	KindDerivativeCorrection Kind = "derivative_correction"
	KindDerivativeError      Kind = "derivative_error"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindInvestorValidation, KindNAV, KindDerivativeReport, KindDerivativeCorrection, KindDerivativeError:
		return true
	}
	return false
}

// Spec describes an outbound request.
type Spec struct {
	Kind    Kind
	Subject string         // primary key of the thing asked about
	Params  map[string]any // forwarded to the collaborator
	TTL     time.Duration  // zero uses the correlator default
}

// Request is a pending external request as observed by collaborators.
type Request struct {
	ID        id.RequestID   `json:"id"`
	Kind      Kind           `json:"kind"`
	Subject   string         `json:"subject"`
	Params    map[string]any `json:"params,omitempty"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Response is the collaborator's answer. Kind must match the request.
type Response struct {
	Kind    Kind           `json:"kind"`
	Payload map[string]any `json:"payload"`
}

// Callback applies a response. It runs exactly once per request, outside
// the correlator lock.
type Callback func(ctx context.Context, req Request, resp Response) error

// Outcome is what Wait returns.
type Outcome struct {
	Request   Request
	Response  *Response
	Err       error
	Cancelled bool
	Expired   bool
}

// Executor performs the external call for one kind and returns its answer.
type Executor interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Payload accessors used by callbacks.

func (r Response) Bool(key string) (bool, error) {
	v, ok := r.Payload[key].(bool)
	if !ok {
		return false, dErrors.Newf(dErrors.CodeValidation, "response field %q must be a boolean", key)
	}
	return v, nil
}

func (r Response) String(key string) (string, error) {
	v, ok := r.Payload[key].(string)
	if !ok || v == "" {
		return "", dErrors.Newf(dErrors.CodeValidation, "response field %q must be a non-empty string", key)
	}
	return v, nil
}

// OptionalString returns "" when key is absent.
func (r Response) OptionalString(key string) string {
	v, _ := r.Payload[key].(string)
	return v
}
