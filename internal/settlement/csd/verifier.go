// Package csd verifies settlement records against central securities
// depositories.
package csd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"issuance/internal/platform/config"
	registrymodels "issuance/internal/registry/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/circuit"
)

// Check is what a depository is asked to confirm.
type Check struct {
	ExternalRef   string
	SecurityID    id.SecurityID
	CSDSecurityID string
	Investor      id.InvestorID
	Units         decimal.Decimal
	SettledAt     time.Time
}

// Result is the depository's answer. A mismatch is a Result, not an error:
// errors are reserved for failing to get an answer at all.
type Result struct {
	Matched bool
	Reason  string
}

func matched() Result { return Result{Matched: true} }

func mismatch(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

type Verifier interface {
	Verify(ctx context.Context, c Check) (Result, error)
}

// Registry routes checks to the verifier of each depository. Every verifier
// sits behind its own circuit breaker.
type Registry struct {
	verifiers map[registrymodels.CSDSystem]Verifier
	breakers  map[registrymodels.CSDSystem]*circuit.Breaker
	logger    *slog.Logger
}

type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
	breaker    []circuit.Option
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithBreakerOptions(opts ...circuit.Option) Option {
	return func(o *options) { o.breaker = opts }
}

// NewRegistry builds verifiers for every supported depository. Systems absent
// from creds answer with a "credentials not configured" mismatch.
func NewRegistry(creds map[string]config.CSDCredentials, opts ...Option) *Registry {
	o := options{httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}
	lookup := func(system registrymodels.CSDSystem) *config.CSDCredentials {
		c, ok := creds[string(system)]
		if !ok {
			return nil
		}
		return &c
	}

	r := &Registry{
		verifiers: map[registrymodels.CSDSystem]Verifier{
			registrymodels.CSDClearstream: &Clearstream{creds: lookup(registrymodels.CSDClearstream), client: o.httpClient},
			registrymodels.CSDEuroclear:   &Euroclear{creds: lookup(registrymodels.CSDEuroclear), client: o.httpClient},
			registrymodels.CSDDTCC:        &DTCC{creds: lookup(registrymodels.CSDDTCC), logger: o.logger},
			registrymodels.CSDDPOGlobal:   &DPOGlobal{creds: lookup(registrymodels.CSDDPOGlobal), client: o.httpClient},
		},
		breakers: make(map[registrymodels.CSDSystem]*circuit.Breaker),
		logger:   o.logger,
	}
	for system := range r.verifiers {
		r.breakers[system] = circuit.New("csd_"+string(system), o.breaker...)
	}
	return r
}

// Register replaces the verifier for system. Used for depositories added at
// runtime and by tests.
func (r *Registry) Register(system registrymodels.CSDSystem, v Verifier) {
	r.verifiers[system] = v
	if _, ok := r.breakers[system]; !ok {
		r.breakers[system] = circuit.New("csd_" + string(system))
	}
}

// Verify routes c to system's verifier.
func (r *Registry) Verify(ctx context.Context, system registrymodels.CSDSystem, c Check) (Result, error) {
	v, ok := r.verifiers[system]
	if !ok {
		return mismatch("Unsupported CSD system: %s", system), nil
	}
	breaker := r.breakers[system]
	if !breaker.Allow() {
		return Result{}, fmt.Errorf("%s unavailable: circuit open", system)
	}

	res, err := v.Verify(ctx, c)
	if err != nil {
		if _, change := breaker.RecordFailure(); change.Opened && r.logger != nil {
			r.logger.WarnContext(ctx, "csd circuit opened", "csd_system", string(system), "error", err)
		}
		return Result{}, err
	}
	if _, change := breaker.RecordSuccess(); change.Closed && r.logger != nil {
		r.logger.InfoContext(ctx, "csd circuit closed", "csd_system", string(system))
	}
	return res, nil
}
