// Package correlator matches asynchronous external responses to the requests
// that asked for them. Each request is fulfilled or cancelled at most once.
package correlator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"issuance/internal/platform/metrics"
	"issuance/internal/rbac"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/platform/events"
	"issuance/pkg/requestcontext"
)

var tracer = otel.Tracer("issuance/correlator")

// Authorizer is the role gate.
type Authorizer interface {
	Authorize(ctx context.Context, op rbac.Operation) error
}

type entry struct {
	req      Request
	callback Callback
	done     chan struct{}
}

// Correlator tracks pending requests. Pending state is process-local: the
// callbacks it holds are closures over the issuing service.
type Correlator struct {
	mu        sync.Mutex
	pending   map[id.RequestID]*entry
	outcomes  map[id.RequestID]Outcome
	ttl       time.Duration
	gate      Authorizer
	events    events.Emitter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	executors map[Kind]Executor
	workers   int
	jobs      chan Request
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stop      chan struct{}
}

type Option func(*Correlator)

func WithTTL(ttl time.Duration) Option {
	return func(c *Correlator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Correlator) {
		c.logger = logger
	}
}

func WithEvents(e events.Emitter) Option {
	return func(c *Correlator) {
		c.events = e
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Correlator) {
		c.metrics = m
	}
}

// WithWorkers sets the executor pool size.
func WithWorkers(n int) Option {
	return func(c *Correlator) {
		if n > 0 {
			c.workers = n
		}
	}
}

func New(gate Authorizer, opts ...Option) *Correlator {
	c := &Correlator{
		pending:   make(map[id.RequestID]*entry),
		outcomes:  make(map[id.RequestID]Outcome),
		ttl:       5 * time.Minute,
		gate:      gate,
		events:    events.Discard,
		executors: make(map[Kind]Executor),
		workers:   4,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.jobs = make(chan Request, c.workers*64)
	for range c.workers {
		c.wg.Add(1)
		go c.work()
	}
	return c
}

// RegisterExecutor makes the correlator call ex for every request of kind,
// instead of waiting for an external fulfill. Register before issuing.
func (c *Correlator) RegisterExecutor(kind Kind, ex Executor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executors[kind] = ex
}

// Close stops the executor pool. Pending requests stay pending.
func (c *Correlator) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

// Issue stores callback under a fresh request id and announces the request.
func (c *Correlator) Issue(ctx context.Context, spec Spec, callback Callback) (id.RequestID, error) {
	if !spec.Kind.IsValid() {
		return id.RequestID{}, dErrors.Newf(dErrors.CodeValidation, "unknown request kind %q", spec.Kind)
	}
	if callback == nil {
		return id.RequestID{}, dErrors.New(dErrors.CodeValidation, "callback is required")
	}
	ttl := spec.TTL
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := requestcontext.Now(ctx)
	req := Request{
		ID:        id.NewRequestID(),
		Kind:      spec.Kind,
		Subject:   spec.Subject,
		Params:    spec.Params,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	c.mu.Lock()
	c.pending[req.ID] = &entry{req: req, callback: callback, done: make(chan struct{})}
	ex := c.executors[spec.Kind]
	pending := len(c.pending)
	c.mu.Unlock()

	c.setPending(pending)
	c.events.Emit(ctx, events.KindExternalRequestIssued, req.ID.String(), map[string]any{
		"kind":       string(req.Kind),
		"subject":    req.Subject,
		"params":     req.Params,
		"expires_at": req.ExpiresAt,
	})
	if c.logger != nil {
		c.logger.InfoContext(ctx, "external request issued",
			"request_id", requestcontext.RequestID(ctx),
			"external_request_id", req.ID.String(),
			"kind", string(req.Kind),
			"subject", req.Subject,
		)
	}

	if ex != nil {
		select {
		case c.jobs <- req:
		default:
			// Pool saturated: leave the request for an external fulfill or expiry.
			if c.logger != nil {
				c.logger.WarnContext(ctx, "executor queue full", "external_request_id", req.ID.String())
			}
		}
	}
	return req.ID, nil
}

// Fulfill is the gated entry point for collaborators delivering a response.
func (c *Correlator) Fulfill(ctx context.Context, requestID id.RequestID, resp Response) error {
	if err := c.gate.Authorize(ctx, rbac.OpFulfillRequest); err != nil {
		return err
	}
	return c.fulfill(ctx, requestID, resp)
}

// Cancel is the gated entry point for abandoning a request.
func (c *Correlator) Cancel(ctx context.Context, requestID id.RequestID) error {
	if err := c.gate.Authorize(ctx, rbac.OpCancelRequest); err != nil {
		return err
	}
	return c.cancel(ctx, requestID, "cancelled")
}

func (c *Correlator) fulfill(ctx context.Context, requestID id.RequestID, resp Response) error {
	ctx, span := tracer.Start(ctx, "correlator.Fulfill")
	defer span.End()
	span.SetAttributes(attribute.String("external_request_id", requestID.String()))

	now := requestcontext.Now(ctx)

	c.mu.Lock()
	e, ok := c.pending[requestID]
	if !ok {
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeUnknownRequest, "request was never issued or is already resolved")
	}
	if now.After(e.req.ExpiresAt) {
		c.resolveLocked(e, Outcome{Request: e.req, Expired: true, Cancelled: true})
		pending := len(c.pending)
		c.mu.Unlock()
		c.setPending(pending)
		c.events.Emit(ctx, events.KindExternalRequestCancelled, requestID.String(), map[string]any{"reason": "expired"})
		return dErrors.New(dErrors.CodeUnknownRequest, "request expired")
	}
	if resp.Kind == "" {
		resp.Kind = e.req.Kind
	}
	if resp.Kind != e.req.Kind {
		c.mu.Unlock()
		return dErrors.Newf(dErrors.CodeValidation, "response kind %q does not match request kind %q", resp.Kind, e.req.Kind)
	}
	// Claim the entry before running the callback so a concurrent fulfill
	// observes UnknownRequest.
	delete(c.pending, requestID)
	pending := len(c.pending)
	c.mu.Unlock()
	c.setPending(pending)

	cbErr := runCallback(ctx, e, resp)

	c.mu.Lock()
	c.resolveLocked(e, Outcome{Request: e.req, Response: &resp, Err: cbErr})
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RequestFulfilment.WithLabelValues(string(e.req.Kind)).Observe(now.Sub(e.req.IssuedAt).Seconds())
	}
	payload := map[string]any{"kind": string(e.req.Kind), "subject": e.req.Subject}
	if cbErr != nil {
		payload["callback_error"] = cbErr.Error()
		if c.logger != nil {
			c.logger.ErrorContext(ctx, "external request callback failed",
				"external_request_id", requestID.String(),
				"kind", string(e.req.Kind),
				"error", cbErr,
			)
		}
	}
	c.events.Emit(ctx, events.KindExternalRequestFulfilled, requestID.String(), payload)
	return cbErr
}

// runCallback converts a panicking callback into an internal error so the
// outcome is still recorded and waiters are released.
func runCallback(ctx context.Context, e *entry, resp Response) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = dErrors.Newf(dErrors.CodeInternal, "callback for %s request panicked: %v", e.req.Kind, r)
		}
	}()
	return e.callback(ctx, e.req, resp)
}

func (c *Correlator) cancel(ctx context.Context, requestID id.RequestID, reason string) error {
	c.mu.Lock()
	e, ok := c.pending[requestID]
	if !ok {
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeUnknownRequest, "request was never issued or is already resolved")
	}
	c.resolveLocked(e, Outcome{Request: e.req, Cancelled: true, Err: dErrors.New(dErrors.CodeUnknownRequest, reason)})
	pending := len(c.pending)
	c.mu.Unlock()

	c.setPending(pending)
	c.events.Emit(ctx, events.KindExternalRequestCancelled, requestID.String(), map[string]any{
		"kind":   string(e.req.Kind),
		"reason": reason,
	})
	if c.logger != nil {
		c.logger.InfoContext(ctx, "external request cancelled",
			"external_request_id", requestID.String(),
			"reason", reason,
		)
	}
	return nil
}

// resolveLocked removes e, records its outcome and wakes waiters. c.mu must be held.
func (c *Correlator) resolveLocked(e *entry, out Outcome) {
	delete(c.pending, e.req.ID)
	c.outcomes[e.req.ID] = out
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

// Wait blocks until requestID is resolved or ctx is done.
func (c *Correlator) Wait(ctx context.Context, requestID id.RequestID) (Outcome, error) {
	c.mu.Lock()
	if out, ok := c.outcomes[requestID]; ok {
		c.mu.Unlock()
		return out, nil
	}
	e, ok := c.pending[requestID]
	c.mu.Unlock()
	if !ok {
		return Outcome{}, dErrors.New(dErrors.CodeUnknownRequest, "request was never issued")
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return Outcome{}, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "waiting for external request")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcomes[requestID], nil
}

// SweepExpired cancels every request whose expiry has passed and forgets
// outcomes older than one TTL. It returns the number of cancelled requests.
func (c *Correlator) SweepExpired(ctx context.Context) int {
	now := requestcontext.Now(ctx)

	c.mu.Lock()
	var expired []id.RequestID
	for reqID, e := range c.pending {
		if now.After(e.req.ExpiresAt) {
			c.resolveLocked(e, Outcome{Request: e.req, Cancelled: true, Expired: true})
			expired = append(expired, reqID)
		}
	}
	for reqID, out := range c.outcomes {
		if now.Sub(out.Request.ExpiresAt) > c.ttl {
			delete(c.outcomes, reqID)
		}
	}
	pending := len(c.pending)
	c.mu.Unlock()

	c.setPending(pending)
	for _, reqID := range expired {
		c.events.Emit(ctx, events.KindExternalRequestCancelled, reqID.String(), map[string]any{"reason": "expired"})
	}
	if len(expired) > 0 && c.logger != nil {
		c.logger.InfoContext(ctx, "expired external requests cancelled", "count", len(expired))
	}
	return len(expired)
}

// Pending returns the number of outstanding requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Get returns a pending request.
func (c *Correlator) Get(requestID id.RequestID) (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pending[requestID]
	if !ok {
		return Request{}, false
	}
	return e.req, true
}

func (c *Correlator) setPending(n int) {
	if c.metrics != nil {
		c.metrics.PendingRequests.Set(float64(n))
	}
}

func (c *Correlator) work() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case req := <-c.jobs:
			c.execute(req)
		}
	}
}

func (c *Correlator) execute(req Request) {
	c.mu.Lock()
	ex := c.executors[req.Kind]
	c.mu.Unlock()
	if ex == nil {
		return
	}

	ctx, cancel := context.WithDeadline(context.Background(), req.ExpiresAt)
	defer cancel()
	resp, err := ex.Execute(ctx, req)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("external request executor failed",
				"external_request_id", req.ID.String(),
				"kind", string(req.Kind),
				"error", err,
			)
		}
		_ = c.cancel(context.Background(), req.ID, "executor failed: "+err.Error())
		return
	}
	if resp.Kind == "" {
		resp.Kind = req.Kind
	}
	if err := c.fulfill(context.Background(), req.ID, resp); err != nil && c.logger != nil {
		c.logger.Warn("executor fulfilment rejected",
			"external_request_id", req.ID.String(),
			"error", err,
		)
	}
}
