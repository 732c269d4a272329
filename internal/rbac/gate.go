package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"issuance/internal/platform/metrics"
	id "issuance/pkg/domain"
	dErrors "issuance/pkg/domain-errors"
	"issuance/pkg/requestcontext"
)

// Bindings maps a principal to its roles.
type Bindings map[id.PrincipalID][]Role

// ParseBindings parses "alice=admin;bob=settlement_operator,oracle".
func ParseBindings(s string) (Bindings, error) {
	b := Bindings{}
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		principal, roles, ok := strings.Cut(entry, "=")
		principal = strings.TrimSpace(principal)
		if !ok || principal == "" {
			return nil, fmt.Errorf("invalid role binding %q", entry)
		}
		for _, raw := range strings.Split(roles, ",") {
			role := Role(strings.TrimSpace(raw))
			if role == "" {
				continue
			}
			if !role.IsValid() {
				return nil, fmt.Errorf("unknown role %q for principal %q", role, principal)
			}
			b[id.PrincipalID(principal)] = append(b[id.PrincipalID(principal)], role)
		}
	}
	return b, nil
}

// Gate answers authorize(principal, operation).
type Gate struct {
	mu       sync.RWMutex
	bindings Bindings
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func New(bindings Bindings, opts ...Option) *Gate {
	g := &Gate{bindings: Bindings{}}
	for principal, roles := range bindings {
		g.bindings[principal] = append([]Role{}, roles...)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Grant adds role to principal.
func (g *Gate) Grant(principal id.PrincipalID, role Role) error {
	if !role.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown role %q", role)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.bindings[principal] {
		if r == role {
			return nil
		}
	}
	g.bindings[principal] = append(g.bindings[principal], role)
	return nil
}

// Allowed reports whether principal may perform op.
func (g *Gate) Allowed(principal id.PrincipalID, op Operation) bool {
	if principal.IsNil() {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, role := range g.bindings[principal] {
		if role.allows(op) {
			return true
		}
	}
	return false
}

// Authorize checks the principal carried by ctx. It returns CodeNotAuthorized
// for anonymous principals, unknown principals and missing capabilities.
func (g *Gate) Authorize(ctx context.Context, op Operation) error {
	principal := requestcontext.Principal(ctx)
	if g.Allowed(principal, op) {
		return nil
	}
	if g.metrics != nil {
		g.metrics.AuthorizationDenied.WithLabelValues(string(op)).Inc()
	}
	if g.logger != nil {
		g.logger.WarnContext(ctx, "operation not authorized",
			"principal", principal.String(),
			"operation", string(op),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return dErrors.Newf(dErrors.CodeNotAuthorized, "principal %q may not perform %s", principal, op)
}

// Roles returns the sorted roles bound to principal.
func (g *Gate) Roles(principal id.PrincipalID) []Role {
	g.mu.RLock()
	defer g.mu.RUnlock()
	roles := append([]Role{}, g.bindings[principal]...)
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// AllowAll authorizes every operation. Used by internal callers such as the
// ingest consumer when it runs under a trusted service principal, and by tests.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, Operation) error { return nil }
