// Package middleware enforces per-principal request budgets on the
// authenticated API.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"issuance/internal/platform/metrics"
	"issuance/internal/ratelimit/models"
	"issuance/pkg/platform/httputil"
	"issuance/pkg/requestcontext"
)

type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

type Middleware struct {
	store    Store
	limits   map[models.EndpointClass]models.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
	degraded func() bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithLimit(class models.EndpointClass, limit models.Limit) Option {
	return func(m *Middleware) {
		m.limits[class] = limit
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

// WithDegraded reports fallback mode through X-RateLimit-Status.
func WithDegraded(degraded func() bool) Option {
	return func(m *Middleware) {
		m.degraded = degraded
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		logger: logger,
		limits: map[models.EndpointClass]models.Limit{
			models.ClassRead:  {RequestsPerWindow: 600, Window: time.Minute},
			models.ClassWrite: {RequestsPerWindow: 120, Window: time.Minute},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimitAuthenticated must run after authentication; requests without a
// principal are keyed by remote address.
func (m *Middleware) RateLimitAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		subject := requestcontext.Principal(ctx).String()
		if subject == "" {
			subject = r.RemoteAddr
		}
		class := models.ClassOf(r.Method)
		limit := m.limits[class]

		result, err := m.store.Allow(ctx, models.NewPrincipalKey(subject, class), limit.RequestsPerWindow, limit.Window)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check rate limit", "error", err, "principal", subject)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if m.degraded != nil && m.degraded() {
			w.Header().Set("X-RateLimit-Status", "degraded")
		}

		if !result.Allowed {
			if m.metrics != nil {
				m.metrics.RateLimited.WithLabelValues(string(class)).Inc()
			}
			m.logger.WarnContext(ctx, "rate limit exceeded", "principal", subject, "class", class)
			writeRateLimitExceeded(w, result)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Request quota exhausted for this principal. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
