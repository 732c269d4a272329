package bucket

import (
	"context"
	"log/slog"
	"time"

	"issuance/internal/ratelimit/models"
	"issuance/pkg/platform/circuit"
)

type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// FailoverStore checks the primary store and falls back to a local store
// while the primary is failing. Limits are per replica during that time.
type FailoverStore struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFailoverStore(primary, fallback Store, breaker *circuit.Breaker, logger *slog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger,
	}
}

func (s *FailoverStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	if !s.breaker.Allow() {
		return s.fallback.Allow(ctx, key, limit, window)
	}

	result, err := s.primary.Allow(ctx, key, limit, window)
	if err != nil {
		_, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "rate limit store unavailable, using local fallback", "error", err)
		}
		return s.fallback.Allow(ctx, key, limit, window)
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "rate limit store recovered")
	}
	return result, nil
}

// Degraded reports whether limits are currently enforced locally.
func (s *FailoverStore) Degraded() bool {
	return s.breaker.IsOpen()
}
