package bucket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuance/internal/ratelimit/models"
	"issuance/pkg/platform/circuit"
)

type flakyStore struct {
	err   error
	calls int
}

func (f *flakyStore) Allow(_ context.Context, _ string, limit int, _ time.Duration) (*models.RateLimitResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.RateLimitResult{Allowed: true, Limit: limit, Remaining: limit - 1}, nil
}

func TestFailoverStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("uses primary when healthy", func(t *testing.T) {
		primary := &flakyStore{}
		s := NewFailoverStore(primary, NewInMemoryBucketStore(), circuit.New("ratelimit"), logger)

		result, err := s.Allow(ctx, "k", 5, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 4, result.Remaining)
		assert.Equal(t, 1, primary.calls)
		assert.False(t, s.Degraded())
	})

	t.Run("falls back on error and opens after threshold", func(t *testing.T) {
		primary := &flakyStore{err: errors.New("connection refused")}
		fallback := NewInMemoryBucketStore()
		breaker := circuit.New("ratelimit", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
		s := NewFailoverStore(primary, fallback, breaker, logger)

		for range 3 {
			result, err := s.Allow(ctx, "k", 5, time.Minute)
			require.NoError(t, err)
			assert.True(t, result.Allowed)
		}
		assert.True(t, s.Degraded())
		assert.Equal(t, 2, primary.calls, "open breaker skips the primary")

		result, err := fallback.Allow(ctx, "k", 5, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Remaining, "fallback counted every request")
	})
}
