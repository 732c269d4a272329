//go:build integration

package bucket_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"issuance/internal/ratelimit/store/bucket"
	"issuance/pkg/testutil/containers"
)

func TestRedisBucketStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	r := containers.GetManager().GetRedis(t)
	ctx := context.Background()
	require.NoError(t, r.FlushAll(ctx))
	s := bucket.NewRedisBucketStore(r.Client.Client)

	for i := range 3 {
		result, err := s.Allow(ctx, "ratelimit:principal:alice:write", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 2-i, result.Remaining)
	}

	result, err := s.Allow(ctx, "ratelimit:principal:alice:write", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Positive(t, result.RetryAfter)

	other, err := s.Allow(ctx, "ratelimit:principal:bob:write", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}
