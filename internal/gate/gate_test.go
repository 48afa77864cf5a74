package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"

	"emergency-service/internal/alerts"
	"emergency-service/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error"})
}

func TestGateAllowsUpToCap(t *testing.T) {
	g := New(NewMemoryStore(), 3, 5*time.Minute, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Allow(ctx, 1))
	}
	assert.ErrorIs(t, g.Allow(ctx, 1), alerts.ErrRateLimited)
}

func TestGateCountsPerOriginator(t *testing.T) {
	g := New(NewMemoryStore(), 1, 5*time.Minute, testLogger())
	ctx := context.Background()

	require.NoError(t, g.Allow(ctx, 1))
	assert.ErrorIs(t, g.Allow(ctx, 1), alerts.ErrRateLimited)

	// A different originator has their own counter.
	assert.NoError(t, g.Allow(ctx, 2))
}

type failingStore struct{}

func (failingStore) Get(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errors.New("store unreachable")
}

func (failingStore) Peek(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errors.New("store unreachable")
}

func (failingStore) Reset(context.Context, string, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errors.New("store unreachable")
}

func (failingStore) Increment(context.Context, string, int64, limiter.Rate) (limiter.Context, error) {
	return limiter.Context{}, errors.New("store unreachable")
}

func TestGateFailsOpenOnStoreError(t *testing.T) {
	g := New(failingStore{}, 3, 5*time.Minute, testLogger())

	// An unreachable counter store must never block an emergency.
	assert.NoError(t, g.Allow(context.Background(), 1))
}
