package lottery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() *CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	cfg.Timeout = time.Hour
	cfg.OnStateChange = false
	return cfg
}

func TestBreakerSource_OpensAfterFailures(t *testing.T) {
	src := newFakeSource(4060)
	for no := 4054; no <= 4056; no++ {
		src.failAt[no] = errors.New("unexpected status 503")
	}

	breaker := NewBreakerSource(src, testBreakerConfig(), nil)
	ctx := context.Background()

	for no := 4054; no <= 4056; no++ {
		_, err := breaker.FetchDraw(ctx, no)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitBreakerOpen)
	}

	_, err := breaker.FetchDraw(ctx, 4057)
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.Equal(t, "open", breaker.State())
	assert.Equal(t, []int{4054, 4055, 4056}, src.requested, "open breaker does not reach the source")

	_, err = breaker.LatestDrawNo(ctx)
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestBreakerSource_NotPublishedIsNotAFailure(t *testing.T) {
	src := newFakeSource(4060)
	breaker := NewBreakerSource(src, testBreakerConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := breaker.FetchDraw(ctx, 4054)
		assert.ErrorIs(t, err, ErrNotYetPublished)
	}

	assert.Equal(t, "closed", breaker.State())
	assert.Equal(t, uint32(0), breaker.Counts().TotalFailures)
	assert.Equal(t, uint32(5), breaker.Counts().TotalSuccesses)
}

func TestBreakerSource_PassesResults(t *testing.T) {
	src := newFakeSource(4055, 4055)
	breaker := NewBreakerSource(src, testBreakerConfig(), NewSilentLogger())
	ctx := context.Background()

	latest, err := breaker.LatestDrawNo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4055, latest)

	rec, err := breaker.FetchDraw(ctx, 4055)
	require.NoError(t, err)
	assert.Equal(t, 4055, rec.DrawNo)
}

func TestBreakerSource_Disabled(t *testing.T) {
	src := newFakeSource(4060)
	for no := 4054; no <= 4060; no++ {
		src.failAt[no] = errors.New("unexpected status 503")
	}

	cfg := testBreakerConfig()
	cfg.Enabled = false
	breaker := NewBreakerSource(src, cfg, nil)

	for no := 4054; no <= 4060; no++ {
		_, err := breaker.FetchDraw(context.Background(), no)
		assert.NotErrorIs(t, err, ErrCircuitBreakerOpen)
	}
	assert.Equal(t, "disabled", breaker.State())
	assert.Len(t, src.requested, 7)

	health := breaker.HealthCheck()
	assert.Equal(t, "disabled", health["state"])
	assert.Equal(t, DefaultCircuitBreakerName, health["name"])
}
