package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinOdds/internal/domain/models"
	"CoinOdds/pkg/cache"
	"CoinOdds/pkg/config"
	"CoinOdds/pkg/logger"
)

// scriptedRunner returns errs in order, then succeeds.
type scriptedRunner struct {
	mu    sync.Mutex
	errs  []error
	calls int
	block time.Duration
}

func (r *scriptedRunner) Run(ctx context.Context, _ []string) (*models.RunSummary, error) {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()

	if r.block > 0 {
		time.Sleep(r.block)
	}
	if n <= len(r.errs) && r.errs[n-1] != nil {
		err := r.errs[n-1]
		if IsValidation(err) {
			return &models.RunSummary{RunID: "rejected", ValidationErrors: []string{"spread"}}, err
		}
		return nil, err
	}
	return &models.RunSummary{Success: true, RunID: "run-ok", Calculated: 3}, nil
}

func (r *scriptedRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newSafe(runner Runner, c cache.Service, now *time.Time) (*SafeCalculator, *recordingMetrics) {
	m := newRecordingMetrics()
	s := NewSafeCalculator(runner, c, config.Default().Pipeline, m, logger.NewNop())
	s.now = func() time.Time { return *now }
	s.policy.Sleep = func(context.Context, time.Duration) error { return nil }
	return s, m
}

func TestSafeRetriesTransientFailures(t *testing.T) {
	now := testNow
	runner := &scriptedRunner{errs: []error{errProvider, errProvider}}
	s, _ := newSafe(runner, cache.NewMemoryCache(), &now)

	summary, err := s.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "run-ok", summary.RunID)
	assert.False(t, summary.FromCache)
	assert.Equal(t, 3, runner.Calls())
}

func TestSafeDoesNotRetryValidation(t *testing.T) {
	now := testNow
	runner := &scriptedRunner{errs: []error{&ValidationError{Errors: []string{"spread"}}}}
	s, _ := newSafe(runner, cache.NewMemoryCache(), &now)

	summary, err := s.Run(context.Background(), nil)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 1, runner.Calls())
	require.NotNil(t, summary)
	assert.Equal(t, []string{"spread"}, summary.ValidationErrors)
}

func TestSafeServesCachedSummary(t *testing.T) {
	now := testNow
	mem := cache.NewMemoryCache(cache.WithMemoryClock(func() time.Time { return now }))
	runner := &scriptedRunner{}
	s, m := newSafe(runner, mem, &now)

	_, err := s.Run(context.Background(), []string{"eth", "BTC"})
	require.NoError(t, err)

	now = now.Add(3 * time.Hour)
	runner.errs = []error{nil, errProvider, errProvider, errProvider}
	summary, err := s.Run(context.Background(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	assert.True(t, summary.FromCache)
	assert.Equal(t, "run-ok", summary.RunID)
	assert.Equal(t, 4, runner.Calls())
	assert.Equal(t, 1, m.Fallbacks("result_cache"))
}

func TestSafeCacheExpires(t *testing.T) {
	now := testNow
	mem := cache.NewMemoryCache(cache.WithMemoryClock(func() time.Time { return now }))
	runner := &scriptedRunner{}
	s, _ := newSafe(runner, mem, &now)

	_, err := s.Run(context.Background(), nil)
	require.NoError(t, err)

	now = now.Add(4*time.Hour + time.Minute)
	runner.errs = []error{nil, errProvider, errProvider, errProvider}
	_, err = s.Run(context.Background(), nil)
	assert.ErrorIs(t, err, errProvider)
}

func TestSafeSoftTimeout(t *testing.T) {
	now := testNow
	runner := &scriptedRunner{block: 200 * time.Millisecond}
	s, _ := newSafe(runner, cache.NewMemoryCache(), &now)
	s.policy.Timeout = 10 * time.Millisecond
	s.policy.MaxAttempts = 2

	start := time.Now()
	_, err := s.Run(context.Background(), nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
