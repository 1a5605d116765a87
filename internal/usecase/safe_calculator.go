package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"CoinOdds/internal/domain/models"
	domrepo "CoinOdds/internal/domain/repository"
	"CoinOdds/pkg/cache"
	"CoinOdds/pkg/config"
	"CoinOdds/pkg/logger"
	"CoinOdds/pkg/retry"
)

type cachedSummary struct {
	Summary  *models.RunSummary `json:"summary"`
	StoredAt time.Time          `json:"stored_at"`
}

// SafeCalculator wraps a Runner with a per-attempt timeout, retries of
// transient failures and a fallback to the last successful summary.
type SafeCalculator struct {
	calc    Runner
	cache   cache.Service
	policy  retry.Policy
	ttl     time.Duration
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewSafeCalculator(calc Runner, c cache.Service, p config.Pipeline, metrics domrepo.Metrics, log *logger.Logger) *SafeCalculator {
	s := &SafeCalculator{
		calc:  calc,
		cache: c,
		policy: retry.Policy{
			MaxAttempts: p.Safe.MaxAttempts,
			BaseDelay:   p.Safe.BaseDelay,
			Multiplier:  2,
			Timeout:     p.Safe.Timeout,
		},
		ttl:     p.Safe.CacheTTL,
		metrics: metrics,
		log:     log.With(logger.String("component", "safe_calculator")),
		now:     time.Now,
	}
	s.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.metrics.RecordError("calculation_attempt")
		s.log.Warn("calculation attempt failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("backoff_ms", delay),
			logger.Error(err))
	}
	return s
}

// Run never retries a validation rejection. When every attempt fails it
// returns a cached summary younger than the TTL, marked from_cache.
func (s *SafeCalculator) Run(ctx context.Context, symbols []string) (*models.RunSummary, error) {
	var (
		mu     sync.Mutex
		result *models.RunSummary
	)
	err := s.policy.Do(ctx, func(actx context.Context) error {
		summary, err := s.calc.Run(actx, symbols)
		if actx.Err() != nil {
			// the soft timeout already gave up on this attempt
			return actx.Err()
		}
		mu.Lock()
		result = summary
		mu.Unlock()
		if IsValidation(err) || errors.Is(err, ErrUnknownSymbol) {
			return retry.Permanent(err)
		}
		return err
	})

	mu.Lock()
	summary := result
	mu.Unlock()

	key := s.key(symbols)
	switch {
	case err == nil:
		if cerr := s.cache.Set(ctx, key, cachedSummary{Summary: summary, StoredAt: s.now().UTC()}, s.ttl); cerr != nil {
			s.log.Warn("cache summary failed", logger.Error(cerr))
		}
		return summary, nil
	case IsValidation(err), errors.Is(err, ErrUnknownSymbol):
		return summary, err
	}

	cached, ok := s.Cached(ctx, symbols, s.ttl)
	if !ok {
		s.log.Error("calculation failed with no cached result", logger.Error(err))
		return nil, err
	}
	s.metrics.RecordFallback("result_cache")
	s.log.Warn("calculation failed, serving cached result",
		logger.String("run_id", cached.RunID),
		logger.Error(err))
	cached.FromCache = true
	return cached, nil
}

// Cached returns the last successful summary for symbols if it is younger than maxAge.
func (s *SafeCalculator) Cached(ctx context.Context, symbols []string, maxAge time.Duration) (*models.RunSummary, bool) {
	var c cachedSummary
	if err := s.cache.Get(ctx, s.key(symbols), &c); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache read failed", logger.Error(err))
		}
		return nil, false
	}
	if c.Summary == nil || s.now().Sub(c.StoredAt) >= maxAge {
		return nil, false
	}
	return c.Summary, true
}

// TTL is how long a successful summary stays usable.
func (s *SafeCalculator) TTL() time.Duration { return s.ttl }

func (s *SafeCalculator) key(symbols []string) string {
	if len(symbols) == 0 {
		return cache.Key("probabilities", "summary", "all")
	}
	norm := make([]string, len(symbols))
	for i, sym := range symbols {
		norm[i] = strings.ToUpper(strings.TrimSpace(sym))
	}
	sort.Strings(norm)
	return cache.Key("probabilities", "summary", strings.Join(norm, ","))
}
