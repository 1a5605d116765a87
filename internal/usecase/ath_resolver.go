package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoinOdds/internal/domain/models"
	domrepo "CoinOdds/internal/domain/repository"
	dservice "CoinOdds/internal/domain/service"
	"CoinOdds/pkg/config"
	"CoinOdds/pkg/logger"
	"CoinOdds/pkg/retry"
)

// ATH is a resolved all-time high and the tier it came from.
type ATH struct {
	Price  float64
	Date   time.Time
	Source string
}

// ATHResolver walks the all-time-high tiers: fresh cache, provider (with
// retries), stale cache, then an estimate from the observed maximum.
type ATHResolver struct {
	store   domrepo.ATHStore
	market  dservice.MarketData
	policy  retry.Policy
	maxAge  time.Duration
	factor  float64
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewATHResolver(store domrepo.ATHStore, market dservice.MarketData, p config.Pipeline, metrics domrepo.Metrics, log *logger.Logger) *ATHResolver {
	r := &ATHResolver{
		store:  store,
		market: market,
		policy: retry.Policy{
			MaxAttempts: p.ATHRetry.MaxAttempts,
			BaseDelay:   p.ATHRetry.BaseDelay,
			Multiplier:  p.ATHRetry.Multiplier,
			MaxDelay:    p.ATHRetry.MaxDelay,
		},
		maxAge:  p.ATHMaxAge,
		factor:  p.ATHEstimateFactor,
		metrics: metrics,
		log:     log.With(logger.String("component", "ath_resolver")),
		now:     time.Now,
	}
	r.policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		r.log.Warn("ath fetch failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("backoff_ms", delay),
			logger.Error(err))
	}
	return r
}

// Resolve returns the all-time high of asset. histMax is the largest close
// the caller observed; it caps the result from below.
func (r *ATHResolver) Resolve(ctx context.Context, asset config.Asset, histMax float64, histMaxDate time.Time) (ATH, error) {
	now := r.now().UTC()

	cached, err := r.store.Get(ctx, asset.Symbol)
	if err != nil {
		if !errors.Is(err, domrepo.ErrNotFound) {
			r.log.Warn("ath cache read failed", logger.String("symbol", asset.Symbol), logger.Error(err))
			r.metrics.RecordError("ath_cache_read")
		}
		cached = nil
	}
	if cached != nil && cached.Price <= 0 {
		cached = nil
	}

	var res ATH
	switch {
	case cached != nil && now.Sub(cached.LastUpdated) < r.maxAge:
		res = ATH{Price: cached.Price, Date: cached.Date, Source: models.SourceCache}
	default:
		fetched, ferr := r.fetch(ctx, asset)
		switch {
		case ferr == nil:
			res = fetched
			r.writeBack(ctx, asset.Symbol, res, now)
		case cached != nil:
			r.log.Warn("ath provider unavailable, using stale cache",
				logger.String("symbol", asset.Symbol),
				logger.Duration("age_ms", now.Sub(cached.LastUpdated)),
				logger.Error(ferr))
			r.metrics.RecordFallback(models.SourceStaleCache)
			res = ATH{Price: cached.Price, Date: cached.Date, Source: models.SourceStaleCache}
		case histMax > 0:
			r.log.Warn("ath provider unavailable, estimating from history",
				logger.String("symbol", asset.Symbol),
				logger.Float64("factor", r.factor),
				logger.Error(ferr))
			r.metrics.RecordFallback(models.SourceEstimate)
			res = ATH{Price: histMax * r.factor, Date: histMaxDate, Source: models.SourceEstimate}
		default:
			return ATH{}, fmt.Errorf("resolve ath %s: %w", asset.Symbol, ferr)
		}
	}

	if histMax > res.Price {
		r.log.Info("history exceeds all-time high, correcting",
			logger.String("symbol", asset.Symbol),
			logger.Float64("ath", res.Price),
			logger.Float64("history_max", histMax))
		res = ATH{Price: histMax, Date: histMaxDate, Source: models.SourceHistoryMax}
		r.writeBack(ctx, asset.Symbol, res, now)
	}
	return res, nil
}

func (r *ATHResolver) fetch(ctx context.Context, asset config.Asset) (ATH, error) {
	var res ATH
	start := time.Now()
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		price, date, err := r.market.AllTimeHigh(ctx, asset.CoinID)
		if err != nil {
			return err
		}
		if price <= 0 {
			return retry.Permanent(fmt.Errorf("provider returned no all-time high for %s", asset.CoinID))
		}
		res = ATH{Price: price, Date: date, Source: models.SourceAPI}
		return nil
	})
	r.metrics.RecordLatency("ath_fetch", time.Since(start).Seconds())
	return res, err
}

func (r *ATHResolver) writeBack(ctx context.Context, symbol string, a ATH, now time.Time) {
	err := r.store.Upsert(ctx, models.ATHEntry{Symbol: symbol, Price: a.Price, Date: a.Date, LastUpdated: now})
	if err != nil {
		r.log.Warn("ath cache write failed", logger.String("symbol", symbol), logger.Error(err))
		r.metrics.RecordError("ath_cache_write")
	}
}
