package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinOdds/internal/domain/models"
	domrepo "CoinOdds/internal/domain/repository"
	dservice "CoinOdds/internal/domain/service"
	"CoinOdds/pkg/logger"
	"CoinOdds/pkg/util"
)

// MarketCapSnapshot records today's aggregate market cap, which feeds the
// market-flow component.
type MarketCapSnapshot struct {
	market  dservice.MarketData
	store   domrepo.MarketCapStore
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewMarketCapSnapshot(market dservice.MarketData, store domrepo.MarketCapStore, metrics domrepo.Metrics, log *logger.Logger) *MarketCapSnapshot {
	return &MarketCapSnapshot{
		market:  market,
		store:   store,
		metrics: metrics,
		log:     log.With(logger.String("component", "mcap_snapshot")),
		now:     time.Now,
	}
}

func (s *MarketCapSnapshot) Run(ctx context.Context) (models.MarketCapPoint, error) {
	start := time.Now()
	total, err := s.market.GlobalMarketCap(ctx)
	s.metrics.RecordLatency("global_market_cap", time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordError("global_market_cap")
		return models.MarketCapPoint{}, fmt.Errorf("fetch global market cap: %w", err)
	}
	if total <= 0 {
		return models.MarketCapPoint{}, fmt.Errorf("provider returned market cap %.2f", total)
	}

	p := models.MarketCapPoint{Date: util.Day(s.now()), TotalMarketCap: total}
	if err := s.store.Upsert(ctx, p); err != nil {
		s.metrics.RecordError("market_cap_write")
		return models.MarketCapPoint{}, fmt.Errorf("store market cap: %w", err)
	}
	s.log.Info("market cap recorded",
		logger.String("date", p.Date.Format(time.DateOnly)),
		logger.Float64("total_usd", total))
	return p, nil
}
