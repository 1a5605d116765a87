package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"CoinOdds/internal/domain/models"
	domrepo "CoinOdds/internal/domain/repository"
	dservice "CoinOdds/internal/domain/service"
	"CoinOdds/internal/services/scoring"
	"CoinOdds/internal/services/stats"
	"CoinOdds/internal/services/validation"
	"CoinOdds/pkg/config"
	"CoinOdds/pkg/logger"
	"CoinOdds/pkg/util"
)

// Runner computes one batch of probabilities.
type Runner interface {
	Run(ctx context.Context, symbols []string) (*models.RunSummary, error)
}

// Calculator runs the scoring pipeline over the configured assets. Assets
// are processed one at a time with a pause in between, and nothing is
// written unless the whole batch passes validation.
type Calculator struct {
	assets    []config.Asset
	pipeline  config.Pipeline
	scorer    *scoring.Scorer
	validator *validation.Validator
	market    dservice.MarketData
	prices    domrepo.PriceHistoryStore
	mcaps     domrepo.MarketCapStore
	results   domrepo.ProbabilityStore
	ath       *ATHResolver
	archive   domrepo.RunArchive
	publisher domrepo.ResultPublisher
	metrics   domrepo.Metrics
	log       *logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

type CalculatorOption func(*Calculator)

// WithArchive appends every committed batch to a.
func WithArchive(a domrepo.RunArchive) CalculatorOption {
	return func(c *Calculator) { c.archive = a }
}

func WithPublisher(p domrepo.ResultPublisher) CalculatorOption {
	return func(c *Calculator) { c.publisher = p }
}

// WithClock replaces time.Now and the inter-asset pause; used by tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) CalculatorOption {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func NewCalculator(
	cfg *config.Config,
	market dservice.MarketData,
	prices domrepo.PriceHistoryStore,
	mcaps domrepo.MarketCapStore,
	results domrepo.ProbabilityStore,
	ath *ATHResolver,
	metrics domrepo.Metrics,
	log *logger.Logger,
	opts ...CalculatorOption,
) *Calculator {
	c := &Calculator{
		assets:    cfg.Assets,
		pipeline:  cfg.Pipeline,
		scorer:    scoring.New(cfg.Scoring),
		validator: validation.New(cfg.Validation, cfg.Scoring),
		market:    market,
		prices:    prices,
		mcaps:     mcaps,
		results:   results,
		ath:       ath,
		metrics:   metrics,
		log:       log.With(logger.String("component", "calculator")),
		now:       time.Now,
		sleep:     pause,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// assetState is what the loop gathered for one asset.
type assetState struct {
	asset    config.Asset
	history  []models.PricePoint
	closes   []float64
	backfill bool
	fallback bool
}

// Run computes, validates and commits one batch. symbols narrows the
// configured assets; empty means all of them. A rejected batch returns the
// summary together with a *ValidationError.
func (c *Calculator) Run(ctx context.Context, symbols []string) (*models.RunSummary, error) {
	start := c.now()
	calcDate := util.Day(start)
	runID := c.newID()
	log := c.log.With(logger.String("run_id", runID))

	assets, err := c.selectAssets(symbols)
	if err != nil {
		return nil, err
	}

	summary := &models.RunSummary{RunID: runID, CalculationDate: calcDate}
	log.Info("calculation started", logger.Int("assets", len(assets)), logger.String("date", calcDate.Format(time.DateOnly)))

	live := c.livePrices(ctx, assets, log)
	flow := c.marketFlow(ctx, log)
	mom := c.momentum(ctx, calcDate, log)
	summary.Diagnostics = &models.Diagnostics{
		MarketFlowProbability: flow.P,
		Flow10d:               flow.P10.P,
		Flow40d:               flow.P40.P,
		MomentumProbability:   mom.P,
		Formula:               c.scorer.Formula(),
	}

	var (
		batch    []validation.AssetInput
		backfill []models.PricePoint
	)
	for i, asset := range assets {
		if i > 0 {
			if err := c.sleep(ctx, c.pipeline.AssetPause); err != nil {
				return nil, err
			}
		}

		st, err := c.loadHistory(ctx, asset, calcDate, log)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("asset skipped", logger.String("symbol", asset.Symbol), logger.Error(err))
			summary.Skipped = append(summary.Skipped, asset.Symbol)
			continue
		}

		res, err := c.score(ctx, st, live, flow, mom, runID, calcDate, start, log)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("asset skipped", logger.String("symbol", asset.Symbol), logger.Error(err))
			summary.Skipped = append(summary.Skipped, asset.Symbol)
			continue
		}

		if st.backfill {
			backfill = append(backfill, st.history...)
		}
		if st.fallback || res.PriceSource != models.SourceLive ||
			(res.ATHSource != models.SourceCache && res.ATHSource != models.SourceAPI) {
			summary.FallbackUsed++
		}
		batch = append(batch, validation.AssetInput{Closes: st.closes, Result: res})
	}

	summary.Calculated = len(batch)
	if len(batch) == 0 {
		c.metrics.RecordRun("error", time.Since(start))
		summary.Error = ErrInsufficientData.Error()
		return summary, fmt.Errorf("no asset could be scored: %w", ErrInsufficientData)
	}

	report := c.validator.Validate(batch)
	if !report.OK() {
		for _, f := range report.Failures {
			c.metrics.RecordValidationFailure(f.Check)
		}
		summary.ValidationErrors = report.Messages()
		summary.Error = ErrValidationFailed.Error()
		c.metrics.RecordRun("rejected", time.Since(start))
		log.Error("batch rejected",
			logger.Int("failures", len(report.Failures)),
			logger.Strings("errors", summary.ValidationErrors))
		return summary, &ValidationError{Errors: summary.ValidationErrors}
	}

	results := make([]models.ProbabilityResult, len(batch))
	for i, in := range batch {
		results[i] = in.Result
	}

	commitStart := time.Now()
	if err := c.results.Commit(ctx, results, backfill); err != nil {
		c.metrics.RecordError("commit")
		c.metrics.RecordRun("error", time.Since(start))
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	c.metrics.RecordLatency("commit", time.Since(commitStart).Seconds())

	summary.Success = true
	summary.Validated = len(results)
	summary.Results = results

	c.afterCommit(ctx, summary, log)

	c.metrics.RecordRun("committed", time.Since(start))
	c.metrics.RecordAssetsCalculated(len(results))
	log.Info("batch committed",
		logger.Int("calculated", summary.Calculated),
		logger.Int("fallback_used", summary.FallbackUsed),
		logger.Strings("skipped", summary.Skipped),
		logger.Duration("duration_ms", time.Since(start)))
	return summary, nil
}

func (c *Calculator) selectAssets(symbols []string) ([]config.Asset, error) {
	if len(symbols) == 0 {
		return c.assets, nil
	}
	bySymbol := make(map[string]config.Asset, len(c.assets))
	for _, a := range c.assets {
		bySymbol[a.Symbol] = a
	}
	out := make([]config.Asset, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		a, ok := bySymbol[s]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, s)
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, a)
		}
	}
	return out, nil
}

// livePrices makes the single batched quote request of a run. A failure
// leaves the map empty and every asset falls back to its last close.
func (c *Calculator) livePrices(ctx context.Context, assets []config.Asset, log *logger.Logger) map[string]float64 {
	ids := make([]string, len(assets))
	for i, a := range assets {
		ids[i] = a.CoinID
	}
	start := time.Now()
	prices, err := c.market.LivePrices(ctx, ids)
	c.metrics.RecordLatency("live_prices", time.Since(start).Seconds())
	if err != nil {
		log.Warn("live prices unavailable, using last close", logger.Error(err))
		c.metrics.RecordError("live_prices")
		return map[string]float64{}
	}
	return prices
}

func (c *Calculator) marketFlow(ctx context.Context, log *logger.Logger) scoring.FlowResult {
	cfg := c.scorer.Config()
	n := max(cfg.Flow10.Days, cfg.Flow40.Days) + 1

	points, err := c.mcaps.Latest(ctx, n)
	if err != nil {
		log.Warn("market cap series unavailable", logger.Error(err))
		c.metrics.RecordError("market_cap_read")
	}
	caps := make([]float64, len(points))
	for i, p := range points {
		caps[len(points)-1-i] = p.TotalMarketCap
	}

	res := c.scorer.MarketFlow(caps)
	if res.P10.Fallback || res.P40.Fallback {
		c.metrics.RecordFallback("market_flow_neutral")
		log.Warn("market flow window without enough data",
			logger.Int("points", len(caps)),
			logger.Bool("p10_neutral", res.P10.Fallback),
			logger.Bool("p40_neutral", res.P40.Fallback))
	}
	return res
}

// momentum scores the reference asset, fetching from the provider when the
// store has too few rows.
func (c *Calculator) momentum(ctx context.Context, calcDate time.Time, log *logger.Logger) scoring.MomentumResult {
	cfg := c.scorer.Config()
	need := cfg.MomentumDays + 1
	ref := cfg.ReferenceSymbol

	rows, err := c.prices.History(ctx, ref, calcDate.AddDate(0, 0, -3*need))
	if err != nil {
		log.Warn("reference history unavailable", logger.String("symbol", ref), logger.Error(err))
	}
	if len(rows) < need {
		if coinID := c.coinID(ref); coinID != "" {
			fetched, ferr := c.market.MarketChart(ctx, ref, coinID, need+5)
			if ferr != nil {
				log.Warn("reference history fetch failed", logger.String("symbol", ref), logger.Error(ferr))
			} else {
				c.metrics.RecordFallback("momentum_api")
				rows = fetched
			}
		}
	}

	res := c.scorer.Momentum(closesOf(rows))
	if res.Fallback {
		c.metrics.RecordFallback("momentum_neutral")
		log.Warn("momentum without enough data", logger.Int("rows", len(rows)))
	}
	return res
}

func (c *Calculator) coinID(symbol string) string {
	for _, a := range c.assets {
		if a.Symbol == symbol {
			return a.CoinID
		}
	}
	return ""
}

func (c *Calculator) loadHistory(ctx context.Context, asset config.Asset, calcDate time.Time, log *logger.Logger) (*assetState, error) {
	from := calcDate.AddDate(0, 0, -c.pipeline.HistoryDays)
	st := &assetState{asset: asset}

	rows, err := c.prices.History(ctx, asset.Symbol, from)
	if err != nil {
		log.Warn("history read failed", logger.String("symbol", asset.Symbol), logger.Error(err))
		c.metrics.RecordError("history_read")
	}
	if len(rows) >= c.pipeline.MinHistoryRows {
		st.history = rows
		st.closes = closesOf(rows)
		return st, nil
	}

	log.Info("history below floor, fetching from provider",
		logger.String("symbol", asset.Symbol),
		logger.Int("rows", len(rows)),
		logger.Int("min_rows", c.pipeline.MinHistoryRows))

	start := time.Now()
	fetched, err := c.market.MarketChart(ctx, asset.Symbol, asset.CoinID, c.pipeline.HistoryDays)
	c.metrics.RecordLatency("market_chart", time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordError("market_chart")
		return nil, fmt.Errorf("%w: %s has %d rows and the fetch failed: %v", ErrInsufficientData, asset.Symbol, len(rows), err)
	}

	kept := fetched[:0:0]
	for _, p := range fetched {
		if !p.Date.Before(from) && p.Close > 0 {
			kept = append(kept, p)
		}
	}
	if len(kept) < c.pipeline.MinHistoryRows {
		return nil, fmt.Errorf("%w: %s has %d rows after fetch", ErrInsufficientData, asset.Symbol, len(kept))
	}

	c.metrics.RecordFallback("history_api")
	st.history = kept
	st.closes = closesOf(kept)
	st.backfill = true
	st.fallback = true
	return st, nil
}

func (c *Calculator) score(
	ctx context.Context,
	st *assetState,
	live map[string]float64,
	flow scoring.FlowResult,
	mom scoring.MomentumResult,
	runID string,
	calcDate, now time.Time,
	log *logger.Logger,
) (models.ProbabilityResult, error) {
	asset := st.asset

	current, priceSource := live[asset.CoinID], models.SourceLive
	if current <= 0 {
		current, priceSource = st.closes[len(st.closes)-1], models.SourceHistoryClose
		c.metrics.RecordFallback(models.SourceHistoryClose)
	}

	minClose, _, maxClose, maxIdx := stats.MinMax(st.closes)
	ath, err := c.ath.Resolve(ctx, asset, maxClose, st.history[maxIdx].Date)
	if err != nil {
		return models.ProbabilityResult{}, err
	}

	pos := c.scorer.Position(st.closes, current)
	pRise := c.scorer.Combine(flow.P, mom.P, pos.P)
	dir, pct := scoring.Decide(pRise)

	historySource := models.SourceDatabase
	if st.backfill {
		historySource = models.SourceAPI
	}

	log.Debug("asset scored",
		logger.String("symbol", asset.Symbol),
		logger.Float64("p_rise", pRise),
		logger.Float64("p_price", pos.P),
		logger.String("price_source", priceSource),
		logger.String("ath_source", ath.Source))

	return models.ProbabilityResult{
		RunID:                    runID,
		Symbol:                   asset.Symbol,
		CoinID:                   asset.CoinID,
		CalculationDate:          calcDate,
		Direction:                dir,
		Percentage:               pct,
		ProbabilityRise:          pRise,
		MarketFlowProbability:    flow.P,
		MomentumProbability:      mom.P,
		PricePositionProbability: pos.P,
		CurrentPrice:             current,
		Min365:                   minClose,
		Max365:                   maxClose,
		ATHPrice:                 ath.Price,
		ATHDate:                  ath.Date,
		CILowerLog:               pos.CILower,
		CIUpperLog:               pos.CIUpper,
		LogPriceMean:             pos.LogMean,
		LogPriceStdDev:           pos.LogStdDev,
		PriceSource:              priceSource,
		HistorySource:            historySource,
		ATHSource:                ath.Source,
		ValidationStatus:         models.ValidationPassed,
		CreatedAt:                now.UTC(),
	}, nil
}

// afterCommit archives and publishes the batch. Both are best effort; the
// committed rows are the source of truth.
func (c *Calculator) afterCommit(ctx context.Context, summary *models.RunSummary, log *logger.Logger) {
	for _, r := range summary.Results {
		c.metrics.RecordProbability(r.Symbol, r.ProbabilityRise)
	}
	if c.archive != nil {
		if err := c.archive.Archive(ctx, summary.Results); err != nil {
			log.Warn("archive failed", logger.Error(err))
			c.metrics.RecordError("archive")
		}
	}
	if c.publisher != nil {
		if err := c.publisher.PublishRun(ctx, summary); err != nil {
			log.Warn("publish failed", logger.Error(err))
			c.metrics.RecordError("publish")
		}
	}
}

func closesOf(rows []models.PricePoint) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if r.Close > 0 {
			out = append(out, r.Close)
		}
	}
	return out
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsValidation reports whether err is a batch rejection.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}
