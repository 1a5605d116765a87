package scoring

import (
	"fmt"
	"math"

	"CoinOdds/internal/domain/models"
	"CoinOdds/internal/services/stats"
	"CoinOdds/pkg/config"
)

// Neutral is returned by a component that lacks data.
const Neutral = 0.5

// Scorer turns price and market-cap series into component probabilities.
// All policy constants come from config.Scoring.
type Scorer struct {
	cfg config.Scoring
}

func New(cfg config.Scoring) *Scorer {
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Config() config.Scoring { return s.cfg }

// WindowResult is the outcome of one flow window.
type WindowResult struct {
	P        float64 `json:"p"`
	Z        float64 `json:"z"`
	DeltaUSD float64 `json:"delta_usd"`
	Boosted  bool    `json:"boosted"`
	Fallback bool    `json:"fallback"`
}

// FlowResult is the shared market-flow component.
type FlowResult struct {
	P10 WindowResult `json:"p10"`
	P40 WindowResult `json:"p40"`
	P   float64      `json:"p"`
}

// MarketFlow scores aggregate market-cap moves. caps is oldest first.
// A shrinking market reads as bullish, and large absolute moves push the
// logit further in that direction.
func (s *Scorer) MarketFlow(caps []float64) FlowResult {
	r10 := s.flowWindow(caps, s.cfg.Flow10)
	r40 := s.flowWindow(caps, s.cfg.Flow40)

	w10, w40 := s.cfg.Flow10.Weight, s.cfg.Flow40.Weight
	p := (w10*r10.P + w40*r40.P) / (w10 + w40)

	return FlowResult{
		P10: r10,
		P40: r40,
		P:   stats.Clamp(p, s.cfg.FlowClampMin, s.cfg.FlowClampMax),
	}
}

func (s *Scorer) flowWindow(caps []float64, w config.FlowWindow) WindowResult {
	if len(caps) < w.Days+1 {
		return WindowResult{P: Neutral, Fallback: true}
	}
	window := caps[len(caps)-(w.Days+1):]

	returns := stats.LogReturns(window)
	if len(returns) < w.MinReturns {
		return WindowResult{P: Neutral, Fallback: true}
	}

	z := stats.ZScoreEps(stats.Mean(returns), stats.StdDev(returns), len(returns), s.cfg.Epsilon)
	logit := -w.Slope * z

	res := WindowResult{Z: z, DeltaUSD: window[len(window)-1] - window[0]}
	if math.Abs(res.DeltaUSD) > w.Threshold {
		logit -= (res.DeltaUSD / w.Norm) * w.Gamma
		res.Boosted = true
	}
	res.P = stats.Clamp(stats.Sigmoid(logit), s.cfg.FlowClampMin, s.cfg.FlowClampMax)
	return res
}

// MomentumResult is the shared reference-asset momentum component.
type MomentumResult struct {
	P        float64 `json:"p"`
	Z        float64 `json:"z"`
	Fallback bool    `json:"fallback"`
}

// Momentum scores the reference asset's recent log returns. closes is oldest first.
func (s *Scorer) Momentum(closes []float64) MomentumResult {
	if len(closes) < s.cfg.MomentumDays+1 {
		return MomentumResult{P: Neutral, Fallback: true}
	}
	window := closes[len(closes)-(s.cfg.MomentumDays+1):]

	returns := stats.LogReturns(window)
	if len(returns) < s.cfg.MomentumMinReturns {
		return MomentumResult{P: Neutral, Fallback: true}
	}

	z := stats.ZScoreEps(stats.Mean(returns), stats.StdDev(returns), len(returns), s.cfg.Epsilon)
	p := stats.Clamp(stats.Sigmoid(s.cfg.MomentumSlope*z), s.cfg.MomentumClampMin, s.cfg.MomentumClampMax)
	return MomentumResult{P: p, Z: z}
}

// PricePosition locates the current price in the trailing log-price distribution.
type PricePosition struct {
	LogMean   float64
	LogStdDev float64
	Z         float64
	P         float64
	// Display-only band on log price.
	CILower float64
	CIUpper float64
}

// Position scores current against closes (any order).
func (s *Scorer) Position(closes []float64, current float64) PricePosition {
	logs := stats.LogPrices(closes)
	if len(logs) == 0 || current <= 0 {
		return PricePosition{P: Neutral}
	}

	mu := stats.Mean(logs)
	sigma := stats.StdDev(logs)
	z := (math.Log(current) - mu) / (sigma + s.cfg.Epsilon)

	return PricePosition{
		LogMean:   mu,
		LogStdDev: sigma,
		Z:         z,
		P:         stats.Clamp(stats.Sigmoid(s.cfg.PriceSlope*z), s.cfg.PriceClampMin, s.cfg.PriceClampMax),
		CILower:   mu - s.cfg.BandZ*sigma,
		CIUpper:   mu + s.cfg.BandZ*sigma,
	}
}

// Combine blends the three components into the probability of a rise.
func (s *Scorer) Combine(flow, momentum, price float64) float64 {
	return s.cfg.WeightFlow*flow + s.cfg.WeightMomentum*momentum + s.cfg.WeightPrice*price
}

// Formula describes the combiner for run diagnostics.
func (s *Scorer) Formula() string {
	return fmt.Sprintf("p_rise = %.2f*p_mcap + %.2f*p_momentum + %.2f*p_price",
		s.cfg.WeightFlow, s.cfg.WeightMomentum, s.cfg.WeightPrice)
}

// Decide maps p_rise to a direction and the percentage of that direction.
// The percentage is never the probability of a rise when direction is fall.
func Decide(pRise float64) (models.Direction, float64) {
	if pRise >= 0.5 {
		return models.DirectionRise, pRise * 100
	}
	return models.DirectionFall, (1 - pRise) * 100
}
