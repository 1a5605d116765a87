package scoring

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinOdds/internal/domain/models"
	"CoinOdds/pkg/config"
)

func defaultScoring() config.Scoring {
	return config.Default().Scoring
}

// capsFromSteps builds a market-cap series from a base and signed daily
// changes in billions of USD.
func capsFromSteps(base float64, stepsB ...float64) []float64 {
	caps := []float64{base}
	for _, s := range stepsB {
		caps = append(caps, caps[len(caps)-1]+s*1e9)
	}
	return caps
}

func positive(us []uint16) []float64 {
	out := make([]float64, len(us))
	for i, u := range us {
		out[i] = 1 + float64(u)/100
	}
	return out
}

func TestDefaultsMatchPolicy(t *testing.T) {
	cfg := defaultScoring()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Flow10.Days)
	assert.Equal(t, 8, cfg.Flow10.MinReturns)
	assert.Equal(t, 1.8, cfg.Flow10.Slope)
	assert.Equal(t, 100e9, cfg.Flow10.Threshold)
	assert.Equal(t, 40, cfg.Flow40.Days)
	assert.Equal(t, 30, cfg.Flow40.MinReturns)
	assert.Equal(t, 0.6, cfg.Flow40.Gamma)
	assert.Equal(t, 1.6, cfg.MomentumSlope)
	assert.Equal(t, 1e-10, cfg.Epsilon)
}

func TestMarketFlowOutflowBoost(t *testing.T) {
	// Net decline of $150B over 10 days with noise, so the z-score stays finite.
	caps := capsFromSteps(2500e9, 60, -80, 50, -70, 40, -60, 30, -50, 20, -90)
	require.Len(t, caps, 11)

	cfg := defaultScoring()
	boosted := New(cfg).MarketFlow(caps)

	cfg.Flow10.Threshold = math.Inf(1)
	plain := New(cfg).MarketFlow(caps)

	assert.True(t, boosted.P10.Boosted)
	assert.False(t, plain.P10.Boosted)
	assert.InDelta(t, -150e9, boosted.P10.DeltaUSD, 1)
	assert.InDelta(t, 0.8226, plain.P10.P, 1e-3)
	assert.InDelta(t, 0.8942, boosted.P10.P, 1e-3)
	assert.Greater(t, boosted.P10.P, plain.P10.P)
	assert.Greater(t, boosted.P, plain.P)

	// only 11 points: the 40-day window is neutral
	assert.True(t, boosted.P40.Fallback)
	assert.Equal(t, Neutral, boosted.P40.P)
}

func TestMarketFlowRisingMarketIsBearish(t *testing.T) {
	caps := capsFromSteps(2500e9, 10, 12, 8, 11, 9, 10, 13, 7, 10, 9)
	res := New(defaultScoring()).MarketFlow(caps)
	assert.Less(t, res.P10.P, 0.5)
	assert.False(t, res.P10.Boosted)
}

func TestMarketFlowFallbacks(t *testing.T) {
	s := New(defaultScoring())

	short := capsFromSteps(2500e9, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	res := s.MarketFlow(short)
	assert.True(t, res.P10.Fallback)
	assert.Equal(t, Neutral, res.P10.P)
	assert.Equal(t, Neutral, res.P)

	// two zero points remove four returns, leaving 6 of the 8 required
	gappy := capsFromSteps(2500e9, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	gappy[2], gappy[5] = 0, 0
	res = s.MarketFlow(gappy)
	assert.True(t, res.P10.Fallback)
}

func TestMarketFlowUsesBothWindows(t *testing.T) {
	steps := make([]float64, 40)
	for i := range steps {
		if i%2 == 0 {
			steps[i] = -9
		} else {
			steps[i] = 6
		}
	}
	res := New(defaultScoring()).MarketFlow(capsFromSteps(3000e9, steps...))

	assert.False(t, res.P10.Fallback)
	assert.False(t, res.P40.Fallback)
	want := (0.35*res.P10.P + 0.20*res.P40.P) / 0.55
	assert.InDelta(t, want, res.P, 1e-12)
}

func TestMomentum(t *testing.T) {
	s := New(defaultScoring())

	res := s.Momentum([]float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109})
	assert.True(t, res.Fallback)
	assert.Equal(t, Neutral, res.P)

	rising := []float64{100, 102, 101, 104, 106, 105, 108, 110, 109, 112, 115}
	res = s.Momentum(rising)
	assert.False(t, res.Fallback)
	assert.Greater(t, res.P, 0.5)
	assert.LessOrEqual(t, res.P, 0.90)
}

func TestPricePosition(t *testing.T) {
	s := New(defaultScoring())
	closes := []float64{100, 110, 121, 90, 95, 105}

	at := s.Position(closes, math.Exp(s.Position(closes, 1).LogMean))
	assert.InDelta(t, 0, at.Z, 1e-9)
	assert.InDelta(t, 0.5, at.P, 1e-9)
	assert.InDelta(t, at.LogMean-1.96*at.LogStdDev, at.CILower, 1e-12)
	assert.InDelta(t, at.LogMean+1.96*at.LogStdDev, at.CIUpper, 1e-12)

	high := s.Position(closes, 500)
	assert.Equal(t, 0.95, high.P)
	low := s.Position(closes, 1)
	assert.Equal(t, 0.05, low.P)

	// constant history: sigma is zero and epsilon keeps z finite
	flat := s.Position([]float64{50, 50, 50}, 51)
	assert.False(t, math.IsInf(flat.Z, 0))
	assert.Equal(t, 0.95, flat.P)

	assert.Equal(t, Neutral, s.Position(nil, 10).P)
}

func TestCombineAndFormula(t *testing.T) {
	s := New(defaultScoring())
	assert.InDelta(t, 0.5, s.Combine(0.5, 0.5, 0.5), 1e-12)
	assert.InDelta(t, 0.55*0.7+0.25*0.4+0.20*0.6, s.Combine(0.7, 0.4, 0.6), 1e-12)
	assert.Equal(t, "p_rise = 0.55*p_mcap + 0.25*p_momentum + 0.20*p_price", s.Formula())
}

func TestDecide(t *testing.T) {
	dir, pct := Decide(0.5)
	assert.Equal(t, models.DirectionRise, dir)
	assert.InDelta(t, 50, pct, 1e-9)

	dir, pct = Decide(0.31)
	assert.Equal(t, models.DirectionFall, dir)
	assert.InDelta(t, 69, pct, 1e-9)
}

func TestComponentsStayInClampRange(t *testing.T) {
	s := New(defaultScoring())

	prop := func(caps, closes []uint16, current uint16) bool {
		flow := s.MarketFlow(positive(caps))
		mom := s.Momentum(positive(closes))
		pos := s.Position(positive(closes), 1+float64(current)/100)
		inRange := func(p, lo, hi float64) bool { return p >= lo && p <= hi }
		return inRange(flow.P, 0.05, 0.95) &&
			inRange(flow.P10.P, 0.05, 0.95) &&
			inRange(flow.P40.P, 0.05, 0.95) &&
			inRange(mom.P, 0.10, 0.90) &&
			inRange(pos.P, 0.05, 0.95)
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 500}))
}

func TestDirectionMatchesPercentage(t *testing.T) {
	prop := func(u uint32) bool {
		p := float64(u) / math.MaxUint32
		dir, pct := Decide(p)
		if pct < 50 || pct > 100 {
			return false
		}
		if p >= 0.5 {
			return dir == models.DirectionRise && math.Abs(pct-p*100) < 1e-9
		}
		return dir == models.DirectionFall && math.Abs(pct-(1-p)*100) < 1e-9
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestLargerDeclineIsNotLessBullish(t *testing.T) {
	s := New(defaultScoring())

	// Scaling every point keeps the log returns and grows the dollar delta.
	prop := func(steps [10]int8, scale uint8) bool {
		stepsB := make([]float64, len(steps))
		for i, v := range steps {
			stepsB[i] = float64(v) * 5
		}
		a := capsFromSteps(10000e9, stepsB...)
		if a[len(a)-1]-a[0] >= 0 {
			return true
		}
		k := 1 + float64(scale)/50
		b := make([]float64, len(a))
		for i, v := range a {
			b[i] = v * k
		}
		return s.MarketFlow(b).P >= s.MarketFlow(a).P-1e-9
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 1000}))
}
