package validation

import (
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinOdds/internal/domain/models"
	"CoinOdds/internal/services/scoring"
	"CoinOdds/pkg/config"
)

func newValidator(shadow bool) (*Validator, *scoring.Scorer) {
	cfg := config.Default()
	cfg.Validation.ShadowEnabled = shadow
	return New(cfg.Validation, cfg.Scoring), scoring.New(cfg.Scoring)
}

// primary mirrors what the calculator produces for one asset.
func primary(s *scoring.Scorer, symbol string, closes []float64, current, flow, momentum float64) AssetInput {
	pos := s.Position(closes, current)
	pRise := s.Combine(flow, momentum, pos.P)
	dir, pct := scoring.Decide(pRise)

	maxClose := 0.0
	minClose := closes[0]
	for _, c := range closes {
		if c > maxClose {
			maxClose = c
		}
		if c < minClose {
			minClose = c
		}
	}

	return AssetInput{
		Closes: closes,
		Result: models.ProbabilityResult{
			Symbol:                   symbol,
			Direction:                dir,
			Percentage:               pct,
			ProbabilityRise:          pRise,
			MarketFlowProbability:    flow,
			MomentumProbability:      momentum,
			PricePositionProbability: pos.P,
			CurrentPrice:             current,
			Min365:                   minClose,
			Max365:                   maxClose,
			ATHPrice:                 maxClose * 1.5,
			LogPriceMean:             pos.LogMean,
			LogPriceStdDev:           pos.LogStdDev,
		},
	}
}

func healthyBatch(s *scoring.Scorer) []AssetInput {
	return []AssetInput{
		primary(s, "BTC", []float64{60000, 62000, 58000, 65000, 70000}, 68000, 0.62, 0.55),
		primary(s, "ETH", []float64{3000, 3100, 2900, 2500, 2700}, 2400, 0.62, 0.55),
		primary(s, "SOL", []float64{100, 140, 120, 150, 160}, 150, 0.62, 0.55),
	}
}

func checks(r *Report) []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Check)
	}
	return out
}

func TestValidateHealthyBatchCommits(t *testing.T) {
	v, s := newValidator(true)
	r := v.Validate(healthyBatch(s))

	assert.True(t, r.OK(), r.Messages())
	assert.Equal(t, StageCommit, r.Final())
	assert.Equal(t, []Stage{StageCompute, StageShadowRecompute, StageCrossCheck, StageSmokeTest, StageCommit}, r.Stages)
}

func TestValidateSkipsShadowWhenDisabled(t *testing.T) {
	v, s := newValidator(false)
	batch := healthyBatch(s)
	batch[0].Result.PricePositionProbability += 0.2

	r := v.Validate(batch)
	assert.NotContains(t, r.Stages, StageShadowRecompute)
	assert.NotContains(t, checks(r), CheckShadow)
}

func TestShadowMismatchAborts(t *testing.T) {
	v, s := newValidator(true)
	batch := healthyBatch(s)
	batch[1].Result.PricePositionProbability += 0.01

	r := v.Validate(batch)
	require.False(t, r.OK())
	assert.Equal(t, StageAbort, r.Final())
	assert.Contains(t, checks(r), CheckShadow)
	assert.True(t, strings.HasPrefix(r.Messages()[0], "ETH: price position diverges"))
}

func TestZeroDispersionRejected(t *testing.T) {
	v, _ := newValidator(false)

	batch := make([]AssetInput, 0, 3)
	for i, sym := range []string{"BTC", "ETH", "SOL"} {
		batch = append(batch, AssetInput{Result: models.ProbabilityResult{
			Symbol:                sym,
			Direction:             models.DirectionRise,
			Percentage:            50,
			ProbabilityRise:       0.5,
			MarketFlowProbability: 0.5,
			MomentumProbability:   0.5,
			CurrentPrice:          10,
			Min365:                5,
			Max365:                20,
			ATHPrice:              30,
			LogPriceMean:          float64(i),
			LogPriceStdDev:        0.1,
		}})
	}

	r := v.Validate(batch)
	require.False(t, r.OK())
	assert.Equal(t, []string{CheckDispersion}, checks(r))
	assert.Contains(t, r.Messages()[0], "below the 1.00pp floor")
}

func TestSharedComponentsMustMatch(t *testing.T) {
	v, s := newValidator(false)
	batch := healthyBatch(s)
	batch[2] = primary(s, "SOL", []float64{100, 140, 120, 150, 160}, 150, 0.62+1e-6, 0.55)

	r := v.Validate(batch)
	assert.Equal(t, []string{CheckShared}, checks(r))
}

func TestIdenticalHistoryRejected(t *testing.T) {
	v, s := newValidator(false)
	closes := []float64{10, 11, 12, 13, 9}
	batch := []AssetInput{
		primary(s, "AAA", closes, 8, 0.62, 0.55),
		primary(s, "BBB", closes, 14, 0.62, 0.55),
	}

	r := v.Validate(batch)
	assert.Equal(t, []string{CheckDistinct}, checks(r))
}

func TestSmokeTest(t *testing.T) {
	v, s := newValidator(false)
	batch := healthyBatch(s)
	batch[0].Result.ATHPrice = batch[0].Result.Max365 - 1
	batch[1].Result.Direction = models.DirectionRise
	batch[1].Result.ProbabilityRise = 0.4
	batch[2].Result.CurrentPrice = 0

	r := v.Validate(batch)
	require.False(t, r.OK())
	msgs := strings.Join(r.Messages(), "\n")
	assert.Contains(t, msgs, "BTC: all-time high")
	assert.Contains(t, msgs, "ETH: direction rise inconsistent")
	assert.Contains(t, msgs, "SOL: current price")
}

func TestSingleAssetSkipsCrossCheck(t *testing.T) {
	v, s := newValidator(true)
	r := v.Validate(healthyBatch(s)[:1])
	assert.True(t, r.OK(), r.Messages())
}

func TestShadowIsDeterministic(t *testing.T) {
	v, s := newValidator(true)

	prop := func(raw []uint16, cur uint16, flowU, momU uint8) bool {
		if len(raw) == 0 {
			return true
		}
		closes := make([]float64, len(raw))
		for i, u := range raw {
			closes[i] = 1 + float64(u)/10
		}
		flow := 0.05 + 0.9*float64(flowU)/255
		mom := 0.10 + 0.8*float64(momU)/255
		in := primary(s, "X", closes, 1+float64(cur)/10, flow, mom)

		first := v.Shadow(in)
		second := v.Shadow(in)
		if first != second {
			return false
		}
		r := &Report{}
		v.checkShadow(r, in)
		return r.OK()
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 500}))
}
