package validation

import (
	"fmt"
	"math"

	"CoinOdds/internal/domain/models"
	"CoinOdds/pkg/config"
)

// Stage is a step of the per-run validation state machine.
type Stage string

const (
	StageCompute         Stage = "compute"
	StageShadowRecompute Stage = "shadow_recompute"
	StageCrossCheck      Stage = "cross_check"
	StageSmokeTest       Stage = "smoke_test"
	StageCommit          Stage = "commit"
	StageAbort           Stage = "abort"
)

// Check names, used as metric labels.
const (
	CheckShadow     = "shadow"
	CheckShared     = "shared_components"
	CheckDispersion = "dispersion"
	CheckDistinct   = "distinct_history"
	CheckSmoke      = "smoke"
)

type Failure struct {
	Stage   Stage  `json:"stage"`
	Check   string `json:"check"`
	Message string `json:"message"`
}

// AssetInput is what the primary computation saw and produced for one asset.
type AssetInput struct {
	Closes []float64
	Result models.ProbabilityResult
}

// ShadowResult is an independent recomputation of the per-asset values.
type ShadowResult struct {
	Symbol                   string
	LogPriceMean             float64
	LogPriceStdDev           float64
	PricePositionProbability float64
	ProbabilityRise          float64
}

// Report is the outcome of one validation pass.
type Report struct {
	Stages   []Stage
	Failures []Failure
}

func (r *Report) OK() bool { return len(r.Failures) == 0 }

// Final is StageCommit when every check passed.
func (r *Report) Final() Stage {
	if r.OK() {
		return StageCommit
	}
	return StageAbort
}

func (r *Report) Messages() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Message
	}
	return out
}

func (r *Report) fail(stage Stage, check, format string, args ...any) {
	r.Failures = append(r.Failures, Failure{Stage: stage, Check: check, Message: fmt.Sprintf(format, args...)})
}

type Validator struct {
	cfg     config.Validation
	scoring config.Scoring
}

func New(cfg config.Validation, scoring config.Scoring) *Validator {
	return &Validator{cfg: cfg, scoring: scoring}
}

// Validate runs every check and collects all failures; it never stops early.
func (v *Validator) Validate(batch []AssetInput) *Report {
	r := &Report{Stages: []Stage{StageCompute}}

	if v.cfg.ShadowEnabled {
		r.Stages = append(r.Stages, StageShadowRecompute)
		for _, in := range batch {
			v.checkShadow(r, in)
		}
	}

	results := make([]models.ProbabilityResult, len(batch))
	for i, in := range batch {
		results[i] = in.Result
	}

	r.Stages = append(r.Stages, StageCrossCheck)
	v.crossCheck(r, results)

	r.Stages = append(r.Stages, StageSmokeTest)
	v.smokeTest(r, results)

	r.Stages = append(r.Stages, r.Final())
	return r
}

func (v *Validator) checkShadow(r *Report, in AssetInput) {
	sh := v.Shadow(in)
	res := in.Result
	tol := v.cfg.ShadowTolerance

	if d := math.Abs(sh.PricePositionProbability - res.PricePositionProbability); d > tol {
		r.fail(StageShadowRecompute, CheckShadow,
			"%s: price position diverges (primary %.6f, shadow %.6f)",
			res.Symbol, res.PricePositionProbability, sh.PricePositionProbability)
	}
	if d := math.Abs(sh.ProbabilityRise - res.ProbabilityRise); d > tol {
		r.fail(StageShadowRecompute, CheckShadow,
			"%s: final probability diverges (primary %.6f, shadow %.6f)",
			res.Symbol, res.ProbabilityRise, sh.ProbabilityRise)
	}
}

// Shadow recomputes the price position and final probability from the raw
// closes with a one-pass (Welford) mean and variance.
func (v *Validator) Shadow(in AssetInput) ShadowResult {
	var n int
	var mean, m2 float64
	for _, c := range in.Closes {
		if c <= 0 {
			continue
		}
		x := math.Log(c)
		n++
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
	}

	sh := ShadowResult{Symbol: in.Result.Symbol, PricePositionProbability: 0.5}
	cur := in.Result.CurrentPrice
	if n > 0 && cur > 0 {
		sigma := math.Sqrt(m2 / float64(n))
		z := (math.Log(cur) - mean) / (sigma + v.scoring.Epsilon)
		p := 1 / (1 + math.Exp(-v.scoring.PriceSlope*z))
		sh.LogPriceMean = mean
		sh.LogPriceStdDev = sigma
		sh.PricePositionProbability = math.Max(v.scoring.PriceClampMin, math.Min(v.scoring.PriceClampMax, p))
	}

	sh.ProbabilityRise = v.scoring.WeightPrice*sh.PricePositionProbability +
		v.scoring.WeightMomentum*in.Result.MomentumProbability +
		v.scoring.WeightFlow*in.Result.MarketFlowProbability
	return sh
}

func (v *Validator) crossCheck(r *Report, results []models.ProbabilityResult) {
	if len(results) < 2 {
		return
	}

	ref := results[0]
	lo, hi := ref.ProbabilityRise, ref.ProbabilityRise
	for _, res := range results[1:] {
		if math.Abs(res.MarketFlowProbability-ref.MarketFlowProbability) > v.cfg.SharedTolerance {
			r.fail(StageCrossCheck, CheckShared, "%s: market flow %.12f differs from %s %.12f",
				res.Symbol, res.MarketFlowProbability, ref.Symbol, ref.MarketFlowProbability)
		}
		if math.Abs(res.MomentumProbability-ref.MomentumProbability) > v.cfg.SharedTolerance {
			r.fail(StageCrossCheck, CheckShared, "%s: momentum %.12f differs from %s %.12f",
				res.Symbol, res.MomentumProbability, ref.Symbol, ref.MomentumProbability)
		}
		lo = math.Min(lo, res.ProbabilityRise)
		hi = math.Max(hi, res.ProbabilityRise)
	}

	if spread := hi - lo; spread < v.cfg.MinDispersion {
		r.fail(StageCrossCheck, CheckDispersion, "probability spread %.2fpp is below the %.2fpp floor",
			spread*100, v.cfg.MinDispersion*100)
	}

	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			a, b := results[i], results[j]
			if a.LogPriceMean == b.LogPriceMean && a.LogPriceStdDev == b.LogPriceStdDev {
				r.fail(StageCrossCheck, CheckDistinct, "%s and %s have identical price history statistics", a.Symbol, b.Symbol)
			}
		}
	}
}

func (v *Validator) smokeTest(r *Report, results []models.ProbabilityResult) {
	for _, res := range results {
		if res.CurrentPrice <= 0 {
			r.fail(StageSmokeTest, CheckSmoke, "%s: current price %.8f is not positive", res.Symbol, res.CurrentPrice)
		}
		if res.Min365 <= 0 {
			r.fail(StageSmokeTest, CheckSmoke, "%s: 365d minimum %.8f is not positive", res.Symbol, res.Min365)
		}
		if res.ATHPrice <= 0 {
			r.fail(StageSmokeTest, CheckSmoke, "%s: all-time high %.8f is not positive", res.Symbol, res.ATHPrice)
		}
		if res.ATHPrice < res.Max365 {
			r.fail(StageSmokeTest, CheckSmoke, "%s: all-time high %.8f below 365d maximum %.8f", res.Symbol, res.ATHPrice, res.Max365)
		}

		want := models.DirectionFall
		if res.ProbabilityRise >= 0.5 {
			want = models.DirectionRise
		}
		if res.Direction != want {
			r.fail(StageSmokeTest, CheckSmoke, "%s: direction %s inconsistent with p_rise %.4f", res.Symbol, res.Direction, res.ProbabilityRise)
		}
		if res.Percentage < 50 || res.Percentage > 100 {
			r.fail(StageSmokeTest, CheckSmoke, "%s: percentage %.2f outside [50, 100]", res.Symbol, res.Percentage)
		}
	}
}
