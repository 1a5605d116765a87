package stats

import "math"

// Epsilon guards divisions by a zero standard deviation (constant series).
const Epsilon = 1e-10

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation of xs, or 0 for an empty slice.
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	sum2 := 0.0
	for _, x := range xs {
		d := x - m
		sum2 += d * d
	}
	return math.Sqrt(sum2 / float64(len(xs)))
}

// LogReturns computes r_i = ln(p_i / p_{i-1}) for i >= 1.
// Pairs where either price is non-positive are skipped, so the result may be
// shorter than len(prices)-1.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// LogPrices maps each positive price to its natural log; non-positive prices are dropped.
func LogPrices(prices []float64) []float64 {
	out := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p <= 0 {
			continue
		}
		out = append(out, math.Log(p))
	}
	return out
}

// ZScore scales the mean/sigma ratio by sqrt(n), inflating the score for
// larger samples.
func ZScore(mu, sigma float64, n int) float64 {
	return ZScoreEps(mu, sigma, n, Epsilon)
}

// ZScoreEps is ZScore with an explicit zero-sigma guard.
func ZScoreEps(mu, sigma float64, n int, eps float64) float64 {
	if n <= 0 {
		return 0
	}
	return (mu / (sigma + eps)) * math.Sqrt(float64(n))
}

// NormalCDF approximates the standard normal CDF (Abramowitz & Stegun 26.2.17,
// absolute error below 7.5e-8).
func NormalCDF(x float64) float64 {
	const (
		p  = 0.2316419
		b1 = 0.319381530
		b2 = -0.356563782
		b3 = 1.781477937
		b4 = -1.821255978
		b5 = 1.330274429
	)
	ax := math.Abs(x)
	t := 1 / (1 + p*ax)
	pdf := math.Exp(-ax*ax/2) / math.Sqrt(2*math.Pi)
	poly := t * (b1 + t*(b2+t*(b3+t*(b4+t*b5))))
	upper := pdf * poly
	if x >= 0 {
		return 1 - upper
	}
	return upper
}

// Sigmoid is the logistic function 1/(1+e^-x).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MinMax returns the smallest and largest values of xs and their indexes.
// All results are zero for an empty slice.
func MinMax(xs []float64) (minV float64, minIdx int, maxV float64, maxIdx int) {
	if len(xs) == 0 {
		return 0, 0, 0, 0
	}
	minV, maxV = xs[0], xs[0]
	for i, x := range xs {
		if x < minV {
			minV, minIdx = x, i
		}
		if x > maxV {
			maxV, maxIdx = x, i
		}
	}
	return minV, minIdx, maxV, maxIdx
}
