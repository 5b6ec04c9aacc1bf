// Package stats provides the numeric primitives underlying all risk
// calculations: moments, dispersion, percentiles, and co-movement.
//
// Every function accepts a plain float64 slice and returns a finite scalar.
// Degenerate inputs (empty, single sample, below the estimator's minimum
// sample size) return 0 rather than NaN or a panic — callers layer their
// own fallback behavior on top of that neutral default.
//
// Conventions:
//   - standardDeviation is the population form (divide by n)
//   - covariance/correlation use the sample form (divide by n-1)
//   - percentile uses linear interpolation between order statistics,
//     matching the "linear" mode of common statistics packages
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StandardDeviation returns the population standard deviation (divide by n).
// Returns 0 for fewer than 2 samples.
func StandardDeviation(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// DownsideDeviation returns the root-mean-square of (x - threshold) over
// values strictly below threshold. The divisor is the count of downside
// samples, so upside observations do not dilute the estimate.
// Returns 0 when no sample falls below threshold.
func DownsideDeviation(xs []float64, threshold float64) float64 {
	var sum float64
	var n int
	for _, x := range xs {
		if x < threshold {
			d := x - threshold
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// Percentile returns the p-th percentile (p in [0,100]) using linear
// interpolation between order statistics. VaR at exactly the 5th/1st
// percentile depends on interpolated (not nearest-rank) values.
// Returns 0 for an empty slice.
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Covariance returns the sample covariance (divide by n-1) of two equal
// length series. Returns 0 when the series differ in length or have fewer
// than 2 samples.
func Covariance(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0
	}
	mx := Mean(xs)
	my := Mean(ys)
	var sum float64
	for i := range xs {
		sum += (xs[i] - mx) * (ys[i] - my)
	}
	return sum / float64(len(xs)-1)
}

// Correlation returns the Pearson correlation coefficient
// (sample covariance over the product of sample deviations), guarded to 0
// when either series has zero dispersion.
func Correlation(xs, ys []float64) float64 {
	sx := sampleStd(xs)
	sy := sampleStd(ys)
	if sx == 0 || sy == 0 {
		return 0
	}
	return Covariance(xs, ys) / (sx * sy)
}

// Skewness returns the bias-corrected sample skewness:
//
//	g = n/((n-1)(n-2)) * Σ((x-mean)/s)³
//
// Requires at least 3 samples, otherwise returns 0. Also returns 0 for a
// constant series (zero dispersion).
func Skewness(xs []float64) float64 {
	n := float64(len(xs))
	if n < 3 {
		return 0
	}
	m := Mean(xs)
	s := sampleStd(xs)
	if s == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		z := (x - m) / s
		sum += z * z * z
	}
	return n / ((n - 1) * (n - 2)) * sum
}

// Kurtosis returns the bias-corrected excess kurtosis:
//
//	g = n(n+1)/((n-1)(n-2)(n-3)) * Σz⁴  -  3(n-1)²/((n-2)(n-3))
//
// Requires at least 4 samples, otherwise returns 0. Also returns 0 for a
// constant series.
func Kurtosis(xs []float64) float64 {
	n := float64(len(xs))
	if n < 4 {
		return 0
	}
	m := Mean(xs)
	s := sampleStd(xs)
	if s == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		z := (x - m) / s
		sum += z * z * z * z
	}
	term := n * (n + 1) / ((n - 1) * (n - 2) * (n - 3)) * sum
	correction := 3 * (n - 1) * (n - 1) / ((n - 2) * (n - 3))
	return term - correction
}

// sampleStd is the sample standard deviation (divide by n-1), used by the
// bias-corrected moment estimators.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
