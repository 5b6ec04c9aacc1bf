package risk

import "math/rand"

// SyntheticReturns generates an n-day daily return series used as the
// documented fallback when a portfolio has no usable history. The series has
// a slight positive drift and, with 5% probability per day, a fat-tail jump.
// Callers that receive metrics derived from it see Source="synthetic".
//
// Pass a seeded *rand.Rand for reproducible output; nil uses the shared
// global source.
func SyntheticReturns(n int, rng *rand.Rand) []float64 {
	f64 := rand.Float64
	if rng != nil {
		f64 = rng.Float64
	}

	returns := make([]float64, n)
	for i := range returns {
		// Uniform around a +0.08%/day drift, ±2% band.
		r := (f64() - 0.48) * 0.04

		// Fat-tail jump: ±7.5% at the extremes.
		if f64() < 0.05 {
			r += (f64() - 0.5) * 0.15
		}
		returns[i] = r
	}
	return returns
}
