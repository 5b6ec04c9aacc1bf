package liquidation

import "math/rand"

// NoiseSource returns a multiplicative jitter factor applied to each
// estimated liquidation level. Injected as a dependency so tests can pin
// the estimate down with NoNoise.
type NoiseSource func() float64

// Jitter returns a noise source producing factors in [0.85, 1.15] from rng.
// Pass nil to use the shared global source.
func Jitter(rng *rand.Rand) NoiseSource {
	f64 := rand.Float64
	if rng != nil {
		f64 = rng.Float64
	}
	return func() float64 {
		return 0.85 + f64()*0.30
	}
}

// NoNoise is the identity source: estimates become fully deterministic.
func NoNoise() float64 { return 1 }
