package optimize

import (
	"math/rand"
)

// Proposals take the current value and return a new one.

// Rand returns a uniform value in [0, 1]. Unlike rand.Float64 both
// ends are included.
func Rand() float64 {
	return float64(rand.Int63n(1<<53+1)) / (1 << 53)
}

// UniformGlobalProposal returns a value uniformly distributed in
// [min, max] regardless of the current value.
func UniformGlobalProposal(min, max float64) func(float64) float64 {
	if max <= min {
		panic("max <= min")
	}
	return func(float64) float64 {
		return min + Rand()*(max-min)
	}
}

// NormalProposal returns a normal random walk.
func NormalProposal(sd float64) func(float64) float64 {
	if sd <= 0 {
		panic("sd should be positive")
	}
	return func(x float64) float64 {
		return x + rand.NormFloat64()*sd
	}
}
