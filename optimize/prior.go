package optimize

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Priors are log densities.

// FlatPrior returns an improper flat prior.
func FlatPrior() func(float64) float64 {
	return func(float64) float64 {
		return 0
	}
}

// UniformPrior returns a uniform prior on the interval, optionally
// including its ends.
func UniformPrior(min, max float64, incmin, incmax bool) func(float64) float64 {
	if max <= min {
		panic("max <= min")
	}
	u := distuv.Uniform{Min: min, Max: max}
	return func(x float64) float64 {
		if (x == min && !incmin) || (x == max && !incmax) {
			return math.Inf(-1)
		}
		return u.LogProb(x)
	}
}

// GammaPrior returns a gamma prior with the given shape and scale.
func GammaPrior(shape, scale float64, inczero bool) func(float64) float64 {
	if shape <= 0 || scale <= 0 {
		panic("shape and scale of gamma distribution must be > 0")
	}
	g := distuv.Gamma{Alpha: shape, Beta: 1 / scale}
	return func(x float64) float64 {
		if x == 0 && inczero && shape == 1 {
			return -math.Log(scale)
		}
		return g.LogProb(x)
	}
}

// ExponentialPrior returns an exponential prior.
func ExponentialPrior(rate float64, inczero bool) func(float64) float64 {
	if rate <= 0 {
		panic("exponential rate should be > 0")
	}
	e := distuv.Exponential{Rate: rate}
	return func(x float64) float64 {
		if x == 0 && !inczero {
			return math.Inf(-1)
		}
		return e.LogProb(x)
	}
}

// NormalPrior returns a normal prior.
func NormalPrior(mu, sigma float64) func(float64) float64 {
	if sigma <= 0 {
		panic("normal sigma should be > 0")
	}
	return distuv.Normal{Mu: mu, Sigma: sigma}.LogProb
}

// ProductPrior returns the prior with the density f·g.
func ProductPrior(f, g func(float64) float64) func(float64) float64 {
	return func(x float64) float64 {
		return f(x) + g(x)
	}
}
