package fit

import (
	"fmt"
	"math"

	"bitbucket.org/Davydov/covfit/optimize"
)

// ScalePriors lists the names accepted by ScalePrior.
var ScalePriors = []string{"flat", "exponential", "gamma", "halfnormal"}

// ScalePrior returns a prior for standard deviations with the given
// mean. The flat prior is nil, so the parameters keep their default
// uniform priors, and so is an empty name.
func ScalePrior(name string, mean float64) (func(float64) float64, error) {
	if name == "" || name == "flat" {
		return nil, nil
	}
	if mean <= 0 {
		return nil, fmt.Errorf("prior mean should be positive, got %v", mean)
	}
	switch name {
	case "exponential":
		return optimize.ExponentialPrior(1/mean, false), nil
	case "gamma":
		// shape 2 vanishes at zero
		return optimize.GammaPrior(2, mean/2, false), nil
	case "halfnormal":
		sigma := mean * math.Sqrt(math.Pi/2)
		return optimize.ProductPrior(optimize.NormalPrior(0, sigma), halfLine), nil
	}
	return nil, fmt.Errorf("unknown prior: %s", name)
}

// halfLine folds a symmetric density onto the positive half line.
func halfLine(x float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	return math.Ln2
}
