package transform

import (
	"fmt"
	"math"
)

// DevianceFunc evaluates a deviance given the internal vector.
type DevianceFunc func(x []float64) (float64, error)

// Objective composes the mapping with a deviance function. Any
// failure of either is returned as an error, non-finite deviance
// values included.
func Objective(m Mapping, dev DevianceFunc) func(par []float64) (float64, error) {
	return func(par []float64) (float64, error) {
		x, err := m.Evaluate(par)
		if err != nil {
			return 0, err
		}
		d, err := dev(x)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return 0, fmt.Errorf("non-finite deviance %v", d)
		}
		return d, nil
	}
}
