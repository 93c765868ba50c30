package cov

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParameter is returned when a shape parameter is outside
// of its family domain.
var ErrInvalidParameter = errors.New("cov: invalid parameter")

const (
	// MaxCorrelation is the largest absolute value of AR1 and
	// compound symmetry correlations. The limiting matrix at
	// |phi| = 1 is singular.
	MaxCorrelation = 0.999
	// CorrelationMargin is the distance kept from the compound
	// symmetry lower limit -1/(p-1), where the matrix has a zero
	// eigenvalue.
	CorrelationMargin = 1e-3
	// MinScale is the lower box constraint of standard deviations
	// and of the Cholesky factor diagonal.
	MinScale = 1e-8
)

// MaxScale returns the upper box constraint of standard deviations
// for the block size p. Larger scales overflow the squared entries
// of the dense matrix.
func MaxScale(p int) float64 {
	return math.Sqrt(math.MaxFloat64) / float64(p)
}

// CSLower returns the smallest allowed compound symmetry correlation
// for the block size p.
func CSLower(p int) float64 {
	if p <= 2 {
		return -MaxCorrelation
	}
	return -1/float64(p-1) + CorrelationMargin
}

// Validate checks the parameter vector against the shape domain.
// Errors wrap ErrInvalidParameter.
func Validate(s Shape, par []float64) error {
	if !s.Family.Valid() || s.P < 1 {
		return fmt.Errorf("%w: bad shape %v", ErrInvalidParameter, s)
	}
	if len(par) != s.NParams() {
		return fmt.Errorf("%w: %v expects %d parameters, got %d", ErrInvalidParameter, s, s.NParams(), len(par))
	}
	names := s.ParamNames()
	for i, v := range par {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v is not finite", ErrInvalidParameter, names[i], v)
		}
	}
	for i := 0; i < s.NScales(); i++ {
		if par[i] <= 0 || par[i] > MaxScale(s.P) {
			return fmt.Errorf("%w: %s=%v should be in (0, %v]", ErrInvalidParameter, names[i], par[i], MaxScale(s.P))
		}
	}
	last := len(par) - 1
	switch s.Family {
	case AR1Homogeneous, AR1Heterogeneous:
		if math.Abs(par[last]) > MaxCorrelation {
			return fmt.Errorf("%w: phi=%v should be in [%v, %v]", ErrInvalidParameter, par[last], -MaxCorrelation, MaxCorrelation)
		}
	case CompoundSymmetryHomogeneous, CompoundSymmetryHeterogeneous:
		if par[last] < CSLower(s.P) || par[last] > MaxCorrelation {
			return fmt.Errorf("%w: rho=%v should be in [%v, %v] for p=%d", ErrInvalidParameter, par[last], CSLower(s.P), MaxCorrelation, s.P)
		}
	case Unstructured:
		i := 0
		for c := 0; c < s.P; c++ {
			if par[i] <= 0 {
				return fmt.Errorf("%w: %s=%v should be > 0", ErrInvalidParameter, names[i], par[i])
			}
			i += s.P - c
		}
	}
	return nil
}

// Bounds returns the box constraints of the shape parameters. Every
// point inside the box passes Validate.
func Bounds(s Shape) (lower, upper []float64) {
	k := s.NParams()
	lower = make([]float64, k)
	upper = make([]float64, k)
	for i := range lower {
		lower[i] = math.Inf(-1)
		upper[i] = math.Inf(+1)
	}
	for i := 0; i < s.NScales(); i++ {
		lower[i] = MinScale
		upper[i] = MaxScale(s.P)
	}
	last := k - 1
	switch s.Family {
	case AR1Homogeneous, AR1Heterogeneous:
		lower[last] = -MaxCorrelation
		upper[last] = MaxCorrelation
	case CompoundSymmetryHomogeneous, CompoundSymmetryHeterogeneous:
		lower[last] = CSLower(s.P)
		upper[last] = MaxCorrelation
	case Unstructured:
		i := 0
		for c := 0; c < s.P; c++ {
			lower[i] = MinScale
			i += s.P - c
		}
	}
	return
}
