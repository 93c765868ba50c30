// Package transform maps covariance shape parameters to the packed
// Cholesky factor consumed by a mixed-model deviance function and
// provides the derivatives needed for delta-method inference.
package transform

import (
	"fmt"
	"math"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/covfit/chol"
	"bitbucket.org/Davydov/covfit/cov"
)

// log is the package logger.
var log = logging.MustGetLogger("transform")

// Mapping is a map from interpretable parameters to the internal
// (fitting scale) parameter vector.
type Mapping interface {
	// NParams returns the number of interpretable parameters.
	NParams() int
	// NOut returns the length of the internal vector.
	NOut() int
	// ParamNames returns the interpretable parameter names.
	ParamNames() []string
	// DefaultParams returns a valid starting point.
	DefaultParams() []float64
	// BoxConstraints returns the lower and upper parameter bounds.
	BoxConstraints() (lower, upper []float64)
	// Evaluate computes the internal vector.
	Evaluate(par []float64) ([]float64, error)
}

// CovarianceMapping is a Mapping which also provides the dense
// covariance matrix.
type CovarianceMapping interface {
	Mapping
	// Dim returns the covariance matrix size.
	Dim() int
	// Covariance returns the dense covariance matrix.
	Covariance(par []float64) (*mat.SymDense, error)
}

// Transform is the map shape parameters → packed Cholesky factor for
// a single covariance shape. It is immutable and safe for concurrent
// use.
type Transform struct {
	shape cov.Shape
}

// New creates a new Transform.
func New(s cov.Shape) (*Transform, error) {
	s, err := cov.NewShape(s.Family, s.P)
	if err != nil {
		return nil, err
	}
	return &Transform{shape: s}, nil
}

// Shape returns the covariance shape.
func (t *Transform) Shape() cov.Shape {
	return t.shape
}

// Dim returns the block size.
func (t *Transform) Dim() int {
	return t.shape.P
}

// NParams returns the number of shape parameters.
func (t *Transform) NParams() int {
	return t.shape.NParams()
}

// NOut returns the packed factor length p(p+1)/2.
func (t *Transform) NOut() int {
	return chol.PackedLen(t.shape.P)
}

// ParamNames returns the shape parameter names.
func (t *Transform) ParamNames() []string {
	return t.shape.ParamNames()
}

// DefaultParams returns unit scales and zero correlation.
func (t *Transform) DefaultParams() []float64 {
	return t.shape.DefaultParams()
}

// BoxConstraints returns the family specific bounds. An optimizer
// should never evaluate the transform outside of them.
func (t *Transform) BoxConstraints() (lower, upper []float64) {
	return cov.Bounds(t.shape)
}

// Covariance returns the dense covariance matrix.
func (t *Transform) Covariance(par []float64) (*mat.SymDense, error) {
	return cov.Build(t.shape, par)
}

// Factor returns the lower-triangular Cholesky factor. AR1 families
// use the closed form, the unstructured family unpacks the
// parameters, others decompose the dense matrix.
func (t *Transform) Factor(par []float64) (*mat.TriDense, error) {
	if err := cov.Validate(t.shape, par); err != nil {
		return nil, err
	}
	var (
		l   *mat.TriDense
		err error
	)
	switch t.shape.Family {
	case cov.AR1Homogeneous, cov.AR1Heterogeneous:
		sd := make([]float64, t.shape.P)
		for i := range sd {
			if t.shape.Family == cov.AR1Homogeneous {
				sd[i] = par[0]
			} else {
				sd[i] = par[i]
			}
		}
		l, err = chol.AR1(sd, par[len(par)-1])
	case cov.Unstructured:
		l, err = chol.Unpack(par, t.shape.P)
	default:
		var m *mat.SymDense
		m, err = cov.Build(t.shape, par)
		if err != nil {
			return nil, err
		}
		l, err = chol.Decompose(m)
	}
	if err != nil {
		return nil, fmt.Errorf("%v at %v: %w", t.shape, par, err)
	}
	return l, nil
}

// Evaluate returns the packed Cholesky factor. Non-finite results are
// reported as ErrInvalidParameter.
func (t *Transform) Evaluate(par []float64) ([]float64, error) {
	l, err := t.Factor(par)
	if err != nil {
		return nil, err
	}
	theta := chol.Pack(l)
	if err := checkFinite(theta); err != nil {
		return nil, fmt.Errorf("%v at %v: %w", t.shape, par, err)
	}
	return theta, nil
}

// checkFinite returns an error if any of the values is NaN or Inf.
func checkFinite(v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: non-finite output %v at %d", cov.ErrInvalidParameter, x, i)
		}
	}
	return nil
}
