package cov

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Build returns the dense p×p covariance matrix of the shape. For the
// unstructured family the parameters are the packed lower triangle
// of the Cholesky factor (column-major) and the result is L·Lᵀ.
func Build(s Shape, par []float64) (*mat.SymDense, error) {
	if err := Validate(s, par); err != nil {
		return nil, err
	}
	p := s.P
	m := mat.NewSymDense(p, nil)

	if s.Family == Unstructured {
		for i := 0; i < p; i++ {
			for j := 0; j <= i; j++ {
				var v float64
				for k := 0; k <= j; k++ {
					v += par[packedIndex(p, i, k)] * par[packedIndex(p, j, k)]
				}
				m.SetSym(i, j, v)
			}
		}
		return m, nil
	}

	sd := s.scales(par)
	var corr float64
	if s.HasCorrelation() {
		corr = par[len(par)-1]
	}
	for i := 0; i < p; i++ {
		m.SetSym(i, i, sd[i]*sd[i])
		for j := i + 1; j < p; j++ {
			var r float64
			switch s.Family {
			case AR1Homogeneous, AR1Heterogeneous:
				r = math.Pow(corr, float64(j-i))
			case CompoundSymmetryHomogeneous, CompoundSymmetryHeterogeneous:
				r = corr
			}
			m.SetSym(i, j, sd[i]*sd[j]*r)
		}
	}
	return m, nil
}

// Correlation returns the correlation matrix and the standard
// deviations of a covariance matrix.
func Correlation(m mat.Symmetric) (*mat.SymDense, []float64) {
	p := m.SymmetricDim()
	sd := make([]float64, p)
	for i := range sd {
		sd[i] = math.Sqrt(m.At(i, i))
	}
	r := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		r.SetSym(i, i, 1)
		for j := i + 1; j < p; j++ {
			r.SetSym(i, j, m.At(i, j)/(sd[i]*sd[j]))
		}
	}
	return r, sd
}

// packedIndex returns position of the lower triangle element (r, c)
// in the column-major packed vector of a p×p matrix.
func packedIndex(p, r, c int) int {
	return c*p - c*(c-1)/2 + (r - c)
}
