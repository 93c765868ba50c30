package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/covfit/chol"
)

// HessianScale tells which objective a Hessian was computed for.
type HessianScale int

const (
	// NegLogLik is the Hessian of -log L.
	NegLogLik HessianScale = iota
	// Deviance is the Hessian of -2 log L. Its inverse is half the
	// covariance of the estimates.
	Deviance
)

// factor returns the multiplier turning the inverse Hessian into a
// covariance.
func (s HessianScale) factor() float64 {
	switch s {
	case NegLogLik:
		return 1
	case Deviance:
		return 2
	}
	panic("transform: unknown Hessian scale")
}

// String returns the scale name.
func (s HessianScale) String() string {
	switch s {
	case NegLogLik:
		return "negloglik"
	case Deviance:
		return "deviance"
	}
	return fmt.Sprintf("HessianScale(%d)", int(s))
}

// PullbackHessian returns J·H·Jᵀ, the Hessian with respect to the
// interpretable parameters given the k×n Jacobian J of the internal
// parameters and the n×n Hessian H with respect to the internal
// parameters. This is exact only at a stationary point.
func PullbackHessian(jac mat.Matrix, hess mat.Symmetric) *mat.SymDense {
	k, n := jac.Dims()
	if hess.SymmetricDim() != n {
		panic("transform: Jacobian and Hessian dimension mismatch")
	}
	var jh, jhj mat.Dense
	jh.Mul(jac, hess)
	jhj.Mul(&jh, jac.T())
	return symmetrize(&jhj, k)
}

// DeltaCovariance returns the delta method covariance c·Jᵀ·H⁻¹·J of
// m metrics given the k×m Jacobian J of the metrics with respect to
// the parameters and the k×k Hessian H with respect to the same
// parameters. c is 1 for NegLogLik and 2 for Deviance Hessians.
func DeltaCovariance(jac mat.Matrix, hess mat.Symmetric, scale HessianScale) (*mat.SymDense, error) {
	k, m := jac.Dims()
	if hess.SymmetricDim() != k {
		panic("transform: Jacobian and Hessian dimension mismatch")
	}
	var c mat.Cholesky
	if ok := c.Factorize(hess); !ok {
		return nil, fmt.Errorf("%w: Hessian", chol.ErrNotPositiveDefinite)
	}
	var hinv mat.SymDense
	if err := c.InverseTo(&hinv); err != nil {
		return nil, fmt.Errorf("%w: Hessian: %v", chol.ErrNotPositiveDefinite, err)
	}
	var tmp, out mat.Dense
	tmp.Mul(&hinv, jac)
	out.Mul(jac.T(), &tmp)
	out.Scale(scale.factor(), &out)
	return symmetrize(&out, m), nil
}

// StdErrors returns square roots of the covariance diagonal. Negative
// variances produce NaN.
func StdErrors(cov mat.Symmetric) []float64 {
	n := cov.SymmetricDim()
	se := make([]float64, n)
	for i := range se {
		se[i] = math.Sqrt(cov.At(i, i))
	}
	return se
}

func symmetrize(a mat.Matrix, n int) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, (a.At(i, j)+a.At(j, i))/2)
		}
	}
	return s
}
