package transform

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/covfit/chol"
	"bitbucket.org/Davydov/covfit/cov"
)

// Kronecker is the separable structure A⊗B, e.g. an unstructured
// covariance between outcomes crossed with AR1 in time. The overall
// scale belongs to A: the scales of B are fixed at 1 (for an
// unstructured B its first diagonal factor entry), so B only
// contributes its correlation parameters.
type Kronecker struct {
	a, b *Transform
	// indices of the free B parameters
	bFree []int
}

// NewKronecker creates a new Kronecker transform.
func NewKronecker(a, b *Transform) *Kronecker {
	fixed := b.Shape().NScales()
	if b.Shape().Family == cov.Unstructured {
		fixed = 1
	}
	k := &Kronecker{a: a, b: b}
	for i := fixed; i < b.NParams(); i++ {
		k.bFree = append(k.bFree, i)
	}
	return k
}

// Dim returns the size of the full matrix.
func (k *Kronecker) Dim() int {
	return k.a.Dim() * k.b.Dim()
}

// NParams returns the number of A parameters plus the free B
// parameters.
func (k *Kronecker) NParams() int {
	return k.a.NParams() + len(k.bFree)
}

// NOut returns the packed length of the full factor.
func (k *Kronecker) NOut() int {
	return chol.PackedLen(k.Dim())
}

// ParamNames prefixes parameter names with A. and B.
func (k *Kronecker) ParamNames() []string {
	names := make([]string, 0, k.NParams())
	for _, n := range k.a.ParamNames() {
		names = append(names, "A."+n)
	}
	bn := k.b.ParamNames()
	for _, i := range k.bFree {
		names = append(names, "B."+bn[i])
	}
	return names
}

// DefaultParams concatenates the factor defaults.
func (k *Kronecker) DefaultParams() []float64 {
	par := k.a.DefaultParams()
	bd := k.b.DefaultParams()
	for _, i := range k.bFree {
		par = append(par, bd[i])
	}
	return par
}

// BoxConstraints concatenates the factor bounds.
func (k *Kronecker) BoxConstraints() (lower, upper []float64) {
	lower, upper = k.a.BoxConstraints()
	lb, ub := k.b.BoxConstraints()
	for _, i := range k.bFree {
		lower = append(lower, lb[i])
		upper = append(upper, ub[i])
	}
	return lower, upper
}

// split returns the A parameters and the full B parameter vector
// with the fixed entries set to 1.
func (k *Kronecker) split(par []float64) ([]float64, []float64, error) {
	if len(par) != k.NParams() {
		return nil, nil, fmt.Errorf("%w: expected %d parameters, got %d", cov.ErrInvalidParameter, k.NParams(), len(par))
	}
	na := k.a.NParams()
	pb := k.b.DefaultParams()
	for j, i := range k.bFree {
		pb[i] = par[na+j]
	}
	return par[:na], pb, nil
}

// Factor returns L(A)⊗L(B).
func (k *Kronecker) Factor(par []float64) (*mat.TriDense, error) {
	pa, pb, err := k.split(par)
	if err != nil {
		return nil, err
	}
	la, err := k.a.Factor(pa)
	if err != nil {
		return nil, err
	}
	lb, err := k.b.Factor(pb)
	if err != nil {
		return nil, err
	}
	return chol.Kronecker(la, lb), nil
}

// Evaluate returns the packed factor of A⊗B.
func (k *Kronecker) Evaluate(par []float64) ([]float64, error) {
	l, err := k.Factor(par)
	if err != nil {
		return nil, err
	}
	theta := chol.Pack(l)
	if err := checkFinite(theta); err != nil {
		return nil, err
	}
	return theta, nil
}

// Covariance returns A⊗B.
func (k *Kronecker) Covariance(par []float64) (*mat.SymDense, error) {
	l, err := k.Factor(par)
	if err != nil {
		return nil, err
	}
	return chol.Cross(l), nil
}
