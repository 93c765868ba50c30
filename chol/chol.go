// Package chol computes, packs and unpacks lower-triangular Cholesky
// factors of covariance matrices.
//
// Packed layout (PackingVersion 1): the p(p+1)/2 lower triangle
// entries enumerated column by column, for column c = 0..p-1 and row
// r = c..p-1 the entry L[r,c]. Consumers requiring another order
// apply their own permutation.
package chol

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// PackingVersion identifies the packed vector layout.
const PackingVersion = 1

var (
	// ErrNotPositiveDefinite is returned when a matrix cannot be
	// decomposed.
	ErrNotPositiveDefinite = errors.New("chol: matrix is not positive definite")
	// ErrBadLength is returned when a packed vector length does not
	// match the matrix size.
	ErrBadLength = errors.New("chol: bad packed vector length")
)

// Decompose returns the lower-triangular factor L with non-negative
// diagonal such that L·Lᵀ = a.
func Decompose(a mat.Symmetric) (*mat.TriDense, error) {
	n := a.SymmetricDim()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrNotPositiveDefinite)
	}
	var c mat.Cholesky
	if ok := c.Factorize(a); !ok {
		return nil, ErrNotPositiveDefinite
	}
	l := mat.NewTriDense(n, mat.Lower, nil)
	c.LTo(l)
	for i := 0; i < n; i++ {
		d := l.At(i, i)
		if !(d > 0) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("%w: pivot %d is %v", ErrNotPositiveDefinite, i, d)
		}
	}
	return l, nil
}

// Cross returns L·Lᵀ.
func Cross(l mat.Triangular) *mat.SymDense {
	n, _ := l.Triangle()
	s := mat.NewSymDense(n, nil)
	s.SymOuterK(1, l)
	return s
}

// AR1 returns the Cholesky factor of the AR1 covariance matrix with
// standard deviations sd and autocorrelation phi using the closed
// form row recurrence of the unit factor:
//
//	L[0,0] = 1, L[i,i] = sqrt(1-phi²), L[i,j] = phi·L[i-1,j] (j < i),
//
// rows are then scaled by sd.
func AR1(sd []float64, phi float64) (*mat.TriDense, error) {
	p := len(sd)
	if p == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrNotPositiveDefinite)
	}
	if !(math.Abs(phi) < 1) {
		return nil, fmt.Errorf("%w: phi=%v", ErrNotPositiveDefinite, phi)
	}
	for i, s := range sd {
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("%w: sd[%d]=%v", ErrNotPositiveDefinite, i, s)
		}
	}
	c := math.Sqrt(1 - phi*phi)
	l := mat.NewTriDense(p, mat.Lower, nil)
	l.SetTri(0, 0, 1)
	for i := 1; i < p; i++ {
		for j := 0; j < i; j++ {
			l.SetTri(i, j, phi*l.At(i-1, j))
		}
		l.SetTri(i, i, c)
	}
	for i := 0; i < p; i++ {
		for j := 0; j <= i; j++ {
			l.SetTri(i, j, l.At(i, j)*sd[i])
		}
	}
	return l, nil
}

// Kronecker returns the factor of A⊗B given the factors of A and B,
// L(A⊗B) = L(A)⊗L(B).
func Kronecker(a, b mat.Triangular) *mat.TriDense {
	na, _ := a.Triangle()
	nb, _ := b.Triangle()
	l := mat.NewTriDense(na*nb, mat.Lower, nil)
	for i := 0; i < na; i++ {
		for j := 0; j <= i; j++ {
			aij := a.At(i, j)
			if aij == 0 {
				continue
			}
			for k := 0; k < nb; k++ {
				for m := 0; m <= k; m++ {
					l.SetTri(i*nb+k, j*nb+m, aij*b.At(k, m))
				}
			}
		}
	}
	return l
}
