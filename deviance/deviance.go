// Package deviance provides a reference Gaussian marginal deviance
// for balanced grouped data. It consumes the packed Cholesky factor
// produced by the transform package.
package deviance

import (
	"fmt"
	"math"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/covfit/chol"
)

// log is the package logger.
var log = logging.MustGetLogger("deviance")

var log2Pi = math.Log(2 * math.Pi)

// Evaluator computes -2 log L for an internal parameter vector.
type Evaluator interface {
	// NParams returns the expected internal vector length.
	NParams() int
	// Deviance returns -2 log L.
	Deviance(x []float64) (float64, error)
}

// Gaussian is the model y_g ~ N(0, L·Lᵀ + s²·I) for every row y_g of
// the data matrix. The internal vector is the packed factor L
// optionally followed by the residual standard deviation s.
type Gaussian struct {
	y        *mat.Dense
	residual bool
}

// NewGaussian creates a new Gaussian evaluator for the n×p data
// matrix.
func NewGaussian(y *mat.Dense, residual bool) *Gaussian {
	if n, _ := y.Dims(); n == 0 {
		panic("deviance: empty data")
	}
	return &Gaussian{y: y, residual: residual}
}

// Dims returns the number of groups and the group size.
func (g *Gaussian) Dims() (n, p int) {
	return g.y.Dims()
}

// Residual tells if the model has a residual standard deviation.
func (g *Gaussian) Residual() bool {
	return g.residual
}

// NParams returns p(p+1)/2, plus one with a residual.
func (g *Gaussian) NParams() int {
	_, p := g.y.Dims()
	n := chol.PackedLen(p)
	if g.residual {
		n++
	}
	return n
}

// Covariance returns the marginal covariance V.
func (g *Gaussian) Covariance(x []float64) (*mat.SymDense, error) {
	if len(x) != g.NParams() {
		return nil, fmt.Errorf("%w: expected %d values, got %d", chol.ErrBadLength, g.NParams(), len(x))
	}
	_, p := g.y.Dims()
	l, err := chol.Unpack(x[:chol.PackedLen(p)], p)
	if err != nil {
		return nil, err
	}
	v := chol.Cross(l)
	if g.residual {
		s2 := x[len(x)-1] * x[len(x)-1]
		for i := 0; i < p; i++ {
			v.SetSym(i, i, v.At(i, i)+s2)
		}
	}
	return v, nil
}

// Deviance returns n·p·log 2π + n·log|V| + Σ y_gᵀ·V⁻¹·y_g.
func (g *Gaussian) Deviance(x []float64) (float64, error) {
	v, err := g.Covariance(x)
	if err != nil {
		return 0, err
	}
	l, err := chol.Decompose(v)
	if err != nil {
		return 0, err
	}
	n, p := g.y.Dims()

	logDet := 0.0
	for i := 0; i < p; i++ {
		logDet += 2 * math.Log(l.At(i, i))
	}

	t := l.RawTriangular()
	z := make([]float64, p)
	quad := 0.0
	for r := 0; r < n; r++ {
		mat.Row(z, r, g.y)
		// z = L⁻¹·y
		blas64.Trsv(blas.NoTrans, t, blas64.Vector{N: p, Data: z, Inc: 1})
		quad += blas64.Dot(blas64.Vector{N: p, Data: z, Inc: 1}, blas64.Vector{N: p, Data: z, Inc: 1})
	}

	d := float64(n*p)*log2Pi + float64(n)*logDet + quad
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("%w: deviance is %v", chol.ErrNotPositiveDefinite, d)
	}
	return d, nil
}

// ResidualMLE returns the closed form maximum likelihood estimate of
// the standard deviation for the sigma·I model, sqrt(Σy²/(n·p)).
func (g *Gaussian) ResidualMLE() float64 {
	n, p := g.y.Dims()
	ss := 0.0
	row := make([]float64, p)
	for r := 0; r < n; r++ {
		mat.Row(row, r, g.y)
		ss += floats.Dot(row, row)
	}
	s := math.Sqrt(ss / float64(n*p))
	log.Debugf("Residual MLE: %v", s)
	return s
}
