package transform

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/covfit/cov"
)

const (
	// RelStep is the relative finite difference step for
	// Jacobians.
	RelStep = 1e-5
	// MinStep is the absolute step floor for near zero parameters.
	MinStep = 1e-7
	// HessianRelStep is the relative step for Hessians.
	HessianRelStep = 1e-4
	// HessianMinStep is the absolute Hessian step floor.
	HessianMinStep = 1e-6
)

// steps returns per-parameter finite difference steps. Stencil points
// are at most reach steps away from par and are kept inside the box.
func steps(par, lower, upper []float64, rel, floor, reach float64) ([]float64, error) {
	if len(lower) != len(par) || len(upper) != len(par) {
		panic("transform: bounds length mismatch")
	}
	h := make([]float64, len(par))
	for i, x := range par {
		hi := math.Max(rel*math.Abs(x), floor)
		room := math.Min(x-lower[i], upper[i]-x)
		if !(room > 0) {
			return nil, fmt.Errorf("%w: parameter %d=%v is at its bound [%v, %v], derivative is undefined",
				cov.ErrInvalidParameter, i, x, lower[i], upper[i])
		}
		if reach*hi > room {
			hi = room / (2 * reach)
			log.Debugf("Step for parameter %d shrunk to %v near its bound", i, hi)
		}
		// make x+h exactly representable
		if e := (x + hi) - x; e > 0 {
			hi = e
		}
		h[i] = hi
	}
	return h, nil
}

// errOnce keeps the first error reported by concurrent evaluations.
type errOnce struct {
	mu  sync.Mutex
	err error
}

func (e *errOnce) set(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

// JacobianBox returns the k×m matrix of partial derivatives
// ∂metric_j/∂par_i computed by central differences with relative
// steps (absolute floor for near zero parameters). Steps are
// shrunk to stay inside [lower, upper].
func JacobianBox(metric Metric, par, lower, upper []float64) (*mat.Dense, error) {
	k := len(par)
	if k == 0 {
		return nil, fmt.Errorf("%w: empty parameter vector", cov.ErrInvalidParameter)
	}
	y0, err := metric(par)
	if err != nil {
		return nil, err
	}
	m := len(y0)
	if m == 0 {
		return nil, fmt.Errorf("metric has no values")
	}
	h, err := steps(par, lower, upper, RelStep, MinStep, 1)
	if err != nil {
		return nil, err
	}

	var ferr errOnce
	f := func(y, u []float64) {
		x := make([]float64, k)
		for i := range x {
			x[i] = par[i] + h[i]*u[i]
		}
		v, err := metric(x)
		if err == nil && len(v) != len(y) {
			err = fmt.Errorf("metric length changed from %d to %d", len(y), len(v))
		}
		if err != nil {
			ferr.set(err)
			for i := range y {
				y[i] = math.NaN()
			}
			return
		}
		copy(y, v)
	}

	// derivatives with respect to u, x = par + h∘u
	du := mat.NewDense(m, k, nil)
	fd.Jacobian(du, f, make([]float64, k), &fd.JacobianSettings{
		Formula:    fd.Central,
		Step:       1,
		Concurrent: true,
	})
	if ferr.err != nil {
		return nil, ferr.err
	}

	jac := mat.NewDense(k, m, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < m; j++ {
			jac.Set(i, j, du.At(j, i)/h[i])
		}
	}
	return jac, nil
}

// Jacobian returns the Jacobian of metric for the mapping parameters
// using the mapping box constraints. A nil metric stands for the
// mapping itself.
func Jacobian(mp Mapping, par []float64, metric Metric) (*mat.Dense, error) {
	if metric == nil {
		metric = Theta(mp)
	}
	lower, upper := mp.BoxConstraints()
	return JacobianBox(metric, par, lower, upper)
}

// Jacobian returns the Jacobian of metric (nil for the packed factor)
// with respect to the shape parameters.
func (t *Transform) Jacobian(par []float64, metric Metric) (*mat.Dense, error) {
	return Jacobian(t, par, metric)
}

// Hessian returns the central difference Hessian of f at par with
// relative steps kept inside [lower, upper].
func Hessian(f func([]float64) (float64, error), par, lower, upper []float64) (*mat.SymDense, error) {
	k := len(par)
	if k == 0 {
		return nil, fmt.Errorf("%w: empty parameter vector", cov.ErrInvalidParameter)
	}
	if _, err := f(par); err != nil {
		return nil, err
	}
	h, err := steps(par, lower, upper, HessianRelStep, HessianMinStep, 2)
	if err != nil {
		return nil, err
	}

	var ferr errOnce
	g := func(u []float64) float64 {
		x := make([]float64, k)
		for i := range x {
			x[i] = par[i] + h[i]*u[i]
		}
		v, err := f(x)
		if err != nil {
			ferr.set(err)
			return math.NaN()
		}
		return v
	}

	hu := mat.NewSymDense(k, nil)
	fd.Hessian(hu, g, make([]float64, k), &fd.Settings{
		Formula:    fd.Central,
		Step:       1,
		Concurrent: true,
	})
	if ferr.err != nil {
		return nil, ferr.err
	}

	hess := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			hess.SetSym(i, j, hu.At(i, j)/(h[i]*h[j]))
		}
	}
	return hess, nil
}
