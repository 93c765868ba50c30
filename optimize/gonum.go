package optimize

import (
	"errors"
	"fmt"
	"math"

	opt "gonum.org/v1/gonum/optimize"
)

// Gonum wraps unconstrained gonum optimizers. Points outside of the
// parameter bounds are rejected with a large function value.
type Gonum struct {
	BaseOptimizer
	method func() opt.Method
	dH     float64
}

// NewBFGS creates a gonum BFGS optimizer with a finite difference
// gradient.
func NewBFGS() *Gonum {
	return &Gonum{
		BaseOptimizer: newBaseOptimizer("BFGS"),
		method:        func() opt.Method { return &opt.BFGS{} },
		dH:            1e-6,
	}
}

// NewNelderMead creates a gonum Nelder-Mead optimizer.
func NewNelderMead() *Gonum {
	return &Gonum{
		BaseOptimizer: newBaseOptimizer("Nelder-Mead"),
		method:        func() opt.Method { return &opt.NelderMead{} },
	}
}

// Init is a part of the opt.Recorder interface.
func (g *Gonum) Init() error {
	return nil
}

// Record prints major iterations and stops on a signal.
func (g *Gonum) Record(l *opt.Location, op opt.Operation, s *opt.Stats) error {
	if op&opt.MajorIteration != 0 {
		g.i = s.MajorIterations
		g.l = -l.F
		g.PrintLine(g.parameters, g.l, g.repPeriod)
	}
	if g.interrupted() {
		return errInterrupted
	}
	return nil
}

func (g *Gonum) fn(x []float64) float64 {
	if !g.parameters.ValuesInRange(x) {
		return RejectedValue
	}
	g.parameters.SetValues(x)
	l := g.Likelihood()
	g.calls++
	if math.IsNaN(l) || math.IsInf(l, 0) {
		return RejectedValue
	}
	g.update(g.parameters, l)
	return -l
}

func (g *Gonum) grad(grad, x []float64) {
	if !g.parameters.ValuesInRange(x) {
		for i, par := range g.parameters {
			switch {
			case x[i] < par.GetMin():
				grad[i] = -1
			case x[i] > par.GetMax():
				grad[i] = 1
			default:
				grad[i] = 0
			}
		}
		return
	}
	g.gradient(x, grad, g.dH)
}

// Run starts the optimization.
func (g *Gonum) Run(iterations int) error {
	g.SaveStart()
	g.PrintHeader()

	problem := opt.Problem{Func: g.fn}
	if g.dH > 0 {
		problem.Grad = g.grad
	}
	settings := &opt.Settings{
		MajorIterations:   iterations,
		GradientThreshold: 1e-6,
		Recorder:          g,
	}

	result, err := opt.Minimize(problem, g.parameters.Values(nil), settings, g.method())
	if result != nil {
		g.i = result.MajorIterations
		log.Infof("Status: %v, function evaluations: %d", result.Status, result.FuncEvaluations)
	}
	switch {
	case result != nil && result.Status == opt.IterationLimit:
		log.Warningf("Iterations exceeded (%d)", iterations)
		return g.finish(false, fmt.Errorf("%w: iteration limit %d", ErrDidNotConverge, iterations))
	case errors.Is(err, errInterrupted):
		return g.finish(false, err)
	case err != nil:
		return g.finish(false, fmt.Errorf("%w: %v", ErrDidNotConverge, err))
	}
	return g.finish(true, nil)
}
