package optimize

import (
	"fmt"
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// LBFGSB is a bounded limited memory BFGS optimizer. Gradient is
// computed by finite differences.
type LBFGSB struct {
	BaseOptimizer
	dH   float64
	grad []float64
	// margin is the distance kept from the parameter bounds.
	margin     float64
	iterations int
	stop       bool
}

// NewLBFGSB creates a new LBFGSB optimizer.
func NewLBFGSB() *LBFGSB {
	return &LBFGSB{
		BaseOptimizer: newBaseOptimizer("LBFGSB"),
		dH:            1e-6,
		margin:        1e-5,
	}
}

// Logger is called by the optimizer after every iteration.
func (l *LBFGSB) Logger(info *lbfgsb.OptimizationIterationInformation) {
	l.i = info.Iteration
	l.parameters.SetValues(info.X)
	l.l = -info.F
	l.PrintLine(l.parameters, l.l, l.repPeriod)
	if l.interrupted() {
		l.stop = true
	}
	if l.i >= l.iterations {
		log.Warningf("Iterations exceeded (%d)", l.iterations)
		l.stop = true
	}
}

// EvaluateFunction returns -Likelihood.
func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	if l.stop {
		return math.Inf(+1)
	}
	if !l.parameters.ValuesInRange(x) {
		return RejectedValue
	}
	l.parameters.SetValues(x)

	L := l.Likelihood()
	l.calls++
	if math.IsNaN(L) || math.IsInf(L, 0) {
		return RejectedValue
	}
	l.update(l.parameters, L)
	return -L
}

// EvaluateGradient returns the gradient of -Likelihood.
func (l *LBFGSB) EvaluateGradient(x []float64) []float64 {
	if l.grad == nil {
		l.grad = make([]float64, len(x))
	}
	l.gradient(x, l.grad, l.dH)
	return l.grad
}

// Run starts the optimization.
func (l *LBFGSB) Run(iterations int) error {
	l.iterations = iterations
	l.SaveStart()
	l.PrintHeader()
	bounds := make([][2]float64, len(l.parameters))
	for i, par := range l.parameters {
		bounds[i][0] = par.GetMin() + l.margin
		bounds[i][1] = par.GetMax() - l.margin
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-9)
	opt.SetGTolerance(1e-9)
	opt.SetBounds(bounds)
	opt.SetLogger(l.Logger)

	start := l.parameters.Values(nil)
	for i, b := range bounds {
		start[i] = math.Max(b[0], math.Min(b[1], start[i]))
	}
	_, exitStatus := opt.Minimize(l, start)
	log.Infof("Exit status: %v", exitStatus)
	log.Infof("Likelihood function calls: %v", l.calls)

	switch {
	case l.stop && l.i >= iterations:
		return l.finish(false, fmt.Errorf("%w: iteration limit %d", ErrDidNotConverge, iterations))
	case l.stop:
		return l.finish(false, errInterrupted)
	case exitStatus.Code == lbfgsb.SUCCESS:
		return l.finish(true, nil)
	case exitStatus.Code == lbfgsb.APPROXIMATE:
		log.Warningf("Approximate solution: %v", exitStatus.Message)
		return l.finish(true, nil)
	}
	return l.finish(false, fmt.Errorf("%w: %v", ErrDidNotConverge, exitStatus.Message))
}
