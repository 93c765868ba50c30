// Package optimize implements likelihood optimizers and a
// Metropolis-Hastings sampler over bounded float parameters.
package optimize

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/covfit/checkpoint"
)

// log is the package logger.
var log = logging.MustGetLogger("optimize")

// ErrDidNotConverge is returned when the iteration budget is
// exhausted before convergence or when no finite likelihood was
// found.
var ErrDidNotConverge = errors.New("optimize: did not converge")

// errInterrupted is returned when the run is stopped by a signal.
var errInterrupted = errors.New("optimize: interrupted by signal")

// RejectedValue is the function value minimizers see for rejected
// points. It is finite so that arithmetic on function values keeps
// working.
const RejectedValue = math.MaxFloat64 / 4

// Penalized turns failed evaluations of f into RejectedValue.
func Penalized(f func([]float64) (float64, error)) func([]float64) float64 {
	return func(x []float64) float64 {
		v, err := f(x)
		if err != nil {
			log.Debugf("Rejected point %v: %v", x, err)
			return RejectedValue
		}
		return v
	}
}

// Optimizable is something which has a likelihood and parameters.
type Optimizable interface {
	GetFloatParameters() FloatParameters
	Likelihood() float64
	Copy() Optimizable
}

// Optimizer maximizes the likelihood of an Optimizable.
type Optimizer interface {
	SetOptimizable(Optimizable)
	SetOutput(io.Writer)
	SetReportPeriod(period int)
	WatchSignals(...os.Signal)
	SetCheckpointIO(*checkpoint.IO)
	Run(iterations int) error
	GetMaxL() float64
	GetMaxLParameters() []float64
	Summary() Summary
	PrintResults()
}

// Summary stores optimizer run summary information.
type Summary struct {
	// Optimizer is the optimizer name.
	Optimizer string `json:"optimizer"`
	// StartLnL is the starting log likelihood.
	StartLnL float64 `json:"startLnL"`
	// MaxLnL is the maximum log likelihood.
	MaxLnL float64 `json:"maxLnL"`
	// MaxLParameters are the parameter values at the maximum.
	MaxLParameters map[string]float64 `json:"maxLParameters"`
	// Iterations is the number of iterations performed.
	Iterations int `json:"iterations"`
	// LikelihoodCalls is the number of likelihood evaluations.
	LikelihoodCalls int `json:"likelihoodCalls"`
	// Converged is false if the run stopped for other reasons.
	Converged bool `json:"converged"`
	// Time is the running time in seconds.
	Time float64 `json:"time"`
}

// BaseOptimizer contains the state common to all the optimizers.
type BaseOptimizer struct {
	Optimizable
	name       string
	parameters FloatParameters
	i          int
	calls      int
	l          float64
	startL     float64
	maxL       float64
	maxLPar    []float64
	repPeriod  int
	sig        chan os.Signal
	output     io.Writer
	cio        *checkpoint.IO
	startTime  time.Time
	deltaT     time.Duration
	converged  bool
	// Quiet disables trajectory output.
	Quiet bool
}

func newBaseOptimizer(name string) BaseOptimizer {
	return BaseOptimizer{
		name:      name,
		repPeriod: 10,
		maxL:      math.Inf(-1),
		output:    io.Discard,
	}
}

// SetOptimizable sets the object to optimize.
func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
	o.parameters = opt.GetFloatParameters()
}

// SetOutput sets the trajectory output.
func (o *BaseOptimizer) SetOutput(w io.Writer) {
	o.output = w
}

// WatchSignals stops the run when one of the signals is received.
func (o *BaseOptimizer) WatchSignals(sigs ...os.Signal) {
	o.sig = make(chan os.Signal, 1)
	signal.Notify(o.sig, sigs...)
}

// SetReportPeriod sets how often the trajectory is printed.
func (o *BaseOptimizer) SetReportPeriod(period int) {
	if period < 1 {
		period = 1
	}
	o.repPeriod = period
}

// SetCheckpointIO enables checkpointing.
func (o *BaseOptimizer) SetCheckpointIO(cio *checkpoint.IO) {
	o.cio = cio
}

// interrupted tells if a watched signal was received.
func (o *BaseOptimizer) interrupted() bool {
	select {
	case s := <-o.sig:
		log.Warningf("Received signal %v, exiting.", s)
		return true
	default:
		return false
	}
}

// SaveStart computes the starting likelihood.
func (o *BaseOptimizer) SaveStart() {
	o.startTime = time.Now()
	o.startL = o.Likelihood()
	o.calls++
	o.l = o.startL
	o.update(o.parameters, o.startL)
	log.Infof("Starting likelihood: %v", o.startL)
}

// update records a new likelihood value and the maximum.
func (o *BaseOptimizer) update(par FloatParameters, l float64) {
	if l > o.maxL || o.maxLPar == nil || math.IsNaN(o.maxL) {
		o.maxL = l
		o.maxLPar = par.Values(o.maxLPar)
	}
}

// PrintHeader prints the trajectory header.
func (o *BaseOptimizer) PrintHeader() {
	if !o.Quiet {
		fmt.Fprintf(o.output, "iteration\tlikelihood\t%s\n", o.parameters.NamesString())
	}
}

// PrintLine prints a trajectory line every period iterations and
// saves a checkpoint if the last one is old.
func (o *BaseOptimizer) PrintLine(par FloatParameters, l float64, period int) {
	if o.i%period != 0 {
		return
	}
	if !o.Quiet {
		fmt.Fprintf(o.output, "%d\t%f\t%s\n", o.i, l, par.ValuesString())
	}
	o.SaveCheckpoint(false)
}

// SaveCheckpoint saves the maximum likelihood point. Intermediate
// checkpoints are throttled.
func (o *BaseOptimizer) SaveCheckpoint(final bool) {
	if o.cio == nil || o.maxLPar == nil {
		return
	}
	if !final && !o.cio.Old() {
		return
	}
	names := o.parameters.Names(nil)
	data := &checkpoint.Data{
		Optimizer:  o.name,
		Parameters: make(map[string]float64, len(names)),
		Likelihood: o.maxL,
		Iter:       o.i,
		Final:      final,
	}
	for i, name := range names {
		data.Parameters[name] = o.maxLPar[i]
	}
	if err := o.cio.Save(data); err == nil {
		log.Debugf("Checkpoint saved at iteration %d", o.i)
	}
}

// finish sets the parameters to the maximum likelihood values and
// returns the run status.
func (o *BaseOptimizer) finish(converged bool, err error) error {
	o.deltaT = time.Since(o.startTime)
	if o.maxLPar != nil {
		if e := o.parameters.SetValues(o.maxLPar); e != nil {
			return e
		}
	}
	if math.IsInf(o.maxL, -1) || math.IsNaN(o.maxL) {
		converged = false
		if err == nil {
			err = fmt.Errorf("%w: no finite likelihood found", ErrDidNotConverge)
		}
	}
	o.converged = converged && err == nil
	o.SaveCheckpoint(true)
	log.Infof("Finished %s in %v", o.name, o.deltaT)
	log.Noticef("Maximum likelihood: %v", o.maxL)
	return err
}

// GetMaxL returns the maximum likelihood found.
func (o *BaseOptimizer) GetMaxL() float64 {
	return o.maxL
}

// GetMaxLParameters returns the maximum likelihood parameter
// values.
func (o *BaseOptimizer) GetMaxLParameters() []float64 {
	return o.maxLPar
}

// Summary returns the run summary.
func (o *BaseOptimizer) Summary() Summary {
	s := Summary{
		Optimizer:       o.name,
		StartLnL:        o.startL,
		MaxLnL:          o.maxL,
		MaxLParameters:  make(map[string]float64, len(o.parameters)),
		Iterations:      o.i,
		LikelihoodCalls: o.calls,
		Converged:       o.converged,
		Time:            o.deltaT.Seconds(),
	}
	for i, name := range o.parameters.Names(nil) {
		if o.maxLPar != nil {
			s.MaxLParameters[name] = o.maxLPar[i]
		}
	}
	return s
}

// PrintResults logs the maximum likelihood parameters.
func (o *BaseOptimizer) PrintResults() {
	log.Infof("%s: lnL=%v", o.name, o.maxL)
	for i, name := range o.parameters.Names(nil) {
		if o.maxLPar != nil {
			log.Infof("%s=%v", name, o.maxLPar[i])
		}
	}
}

// gradient computes the gradient of -Likelihood by central
// differences, one-sided near the bounds.
func (o *BaseOptimizer) gradient(x, grad []float64, dH float64) {
	for i := range x {
		no := o.Optimizable.Copy()
		par := no.GetFloatParameters()
		par.SetValues(x)

		lo, hi := x[i]-dH, x[i]+dH
		if !par[i].ValueInRange(lo) {
			lo = x[i]
		}
		if !par[i].ValueInRange(hi) {
			hi = x[i]
		}
		if lo == hi {
			grad[i] = 0
			continue
		}
		par[i].Set(lo)
		l1 := -no.Likelihood()
		par[i].Set(hi)
		l2 := -no.Likelihood()
		o.calls += 2
		grad[i] = (l2 - l1) / (hi - lo)
		if math.IsNaN(grad[i]) || math.IsInf(grad[i], 0) {
			grad[i] = 0
		}
	}
}
