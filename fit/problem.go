// Package fit maximizes the likelihood of a covariance model over
// the interpretable shape parameters and computes delta-method
// standard errors.
package fit

import (
	"fmt"
	"math"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/covfit/deviance"
	"bitbucket.org/Davydov/covfit/optimize"
	"bitbucket.org/Davydov/covfit/transform"
)

// log is the package logger.
var log = logging.MustGetLogger("fit")

// proposalSD is the standard deviation of MCMC proposals.
const proposalSD = 0.05

// Problem is an optimize.Optimizable over the parameters of a
// composite mapping. Likelihood is -deviance/2.
type Problem struct {
	mapping    *transform.Composite
	dev        deviance.Evaluator
	objective  func([]float64) (float64, error)
	penalized  func([]float64) float64
	par        []float64
	gen        optimize.FloatParameterGenerator
	parameters optimize.FloatParameters
	// scale tells which parameters are standard deviations
	scale      []bool
	scalePrior func(float64) float64
}

// NewProblem creates a new Problem starting at the mapping defaults.
func NewProblem(c *transform.Composite, dev deviance.Evaluator) (*Problem, error) {
	if c.NOut() != dev.NParams() {
		return nil, fmt.Errorf("mapping produces %d values, deviance expects %d", c.NOut(), dev.NParams())
	}
	obj := transform.Objective(c, dev.Deviance)
	p := &Problem{
		mapping:   c,
		dev:       dev,
		objective: obj,
		penalized: optimize.Penalized(obj),
		par:       c.DefaultParams(),
		gen:       optimize.BasicFloatParameterGenerator,
		scale:     scaleParameters(c),
	}
	p.setupParameters()
	return p, nil
}

// scaleParameters marks the leading scales of every shape block and
// the positive free parameters.
func scaleParameters(c *transform.Composite) []bool {
	scale := make([]bool, 0, c.NParams())
	for _, b := range c.Blocks() {
		n := 0
		if t, ok := b.(*transform.Transform); ok {
			n = t.Shape().NScales()
		}
		for i := 0; i < b.NParams(); i++ {
			scale = append(scale, i < n)
		}
	}
	for _, f := range c.Free() {
		scale = append(scale, f.Lower > 0)
	}
	return scale
}

// setupParameters creates the optimizer parameters bound to par.
func (p *Problem) setupParameters() {
	names := p.mapping.ParamNames()
	lower, upper := p.mapping.BoxConstraints()
	p.parameters = nil
	for i := range p.par {
		par := p.gen(&p.par[i], names[i])
		par.SetMin(lower[i])
		par.SetMax(upper[i])
		switch {
		case p.scale[i] && p.scalePrior != nil:
			par.SetPriorFunc(p.scalePrior)
		case math.IsInf(lower[i], 0) || math.IsInf(upper[i], 0):
			par.SetPriorFunc(optimize.FlatPrior())
		default:
			par.SetPriorFunc(optimize.UniformPrior(lower[i], upper[i], true, true))
		}
		if _, ok := par.(*optimize.AdaptiveParameter); !ok {
			par.SetProposalFunc(optimize.NormalProposal(proposalSD))
		}
		p.parameters.Append(par)
	}
}

// SetAdaptive switches to adaptive MCMC proposals.
func (p *Problem) SetAdaptive(as *optimize.AdaptiveSettings) {
	p.gen = as.ParameterGenerator
	p.setupParameters()
}

// SetScalePrior sets the prior of the standard deviations. Other
// parameters have uniform priors on their bounds.
func (p *Problem) SetScalePrior(f func(float64) float64) {
	p.scalePrior = f
	p.setupParameters()
}

// Mapping returns the parameter mapping.
func (p *Problem) Mapping() *transform.Composite {
	return p.mapping
}

// Objective returns the deviance as a function of the parameters.
func (p *Problem) Objective() func([]float64) (float64, error) {
	return p.objective
}

// Values returns a copy of the current parameter values.
func (p *Problem) Values() []float64 {
	return append([]float64(nil), p.par...)
}

// SetValues sets the parameter values.
func (p *Problem) SetValues(v []float64) error {
	return p.parameters.SetValues(v)
}

// GetFloatParameters returns the optimizer parameters.
func (p *Problem) GetFloatParameters() optimize.FloatParameters {
	return p.parameters
}

// Likelihood returns -deviance/2 or -Inf for rejected points.
func (p *Problem) Likelihood() float64 {
	d := p.penalized(p.par)
	if d == optimize.RejectedValue {
		return math.Inf(-1)
	}
	return -d / 2
}

// Copy creates a copy sharing the mapping and the data.
func (p *Problem) Copy() optimize.Optimizable {
	c := &Problem{
		mapping:    p.mapping,
		dev:        p.dev,
		objective:  p.objective,
		penalized:  p.penalized,
		par:        p.Values(),
		gen:        p.gen,
		scale:      p.scale,
		scalePrior: p.scalePrior,
	}
	c.setupParameters()
	return c
}
