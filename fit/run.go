package fit

import (
	"errors"
	"fmt"
	"math"

	"bitbucket.org/Davydov/covfit/optimize"
	"bitbucket.org/Davydov/covfit/transform"
)

// Estimate is a point estimate with its standard error. SE is nil if
// it could not be computed.
type Estimate struct {
	Name  string   `json:"name"`
	Value float64  `json:"value"`
	SE    *float64 `json:"se,omitempty"`
}

// Summary stores the fit results.
type Summary struct {
	// NParams is the number of free parameters.
	NParams int `json:"nParams"`
	// LnL is the maximum log likelihood.
	LnL float64 `json:"lnL"`
	// Deviance is -2·LnL.
	Deviance float64 `json:"deviance"`
	// AIC is the Akaike information criterion.
	AIC float64 `json:"aic"`
	// Parameters are the shape parameter estimates.
	Parameters []Estimate `json:"parameters"`
	// Metrics are standard deviations and correlations.
	Metrics []Estimate `json:"metrics"`
	// InferenceError explains missing standard errors.
	InferenceError string `json:"inferenceError,omitempty"`
	// Optimizer is the optimizer summary.
	Optimizer optimize.Summary `json:"optimizer"`
}

// Run maximizes the likelihood and computes standard errors at the
// maximum. ErrDidNotConverge is returned together with the summary
// of the best point found.
func Run(p *Problem, opt optimize.Optimizer, iterations int) (*Summary, error) {
	opt.SetOptimizable(p)
	runErr := opt.Run(iterations)
	if runErr != nil && !errors.Is(runErr, optimize.ErrDidNotConverge) {
		return nil, runErr
	}
	if math.IsInf(opt.GetMaxL(), -1) || math.IsNaN(opt.GetMaxL()) {
		return nil, runErr
	}
	if err := p.SetValues(opt.GetMaxLParameters()); err != nil {
		return nil, err
	}

	par := p.Values()
	l := p.Likelihood()
	s := &Summary{
		NParams:   len(par),
		LnL:       l,
		Deviance:  -2 * l,
		AIC:       -2*l + 2*float64(len(par)),
		Optimizer: opt.Summary(),
	}
	names := p.mapping.ParamNames()
	for i, v := range par {
		s.Parameters = append(s.Parameters, Estimate{Name: names[i], Value: v})
	}
	metric := transform.CompositeMetric(p.mapping, transform.StdDevCorr)
	mv, err := metric(par)
	if err != nil {
		return nil, err
	}
	for i, name := range transform.CompositeStdDevCorrNames(p.mapping) {
		s.Metrics = append(s.Metrics, Estimate{Name: name, Value: mv[i]})
	}

	if runErr != nil {
		log.Warning("Optimization did not converge, skipping standard errors")
		s.InferenceError = runErr.Error()
		return s, runErr
	}
	if err := p.inference(s, metric); err != nil {
		log.Warningf("Cannot compute standard errors: %v", err)
		s.InferenceError = err.Error()
	}
	return s, nil
}

// inference fills in standard errors from the negative log
// likelihood Hessian.
func (p *Problem) inference(s *Summary, metric transform.Metric) error {
	par := p.Values()
	lower, upper := p.mapping.BoxConstraints()
	nll := func(x []float64) (float64, error) {
		d, err := p.objective(x)
		return d / 2, err
	}
	hess, err := transform.Hessian(nll, par, lower, upper)
	if err != nil {
		return fmt.Errorf("hessian: %w", err)
	}

	jp, err := transform.Jacobian(p.mapping, par, transform.Identity)
	if err != nil {
		return err
	}
	cp, err := transform.DeltaCovariance(jp, hess, transform.NegLogLik)
	if err != nil {
		return err
	}
	setSE(s.Parameters, transform.StdErrors(cp))

	jm, err := transform.Jacobian(p.mapping, par, metric)
	if err != nil {
		return err
	}
	cm, err := transform.DeltaCovariance(jm, hess, transform.NegLogLik)
	if err != nil {
		return err
	}
	setSE(s.Metrics, transform.StdErrors(cm))
	return nil
}

func setSE(est []Estimate, se []float64) {
	for i := range est {
		if !math.IsNaN(se[i]) {
			v := se[i]
			est[i].SE = &v
		}
	}
}
