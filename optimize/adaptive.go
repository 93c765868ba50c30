package optimize

import (
	"errors"
	"math"
	"math/rand"
)

// minVariance keeps the adaptive proposal from collapsing onto a
// single value.
const minVariance = 1e-12

// AdaptiveSettings are settings for an adaptive MCMC.
type AdaptiveSettings struct {
	// WSize is the number of batch means used for the convergence
	// check.
	WSize int
	// K is the batch size. The proposal is updated after every
	// batch.
	K int
	// Skip is the number of iterations to skip before starting
	// adaptation.
	Skip int
	// MaxAdapt is the iteration after which adaptation stops.
	MaxAdapt int
	// MaxUpdate is the maximum number of updates for a parameter.
	MaxUpdate int
	// Epsilon is the relative spread of the batch means below which
	// the adaptation stops.
	Epsilon float64
	// C is the Robbins-Monro step size.
	C float64
	// Nu controls the Robbins-Monro step decay.
	Nu float64
	// Lambda is the proposal multiplier.
	Lambda float64
	// SD is the initial proposal standard deviation.
	SD float64
}

// NewAdaptiveSettings creates new settings for adaptive MCMC.
func NewAdaptiveSettings() *AdaptiveSettings {
	return &AdaptiveSettings{
		WSize:     10,
		K:         20,
		Skip:      500,
		MaxAdapt:  2000,
		MaxUpdate: 200,
		Epsilon:   5e-1,
		C:         1,
		Nu:        3,
		Lambda:    2.4,
		SD:        1e-2,
	}
}

// Validate checks the settings.
func (as *AdaptiveSettings) Validate() error {
	switch {
	case as.SD <= 0:
		return errors.New("adaptive SD should be positive")
	case as.K < 2:
		return errors.New("adaptive batch size should be >= 2")
	case as.WSize < 2:
		return errors.New("adaptive window size should be >= 2")
	}
	return nil
}

// ParameterGenerator generates an adaptive MCMC parameter. It
// panics on invalid settings.
func (as *AdaptiveSettings) ParameterGenerator(par *float64, name string) FloatParameter {
	a, err := NewAdaptiveParameter(par, name, as)
	if err != nil {
		panic(err)
	}
	return a
}

// AdaptiveParameter is a parameter whose normal proposal variance
// is learned from the chain using batch means and a Robbins-Monro
// update.
type AdaptiveParameter struct {
	*BasicFloatParameter
	*AdaptiveSettings

	// number of adaptation steps and of sign changes
	t     int
	signs int
	up    bool

	mean     float64
	variance float64

	// running batch moments
	bmean float64
	bm2   float64

	// ring of recent proposal means
	window []float64
	next   int

	converged bool
}

// NewAdaptiveParameter creates a new adaptive MCMC parameter.
func NewAdaptiveParameter(par *float64, name string, as *AdaptiveSettings) (*AdaptiveParameter, error) {
	if err := as.Validate(); err != nil {
		return nil, err
	}
	a := &AdaptiveParameter{
		BasicFloatParameter: NewBasicFloatParameter(par, name),
		AdaptiveSettings:    as,
		mean:                math.NaN(),
		variance:            as.SD * as.SD,
		window:              make([]float64, 0, as.WSize),
	}
	a.proposalFunc = a.propose
	return a, nil
}

// Accept is called if value is accepted.
func (a *AdaptiveParameter) Accept(iter int) {
	if iter >= a.Skip && iter < a.MaxAdapt {
		a.adapt()
	}
}

// Converged returns true if the adaptation has stopped.
func (a *AdaptiveParameter) Converged() bool {
	return a.converged
}

// ProposalSD returns the current proposal standard deviation.
func (a *AdaptiveParameter) ProposalSD() float64 {
	return math.Sqrt(a.variance) * a.Lambda
}

// gamma returns the Robbins-Monro step. The step shrinks every time
// the batch mean crosses the running mean.
func (a *AdaptiveParameter) gamma() float64 {
	up := a.bmean > a.mean
	if a.t > a.K && up != a.up {
		a.signs++
	}
	a.up = up
	return a.C / math.Pow(float64(a.signs+1), 1/math.Max(1, 1+a.Nu))
}

// adapt adds the current value to the batch and updates the proposal
// after a complete batch.
func (a *AdaptiveParameter) adapt() {
	if a.converged {
		return
	}
	x := *a.float64
	if math.IsNaN(a.mean) {
		a.mean = x
	}
	bi := a.t % a.K
	if a.t > 0 && bi == 0 {
		g := a.gamma()
		a.mean += g * (a.bmean - a.mean)
		a.variance += g * (a.bm2/float64(a.K-1) - a.variance)
		if a.variance < minVariance {
			a.variance = minVariance
		}
		a.checkConvergence()
		a.bmean, a.bm2 = 0, 0
	}

	d := x - a.bmean
	a.bmean += d / float64(bi+1)
	a.bm2 += d * (x - a.bmean)
	a.t++
}

// checkConvergence stops the adaptation once the recent means are
// stable relative to their magnitude or after MaxUpdate batches.
func (a *AdaptiveParameter) checkConvergence() {
	if len(a.window) < a.WSize {
		a.window = append(a.window, a.mean)
	} else {
		a.window[a.next] = a.mean
		a.next = (a.next + 1) % a.WSize
	}

	reason := ""
	if len(a.window) == a.WSize {
		var m, m2 float64
		for i, v := range a.window {
			d := v - m
			m += d / float64(i+1)
			m2 += d * (v - m)
		}
		sd := math.Sqrt(m2 / float64(a.WSize-1))
		if sd < a.Epsilon*math.Abs(m) {
			reason = "SD/mean"
		}
	}
	if reason == "" && a.t/a.K > a.MaxUpdate {
		reason = "max update"
	}
	if reason != "" {
		a.converged = true
		log.Infof("%s adaptation stopped, reason: %s, proposal SD=%g", a.Name(), reason, a.ProposalSD())
	}
}

func (a *AdaptiveParameter) propose(x float64) float64 {
	return x + rand.NormFloat64()*a.ProposalSD()
}
