package optimize

import (
	"math"
	"math/rand"
)

// MH is a Metropolis-Hastings sampler. With annealing it becomes a
// simulated annealing optimizer.
type MH struct {
	BaseOptimizer
	// AccPeriod is the acceptance rate report period.
	AccPeriod int
	annealing bool
	// iterations before the temperature starts to decrease
	annealingSkip int
}

// NewMH creates a new MH sampler.
func NewMH(annealing bool, annealingSkip int) *MH {
	name := "Metropolis-Hastings"
	if annealing {
		name = "simulated annealing"
	}
	return &MH{
		BaseOptimizer: newBaseOptimizer(name),
		AccPeriod:     10,
		annealing:     annealing,
		annealingSkip: annealingSkip,
	}
}

// temperature decreases geometrically from 1 to 0.9^100 during
// the annealing iterations.
func (m *MH) temperature(iterations int) float64 {
	if !m.annealing || m.i < m.annealingSkip || iterations <= m.annealingSkip {
		return 1
	}
	frac := float64(m.i-m.annealingSkip) / float64(iterations-m.annealingSkip)
	return math.Pow(0.9, 100*frac)
}

// step proposes a change of one random parameter and returns the
// new likelihood and whether the change was accepted. Proposals
// outside of the bounds are rejected without computing the
// likelihood.
func (m *MH) step(l, T float64) (float64, bool) {
	par := m.parameters[rand.Intn(len(m.parameters))]
	par.Propose()
	if !par.InRange() {
		par.Reject()
		return l, false
	}
	newL := m.Likelihood()
	m.calls++
	if math.IsNaN(newL) {
		newL = math.Inf(-1)
	}

	logA := (newL - l) / T
	if !m.annealing {
		logA += par.Prior() - par.OldPrior()
	}
	if logA >= 0 || math.Log(rand.Float64()) < logA {
		par.Accept(m.i)
		return newL, true
	}
	par.Reject()
	return l, false
}

// Run starts sampling.
func (m *MH) Run(iterations int) error {
	m.SaveStart()
	m.PrintHeader()
	accepted := 0
	l := m.startL
	var err error
	for m.i = 0; m.i < iterations; m.i++ {
		if m.i > 0 && m.i%m.AccPeriod == 0 {
			log.Infof("Acceptance rate %.2f%%", 100*float64(accepted)/float64(m.AccPeriod))
			accepted = 0
		}

		m.PrintLine(m.parameters, l, m.repPeriod)
		T := m.temperature(iterations)
		if m.i%m.repPeriod == 0 {
			log.Debugf("%d: L=%f, T=%f", m.i, l, T)
		}

		var ok bool
		if l, ok = m.step(l, T); ok {
			accepted++
			m.update(m.parameters, l)
		}
		m.l = l

		if m.interrupted() {
			err = errInterrupted
			break
		}
	}
	// a sampler has no convergence criterion
	return m.finish(err == nil, err)
}
