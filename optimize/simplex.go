package optimize

import (
	"fmt"
	"math"
)

const (
	TINY  = 1e-10
	SMALL = 1e-6
)

// DS is the downhill simplex (Nelder-Mead) optimizer.
type DS struct {
	BaseOptimizer
	delta      float64
	ftol       float64
	repeat     bool
	oldL       float64
	points     []Optimizable
	psum       []float64
	parameters []FloatParameters
	l          []float64
	newOpt     Optimizable
	newPar     FloatParameters
}

// NewDS creates a new downhill simplex optimizer.
func NewDS() *DS {
	return &DS{
		BaseOptimizer: newBaseOptimizer("downhill simplex"),
		delta:         1,
		ftol:          TINY,
	}
}

// SetDelta sets the initial simplex size.
func (ds *DS) SetDelta(delta float64) {
	ds.delta = delta
}

// step returns the simplex displacement of a parameter keeping the
// vertex inside of the bounds.
func step(par FloatParameter, delta float64) float64 {
	v := par.Get()
	switch {
	case par.ValueInRange(v + delta):
		return delta
	case par.ValueInRange(v - delta):
		return -delta
	}
	if par.GetMax()-v > v-par.GetMin() {
		return (par.GetMax() - v) / 2
	}
	return -(v - par.GetMin()) / 2
}

func (ds *DS) createSimplex(opt Optimizable, delta float64) {
	parameters := opt.GetFloatParameters()
	ds.points = make([]Optimizable, len(parameters)+1)
	ds.parameters = make([]FloatParameters, len(ds.points))
	ds.l = make([]float64, len(ds.points))
	ds.points[0] = opt
	ds.parameters[0] = parameters
	for i := 1; i < len(ds.points); i++ {
		point := opt.Copy()
		ds.points[i] = point
		ds.parameters[i] = point.GetFloatParameters()
	}
	for i := 0; i < len(parameters); i++ {
		parameter := ds.parameters[i+1][i]
		parameter.Set(parameter.Get() + step(parameter, delta))
	}
	for i := range ds.points {
		ds.l[i] = ds.likelihood(i)
	}
}

// likelihood computes the likelihood of the simplex vertex.
func (ds *DS) likelihood(i int) float64 {
	if !ds.parameters[i].InRange() {
		return math.Inf(-1)
	}
	ds.calls++
	l := ds.points[i].Likelihood()
	if math.IsNaN(l) {
		return math.Inf(-1)
	}
	return l
}

// amotry extrapolates by factor fac through the face of the simplex
// across from the low point, tries it, and replaces the low point if
// the new point is better.
func (ds *DS) amotry(ilo int, fac float64) float64 {
	if ds.newOpt == nil {
		ds.newOpt = ds.points[0].Copy()
		ds.newPar = ds.newOpt.GetFloatParameters()
	}
	ds.calcPsum()
	ndim := len(ds.newPar)
	fac1 := (1 - fac) / float64(ndim)
	fac2 := fac1 - fac
	for j := 0; j < ndim; j++ {
		ds.newPar[j].Set(ds.psum[j]*fac1 - ds.parameters[ilo][j].Get()*fac2)
	}
	var l float64
	if ds.newPar.InRange() {
		ds.calls++
		l = ds.newOpt.Likelihood()
		if math.IsNaN(l) {
			l = math.Inf(-1)
		}
	} else {
		l = math.Inf(-1)
	}
	if l > ds.l[ilo] {
		ds.points[ilo], ds.newOpt = ds.newOpt, ds.points[ilo]
		ds.parameters[ilo], ds.newPar = ds.newPar, ds.parameters[ilo]
		ds.l[ilo] = l
	}
	return l
}

func (ds *DS) calcPsum() {
	if ds.psum == nil {
		ds.psum = make([]float64, len(ds.parameters[0]))
	}
	for i := range ds.psum {
		ds.psum[i] = 0
		for _, parameters := range ds.parameters {
			ds.psum[i] += parameters[i].Get()
		}
	}
}

// Run starts the optimization.
func (ds *DS) Run(iterations int) error {
	ds.SaveStart()
	ds.PrintHeader()
	ds.createSimplex(ds.Optimizable, ds.delta)

	// Lowest (worst), next-lowest and highest points
	var ilo, ihi int
	var llo, lnlo, lhi float64
	converged := false
	var err error
Iter:
	for ds.i = 1; ds.i <= iterations; ds.i++ {
		if ds.l[0] < ds.l[1] {
			ilo, ihi = 0, 1
		} else {
			ilo, ihi = 1, 0
		}
		llo = ds.l[ilo]
		lnlo = ds.l[ihi]
		lhi = ds.l[ihi]
		for i := 2; i < len(ds.points); i++ {
			if ds.l[i] >= lhi {
				lhi = ds.l[i]
				ihi = i
			}
			if ds.l[i] < llo {
				lnlo = llo
				llo = ds.l[i]
				ilo = i
			} else if ds.l[i] < lnlo {
				lnlo = ds.l[i]
			}
		}
		ds.update(ds.parameters[ihi], lhi)
		ds.BaseOptimizer.l = lhi
		if ds.i%ds.repPeriod == 0 {
			log.Debugf("%d: L=%f (%f)", ds.i, lhi, lhi-llo)
		}
		ds.PrintLine(ds.parameters[ihi], lhi, ds.repPeriod)

		rtol := 2 * math.Abs(ds.l[ihi]-ds.l[ilo]) / (math.Abs(ds.l[ilo]) + math.Abs(ds.l[ihi]) + TINY)
		if rtol < ds.ftol {
			if ds.repeat && math.Abs(ds.oldL-lhi) < SMALL {
				converged = true
				break Iter
			}
			ds.repeat = true
			ds.oldL = lhi
			log.Infof("converged. retrying")
			ds.createSimplex(ds.points[ihi], ds.delta)
			continue
		}
		l := ds.amotry(ilo, -1)
		switch {
		case l >= lhi:
			ds.amotry(ilo, 2)
		case l <= lnlo:
			lsave := llo
			l := ds.amotry(ilo, 0.5)
			if l <= lsave {
				for i := range ds.points {
					if i != ihi {
						for j := range ds.parameters[i] {
							ds.parameters[i][j].Set(0.5 * (ds.parameters[i][j].Get() + ds.parameters[ihi][j].Get()))
						}
						ds.l[i] = ds.likelihood(i)
					}
				}
			}
		}
		if ds.interrupted() {
			err = errInterrupted
			break Iter
		}
	}
	if !converged && err == nil {
		log.Warningf("Iterations exceeded (%d)", iterations)
		err = fmt.Errorf("%w: iteration limit %d", ErrDidNotConverge, iterations)
	}
	if ds.i > iterations {
		ds.i = iterations
	}

	best := 0
	for i := range ds.l {
		if ds.l[i] > ds.l[best] {
			best = i
		}
	}
	ds.update(ds.parameters[best], ds.l[best])
	log.Infof("Parameter  names: %v", ds.parameters[best].NamesString())
	log.Infof("Parameter values: %v", ds.parameters[best].ValuesString())
	return ds.finish(converged, err)
}
