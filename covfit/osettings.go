package main

import (
	"fmt"
	"io"
	"os"
	"syscall"

	bolt "go.etcd.io/bbolt"

	"bitbucket.org/Davydov/covfit/checkpoint"
	"bitbucket.org/Davydov/covfit/fit"
	"bitbucket.org/Davydov/covfit/optimize"
)

// optimizerSettings stores settings for creation of a new optimizer.
type optimizerSettings struct {
	method string

	iterations int

	report int

	accept   int
	adaptive bool
	skip     int
	maxAdapt int

	output io.Writer

	db  *bolt.DB
	key []byte
}

// newOptimizerSettings creates a new optimizerSettings from the
// command line parameters (global variables).
func newOptimizerSettings(output io.Writer, db *bolt.DB, key []byte) *optimizerSettings {
	return &optimizerSettings{
		method: *method,

		iterations: *iterations,

		report: *report,

		accept:   *accept,
		adaptive: *adaptive,
		skip:     *skip,
		maxAdapt: *maxAdapt,

		output: output,

		db:  db,
		key: key,
	}
}

// create creates a new optimizer and prepares the problem for it.
func (o *optimizerSettings) create(problem *fit.Problem) (optimize.Optimizer, error) {
	if o.adaptive {
		as := optimize.NewAdaptiveSettings()
		if o.skip < 0 {
			o.skip = o.iterations / 20
		}
		if o.maxAdapt < 0 {
			o.maxAdapt = o.iterations / 5
		}
		log.Infof("Setting adaptive parameters, skip=%v, maxAdapt=%v", o.skip, o.maxAdapt)
		as.Skip = o.skip
		as.MaxAdapt = o.maxAdapt
		problem.SetAdaptive(as)
	}

	opt, err := o.getOptimizer()
	if err != nil {
		return nil, err
	}
	log.Infof("Using %s optimization.", o.method)

	if o.output != nil {
		opt.SetOutput(o.output)
	}
	opt.SetReportPeriod(o.report)
	opt.WatchSignals(os.Interrupt, syscall.SIGTERM)

	if o.db != nil {
		opt.SetCheckpointIO(checkpoint.NewIO(o.db, o.key, *checkpointSeconds))
	}
	return opt, nil
}

// getOptimizer returns an optimizer from settings.
func (o *optimizerSettings) getOptimizer() (optimize.Optimizer, error) {
	switch o.method {
	case "lbfgsb":
		return optimize.NewLBFGSB(), nil
	case "simplex":
		return optimize.NewDS(), nil
	case "bfgs":
		return optimize.NewBFGS(), nil
	case "neldermead":
		return optimize.NewNelderMead(), nil
	case "mh":
		chain := optimize.NewMH(false, 0)
		chain.AccPeriod = o.accept
		return chain, nil
	case "annealing":
		annealingSkip := 0
		if o.adaptive {
			annealingSkip = o.maxAdapt
		}
		chain := optimize.NewMH(true, annealingSkip)
		chain.AccPeriod = o.accept
		return chain, nil
	case "none":
		return optimize.NewNone(), nil
	}
	return nil, fmt.Errorf("unknown optimization method: %s", o.method)
}
