package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	bolt "go.etcd.io/bbolt"
	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/covfit/checkpoint"
	"bitbucket.org/Davydov/covfit/cov"
	"bitbucket.org/Davydov/covfit/deviance"
	"bitbucket.org/Davydov/covfit/fit"
	"bitbucket.org/Davydov/covfit/optimize"
	"bitbucket.org/Davydov/covfit/transform"
)

// maxRandomize is the number of attempts to find a random starting
// point with a finite likelihood.
const maxRandomize = 100

// modelSettings describes a structure to fit.
type modelSettings struct {
	family   string
	data     string
	residual bool
	startF   string
}

// lastLine returns the last line of a file content.
func lastLine(fn string) (line string, err error) {
	f, err := os.Open(fn)
	if err != nil {
		return line, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line = scanner.Text()
	}
	err = scanner.Err()
	return line, err
}

// readData reads the data file.
func readData(fn string) (*mat.Dense, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return deviance.ReadData(f)
}

// openCheckpoint opens the checkpoint database if requested.
func openCheckpoint() (*bolt.DB, error) {
	if *checkpointDB == "" {
		return nil, nil
	}
	log.Infof("Using checkpoint database %s", *checkpointDB)
	return checkpoint.Open(*checkpointDB)
}

// key returns the checkpoint key of the model.
func (m *modelSettings) key() []byte {
	fn, err := filepath.Abs(m.data)
	if err != nil {
		fn = m.data
	}
	return checkpoint.Key(m.family, fn, strconv.FormatBool(m.residual))
}

// newProblem creates the problem and sets the starting point.
func (m *modelSettings) newProblem(y *mat.Dense) (*fit.Problem, error) {
	_, p := y.Dims()
	t, err := newTransform(m.family, p)
	if err != nil {
		return nil, err
	}
	g := deviance.NewGaussian(y, m.residual)

	var free []transform.Free
	if m.residual {
		free = append(free, transform.Free{
			Name:  "sigma_e",
			Start: 1,
			Lower: cov.MinScale,
			Upper: cov.MaxScale(p),
		})
	}
	c, err := transform.NewComposite([]transform.Mapping{t}, free...)
	if err != nil {
		return nil, err
	}
	problem, err := fit.NewProblem(c, g)
	if err != nil {
		return nil, err
	}
	log.Infof("%v model has %d parameters", t.Shape(), len(problem.GetFloatParameters()))

	mean := *priorMean
	if mean <= 0 {
		mean = g.ResidualMLE()
	}
	f, err := fit.ScalePrior(*prior, mean)
	if err != nil {
		return nil, err
	}
	if f != nil {
		log.Infof("Using %s prior with mean %v for the standard deviations", *prior, mean)
		problem.SetScalePrior(f)
	}

	par := problem.GetFloatParameters()
	switch {
	case m.startF != "":
		l, err := lastLine(m.startF)
		if err == nil {
			err = par.ReadLine(l)
		}
		if err != nil {
			log.Debug("Reading start file as JSON")
			if err2 := par.ReadFromJSON(m.startF); err2 != nil {
				log.Error("Error reading start position from trajectory file:", err)
				return nil, err2
			}
		}
		if !par.InRange() {
			return nil, errors.New("initial parameters are not in the range")
		}
	case *randomize:
		log.Info("Using uniform (in the boundaries) random starting point")
		if err := randomStart(problem, maxRandomize); err != nil {
			return nil, err
		}
	default:
		// scales start at the overall standard deviation
		s := g.ResidualMLE()
		for i := 0; i < t.Shape().NScales(); i++ {
			par[i].Set(s)
		}
	}
	return problem, nil
}

// randomStart draws uniform starting points until the likelihood is
// finite, at most n times.
func randomStart(o optimize.Optimizable, n int) error {
	par := o.GetFloatParameters()
	for i := 0; i < n; i++ {
		par.Randomize()
		l := o.Likelihood()
		if !math.IsInf(l, -1) && !math.IsNaN(l) {
			return nil
		}
		log.Debugf("Random starting point %v rejected", par.ValuesString())
	}
	return fmt.Errorf("no random starting point with a finite likelihood after %d attempts", n)
}

// run fits the model.
func (m *modelSettings) run(y *mat.Dense, output io.Writer, db *bolt.DB) (*fit.Summary, error) {
	problem, err := m.newProblem(y)
	if err != nil {
		return nil, err
	}

	if db != nil {
		cio := checkpoint.NewIO(db, m.key(), *checkpointSeconds)
		if *checkpointReset {
			log.Info("Deleting the checkpoint")
			if err := cio.Delete(); err != nil {
				return nil, err
			}
		}
		data, err := cio.Load()
		if err != nil {
			log.Error("Error loading checkpoint:", err)
		} else if data != nil {
			par := problem.GetFloatParameters()
			if err := par.SetFromMap(data.Parameters); err != nil {
				log.Error("Error restoring checkpoint:", err)
			} else {
				log.Notice("Resuming from the checkpoint")
			}
		}
	}

	opt, err := newOptimizerSettings(output, db, m.key()).create(problem)
	if err != nil {
		return nil, err
	}
	s, err := fit.Run(problem, opt, *iterations)
	if s == nil {
		return nil, err
	}
	if err != nil {
		log.Warning(err)
	}
	opt.PrintResults()
	printEstimates(s)
	return s, nil
}

// printEstimates logs the estimates and standard errors.
func printEstimates(s *fit.Summary) {
	log.Noticef("lnL=%v, AIC=%v", s.LnL, s.AIC)
	for _, est := range append(s.Parameters, s.Metrics...) {
		if est.SE != nil {
			log.Noticef("%s=%v (SE=%v)", est.Name, est.Value, *est.SE)
		} else {
			log.Noticef("%s=%v", est.Name, est.Value)
		}
	}
	if s.InferenceError != "" {
		log.Warningf("No standard errors: %s", s.InferenceError)
	}
}

// fitCommand runs the fit command.
func fitCommand() (*FitSummary, error) {
	y, err := readData(*fitData)
	if err != nil {
		return nil, err
	}
	db, err := openCheckpoint()
	if err != nil {
		return nil, err
	}
	if db != nil {
		defer db.Close()
	}

	var output io.Writer = os.Stdout
	if *fitOutF != "" {
		f, err := os.Create(*fitOutF)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		output = f
	}

	m := &modelSettings{
		family:   *fitFamily,
		data:     *fitData,
		residual: *fitResidual,
		startF:   *fitStartF,
	}
	s, err := m.run(y, output, db)
	if err != nil {
		return nil, err
	}
	return &FitSummary{
		Family:   m.family,
		Data:     m.data,
		Residual: m.residual,
		Method:   *method,
		Fit:      s,
	}, nil
}
