/*

Covfit maps structured covariance parameters to packed Cholesky
factors and fits structured covariance models to grouped data.

Print the covariance matrix and the packed factor of an AR1 block:

	covfit matrix ar1 4 1.5 0.8
	covfit theta ar1 4 1.5 0.8

Fit compound symmetry with a residual to the data (one group per
line) and report delta-method standard errors:

	covfit fit --residual --json fit.json cs data.txt

Compare two nested structures with a likelihood-ratio test:

	covfit lrt id ar1 data.txt

To see all the options run:

	covfit --help

*/
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"

	"bitbucket.org/Davydov/covfit/cov"
	"bitbucket.org/Davydov/covfit/fit"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("covfit")
var formatter = logging.MustStringFormatter(`%{message}`)

// loggers are the package loggers configured from the command line.
var loggers = []string{"covfit", "fit", "optimize", "transform", "deviance", "checkpoint"}

// command-line options
var (
	// application
	app = kingpin.New("covfit", "structured covariance transforms and fitting").Version(version)

	// technical
	nThreads = app.Flag("nt", "number of threads to use").Int()
	seed     = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()

	// transform commands
	matrixCmd    = app.Command("matrix", "print the dense covariance matrix")
	matrixFamily = familyArg(matrixCmd)
	matrixP      = matrixCmd.Arg("p", "block size").Required().Int()
	matrixPar    = matrixCmd.Arg("parameters", "shape parameters").Strings()

	thetaCmd    = app.Command("theta", "print the packed Cholesky factor")
	thetaFamily = familyArg(thetaCmd)
	thetaP      = thetaCmd.Arg("p", "block size").Required().Int()
	thetaPar    = thetaCmd.Arg("parameters", "shape parameters").Strings()

	boundsCmd    = app.Command("bounds", "print the parameter names, defaults and box constraints")
	boundsFamily = familyArg(boundsCmd)
	boundsP      = boundsCmd.Arg("p", "block size").Required().Int()

	jacobianCmd    = app.Command("jacobian", "print the jacobian of a metric")
	jacobianMetric = jacobianCmd.Flag("metric", "metric to differentiate "+
		"(theta: packed factor, sdcor: standard deviations and correlations, varcov: covariance)").
		Default("theta").Enum("theta", "sdcor", "varcov")
	jacobianFamily = familyArg(jacobianCmd)
	jacobianP      = jacobianCmd.Arg("p", "block size").Required().Int()
	jacobianPar    = jacobianCmd.Arg("parameters", "shape parameters").Strings()

	// fit
	fitCmd      = app.Command("fit", "fit a structured covariance to grouped data")
	fitFamily   = familyArg(fitCmd)
	fitData     = fitCmd.Arg("data", "data file, one group per line").Required().ExistingFile()
	fitResidual = fitCmd.Flag("residual", "add a residual standard deviation").Bool()
	fitStartF   = fitCmd.Flag("start", "read start position from the trajectory or JSON file").ExistingFile()
	fitOutF     = fitCmd.Flag("out", "write optimization trajectory to a file").String()

	// hypothesis testing
	lrtCmd      = app.Command("lrt", "likelihood-ratio test of two nested structures")
	lrtH0       = lrtCmd.Arg("h0", "null covariance family ("+familyList()+")").Required().Enum(cov.FamilyNames()...)
	lrtH1       = lrtCmd.Arg("h1", "alternative covariance family ("+familyList()+")").Required().Enum(cov.FamilyNames()...)
	lrtData     = lrtCmd.Arg("data", "data file, one group per line").Required().ExistingFile()
	lrtResidual = lrtCmd.Flag("residual", "add a residual standard deviation").Bool()

	// optimizer parameters, shared by fit and lrt
	randomize  = app.Flag("randomize", "use uniformly distributed random starting point").Bool()
	iterations = app.Flag("iter", "number of iterations").Default("10000").Int()
	report     = app.Flag("report", "report every N iterations").Default("10").Int()
	method     = app.Flag("method", "optimization method to use "+
		"(lbfgsb: limited-memory Broyden–Fletcher–Goldfarb–Shanno with bounding constraints, "+
		"simplex: downhill simplex, "+
		"bfgs: BFGS from gonum, "+
		"neldermead: Nelder-Mead from gonum, "+
		"annealing: simulated annealing, "+
		"mh: Metropolis-Hastings, "+
		"none: just compute likelihood, no optimization"+
		")").Default("lbfgsb").Enum("lbfgsb", "simplex", "bfgs", "neldermead", "annealing", "mh", "none")

	// mcmc parameters
	accept    = app.Flag("accept", "report acceptance rate every N iterations").Default("200").Int()
	prior     = app.Flag("prior", "prior of the standard deviations ("+strings.Join(fit.ScalePriors, ", ")+")").Default("flat").Enum(fit.ScalePriors...)
	priorMean = app.Flag("prior-mean", "mean of the standard deviation prior (overall standard deviation by default)").Default("-1").Float64()

	// adaptive mcmc parameters
	adaptive = app.Flag("adaptive", "use adaptive MCMC").Bool()
	skip     = app.Flag("skip", "number of iterations to skip for adaptive mcmc (5% by default)").Default("-1").Int()
	maxAdapt = app.Flag("maxadapt", "stop adapting after iteration (20% by default)").Default("-1").Int()

	// checkpoints
	checkpointDB      = app.Flag("checkpoint", "checkpoint database file").String()
	checkpointSeconds = app.Flag("checkpoint-seconds", "save checkpoint at most every N seconds").Default("60").Float64()
	checkpointReset   = app.Flag("checkpoint-reset", "ignore and delete the existing checkpoint").Bool()
)

// familyArg adds the required family argument.
func familyArg(cmd *kingpin.CmdClause) *string {
	return cmd.Arg("family", "covariance family ("+familyList()+")").Required().Enum(cov.FamilyNames()...)
}

func familyList() (s string) {
	for i, name := range cov.FamilyNames() {
		if i != 0 {
			s += ", "
		}
		s += name
	}
	return
}

// parseFloats converts command line values to floats.
func parseFloats(ss []string) ([]float64, error) {
	v := make([]float64, len(ss))
	for i, s := range ss {
		var err error
		v[i], err = strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %v", i+1, err)
		}
	}
	return v, nil
}

// writeJSON writes the summary to the json output file if requested.
func writeJSON(summary interface{}) {
	if *jsonF == "" {
		return
	}
	j, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Error(err)
		return
	}
	log.Debug(string(j))
	f, err := os.Create(*jsonF)
	if err != nil {
		log.Error("Error creating json output file:", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(j); err != nil {
		log.Error("Error writing json output file:", err)
	}
}

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, name := range loggers {
		logging.SetLevel(level, name)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)
	rand.Seed(*seed)

	runtime.GOMAXPROCS(*nThreads)
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	startTime := time.Now()
	call := CallSummary{
		Version:     version,
		CommandLine: os.Args,
		Seed:        *seed,
		NThreads:    effectiveNThreads,
	}

	switch cmd {
	case matrixCmd.FullCommand():
		err = printMatrix(*matrixFamily, *matrixP, *matrixPar)
	case thetaCmd.FullCommand():
		err = printTheta(*thetaFamily, *thetaP, *thetaPar)
	case boundsCmd.FullCommand():
		err = printBounds(*boundsFamily, *boundsP)
	case jacobianCmd.FullCommand():
		err = printJacobian(*jacobianFamily, *jacobianP, *jacobianPar, *jacobianMetric)
	case fitCmd.FullCommand():
		var summary *FitSummary
		summary, err = fitCommand()
		if summary != nil {
			call.TotalTime = time.Since(startTime).Seconds()
			summary.CallSummary = call
			writeJSON(summary)
		}
	case lrtCmd.FullCommand():
		var summary *LRTSummary
		summary, err = lrtCommand()
		if summary != nil {
			call.TotalTime = time.Since(startTime).Seconds()
			summary.CallSummary = call
			writeJSON(summary)
		}
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Noticef("Running time: %v", time.Since(startTime))
}
