package main

import (
	"bitbucket.org/Davydov/covfit/fit"
)

// CallSummary stores information about the program call.
type CallSummary struct {
	Version     string   `json:"version"`
	CommandLine []string `json:"commandLine"`
	Seed        int64    `json:"seed"`
	NThreads    int      `json:"nThreads"`
	TotalTime   float64  `json:"totalTime"`
}

// FitSummary is the json output of the fit command.
type FitSummary struct {
	CallSummary
	Family   string       `json:"family"`
	Data     string       `json:"data"`
	Residual bool         `json:"residual"`
	Method   string       `json:"method"`
	Fit      *fit.Summary `json:"fit"`
}

// LRTSummary is the json output of the lrt command.
type LRTSummary struct {
	CallSummary
	H0       string        `json:"h0"`
	H1       string        `json:"h1"`
	Data     string        `json:"data"`
	Residual bool          `json:"residual"`
	Method   string        `json:"method"`
	Fit0     *fit.Summary  `json:"fit0"`
	Fit1     *fit.Summary  `json:"fit1"`
	Test     fit.LRTResult `json:"test"`
}
