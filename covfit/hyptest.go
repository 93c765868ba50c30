package main

import (
	"fmt"

	"bitbucket.org/Davydov/covfit/cov"
	"bitbucket.org/Davydov/covfit/fit"
)

// checkNested returns an error unless h0 is a special case of h1.
func checkNested(h0, h1 string) error {
	f0, err := cov.ParseFamily(h0)
	if err != nil {
		return err
	}
	f1, err := cov.ParseFamily(h1)
	if err != nil {
		return err
	}
	if !f0.NestedIn(f1) {
		return fmt.Errorf("%s is not nested in %s", h0, h1)
	}
	return nil
}

// lrtCommand fits the null and the alternative structures and
// performs the likelihood-ratio test.
func lrtCommand() (*LRTSummary, error) {
	if err := checkNested(*lrtH0, *lrtH1); err != nil {
		return nil, err
	}
	y, err := readData(*lrtData)
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

	m0 := &modelSettings{family: *lrtH0, data: *lrtData, residual: *lrtResidual}
	m1 := &modelSettings{family: *lrtH1, data: *lrtData, residual: *lrtResidual}

	log.Notice("Fitting H0")
	s0, err := m0.run(y, nil, db)
	if err != nil {
		return nil, err
	}
	log.Notice("Fitting H1")
	s1, err := m1.run(y, nil, db)
	if err != nil {
		return nil, err
	}

	df := s1.NParams - s0.NParams
	if df < 1 {
		// all the families coincide for a single level
		return nil, fmt.Errorf("%s and %s have the same number of parameters (%d)",
			m0.family, m1.family, s1.NParams)
	}
	if !s0.Optimizer.Converged || !s1.Optimizer.Converged {
		log.Warning("At least one of the optimizations did not converge")
	}
	test, err := fit.LRT(s0.LnL, s1.LnL, df)
	if err != nil {
		return nil, err
	}
	log.Noticef("D=%v, df=%d, p-value=%v", test.Statistic, test.DF, test.PValue)

	return &LRTSummary{
		H0:       m0.family,
		H1:       m1.family,
		Data:     *lrtData,
		Residual: *lrtResidual,
		Method:   *method,
		Fit0:     s0,
		Fit1:     s1,
		Test:     test,
	}, nil
}
