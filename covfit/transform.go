package main

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/covfit/cov"
	"bitbucket.org/Davydov/covfit/transform"
)

// newTransform creates a transform from the command line family and
// block size.
func newTransform(family string, p int) (*transform.Transform, error) {
	f, err := cov.ParseFamily(family)
	if err != nil {
		return nil, err
	}
	return transform.New(cov.Shape{Family: f, P: p})
}

// transformParams parses the shape parameters. No parameters means
// the defaults.
func transformParams(t *transform.Transform, ss []string) ([]float64, error) {
	if len(ss) == 0 {
		log.Info("Using default parameters")
		return t.DefaultParams(), nil
	}
	par, err := parseFloats(ss)
	if err != nil {
		return nil, err
	}
	if len(par) != t.NParams() {
		return nil, fmt.Errorf("%v expects %d parameters (%s), got %d",
			t.Shape(), t.NParams(), strings.Join(t.ParamNames(), ", "), len(par))
	}
	return par, nil
}

func printMatrix(family string, p int, ss []string) error {
	t, err := newTransform(family, p)
	if err != nil {
		return err
	}
	par, err := transformParams(t, ss)
	if err != nil {
		return err
	}
	m, err := t.Covariance(par)
	if err != nil {
		return err
	}
	fmt.Printf("%v\n", mat.Formatted(m, mat.Squeeze()))
	return nil
}

func printTheta(family string, p int, ss []string) error {
	t, err := newTransform(family, p)
	if err != nil {
		return err
	}
	par, err := transformParams(t, ss)
	if err != nil {
		return err
	}
	theta, err := t.Evaluate(par)
	if err != nil {
		return err
	}
	for _, v := range theta {
		fmt.Println(v)
	}
	return nil
}

func printBounds(family string, p int) error {
	t, err := newTransform(family, p)
	if err != nil {
		return err
	}
	lower, upper := t.BoxConstraints()
	def := t.DefaultParams()
	fmt.Println("name\tdefault\tlower\tupper")
	for i, name := range t.ParamNames() {
		fmt.Printf("%s\t%v\t%v\t%v\n", name, def[i], lower[i], upper[i])
	}
	return nil
}

func printJacobian(family string, p int, ss []string, metric string) error {
	t, err := newTransform(family, p)
	if err != nil {
		return err
	}
	par, err := transformParams(t, ss)
	if err != nil {
		return err
	}
	var (
		m     transform.Metric
		names []string
	)
	switch metric {
	case "theta":
		m = transform.Theta(t)
		for i := 0; i < t.NOut(); i++ {
			names = append(names, fmt.Sprintf("theta%d", i+1))
		}
	case "sdcor":
		m = transform.StdDevCorr(t)
		names = transform.StdDevCorrNames(p)
	case "varcov":
		m = transform.VarCov(t)
		names = transform.VarCovNames(p)
	default:
		return fmt.Errorf("unknown metric: %s", metric)
	}
	jac, err := t.Jacobian(par, m)
	if err != nil {
		return err
	}
	fmt.Printf("parameter\t%s\n", strings.Join(names, "\t"))
	for i, name := range t.ParamNames() {
		fmt.Print(name)
		for j := range names {
			fmt.Printf("\t%g", jac.At(i, j))
		}
		fmt.Println()
	}
	return nil
}
