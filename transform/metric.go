package transform

import (
	"fmt"
	"math"
)

// Metric is a downstream quantity computed from the interpretable
// parameters, e.g. standard deviations and correlations.
type Metric func(par []float64) ([]float64, error)

// Theta returns the mapping itself as a metric.
func Theta(m Mapping) Metric {
	return m.Evaluate
}

// Identity returns the parameters unchanged.
func Identity(par []float64) ([]float64, error) {
	out := make([]float64, len(par))
	copy(out, par)
	return out, nil
}

// StdDevCorr returns a metric computing the p standard deviations
// followed by the p(p-1)/2 correlations of the lower triangle in
// column-major order.
func StdDevCorr(m CovarianceMapping) Metric {
	return func(par []float64) ([]float64, error) {
		s, err := m.Covariance(par)
		if err != nil {
			return nil, err
		}
		p := s.SymmetricDim()
		out := make([]float64, 0, p*(p+1)/2)
		sd := make([]float64, p)
		for i := range sd {
			sd[i] = math.Sqrt(s.At(i, i))
		}
		out = append(out, sd...)
		for c := 0; c < p; c++ {
			for r := c + 1; r < p; r++ {
				out = append(out, s.At(r, c)/(sd[r]*sd[c]))
			}
		}
		return out, nil
	}
}

// StdDevCorrNames returns names of the StdDevCorr metric values.
func StdDevCorrNames(p int) []string {
	names := make([]string, 0, p*(p+1)/2)
	for i := 1; i <= p; i++ {
		names = append(names, fmt.Sprintf("sd%d", i))
	}
	for c := 1; c <= p; c++ {
		for r := c + 1; r <= p; r++ {
			names = append(names, fmt.Sprintf("cor%d.%d", r, c))
		}
	}
	return names
}

// VarCov returns a metric computing the lower triangle of the
// covariance matrix in column-major order.
func VarCov(m CovarianceMapping) Metric {
	return func(par []float64) ([]float64, error) {
		s, err := m.Covariance(par)
		if err != nil {
			return nil, err
		}
		p := s.SymmetricDim()
		out := make([]float64, 0, p*(p+1)/2)
		for c := 0; c < p; c++ {
			for r := c; r < p; r++ {
				out = append(out, s.At(r, c))
			}
		}
		return out, nil
	}
}

// VarCovNames returns names of the VarCov metric values.
func VarCovNames(p int) []string {
	names := make([]string, 0, p*(p+1)/2)
	for c := 1; c <= p; c++ {
		for r := c; r <= p; r++ {
			if r == c {
				names = append(names, fmt.Sprintf("var%d", r))
			} else {
				names = append(names, fmt.Sprintf("cov%d.%d", r, c))
			}
		}
	}
	return names
}

// CompositeMetric applies per block metrics and passes the free
// parameters through. Blocks which are not CovarianceMapping are
// passed through as well.
func CompositeMetric(c *Composite, block func(CovarianceMapping) Metric) Metric {
	return func(par []float64) ([]float64, error) {
		blocks, free, err := c.Split(par)
		if err != nil {
			return nil, err
		}
		var out []float64
		for j, b := range c.blocks {
			cm, ok := b.(CovarianceMapping)
			if !ok {
				out = append(out, blocks[j]...)
				continue
			}
			v, err := block(cm)(blocks[j])
			if err != nil {
				return nil, err
			}
			out = append(out, v...)
		}
		return append(out, free...), nil
	}
}

// CompositeStdDevCorrNames returns names of the CompositeMetric
// values with StdDevCorr blocks.
func CompositeStdDevCorrNames(c *Composite) []string {
	var names []string
	for j, b := range c.blocks {
		var bn []string
		if cm, ok := b.(CovarianceMapping); ok {
			bn = StdDevCorrNames(cm.Dim())
		} else {
			bn = b.ParamNames()
		}
		for _, n := range bn {
			if len(c.blocks) > 1 {
				n = fmt.Sprintf("%d.%s", j+1, n)
			}
			names = append(names, n)
		}
	}
	for _, f := range c.free {
		names = append(names, f.Name)
	}
	return names
}
