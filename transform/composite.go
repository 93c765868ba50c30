package transform

import (
	"fmt"
	"math"

	"bitbucket.org/Davydov/covfit/cov"
)

// Free is a model parameter which is passed to the deviance
// unchanged, e.g. a residual standard deviation.
type Free struct {
	Name  string
	Start float64
	Lower float64
	Upper float64
}

// Composite concatenates several mappings followed by free
// parameters. Its internal vector is the concatenation of the block
// outputs followed by the free parameter values.
type Composite struct {
	blocks []Mapping
	free   []Free
}

// NewComposite creates a new Composite.
func NewComposite(blocks []Mapping, free ...Free) (*Composite, error) {
	for _, f := range free {
		if !(f.Lower <= f.Start && f.Start <= f.Upper) {
			return nil, fmt.Errorf("free parameter %s: start %v not in [%v, %v]", f.Name, f.Start, f.Lower, f.Upper)
		}
	}
	return &Composite{blocks: blocks, free: free}, nil
}

// Blocks returns the mappings of the composite.
func (c *Composite) Blocks() []Mapping {
	return c.blocks
}

// Free returns the free parameters.
func (c *Composite) Free() []Free {
	return c.free
}

// NParams returns the total number of parameters.
func (c *Composite) NParams() int {
	n := len(c.free)
	for _, b := range c.blocks {
		n += b.NParams()
	}
	return n
}

// NOut returns the internal vector length.
func (c *Composite) NOut() int {
	n := len(c.free)
	for _, b := range c.blocks {
		n += b.NOut()
	}
	return n
}

// ParamNames returns the parameter names. Block names are prefixed by
// the block index when there is more than one block.
func (c *Composite) ParamNames() []string {
	names := make([]string, 0, c.NParams())
	for i, b := range c.blocks {
		for _, n := range b.ParamNames() {
			if len(c.blocks) > 1 {
				n = fmt.Sprintf("%d.%s", i+1, n)
			}
			names = append(names, n)
		}
	}
	for _, f := range c.free {
		names = append(names, f.Name)
	}
	return names
}

// DefaultParams returns block defaults and free starting values.
func (c *Composite) DefaultParams() []float64 {
	par := make([]float64, 0, c.NParams())
	for _, b := range c.blocks {
		par = append(par, b.DefaultParams()...)
	}
	for _, f := range c.free {
		par = append(par, f.Start)
	}
	return par
}

// BoxConstraints concatenates the block and free parameter bounds.
func (c *Composite) BoxConstraints() (lower, upper []float64) {
	lower = make([]float64, 0, c.NParams())
	upper = make([]float64, 0, c.NParams())
	for _, b := range c.blocks {
		l, u := b.BoxConstraints()
		lower = append(lower, l...)
		upper = append(upper, u...)
	}
	for _, f := range c.free {
		lower = append(lower, f.Lower)
		upper = append(upper, f.Upper)
	}
	return
}

// Split returns the parameters of every block and the free
// parameters. The returned slices share memory with par.
func (c *Composite) Split(par []float64) (blocks [][]float64, free []float64, err error) {
	if len(par) != c.NParams() {
		return nil, nil, fmt.Errorf("%w: expected %d parameters, got %d", cov.ErrInvalidParameter, c.NParams(), len(par))
	}
	blocks = make([][]float64, len(c.blocks))
	i := 0
	for j, b := range c.blocks {
		blocks[j] = par[i : i+b.NParams()]
		i += b.NParams()
	}
	return blocks, par[i:], nil
}

// Evaluate concatenates block outputs and free parameters.
func (c *Composite) Evaluate(par []float64) ([]float64, error) {
	blocks, free, err := c.Split(par)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, c.NOut())
	for j, b := range c.blocks {
		theta, err := b.Evaluate(blocks[j])
		if err != nil {
			return nil, err
		}
		out = append(out, theta...)
	}
	for j, f := range c.free {
		v := free[j]
		if math.IsNaN(v) || v < f.Lower || v > f.Upper {
			return nil, fmt.Errorf("%w: %s=%v should be in [%v, %v]", cov.ErrInvalidParameter, f.Name, v, f.Lower, f.Upper)
		}
		out = append(out, v)
	}
	return out, nil
}
