package optimize

// None is an optimizer which computes the initial likelihood and
// exits.
type None struct {
	BaseOptimizer
}

// NewNone creates an optimizer which computes initial likelihood only.
func NewNone() *None {
	return &None{BaseOptimizer: newBaseOptimizer("none")}
}

// Run computes the likelihood.
func (n *None) Run(iterations int) error {
	n.SaveStart()
	n.PrintHeader()
	n.PrintLine(n.parameters, n.l, 1)
	return n.finish(true, nil)
}
