package optimize

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"bitbucket.org/Davydov/covfit/checkpoint"
)

// quadratic has the likelihood -10 - Σ(x_i - c_i)².
type quadratic struct {
	x          []float64
	center     []float64
	parameters FloatParameters
}

func newQuadratic(center, start []float64, min, max float64) *quadratic {
	q := &quadratic{
		x:      append([]float64(nil), start...),
		center: center,
	}
	for i := range q.x {
		par := NewBasicFloatParameter(&q.x[i], string(rune('a'+i)))
		par.SetMin(min)
		par.SetMax(max)
		par.SetProposalFunc(NormalProposal(0.1))
		q.parameters.Append(par)
	}
	return q
}

func (q *quadratic) GetFloatParameters() FloatParameters {
	return q.parameters
}

func (q *quadratic) Likelihood() float64 {
	l := -10.0
	for i, x := range q.x {
		l -= (x - q.center[i]) * (x - q.center[i])
	}
	return l
}

func (q *quadratic) Copy() Optimizable {
	return newQuadratic(q.center, q.x, q.parameters[0].GetMin(), q.parameters[0].GetMax())
}

func checkOptimum(tst *testing.T, name string, q *quadratic, expected []float64, tol float64) {
	for i, x := range q.x {
		if math.Abs(x-expected[i]) > tol {
			tst.Errorf("%s: parameter %d expected %v, got %v", name, i, expected[i], x)
		}
	}
}

func TestDS(tst *testing.T) {
	q := newQuadratic([]float64{1.5, -2, 0.3}, []float64{0, 0, 0}, -10, 10)
	ds := NewDS()
	ds.SetOptimizable(q)
	if err := ds.Run(10000); err != nil {
		tst.Fatal("Error: ", err)
	}
	checkOptimum(tst, "DS", q, q.center, 1e-3)
	s := ds.Summary()
	if !s.Converged || s.MaxLnL < -10-1e-6 || math.Abs(s.StartLnL+16.34) > 1e-12 {
		tst.Errorf("Unexpected summary %+v", s)
	}
	if math.Abs(s.MaxLParameters["b"]+2) > 1e-3 {
		tst.Errorf("Unexpected parameters %v", s.MaxLParameters)
	}
}

func TestDSBounded(tst *testing.T) {
	// optimum outside of the box
	q := newQuadratic([]float64{3}, []float64{0.5}, 0, 1)
	ds := NewDS()
	ds.SetOptimizable(q)
	if err := ds.Run(10000); err != nil {
		tst.Fatal("Error: ", err)
	}
	if q.x[0] < 0.99 || q.x[0] > 1 {
		tst.Errorf("Expected the upper bound, got %v", q.x[0])
	}
}

func TestDSIterationLimit(tst *testing.T) {
	q := newQuadratic([]float64{1.5, -2}, []float64{0, 0}, -10, 10)
	ds := NewDS()
	ds.SetOptimizable(q)
	err := ds.Run(3)
	if !errors.Is(err, ErrDidNotConverge) {
		tst.Error("Expected ErrDidNotConverge, got", err)
	}
	if ds.Summary().Converged {
		tst.Error("Run should not be reported as converged")
	}
	// the best point is kept anyway
	if q.Likelihood() != ds.GetMaxL() {
		tst.Errorf("Optimizable is not at the maximum: %v != %v", q.Likelihood(), ds.GetMaxL())
	}
}

func TestGonum(tst *testing.T) {
	for _, o := range []*Gonum{NewBFGS(), NewNelderMead()} {
		q := newQuadratic([]float64{1.5, -2}, []float64{0, 0}, -10, 10)
		o.SetOptimizable(q)
		if err := o.Run(1000); err != nil {
			tst.Fatal(o.name, " error: ", err)
		}
		checkOptimum(tst, o.name, q, q.center, 1e-3)
	}
}

func TestLBFGSB(tst *testing.T) {
	q := newQuadratic([]float64{1.5, -2}, []float64{0, 0}, -10, 10)
	l := NewLBFGSB()
	l.SetOptimizable(q)
	if err := l.Run(1000); err != nil {
		tst.Fatal("Error: ", err)
	}
	checkOptimum(tst, "LBFGSB", q, q.center, 1e-4)

	// bounded, the optimum is at the upper bound minus the margin
	q = newQuadratic([]float64{3}, []float64{0.5}, 0, 1)
	l = NewLBFGSB()
	l.SetOptimizable(q)
	if err := l.Run(1000); err != nil {
		tst.Fatal("Error: ", err)
	}
	checkOptimum(tst, "LBFGSB bounded", q, []float64{1}, 1e-4)
}

func TestAnnealing(tst *testing.T) {
	rand.Seed(1)
	q := newQuadratic([]float64{0.5}, []float64{-1}, -2, 2)
	m := NewMH(true, 0)
	m.SetOptimizable(q)
	if err := m.Run(2000); err != nil {
		tst.Fatal("Error: ", err)
	}
	if m.GetMaxL() < -10.01 || m.GetMaxL() < m.Summary().StartLnL {
		tst.Errorf("Annealing did not improve the likelihood: %v", m.GetMaxL())
	}
}

func TestNone(tst *testing.T) {
	q := newQuadratic([]float64{1}, []float64{3}, -10, 10)
	n := NewNone()
	var buf bytes.Buffer
	n.SetOutput(&buf)
	n.SetOptimizable(q)
	if err := n.Run(100); err != nil {
		tst.Fatal("Error: ", err)
	}
	if n.GetMaxL() != -14 {
		tst.Errorf("Expected -14, got %v", n.GetMaxL())
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || lines[0] != "iteration\tlikelihood\ta" {
		tst.Fatalf("Unexpected trajectory %q", buf.String())
	}
	// trajectory lines can be read back
	q2 := newQuadratic([]float64{1}, []float64{0}, -10, 10)
	par := q2.GetFloatParameters()
	if err := par.ReadLine(lines[1]); err != nil {
		tst.Fatal("Error: ", err)
	}
	if q2.x[0] != 3 {
		tst.Errorf("Expected 3, got %v", q2.x[0])
	}
}

func TestRejectedStart(tst *testing.T) {
	q := newQuadratic([]float64{1}, []float64{3}, -10, 10)
	q.center[0] = math.NaN()
	n := NewNone()
	n.SetOptimizable(q)
	if err := n.Run(1); !errors.Is(err, ErrDidNotConverge) {
		tst.Error("Expected ErrDidNotConverge, got", err)
	}
}

func TestPenalized(tst *testing.T) {
	f := Penalized(func(x []float64) (float64, error) {
		if x[0] < 0 {
			return 0, errors.New("negative")
		}
		return x[0] * 2, nil
	})
	if v := f([]float64{2}); v != 4 {
		tst.Errorf("Expected 4, got %v", v)
	}
	if v := f([]float64{-1}); v != RejectedValue {
		tst.Errorf("Expected RejectedValue, got %v", v)
	}

	// minimizers see RejectedValue outside of the bounds
	q := newQuadratic([]float64{1}, []float64{3}, -10, 10)
	g := NewBFGS()
	g.SetOptimizable(q)
	if v := g.fn([]float64{20}); v != RejectedValue {
		tst.Errorf("Expected RejectedValue outside of the bounds, got %v", v)
	}
	if v := g.fn([]float64{2}); v != 11 {
		tst.Errorf("Expected 11, got %v", v)
	}
}

func TestCheckpoint(tst *testing.T) {
	db, err := checkpoint.Open(filepath.Join(tst.TempDir(), "cp.db"))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	defer db.Close()
	cio := checkpoint.NewIO(db, checkpoint.Key("quadratic"), 60)

	q := newQuadratic([]float64{1.5, -2}, []float64{0, 0}, -10, 10)
	ds := NewDS()
	ds.SetOptimizable(q)
	ds.SetCheckpointIO(cio)
	if err := ds.Run(10000); err != nil {
		tst.Fatal("Error: ", err)
	}

	data, err := cio.Load()
	if err != nil || data == nil {
		tst.Fatalf("Checkpoint not found: %v", err)
	}
	if !data.Final || data.Likelihood != ds.GetMaxL() {
		tst.Errorf("Unexpected checkpoint %+v", data)
	}

	q2 := newQuadratic([]float64{1.5, -2}, []float64{0, 0}, -10, 10)
	par := q2.GetFloatParameters()
	if err := par.SetFromMap(data.Parameters); err != nil {
		tst.Fatal("Error: ", err)
	}
	checkOptimum(tst, "checkpoint", q2, q.x, 0)
}

func TestSetFromMap(tst *testing.T) {
	q := newQuadratic([]float64{0, 0}, []float64{0, 0}, -10, 10)
	par := q.GetFloatParameters()
	if err := par.SetFromMap(map[string]float64{"a": 1}); err == nil {
		tst.Error("Expected an error for a missing parameter")
	}
	if err := par.SetFromMap(map[string]float64{"a": 1, "c": 2}); err == nil {
		tst.Error("Expected an error for an unknown parameter")
	}
	if err := par.SetFromMap(map[string]float64{"a": 1, "b": 2}); err != nil {
		tst.Error("Error: ", err)
	}
	if q.x[0] != 1 || q.x[1] != 2 {
		tst.Errorf("Unexpected values %v", q.x)
	}
}

func TestPriors(tst *testing.T) {
	u := UniformPrior(0, 2, true, false)
	if u(-1) != math.Inf(-1) || u(2) != math.Inf(-1) || u(0) != -math.Log(2) {
		tst.Error("Incorrect uniform prior")
	}
	p := ProductPrior(u, ExponentialPrior(1, true))
	if math.Abs(p(1)-(-math.Log(2)-1)) > 1e-12 {
		tst.Errorf("Incorrect product prior %v", p(1))
	}
	// gamma with shape 1 is exponential
	g1, e1 := GammaPrior(1, 0.5, true), ExponentialPrior(2, true)
	for _, x := range []float64{0, 0.3, 4} {
		if math.Abs(g1(x)-e1(x)) > 1e-12 {
			tst.Errorf("Gamma(1, 0.5) and Exp(2) differ at %v: %v != %v", x, g1(x), e1(x))
		}
	}
	if ExponentialPrior(2, false)(0) != math.Inf(-1) {
		tst.Error("Zero should be excluded")
	}
	if n := NormalPrior(1, 2)(1); math.Abs(n+math.Log(2*math.Sqrt(2*math.Pi))) > 1e-12 {
		tst.Errorf("Incorrect normal prior %v", n)
	}
	if FlatPrior()(1e100) != 0 {
		tst.Error("Flat prior should be zero")
	}
	g := UniformGlobalProposal(2, 3)
	for i := 0; i < 100; i++ {
		if v := g(0); v < 2 || v > 3 {
			tst.Fatalf("Proposal %v outside of [2, 3]", v)
		}
	}
}

func TestReflect(tst *testing.T) {
	inf := math.Inf(+1)
	for _, c := range []struct {
		x, min, max, exp float64
	}{
		{0.5, 0, 1, 0.5},
		{1.25, 0, 1, 0.75},
		{-0.25, 0, 1, 0.25},
		{2.25, 0, 1, 0.25},
		{-3, 1, inf, 5},
		{3, -inf, 1, -1},
		{7, -inf, inf, 7},
	} {
		if r := reflect(c.x, c.min, c.max); math.Abs(r-c.exp) > 1e-12 {
			tst.Errorf("reflect(%v, %v, %v): expected %v, got %v", c.x, c.min, c.max, c.exp, r)
		}
	}
}
