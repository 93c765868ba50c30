package transform

import (
	"errors"
	"math"
	"sync"
	"testing"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/Davydov/covfit/chol"
	"bitbucket.org/Davydov/covfit/cov"
)

func relEq(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b))
}

func newTransform(tst *testing.T, f cov.Family, p int) *Transform {
	t, err := New(cov.Shape{Family: f, P: p})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	return t
}

func TestEvaluateIdentity(tst *testing.T) {
	t := newTransform(tst, cov.IdentityMultiple, 1)
	for _, sigma := range []float64{1e-3, 0.7, 1, 42} {
		theta, err := t.Evaluate([]float64{sigma})
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		if len(theta) != 1 || theta[0] != sigma {
			tst.Errorf("sigma=%v: expected [%v], got %v", sigma, sigma, theta)
		}
	}
}

func TestJacobianIdentity(tst *testing.T) {
	t := newTransform(tst, cov.IdentityMultiple, 1)
	for _, sigma := range []float64{1e-3, 0.7, 1, 42} {
		jac, err := t.Jacobian([]float64{sigma}, nil)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		if r, c := jac.Dims(); r != 1 || c != 1 {
			tst.Fatalf("Expected 1×1 Jacobian, got %d×%d", r, c)
		}
		if !relEq(jac.At(0, 0), 1, 1e-9) {
			tst.Errorf("sigma=%v: expected derivative 1, got %v", sigma, jac.At(0, 0))
		}
	}

	// sigma·I for p=3: derivative is 1 on the diagonal entries
	t = newTransform(tst, cov.IdentityMultiple, 3)
	jac, err := t.Jacobian([]float64{2}, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	expected := []float64{1, 0, 0, 1, 0, 1}
	for j, v := range expected {
		if math.Abs(jac.At(0, j)-v) > 1e-9 {
			tst.Errorf("Entry %d: expected %v, got %v", j, v, jac.At(0, j))
		}
	}
}

func TestEvaluateMatchesDecomposition(tst *testing.T) {
	cases := []struct {
		f   cov.Family
		p   int
		par []float64
	}{
		{cov.Diagonal, 3, []float64{1, 2, 3}},
		{cov.AR1Homogeneous, 4, []float64{1, 0.8}},
		{cov.AR1Heterogeneous, 3, []float64{1, 2, 0.5, -0.7}},
		{cov.CompoundSymmetryHomogeneous, 3, []float64{2, 0.5}},
		{cov.CompoundSymmetryHeterogeneous, 4, []float64{1, 2, 3, 4, -0.2}},
		{cov.Unstructured, 2, []float64{1, 0.5, 2}},
	}
	for _, c := range cases {
		t := newTransform(tst, c.f, c.p)
		theta, err := t.Evaluate(c.par)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		if len(theta) != t.NOut() {
			tst.Errorf("%v: expected %d values, got %d", t.Shape(), t.NOut(), len(theta))
		}
		m, err := cov.Build(t.Shape(), c.par)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		l, err := chol.Decompose(m)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		for i, v := range chol.Pack(l) {
			if !relEq(theta[i], v, 1e-10) {
				tst.Errorf("%v: entry %d expected %v, got %v", t.Shape(), i, v, theta[i])
			}
		}
	}
}

func TestEvaluateInvalid(tst *testing.T) {
	t := newTransform(tst, cov.AR1Homogeneous, 3)
	for _, par := range [][]float64{{1, 1}, {1, -1}, {-1, 0.5}, {1, math.Inf(1)}, {1}} {
		if _, err := t.Evaluate(par); !errors.Is(err, cov.ErrInvalidParameter) {
			tst.Errorf("%v: expected ErrInvalidParameter, got %v", par, err)
		}
	}
	if _, err := New(cov.Shape{Family: cov.Unstructured, P: 0}); err == nil {
		tst.Error("Expected an error for p=0")
	}
}

func TestEvaluateAtBoxCorners(tst *testing.T) {
	for _, f := range cov.Families {
		for _, p := range []int{1, 2, 3, 6} {
			t := newTransform(tst, f, p)
			lower, upper := t.BoxConstraints()
			for _, corner := range [][]float64{lower, upper} {
				par := t.DefaultParams()
				for i, v := range corner {
					if !math.IsInf(v, 0) {
						par[i] = v
					}
				}
				if _, err := t.Evaluate(par); err != nil {
					tst.Errorf("%v at %v: %v", t.Shape(), par, err)
				}
			}
			// just outside of the scale bound
			if n := t.Shape().NScales(); n > 0 {
				par := t.DefaultParams()
				par[0] = upper[0] * 2
				if _, err := t.Evaluate(par); !errors.Is(err, cov.ErrInvalidParameter) {
					tst.Errorf("%v at %v: expected ErrInvalidParameter, got %v", t.Shape(), par, err)
				}
			}
		}
	}
}

func TestObjective(tst *testing.T) {
	t := newTransform(tst, cov.AR1Homogeneous, 2)
	calls := 0
	dev := func(x []float64) (float64, error) {
		calls++
		if x[0] > 10 {
			return 0, errors.New("degenerate")
		}
		return x[0] * x[0], nil
	}
	f := Objective(t, dev)
	if v, err := f([]float64{2, 0.5}); err != nil || v != 4 {
		tst.Errorf("Expected 4, got %v, %v", v, err)
	}
	if _, err := f([]float64{2, 1}); !errors.Is(err, cov.ErrInvalidParameter) {
		tst.Errorf("Invalid phi: expected ErrInvalidParameter, got %v", err)
	}
	if _, err := f([]float64{20, 0}); err == nil {
		tst.Error("Deviance failure should be returned")
	}
	if calls != 2 {
		tst.Errorf("Deviance should not be called for invalid parameters, calls=%d", calls)
	}
	nan := Objective(t, func(x []float64) (float64, error) { return math.NaN(), nil })
	if _, err := nan([]float64{1, 0}); err == nil {
		tst.Error("NaN deviance should be an error")
	}
}

func TestComposite(tst *testing.T) {
	a := newTransform(tst, cov.AR1Homogeneous, 3)
	b := newTransform(tst, cov.IdentityMultiple, 1)
	c, err := NewComposite([]Mapping{a, b}, Free{Name: "sigma_e", Start: 1, Lower: cov.MinScale, Upper: math.Inf(1)})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if c.NParams() != 4 || c.NOut() != 8 {
		tst.Fatalf("Expected 4 parameters and 8 outputs, got %d and %d", c.NParams(), c.NOut())
	}
	names := c.ParamNames()
	if names[0] != "1.sigma" || names[2] != "2.sigma" || names[3] != "sigma_e" {
		tst.Errorf("Unexpected names %v", names)
	}
	out, err := c.Evaluate([]float64{1, 0.8, 3, 0.5})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	theta, _ := a.Evaluate([]float64{1, 0.8})
	for i, v := range theta {
		if out[i] != v {
			tst.Errorf("Entry %d: expected %v, got %v", i, v, out[i])
		}
	}
	if out[6] != 3 || out[7] != 0.5 {
		tst.Errorf("Unexpected tail %v", out[6:])
	}
	if _, err := c.Evaluate([]float64{1, 0.8, 3, -1}); !errors.Is(err, cov.ErrInvalidParameter) {
		tst.Error("Expected ErrInvalidParameter for a negative free parameter, got", err)
	}
	lower, upper := c.BoxConstraints()
	if len(lower) != 4 || lower[1] != -cov.MaxCorrelation || upper[3] != math.Inf(1) {
		tst.Errorf("Unexpected bounds %v %v", lower, upper)
	}
	jac, err := Jacobian(c, []float64{1, 0.8, 3, 0.5}, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if r, k := jac.Dims(); r != 4 || k != 8 {
		tst.Errorf("Expected 4×8 Jacobian, got %d×%d", r, k)
	}
	if !relEq(jac.At(3, 7), 1, 1e-9) || math.Abs(jac.At(3, 0)) > 1e-9 {
		tst.Errorf("Unexpected free parameter derivatives %v", mat.Formatted(jac))
	}
}

func TestKroneckerTransform(tst *testing.T) {
	a := newTransform(tst, cov.Unstructured, 2)
	b := newTransform(tst, cov.AR1Homogeneous, 3)
	k := NewKronecker(a, b)
	if k.NParams() != 4 {
		tst.Fatalf("Expected 4 parameters, got %v", k.ParamNames())
	}
	if names := k.ParamNames(); names[3] != "B.phi" {
		tst.Errorf("Unexpected names %v", names)
	}
	par := []float64{2, 0.5, 1, 0.6}
	theta, err := k.Evaluate(par)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if len(theta) != 21 {
		tst.Fatalf("Expected 21 values, got %d", len(theta))
	}
	l, err := chol.Unpack(theta, 6)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// B has unit standard deviations
	ma, _ := a.Covariance(par[:3])
	mb, _ := b.Covariance([]float64{1, 0.6})
	var expected mat.Dense
	expected.Kronecker(ma, mb)
	if !mat.EqualApprox(chol.Cross(l), &expected, 1e-12) {
		tst.Errorf("Expected\n%v\ngot\n%v", mat.Formatted(&expected), mat.Formatted(chol.Cross(l)))
	}
}

// minSingular returns the smallest singular value of m.
func minSingular(tst *testing.T, m mat.Matrix) float64 {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDNone); !ok {
		tst.Fatal("SVD failed")
	}
	v := svd.Values(nil)
	return v[len(v)-1]
}

func TestKroneckerIdentifiable(tst *testing.T) {
	for _, c := range []struct {
		a, b cov.Family
		par  []float64
	}{
		{cov.AR1Homogeneous, cov.AR1Homogeneous, []float64{2, 0.5, 0.3}},
		{cov.Diagonal, cov.CompoundSymmetryHeterogeneous, []float64{1.5, 0.7, 0.2}},
		{cov.Unstructured, cov.Unstructured, []float64{2, 0.5, 1, 0.4, 1.2}},
		{cov.IdentityMultiple, cov.Diagonal, []float64{3}},
	} {
		k := NewKronecker(newTransform(tst, c.a, 2), newTransform(tst, c.b, 2))
		if k.NParams() != len(c.par) {
			tst.Fatalf("%v⊗%v: expected %d parameters, got %v", c.a, c.b, len(c.par), k.ParamNames())
		}
		jac, err := Jacobian(k, c.par, Theta(k))
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		if sv := minSingular(tst, jac); sv < 1e-6 {
			tst.Errorf("%v⊗%v: Jacobian is rank deficient, smallest singular value %v", c.a, c.b, sv)
		}
	}

	// the scale can no longer move between the factors
	k := NewKronecker(newTransform(tst, cov.AR1Homogeneous, 2), newTransform(tst, cov.AR1Homogeneous, 2))
	t1, _ := k.Evaluate([]float64{2, 0.5, 0.3})
	t2, _ := k.Evaluate([]float64{1, 0.5, 0.3})
	if relEq(t1[0], t2[0], 1e-12) {
		tst.Errorf("Different scales give the same factor %v", t1)
	}
}

func TestStdDevCorrJacobian(tst *testing.T) {
	t := newTransform(tst, cov.AR1Heterogeneous, 3)
	par := []float64{1, 2, 3, 0.5}
	sdc, err := StdDevCorr(t)(par)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// sd1..3, cor2.1, cor3.1, cor3.2
	expected := []float64{1, 2, 3, 0.5, 0.25, 0.5}
	for i, v := range expected {
		if !relEq(sdc[i], v, 1e-12) {
			tst.Errorf("Entry %d: expected %v, got %v", i, v, sdc[i])
		}
	}
	jac, err := t.Jacobian(par, StdDevCorr(t))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// d cor3.1 / d phi = 2 phi
	if !relEq(jac.At(3, 4), 1, 1e-6) || !relEq(jac.At(1, 1), 1, 1e-6) || math.Abs(jac.At(0, 4)) > 1e-6 {
		tst.Errorf("Unexpected Jacobian\n%v", mat.Formatted(jac))
	}
	if len(StdDevCorrNames(3)) != 6 || StdDevCorrNames(3)[4] != "cor3.1" {
		tst.Errorf("Unexpected names %v", StdDevCorrNames(3))
	}
}

func TestJacobianAtBound(tst *testing.T) {
	t := newTransform(tst, cov.AR1Homogeneous, 2)
	if _, err := t.Jacobian([]float64{1, cov.MaxCorrelation}, nil); !errors.Is(err, cov.ErrInvalidParameter) {
		tst.Error("Expected ErrInvalidParameter at the bound, got", err)
	}
	// close to the bound the step shrinks
	jac, err := t.Jacobian([]float64{1, cov.MaxCorrelation - 1e-9}, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// theta = [1, phi, sqrt(1-phi²)], d theta_1 / d phi = 1
	if !relEq(jac.At(1, 1), 1, 1e-4) {
		tst.Errorf("Expected 1, got %v", jac.At(1, 1))
	}
}

// Deviance = 2·NLL, hence the deviance Hessian inverse is half the
// covariance.
func TestDeltaScale(tst *testing.T) {
	// NLL of n iid N(0, sigma²), sigma at the MLE
	n := 50.0
	s2 := 2.25
	nll := func(x []float64) (float64, error) {
		return n*math.Log(x[0]) + n*s2/(2*x[0]*x[0]), nil
	}
	dev := func(x []float64) (float64, error) {
		v, err := nll(x)
		return 2 * v, err
	}
	sigma := math.Sqrt(s2)
	lower, upper := []float64{cov.MinScale}, []float64{math.Inf(1)}
	hn, err := Hessian(nll, []float64{sigma}, lower, upper)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	hd, err := Hessian(dev, []float64{sigma}, lower, upper)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if !relEq(hn.At(0, 0), 2*n/s2, 1e-5) {
		tst.Errorf("Expected NLL Hessian %v, got %v", 2*n/s2, hn.At(0, 0))
	}
	if !relEq(hd.At(0, 0), 2*hn.At(0, 0), 1e-9) {
		tst.Errorf("Deviance Hessian %v should be twice the NLL Hessian %v", hd.At(0, 0), hn.At(0, 0))
	}

	t := newTransform(tst, cov.IdentityMultiple, 1)
	jsd, err := t.Jacobian([]float64{sigma}, Identity)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	cn, err := DeltaCovariance(jsd, hn, NegLogLik)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	cd, err := DeltaCovariance(jsd, hd, Deviance)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// var(sigma) = sigma²/(2n)
	if !relEq(cn.At(0, 0), s2/(2*n), 1e-5) {
		tst.Errorf("Expected var(sigma)=%v, got %v", s2/(2*n), cn.At(0, 0))
	}
	if !relEq(cd.At(0, 0), cn.At(0, 0), 1e-9) {
		tst.Errorf("Deviance scale %v and NLL scale %v covariances differ", cd.At(0, 0), cn.At(0, 0))
	}
	wrong, _ := DeltaCovariance(jsd, hd, NegLogLik)
	if !relEq(2*wrong.At(0, 0), cn.At(0, 0), 1e-9) {
		tst.Errorf("Expected the factor of two between scales, got %v and %v", wrong.At(0, 0), cn.At(0, 0))
	}

	// var(sigma²) = 2 sigma⁴ / n
	jvar, err := t.Jacobian([]float64{sigma}, VarCov(t))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	cv, err := DeltaCovariance(jvar, hn, NegLogLik)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if !relEq(cv.At(0, 0), 2*s2*s2/n, 1e-5) {
		tst.Errorf("Expected var(sigma²)=%v, got %v", 2*s2*s2/n, cv.At(0, 0))
	}
	if se := StdErrors(cv); !relEq(se[0], math.Sqrt(2*s2*s2/n), 1e-5) {
		tst.Errorf("Unexpected standard error %v", se)
	}
}

func TestPullbackHessian(tst *testing.T) {
	// internal NLL(theta) = ½ a (theta - 1)², theta = sigma
	a := 3.0
	t := newTransform(tst, cov.IdentityMultiple, 1)
	jac, err := t.Jacobian([]float64{1}, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	h := PullbackHessian(jac, mat.NewSymDense(1, []float64{a}))
	if !relEq(h.At(0, 0), a, 1e-9) {
		tst.Errorf("Expected %v, got %v", a, h.At(0, 0))
	}

	// theta = [sigma, 0, sigma] for p=2 and H = diag(a, 1, a)
	t = newTransform(tst, cov.IdentityMultiple, 2)
	jac, err = t.Jacobian([]float64{1}, nil)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	h = PullbackHessian(jac, mat.NewSymDense(3, []float64{a, 0, 0, 0, 1, 0, 0, 0, a}))
	if !relEq(h.At(0, 0), 2*a, 1e-9) {
		tst.Errorf("Expected %v, got %v", 2*a, h.At(0, 0))
	}
}

func TestDeltaSingular(tst *testing.T) {
	jac := mat.NewDense(2, 1, []float64{1, 1})
	_, err := DeltaCovariance(jac, mat.NewSymDense(2, []float64{1, 1, 1, 1}), NegLogLik)
	if !errors.Is(err, chol.ErrNotPositiveDefinite) {
		tst.Error("Expected ErrNotPositiveDefinite, got", err)
	}
}

func TestConcurrentEvaluate(tst *testing.T) {
	t := newTransform(tst, cov.CompoundSymmetryHeterogeneous, 4)
	k := NewKronecker(newTransform(tst, cov.AR1Homogeneous, 2), newTransform(tst, cov.AR1Homogeneous, 3))
	cases := []struct {
		m   Mapping
		par []float64
	}{
		{t, []float64{1, 2, 0.5, 3, 0.3}},
		{k, []float64{1.5, 0.4, 0.7}},
	}
	for _, c := range cases {
		theta, err := c.m.Evaluate(c.par)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		jac, err := Jacobian(c.m, c.par, nil)
		if err != nil {
			tst.Fatal("Error: ", err)
		}

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					v, err := c.m.Evaluate(c.par)
					if err != nil {
						tst.Error("Error: ", err)
						return
					}
					for j := range v {
						if v[j] != theta[j] {
							tst.Errorf("Concurrent evaluation differs: %v != %v", v, theta)
							return
						}
					}
					j, err := Jacobian(c.m, c.par, nil)
					if err != nil {
						tst.Error("Error: ", err)
						return
					}
					if !mat.Equal(j, jac) {
						tst.Errorf("Concurrent Jacobian differs:\n%v", mat.Formatted(j))
						return
					}
				}
			}()
		}
		wg.Wait()
	}
}
