// Package cov provides parametric covariance structures for
// correlated random effects (identity, diagonal, AR1, compound
// symmetry and unstructured), their parameter domains and box
// constraints.
package cov

import (
	"fmt"
	"strconv"
)

// Family is a parametric covariance family.
type Family int

// Covariance families.
const (
	// sigma^2 * I
	IdentityMultiple Family = iota
	// diag(sigma_1^2, ..., sigma_p^2)
	Diagonal
	// sigma^2 * phi^|i-j|
	AR1Homogeneous
	// sigma_i * sigma_j * phi^|i-j|
	AR1Heterogeneous
	// sigma^2 on the diagonal, sigma^2 * rho elsewhere
	CompoundSymmetryHomogeneous
	// sigma_i^2 on the diagonal, sigma_i * sigma_j * rho elsewhere
	CompoundSymmetryHeterogeneous
	// parameters are the packed lower triangle of a Cholesky factor
	Unstructured
)

var familyNames = map[Family]string{
	IdentityMultiple:              "id",
	Diagonal:                      "diag",
	AR1Homogeneous:                "ar1",
	AR1Heterogeneous:              "ar1het",
	CompoundSymmetryHomogeneous:   "cs",
	CompoundSymmetryHeterogeneous: "cshet",
	Unstructured:                  "us",
}

// Families lists all the families in their declaration order.
var Families = []Family{
	IdentityMultiple,
	Diagonal,
	AR1Homogeneous,
	AR1Heterogeneous,
	CompoundSymmetryHomogeneous,
	CompoundSymmetryHeterogeneous,
	Unstructured,
}

// String returns the short name of the family.
func (f Family) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return "Family(" + strconv.Itoa(int(f)) + ")"
}

// Valid returns true for the known families.
func (f Family) Valid() bool {
	_, ok := familyNames[f]
	return ok
}

// parents lists the families obtained by relaxing a constraint of
// the key family. Unstructured contains every family.
var parents = map[Family][]Family{
	IdentityMultiple:              {Diagonal, AR1Homogeneous, CompoundSymmetryHomogeneous},
	Diagonal:                      {AR1Heterogeneous, CompoundSymmetryHeterogeneous},
	AR1Homogeneous:                {AR1Heterogeneous},
	CompoundSymmetryHomogeneous:   {CompoundSymmetryHeterogeneous},
	AR1Heterogeneous:              {Unstructured},
	CompoundSymmetryHeterogeneous: {Unstructured},
}

// NestedIn returns true if f is a proper special case of g.
func (f Family) NestedIn(g Family) bool {
	if f == g || !f.Valid() || !g.Valid() {
		return false
	}
	if g == Unstructured {
		return true
	}
	for _, h := range parents[f] {
		if h == g || h.NestedIn(g) {
			return true
		}
	}
	return false
}

// FamilyNames returns short names of all families.
func FamilyNames() []string {
	names := make([]string, len(Families))
	for i, f := range Families {
		names[i] = f.String()
	}
	return names
}

// ParseFamily returns a family given its short name.
func ParseFamily(s string) (Family, error) {
	for _, f := range Families {
		if f.String() == s {
			return f, nil
		}
	}
	return IdentityMultiple, fmt.Errorf("unknown covariance family: %s", s)
}

// Shape is a covariance family together with the block size, i.e.
// the number of correlated levels per group.
type Shape struct {
	Family Family
	P      int
}

// NewShape checks family and block size and returns a new Shape.
func NewShape(f Family, p int) (Shape, error) {
	if !f.Valid() {
		return Shape{}, fmt.Errorf("unknown covariance family: %v", f)
	}
	if p < 1 {
		return Shape{}, fmt.Errorf("block size should be >= 1, got %d", p)
	}
	return Shape{Family: f, P: p}, nil
}

// String returns family name with the block size, e.g. ar1(4).
func (s Shape) String() string {
	return s.Family.String() + "(" + strconv.Itoa(s.P) + ")"
}

// NParams returns the number of free shape parameters k(p).
func (s Shape) NParams() int {
	switch s.Family {
	case IdentityMultiple:
		return 1
	case Diagonal:
		return s.P
	case AR1Homogeneous, CompoundSymmetryHomogeneous:
		return 2
	case AR1Heterogeneous, CompoundSymmetryHeterogeneous:
		return s.P + 1
	case Unstructured:
		return s.P * (s.P + 1) / 2
	}
	panic("cov: unknown family")
}

// NScales returns the number of leading scale (standard deviation)
// parameters. Unstructured shapes have none.
func (s Shape) NScales() int {
	switch s.Family {
	case IdentityMultiple, AR1Homogeneous, CompoundSymmetryHomogeneous:
		return 1
	case Diagonal, AR1Heterogeneous, CompoundSymmetryHeterogeneous:
		return s.P
	}
	return 0
}

// HasCorrelation returns true if the last parameter is a correlation.
func (s Shape) HasCorrelation() bool {
	switch s.Family {
	case AR1Homogeneous, AR1Heterogeneous, CompoundSymmetryHomogeneous, CompoundSymmetryHeterogeneous:
		return true
	}
	return false
}

// ParamNames returns parameter names in the parameter vector order:
// scales first, the correlation last.
func (s Shape) ParamNames() []string {
	names := make([]string, 0, s.NParams())
	switch s.NScales() {
	case 0:
	case 1:
		names = append(names, "sigma")
	default:
		for i := 1; i <= s.P; i++ {
			names = append(names, "sigma"+strconv.Itoa(i))
		}
	}
	switch s.Family {
	case AR1Homogeneous, AR1Heterogeneous:
		names = append(names, "phi")
	case CompoundSymmetryHomogeneous, CompoundSymmetryHeterogeneous:
		names = append(names, "rho")
	case Unstructured:
		for c := 1; c <= s.P; c++ {
			for r := c; r <= s.P; r++ {
				names = append(names, fmt.Sprintf("L[%d,%d]", r, c))
			}
		}
	}
	return names
}

// DefaultParams returns a valid starting point: unit scales, zero
// correlation, identity Cholesky factor.
func (s Shape) DefaultParams() []float64 {
	par := make([]float64, s.NParams())
	if s.Family == Unstructured {
		i := 0
		for c := 0; c < s.P; c++ {
			par[i] = 1
			i += s.P - c
		}
		return par
	}
	for i := 0; i < s.NScales(); i++ {
		par[i] = 1
	}
	return par
}

// scales returns a slice of length p with the standard deviations,
// expanding the homogeneous scale.
func (s Shape) scales(par []float64) []float64 {
	sd := make([]float64, s.P)
	for i := range sd {
		if s.NScales() == 1 {
			sd[i] = par[0]
		} else {
			sd[i] = par[i]
		}
	}
	return sd
}
