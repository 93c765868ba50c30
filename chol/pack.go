package chol

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// PackedLen returns the length of the packed lower triangle of a
// p×p matrix.
func PackedLen(p int) int {
	return p * (p + 1) / 2
}

// Dim returns the matrix size p given the packed vector length.
func Dim(n int) (int, error) {
	p := int(math.Round((math.Sqrt(float64(8*n+1)) - 1) / 2))
	if n < 1 || PackedLen(p) != n {
		return 0, fmt.Errorf("%w: %d is not a triangular number", ErrBadLength, n)
	}
	return p, nil
}

// Pack returns the lower triangle of l in column-major order.
func Pack(l mat.Triangular) []float64 {
	return PackTo(nil, l)
}

// PackTo writes the lower triangle of l into dst, allocating it if
// dst is nil.
func PackTo(dst []float64, l mat.Triangular) []float64 {
	p, kind := l.Triangle()
	if kind != mat.Lower {
		panic("chol: upper triangular factor")
	}
	if dst == nil {
		dst = make([]float64, PackedLen(p))
	}
	if len(dst) != PackedLen(p) {
		panic("chol: bad destination length")
	}
	i := 0
	for c := 0; c < p; c++ {
		for r := c; r < p; r++ {
			dst[i] = l.At(r, c)
			i++
		}
	}
	return dst
}

// Unpack restores the p×p lower-triangular factor from its packed
// lower triangle.
func Unpack(v []float64, p int) (*mat.TriDense, error) {
	if p < 1 || len(v) != PackedLen(p) {
		return nil, fmt.Errorf("%w: expected %d entries for p=%d, got %d", ErrBadLength, PackedLen(p), p, len(v))
	}
	l := mat.NewTriDense(p, mat.Lower, nil)
	i := 0
	for c := 0; c < p; c++ {
		for r := c; r < p; r++ {
			l.SetTri(r, c, v[i])
			i++
		}
	}
	return l, nil
}
