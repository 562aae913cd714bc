package emath

import(
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type Point struct {
	X, Y float64
}

func (p Point)Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// TriangleArea is the unsigned area spanned by three points.
func TriangleArea(a, b, c Point) float64 {
	return math.Abs((b.X-a.X)*(c.Y-a.Y) - (c.X-a.X)*(b.Y-a.Y)) / 2.0
}

// AffineFrom3Points returns the unique transform mapping src[i] onto
// dst[i]. Collinear source points have no unique solution.
func AffineFrom3Points(src, dst [3]Point) (Aff3, error) {
	if TriangleArea(src[0], src[1], src[2]) < 1e-9 {
		return Identity(), fmt.Errorf("affine from points: source points are collinear")
	}
	return AffineLeastSquares(src[:], dst[:])
}

// AffineLeastSquares fits a transform mapping src onto dst, minimising
// the squared residual; with exactly 3 non-collinear pairs it is exact.
func AffineLeastSquares(src, dst []Point) (Aff3, error) {
	n := len(src)
	if n < 3 || len(dst) != n {
		return Identity(), fmt.Errorf("affine from points: need >=3 pairs, got %d/%d", len(src), len(dst))
	}

	A := mat.NewDense(n, 3, nil)
	bx := mat.NewVecDense(n, nil)
	by := mat.NewVecDense(n, nil)
	for i:=0; i<n; i++ {
		A.SetRow(i, []float64{src[i].X, src[i].Y, 1})
		bx.SetVec(i, dst[i].X)
		by.SetVec(i, dst[i].Y)
	}

	var rowX, rowY mat.VecDense
	if err := rowX.SolveVec(A, bx); err != nil {
		return Identity(), fmt.Errorf("affine from points, x row: %w", err)
	}
	if err := rowY.SolveVec(A, by); err != nil {
		return Identity(), fmt.Errorf("affine from points, y row: %w", err)
	}

	m := Aff3{
		rowX.AtVec(0), rowX.AtVec(1), rowX.AtVec(2),
		rowY.AtVec(0), rowY.AtVec(1), rowY.AtVec(2),
	}
	if !m.IsFinite() {
		return Identity(), fmt.Errorf("affine from points: degenerate solution %s", m)
	}
	return m, nil
}
