package emath

import(
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffineFrom3PointsExact(t *testing.T) {
	want := Aff3{0.97, -0.12, 14.5, 0.09, 1.03, -6.25}
	src := [3]Point{{10, 10}, {80, 14}, {25, 70}}
	dst := [3]Point{}
	for i, p := range src {
		dst[i] = want.ApplyPoint(p)
	}

	got, err := AffineFrom3Points(src, dst)
	require.NoError(t, err)
	assert.True(t, got.ApproxEqual(want, 1e-9), "got %s", got)
}

func TestAffineFrom3PointsCollinear(t *testing.T) {
	src := [3]Point{{0, 0}, {1, 1}, {2, 2}}
	dst := [3]Point{{0, 0}, {1, 0}, {0, 1}}

	_, err := AffineFrom3Points(src, dst)
	assert.Error(t, err)
}

func TestAffineLeastSquaresNoisy(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	want := RotateAbout(3, 50, 50).Translate(4, -2)

	src, dst := []Point{}, []Point{}
	for i:=0; i<40; i++ {
		p := Point{rng.Float64() * 100, rng.Float64() * 100}
		q := want.ApplyPoint(p)
		q.X += rng.NormFloat64() * 0.05
		q.Y += rng.NormFloat64() * 0.05
		src = append(src, p)
		dst = append(dst, q)
	}

	got, err := AffineLeastSquares(src, dst)
	require.NoError(t, err)
	tx, ty := got.Translation()
	wx, wy := want.Translation()
	assert.InDelta(t, wx, tx, 0.1)
	assert.InDelta(t, wy, ty, 0.1)
	for _, i := range []int{0, 1, 3, 4} {
		assert.InDelta(t, want[i], got[i], 0.01)
	}
}

func TestAffineLeastSquaresTooFew(t *testing.T) {
	_, err := AffineLeastSquares([]Point{{0, 0}, {1, 0}}, []Point{{0, 0}, {1, 0}})
	assert.Error(t, err)
}

func TestTriangleArea(t *testing.T) {
	assert.InDelta(t, 50.0, TriangleArea(Point{0, 0}, Point{10, 0}, Point{0, 10}), 1e-12)
	assert.InDelta(t, 0.0, TriangleArea(Point{0, 0}, Point{5, 5}, Point{9, 9}), 1e-12)
}
