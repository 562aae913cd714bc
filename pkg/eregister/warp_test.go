package eregister

import(
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/stackreg/pkg/emath"
)

func TestWarpIdentityCopiesExactly(t *testing.T) {
	f := noiseFrame(20, 15, 3)
	out := WarpFrame(f, emath.Identity(), InterpBilinear)
	assert.Equal(t, f.Values(), out.Values())

	out.Set(0, 0, -1)
	assert.NotEqual(t, -1.0, f.Get(0, 0), "output is a new frame")
}

func TestWarpTranslationAndMissing(t *testing.T) {
	f := blobFrame(40, 40, 0, 0)
	out := WarpFrame(f, emath.Translation(3, -2), InterpBilinear)

	// out(p) = f(p + (3,-2))
	assert.InDelta(t, f.Get(13, 8), out.Get(10, 10), 1e-12)
	assert.True(t, math.IsNaN(out.Get(38, 5)), "beyond the right edge")
	assert.True(t, math.IsNaN(out.Get(5, 1)), "beyond the top edge")
	assert.False(t, math.IsNaN(out.Get(36, 2)))
}

func TestWarpRoundTrip(t *testing.T) {
	f := blobFrame(64, 64, 0, 0)
	m := emath.RotateAbout(2, 32, 32).Translate(1.3, -0.7)
	inv, ok := m.Inverse()
	require.True(t, ok)

	there := WarpFrame(f, m, InterpBilinear)
	back := WarpFrame(there, inv, InterpBilinear)

	checked := 0
	for y:=0; y<64; y++ {
		for x:=0; x<64; x++ {
			v := back.Get(x, y)
			if math.IsNaN(v) {
				continue
			}
			checked++
			assert.InDelta(t, f.Get(x, y), v, 0.03, "at (%d,%d)", x, y)
		}
	}
	assert.Greater(t, checked, 64*64*3/4)
	assert.True(t, math.IsNaN(back.Get(0, 0)) || math.IsNaN(back.Get(63, 63)) || math.IsNaN(back.Get(63, 0)) || math.IsNaN(back.Get(0, 63)),
		"some border pixel is missing")
}

func TestWarpNearestKeepsValues(t *testing.T) {
	f := emath.NewFloatGrid(10, 10)
	for i := range f.Values() {
		f.Values()[i] = float64(i % 3)
	}
	out := WarpFrame(f, emath.Translation(0.4, 0.4), InterpNearest)
	for _, v := range out.Values() {
		if !math.IsNaN(v) {
			assert.Contains(t, []float64{0, 1, 2}, v)
		}
	}
}

func TestWarpStack(t *testing.T) {
	s := NewStack([]emath.FloatGrid{blobFrame(32, 32, 0, 0), blobFrame(32, 32, 1, 0), blobFrame(32, 32, 2, 0)})
	abs := AbsoluteSet{emath.Identity(), emath.Translation(1, 0), emath.Translation(2, 0)}

	out, err := WarpStack(s, abs, WarpOptions{Interpolation: InterpBilinear, Workers: 2})
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, s.Labels, out.Labels)
	for i := range out.Frames {
		assert.InDelta(t, s.Frames[0].Get(10, 10), out.Frames[i].Get(10, 10), 1e-12, "frame %d", i)
	}

	_, err = WarpStack(s, abs[:2], WarpOptions{Workers: 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
