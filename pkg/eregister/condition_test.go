package eregister

import(
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/stackreg/pkg/emath"
)

func TestConditionExplicitClip(t *testing.T) {
	fg, err := emath.NewFloatGridFrom(5, 1, []float64{-3, 10, 15, 20, 99})
	require.NoError(t, err)

	img := Condition(fg, &ClipBounds{Low: 10, High: 30})
	// clamped: 10 10 15 20 30, shifted by 10: 0 0 5 10 20, scaled by 255/20
	assert.Equal(t, []uint8{0, 0, 64, 128, 255}, img.Pix)
	assert.Equal(t, 99.0, fg.Get(4, 0), "input untouched")
}

func TestConditionAutoClip(t *testing.T) {
	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = float64(i % 10)
	}
	vals[0] = 1000 // outlier, clamped to mean+2std
	fg, err := emath.NewFloatGridFrom(10, 10, vals)
	require.NoError(t, err)

	img := Condition(fg, nil)
	assert.Equal(t, uint8(255), img.Pix[0])
	assert.Equal(t, uint8(0), img.Pix[10], "minimum maps to zero")
	assert.Less(t, img.Pix[9], uint8(20), "the outlier compresses the rest")
}

func TestConditionFlatAndNaN(t *testing.T) {
	flat := emath.NewFloatGrid(4, 4)
	flat.Fill(7)
	for _, v := range Condition(flat, nil).Pix {
		assert.Equal(t, uint8(0), v)
	}

	fg, err := emath.NewFloatGridFrom(3, 1, []float64{math.NaN(), 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 255}, Condition(fg, &ClipBounds{Low: 1, High: 2}).Pix)
}

func TestConditionedHistogram(t *testing.T) {
	fg, err := emath.NewFloatGridFrom(4, 1, []float64{0, 0, 1, 1})
	require.NoError(t, err)
	h := ConditionedHistogram(Condition(fg, &ClipBounds{Low: 0, High: 1}))
	assert.Equal(t, 256, h.NumBuckets)
	assert.NotEmpty(t, fmt.Sprintf("%v", h))
}
