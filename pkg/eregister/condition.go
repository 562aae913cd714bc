package eregister

import(
	"image"
	"math"

	"github.com/skypies/util/histogram"
	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/stackreg/pkg/emath"
)

// Condition maps a frame into 8 bits, for feature detection. With clip
// bounds, values are clamped to them; without, to mean +/- 2 std. The
// clamped values are shifted to start at zero, and the max scaled to
// 255. The frame itself is not modified.
func Condition(frame emath.FloatGrid, clip *ClipBounds) *image.Gray {
	w, h := frame.Dx(), frame.Dy()
	vals := []float64{}
	for _, v := range frame.Values() {
		if !math.IsNaN(v) { vals = append(vals, v) }
	}

	lo, hi := 0.0, 0.0
	if clip != nil {
		lo, hi = clip.Low, clip.High
	} else if len(vals) > 0 {
		mu, sigma := stat.PopMeanStdDev(vals, nil)
		lo, hi = mu - 2*sigma, mu + 2*sigma
	}

	clamped := make([]float64, w*h)
	min, max := math.Inf(1), math.Inf(-1)
	for i, v := range frame.Values() {
		if math.IsNaN(v) {
			clamped[i] = math.NaN()
			continue
		}
		v = math.Min(math.Max(v, lo), hi)
		clamped[i] = v
		if v < min { min = v }
		if v > max { max = v }
	}

	// Explicit bounds shift by the lower bound, not by the data minimum
	shift := min
	if clip != nil { shift = lo }

	img := image.NewGray(image.Rect(0, 0, w, h))
	scale := 0.0
	if top := max - shift; top > 0 && !math.IsInf(top, 0) {
		scale = 255.0 / top
	}
	for i, v := range clamped {
		if math.IsNaN(v) { continue }
		img.Pix[(i/w)*img.Stride + i%w] = emath.Clamp8((v - shift) * scale)
	}
	return img
}

// ConditionedHistogram buckets the 8 bit values; a clip range that is
// too wide shows up as everything piled into a few buckets.
func ConditionedHistogram(img *image.Gray) histogram.Histogram {
	h := histogram.Histogram{NumBuckets:256, ValMin:0, ValMax:256}
	for _, v := range img.Pix {
		h.Add(histogram.ScalarVal(int(v)))
	}
	return h
}
