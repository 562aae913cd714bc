package emath

import(
	"fmt"
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// A FloatGrid is a grid of floats, with some operations. It is the
// in-memory form of a single frame; NaN is the missing-value marker.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewFloatGridFrom wraps row-major values; len(values) must be w*h.
func NewFloatGridFrom(w, h int, values []float64) (FloatGrid, error) {
	if w <= 0 || h <= 0 || len(values) != w*h {
		return FloatGrid{}, fmt.Errorf("grid %dx%d needs %d values, got %d", w, h, w*h, len(values))
	}
	return FloatGrid{stride: w, values: values}, nil
}

// NewNaNGrid returns a grid where every sample is missing
func NewNaNGrid(w, h int) FloatGrid {
	g := NewFloatGrid(w, h)
	g.Fill(math.NaN())
	return g
}

func (g1 *FloatGrid)NewFromThis() FloatGrid  { return NewFloatGrid(g1.Dx(), g1.Dy()) }
func (fg *FloatGrid)Set(x, y int, v float64) { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float64    { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Values() []float64       { return fg.values }
func (fg *FloatGrid)Bounds() image.Rectangle { return image.Rect(0, 0, fg.Dx(), fg.Dy()) }
func (fg *FloatGrid)SameSize(o FloatGrid) bool { return fg.Dx() == o.Dx() && fg.Dy() == o.Dy() }

func (fg *FloatGrid)Dx() int {
	return fg.stride
}

func (fg *FloatGrid)Dy() int {
	if fg.stride == 0 { return 0 }
	return len(fg.values) / fg.stride
}

func (g1 *FloatGrid)Copy() *FloatGrid {
	g2 := FloatGrid{stride: g1.stride, values:make([]float64, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

func (fg *FloatGrid)Fill(v float64) {
	for i := range fg.values {
		fg.values[i] = v
	}
}

func (fg *FloatGrid)HasNaN() bool {
	for _, v := range fg.values {
		if math.IsNaN(v) { return true }
	}
	return false
}

// ValidBounds returns the bounding box of the non-NaN samples. The
// bool is false if there are none.
func (fg *FloatGrid)ValidBounds() (image.Rectangle, bool) {
	minX, minY := fg.Dx(), fg.Dy()
	maxX, maxY := -1, -1

	for y:=0; y<fg.Dy(); y++ {
		for x:=0; x<fg.Dx(); x++ {
			if math.IsNaN(fg.Get(x,y)) { continue }
			if x < minX { minX = x }
			if x > maxX { maxX = x }
			if y < minY { minY = y }
			if y > maxY { maxY = y }
		}
	}

	if maxX < 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// Crop returns a new grid holding the samples inside r, which must lie within the grid.
func (fg *FloatGrid)Crop(r image.Rectangle) FloatGrid {
	g2 := NewFloatGrid(r.Dx(), r.Dy())
	for y:=0; y<r.Dy(); y++ {
		copy(g2.values[y*g2.stride:(y+1)*g2.stride], fg.values[(r.Min.Y+y)*fg.stride+r.Min.X:])
	}
	return g2
}

// MeanStdDev over the non-NaN samples; std is the population std.
func (fg *FloatGrid)MeanStdDev() (float64, float64) {
	vals := make([]float64, 0, len(fg.values))
	for _, v := range fg.values {
		if !math.IsNaN(v) { vals = append(vals, v) }
	}
	if len(vals) == 0 {
		return math.NaN(), math.NaN()
	}
	mean, std := stat.PopMeanStdDev(vals, nil)
	return mean, std
}

// GaussianBlur is a [1 2 1]/4 kernel in each direction; repeat it to
// widen the kernel. Edges replicate.
func (g1 FloatGrid)GaussianBlur() FloatGrid {
	width := g1.Dx()
	height := g1.Dy()
	g2 := g1.NewFromThis()
	if width < 2 || height < 2 {
		copy(g2.values, g1.values)
		return g2
	}

	T  := g1.NewFromThis()

	//--- X blur, build up in T
	for y:=0; y<height; y++ {
		for x:=1; x<width-1; x++ {
			t := 2.0*g1.Get(x,y)
			t += g1.Get(x-1,y)
			t += g1.Get(x+1,y)
			T.Set(x, y, t/4.0)
		}
		T.Set(0, y,       (3.0*g1.Get(0,      y) + g1.Get(1,      y)) / 4.0)
		T.Set(width-1, y, (3.0*g1.Get(width-1,y) + g1.Get(width-2,y)) / 4.0)
	}

	//--- Y blur, read from T and generate output
	for x:=0; x<width; x++ {
		for y:=1; y<height-1; y++ {
			t := 2.0*T.Get(x,y)
			t += T.Get(x,y-1)
			t += T.Get(x,y+1)
			g2.Set(x, y, t/4.0)
		}
		g2.Set(x, 0,        (3.0*T.Get(x,       0) + T.Get(x,       1)) / 4.0)
		g2.Set(x, height-1, (3.0*T.Get(x,height-1) + T.Get(x,height-2)) / 4.0)
	}

	return g2
}

// Smooth approximates a Gaussian of the given odd kernel size by
// repeated binomial passes (size 5 == [1 4 6 4 1]/16). Sizes < 3 are a no-op copy.
func (g1 FloatGrid)Smooth(kernelSize int) FloatGrid {
	out := *g1.Copy()
	for i:=0; i<(kernelSize-1)/2; i++ {
		out = out.GaussianBlur()
	}
	return out
}

// Gradients returns central-difference d/dx and d/dy; zero on the outermost pixels.
func (g *FloatGrid)Gradients() (FloatGrid, FloatGrid) {
	gx := g.NewFromThis()
	gy := g.NewFromThis()

	for y:=1; y<g.Dy()-1; y++ {
		for x:=1; x<g.Dx()-1; x++ {
			gx.Set(x, y, (g.Get(x+1,y) - g.Get(x-1,y)) / 2.0)
			gy.Set(x, y, (g.Get(x,y+1) - g.Get(x,y-1)) / 2.0)
		}
	}
	return gx, gy
}

// Bilinear samples the grid at a fractional location. It returns false
// if (x,y) is outside [0,Dx-1]x[0,Dy-1]. Neighbours with zero weight are
// never read, so sampling exactly on a pixel returns that pixel even if
// its neighbours are NaN.
func (fg *FloatGrid)Bilinear(x, y float64) (float64, bool) {
	const slack = 1e-9
	w, h := float64(fg.Dx()-1), float64(fg.Dy()-1)
	if !(x >= -slack && x <= w+slack && y >= -slack && y <= h+slack) {
		return 0, false
	}
	x = math.Min(math.Max(x, 0), w)
	y = math.Min(math.Max(y, 0), h)

	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)

	v := 0.0
	add := func(xi, yi int, wt float64) {
		if wt != 0 { v += wt * fg.Get(xi, yi) }
	}
	add(x0, y0, (1-fx)*(1-fy))
	if fx > 0 { add(x0+1, y0, fx*(1-fy)) }
	if fy > 0 { add(x0, y0+1, (1-fx)*fy) }
	if fx > 0 && fy > 0 { add(x0+1, y0+1, fx*fy) }

	return v, true
}

// Nearest samples the closest pixel, with the same bounds rule as Bilinear.
func (fg *FloatGrid)Nearest(x, y float64) (float64, bool) {
	xi, yi := int(math.Round(x)), int(math.Round(y))
	if xi < 0 || yi < 0 || xi >= fg.Dx() || yi >= fg.Dy() || math.IsNaN(x) || math.IsNaN(y) {
		return 0, false
	}
	return fg.Get(xi, yi), true
}

// FindMinMaxAtPercentile ignores NaN samples; both percentiles are in [0,1].
func (I *FloatGrid)FindMinMaxAtPercentile(minPrct, maxPrct float64) (float64, float64) {
	vI := []float64{}

	for i:=0 ; i<len(I.values) ; i++ {
		if val := I.values[i]; !math.IsNaN(val) {
			vI = append(vI, val)
		}
	}
	if len(vI) == 0 {
		return 0, 0
	}

	sort.Float64s(vI)

	iMin := int(minPrct * float64(len(vI)))
	iMax := int(maxPrct * float64(len(vI)))
	if iMin < 0        { iMin = 0 }
	if iMax >= len(vI) { iMax = len(vI)-1 }

	return vI[iMin], vI[iMax]
}

func (fg *FloatGrid)Stats() string {
	min := math.MaxFloat64
	max := -1.0  * min
	nNaN := 0

	for i:=0 ; i<len(fg.values) ; i++ {
		if math.IsNaN(fg.values[i]) { nNaN++; continue }
		if fg.values[i] > max { max = fg.values[i] }
		if fg.values[i] < min { min = fg.values[i] }
	}
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}, nan:%d]", fg.Dx(), fg.Dy(), min, max, nNaN)
}
