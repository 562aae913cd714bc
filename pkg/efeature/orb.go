package efeature

// Oriented FAST keypoints with rotated BRIEF descriptors, over a scale pyramid.

import(
	"image"
	"image/draw"
	"math"
	"math/rand"
	"sort"

	xdraw "golang.org/x/image/draw"

	"github.com/abworrall/stackreg/pkg/emath"
)

const(
	patchSize  = 31
	halfPatch  = patchSize / 2
	edgeBorder = 24 // ceil(halfPatch*sqrt2) + 2, so a steered patch stays inside the image
	descBits   = 256
	patternSeed = 0x0b5e7
)

type Options struct {
	MaxFeatures   int     // over all pyramid levels
	Levels        int
	ScaleFactor   float64 // between adjacent levels
	FastThreshold int
}

func DefaultOptions() Options {
	return Options{
		MaxFeatures:   1000,
		Levels:        4,
		ScaleFactor:   1.2,
		FastThreshold: 20,
	}
}

type Keypoint struct {
	Pos      emath.Point // in level 0 pixel coords
	Level    int
	Angle    float64     // radians, of the intensity centroid
	Response float64     // Harris
}

type Descriptor [descBits/64]uint64

type Feature struct {
	Keypoint
	Desc Descriptor
}

// The sampling pattern; pairs of points in a patch centred on the
// keypoint, drawn once from an isotropic Gaussian.
var pattern = makePattern(patternSeed)

func makePattern(seed int64) [descBits][2]emath.Point {
	rng := rand.New(rand.NewSource(seed))
	sigma := float64(patchSize) / 5.0

	draw1 := func() emath.Point {
		for {
			x := math.Round(rng.NormFloat64() * sigma)
			y := math.Round(rng.NormFloat64() * sigma)
			if math.Abs(x) <= halfPatch && math.Abs(y) <= halfPatch {
				return emath.Point{X:x, Y:y}
			}
		}
	}

	var p [descBits][2]emath.Point
	for i:=0; i<descBits; i++ {
		p[i][0] = draw1()
		for p[i][1] = draw1(); p[i][1] == p[i][0]; p[i][1] = draw1() {}
	}
	return p
}

// Detect finds up to opts.MaxFeatures oriented keypoints in img and
// describes them.
func Detect(img *image.Gray, opts Options) []Feature {
	if opts.Levels < 1 { opts.Levels = 1 }
	if opts.ScaleFactor <= 1 { opts.ScaleFactor = 1.2 }

	levels := buildPyramid(img, opts)
	quota := levelQuotas(opts.MaxFeatures, len(levels), opts.ScaleFactor)
	w0 := float64(levels[0].Rect.Dx())
	h0 := float64(levels[0].Rect.Dy())

	feats := []Feature{}
	for l, lvl := range levels {
		corners := fastCorners(lvl, opts.FastThreshold, edgeBorder)
		for i := range corners {
			corners[i].score = harrisResponse(lvl, corners[i].x, corners[i].y)
		}
		sort.SliceStable(corners, func(i, j int) bool { return corners[i].score > corners[j].score })
		if len(corners) > quota[l] {
			corners = corners[:quota[l]]
		}
		if len(corners) == 0 {
			continue
		}

		sx := w0 / float64(lvl.Rect.Dx())
		sy := h0 / float64(lvl.Rect.Dy())
		blurred := grayToGrid(lvl).Smooth(5)

		for _, c := range corners {
			angle := orientation(lvl, c.x, c.y)
			feats = append(feats, Feature{
				Keypoint: Keypoint{
					Pos:      emath.Point{X:float64(c.x) * sx, Y:float64(c.y) * sy},
					Level:    l,
					Angle:    angle,
					Response: c.score,
				},
				Desc: describe(&blurred, c.x, c.y, angle),
			})
		}
	}

	return feats
}

// buildPyramid returns level 0 (a zero-origin copy of img) and then
// successively smaller levels, stopping when a level has no room for
// keypoints.
func buildPyramid(img *image.Gray, opts Options) []*image.Gray {
	base := image.NewGray(image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()))
	draw.Draw(base, base.Bounds(), img, img.Rect.Min, draw.Src)

	levels := []*image.Gray{base}
	for l:=1; l<opts.Levels; l++ {
		s := math.Pow(opts.ScaleFactor, float64(l))
		w := int(math.Round(float64(base.Rect.Dx()) / s))
		h := int(math.Round(float64(base.Rect.Dy()) / s))
		if w <= 2*edgeBorder || h <= 2*edgeBorder {
			break
		}
		lvl := image.NewGray(image.Rect(0, 0, w, h))
		xdraw.BiLinear.Scale(lvl, lvl.Bounds(), base, base.Bounds(), xdraw.Src, nil)
		levels = append(levels, lvl)
	}
	return levels
}

// levelQuotas splits n features over the levels in a geometric series,
// so each level gets a share proportional to its area.
func levelQuotas(n, nLevels int, scale float64) []int {
	q := make([]int, nLevels)
	f := 1.0 / scale
	perLevel := float64(n) * (1 - f) / (1 - math.Pow(f, float64(nLevels)))

	sum := 0
	for l:=0; l<nLevels-1; l++ {
		q[l] = int(math.Round(perLevel))
		sum += q[l]
		perLevel *= f
	}
	if rem := n - sum; rem > 0 {
		q[nLevels-1] = rem
	}
	return q
}

// orientation is the angle from the keypoint to the intensity centroid
// of the circular patch around it.
func orientation(img *image.Gray, x, y int) float64 {
	m01, m10 := 0, 0
	for dy:=-halfPatch; dy<=halfPatch; dy++ {
		for dx:=-halfPatch; dx<=halfPatch; dx++ {
			if dx*dx + dy*dy > halfPatch*halfPatch { continue }
			v := at(img, x+dx, y+dy)
			m10 += dx * v
			m01 += dy * v
		}
	}
	return math.Atan2(float64(m01), float64(m10))
}

// describe does the pairwise intensity tests of the pattern, rotated
// by angle, on the smoothed level image.
func describe(blurred *emath.FloatGrid, x, y int, angle float64) Descriptor {
	cosA, sinA := math.Cos(angle), math.Sin(angle)
	sample := func(p emath.Point) float64 {
		rx := int(math.Round(cosA*p.X - sinA*p.Y))
		ry := int(math.Round(sinA*p.X + cosA*p.Y))
		return blurred.Get(x+rx, y+ry)
	}

	var d Descriptor
	for i:=0; i<descBits; i++ {
		if sample(pattern[i][0]) < sample(pattern[i][1]) {
			d[i/64] |= 1 << uint(i%64)
		}
	}
	return d
}

func grayToGrid(img *image.Gray) emath.FloatGrid {
	fg := emath.NewFloatGrid(img.Rect.Dx(), img.Rect.Dy())
	for y:=0; y<img.Rect.Dy(); y++ {
		for x:=0; x<img.Rect.Dx(); x++ {
			fg.Set(x, y, float64(at(img, x, y)))
		}
	}
	return fg
}
