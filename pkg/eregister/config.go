package eregister

import(
	"fmt"
	"image"
	"log"
	"os"
	"runtime"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/stackreg/pkg/efeature"
	"github.com/abworrall/stackreg/pkg/emath"
)

/* Example config file ...

referencechannel: Mn_Ka
clip:
  low: 0
  high: 1500
mask:
  - {x0: 10, y0: 10, x1: 190, y1: 120}
features:
  minmatches: 3
  maxfeatures: 1000
ecc:
  maxiterations: 200
  epsilon: 0.00001
  mincorrelation: 0.5
onfailure: carry-forward
interpolation:
  pixel_times: nearest
manualpoints:
  7:
    - {prev: {x: 12, y: 40}, curr: {x: 15, y: 38}}
    - {prev: {x: 80, y: 22}, curr: {x: 83, y: 20}}
    - {prev: {x: 45, y: 90}, curr: {x: 48, y: 88}}

*/

type FailurePolicy string

const(
	PolicyAbort        FailurePolicy = "abort"
	PolicyCarryForward FailurePolicy = "carry-forward"
)

type Interpolation string

const(
	InterpBilinear Interpolation = "bilinear"
	InterpNearest  Interpolation = "nearest"
)

// ClipBounds are explicit intensity limits for the conditioner
type ClipBounds struct {
	Low  float64
	High float64
}

// Rect is a half-open pixel box, in the (cropped) frame's coords
type Rect struct {
	X0, Y0, X1, Y1 int
}

func (r Rect)Rectangle() image.Rectangle { return image.Rect(r.X0, r.Y0, r.X1, r.Y1) }

// PointPair is a hand-picked correspondence between a location in the
// previous frame and the same feature in the current frame.
type PointPair struct {
	Prev emath.Point
	Curr emath.Point
}

type FeatureConfig struct {
	MinMatches    int
	MaxFeatures   int
	PyramidLevels int
	ScaleFactor   float64
	FastThreshold int
	CrossCheck    bool
	MaxDistance   int     // Hamming; matches further apart are unreliable
	MinSeparation float64 // pixels, between the three seed points
	MinArea       float64 // pixels^2, of the seed triangle
}

type ECCConfig struct {
	MaxIterations  int
	Epsilon        float64 // on the change in correlation between iterations
	GaussianSize   int     // pre-smoothing kernel, odd; 1 disables
	MinCorrelation float64
	MinOverlap     float64 // fraction of template pixels that must land in the input
}

type Config struct {
	Verbosity        int

	ReferenceChannel string
	Clip            *ClipBounds
	Mask             []Rect
	Features         FeatureConfig
	ECC              ECCConfig
	OnFailure        FailurePolicy
	Workers          int

	// Per channel override; unlisted channels use bilinear
	Interpolation    map[string]Interpolation

	// Keyed by the index of the current frame in the pair
	ManualPoints     map[int][]PointPair

	// Crop every registered channel to the region valid in all frames
	CropRegistered   bool

	// If set, and Verbosity >= 2, conditioned frames are dumped here as PNGs
	DebugDir         string
}

func NewConfig() Config {
	return Config{
		ReferenceChannel: "Mn_Ka",
		Features: FeatureConfig{
			MinMatches:    3,
			MaxFeatures:   1000,
			PyramidLevels: 4,
			ScaleFactor:   1.2,
			FastThreshold: 20,
			CrossCheck:    true,
			MaxDistance:   64,
			MinSeparation: 4,
			MinArea:       8,
		},
		ECC: ECCConfig{
			MaxIterations:  200,
			Epsilon:        1e-5,
			GaussianSize:   5,
			MinCorrelation: 0.5,
			MinOverlap:     0.25,
		},
		OnFailure:     PolicyAbort,
		Workers:       runtime.NumCPU(),
		Interpolation: map[string]Interpolation{},
		ManualPoints:  map[int][]PointPair{},
	}
}

func LoadConfig(filename string) (Config, error) {
	c := NewConfig()

	if contents, err := os.ReadFile(filename); err != nil {
		return c, fmt.Errorf("read '%s': %w", filename, err)
	} else if err := yaml.Unmarshal(contents, &c); err != nil {
		return c, fmt.Errorf("parse '%s': %w", filename, err)
	}

	return c, c.Finalize()
}

// Finalize does sanity checks, and fills in anything left zero
func (c *Config)Finalize() error {
	if c.ReferenceChannel == "" {
		return fmt.Errorf("config: no referencechannel")
	}
	if c.Clip != nil && !(c.Clip.High > c.Clip.Low) {
		return fmt.Errorf("config: clip high (%g) must be above low (%g)", c.Clip.High, c.Clip.Low)
	}
	for i, r := range c.Mask {
		if r.X1 <= r.X0 || r.Y1 <= r.Y0 {
			return fmt.Errorf("config: mask rect %d is empty: %+v", i, r)
		}
	}

	switch c.OnFailure {
	case "":                              c.OnFailure = PolicyAbort
	case PolicyAbort, PolicyCarryForward:
	default:
		return fmt.Errorf("config: no failure policy named '%s'", c.OnFailure)
	}

	for ch, interp := range c.Interpolation {
		switch interp {
		case InterpBilinear, InterpNearest:
		default:
			return fmt.Errorf("config: channel '%s': no interpolation named '%s'", ch, interp)
		}
	}

	for idx, pts := range c.ManualPoints {
		if idx < 1 {
			return fmt.Errorf("config: manualpoints index %d; frame 0 has no predecessor", idx)
		}
		if len(pts) < 3 {
			return fmt.Errorf("config: manualpoints for frame %d: need 3 pairs, have %d", idx, len(pts))
		}
	}

	if c.Features.MinMatches < 3 {
		return fmt.Errorf("config: features.minmatches must be >= 3, got %d", c.Features.MinMatches)
	}
	if c.Features.MaxFeatures < c.Features.MinMatches { c.Features.MaxFeatures = 1000 }
	if c.Features.PyramidLevels < 1                   { c.Features.PyramidLevels = 1 }
	if c.Features.ScaleFactor <= 1                    { c.Features.ScaleFactor = 1.2 }

	if c.ECC.MaxIterations < 1 {
		return fmt.Errorf("config: ecc.maxiterations must be >= 1")
	}
	if c.ECC.Epsilon <= 0 {
		return fmt.Errorf("config: ecc.epsilon must be > 0")
	}
	if c.ECC.GaussianSize < 1 || c.ECC.GaussianSize%2 == 0 {
		return fmt.Errorf("config: ecc.gaussiansize must be odd and positive, got %d", c.ECC.GaussianSize)
	}

	if c.Workers < 1 { c.Workers = runtime.NumCPU() }
	if c.Interpolation == nil { c.Interpolation = map[string]Interpolation{} }
	if c.ManualPoints == nil  { c.ManualPoints = map[int][]PointPair{} }

	return nil
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

func (c Config)InterpolationFor(channel string) Interpolation {
	if interp, exists := c.Interpolation[channel]; exists {
		return interp
	}
	return InterpBilinear
}

func (c Config)FeatureOptions() efeature.Options {
	return efeature.Options{
		MaxFeatures:   c.Features.MaxFeatures,
		Levels:        c.Features.PyramidLevels,
		ScaleFactor:   c.Features.ScaleFactor,
		FastThreshold: c.Features.FastThreshold,
	}
}

// MaskFor builds the comparison mask for a frame of the given size; the
// zero Mask (everything) if none is configured.
func (c Config)MaskFor(w, h int) emath.Mask {
	if len(c.Mask) == 0 {
		return emath.Mask{}
	}
	rects := []image.Rectangle{}
	for _, r := range c.Mask {
		rects = append(rects, r.Rectangle())
	}
	return emath.NewMaskFromRects(w, h, rects)
}
