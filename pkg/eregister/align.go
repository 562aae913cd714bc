package eregister

import(
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"

	"github.com/abworrall/stackreg/pkg/efeature"
	"github.com/abworrall/stackreg/pkg/emath"
)

// Outcome records how a pair's transform was arrived at.
type Outcome int

const(
	OutcomeReference Outcome = iota // frame 0; no predecessor
	OutcomeDirect
	OutcomeFallback
	OutcomeFailed                   // carried forward as identity
)

var outcomeNames = []string{"reference", "direct", "fallback", "failed"}

func (o Outcome)String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

func ParseOutcome(s string) (Outcome, error) {
	for i, name := range outcomeNames {
		if name == s { return Outcome(i), nil }
	}
	return OutcomeFailed, fmt.Errorf("no outcome named '%s'", s)
}

// Fallback strategies
const(
	StrategyFeatures       = "features"
	StrategyManual         = "manual"
	StrategyManualEstimate = "manual-estimate" // the optimizer failed, so the hand-picked fit is used as is
)

// A PairResult holds the transform mapping a location in frame Index-1
// to the same sample point in frame Index.
type PairResult struct {
	Index       int
	Label       string
	Transform   emath.Aff3
	Outcome     Outcome
	Strategy    string
	Correlation float64
	Iterations  int
	Err         error   // why a carried-forward pair failed
}

func (pr PairResult)String() string {
	str := fmt.Sprintf("pair %3d [%s] %-9s", pr.Index, pr.Label, pr.Outcome)
	if pr.Strategy != "" {
		str += fmt.Sprintf(" (%s)", pr.Strategy)
	}
	if !math.IsNaN(pr.Correlation) && pr.Outcome != OutcomeReference {
		str += fmt.Sprintf(" rho=%.4f it=%d", pr.Correlation, pr.Iterations)
	}
	return str + " " + pr.Transform.String()
}

// PairwiseSet has one entry per frame, in frame order.
type PairwiseSet []PairResult

// NewPairwiseSet wraps bare transforms; ts[0] must be the identity.
func NewPairwiseSet(ts []emath.Aff3) PairwiseSet {
	set := PairwiseSet{}
	for i, t := range ts {
		o := OutcomeDirect
		if i == 0 { o = OutcomeReference }
		set = append(set, PairResult{Index:i, Label:fmt.Sprintf("%d", i), Transform:t, Outcome:o})
	}
	return set
}

func (ps PairwiseSet)Transforms() []emath.Aff3 {
	ts := []emath.Aff3{}
	for _, pr := range ps {
		ts = append(ts, pr.Transform)
	}
	return ts
}

type Aligner struct {
	Cfg      Config

	// Called after every pair, if set
	Progress func(done, total int)
}

func NewAligner(cfg Config) *Aligner {
	return &Aligner{Cfg: cfg}
}

// AlignPair finds the transform from prev to curr. It tries the
// correlation optimizer from identity, then seeded from hand-picked
// points (if configured for this index), then seeded from matched
// features. If all fail it returns an *AlignmentFailedError; it never
// falls back to identity itself.
func (a *Aligner)AlignPair(prev, curr emath.FloatGrid, index int) (PairResult, error) {
	res := PairResult{Index: index, Label: fmt.Sprintf("%d", index), Correlation: math.NaN()}

	if !prev.SameSize(curr) {
		return res, fmt.Errorf("pair %d: frames are %dx%d and %dx%d: %w", index,
			prev.Dx(), prev.Dy(), curr.Dx(), curr.Dy(), ErrShapeMismatch)
	}
	mask := a.Cfg.MaskFor(prev.Dx(), prev.Dy())
	fail := &AlignmentFailedError{Index: index, Label: res.Label}

	accept := func(r ECCResult, o Outcome, strategy string) PairResult {
		res.Transform, res.Outcome, res.Strategy = r.W, o, strategy
		res.Correlation, res.Iterations = r.Correlation, r.Iterations
		if a.Cfg.Verbosity > 0 {
			log.Printf(" -- %s\n", res)
		}
		return res
	}

	// 1. Direct
	direct := FindTransformECC(prev, curr, emath.Identity(), mask, a.Cfg.ECC)
	if direct.Err == nil {
		return accept(direct, OutcomeDirect, ""), nil
	}
	fail.Direct = direct.Err
	if a.Cfg.Verbosity > 0 {
		log.Printf(" -- pair %d: direct failed, %s\n", index, direct)
	}
	if errors.Is(direct.Err, ErrMissingValues) || errors.Is(direct.Err, ErrShapeMismatch) {
		fail.Fallback = fmt.Errorf("not attempted: %w", direct.Err)
		return res, fail
	}

	// 2. Hand-picked correspondences
	if pts, exists := a.Cfg.ManualPoints[index]; exists {
		if seed, err := manualSeed(pts); err != nil {
			fail.Manual = err
		} else {
			r := FindTransformECC(prev, curr, seed, mask, a.Cfg.ECC)
			if r.Err == nil {
				return accept(r, OutcomeFallback, StrategyManual), nil
			}
			log.Printf(" -- pair %d: optimizer failed from manual points (%v), using their fit\n", index, r.Err)
			return accept(ECCResult{W: seed, Correlation: math.NaN()}, OutcomeFallback, StrategyManualEstimate), nil
		}
	}

	// 3. Features
	seed, err := a.featureSeed(prev, curr, mask, index)
	if err != nil {
		fail.Fallback = err
		return res, fail
	}
	r := FindTransformECC(prev, curr, seed, mask, a.Cfg.ECC)
	if r.Err != nil {
		fail.Fallback = fmt.Errorf("reseeded with %s: %w", seed, r.Err)
		return res, fail
	}
	return accept(r, OutcomeFallback, StrategyFeatures), nil
}

func manualSeed(pts []PointPair) (emath.Aff3, error) {
	src, dst := []emath.Point{}, []emath.Point{}
	for _, pp := range pts {
		src = append(src, pp.Prev)
		dst = append(dst, pp.Curr)
	}
	return emath.AffineLeastSquares(src, dst)
}

// featureSeed estimates prev->curr from the three best spread out
// feature matches between the conditioned frames.
func (a *Aligner)featureSeed(prev, curr emath.FloatGrid, mask emath.Mask, index int) (emath.Aff3, error) {
	cPrev := Condition(prev, a.Cfg.Clip)
	cCurr := Condition(curr, a.Cfg.Clip)

	if a.Cfg.Verbosity >= 2 {
		log.Printf(" -- pair %d: conditioned prev %v\n", index, ConditionedHistogram(cPrev))
		log.Printf(" -- pair %d: conditioned curr %v\n", index, ConditionedHistogram(cCurr))
		if a.Cfg.DebugDir != "" {
			emath.WritePNG(cPrev, filepath.Join(a.Cfg.DebugDir, fmt.Sprintf("pair-%03d-prev.png", index)))
			emath.WritePNG(cCurr, filepath.Join(a.Cfg.DebugDir, fmt.Sprintf("pair-%03d-curr.png", index)))
			curr.ToImg(fmt.Sprintf("frame %d", index), filepath.Join(a.Cfg.DebugDir, fmt.Sprintf("pair-%03d-raw.png", index)))
		}
	}

	opts := a.Cfg.FeatureOptions()
	fPrev := maskFeatures(efeature.Detect(cPrev, opts), mask)
	fCurr := maskFeatures(efeature.Detect(cCurr, opts), mask)

	fc := a.Cfg.Features
	matches := efeature.BruteForce(fPrev, fCurr, fc.CrossCheck, fc.MaxDistance)
	if a.Cfg.Verbosity > 0 {
		log.Printf(" -- pair %d: %d/%d features, %d matches\n", index, len(fPrev), len(fCurr), len(matches))
	}
	if len(matches) < fc.MinMatches {
		return emath.Identity(), fmt.Errorf("%d matches, need %d: %w", len(matches), fc.MinMatches, ErrInsufficientMatches)
	}

	tri, ok := efeature.PickTriangle(matches, fPrev, fCurr, fc.MinSeparation, fc.MinArea)
	if !ok {
		return emath.Identity(), fmt.Errorf("no three non-collinear matches among %d: %w", len(matches), ErrInsufficientMatches)
	}

	var src, dst [3]emath.Point
	for i, m := range tri {
		src[i] = fPrev[m.Query].Pos
		dst[i] = fCurr[m.Train].Pos
	}
	return emath.AffineFrom3Points(src, dst)
}

func maskFeatures(feats []efeature.Feature, mask emath.Mask) []efeature.Feature {
	if mask.IsZero() {
		return feats
	}
	out := []efeature.Feature{}
	for _, f := range feats {
		x, y := int(math.Round(f.Pos.X)), int(math.Round(f.Pos.Y))
		if x >= 0 && y >= 0 && x < mask.Dx() && y < mask.Dy() && mask.On(x, y) {
			out = append(out, f)
		}
	}
	return out
}

// AlignStack aligns each frame to its predecessor, in order. Index 0
// is the identity. A failed pair either aborts, or (with the
// carry-forward policy) is recorded as Failed with an identity
// transform; the set never has gaps.
func (a *Aligner)AlignStack(ctx context.Context, s Stack) (PairwiseSet, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	set := PairwiseSet{{Index:0, Label:s.Label(0), Transform:emath.Identity(), Outcome:OutcomeReference, Correlation:1}}
	if a.Progress != nil { a.Progress(1, s.Len()) }

	for i:=1; i<s.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return set, err
		}

		pr, err := a.AlignPair(s.Frames[i-1], s.Frames[i], i)
		if err != nil {
			var fe *AlignmentFailedError
			if !errors.As(err, &fe) {
				return set, err
			}
			fe.Label = s.Label(i)
			if a.Cfg.OnFailure != PolicyCarryForward {
				return set, fe
			}
			log.Printf("pair %d [%s] failed, carrying forward: %v\n", i, s.Label(i), fe)
			pr = PairResult{Index:i, Transform:emath.Identity(), Outcome:OutcomeFailed, Correlation:math.NaN(), Err:fe}
		}
		pr.Label = s.Label(i)
		set = append(set, pr)

		if a.Progress != nil { a.Progress(i+1, s.Len()) }
	}
	return set, nil
}
