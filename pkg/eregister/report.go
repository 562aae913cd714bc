package eregister

import(
	"fmt"
	"log"
	"math"

	"github.com/codahale/hdrhistogram"
)

// Drift is recorded in hundredths of a pixel; anything past maxDriftPixels
// is recorded as maxDriftPixels.
const(
	driftUnitsPerPixel = 100
	maxDriftPixels     = 1000000
)

type PairSummary struct {
	Index       int
	Label       string
	Outcome     string
	Strategy    string
	Correlation float64
	Iterations  int
	Error       string
	DriftX      float64 // translation of frame 0's origin into this frame
	DriftY      float64
}

// Report is the diagnostic summary of a registration.
type Report struct {
	Frames    int
	Direct    int
	Fallback  int
	Failed    int
	Pairs     []PairSummary

	DriftP50  float64 // pixels, over all frames
	DriftP90  float64
	DriftMax  float64
}

func NewReport(ps PairwiseSet, abs AbsoluteSet) Report {
	r := Report{Frames: len(ps)}
	hist := hdrhistogram.New(0, maxDriftPixels*driftUnitsPerPixel, 3)

	for i, pr := range ps {
		s := PairSummary{
			Index:       pr.Index,
			Label:       pr.Label,
			Outcome:     pr.Outcome.String(),
			Strategy:    pr.Strategy,
			Correlation: pr.Correlation,
			Iterations:  pr.Iterations,
		}
		if pr.Err != nil {
			s.Error = pr.Err.Error()
		}
		if i < len(abs) {
			s.DriftX, s.DriftY = abs[i].Translation()
			drift := math.Hypot(s.DriftX, s.DriftY)
			if !(drift <= maxDriftPixels) {
				log.Printf("frame %d [%s]: drift %g px, recording as %d px\n", s.Index, s.Label, drift, maxDriftPixels)
				drift = maxDriftPixels
			}
			if err := hist.RecordValue(int64(math.Round(drift * driftUnitsPerPixel))); err != nil {
				log.Printf("frame %d [%s]: drift %g px not recorded: %v\n", s.Index, s.Label, drift, err)
			}
		}

		switch pr.Outcome {
		case OutcomeDirect:   r.Direct++
		case OutcomeFallback: r.Fallback++
		case OutcomeFailed:   r.Failed++
		}
		r.Pairs = append(r.Pairs, s)
	}

	if hist.TotalCount() > 0 {
		r.DriftP50 = float64(hist.ValueAtQuantile(50)) / driftUnitsPerPixel
		r.DriftP90 = float64(hist.ValueAtQuantile(90)) / driftUnitsPerPixel
		r.DriftMax = float64(hist.Max()) / driftUnitsPerPixel
	}
	return r
}

// Flagged lists the pairs that needed a fallback, or failed outright.
func (r Report)Flagged() []PairSummary {
	out := []PairSummary{}
	for _, s := range r.Pairs {
		if s.Outcome == OutcomeFallback.String() || s.Outcome == OutcomeFailed.String() {
			out = append(out, s)
		}
	}
	return out
}

func (r Report)String() string {
	str := fmt.Sprintf("%d frames: %d direct, %d fallback, %d failed; drift p50 %.2fpx, p90 %.2fpx, max %.2fpx\n",
		r.Frames, r.Direct, r.Fallback, r.Failed, r.DriftP50, r.DriftP90, r.DriftMax)
	for _, s := range r.Flagged() {
		str += fmt.Sprintf("  frame %3d [%s]: %s", s.Index, s.Label, s.Outcome)
		if s.Strategy != "" {
			str += " via " + s.Strategy
		}
		if s.Error != "" {
			str += ": " + s.Error
		}
		str += "\n"
	}
	return str
}
