package eplot

// Plots of a registration report, for eyeballing how a stack drifted.

import(
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/abworrall/stackreg/pkg/emath"
	"github.com/abworrall/stackreg/pkg/eregister"
)

var(
	colorX       = emath.Colormap(0.0)
	colorY       = emath.Colormap(0.6)
	colorFlagged = color.RGBA{0xd6, 0x27, 0x28, 0xff}
)

// DriftPlot draws the absolute translation of every frame against
// frame index. Frames that fell back or failed are marked.
func DriftPlot(title string, r eregister.Report) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Drift (px)"

	xs := make(plotter.XYs, 0, len(r.Pairs))
	ys := make(plotter.XYs, 0, len(r.Pairs))
	for _, s := range r.Pairs {
		xs = append(xs, plotter.XY{X: float64(s.Index), Y: s.DriftX})
		ys = append(ys, plotter.XY{X: float64(s.Index), Y: s.DriftY})
	}

	for _, series := range []struct{
		name string
		pts  plotter.XYs
		col  color.Color
	}{{"x", xs, colorX}, {"y", ys, colorY}} {
		if len(series.pts) == 0 { continue }
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			return nil, err
		}
		line.Color = series.col
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(series.name, line)
	}

	if flagged := r.Flagged(); len(flagged) > 0 {
		pts := make(plotter.XYs, 0, len(flagged))
		for _, s := range flagged {
			pts = append(pts, plotter.XY{X: float64(s.Index), Y: math.Hypot(s.DriftX, s.DriftY)})
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = colorFlagged
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add("fallback/failed", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())
	return p, nil
}

// CorrelationPlot draws the final ECC correlation of each aligned pair.
// The reference frame, and pairs without a correlation, are skipped.
func CorrelationPlot(title string, r eregister.Report) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Correlation"
	p.Y.Min = 0
	p.Y.Max = 1

	pts := plotter.XYs{}
	for _, s := range r.Pairs {
		if math.IsNaN(s.Correlation) || s.Outcome == eregister.OutcomeReference.String() { continue }
		pts = append(pts, plotter.XY{X: float64(s.Index), Y: s.Correlation})
	}
	if len(pts) == 0 {
		return p, nil
	}

	lp, sc, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	lp.Color = colorX
	sc.Color = colorX
	p.Add(lp, sc, plotter.NewGrid())
	return p, nil
}

// SaveReportPlots writes the drift and correlation plots as
// <stem>_drift.png and <stem>_correlation.png, and returns the filenames.
func SaveReportPlots(title, stem string, r eregister.Report) ([]string, error) {
	drift, err := DriftPlot(title+" drift", r)
	if err != nil {
		return nil, fmt.Errorf("drift plot: %v", err)
	}
	corr, err := CorrelationPlot(title+" correlation", r)
	if err != nil {
		return nil, fmt.Errorf("correlation plot: %v", err)
	}

	files := []string{stem + "_drift.png", stem + "_correlation.png"}
	for i, p := range []*plot.Plot{drift, corr} {
		if err := p.Save(10*vg.Inch, 4*vg.Inch, files[i]); err != nil {
			return nil, fmt.Errorf("save %s: %v", files[i], err)
		}
	}
	return files, nil
}
