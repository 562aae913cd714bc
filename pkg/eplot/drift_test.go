package eplot

import(
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/stackreg/pkg/emath"
	"github.com/abworrall/stackreg/pkg/eregister"
)

func testReport(t *testing.T) eregister.Report {
	ps := eregister.PairwiseSet{
		{Index: 0, Transform: emath.Identity(), Outcome: eregister.OutcomeReference, Correlation: math.NaN()},
		{Index: 1, Transform: emath.Translation(1, 0), Outcome: eregister.OutcomeDirect, Correlation: 0.98},
		{Index: 2, Transform: emath.Translation(0.5, 2), Outcome: eregister.OutcomeFallback, Correlation: 0.81, Strategy: eregister.StrategyFeatures},
		{Index: 3, Transform: emath.Identity(), Outcome: eregister.OutcomeFailed, Correlation: math.NaN()},
	}
	abs, err := eregister.Compose(ps)
	require.NoError(t, err)
	return eregister.NewReport(ps, abs)
}

func TestDriftPlot(t *testing.T) {
	p, err := DriftPlot("alloy/cmesh", testReport(t))
	require.NoError(t, err)
	assert.Equal(t, "alloy/cmesh", p.Title.Text)
	assert.Equal(t, 0.0, p.X.Min)
	assert.Equal(t, 3.0, p.X.Max)
}

func TestDriftPlotEmptyReport(t *testing.T) {
	p, err := DriftPlot("empty", eregister.Report{})
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestCorrelationPlot(t *testing.T) {
	p, err := CorrelationPlot("rho", testReport(t))
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Y.Min)
	assert.Equal(t, 1.0, p.Y.Max)
	assert.Equal(t, 1.0, p.X.Min)
	assert.Equal(t, 2.0, p.X.Max)
}

func TestSaveReportPlots(t *testing.T) {
	stem := filepath.Join(t.TempDir(), "run")
	files, err := SaveReportPlots("alloy/cmesh", stem, testReport(t))
	require.NoError(t, err)
	require.Len(t, files, 2)

	for _, f := range files {
		st, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, st.Size(), int64(0))
	}
}
