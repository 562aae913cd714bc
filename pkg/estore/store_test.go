package estore

import(
	"context"
	"database/sql"
	"errors"
	"image"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/stackreg/pkg/emath"
	"github.com/abworrall/stackreg/pkg/eregister"
)

var testKey = eregister.StackKey{Sample: "alloy_C_lamella_A", ScanType: "cmesh"}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "stacks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Every pooled connection must carry the pragmas, not only the first one
func TestPragmasOnEveryConnection(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conns := []*sql.Conn{}
	for i:=0; i<3; i++ {
		c, err := s.Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, c)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	for i, c := range conns {
		var fk, timeout, sync int
		var mode string
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&sync))
		assert.Equal(t, 1, fk, "conn %d", i)
		assert.Equal(t, 5000, timeout, "conn %d", i)
		assert.Equal(t, "wal", mode, "conn %d", i)
		assert.Equal(t, 1, sync, "conn %d", i) // NORMAL
	}
}

func rampStack(n, w, h int, offset float64) eregister.Stack {
	s := eregister.Stack{}
	for i:=0; i<n; i++ {
		fg := emath.NewFloatGrid(w, h)
		for y:=0; y<h; y++ {
			for x:=0; x<w; x++ {
				fg.Set(x, y, offset+float64(i*100+y*w+x))
			}
		}
		s.Frames = append(s.Frames, fg)
		s.Labels = append(s.Labels, string(rune('a'+i)))
	}
	return s
}

func TestImportAndGetStack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := rampStack(3, 5, 4, 0.5)
	in.Frames[1].Set(2, 2, math.NaN())
	require.NoError(t, s.ImportStack(ctx, testKey, "Mn_Ka", in))

	out, err := s.GetStack(ctx, testKey, "Mn_Ka")
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, in.Labels, out.Labels)
	for i := range in.Frames {
		assert.Equal(t, 5, out.Frames[i].Dx())
		assert.Equal(t, 4, out.Frames[i].Dy())
		if diff := cmp.Diff(in.Frames[i].Values(), out.Frames[i].Values(), cmpopts.EquateNaNs()); diff != "" {
			t.Errorf("frame %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestImportReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ImportStack(ctx, testKey, "Mn_Ka", rampStack(4, 3, 3, 0)))
	require.NoError(t, s.ImportStack(ctx, testKey, "Mn_Ka", rampStack(2, 3, 3, 7)))

	out, err := s.GetStack(ctx, testKey, "Mn_Ka")
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, 7.0, out.Frames[0].Get(0, 0))
}

func TestImportRejectsBadStack(t *testing.T) {
	s := openTestStore(t)
	bad := rampStack(2, 3, 3, 0)
	bad.Frames[1] = emath.NewFloatGrid(4, 3)

	err := s.ImportStack(context.Background(), testKey, "Mn_Ka", bad)
	assert.Error(t, err)
}

func TestGetStackMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetStack(context.Background(), testKey, "Fe_Ka")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegisteredIsSeparate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ImportStack(ctx, testKey, "Mn_Ka", rampStack(2, 3, 3, 0)))
	require.NoError(t, s.PutStack(ctx, testKey, "Mn_Ka", rampStack(2, 2, 2, 50)))

	raw, err := s.GetStack(ctx, testKey, "Mn_Ka")
	require.NoError(t, err)
	assert.Equal(t, 3, raw.Frames[0].Dx())

	reg, err := s.GetRegistered(ctx, testKey, "Mn_Ka")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Frames[0].Dx())
	assert.Equal(t, 50.0, reg.Frames[0].Get(0, 0))

	// Registered copies are not channels in their own right
	names, err := s.ListChannels(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mn_Ka"}, names)
}

func TestListChannelsAndStacks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	other := eregister.StackKey{Sample: "alloy_C_lamella_A", ScanType: "xanes"}
	third := eregister.StackKey{Sample: "alloy_B", ScanType: "cmesh"}
	for _, ch := range []string{"Mn_Ka", "Cr_Ka", "pixel_times"} {
		require.NoError(t, s.ImportStack(ctx, testKey, ch, rampStack(1, 2, 2, 0)))
	}
	require.NoError(t, s.ImportStack(ctx, other, "Mn_Ka", rampStack(1, 2, 2, 0)))
	require.NoError(t, s.ImportStack(ctx, third, "Mn_Ka", rampStack(1, 2, 2, 0)))

	names, err := s.ListChannels(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cr_Ka", "Mn_Ka", "pixel_times"}, names)

	keys, err := s.ListStacks(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, []eregister.StackKey{third, testKey, other}, keys)

	keys, err = s.ListStacks(ctx, "alloy_C_lamella_A", "")
	require.NoError(t, err)
	assert.Equal(t, []eregister.StackKey{testKey, other}, keys)

	keys, err = s.ListStacks(ctx, "", "cmesh")
	require.NoError(t, err)
	assert.Equal(t, []eregister.StackKey{third, testKey}, keys)
}

func TestSaveAndLoadRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cfg := eregister.NewConfig()
	cfg.OnFailure = eregister.PolicyCarryForward
	require.NoError(t, cfg.Finalize())

	pairs := eregister.PairwiseSet{
		{Index: 0, Label: "a", Transform: emath.Identity(), Outcome: eregister.OutcomeReference, Correlation: math.NaN()},
		{Index: 1, Label: "b", Transform: emath.Translation(3, 4), Outcome: eregister.OutcomeDirect, Correlation: 0.97, Iterations: 12},
		{Index: 2, Label: "c", Transform: emath.Identity(), Outcome: eregister.OutcomeFailed, Correlation: math.NaN(),
			Err: eregister.ErrInsufficientMatches},
	}
	abs, err := eregister.Compose(pairs)
	require.NoError(t, err)

	res := eregister.Result{
		Key:       testKey,
		Reference: "Mn_Ka",
		Crop:      image.Rect(1, 2, 30, 40),
		Pairs:     pairs,
		Absolute:  abs,
		Report:    eregister.NewReport(pairs, abs),
	}

	id, err := s.SaveRun(ctx, cfg, res)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	run, err := s.LatestRun(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, "Mn_Ka", run.Reference)
	assert.Equal(t, string(eregister.PolicyCarryForward), run.Policy)
	assert.Equal(t, res.Crop, run.Crop)
	assert.Contains(t, run.ConfigYaml, "Mn_Ka")

	require.Len(t, run.Pairs, 3)
	assert.Equal(t, eregister.OutcomeReference, run.Pairs[0].Outcome)
	assert.True(t, math.IsNaN(run.Pairs[0].Correlation))
	assert.Equal(t, emath.Translation(3, 4), run.Pairs[1].Transform)
	assert.InDelta(t, 0.97, run.Pairs[1].Correlation, 1e-12)
	assert.Equal(t, 12, run.Pairs[1].Iterations)
	require.Error(t, run.Pairs[2].Err)
	assert.Equal(t, eregister.ErrInsufficientMatches.Error(), run.Pairs[2].Err.Error())

	assert.Equal(t, emath.Translation(3, 4), run.Absolute[2])
	assert.Equal(t, res.Report.Direct, run.Report.Direct)
	assert.Equal(t, res.Report.Failed, run.Report.Failed)
	assert.InDelta(t, res.Report.DriftMax, run.Report.DriftMax, 1e-9)
}

func TestLatestRunMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LatestRun(context.Background(), testKey)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegisterThroughSQLite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ImportStack(ctx, testKey, "Mn_Ka", rampStack(1, 6, 5, 0)))
	require.NoError(t, s.ImportStack(ctx, testKey, "Fe_Ka", rampStack(1, 6, 5, 10)))

	cfg := eregister.NewConfig()
	require.NoError(t, cfg.Finalize())
	res, err := eregister.NewRegistrar(cfg).Register(ctx, s, testKey)
	require.NoError(t, err)
	assert.Len(t, res.Registered, 2)

	reg, err := s.GetRegistered(ctx, testKey, "Fe_Ka")
	require.NoError(t, err)
	assert.Equal(t, 10.0, reg.Frames[0].Get(0, 0))
}
