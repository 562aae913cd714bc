package estore

import(
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/abworrall/stackreg/pkg/eregister"
)

func writeGray16TIFF(t *testing.T, filename string, w, h int, base uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: base + uint16(y*w+x)})
		}
	}
	f, err := os.Create(filename)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, tiff.Encode(f, img, nil))
}

func TestLoadTIFFDirOrdersByName(t *testing.T) {
	dir := t.TempDir()
	writeGray16TIFF(t, filepath.Join(dir, "scan_003.tif"), 4, 3, 3000)
	writeGray16TIFF(t, filepath.Join(dir, "scan_001.tif"), 4, 3, 1000)
	writeGray16TIFF(t, filepath.Join(dir, "scan_002.TIFF"), 4, 3, 2000)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a frame"), 0644))

	s, err := LoadTIFFDir(dir)
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"scan_001", "scan_002", "scan_003"}, s.Labels)
	assert.Equal(t, 1000.0, s.Frames[0].Get(0, 0))
	assert.Equal(t, 2011.0, s.Frames[1].Get(3, 2))
	assert.Equal(t, 3005.0, s.Frames[2].Get(1, 1))
}

func TestLoadTIFFDirErrors(t *testing.T) {
	_, err := LoadTIFFDir(t.TempDir())
	assert.Error(t, err)

	_, err = LoadTIFFDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)

	dir := t.TempDir()
	writeGray16TIFF(t, filepath.Join(dir, "a.tif"), 4, 3, 0)
	writeGray16TIFF(t, filepath.Join(dir, "b.tif"), 5, 3, 0)
	_, err = LoadTIFFDir(dir)
	assert.Error(t, err)
}

func TestExportTIFFRoundTrip(t *testing.T) {
	in := rampStack(2, 4, 3, 0)
	in.Frames[0].Set(1, 1, math.NaN())
	dir := filepath.Join(t.TempDir(), "out")

	files, err := Export(in, dir, "Mn_Ka", FormatTIFF)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "Mn_Ka_000.tiff"), filepath.Join(dir, "Mn_Ka_001.tiff")}, files)

	back, err := LoadTIFFDir(dir)
	require.NoError(t, err)
	require.Equal(t, 2, back.Len())

	// Scaled over the whole stack: 0 is black, 111 (last pixel of frame 1) is white
	assert.Equal(t, 0.0, back.Frames[0].Get(0, 0))
	assert.Equal(t, 0.0, back.Frames[0].Get(1, 1))
	assert.Equal(t, 65535.0, back.Frames[1].Get(3, 2))
	assert.InDelta(t, 100.0/111.0*65535, back.Frames[1].Get(0, 0), 1)
}

func TestExportPNGAndHDR(t *testing.T) {
	in := rampStack(1, 32, 24, 0)
	in.Frames[0].Set(3, 3, math.NaN())

	for _, f := range []Format{FormatPNG, FormatHDR} {
		dir := t.TempDir()
		files, err := Export(in, dir, "Fe_Ka", f)
		require.NoError(t, err, f)
		require.Len(t, files, 1)

		st, err := os.Stat(files[0])
		require.NoError(t, err)
		assert.Greater(t, st.Size(), int64(0))
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("HDR")
	require.NoError(t, err)
	assert.Equal(t, FormatHDR, f)

	_, err = ParseFormat("jpeg")
	assert.Error(t, err)
}

func TestStackRange(t *testing.T) {
	min, max := stackRange(eregister.Stack{})
	assert.Equal(t, 0.0, min)
	assert.Equal(t, 1.0, max)

	min, max = stackRange(rampStack(2, 2, 2, 5))
	assert.Equal(t, 5.0, min)
	assert.Equal(t, 108.0, max)
}
