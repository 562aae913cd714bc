package estore

// Getting stacks in and out as ordinary image files.

import(
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"

	"github.com/abworrall/stackreg/pkg/emath"
	"github.com/abworrall/stackreg/pkg/eregister"
)

type loadedFrame struct {
	filename string
	taken    time.Time // zero if the file has no EXIF DateTime
	frame    emath.FloatGrid
}

// LoadTIFFDir reads every TIFF in dir as one frame of a stack. Frames
// are ordered by EXIF DateTime when every file carries one, else by
// filename. Labels are the filenames minus extension.
func LoadTIFFDir(dir string) (eregister.Stack, error) {
	contents, err := os.ReadDir(dir)
	if err != nil {
		return eregister.Stack{}, fmt.Errorf("readdir %s: %v", dir, err)
	}

	frames := []loadedFrame{}
	for _, content := range contents {
		ext := strings.ToLower(filepath.Ext(content.Name()))
		if content.IsDir() || (ext != ".tif" && ext != ".tiff") {
			continue
		}
		lf, err := loadTIFF(filepath.Join(dir, content.Name()))
		if err != nil {
			return eregister.Stack{}, err
		}
		frames = append(frames, lf)
	}
	if len(frames) == 0 {
		return eregister.Stack{}, fmt.Errorf("%s: no TIFF files", dir)
	}

	byTime := true
	for _, lf := range frames {
		if lf.taken.IsZero() { byTime = false }
	}
	sort.SliceStable(frames, func(i, j int) bool {
		if byTime && !frames[i].taken.Equal(frames[j].taken) {
			return frames[i].taken.Before(frames[j].taken)
		}
		return frames[i].filename < frames[j].filename
	})

	stack := eregister.Stack{}
	for _, lf := range frames {
		base := filepath.Base(lf.filename)
		stack.Frames = append(stack.Frames, lf.frame)
		stack.Labels = append(stack.Labels, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	return stack, stack.Validate()
}

func loadTIFF(filename string) (loadedFrame, error) {
	lf := loadedFrame{filename: filename}

	// EXIF is optional; beamline TIFFs mostly don't have it
	if reader, err := os.Open(filename); err != nil {
		return lf, fmt.Errorf("open+r exif '%s': %v", filename, err)
	} else {
		if ex, err := exif.Decode(reader); err == nil {
			if t, err := ex.DateTime(); err == nil {
				lf.taken = t
			}
		}
		reader.Close()
	}

	if reader, err := os.Open(filename); err != nil {
		return lf, fmt.Errorf("open+r img '%s': %v", filename, err)
	} else {
		defer reader.Close()
		img, err := tiff.Decode(reader)
		if err != nil {
			return lf, fmt.Errorf("tiff loading '%s': %v", filename, err)
		}
		lf.frame = emath.NewFloatGridFromImage(img)
	}

	return lf, nil
}

// {{{ Export

type Format string

const(
	FormatTIFF Format = "tiff" // 16-bit grayscale, scaled over the whole stack
	FormatPNG  Format = "png"  // false color, labelled
	FormatHDR  Format = "hdr"  // Radiance RGBE, raw values
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTIFF, FormatPNG, FormatHDR:
		return f, nil
	}
	return "", fmt.Errorf("format '%s' not one of tiff, png, hdr", s)
}

// Export writes one file per frame into dir, named for the channel and
// frame index, and returns the filenames.
func Export(stack eregister.Stack, dir, channel string, format Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %v", dir, err)
	}

	min, max := stackRange(stack)
	files := []string{}

	for i := range stack.Frames {
		fg := stack.Frames[i]
		filename := filepath.Join(dir, fmt.Sprintf("%s_%03d.%s", channel, i, format))

		var err error
		switch format {
		case FormatTIFF: err = writeTIFF(fg.ToGray16(min, max), filename)
		case FormatPNG:  err = fg.ToImg(fmt.Sprintf("%s %s", channel, stack.Label(i)), filename)
		case FormatHDR:  err = writeHDR(gridHDR{fg}, filename)
		default:
			err = fmt.Errorf("format '%s' unknown", format)
		}
		if err != nil {
			return files, fmt.Errorf("export frame %d: %v", i, err)
		}
		files = append(files, filename)
	}

	log.Printf("exported %d frames of %s to %s\n", len(files), channel, dir)
	return files, nil
}

func stackRange(stack eregister.Stack) (float64, float64) {
	min, max := math.Inf(1), math.Inf(-1)
	for i := range stack.Frames {
		for _, v := range stack.Frames[i].Values() {
			if math.IsNaN(v) { continue }
			min = math.Min(min, v)
			max = math.Max(max, v)
		}
	}
	if math.IsInf(min, 1) {
		return 0, 1
	}
	return min, max
}

func writeTIFF(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate})
	}
}

func writeHDR(img gridHDR, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return rgbe.Encode(writer, img)
	}
}

// gridHDR presents a frame as a gray hdr.Image, with missing samples as black
type gridHDR struct {
	fg emath.FloatGrid
}

func (g gridHDR)ColorModel() color.Model { return hdrcolor.RGBModel }
func (g gridHDR)Bounds() image.Rectangle { return g.fg.Bounds() }
func (g gridHDR)At(x, y int) color.Color { return g.HDRAt(x, y) }
func (g gridHDR)Size() int               { return g.fg.Dx() * g.fg.Dy() }

func (g gridHDR)HDRAt(x, y int) hdrcolor.Color {
	v := g.fg.Get(x, y)
	if math.IsNaN(v) { v = 0 }
	return hdrcolor.RGB{R: v, G: v, B: v}
}

// }}}
