package emath

// A few helper routines for rendering grids via golang's image libraries

import(
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/fogleman/gg" // Move to https://pkg.go.dev/golang.org/x/image/font#Drawer sometime
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Stops of the viridis colormap; intermediate values blend in Lab space.
var viridis = mustHexes("#440154", "#3b528b", "#21908d", "#5dc963", "#fde725")

// Missing samples are painted in this color, so gaps stand out from zero signal.
var missingColor = color.RGBA64{0xffff, 0x0000, 0xffff, 0xffff}

func mustHexes(hexes ...string) []colorful.Color {
	cols := []colorful.Color{}
	for _, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(fmt.Sprintf("bad palette color '%s': %v", h, err))
		}
		cols = append(cols, c)
	}
	return cols
}

// Colormap maps f in [0,1] onto the viridis palette
func Colormap(f float64) color.Color {
	if f <= 0 { return viridis[0] }
	if f >= 1 { return viridis[len(viridis)-1] }

	pos := f * float64(len(viridis)-1)
	i := int(pos)
	return viridis[i].BlendLab(viridis[i+1], pos-float64(i)).Clamped()
}

// ToImage renders the grid, scaling between the 1st and 99th
// percentiles. With falseColor it uses the viridis colormap, else a
// gamma-expanded grayscale.
func (fg *FloatGrid)ToImage(falseColor bool) *image.RGBA64 {
	min, max := fg.FindMinMaxAtPercentile(0.01, 0.99)
	if max <= min { max = min + 1 }

	img := image.NewRGBA64(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for x:=0; x<fg.Dx(); x++ {
		for y:=0; y<fg.Dy(); y++ {
			val := fg.Get(x,y)
			if math.IsNaN(val) {
				img.Set(x, y, missingColor)
				continue
			}

			f := math.Min(math.Max((val - min) / (max - min), 0), 1)
			if falseColor {
				img.Set(x, y, Colormap(f))
			} else {
				gray := GammaExpand_F64(f)
				img.Set(x, y, color.RGBA64{uint16(gray * 65535.0), uint16(gray * 65535.0), uint16(gray * 65535.0), 0xFFFF})
			}
		}
	}
	return img
}

// ToImg saves a false color PNG of the grid, with the title drawn on top
func (fg *FloatGrid)ToImg(title, filename string) error {
	dc := gg.NewContextForImage(fg.ToImage(true))
	dc.SetRGB(1,1,1)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}

// ToGray16 linearly maps [min,max] onto [0,0xFFFF]; NaN becomes 0.
func (fg *FloatGrid)ToGray16(min, max float64) *image.Gray16 {
	if max <= min { max = min + 1 }
	img := image.NewGray16(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for y:=0; y<fg.Dy(); y++ {
		for x:=0; x<fg.Dx(); x++ {
			val := fg.Get(x,y)
			if math.IsNaN(val) { continue }
			f := math.Min(math.Max((val - min) / (max - min), 0), 1)
			img.SetGray16(x, y, color.Gray16{uint16(math.Round(f * 0xFFFF))})
		}
	}
	return img
}

// NewFloatGridFromImage takes the luminance of each pixel, in [0,0xFFFF]
func NewFloatGridFromImage(img image.Image) FloatGrid {
	b := img.Bounds()
	fg := NewFloatGrid(b.Dx(), b.Dy())
	for y:=b.Min.Y; y<b.Max.Y; y++ {
		for x:=b.Min.X; x<b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			fg.Set(x-b.Min.X, y-b.Min.Y, float64(g.Y))
		}
	}
	return fg
}

func WritePNG(img image.Image, filename string) error {
	if writer, err := os.Create(filename); err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	} else {
		defer writer.Close()
		return png.Encode(writer, img)
	}
}
