package emath

import "image"

// A Mask marks which pixels of a frame take part in a comparison.
// The zero Mask means "everything".
type Mask struct {
	stride int
	values []bool
}

func NewMask(w, h int, on bool) Mask {
	m := Mask{stride: w, values: make([]bool, w*h)}
	if on {
		for i := range m.values { m.values[i] = true }
	}
	return m
}

// NewMaskFromRects turns on only the pixels inside any of the rectangles.
func NewMaskFromRects(w, h int, rects []image.Rectangle) Mask {
	m := NewMask(w, h, false)
	bounds := image.Rect(0, 0, w, h)
	for _, r := range rects {
		r = r.Intersect(bounds)
		for y:=r.Min.Y; y<r.Max.Y; y++ {
			for x:=r.Min.X; x<r.Max.X; x++ {
				m.Set(x, y, true)
			}
		}
	}
	return m
}

func (m *Mask)IsZero() bool           { return m.stride == 0 }
func (m *Mask)Dx() int                { return m.stride }
func (m *Mask)Set(x, y int, v bool)   { m.values[m.stride*y + x] = v }

func (m *Mask)Dy() int {
	if m.stride == 0 { return 0 }
	return len(m.values) / m.stride
}

// On reports whether the pixel takes part; a zero Mask is on everywhere.
func (m *Mask)On(x, y int) bool {
	if m.stride == 0 { return true }
	return m.values[m.stride*y + x]
}

func (m *Mask)Count() int {
	if m.stride == 0 { return 0 }
	n := 0
	for _, v := range m.values {
		if v { n++ }
	}
	return n
}
