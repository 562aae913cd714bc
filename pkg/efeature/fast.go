package efeature

// FAST-9 corner detection on 8-bit images, with Harris ranking

import(
	"image"
)

// The 16 pixel Bresenham circle of radius 3, clockwise from the top
var circle = [16]image.Point{
	{0,-3}, {1,-3}, {2,-2}, {3,-1}, {3,0}, {3,1}, {2,2}, {1,3},
	{0,3}, {-1,3}, {-2,2}, {-3,1}, {-3,0}, {-3,-1}, {-2,-2}, {-1,-3},
}

const fastArc = 9        // contiguous circle pixels needed
const harrisK = 0.04
const harrisBlock = 7

type corner struct {
	x, y  int
	score float64
}

func at(img *image.Gray, x, y int) int {
	return int(img.Pix[y*img.Stride + x])
}

// fastScore returns 0 if (x,y) is not a corner, else the summed
// excess contrast of the brighter (or darker) circle pixels.
func fastScore(img *image.Gray, x, y, t int) int {
	p := at(img, x, y)

	var state [16]int
	for i, o := range circle {
		v := at(img, x+o.X, y+o.Y)
		if v > p+t {
			state[i] = 1
		} else if v < p-t {
			state[i] = -1
		}
	}

	isCorner := false
	for _, want := range []int{1, -1} {
		run := 0
		for i:=0; i<16+fastArc-1; i++ {
			if state[i%16] == want {
				run++
				if run >= fastArc { isCorner = true; break }
			} else {
				run = 0
			}
		}
	}
	if !isCorner {
		return 0
	}

	bright, dark := 0, 0
	for i, o := range circle {
		v := at(img, x+o.X, y+o.Y)
		switch state[i] {
		case 1:  bright += v - p - t
		case -1: dark   += p - t - v
		}
	}
	if bright > dark { return bright }
	return dark
}

// fastCorners finds FAST-9 corners at least `border` pixels in from the
// edge, and keeps only the local maxima of the score over 3x3.
func fastCorners(img *image.Gray, threshold, border int) []corner {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if border < 3 { border = 3 }
	if w <= 2*border || h <= 2*border {
		return nil
	}

	scores := make([]int, w*h)
	for y:=border; y<h-border; y++ {
		for x:=border; x<w-border; x++ {
			scores[y*w+x] = fastScore(img, x, y, threshold)
		}
	}

	corners := []corner{}
	for y:=border; y<h-border; y++ {
		for x:=border; x<w-border; x++ {
			s := scores[y*w+x]
			if s == 0 { continue }

			// Ties go to the first pixel in raster order
			isMax := true
			for dy:=-1; dy<=1 && isMax; dy++ {
				for dx:=-1; dx<=1; dx++ {
					if dx == 0 && dy == 0 { continue }
					n := scores[(y+dy)*w + x+dx]
					before := dy < 0 || (dy == 0 && dx < 0)
					if n > s || (before && n == s) {
						isMax = false
						break
					}
				}
			}
			if isMax {
				corners = append(corners, corner{x:x, y:y, score:float64(s)})
			}
		}
	}
	return corners
}

// harrisResponse computes det(M) - k.trace(M)^2 over a 7x7 block of
// Sobel gradients centred on (x,y). Needs 4 pixels of margin.
func harrisResponse(img *image.Gray, x, y int) float64 {
	r := harrisBlock / 2
	a, b, c := 0.0, 0.0, 0.0
	for yy:=y-r; yy<=y+r; yy++ {
		for xx:=x-r; xx<=x+r; xx++ {
			gx := float64(at(img,xx+1,yy-1) + 2*at(img,xx+1,yy) + at(img,xx+1,yy+1) -
				at(img,xx-1,yy-1) - 2*at(img,xx-1,yy) - at(img,xx-1,yy+1))
			gy := float64(at(img,xx-1,yy+1) + 2*at(img,xx,yy+1) + at(img,xx+1,yy+1) -
				at(img,xx-1,yy-1) - 2*at(img,xx,yy-1) - at(img,xx+1,yy-1))
			a += gx*gx
			b += gy*gy
			c += gx*gy
		}
	}
	return a*b - c*c - harrisK*(a+b)*(a+b)
}
