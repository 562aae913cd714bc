package eregister

import(
	"fmt"
	"math"
	"sync"

	"github.com/abworrall/stackreg/pkg/emath"
)

type WarpOptions struct {
	Interpolation Interpolation
	Workers       int
}

// WarpFrame resamples frame onto frame 0's grid: out(p) = frame(m.p).
// Locations that fall outside the frame become NaN. An identity
// transform copies the frame exactly.
func WarpFrame(frame emath.FloatGrid, m emath.Aff3, interp Interpolation) emath.FloatGrid {
	if m.IsIdentity() {
		return *frame.Copy()
	}

	sample := frame.Bilinear
	if interp == InterpNearest {
		sample = frame.Nearest
	}

	out := frame.NewFromThis()
	for y:=0; y<out.Dy(); y++ {
		for x:=0; x<out.Dx(); x++ {
			sx, sy := m.Apply(float64(x), float64(y))
			if v, ok := sample(sx, sy); ok {
				out.Set(x, y, v)
			} else {
				out.Set(x, y, math.NaN())
			}
		}
	}
	return out
}

type warpJob struct {
	Index int
	Frame emath.FloatGrid
}

// WarpStack warps every frame with its absolute transform, using a pool
// of goroutines. The input stack is not modified.
func WarpStack(s Stack, abs AbsoluteSet, opts WarpOptions) (Stack, error) {
	if len(s.Frames) != len(abs) {
		return Stack{}, fmt.Errorf("%d frames, %d transforms: %w", len(s.Frames), len(abs), ErrShapeMismatch)
	}
	if err := s.Validate(); err != nil {
		return Stack{}, fmt.Errorf("%v: %w", err, ErrShapeMismatch)
	}

	var wg sync.WaitGroup
	jobsChan    := make(chan int, len(s.Frames))
	resultsChan := make(chan warpJob, len(s.Frames))

	nWorkers := opts.Workers
	if nWorkers < 1 { nWorkers = 1 }
	for i:=0; i<nWorkers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			for idx := range jobsChan {
				resultsChan<- warpJob{idx, WarpFrame(s.Frames[idx], abs[idx], opts.Interpolation)}
			}
		}()
	}

	for i := range s.Frames {
		jobsChan<- i
	}

	close(jobsChan)
	wg.Wait()
	close(resultsChan)

	out := Stack{Frames: make([]emath.FloatGrid, len(s.Frames)), Labels: append([]string{}, s.Labels...)}
	for result := range resultsChan {
		out.Frames[result.Index] = result.Frame
	}
	return out, nil
}
