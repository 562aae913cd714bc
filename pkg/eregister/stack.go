package eregister

import(
	"context"
	"fmt"
	"image"

	"github.com/abworrall/stackreg/pkg/emath"
)

// A Stack is the time ordered sequence of frames for one channel. Labels
// run parallel to Frames, and are only used in messages.
type Stack struct {
	Frames []emath.FloatGrid
	Labels []string
}

// StackKey picks out one ordered stack in the store; every channel of
// it shares the same pixel grid and frame order.
type StackKey struct {
	Sample   string
	ScanType string
}

func (k StackKey)String() string { return fmt.Sprintf("%s/%s", k.Sample, k.ScanType) }

// Store is what registration needs from persistent storage.
type Store interface {
	GetStack(ctx context.Context, key StackKey, channel string) (Stack, error)
	PutStack(ctx context.Context, key StackKey, channel string, s Stack) error
	ListChannels(ctx context.Context, key StackKey) ([]string, error)
}

func NewStack(frames []emath.FloatGrid) Stack {
	labels := make([]string, len(frames))
	for i := range labels {
		labels[i] = fmt.Sprintf("%d", i)
	}
	return Stack{Frames: frames, Labels: labels}
}

func (s Stack)Len() int { return len(s.Frames) }

// Label never fails, even if the labels are short.
func (s Stack)Label(i int) string {
	if i >= 0 && i < len(s.Labels) && s.Labels[i] != "" {
		return s.Labels[i]
	}
	return fmt.Sprintf("#%d", i)
}

// Validate checks the stack is non-empty and all frames share a shape
func (s Stack)Validate() error {
	if len(s.Frames) == 0 {
		return fmt.Errorf("empty stack")
	}
	if len(s.Labels) != 0 && len(s.Labels) != len(s.Frames) {
		return fmt.Errorf("%d labels for %d frames", len(s.Labels), len(s.Frames))
	}
	for i := range s.Frames {
		if s.Frames[i].Dx() == 0 || s.Frames[i].Dy() == 0 {
			return fmt.Errorf("frame %d [%s] is empty", i, s.Label(i))
		}
		if !s.Frames[i].SameSize(s.Frames[0]) {
			return fmt.Errorf("frame %d [%s] is %dx%d, frame 0 is %dx%d", i, s.Label(i),
				s.Frames[i].Dx(), s.Frames[i].Dy(), s.Frames[0].Dx(), s.Frames[0].Dy())
		}
	}
	return nil
}

// Crop returns a new stack with every frame cropped to r.
func (s Stack)Crop(r image.Rectangle) (Stack, error) {
	out := Stack{Labels: append([]string{}, s.Labels...)}
	for i := range s.Frames {
		if !r.In(s.Frames[i].Bounds()) {
			return Stack{}, fmt.Errorf("crop %v: frame %d [%s] is only %v: %w", r, i, s.Label(i), s.Frames[i].Bounds(), ErrShapeMismatch)
		}
		out.Frames = append(out.Frames, s.Frames[i].Crop(r))
	}
	return out, nil
}

func (s Stack)Copy() Stack {
	out := Stack{Labels: append([]string{}, s.Labels...)}
	for i := range s.Frames {
		out.Frames = append(out.Frames, *s.Frames[i].Copy())
	}
	return out
}
