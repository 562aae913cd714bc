package eregister

import(
	"fmt"
	"image"
)

// CommonExtent is the intersection, over all frames, of the bounding
// boxes of their valid (non-NaN) samples.
func CommonExtent(s Stack) (image.Rectangle, error) {
	if err := s.Validate(); err != nil {
		return image.Rectangle{}, err
	}

	common := s.Frames[0].Bounds()
	for i := range s.Frames {
		r, ok := s.Frames[i].ValidBounds()
		if !ok {
			return image.Rectangle{}, fmt.Errorf("frame %d [%s] has no valid samples: %w", i, s.Label(i), ErrEmptyIntersection)
		}
		common = common.Intersect(r)
		if common.Empty() {
			return image.Rectangle{}, fmt.Errorf("frames 0..%d [..%s]: %w", i, s.Label(i), ErrEmptyIntersection)
		}
	}
	return common, nil
}

// CropCommon crops every frame to the common extent. NaNs may remain
// inside the box (holes rather than border padding).
func CropCommon(s Stack) (Stack, image.Rectangle, error) {
	r, err := CommonExtent(s)
	if err != nil {
		return Stack{}, r, err
	}
	out, err := s.Crop(r)
	return out, r, err
}
