package eregister

import(
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sort"
)

// Result is everything a registration run produces.
type Result struct {
	Key        StackKey
	Reference  string
	Crop       image.Rectangle // the common extent, in unregistered frame coords
	Pairs      PairwiseSet
	Absolute   AbsoluteSet
	Registered map[string]Stack
	Report     Report
}

// A Registrar runs the whole pipeline for one stack.
type Registrar struct {
	Cfg      Config

	// Called as each stage makes progress, if set. Stage is "align" or
	// the name of the channel being warped.
	Progress func(stage string, done, total int)
}

func NewRegistrar(cfg Config) *Registrar {
	return &Registrar{Cfg: cfg}
}

func (r *Registrar)progress(stage string, done, total int) {
	if r.Progress != nil {
		r.Progress(stage, done, total)
	}
}

// RegisterStacks aligns the reference channel, and warps every channel
// with the resulting transforms. All channels must share the
// reference's frame count and size.
func (r *Registrar)RegisterStacks(ctx context.Context, key StackKey, channels map[string]Stack) (Result, error) {
	refName := r.Cfg.ReferenceChannel
	res := Result{Key: key, Reference: refName, Registered: map[string]Stack{}}

	stackErr := func(channel string, index int, label string, err error) error {
		return &StackError{Key:key, Channel:channel, Index:index, Label:label, Err:err}
	}

	ref, exists := channels[refName]
	if !exists {
		return res, stackErr(refName, -1, "", fmt.Errorf("no such channel (have %v)", channelNames(channels)))
	}
	if err := ref.Validate(); err != nil {
		return res, stackErr(refName, -1, "", err)
	}
	for _, name := range channelNames(channels) {
		s := channels[name]
		if err := s.Validate(); err != nil {
			return res, stackErr(name, -1, "", fmt.Errorf("%v: %w", err, ErrShapeMismatch))
		}
		if s.Len() != ref.Len() || !s.Frames[0].SameSize(ref.Frames[0]) {
			return res, stackErr(name, -1, "", fmt.Errorf("%d frames of %dx%d, reference has %d of %dx%d: %w",
				s.Len(), s.Frames[0].Dx(), s.Frames[0].Dy(), ref.Len(), ref.Frames[0].Dx(), ref.Frames[0].Dy(), ErrShapeMismatch))
		}
	}

	// 1. Crop away padding, using the reference channel's valid region
	cropped, crop, err := CropCommon(ref)
	if err != nil {
		return res, stackErr(refName, -1, "", err)
	}
	res.Crop = crop
	if r.Cfg.Verbosity > 0 {
		log.Printf("%s: %d frames, common extent %v\n", key, ref.Len(), crop)
	}

	// 2. Pairwise alignment, strictly in frame order
	aligner := NewAligner(r.Cfg)
	aligner.Progress = func(done, total int) { r.progress("align", done, total) }
	res.Pairs, err = aligner.AlignStack(ctx, cropped)
	if err != nil {
		var fe *AlignmentFailedError
		if errors.As(err, &fe) {
			return res, stackErr(refName, fe.Index, fe.Label, err)
		}
		return res, stackErr(refName, -1, "", err)
	}

	// 3. Chain them
	if res.Absolute, err = Compose(res.Pairs); err != nil {
		return res, stackErr(refName, -1, "", err)
	}

	// 4. Warp every channel, reference included
	for _, name := range channelNames(channels) {
		if err := ctx.Err(); err != nil {
			return res, stackErr(name, -1, "", err)
		}

		c, err := channels[name].Crop(crop)
		if err != nil {
			return res, stackErr(name, -1, "", err)
		}
		opts := WarpOptions{Interpolation: r.Cfg.InterpolationFor(name), Workers: r.Cfg.Workers}
		if res.Registered[name], err = WarpStack(c, res.Absolute, opts); err != nil {
			return res, stackErr(name, -1, "", err)
		}
		r.progress(name, c.Len(), c.Len())
	}

	// 5. Optionally trim the borders the warp introduced
	if r.Cfg.CropRegistered {
		box, err := CommonExtent(res.Registered[refName])
		if err != nil {
			return res, stackErr(refName, -1, "", fmt.Errorf("after warping: %w", err))
		}
		for name, s := range res.Registered {
			if res.Registered[name], err = s.Crop(box); err != nil {
				return res, stackErr(name, -1, "", err)
			}
		}
	}

	res.Report = NewReport(res.Pairs, res.Absolute)
	log.Printf("%s: registered %d channels on %s; %s", key, len(res.Registered), refName, res.Report)
	return res, nil
}

// Register reads every channel of the stack from the store, registers
// them, and writes the registered channels back.
func (r *Registrar)Register(ctx context.Context, store Store, key StackKey) (Result, error) {
	names, err := store.ListChannels(ctx, key)
	if err != nil {
		return Result{Key: key}, &StackError{Key:key, Index:-1, Err:fmt.Errorf("list channels: %w", err)}
	}

	channels := map[string]Stack{}
	for _, name := range names {
		if channels[name], err = store.GetStack(ctx, key, name); err != nil {
			return Result{Key: key}, &StackError{Key:key, Channel:name, Index:-1, Err:fmt.Errorf("load: %w", err)}
		}
	}

	res, err := r.RegisterStacks(ctx, key, channels)
	if err != nil {
		return res, err
	}

	for _, name := range channelNames(res.Registered) {
		if err := store.PutStack(ctx, key, name, res.Registered[name]); err != nil {
			return res, &StackError{Key:key, Channel:name, Index:-1, Err:fmt.Errorf("save: %w", err)}
		}
	}
	return res, nil
}

func channelNames(m map[string]Stack) []string {
	names := []string{}
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
