package eregister

import(
	"errors"
	"fmt"
)

var(
	ErrEmptyIntersection   = errors.New("no region is valid in every frame")
	ErrInsufficientMatches = errors.New("too few reliable feature matches")
	ErrNotConverged        = errors.New("correlation optimizer did not converge")
	ErrMissingValues       = errors.New("frame contains missing values")
	ErrShapeMismatch       = errors.New("stack does not match transform set")
)

// AlignmentFailedError means every strategy was tried on a pair, and
// none produced a transform.
type AlignmentFailedError struct {
	Index    int    // of the current frame in the pair
	Label    string
	Direct   error
	Manual   error  // nil if no manual points were given
	Fallback error
}

func (e *AlignmentFailedError)Error() string {
	str := fmt.Sprintf("align frame %d [%s] to its predecessor: direct: %v", e.Index, e.Label, e.Direct)
	if e.Manual != nil {
		str += fmt.Sprintf("; manual: %v", e.Manual)
	}
	return str + fmt.Sprintf("; features: %v", e.Fallback)
}

// Unwrap exposes the causes to errors.Is/As
func (e *AlignmentFailedError)Unwrap() []error {
	errs := []error{}
	for _, err := range []error{e.Direct, e.Manual, e.Fallback} {
		if err != nil { errs = append(errs, err) }
	}
	return errs
}

// ComposeError flags a malformed pairwise set; it is a bug in the caller.
type ComposeError struct {
	Index  int
	Reason string
}

func (e *ComposeError)Error() string {
	return fmt.Sprintf("compose: entry %d: %s", e.Index, e.Reason)
}

// StackError identifies which stack, channel and frame stopped a registration.
type StackError struct {
	Key     StackKey
	Channel string
	Index   int    // -1 if not specific to a frame
	Label   string
	Err     error
}

func (e *StackError)Error() string {
	str := fmt.Sprintf("register %s, channel '%s'", e.Key, e.Channel)
	if e.Index >= 0 {
		str += fmt.Sprintf(", frame %d [%s]", e.Index, e.Label)
	}
	return str + ": " + e.Err.Error()
}

func (e *StackError)Unwrap() error { return e.Err }
