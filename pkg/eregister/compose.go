package eregister

import(
	"fmt"

	"github.com/abworrall/stackreg/pkg/emath"
)

// AbsoluteSet holds, per frame, the transform mapping a location in
// frame 0 to the same sample point in that frame.
type AbsoluteSet []emath.Aff3

// Compose chains the pairwise transforms: absolute[i] applies
// pairwise[1] first and pairwise[i] last. Failed entries count as
// identity, i.e. the frame is taken not to have moved.
func Compose(ps PairwiseSet) (AbsoluteSet, error) {
	if len(ps) == 0 {
		return nil, &ComposeError{Index:0, Reason:"empty pairwise set"}
	}
	if ps[0].Index != 0 || ps[0].Outcome != OutcomeReference || !ps[0].Transform.IsIdentity() {
		return nil, &ComposeError{Index:0, Reason:"first entry must be the identity reference"}
	}

	abs := AbsoluteSet{emath.Identity()}
	for i:=1; i<len(ps); i++ {
		pr := ps[i]
		if pr.Index != i {
			return nil, &ComposeError{Index:i, Reason:fmt.Sprintf("entry is for frame %d; the set has a gap", pr.Index)}
		}

		switch pr.Outcome {
		case OutcomeFailed:
			abs = append(abs, abs[i-1])
		case OutcomeDirect, OutcomeFallback:
			if !pr.Transform.IsFinite() {
				return nil, &ComposeError{Index:i, Reason:"transform is not finite"}
			}
			abs = append(abs, pr.Transform.Mult(abs[i-1]))
		default:
			return nil, &ComposeError{Index:i, Reason:"unexpected outcome " + pr.Outcome.String()}
		}
	}
	return abs, nil
}
